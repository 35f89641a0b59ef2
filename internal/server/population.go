package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	populationdomain "github.com/smallbiznis/formmetrics/internal/population/domain"
	"github.com/smallbiznis/formmetrics/pkg/db/pagination"
)

func (s *Server) PopulateSubmission(c *gin.Context) {
	id, err := populationdomain.ParseID(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, populationdomain.ErrInvalidID)
		return
	}

	ctx := populationdomain.WithTrigger(c.Request.Context(), populationdomain.TriggerAPI)
	resp, err := s.populationSvc.PopulateFromSubmission(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecalculateSubmission(c *gin.Context) {
	id, err := populationdomain.ParseID(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, populationdomain.ErrInvalidID)
		return
	}

	resp, err := s.populationSvc.Recalculate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPopulationLogs(c *gin.Context) {
	resp, err := s.populationSvc.ListLogs(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPopulationRuns(c *gin.Context) {
	resp, err := s.populationSvc.ListRuns(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMetricValues(c *gin.Context) {
	var query struct {
		OrgUnitID string `form:"org_unit_id"`
		MetricID  string `form:"metric_id"`
		From      string `form:"from"`
		To        string `form:"to"`
		PageToken string `form:"page_token"`
		PageSize  string `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(query.OrgUnitID) == "" {
		AbortWithError(c, newValidationError("org_unit_id", "required", "org_unit_id is required"))
		return
	}

	from, err := parseOptionalTime(query.From)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}
	pageSize, err := parseOptionalInt(query.PageSize)
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	resp, err := s.populationSvc.ListValues(c.Request.Context(), populationdomain.ListValuesRequest{
		OrgUnitID: strings.TrimSpace(query.OrgUnitID),
		MetricID:  strings.TrimSpace(query.MetricID),
		From:      from,
		To:        to,
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  pageSize,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Values, "page_info": resp.PageInfo})
}

func (s *Server) GetMetricValue(c *gin.Context) {
	resp, err := s.populationSvc.GetValue(c.Request.Context(), populationdomain.GetValueRequest{
		OrgUnitID: strings.TrimSpace(c.Param("org_unit_id")),
		MetricID:  strings.TrimSpace(c.Param("metric_id")),
		Period:    strings.TrimSpace(c.Param("period")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
