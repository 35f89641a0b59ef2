package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	taxonomydomain "github.com/smallbiznis/formmetrics/internal/taxonomy/domain"
)

type createMetricRequest struct {
	Code            string                            `json:"code"`
	Name            string                            `json:"name"`
	SubCategoryID   string                            `json:"sub_category_id"`
	SourceType      string                            `json:"source_type"`
	DataType        string                            `json:"data_type"`
	UnitID          string                            `json:"unit_id"`
	AggregationType string                            `json:"aggregation_type"`
	IsKPI           bool                              `json:"is_kpi"`
	Thresholds      *taxonomydomain.ThresholdsRequest `json:"thresholds"`
	ExpectedValue   *string                           `json:"expected_value"`
	ComplianceRule  json.RawMessage                   `json:"compliance_rule"`
	Description     string                            `json:"description"`
}

type updateMetricRequest struct {
	Name            *string         `json:"name,omitempty"`
	Description     *string         `json:"description,omitempty"`
	AggregationType *string         `json:"aggregation_type,omitempty"`
	UnitID          *string         `json:"unit_id,omitempty"`
	IsKPI           *bool           `json:"is_kpi,omitempty"`
	ExpectedValue   *string         `json:"expected_value,omitempty"`
	ComplianceRule  json.RawMessage `json:"compliance_rule,omitempty"`
	IsActive        *bool           `json:"is_active,omitempty"`
}

type updateThresholdsRequest struct {
	Thresholds *taxonomydomain.ThresholdsRequest `json:"thresholds"`
}

func (s *Server) ListMetrics(c *gin.Context) {
	var query struct {
		Active        string `form:"active"`
		KPI           string `form:"kpi"`
		SubCategoryID string `form:"sub_category_id"`
		FieldType     string `form:"field_type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if fieldType := strings.TrimSpace(query.FieldType); fieldType != "" {
		resp, err := s.taxonomySvc.MetricsForFieldType(c.Request.Context(), fieldType)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": resp})
		return
	}

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}
	kpi, err := parseOptionalBool(query.KPI)
	if err != nil {
		AbortWithError(c, newValidationError("kpi", "invalid_kpi", "invalid kpi"))
		return
	}

	resp, err := s.taxonomySvc.ListMetrics(c.Request.Context(), taxonomydomain.ListMetricsRequest{
		Active:        active,
		KPI:           kpi,
		SubCategoryID: strings.TrimSpace(query.SubCategoryID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateMetric(c *gin.Context) {
	var req createMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.taxonomySvc.CreateMetric(c.Request.Context(), taxonomydomain.CreateMetricRequest{
		Code:            strings.TrimSpace(req.Code),
		Name:            strings.TrimSpace(req.Name),
		SubCategoryID:   strings.TrimSpace(req.SubCategoryID),
		SourceType:      strings.TrimSpace(req.SourceType),
		DataType:        strings.TrimSpace(req.DataType),
		UnitID:          strings.TrimSpace(req.UnitID),
		AggregationType: strings.TrimSpace(req.AggregationType),
		IsKPI:           req.IsKPI,
		Thresholds:      req.Thresholds,
		ExpectedValue:   trimStringPtr(req.ExpectedValue),
		ComplianceRule:  req.ComplianceRule,
		Description:     strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetMetric(c *gin.Context) {
	resp, err := s.taxonomySvc.GetMetric(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateMetric(c *gin.Context) {
	var req updateMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.taxonomySvc.UpdateMetric(c.Request.Context(), taxonomydomain.UpdateMetricRequest{
		ID:              strings.TrimSpace(c.Param("id")),
		Name:            trimStringPtr(req.Name),
		Description:     trimStringPtr(req.Description),
		AggregationType: trimStringPtr(req.AggregationType),
		UnitID:          trimStringPtr(req.UnitID),
		IsKPI:           req.IsKPI,
		ExpectedValue:   trimStringPtr(req.ExpectedValue),
		ComplianceRule:  req.ComplianceRule,
		IsActive:        req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateMetricThresholds(c *gin.Context) {
	var req updateThresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.taxonomySvc.UpdateThresholds(c.Request.Context(), taxonomydomain.UpdateThresholdsRequest{
		ID:         strings.TrimSpace(c.Param("id")),
		Thresholds: req.Thresholds,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateMetric(c *gin.Context) {
	if err := s.taxonomySvc.DeactivateMetric(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListUnits(c *gin.Context) {
	resp, err := s.taxonomySvc.ListUnits(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCategories(c *gin.Context) {
	resp, err := s.taxonomySvc.ListCategories(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubCategories(c *gin.Context) {
	resp, err := s.taxonomySvc.ListSubCategories(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
