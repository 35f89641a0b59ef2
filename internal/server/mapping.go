package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
)

type createMappingRequest struct {
	FieldID             string          `json:"field_id"`
	MetricID            string          `json:"metric_id"`
	MappingType         string          `json:"mapping_type"`
	AggregationType     string          `json:"aggregation_type"`
	TransformationLogic json.RawMessage `json:"transformation_logic"`
	ExpectedValue       *string         `json:"expected_value"`
}

type updateMappingRequest struct {
	MetricID            *string         `json:"metric_id,omitempty"`
	AggregationType     *string         `json:"aggregation_type,omitempty"`
	TransformationLogic json.RawMessage `json:"transformation_logic,omitempty"`
	ExpectedValue       *string         `json:"expected_value,omitempty"`
	IsActive            *bool           `json:"is_active,omitempty"`
}

type testMappingRequest struct {
	Samples map[string]string `json:"samples"`
}

func (s *Server) CreateMapping(c *gin.Context) {
	var req createMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.mappingSvc.Create(c.Request.Context(), mappingdomain.CreateRequest{
		FieldID:             strings.TrimSpace(req.FieldID),
		MetricID:            strings.TrimSpace(req.MetricID),
		MappingType:         strings.TrimSpace(req.MappingType),
		AggregationType:     strings.TrimSpace(req.AggregationType),
		TransformationLogic: req.TransformationLogic,
		ExpectedValue:       trimStringPtr(req.ExpectedValue),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetMapping(c *gin.Context) {
	resp, err := s.mappingSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateMapping(c *gin.Context) {
	var req updateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.mappingSvc.Update(c.Request.Context(), mappingdomain.UpdateRequest{
		ID:                  strings.TrimSpace(c.Param("id")),
		MetricID:            trimStringPtr(req.MetricID),
		AggregationType:     trimStringPtr(req.AggregationType),
		TransformationLogic: req.TransformationLogic,
		ExpectedValue:       trimStringPtr(req.ExpectedValue),
		IsActive:            req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateMapping(c *gin.Context) {
	if err := s.mappingSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) TestMapping(c *gin.Context) {
	var req testMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.mappingSvc.TestMapping(c.Request.Context(), mappingdomain.TestRequest{
		ID:      strings.TrimSpace(c.Param("id")),
		Samples: req.Samples,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTemplateMappings(c *gin.Context) {
	resp, err := s.mappingSvc.ListByTemplate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListUnmappedFields(c *gin.Context) {
	resp, err := s.mappingSvc.UnmappedFields(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
