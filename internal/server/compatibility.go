package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/formmetrics/internal/compatibility"
)

func (s *Server) ListFieldTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"field_types":       compatibility.AllFieldTypes(),
		"categories":        compatibility.FieldTypeCategories(),
		"mapping_types":     compatibility.AllMappingTypes(),
		"aggregation_types": compatibility.AllAggregationTypes(),
		"data_types":        compatibility.AllDataTypes(),
	}})
}

func (s *Server) GetFieldTypeProfile(c *gin.Context) {
	// Unknown types still get the fallback profile with known=false.
	fieldType, _ := compatibility.ParseFieldType(c.Param("type"))
	c.JSON(http.StatusOK, gin.H{"data": compatibility.Profile(fieldType)})
}

func (s *Server) ListAggregations(c *gin.Context) {
	var query struct {
		FieldType   string `form:"field_type"`
		MappingType string `form:"mapping_type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if strings.TrimSpace(query.FieldType) == "" {
		AbortWithError(c, newValidationError("field_type", "invalid_field_type", "field_type is required"))
		return
	}
	fieldType, _ := compatibility.ParseFieldType(query.FieldType)
	mappingType := compatibility.RecommendedMappingType(fieldType)
	if strings.TrimSpace(query.MappingType) != "" {
		parsed, ok := compatibility.ParseMappingType(query.MappingType)
		if !ok {
			AbortWithError(c, newValidationError("mapping_type", "invalid_mapping_type", "unknown mapping type"))
			return
		}
		mappingType = parsed
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"field_type":   fieldType,
		"mapping_type": mappingType,
		"valid":        compatibility.IsValidMappingType(fieldType, mappingType),
		"aggregations": compatibility.ValidAggregationTypes(fieldType, mappingType),
		"recommended":  compatibility.RecommendedAggregationType(fieldType, mappingType),
	}})
}

func (s *Server) SuggestThresholds(c *gin.Context) {
	var query struct {
		DataType    string `form:"data_type"`
		Aggregation string `form:"aggregation"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dataType := strings.TrimSpace(query.DataType)
	if !compatibility.IsDataType(dataType) {
		AbortWithError(c, newValidationError("data_type", "invalid_data_type", "unknown data type"))
		return
	}
	var agg compatibility.AggregationType
	if strings.TrimSpace(query.Aggregation) != "" {
		parsed, ok := compatibility.ParseAggregationType(query.Aggregation)
		if !ok {
			AbortWithError(c, newValidationError("aggregation", "invalid_aggregation", "unknown aggregation"))
			return
		}
		agg = parsed
	}

	c.JSON(http.StatusOK, gin.H{"data": compatibility.SuggestThresholds(dataType, agg)})
}
