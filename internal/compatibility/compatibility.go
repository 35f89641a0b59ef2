package compatibility

import "slices"

// ValidMappingTypes returns the legal strategies for a field type in display
// order. Unknown field types only allow Derived.
func ValidMappingTypes(fieldType FieldType) []MappingType {
	if types, ok := validMappingTypes[fieldType]; ok {
		return slices.Clone(types)
	}
	return slices.Clone(derivedOnly)
}

func IsValidMappingType(fieldType FieldType, mappingType MappingType) bool {
	return slices.Contains(ValidMappingTypes(fieldType), mappingType)
}

func RecommendedMappingType(fieldType FieldType) MappingType {
	if mt, ok := recommendedMappingType[fieldType]; ok {
		return mt
	}
	return MappingDerived
}

// ValidAggregationTypes is keyed on the (field, mapping) pair. Unknown pairs
// fall back to Count and Latest.
func ValidAggregationTypes(fieldType FieldType, mappingType MappingType) []AggregationType {
	if aggs, ok := validAggregationTypes[pair{fieldType, mappingType}]; ok {
		return slices.Clone(aggs)
	}
	return slices.Clone(fallbackAggregations)
}

func IsValidAggregationType(fieldType FieldType, mappingType MappingType, agg AggregationType) bool {
	return slices.Contains(ValidAggregationTypes(fieldType, mappingType), agg)
}

func RecommendedAggregationType(fieldType FieldType, mappingType MappingType) AggregationType {
	if agg, ok := recommendedAggregationType[pair{fieldType, mappingType}]; ok {
		return agg
	}
	return AggregationCount
}

// Thresholds are the green/yellow/red KPI boundaries.
type Thresholds struct {
	Green  float64 `json:"green"`
	Yellow float64 `json:"yellow"`
	Red    float64 `json:"red"`
}

// SuggestThresholds returns nil when no universal default is meaningful, as
// with raw sums and counts.
func SuggestThresholds(dataType string, aggregationType AggregationType) *Thresholds {
	switch {
	case dataType == DataTypePercentage || aggregationType == AggregationPercentage:
		return &Thresholds{Green: 90, Yellow: 60, Red: 30}
	case dataType == DataTypeRating:
		return &Thresholds{Green: 4, Yellow: 3, Red: 2}
	case dataType == DataTypeBoolean:
		return &Thresholds{Green: 0.9, Yellow: 0.6, Red: 0.3}
	default:
		return nil
	}
}

func CompatibleMetricDataTypes(fieldType FieldType) []string {
	if types, ok := compatibleMetricDataTypes[fieldType]; ok {
		return slices.Clone(types)
	}
	return slices.Clone(defaultMetricDataTypes)
}

func FieldTypeCategories() []FieldTypeCategory {
	out := make([]FieldTypeCategory, len(fieldTypeCategories))
	for i, c := range fieldTypeCategories {
		out[i] = FieldTypeCategory{Name: c.Name, FieldTypes: slices.Clone(c.FieldTypes)}
	}
	return out
}

// FieldProfile bundles every rule for one field type.
type FieldProfile struct {
	FieldType              FieldType                         `json:"field_type"`
	Known                  bool                              `json:"known"`
	ValidMappingTypes      []MappingType                     `json:"valid_mapping_types"`
	RecommendedMappingType MappingType                       `json:"recommended_mapping_type"`
	Aggregations           map[MappingType][]AggregationType `json:"aggregations"`
	RecommendedAggregation map[MappingType]AggregationType   `json:"recommended_aggregation"`
	CompatibleDataTypes    []string                          `json:"compatible_data_types"`
}

func Profile(fieldType FieldType) FieldProfile {
	_, known := validMappingTypes[fieldType]
	mappings := ValidMappingTypes(fieldType)
	profile := FieldProfile{
		FieldType:              fieldType,
		Known:                  known,
		ValidMappingTypes:      mappings,
		RecommendedMappingType: RecommendedMappingType(fieldType),
		Aggregations:           make(map[MappingType][]AggregationType, len(mappings)),
		RecommendedAggregation: make(map[MappingType]AggregationType, len(mappings)),
		CompatibleDataTypes:    CompatibleMetricDataTypes(fieldType),
	}
	for _, mt := range mappings {
		profile.Aggregations[mt] = ValidAggregationTypes(fieldType, mt)
		profile.RecommendedAggregation[mt] = RecommendedAggregationType(fieldType, mt)
	}
	return profile
}
