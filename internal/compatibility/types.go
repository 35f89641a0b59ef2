// Package compatibility answers which mapping and aggregation strategies are
// legal for a form field type. Every rule lives in an enum-keyed table so the
// legality of a pairing can be read off directly.
package compatibility

import "strings"

// FieldType is the declared input type of a form field.
type FieldType string

const (
	FieldText        FieldType = "Text"
	FieldTextArea    FieldType = "TextArea"
	FieldNumber      FieldType = "Number"
	FieldDecimal     FieldType = "Decimal"
	FieldDate        FieldType = "Date"
	FieldTime        FieldType = "Time"
	FieldDateTime    FieldType = "DateTime"
	FieldDropdown    FieldType = "Dropdown"
	FieldRadio       FieldType = "Radio"
	FieldCheckbox    FieldType = "Checkbox"
	FieldMultiSelect FieldType = "MultiSelect"
	FieldFileUpload  FieldType = "FileUpload"
	FieldImage       FieldType = "Image"
	FieldSignature   FieldType = "Signature"
	FieldRating      FieldType = "Rating"
	FieldSlider      FieldType = "Slider"
	FieldEmail       FieldType = "Email"
	FieldPhone       FieldType = "Phone"
	FieldURL         FieldType = "Url"
	FieldCurrency    FieldType = "Currency"
	FieldPercentage  FieldType = "Percentage"
)

// MappingType is the strategy that turns an answer into a metric value.
type MappingType string

const (
	MappingDirect           MappingType = "Direct"
	MappingCalculated       MappingType = "Calculated"
	MappingBinaryCompliance MappingType = "BinaryCompliance"
	MappingDerived          MappingType = "Derived"
)

// AggregationType is how period values of a metric roll up.
type AggregationType string

const (
	AggregationSum        AggregationType = "Sum"
	AggregationAverage    AggregationType = "Average"
	AggregationCount      AggregationType = "Count"
	AggregationMin        AggregationType = "Min"
	AggregationMax        AggregationType = "Max"
	AggregationLatest     AggregationType = "Latest"
	AggregationPercentage AggregationType = "Percentage"
)

// Metric data types.
const (
	DataTypeInteger    = "Integer"
	DataTypeDecimal    = "Decimal"
	DataTypePercentage = "Percentage"
	DataTypeBoolean    = "Boolean"
	DataTypeText       = "Text"
	DataTypeDuration   = "Duration"
	DataTypeDate       = "Date"
	DataTypeDateTime   = "DateTime"
	DataTypeRating     = "Rating"
)

var fieldTypesByFold = func() map[string]FieldType {
	out := make(map[string]FieldType, len(allFieldTypes))
	for _, ft := range allFieldTypes {
		out[strings.ToLower(string(ft))] = ft
	}
	return out
}()

var allFieldTypes = []FieldType{
	FieldText, FieldTextArea, FieldNumber, FieldDecimal, FieldDate, FieldTime, FieldDateTime,
	FieldDropdown, FieldRadio, FieldCheckbox, FieldMultiSelect, FieldFileUpload, FieldImage,
	FieldSignature, FieldRating, FieldSlider, FieldEmail, FieldPhone, FieldURL, FieldCurrency,
	FieldPercentage,
}

var allMappingTypes = []MappingType{MappingDirect, MappingCalculated, MappingBinaryCompliance, MappingDerived}

var allAggregationTypes = []AggregationType{
	AggregationSum, AggregationAverage, AggregationCount, AggregationMin,
	AggregationMax, AggregationLatest, AggregationPercentage,
}

var allDataTypes = []string{
	DataTypeInteger, DataTypeDecimal, DataTypePercentage, DataTypeBoolean,
	DataTypeText, DataTypeDuration, DataTypeDate, DataTypeDateTime, DataTypeRating,
}

// ParseFieldType matches case-insensitively. Unknown names are returned as-is
// with ok=false so callers can still fall back to the default rules.
func ParseFieldType(raw string) (FieldType, bool) {
	ft, ok := fieldTypesByFold[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return FieldType(strings.TrimSpace(raw)), false
	}
	return ft, true
}

func ParseMappingType(raw string) (MappingType, bool) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "Expected") {
		return MappingBinaryCompliance, true
	}
	for _, mt := range allMappingTypes {
		if strings.EqualFold(string(mt), raw) {
			return mt, true
		}
	}
	return MappingType(raw), false
}

func ParseAggregationType(raw string) (AggregationType, bool) {
	raw = strings.TrimSpace(raw)
	for _, agg := range allAggregationTypes {
		if strings.EqualFold(string(agg), raw) {
			return agg, true
		}
	}
	return AggregationType(raw), false
}

// IsDataType reports whether raw names a metric data type.
func IsDataType(raw string) bool {
	for _, dt := range allDataTypes {
		if dt == raw {
			return true
		}
	}
	return false
}

func AllFieldTypes() []FieldType {
	return append([]FieldType(nil), allFieldTypes...)
}

func AllMappingTypes() []MappingType {
	return append([]MappingType(nil), allMappingTypes...)
}

func AllAggregationTypes() []AggregationType {
	return append([]AggregationType(nil), allAggregationTypes...)
}

func AllDataTypes() []string {
	return append([]string(nil), allDataTypes...)
}
