package compatibility

type pair struct {
	field   FieldType
	mapping MappingType
}

var (
	numericMappings   = []MappingType{MappingDirect, MappingCalculated, MappingDerived}
	selectionMappings = []MappingType{MappingDirect, MappingBinaryCompliance, MappingDerived}
	temporalMappings  = []MappingType{MappingCalculated, MappingDerived}
	derivedOnly       = []MappingType{MappingDerived}
)

var validMappingTypes = map[FieldType][]MappingType{
	FieldNumber:      numericMappings,
	FieldDecimal:     numericMappings,
	FieldCurrency:    numericMappings,
	FieldPercentage:  numericMappings,
	FieldRating:      numericMappings,
	FieldSlider:      numericMappings,
	FieldDropdown:    selectionMappings,
	FieldRadio:       selectionMappings,
	FieldCheckbox:    selectionMappings,
	FieldText:        {MappingBinaryCompliance, MappingDerived},
	FieldDate:        temporalMappings,
	FieldDateTime:    temporalMappings,
	FieldTime:        temporalMappings,
	FieldMultiSelect: temporalMappings,
	FieldFileUpload:  derivedOnly,
	FieldImage:       derivedOnly,
	FieldSignature:   derivedOnly,
	FieldEmail:       derivedOnly,
	FieldPhone:       derivedOnly,
	FieldURL:         derivedOnly,
	FieldTextArea:    derivedOnly,
}

var recommendedMappingType = map[FieldType]MappingType{
	FieldNumber:      MappingDirect,
	FieldDecimal:     MappingDirect,
	FieldCurrency:    MappingDirect,
	FieldPercentage:  MappingDirect,
	FieldRating:      MappingDirect,
	FieldSlider:      MappingDirect,
	FieldDropdown:    MappingDirect,
	FieldRadio:       MappingDirect,
	FieldCheckbox:    MappingBinaryCompliance,
	FieldText:        MappingBinaryCompliance,
	FieldDate:        MappingCalculated,
	FieldDateTime:    MappingCalculated,
	FieldTime:        MappingCalculated,
	FieldMultiSelect: MappingCalculated,
	FieldFileUpload:  MappingDerived,
	FieldImage:       MappingDerived,
	FieldSignature:   MappingDerived,
	FieldEmail:       MappingDerived,
	FieldPhone:       MappingDerived,
	FieldURL:         MappingDerived,
	FieldTextArea:    MappingDerived,
}

var (
	countingAggregations  = []AggregationType{AggregationSum, AggregationAverage, AggregationMin, AggregationMax, AggregationCount, AggregationLatest}
	currencyAggregations  = []AggregationType{AggregationSum, AggregationAverage, AggregationMin, AggregationMax, AggregationLatest}
	ratioAggregations     = []AggregationType{AggregationAverage, AggregationMin, AggregationMax, AggregationLatest}
	ratingAggregations    = []AggregationType{AggregationAverage, AggregationMin, AggregationMax, AggregationCount}
	sliderAggregations    = []AggregationType{AggregationAverage, AggregationMin, AggregationMax}
	choiceAggregations    = []AggregationType{AggregationAverage, AggregationCount, AggregationLatest}
	complianceAggregation = []AggregationType{AggregationPercentage, AggregationCount, AggregationSum}
	timelineAggregations  = []AggregationType{AggregationCount, AggregationLatest, AggregationMin, AggregationMax}
	contactAggregations   = []AggregationType{AggregationCount, AggregationLatest}
	fallbackAggregations  = []AggregationType{AggregationCount, AggregationLatest}
)

var validAggregationTypes = map[pair][]AggregationType{
	{FieldNumber, MappingDirect}:         countingAggregations,
	{FieldDecimal, MappingDirect}:        countingAggregations,
	{FieldCurrency, MappingDirect}:       currencyAggregations,
	{FieldPercentage, MappingDirect}:     ratioAggregations,
	{FieldRating, MappingDirect}:         ratingAggregations,
	{FieldSlider, MappingDirect}:         sliderAggregations,
	{FieldNumber, MappingCalculated}:     countingAggregations,
	{FieldDecimal, MappingCalculated}:    countingAggregations,
	{FieldCurrency, MappingCalculated}:   currencyAggregations,
	{FieldPercentage, MappingCalculated}: ratioAggregations,
	{FieldRating, MappingCalculated}:     ratingAggregations,
	{FieldSlider, MappingCalculated}:     sliderAggregations,

	{FieldDropdown, MappingDirect}: choiceAggregations,
	{FieldRadio, MappingDirect}:    choiceAggregations,
	{FieldCheckbox, MappingDirect}: {AggregationSum, AggregationCount, AggregationAverage},

	{FieldDropdown, MappingBinaryCompliance}: complianceAggregation,
	{FieldRadio, MappingBinaryCompliance}:    complianceAggregation,
	{FieldCheckbox, MappingBinaryCompliance}: complianceAggregation,
	{FieldText, MappingBinaryCompliance}:     {AggregationPercentage, AggregationCount},

	{FieldDate, MappingCalculated}:        timelineAggregations,
	{FieldDateTime, MappingCalculated}:    timelineAggregations,
	{FieldTime, MappingCalculated}:        {AggregationCount, AggregationAverage},
	{FieldMultiSelect, MappingCalculated}: {AggregationCount, AggregationSum, AggregationAverage},

	{FieldFileUpload, MappingDerived}: {AggregationCount, AggregationSum},
	{FieldImage, MappingDerived}:      {AggregationCount},
	{FieldSignature, MappingDerived}:  {AggregationCount},
	{FieldEmail, MappingDerived}:      contactAggregations,
	{FieldPhone, MappingDerived}:      contactAggregations,
	{FieldURL, MappingDerived}:        contactAggregations,
	{FieldTextArea, MappingDerived}:   contactAggregations,
}

var recommendedAggregationType = map[pair]AggregationType{
	{FieldNumber, MappingDirect}:         AggregationSum,
	{FieldDecimal, MappingDirect}:        AggregationSum,
	{FieldCurrency, MappingDirect}:       AggregationSum,
	{FieldPercentage, MappingDirect}:     AggregationAverage,
	{FieldRating, MappingDirect}:         AggregationAverage,
	{FieldSlider, MappingDirect}:         AggregationAverage,
	{FieldNumber, MappingCalculated}:     AggregationSum,
	{FieldDecimal, MappingCalculated}:    AggregationSum,
	{FieldCurrency, MappingCalculated}:   AggregationSum,
	{FieldPercentage, MappingCalculated}: AggregationAverage,
	{FieldRating, MappingCalculated}:     AggregationAverage,
	{FieldSlider, MappingCalculated}:     AggregationAverage,

	{FieldDropdown, MappingDirect}: AggregationAverage,
	{FieldRadio, MappingDirect}:    AggregationAverage,
	{FieldCheckbox, MappingDirect}: AggregationCount,

	{FieldDropdown, MappingBinaryCompliance}: AggregationPercentage,
	{FieldRadio, MappingBinaryCompliance}:    AggregationPercentage,
	{FieldCheckbox, MappingBinaryCompliance}: AggregationPercentage,
	{FieldText, MappingBinaryCompliance}:     AggregationPercentage,

	{FieldDate, MappingCalculated}:        AggregationCount,
	{FieldDateTime, MappingCalculated}:    AggregationCount,
	{FieldTime, MappingCalculated}:        AggregationAverage,
	{FieldMultiSelect, MappingCalculated}: AggregationCount,

	{FieldFileUpload, MappingDerived}: AggregationCount,
	{FieldImage, MappingDerived}:      AggregationCount,
	{FieldSignature, MappingDerived}:  AggregationCount,
	{FieldEmail, MappingDerived}:      AggregationCount,
	{FieldPhone, MappingDerived}:      AggregationCount,
	{FieldURL, MappingDerived}:        AggregationCount,
	{FieldTextArea, MappingDerived}:   AggregationCount,
}

// Metric data types each field type can feed.
var compatibleMetricDataTypes = map[FieldType][]string{
	FieldNumber:      {DataTypeInteger, DataTypeDecimal, DataTypePercentage},
	FieldDecimal:     {DataTypeDecimal, DataTypePercentage},
	FieldCurrency:    {DataTypeDecimal},
	FieldPercentage:  {DataTypePercentage, DataTypeDecimal},
	FieldRating:      {DataTypeRating, DataTypeDecimal, DataTypeInteger},
	FieldSlider:      {DataTypeDecimal, DataTypeInteger, DataTypePercentage},
	FieldText:        {DataTypeText, DataTypeBoolean, DataTypePercentage},
	FieldTextArea:    {DataTypeText},
	FieldDate:        {DataTypeDate, DataTypeDuration},
	FieldDateTime:    {DataTypeDateTime, DataTypeDate, DataTypeDuration},
	FieldTime:        {DataTypeDuration},
	FieldCheckbox:    {DataTypeBoolean, DataTypePercentage},
	FieldRadio:       {DataTypeBoolean, DataTypeText, DataTypePercentage},
	FieldDropdown:    {DataTypeText, DataTypeBoolean, DataTypePercentage},
	FieldMultiSelect: {DataTypeInteger, DataTypeDecimal},
}

var defaultMetricDataTypes = []string{DataTypeText}

// FieldTypeCategory groups field types for authoring screens.
type FieldTypeCategory struct {
	Name       string      `json:"name"`
	FieldTypes []FieldType `json:"field_types"`
}

var fieldTypeCategories = []FieldTypeCategory{
	{Name: "Numeric", FieldTypes: []FieldType{FieldNumber, FieldDecimal, FieldCurrency, FieldPercentage, FieldRating, FieldSlider}},
	{Name: "Selection", FieldTypes: []FieldType{FieldDropdown, FieldRadio, FieldCheckbox, FieldMultiSelect}},
	{Name: "Text", FieldTypes: []FieldType{FieldText, FieldTextArea}},
	{Name: "Date/Time", FieldTypes: []FieldType{FieldDate, FieldTime, FieldDateTime}},
	{Name: "Media", FieldTypes: []FieldType{FieldFileUpload, FieldImage, FieldSignature}},
	{Name: "Contact", FieldTypes: []FieldType{FieldEmail, FieldPhone, FieldURL}},
}
