package strategy

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/formmetrics/internal/formula"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
	submissiondomain "github.com/smallbiznis/formmetrics/internal/submission/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const (
	fieldA snowflake.ID = 101
	fieldB snowflake.ID = 102
	metric snowflake.ID = 900
)

func num(v float64) *float64 { return &v }
func str(v string) *string    { return &v }
func boolean(v bool) *bool    { return &v }

func mapping(mappingType string) mappingdomain.Mapping {
	id := metric
	return mappingdomain.Mapping{ID: 1, FieldID: fieldA, MetricID: &id, MappingType: mappingType, IsActive: true}
}

func TestDirectCoercionOrder(t *testing.T) {
	tests := []struct {
		name   string
		answer submissiondomain.Answer
		want   *float64
	}{
		{name: "numeric", answer: submissiondomain.Answer{FieldID: fieldA, NumericValue: num(42)}, want: num(42)},
		{name: "bool true", answer: submissiondomain.Answer{FieldID: fieldA, BooleanValue: boolean(true)}, want: num(1)},
		{name: "bool false", answer: submissiondomain.Answer{FieldID: fieldA, BooleanValue: boolean(false)}, want: num(0)},
		{name: "numeric text", answer: submissiondomain.Answer{FieldID: fieldA, TextValue: str(" 3.5 ")}, want: num(3.5)},
		{name: "yes text", answer: submissiondomain.Answer{FieldID: fieldA, TextValue: str("YES")}, want: num(1)},
		{name: "no text", answer: submissiondomain.Answer{FieldID: fieldA, TextValue: str("no")}, want: num(0)},
		{name: "free text", answer: submissiondomain.Answer{FieldID: fieldA, TextValue: str("blue")}, want: nil},
		{name: "nan text", answer: submissiondomain.Answer{FieldID: fieldA, TextValue: str("NaN")}, want: nil},
		{name: "no answer", answer: submissiondomain.Answer{FieldID: fieldB, NumericValue: num(1)}, want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Compute(mapping("Direct"), submissiondomain.NewAnswerSet([]submissiondomain.Answer{tc.answer}), Options{})
			require.NoError(t, err)
			if tc.want == nil {
				assert.True(t, res.Skipped())
				assert.Equal(t, SkipNoValue, res.SkipReason)
				return
			}
			require.NotNil(t, res.Value)
			assert.Equal(t, *tc.want, *res.Value)
		})
	}
}

func TestMappingWithoutMetricIsSkipped(t *testing.T) {
	m := mapping("Direct")
	m.MetricID = nil
	res, err := Compute(m, submissiondomain.NewAnswerSet([]submissiondomain.Answer{{FieldID: fieldA, NumericValue: num(5)}}), Options{})
	require.NoError(t, err)
	assert.True(t, res.Skipped())
	assert.Equal(t, SkipNoMetric, res.SkipReason)
}

func TestDerivedIsSkipped(t *testing.T) {
	res, err := Compute(mapping("Derived"), submissiondomain.NewAnswerSet(nil), Options{})
	require.NoError(t, err)
	assert.True(t, res.Skipped())
	assert.Equal(t, SkipDerived, res.SkipReason)
}

func TestUnknownMappingTypeFails(t *testing.T) {
	_, err := Compute(mapping("Magic"), submissiondomain.NewAnswerSet(nil), Options{})
	assert.Error(t, err)
}

func TestBinaryCompliance(t *testing.T) {
	tests := []struct {
		name     string
		expected *string
		def      string
		answer   submissiondomain.Answer
		want     float64
	}{
		{name: "bool yes default", answer: submissiondomain.Answer{FieldID: fieldA, BooleanValue: boolean(true)}, want: 100},
		{name: "bool no default", answer: submissiondomain.Answer{FieldID: fieldA, BooleanValue: boolean(false)}, want: 0},
		{name: "case insensitive", expected: str("compliant"), answer: submissiondomain.Answer{FieldID: fieldA, TextValue: str("Compliant")}, want: 100},
		{name: "mismatch", expected: str("Compliant"), answer: submissiondomain.Answer{FieldID: fieldA, TextValue: str("Partial")}, want: 0},
		{name: "configured default", def: "Pass", answer: submissiondomain.Answer{FieldID: fieldA, TextValue: str("pass")}, want: 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := mapping("BinaryCompliance")
			m.ExpectedValue = tc.expected
			res, err := Compute(m, submissiondomain.NewAnswerSet([]submissiondomain.Answer{tc.answer}), Options{DefaultExpectedValue: tc.def})
			require.NoError(t, err)
			require.NotNil(t, res.Value)
			assert.Equal(t, tc.want, *res.Value)
		})
	}
}

func TestBinaryComplianceWithoutUsableAnswerSkips(t *testing.T) {
	tests := []struct {
		name    string
		answers []submissiondomain.Answer
	}{
		{name: "no answer"},
		{name: "empty text", answers: []submissiondomain.Answer{{FieldID: fieldA, TextValue: str("")}}},
		{name: "blank text", answers: []submissiondomain.Answer{{FieldID: fieldA, TextValue: str("   ")}}},
		{name: "numeric only", answers: []submissiondomain.Answer{{FieldID: fieldA, NumericValue: num(1)}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Compute(mapping("BinaryCompliance"), submissiondomain.NewAnswerSet(tc.answers), Options{})
			require.NoError(t, err)
			assert.True(t, res.Skipped())
			assert.Equal(t, SkipNoAnswer, res.SkipReason)
		})
	}
}

func calculatedMapping(logic string) mappingdomain.Mapping {
	m := mapping("Calculated")
	m.TransformationLogic = datatypes.JSON(logic)
	return m
}

func TestCalculatedOperationalRatio(t *testing.T) {
	m := calculatedMapping(`{"formula":"(A / B) * 100","itemAliases":{"A":"101","B":"102"},"roundTo":2}`)
	answers := submissiondomain.NewAnswerSet([]submissiondomain.Answer{
		{FieldID: fieldA, NumericValue: num(23)},
		{FieldID: fieldB, TextValue: str("25")},
	})
	res, err := Compute(m, answers, Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, 92.0, *res.Value)
	assert.Equal(t, "(A / B) * 100", res.Formula)
	assert.Equal(t, map[string]float64{"A": 23, "B": 25}, res.Inputs)
	assert.Equal(t, "A=23, B=25", res.SourceValue)
}

func TestCalculatedFailures(t *testing.T) {
	logic := `{"formula":"(A / B) * 100","itemAliases":{"A":"101","B":"102"}}`
	tests := []struct {
		name    string
		logic   string
		answers []submissiondomain.Answer
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing response",
			logic:   logic,
			answers: []submissiondomain.Answer{{FieldID: fieldA, NumericValue: num(1)}},
			wantErr: ErrMissingResponse,
			wantMsg: "missing response for field B (field 102)",
		},
		{
			name:    "invalid numeric",
			logic:   logic,
			answers: []submissiondomain.Answer{{FieldID: fieldA, TextValue: str("many")}, {FieldID: fieldB, NumericValue: num(2)}},
			wantErr: ErrInvalidNumeric,
			wantMsg: "invalid numeric value for A",
		},
		{
			name:    "division by zero",
			logic:   logic,
			answers: []submissiondomain.Answer{{FieldID: fieldA, NumericValue: num(1)}, {FieldID: fieldB, NumericValue: num(0)}},
			wantErr: formula.ErrDivisionByZero,
		},
		{
			name:    "bad descriptor",
			logic:   `{"formula":""}`,
			wantErr: formula.ErrInvalidDescriptor,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compute(calculatedMapping(tc.logic), submissiondomain.NewAnswerSet(tc.answers), Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			if tc.wantMsg != "" {
				assert.Equal(t, tc.wantMsg, err.Error())
			}
		})
	}
}

func TestCalculatedBadDescriptorKeepsFormulaText(t *testing.T) {
	res, err := Compute(calculatedMapping(`{"formula":"A / C","itemAliases":{"A":"101"}}`), submissiondomain.NewAnswerSet(nil), Options{})
	require.Error(t, err)
	assert.Equal(t, "A / C", res.Formula)
}
