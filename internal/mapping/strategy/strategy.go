// Package strategy computes a metric value from one mapping and one set of
// answers. It performs no I/O, so population runs and mapping dry runs share
// exactly the same rules.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/smallbiznis/formmetrics/internal/compatibility"
	"github.com/smallbiznis/formmetrics/internal/formula"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
	submissiondomain "github.com/smallbiznis/formmetrics/internal/submission/domain"
)

const DefaultExpectedValue = "Yes"

// Skip reasons recorded when a mapping yields no value.
const (
	SkipNoMetric    = "mapping has no metric"
	SkipNoValue     = "no usable value for field"
	SkipNoAnswer    = "no answer for field"
	SkipDerived     = "derived mappings are not computed from submissions"
	SkipUnknownType = "unsupported mapping type"
)

var (
	ErrMissingResponse = errors.New("missing response")
	ErrInvalidNumeric  = errors.New("invalid numeric value")
)

// Result is the outcome of one mapping. A nil Value with a SkipReason means
// the mapping produced nothing and is not a failure.
type Result struct {
	Value       *float64
	SourceValue string
	Formula     string
	Inputs      map[string]float64
	SkipReason  string
}

func (r Result) Skipped() bool {
	return r.Value == nil
}

type Options struct {
	// DefaultExpectedValue applies to compliance mappings with no expected value.
	DefaultExpectedValue string
}

// Compute runs the strategy for m. Errors are per-mapping failures; the
// caller records them and moves on.
func Compute(m mappingdomain.Mapping, answers submissiondomain.AnswerSet, opts Options) (Result, error) {
	if m.MetricID == nil {
		return Result{SkipReason: SkipNoMetric}, nil
	}

	mappingType, ok := compatibility.ParseMappingType(m.MappingType)
	if !ok {
		return Result{}, fmt.Errorf("%s %q", SkipUnknownType, m.MappingType)
	}

	switch mappingType {
	case compatibility.MappingDirect:
		return direct(m, answers), nil
	case compatibility.MappingCalculated:
		return calculated(m, answers)
	case compatibility.MappingBinaryCompliance:
		return binaryCompliance(m, answers, opts), nil
	case compatibility.MappingDerived:
		return Result{SkipReason: SkipDerived}, nil
	default:
		return Result{}, fmt.Errorf("%s %q", SkipUnknownType, m.MappingType)
	}
}

// CoerceNumeric tries numeric, then boolean as 1/0, then text parsed as a
// number, then Yes/No.
func CoerceNumeric(answers submissiondomain.AnswerSet, m mappingdomain.Mapping) (float64, bool) {
	fieldID := m.FieldID
	if v, ok := answers.Numeric(fieldID); ok {
		return v, true
	}
	if b, ok := answers.Boolean(fieldID); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	if text, ok := answers.Text(fieldID); ok {
		if v, ok := parseNumber(text); ok {
			return v, true
		}
		return submissiondomain.ParseYesNo(text)
	}
	return 0, false
}

func direct(m mappingdomain.Mapping, answers submissiondomain.AnswerSet) Result {
	source := answers.SourceValue(m.FieldID)
	v, ok := CoerceNumeric(answers, m)
	if !ok {
		return Result{SourceValue: source, SkipReason: SkipNoValue}
	}
	return Result{Value: &v, SourceValue: source}
}

func calculated(m mappingdomain.Mapping, answers submissiondomain.AnswerSet) (Result, error) {
	d, err := formula.ParseDescriptor(m.Logic())
	if err != nil {
		return Result{Formula: formula.FormulaText(m.Logic())}, err
	}

	res := Result{
		Formula: d.Formula,
		Inputs:  make(map[string]float64, len(d.ItemAliases)),
	}
	parts := make([]string, 0, len(d.ItemAliases))
	for _, alias := range d.Aliases() {
		fieldID := d.ItemAliases[alias].ID()
		if !answers.Has(fieldID) {
			return res, fmt.Errorf("%w for field %s (field %s)", ErrMissingResponse, alias, fieldID)
		}
		v, ok := answers.Numeric(fieldID)
		if !ok {
			text, hasText := answers.Text(fieldID)
			if !hasText {
				return res, fmt.Errorf("%w for %s", ErrInvalidNumeric, alias)
			}
			v, ok = parseNumber(text)
			if !ok {
				return res, fmt.Errorf("%w for %s", ErrInvalidNumeric, alias)
			}
		}
		res.Inputs[alias] = v
		parts = append(parts, alias+"="+strconv.FormatFloat(v, 'f', -1, 64))
	}
	res.SourceValue = strings.Join(parts, ", ")

	value, err := formula.Evaluate(d.Formula, res.Inputs, d.Options())
	if err != nil {
		return res, err
	}
	res.Value = &value
	return res, nil
}

func binaryCompliance(m mappingdomain.Mapping, answers submissiondomain.AnswerSet, opts Options) Result {
	display, ok := displayValue(answers, m)
	if !ok {
		return Result{SkipReason: SkipNoAnswer}
	}

	expected := DefaultExpectedValue
	if strings.TrimSpace(opts.DefaultExpectedValue) != "" {
		expected = strings.TrimSpace(opts.DefaultExpectedValue)
	}
	if m.ExpectedValue != nil && strings.TrimSpace(*m.ExpectedValue) != "" {
		expected = strings.TrimSpace(*m.ExpectedValue)
	}

	value := 0.0
	if strings.EqualFold(strings.TrimSpace(display), expected) {
		value = 100
	}
	return Result{Value: &value, SourceValue: display}
}

// displayValue renders booleans as Yes/No and otherwise uses the text answer.
// Blank text and numeric-only answers count as unanswered.
func displayValue(answers submissiondomain.AnswerSet, m mappingdomain.Mapping) (string, bool) {
	if b, ok := answers.Boolean(m.FieldID); ok {
		return submissiondomain.YesNo(b), true
	}
	if text, ok := answers.Text(m.FieldID); ok && strings.TrimSpace(text) != "" {
		return text, true
	}
	return "", false
}

func parseNumber(text string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
