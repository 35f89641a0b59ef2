package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const dateLayout = "2006-01-02"

// AnswerSet gives typed access to the answers of one submission.
type AnswerSet interface {
	Has(fieldID snowflake.ID) bool
	Numeric(fieldID snowflake.ID) (float64, bool)
	Boolean(fieldID snowflake.ID) (bool, bool)
	Text(fieldID snowflake.ID) (string, bool)
	Date(fieldID snowflake.ID) (time.Time, bool)
	// SourceValue renders whichever value is present for audit display.
	SourceValue(fieldID snowflake.ID) string
}

type answerSet struct {
	byField map[snowflake.ID]Answer
}

// NewAnswerSet indexes answers by field. A later answer for the same field wins.
func NewAnswerSet(answers []Answer) AnswerSet {
	set := &answerSet{byField: make(map[snowflake.ID]Answer, len(answers))}
	for _, a := range answers {
		set.byField[a.FieldID] = a
	}
	return set
}

func (s *answerSet) Has(fieldID snowflake.ID) bool {
	_, ok := s.byField[fieldID]
	return ok
}

func (s *answerSet) Numeric(fieldID snowflake.ID) (float64, bool) {
	a, ok := s.byField[fieldID]
	if !ok || a.NumericValue == nil {
		return 0, false
	}
	return *a.NumericValue, true
}

func (s *answerSet) Boolean(fieldID snowflake.ID) (bool, bool) {
	a, ok := s.byField[fieldID]
	if !ok || a.BooleanValue == nil {
		return false, false
	}
	return *a.BooleanValue, true
}

func (s *answerSet) Text(fieldID snowflake.ID) (string, bool) {
	a, ok := s.byField[fieldID]
	if !ok || a.TextValue == nil {
		return "", false
	}
	return *a.TextValue, true
}

func (s *answerSet) Date(fieldID snowflake.ID) (time.Time, bool) {
	a, ok := s.byField[fieldID]
	if !ok || a.DateValue == nil {
		return time.Time{}, false
	}
	return a.DateValue.UTC(), true
}

func (s *answerSet) SourceValue(fieldID snowflake.ID) string {
	if v, ok := s.Numeric(fieldID); ok {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if v, ok := s.Boolean(fieldID); ok {
		return YesNo(v)
	}
	if v, ok := s.Text(fieldID); ok {
		return v
	}
	if v, ok := s.Date(fieldID); ok {
		return v.Format(dateLayout)
	}
	return ""
}

func YesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// ParseYesNo maps "yes"/"no" in any case to 1/0.
func ParseYesNo(text string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes":
		return 1, true
	case "no":
		return 0, true
	default:
		return 0, false
	}
}
