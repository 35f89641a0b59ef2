package formula

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const maxRoundTo = 10

var aliasPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reservedWords = map[string]struct{}{
	"true":  {},
	"false": {},
	"in":    {},
}

// FieldRef is a form field id that decodes from a JSON string or number.
type FieldRef snowflake.ID

func (r FieldRef) ID() snowflake.ID {
	return snowflake.ID(r)
}

func (r FieldRef) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(snowflake.ID(r).String())), nil
}

func (r *FieldRef) UnmarshalJSON(b []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return fmt.Errorf("%w: field reference %s", ErrInvalidDescriptor, string(b))
	}
	*r = FieldRef(parsed)
	return nil
}

// Descriptor is the stored definition of a calculated mapping.
type Descriptor struct {
	Formula                string              `json:"formula"`
	SourceItems            []FieldRef          `json:"sourceItems,omitempty"`
	ItemAliases            map[string]FieldRef `json:"itemAliases"`
	RoundTo                *int                `json:"roundTo,omitempty"`
	MinValue               *float64            `json:"minValue,omitempty"`
	MaxValue               *float64            `json:"maxValue,omitempty"`
	ValidateDivisionByZero *bool               `json:"validateDivisionByZero,omitempty"`
}

// ParseDescriptor decodes and validates a descriptor.
func ParseDescriptor(raw string) (*Descriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidDescriptor)
	}

	var d Descriptor
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// FormulaText returns the formula of a stored descriptor without validating
// the rest of it. Undecodable input is returned as is.
func FormulaText(raw string) string {
	var partial struct {
		Formula string `json:"formula"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &partial); err != nil {
		return raw
	}
	if f := strings.TrimSpace(partial.Formula); f != "" {
		return f
	}
	return raw
}

// Validate checks the descriptor shape and that the formula compiles.
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.Formula) == "" {
		return fmt.Errorf("%w: formula is required", ErrInvalidDescriptor)
	}
	if len(d.ItemAliases) == 0 {
		return fmt.Errorf("%w: at least one alias is required", ErrInvalidDescriptor)
	}
	for alias, ref := range d.ItemAliases {
		if !aliasPattern.MatchString(alias) {
			return fmt.Errorf("%w: alias %q is not an identifier", ErrInvalidDescriptor, alias)
		}
		if _, reserved := reservedWords[strings.ToLower(alias)]; reserved {
			return fmt.Errorf("%w: alias %q is reserved", ErrInvalidDescriptor, alias)
		}
		if ref <= 0 {
			return fmt.Errorf("%w: alias %q has no field", ErrInvalidDescriptor, alias)
		}
	}
	if d.RoundTo != nil && (*d.RoundTo < 0 || *d.RoundTo > maxRoundTo) {
		return fmt.Errorf("%w: roundTo must be between 0 and %d", ErrInvalidDescriptor, maxRoundTo)
	}
	if d.MinValue != nil && d.MaxValue != nil && *d.MinValue > *d.MaxValue {
		return fmt.Errorf("%w: minValue exceeds maxValue", ErrInvalidDescriptor)
	}

	expr, err := Compile(d.Formula)
	if err != nil {
		return err
	}
	for _, name := range expr.Vars() {
		if _, ok := d.ItemAliases[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnboundVariable, name)
		}
	}
	return nil
}

// Aliases returns the declared aliases in a stable order.
func (d *Descriptor) Aliases() []string {
	out := make([]string, 0, len(d.ItemAliases))
	for alias := range d.ItemAliases {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// FieldIDs returns every field the descriptor binds, deduplicated.
func (d *Descriptor) FieldIDs() []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(d.ItemAliases))
	out := make([]snowflake.ID, 0, len(d.ItemAliases))
	for _, alias := range d.Aliases() {
		id := d.ItemAliases[alias].ID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (d *Descriptor) Options() Options {
	validate := true
	if d.ValidateDivisionByZero != nil {
		validate = *d.ValidateDivisionByZero
	}
	return Options{
		RoundTo:                d.RoundTo,
		Min:                    d.MinValue,
		Max:                    d.MaxValue,
		ValidateDivisionByZero: validate,
	}
}

func (d *Descriptor) String() string {
	b, err := json.Marshal(d)
	if err != nil {
		return d.Formula
	}
	return string(b)
}
