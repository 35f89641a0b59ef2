// Package formula evaluates the arithmetic expressions of calculated mappings.
//
// Expressions are tokenized by govaluate and restricted to numeric literals,
// variables, unary minus, the four basic operators and parentheses. Variables
// are bound by name through evaluation parameters, never by text replacement.
package formula

import (
	"fmt"
	"math"
	"strings"

	"github.com/casbin/govaluate"
)

// Options are applied after evaluation in order: rounding, then min, then max.
type Options struct {
	RoundTo                *int
	Min                    *float64
	Max                    *float64
	ValidateDivisionByZero bool
}

// Expression is a compiled, validated formula.
type Expression struct {
	raw    string
	expr   *govaluate.EvaluableExpression
	tokens []govaluate.ExpressionToken
	vars   []string
}

// Compile parses formula and rejects any token outside the supported grammar.
func Compile(formula string) (*Expression, error) {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrMalformedFormula)
	}

	expr, err := govaluate.NewEvaluableExpression(formula)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFormula, err)
	}

	tokens := expr.Tokens()
	for _, tok := range tokens {
		if err := checkToken(tok); err != nil {
			return nil, err
		}
	}

	seen := map[string]struct{}{}
	vars := make([]string, 0)
	for _, tok := range tokens {
		if tok.Kind != govaluate.VARIABLE {
			continue
		}
		name, _ := tok.Value.(string)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		vars = append(vars, name)
	}

	return &Expression{raw: formula, expr: expr, tokens: tokens, vars: vars}, nil
}

func checkToken(tok govaluate.ExpressionToken) error {
	switch tok.Kind {
	case govaluate.NUMERIC, govaluate.VARIABLE, govaluate.CLAUSE, govaluate.CLAUSE_CLOSE:
		return nil
	case govaluate.MODIFIER:
		switch tok.Value {
		case "+", "-", "*", "/":
			return nil
		}
		return fmt.Errorf("%w: unsupported operator %v", ErrMalformedFormula, tok.Value)
	case govaluate.PREFIX:
		if tok.Value == "-" {
			return nil
		}
		return fmt.Errorf("%w: unsupported prefix %v", ErrMalformedFormula, tok.Value)
	default:
		return fmt.Errorf("%w: unsupported token %s", ErrMalformedFormula, tok.Kind.String())
	}
}

func (e *Expression) String() string {
	return e.raw
}

// Vars lists the variables referenced by the expression in order of appearance.
func (e *Expression) Vars() []string {
	return append([]string(nil), e.vars...)
}

// Evaluate binds vars, evaluates and post-processes the result.
func (e *Expression) Evaluate(vars map[string]float64, opts Options) (float64, error) {
	params := make(map[string]interface{}, len(vars))
	for _, name := range e.vars {
		value, ok := vars[name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnboundVariable, name)
		}
		params[name] = value
	}

	if opts.ValidateDivisionByZero {
		if err := e.checkDenominators(params); err != nil {
			return 0, err
		}
	}

	raw, err := e.expr.Evaluate(params)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedFormula, err)
	}
	result, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: result is %T, not a number", ErrMalformedFormula, raw)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, ErrNonFiniteResult
	}

	return applyOptions(result, opts), nil
}

// checkDenominators evaluates the operand right of every "/" on its own. An
// operand is any unary prefixes followed by a literal, a variable or one
// balanced parenthesised group, which is exactly what binds tighter than "/".
func (e *Expression) checkDenominators(params map[string]interface{}) error {
	for i, tok := range e.tokens {
		if tok.Kind != govaluate.MODIFIER || tok.Value != "/" {
			continue
		}
		end, err := operandEnd(e.tokens, i+1)
		if err != nil {
			return err
		}

		operand := make([]govaluate.ExpressionToken, end-(i+1))
		copy(operand, e.tokens[i+1:end])

		sub, err := govaluate.NewEvaluableExpressionFromTokens(operand)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFormula, err)
		}
		value, err := sub.Evaluate(params)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFormula, err)
		}
		if denominator, ok := value.(float64); ok && denominator == 0 {
			return ErrDivisionByZero
		}
	}
	return nil
}

func operandEnd(tokens []govaluate.ExpressionToken, start int) (int, error) {
	j := start
	for j < len(tokens) && tokens[j].Kind == govaluate.PREFIX {
		j++
	}
	if j >= len(tokens) {
		return 0, fmt.Errorf("%w: missing denominator", ErrMalformedFormula)
	}

	switch tokens[j].Kind {
	case govaluate.NUMERIC, govaluate.VARIABLE:
		return j + 1, nil
	case govaluate.CLAUSE:
		depth := 0
		for k := j; k < len(tokens); k++ {
			switch tokens[k].Kind {
			case govaluate.CLAUSE:
				depth++
			case govaluate.CLAUSE_CLOSE:
				depth--
				if depth == 0 {
					return k + 1, nil
				}
			}
		}
		return 0, fmt.Errorf("%w: unbalanced parentheses", ErrMalformedFormula)
	default:
		return 0, fmt.Errorf("%w: unexpected denominator", ErrMalformedFormula)
	}
}

func applyOptions(value float64, opts Options) float64 {
	if opts.RoundTo != nil {
		value = Round(value, *opts.RoundTo)
	}
	if opts.Min != nil && value < *opts.Min {
		value = *opts.Min
	}
	if opts.Max != nil && value > *opts.Max {
		value = *opts.Max
	}
	return value
}

// Round rounds half away from zero to places decimals.
func Round(value float64, places int) float64 {
	if places < 0 {
		return value
	}
	pow := math.Pow(10, float64(places))
	return math.Round(value*pow) / pow
}

// Evaluate compiles and evaluates formula in one step.
func Evaluate(formula string, vars map[string]float64, opts Options) (float64, error) {
	expr, err := Compile(formula)
	if err != nil {
		return 0, err
	}
	return expr.Evaluate(vars, opts)
}
