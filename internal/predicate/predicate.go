package predicate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ScoreField is the reserved field name predicates use to reference the
// holder's composite score on the product's scale.
const ScoreField = "score"

// Op is a comparison operator in a predicate expression.
type Op string

const (
	OpGT Op = ">"
	OpGE Op = ">="
	OpLT Op = "<"
	OpLE Op = "<="
	OpEQ Op = "=="
)

// ErrInvalidPredicate indicates predicate text that does not parse.
var ErrInvalidPredicate = errors.New("invalid predicate")

// Predicate is a boolean assertion over the holder's score or credential
// attributes. Flag predicates are bare attribute names asserting the
// attribute equals "true".
type Predicate struct {
	Text  string
	Field string
	Op    Op
	Value float64
	Flag  bool
}

// Parse reads predicate text of the form "field op number" or a bare flag
// name, e.g. "score > 600", "dti < 0.40", "income_verified".
func Parse(text string) (Predicate, error) {
	fields := strings.Fields(text)
	switch len(fields) {
	case 1:
		name := fields[0]
		if name == ScoreField {
			return Predicate{}, fmt.Errorf("%q: score cannot be a flag: %w", text, ErrInvalidPredicate)
		}
		return Predicate{Text: text, Field: name, Flag: true}, nil
	case 3:
		op := Op(fields[1])
		switch op {
		case OpGT, OpGE, OpLT, OpLE, OpEQ:
		default:
			return Predicate{}, fmt.Errorf("%q: unknown operator %q: %w", text, fields[1], ErrInvalidPredicate)
		}
		value, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return Predicate{}, fmt.Errorf("%q: %w", text, ErrInvalidPredicate)
		}
		return Predicate{Text: text, Field: fields[0], Op: op, Value: value}, nil
	default:
		return Predicate{}, fmt.Errorf("%q: %w", text, ErrInvalidPredicate)
	}
}

// ParseAll parses an ordered predicate list, failing on the first bad entry.
func ParseAll(texts []string) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(texts))
	for _, text := range texts {
		p, err := Parse(text)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// Eval decides the predicate against a composite score and the merged
// credential attributes. A missing attribute evaluates to unsatisfied rather
// than erroring, so a proof can still enumerate every outcome.
func (p Predicate) Eval(composite int, attrs map[string]string) bool {
	if p.Flag {
		return attrs[p.Field] == "true"
	}

	var lhs float64
	if p.Field == ScoreField {
		lhs = float64(composite)
	} else {
		raw, ok := attrs[p.Field]
		if !ok {
			return false
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}
		lhs = value
	}

	switch p.Op {
	case OpGT:
		return lhs > p.Value
	case OpGE:
		return lhs >= p.Value
	case OpLT:
		return lhs < p.Value
	case OpLE:
		return lhs <= p.Value
	case OpEQ:
		return lhs == p.Value
	default:
		return false
	}
}
