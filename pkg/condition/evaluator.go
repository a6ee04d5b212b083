package condition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Eval evaluates the expression against a document snapshot. A missing field
// or a value whose type does not fit the literal is an error, never a match.
func (e *Expression) Eval(doc map[string]any) (bool, error) {
	if e.Always() {
		return true, nil
	}

	val, ok := lookup(doc, e.path)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingField, e.Field)
	}

	switch e.Literal.Kind {
	case LiteralNumber:
		n, ok := toFloat(val)
		if !ok {
			return false, fmt.Errorf("%w: %s is %T, want number", ErrTypeMismatch, e.Field, val)
		}
		return compare(cmpFloat(n, e.Literal.Number), e.Op), nil
	case LiteralString:
		s, ok := val.(string)
		if !ok {
			return false, fmt.Errorf("%w: %s is %T, want string", ErrTypeMismatch, e.Field, val)
		}
		return compare(strings.Compare(s, e.Literal.Text), e.Op), nil
	default:
		return false, fmt.Errorf("%w: unknown literal kind", ErrTypeMismatch)
	}
}

func lookup(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compare(c int, op Operator) bool {
	switch op {
	case OpGT:
		return c > 0
	case OpLT:
		return c < 0
	case OpGTE:
		return c >= 0
	case OpLTE:
		return c <= 0
	case OpEQ:
		return c == 0
	case OpNE:
		return c != 0
	default:
		return false
	}
}
