// Package condition compiles and evaluates the flow condition language:
// a single comparison of the form `<field> <op> <literal>`.
//
//	amount > 50000
//	discount >= 15%
//	customer.tier == "gold"
//
// Literals are numbers, quoted strings or percentages (15% == 0.15).
// The empty expression always matches.
package condition

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrSyntax       = errors.New("condition syntax error")
	ErrMissingField = errors.New("condition field missing from document")
	ErrTypeMismatch = errors.New("condition type mismatch")
)

type Operator string

const (
	OpGT  Operator = ">"
	OpLT  Operator = "<"
	OpGTE Operator = ">="
	OpLTE Operator = "<="
	OpEQ  Operator = "=="
	OpNE  Operator = "!="
)

type LiteralKind int

const (
	LiteralNumber LiteralKind = iota
	LiteralString
)

type Literal struct {
	Kind   LiteralKind
	Number float64
	Text   string
}

func (l Literal) String() string {
	if l.Kind == LiteralString {
		return strconv.Quote(l.Text)
	}
	return strconv.FormatFloat(l.Number, 'g', -1, 64)
}

// Expression is a compiled condition. The zero-field expression matches
// every document.
type Expression struct {
	Field   string
	Op      Operator
	Literal Literal

	path []string
}

// Always reports whether the expression is the empty condition.
func (e *Expression) Always() bool {
	return e == nil || e.Field == ""
}

// String renders the canonical form. Two conditions with the same canonical
// form select exactly the same documents.
func (e *Expression) String() string {
	if e.Always() {
		return ""
	}
	return fmt.Sprintf("%s %s %s", e.Field, e.Op, e.Literal)
}

// Compile parses expr once so it can be evaluated many times.
func Compile(expr string) (*Expression, error) {
	src := strings.TrimSpace(expr)
	if src == "" {
		return &Expression{}, nil
	}

	p := &parser{src: src}

	field := p.field()
	if field == "" {
		return nil, fmt.Errorf("%w: expected field name at offset %d in %q", ErrSyntax, p.pos, expr)
	}
	p.skipSpace()

	op, ok := p.operator()
	if !ok {
		return nil, fmt.Errorf("%w: expected operator after %q in %q", ErrSyntax, field, expr)
	}
	p.skipSpace()

	lit, err := p.literal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v in %q", ErrSyntax, err, expr)
	}
	p.skipSpace()

	if !p.done() {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d in %q", ErrSyntax, p.src[p.pos:], p.pos, expr)
	}

	return &Expression{
		Field:   field,
		Op:      op,
		Literal: lit,
		path:    strings.Split(field, "."),
	}, nil
}

// Evaluate compiles and evaluates expr against doc in one call.
func Evaluate(expr string, doc map[string]any) (bool, error) {
	e, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return e.Eval(doc)
}

type parser struct {
	src string
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.done() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) field() string {
	start := p.pos
	for !p.done() {
		c := p.src[p.pos]
		isAlpha := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if p.pos == start && !isAlpha {
			return ""
		}
		if !isAlpha && !isDigit && c != '.' {
			break
		}
		p.pos++
	}
	f := p.src[start:p.pos]
	if strings.HasSuffix(f, ".") || strings.Contains(f, "..") {
		p.pos = start
		return ""
	}
	return f
}

func (p *parser) operator() (Operator, bool) {
	rest := p.src[p.pos:]
	for _, op := range []Operator{OpGTE, OpLTE, OpEQ, OpNE, OpGT, OpLT} {
		if strings.HasPrefix(rest, string(op)) {
			p.pos += len(op)
			return op, true
		}
	}
	return "", false
}

func (p *parser) literal() (Literal, error) {
	if p.done() {
		return Literal{}, errors.New("expected literal")
	}

	if q := p.src[p.pos]; q == '"' || q == '\'' {
		return p.quoted(q)
	}

	start := p.pos
	for !p.done() {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' || c == '%' {
			break
		}
		p.pos++
	}
	raw := p.src[start:p.pos]
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return Literal{}, fmt.Errorf("invalid number %q", raw)
	}

	if !p.done() && p.src[p.pos] == '%' {
		p.pos++
		n /= 100
	}
	return Literal{Kind: LiteralNumber, Number: n}, nil
}

func (p *parser) quoted(q byte) (Literal, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for !p.done() {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			b.WriteByte(p.src[p.pos+1])
			p.pos += 2
		case c == q:
			p.pos++
			return Literal{Kind: LiteralString, Text: b.String()}, nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return Literal{}, errors.New("unterminated string literal")
}
