package condition

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		wantCanon string
		wantErr   bool
	}{
		{name: "Empty", expr: "", wantCanon: ""},
		{name: "Whitespace Only", expr: "   ", wantCanon: ""},
		{name: "Greater Than", expr: "amount > 50000", wantCanon: "amount > 50000"},
		{name: "No Spaces", expr: "amount>=10", wantCanon: "amount >= 10"},
		{name: "Percentage", expr: "discount <= 15%", wantCanon: "discount <= 0.15"},
		{name: "Double Quoted", expr: `status == "draft"`, wantCanon: `status == "draft"`},
		{name: "Single Quoted", expr: `status != 'void'`, wantCanon: `status != "void"`},
		{name: "Escaped Quote", expr: `note == "say \"hi\""`, wantCanon: `note == "say \"hi\""`},
		{name: "Dotted Field", expr: "supplier.rating < 3", wantCanon: "supplier.rating < 3"},
		{name: "Negative Number", expr: "balance < -100.5", wantCanon: "balance < -100.5"},
		{name: "Missing Operator", expr: "amount 50000", wantErr: true},
		{name: "Single Equals", expr: "amount = 5", wantErr: true},
		{name: "Missing Literal", expr: "amount >", wantErr: true},
		{name: "Bad Number", expr: "amount > 12abc", wantErr: true},
		{name: "NaN Literal", expr: "amount > NaN", wantErr: true},
		{name: "Trailing Tokens", expr: "amount > 5 and x < 3", wantErr: true},
		{name: "Unterminated String", expr: `status == "open`, wantErr: true},
		{name: "Leading Digit Field", expr: "1amount > 5", wantErr: true},
		{name: "Trailing Dot Field", expr: "supplier. > 5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Compile(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrSyntax) {
					t.Errorf("Compile(%q) error = %v, want ErrSyntax", tt.expr, err)
				}
				return
			}
			if got.String() != tt.wantCanon {
				t.Errorf("Compile(%q).String() = %q, want %q", tt.expr, got.String(), tt.wantCanon)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	doc := map[string]any{
		"amount":   75000.0,
		"qty":      int64(12),
		"discount": 0.2,
		"status":   "draft",
		"total":    json.Number("199.99"),
		"supplier": map[string]any{"rating": 2, "name": "Acme"},
		"flag":     true,
		"nothing":  nil,
	}

	tests := []struct {
		name    string
		expr    string
		want    bool
		wantErr error
	}{
		{name: "Empty Always Matches", expr: "", want: true},
		{name: "GT True", expr: "amount > 50000", want: true},
		{name: "GT False", expr: "amount > 80000", want: false},
		{name: "GTE Boundary", expr: "amount >= 75000", want: true},
		{name: "LT Int64 Field", expr: "qty < 20", want: true},
		{name: "LTE False", expr: "qty <= 11", want: false},
		{name: "EQ Number", expr: "qty == 12", want: true},
		{name: "NE Number", expr: "qty != 12", want: false},
		{name: "Percentage", expr: "discount > 15%", want: true},
		{name: "Json Number", expr: "total < 200", want: true},
		{name: "String EQ", expr: `status == "draft"`, want: true},
		{name: "String NE", expr: `status != "draft"`, want: false},
		{name: "String Ordering", expr: `status < "e"`, want: true},
		{name: "Nested Field", expr: "supplier.rating < 3", want: true},
		{name: "Nested String", expr: `supplier.name == "Acme"`, want: true},
		{name: "Missing Field", expr: "price > 5", wantErr: ErrMissingField},
		{name: "Nil Field", expr: "nothing == 1", wantErr: ErrMissingField},
		{name: "Missing Nested", expr: "supplier.city == \"x\"", wantErr: ErrMissingField},
		{name: "Path Through Scalar", expr: "amount.cents > 1", wantErr: ErrMissingField},
		{name: "String Against Number", expr: "status > 5", wantErr: ErrTypeMismatch},
		{name: "Number Against String", expr: `amount == "75000"`, wantErr: ErrTypeMismatch},
		{name: "Bool Field", expr: "flag == 1", wantErr: ErrTypeMismatch},
		{name: "Syntax Error", expr: "amount >> 5", wantErr: ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, doc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Evaluate(%q) error = %v, want %v", tt.expr, err, tt.wantErr)
				}
				if got {
					t.Errorf("Evaluate(%q) = true alongside an error", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate(%q) unexpected error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCacheReusesCompiledExpression(t *testing.T) {
	c := NewCache()

	first, err := c.Compile("amount > 10")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	second, err := c.Compile("amount > 10")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if first != second {
		t.Errorf("expected cached *Expression to be reused")
	}

	if _, err := c.Compile("amount >"); !errors.Is(err, ErrSyntax) {
		t.Errorf("expected cached syntax error, got %v", err)
	}
	if _, err := c.Evaluate("amount >", map[string]any{"amount": 1}); !errors.Is(err, ErrSyntax) {
		t.Errorf("expected syntax error from Evaluate, got %v", err)
	}

	ok, err := c.Evaluate("amount > 10", map[string]any{"amount": 11})
	if err != nil || !ok {
		t.Errorf("Evaluate = %v, %v; want true, nil", ok, err)
	}
}
