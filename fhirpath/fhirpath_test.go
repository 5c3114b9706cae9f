package fhirpath_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fhirpath-go/fhirpath"
)

func eval(t *testing.T, expr string) fhirpath.Collection {
	t.Helper()
	e, err := fhirpath.Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expr, err)
	}
	result, err := fhirpath.Evaluate(context.Background(), nil, e)
	if err != nil {
		t.Fatalf("Evaluate(%q): %v", expr, err)
	}
	return result
}

func evalErr(t *testing.T, expr string) error {
	t.Helper()
	e, err := fhirpath.Parse(expr)
	if err != nil {
		return err
	}
	_, err = fhirpath.Evaluate(context.Background(), nil, e)
	return err
}

type comparableElement interface {
	fhirpath.Element
	comparable
}

func wantSingle[T comparableElement](t *testing.T, c fhirpath.Collection, want T) {
	t.Helper()
	v, ok, err := fhirpath.Singleton[T](c)
	if err != nil {
		t.Fatalf("Singleton: %v", err)
	}
	if !ok {
		t.Fatalf("expected a singleton result, got %v", c)
	}
	if v != want {
		t.Fatalf("mismatch (-got +want):\n%s", cmp.Diff(v, want))
	}
}

func wantEmpty(t *testing.T, c fhirpath.Collection) {
	t.Helper()
	if len(c) != 0 {
		t.Fatalf("expected empty result, got %v", c)
	}
}

func TestLiterals(t *testing.T) {
	wantSingle(t, eval(t, "true"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "false"), fhirpath.Boolean(false))
	wantSingle(t, eval(t, "1"), fhirpath.Integer(1))
	wantSingle(t, eval(t, "1L"), fhirpath.Long(1))
	wantSingle(t, eval(t, "'hello'"), fhirpath.String("hello"))
	wantEmpty(t, eval(t, "{}"))

	d, ok, err := fhirpath.Singleton[fhirpath.Decimal](eval(t, "1.50"))
	if err != nil || !ok {
		t.Fatalf("expected a decimal singleton: ok=%v err=%v", ok, err)
	}
	if d.String() != "1.50" {
		t.Fatalf("got %q, want %q", d.String(), "1.50")
	}
}

func TestArithmetic(t *testing.T) {
	wantSingle(t, eval(t, "1 + 2"), fhirpath.Integer(3))
	wantSingle(t, eval(t, "2 * 3"), fhirpath.Integer(6))
	wantSingle(t, eval(t, "7 div 2"), fhirpath.Integer(3))
	wantSingle(t, eval(t, "7 mod 2"), fhirpath.Integer(1))
	wantSingle(t, eval(t, "'a' + 'b'"), fhirpath.String("ab"))
	wantSingle(t, eval(t, "'a' & 'b'"), fhirpath.String("ab"))
	wantEmpty(t, eval(t, "1 / 0"))
}

func TestIntegerOverflowReturnsEmpty(t *testing.T) {
	wantEmpty(t, eval(t, "2147483647 + 1"))
}

func TestBooleanLogic(t *testing.T) {
	wantSingle(t, eval(t, "true and false"), fhirpath.Boolean(false))
	wantSingle(t, eval(t, "true or false"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "true xor true"), fhirpath.Boolean(false))
	wantSingle(t, eval(t, "false implies true"), fhirpath.Boolean(true))

	// Three-valued logic: an empty operand only decides the result when the
	// other operand already does.
	wantSingle(t, eval(t, "false and {}"), fhirpath.Boolean(false))
	wantSingle(t, eval(t, "true or {}"), fhirpath.Boolean(true))
	wantEmpty(t, eval(t, "true and {}"))
	wantEmpty(t, eval(t, "false or {}"))
}

func TestCollectionFunctions(t *testing.T) {
	wantSingle(t, eval(t, "(1 | 2 | 3).count()"), fhirpath.Integer(3))
	wantSingle(t, eval(t, "(1 | 2 | 3).where($this > 1).count()"), fhirpath.Integer(2))
	wantSingle(t, eval(t, "(1 | 2 | 3).select($this * 2).count()"), fhirpath.Integer(3))
	wantSingle(t, eval(t, "(1 | 2 | 2 | 3).distinct().count()"), fhirpath.Integer(3))
	wantSingle(t, eval(t, "(1 | 2 | 3).first()"), fhirpath.Integer(1))
	wantSingle(t, eval(t, "(1 | 2 | 3).last()"), fhirpath.Integer(3))
	wantSingle(t, eval(t, "(1 | 2 | 3).skip(1).count()"), fhirpath.Integer(2))
	wantSingle(t, eval(t, "(1 | 2 | 3).take(2).count()"), fhirpath.Integer(2))
	wantSingle(t, eval(t, "{}.empty()"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "(1 | 2).exists()"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "(1 | 2 | 3).all($this > 0)"), fhirpath.Boolean(true))
}

func TestAggregate(t *testing.T) {
	wantSingle(t, eval(t, "(1 | 2 | 3 | 4).aggregate($this + $total, 0)"), fhirpath.Integer(10))
}

func TestSort(t *testing.T) {
	result := eval(t, "(3 | 1 | 2).sort()")
	if len(result) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(result))
	}
	wantSingle(t, fhirpath.Collection{result[0]}, fhirpath.Integer(1))
	wantSingle(t, fhirpath.Collection{result[1]}, fhirpath.Integer(2))
	wantSingle(t, fhirpath.Collection{result[2]}, fhirpath.Integer(3))
}

func TestTypeOperators(t *testing.T) {
	wantSingle(t, eval(t, "1 is Integer"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "1 is String"), fhirpath.Boolean(false))
	wantSingle(t, eval(t, "(1).as(Integer)"), fhirpath.Integer(1))
}

// TestTypePrecedenceLooserThanUnion locks in the relative precedence of
// `is`/`as` against `|`: union binds tighter, so `1 | 2 is Integer` parses
// as `(1 | 2) is Integer`, not `1 | (2 is Integer)`. `is` then applies to a
// two-element collection, which is a singleton error rather than a boolean.
func TestTypePrecedenceLooserThanUnion(t *testing.T) {
	if err := evalErr(t, "1 | 2 is Integer"); err == nil {
		t.Fatalf("expected a singleton error from (1 | 2) is Integer")
	}
}

func TestQuantityArithmetic(t *testing.T) {
	got := mustQuantity(t, "(4 'mg') + (2 'mg')")
	want := mustQuantity(t, "6 'mg'")
	if eq, ok := got.Equal(want); !ok || !eq {
		t.Fatalf("got %v, want %v", got, want)
	}
	if err := evalErr(t, "(4 'mg') + (2 's')"); err == nil {
		t.Fatalf("expected a type error adding quantities with incompatible units")
	}
}

func mustQuantity(t *testing.T, expr string) fhirpath.Quantity {
	t.Helper()
	v, ok, err := fhirpath.Singleton[fhirpath.Quantity](eval(t, expr))
	if err != nil || !ok {
		t.Fatalf("mustQuantity(%q): ok=%v err=%v", expr, ok, err)
	}
	return v
}

func TestDateTimeComparison(t *testing.T) {
	wantSingle(t, eval(t, "@2020-01-01 < @2020-01-02"), fhirpath.Boolean(true))
	wantEmpty(t, eval(t, "@2020-01 = @2020-01-01"))
}

func TestEmptyPropagation(t *testing.T) {
	wantEmpty(t, eval(t, "{} + 1"))
	wantEmpty(t, eval(t, "{}.where($this > 1)"))
}

func TestInvalidExpressionsError(t *testing.T) {
	if err := evalErr(t, "1 +"); err == nil {
		t.Fatalf("expected a parse error")
	}
	if err := evalErr(t, "(1 | 2).single()"); err == nil {
		t.Fatalf("expected a singleton error")
	}
}

// TestNestedAggregateIndependentTotal exercises an aggregate() nested
// inside another aggregate()'s own transform: each level's $total must be
// its own accumulator, never shared with the enclosing one.
func TestNestedAggregateIndependentTotal(t *testing.T) {
	expr := "(1 | 2).aggregate((10 | 20 | 30).aggregate($total + $this, 0) + $total + $this, 0)"
	wantSingle(t, eval(t, expr), fhirpath.Integer(123))
}

func evalWithEnv(t *testing.T, expr string, env map[string]fhirpath.Collection) (fhirpath.Collection, error) {
	t.Helper()
	e, err := fhirpath.Parse(expr)
	if err != nil {
		return nil, err
	}
	ctx := fhirpath.WithEnv(context.Background(), env)
	return fhirpath.Evaluate(ctx, nil, e)
}

func TestExternalConstants(t *testing.T) {
	env := map[string]fhirpath.Collection{
		"myString": {fhirpath.String("hello")},
		"nullVar":  nil,
		"my-var":   {fhirpath.String("hello")},
	}

	result, err := evalWithEnv(t, "%myString", env)
	if err != nil {
		t.Fatalf("%%myString: %v", err)
	}
	wantSingle(t, result, fhirpath.String("hello"))

	result, err = evalWithEnv(t, "%nullVar", env)
	if err != nil {
		t.Fatalf("%%nullVar: %v", err)
	}
	wantEmpty(t, result)

	if _, err := evalWithEnv(t, "%unknownVar", map[string]fhirpath.Collection{}); err == nil {
		t.Fatalf("expected a resolution error for %%unknownVar")
	}

	result, err = evalWithEnv(t, "%'my-var'", env)
	if err != nil {
		t.Fatalf("%%'my-var': %v", err)
	}
	wantSingle(t, result, fhirpath.String("hello"))

	if _, err := evalWithEnv(t, "%my-var", env); err == nil {
		t.Fatalf("expected %%my-var (unquoted) to fail to parse")
	}
}

func TestWhereFilter(t *testing.T) {
	result := eval(t, "(10 | 20 | 30).where($this > 15)")
	if len(result) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(result))
	}
	wantSingle(t, fhirpath.Collection{result[0]}, fhirpath.Integer(20))
	wantSingle(t, fhirpath.Collection{result[1]}, fhirpath.Integer(30))
}

func TestDistinctPreservesFirstOccurrenceOrder(t *testing.T) {
	result := eval(t, "('a' | 'b' | 'a').distinct()")
	if len(result) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(result))
	}
	wantSingle(t, fhirpath.Collection{result[0]}, fhirpath.String("a"))
	wantSingle(t, fhirpath.Collection{result[1]}, fhirpath.String("b"))
}

func TestDivModByZero(t *testing.T) {
	wantEmpty(t, eval(t, "4 div 0"))
	wantEmpty(t, eval(t, "4 mod 0"))
	wantEmpty(t, eval(t, "4 / 0"))
}

// TestQuantityCanonicalization covers the two scenarios canonicalisation
// exists for: stripping an SI prefix while combining units across an
// operator (scenario 5), and rewriting a definite-duration unit to its
// base-unit scalar for comparison (scenario 6).
func TestQuantityCanonicalization(t *testing.T) {
	got := mustQuantity(t, "1 'kg' * 2 'm'")
	want := mustQuantity(t, "2000 'g.m'")
	if eq, ok := got.Equal(want); !ok || !eq {
		t.Fatalf("got %v, want %v", got, want)
	}

	wantSingle(t, eval(t, "1 'h' = 3600 's'"), fhirpath.Boolean(true))
}
