package fhirpath_test

import (
	"testing"

	"github.com/fhirpath-go/fhirpath"
)

func TestExistenceFunctions(t *testing.T) {
	wantSingle(t, eval(t, "(true | true).allTrue()"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "(false | true).allTrue()"), fhirpath.Boolean(false))
	wantSingle(t, eval(t, "(false | true).anyTrue()"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "(false | false).allFalse()"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "(false | true).anyFalse()"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "(1 | 2).subsetOf(1 | 2 | 3)"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "(1 | 2 | 3).supersetOf(1 | 2)"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "(1 | 2).combine(2).isDistinct()"), fhirpath.Boolean(false))
	wantSingle(t, eval(t, "(1 | 2).not()"), fhirpath.Boolean(false))
}

func TestRepeat(t *testing.T) {
	// A chain that immediately bottoms out in empty should converge after
	// zero additional rounds, not loop forever.
	wantSingle(t, eval(t, "1.repeat({}).count()"), fhirpath.Integer(0))
}

func TestIntersectExcludeCombine(t *testing.T) {
	wantSingle(t, eval(t, "(1 | 2 | 3).intersect(2 | 3 | 4).count()"), fhirpath.Integer(2))
	wantSingle(t, eval(t, "(1 | 2 | 3).exclude(2 | 3).count()"), fhirpath.Integer(1))
	wantSingle(t, eval(t, "(1 | 2).combine(2 | 3).count()"), fhirpath.Integer(4))
}

func TestIif(t *testing.T) {
	wantSingle(t, eval(t, "iif(true, 'yes', 'no')"), fhirpath.String("yes"))
	wantSingle(t, eval(t, "iif(false, 'yes', 'no')"), fhirpath.String("no"))
	wantEmpty(t, eval(t, "iif(false, 'yes')"))
}

func TestConversionFunctions(t *testing.T) {
	wantSingle(t, eval(t, "'5'.toInteger()"), fhirpath.Integer(5))
	wantSingle(t, eval(t, "'true'.toBoolean()"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "5.toString()"), fhirpath.String("5"))
	wantSingle(t, eval(t, "'5'.convertsToInteger()"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "'abc'.convertsToInteger()"), fhirpath.Boolean(false))
	wantEmpty(t, eval(t, "'abc'.toInteger()"))
	wantEmpty(t, eval(t, "true.toDate()"))
	wantSingle(t, eval(t, "5.toLong()"), fhirpath.Long(5))

	d, ok, err := fhirpath.Singleton[fhirpath.Decimal](eval(t, "5.toDecimal()"))
	if err != nil || !ok {
		t.Fatalf("toDecimal(): ok=%v err=%v", ok, err)
	}
	if d.String() != "5" {
		t.Fatalf("got %q, want %q", d.String(), "5")
	}
}

func TestMathFunctions(t *testing.T) {
	wantSingle(t, eval(t, "(-5).abs()"), fhirpath.Integer(5))
	wantSingle(t, eval(t, "1.9.ceiling()"), fhirpath.Integer(2))
	wantSingle(t, eval(t, "1.1.floor()"), fhirpath.Integer(1))
	wantSingle(t, eval(t, "1.9.truncate()"), fhirpath.Integer(1))
	wantSingle(t, eval(t, "(-1.9).truncate()"), fhirpath.Integer(-1))
	wantSingle(t, eval(t, "4.sqrt() = 2.0"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "2.power(3)"), fhirpath.Integer(8))
	wantSingle(t, eval(t, "1.5.round(0)"), fhirpath.Integer(2))
}

func TestPrecisionAndBoundary(t *testing.T) {
	wantSingle(t, eval(t, "1.587.precision()"), fhirpath.Integer(3))
	wantSingle(t, eval(t, "1.precision()"), fhirpath.Integer(0))

	lo, ok, err := fhirpath.Singleton[fhirpath.Decimal](eval(t, "1.5.lowBoundary()"))
	if err != nil || !ok {
		t.Fatalf("lowBoundary(): ok=%v err=%v", ok, err)
	}
	hi, ok, err := fhirpath.Singleton[fhirpath.Decimal](eval(t, "1.5.highBoundary()"))
	if err != nil || !ok {
		t.Fatalf("highBoundary(): ok=%v err=%v", ok, err)
	}
	if c, _, _ := lo.Cmp(hi); c >= 0 {
		t.Fatalf("expected lowBoundary < highBoundary, got %v >= %v", lo, hi)
	}
}

func TestStringFunctions(t *testing.T) {
	wantSingle(t, eval(t, "'Hello'.upper()"), fhirpath.String("HELLO"))
	wantSingle(t, eval(t, "'Hello'.lower()"), fhirpath.String("hello"))
	wantSingle(t, eval(t, "'Hello'.length()"), fhirpath.Integer(5))
	wantSingle(t, eval(t, "'Hello'.substring(1, 3)"), fhirpath.String("ell"))
	wantSingle(t, eval(t, "'Hello'.startsWith('He')"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "'Hello'.endsWith('lo')"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "'Hello'.contains('ell')"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "'Hello'.replace('l', 'L')"), fhirpath.String("HeLLo"))
	wantSingle(t, eval(t, "'a,b,c'.split(',').count()"), fhirpath.Integer(3))
	wantSingle(t, eval(t, "('a' | 'b' | 'c').join(',')"), fhirpath.String("a,b,c"))
	wantSingle(t, eval(t, "'  hi  '.trim()"), fhirpath.String("hi"))
	wantSingle(t, eval(t, "'abc'.toChars().count()"), fhirpath.Integer(3))
	wantSingle(t, eval(t, "'Hello'.indexOf('l')"), fhirpath.Integer(2))
	wantSingle(t, eval(t, "'abc123'.matches('[a-z]+[0-9]+')"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "'abc'.encode('base64')"), fhirpath.String("YWJj"))
	wantSingle(t, eval(t, "'YWJj'.decode('base64')"), fhirpath.String("abc"))
	wantSingle(t, eval(t, "'<a>'.escape('html')"), fhirpath.String("&lt;a&gt;"))
}

func TestTypeFunction(t *testing.T) {
	result := eval(t, "(5).type()")
	ti, ok, err := fhirpath.Singleton[fhirpath.SimpleTypeInfo](result)
	if err != nil || !ok {
		t.Fatalf("expected a SimpleTypeInfo: ok=%v err=%v", ok, err)
	}
	qn, ok := ti.QualifiedName()
	if !ok || qn.String() != "System.Integer" {
		t.Fatalf("got %v, want System.Integer", qn)
	}
}

func TestTraceIsPassthrough(t *testing.T) {
	wantSingle(t, eval(t, "5.trace('label')"), fhirpath.Integer(5))
}

func TestDefineVariable(t *testing.T) {
	wantSingle(t, eval(t, "1.defineVariable('x', 5).select(%x)"), fhirpath.Integer(5))
}

func TestTodayAndNow(t *testing.T) {
	result := eval(t, "today()")
	if _, ok, err := fhirpath.Singleton[fhirpath.Date](result); err != nil || !ok {
		t.Fatalf("today(): ok=%v err=%v", ok, err)
	}
	result = eval(t, "now()")
	if _, ok, err := fhirpath.Singleton[fhirpath.DateTime](result); err != nil || !ok {
		t.Fatalf("now(): ok=%v err=%v", ok, err)
	}
}
