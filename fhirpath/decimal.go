package fhirpath

import (
	"context"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Decimal is the FHIRPath System.Decimal value kind: an arbitrary-precision
// decimal backed by cockroachdb/apd, the same library the reference engine
// this module is patterned on uses for every decimal computation.
type Decimal struct {
	v *apd.Decimal
}

func newDecimalFromInt64(n int64) Decimal {
	return Decimal{v: apd.New(n, 0)}
}

// NewDecimal wraps an *apd.Decimal as a Decimal value.
func NewDecimal(v *apd.Decimal) Decimal { return Decimal{v: v} }

func (d Decimal) apd() *apd.Decimal {
	if d.v == nil {
		return apd.New(0, 0)
	}
	return d.v
}

func decimalEqualInt64(d Decimal, n int64) bool {
	return d.apd().Cmp(apd.New(n, 0)) == 0
}

func (d Decimal) Children(name ...string) Collection { return nil }

func (d Decimal) ToBoolean(explicit bool) (Boolean, bool, error) {
	if !explicit {
		return false, false, implicitConversionError[Decimal, Boolean](d)
	}
	switch {
	case decimalEqualInt64(d, 0):
		return false, true, nil
	case decimalEqualInt64(d, 1):
		return true, true, nil
	default:
		return false, false, nil
	}
}

func (d Decimal) ToString(explicit bool) (String, bool, error) {
	return String(d.apd().Text('f')), true, nil
}

func (d Decimal) ToInteger(explicit bool) (Integer, bool, error) {
	if !explicit {
		return 0, false, implicitConversionError[Decimal, Integer](d)
	}
	i, err := d.apd().Int64()
	if err != nil || i < -(1<<31) || i > (1<<31-1) {
		return 0, false, nil
	}
	return Integer(i), true, nil
}

func (d Decimal) ToLong(explicit bool) (Long, bool, error) {
	if !explicit {
		return 0, false, implicitConversionError[Decimal, Long](d)
	}
	i, err := d.apd().Int64()
	if err != nil {
		return 0, false, nil
	}
	return Long(i), true, nil
}

func (d Decimal) ToDecimal(explicit bool) (Decimal, bool, error) { return d, true, nil }

func (d Decimal) ToDate(bool) (Date, bool, error)         { return Date{}, false, conversionError[Decimal, Date]() }
func (d Decimal) ToTime(bool) (Time, bool, error)         { return Time{}, false, conversionError[Decimal, Time]() }
func (d Decimal) ToDateTime(bool) (DateTime, bool, error) { return DateTime{}, false, conversionError[Decimal, DateTime]() }

func (d Decimal) ToQuantity(explicit bool) (Quantity, bool, error) {
	return Quantity{Value: d, Unit: "1"}, true, nil
}

func (d Decimal) Equal(other Element) (bool, bool) {
	switch o := other.(type) {
	case Decimal:
		return d.apd().Cmp(o.apd()) == 0, true
	case Integer:
		return decimalEqualInt64(d, int64(o)), true
	case Long:
		return decimalEqualInt64(d, int64(o)), true
	default:
		return false, true
	}
}

func (d Decimal) Equivalent(other Element) bool {
	switch o := other.(type) {
	case Decimal:
		scale := d.Precision()
		if o.Precision() < scale {
			scale = o.Precision()
		}
		lo, hi := d.roundedTo(scale), o.roundedTo(scale)
		return lo.apd().Cmp(hi.apd()) == 0
	case Integer, Long:
		eq, ok := d.Equal(other)
		return ok && eq
	default:
		return false
	}
}

// roundedTo rounds d to scale fractional digits, the standard FHIRPath `~`
// rule of comparing decimals at the coarser of the two operands' precision.
func (d Decimal) roundedTo(scale int) Decimal {
	var rounded apd.Decimal
	rctx := defaultAPDContext.WithPrecision(defaultDecimalPrecision)
	rctx.Rounding = apd.RoundHalfEven
	if _, err := rctx.Quantize(&rounded, d.apd(), -int32(scale)); err != nil {
		return d
	}
	return Decimal{v: &rounded}
}

func (d Decimal) Cmp(other Element) (int, bool, error) {
	var od *apd.Decimal
	switch o := other.(type) {
	case Decimal:
		od = o.apd()
	case Integer:
		od = apd.New(int64(o), 0)
	case Long:
		od = apd.New(int64(o), 0)
	default:
		return 0, false, newTypeError("can not compare Decimal to %T", other)
	}
	return d.apd().Cmp(od), true, nil
}

func (d Decimal) Multiply(ctx context.Context, other Element) (Element, error) {
	od, err := decimalOperand(other)
	if err != nil {
		return nil, err
	}
	var res apd.Decimal
	if _, err := apdContextOf(ctx).Mul(&res, d.apd(), od); err != nil {
		return nil, newTypeError("decimal multiplication failed: %v", err)
	}
	return Decimal{v: &res}, nil
}

func (d Decimal) Divide(ctx context.Context, other Element) (Element, error) {
	od, err := decimalOperand(other)
	if err != nil {
		return nil, err
	}
	if od.IsZero() {
		return nil, nil
	}
	var res apd.Decimal
	if _, err := apdContextOf(ctx).Quo(&res, d.apd(), od); err != nil {
		return nil, newTypeError("decimal division failed: %v", err)
	}
	return Decimal{v: &res}, nil
}

func (d Decimal) Div(ctx context.Context, other Element) (Element, error) {
	od, err := decimalOperand(other)
	if err != nil {
		return nil, err
	}
	if od.IsZero() {
		return nil, nil
	}
	var res apd.Decimal
	if _, err := apdContextOf(ctx).QuoInteger(&res, d.apd(), od); err != nil {
		return nil, newTypeError("decimal integer division failed: %v", err)
	}
	return Decimal{v: &res}, nil
}

func (d Decimal) Mod(ctx context.Context, other Element) (Element, error) {
	od, err := decimalOperand(other)
	if err != nil {
		return nil, err
	}
	if od.IsZero() {
		return nil, nil
	}
	var res apd.Decimal
	if _, err := apdContextOf(ctx).Rem(&res, d.apd(), od); err != nil {
		return nil, newTypeError("decimal modulo failed: %v", err)
	}
	return Decimal{v: &res}, nil
}

func (d Decimal) Add(ctx context.Context, other Element) (Element, error) {
	od, err := decimalOperand(other)
	if err != nil {
		return nil, err
	}
	var res apd.Decimal
	if _, err := apdContextOf(ctx).Add(&res, d.apd(), od); err != nil {
		return nil, newTypeError("decimal addition failed: %v", err)
	}
	return Decimal{v: &res}, nil
}

func (d Decimal) Subtract(ctx context.Context, other Element) (Element, error) {
	od, err := decimalOperand(other)
	if err != nil {
		return nil, err
	}
	var res apd.Decimal
	if _, err := apdContextOf(ctx).Sub(&res, d.apd(), od); err != nil {
		return nil, newTypeError("decimal subtraction failed: %v", err)
	}
	return Decimal{v: &res}, nil
}

func decimalOperand(e Element) (*apd.Decimal, error) {
	switch o := e.(type) {
	case Decimal:
		return o.apd(), nil
	case Integer:
		return apd.New(int64(o), 0), nil
	case Long:
		return apd.New(int64(o), 0), nil
	default:
		return nil, newTypeError("arithmetic is not defined between Decimal and %T", e)
	}
}

func (d Decimal) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Decimal"}
}

func (d Decimal) String() string { return d.apd().Text('f') }

func (d Decimal) MarshalJSON() ([]byte, error) { return []byte(d.apd().Text('f')), nil }

// Precision returns the number of significant digits after the decimal
// point in the literal's textual form, used by lowBoundary/highBoundary and
// by the precision() function.
func (d Decimal) Precision() int {
	text := d.apd().Text('f')
	if i := strings.IndexByte(text, '.'); i >= 0 {
		return len(text) - i - 1
	}
	return 0
}

// LowBoundary/HighBoundary return the smallest/largest value consistent
// with the decimal's reported precision, widened to targetScale fractional
// digits (lowBoundary(precision) / highBoundary(precision) arguments). A
// negative targetScale means one digit past the decimal's own precision, so
// 1.5 has boundaries 1.45 and 1.55.
func (d Decimal) LowBoundary(targetScale int) Decimal {
	return d.boundary(targetScale, false)
}

func (d Decimal) HighBoundary(targetScale int) Decimal {
	return d.boundary(targetScale, true)
}

func (d Decimal) boundary(targetScale int, high bool) Decimal {
	if targetScale < 0 {
		targetScale = d.Precision() + 1
	}
	half := apd.New(5, -int32(d.Precision())-1)
	var widened apd.Decimal
	if high {
		defaultAPDContext.Add(&widened, d.apd(), half)
	} else {
		defaultAPDContext.Sub(&widened, d.apd(), half)
	}
	var rounded apd.Decimal
	rctx := defaultAPDContext.WithPrecision(uint32(targetScale) + 16)
	rctx.Quantize(&rounded, &widened, -int32(targetScale))
	return Decimal{v: &rounded}
}
