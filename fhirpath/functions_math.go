package fhirpath

import (
	"context"

	"github.com/cockroachdb/apd/v3"
)

func init() {
	defaultFunctions["abs"] = fnAbs
	defaultFunctions["ceiling"] = fnCeiling
	defaultFunctions["floor"] = fnFloor
	defaultFunctions["truncate"] = fnTruncate
	defaultFunctions["round"] = fnRound
	defaultFunctions["exp"] = fnExp
	defaultFunctions["ln"] = fnLn
	defaultFunctions["log"] = fnLog
	defaultFunctions["power"] = fnPower
	defaultFunctions["sqrt"] = fnSqrt
	defaultFunctions["precision"] = fnPrecision
	defaultFunctions["lowBoundary"] = fnLowBoundary
	defaultFunctions["highBoundary"] = fnHighBoundary
	defaultFunctions["comparable"] = fnComparable
}

// thisDecimal coerces `this` to a singleton numeric value (Integer, Long, or
// Decimal) represented as a Decimal for the math builtins, which the
// FHIRPath spec defines uniformly over all three.
func thisDecimal(this Collection) (Decimal, bool, error) {
	v, ok, err := Singleton[Element](this)
	if err != nil || !ok {
		return Decimal{}, false, err
	}
	switch e := v.(type) {
	case Decimal:
		return e, true, nil
	case Integer:
		d, _, _ := e.ToDecimal(true)
		return d, true, nil
	case Long:
		d, _, _ := e.ToDecimal(true)
		return d, true, nil
	default:
		return Decimal{}, false, newTypeError("expected a numeric value, found %T", v)
	}
}

// wasInteger reports whether `this` held an Integer rather than a Long or
// Decimal, so abs()/truncate() etc. can preserve the input's value kind.
func wasInteger(this Collection) bool {
	v, ok, _ := Singleton[Element](this)
	if !ok {
		return false
	}
	_, isInt := v.(Integer)
	return isInt
}

func wasLong(this Collection) bool {
	v, ok, _ := Singleton[Element](this)
	if !ok {
		return false
	}
	_, isLong := v.(Long)
	return isLong
}

func decimalResult(this Collection, d Decimal) Element {
	switch {
	case wasInteger(this):
		if iv, ierr := d.apd().Int64(); ierr == nil && iv >= -(1<<31) && iv <= (1<<31-1) {
			return Integer(iv)
		}
	case wasLong(this):
		if iv, ierr := d.apd().Int64(); ierr == nil {
			return Long(iv)
		}
	}
	return d
}

func fnAbs(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	d, ok, err := thisDecimal(this)
	if err != nil || !ok {
		return nil, err
	}
	v, ok, err := Singleton[Element](this)
	if err != nil || !ok {
		return nil, err
	}
	if q, isQuantity := v.(Quantity); isQuantity {
		abs := new(apd.Decimal)
		abs.Abs(q.Value.apd())
		return Collection{Quantity{Value: Decimal{v: abs}, Unit: q.Unit}}, nil
	}
	abs := new(apd.Decimal)
	abs.Abs(d.apd())
	return Collection{decimalResult(this, Decimal{v: abs})}, nil
}

func fnCeiling(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	if wasInteger(this) || wasLong(this) {
		return this, nil
	}
	d, ok, err := thisDecimal(this)
	if err != nil || !ok {
		return nil, err
	}
	r := new(apd.Decimal)
	_, err = apdContextOf(ctx).Ceil(r, d.apd())
	if err != nil {
		return nil, newTypeError("ceiling(): %v", err)
	}
	iv, err := r.Int64()
	if err != nil {
		return nil, newTypeError("ceiling(): result out of range")
	}
	return Collection{Integer(iv)}, nil
}

func fnFloor(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	if wasInteger(this) || wasLong(this) {
		return this, nil
	}
	d, ok, err := thisDecimal(this)
	if err != nil || !ok {
		return nil, err
	}
	r := new(apd.Decimal)
	_, err = apdContextOf(ctx).Floor(r, d.apd())
	if err != nil {
		return nil, newTypeError("floor(): %v", err)
	}
	iv, err := r.Int64()
	if err != nil {
		return nil, newTypeError("floor(): result out of range")
	}
	return Collection{Integer(iv)}, nil
}

func fnTruncate(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	if wasInteger(this) || wasLong(this) {
		return this, nil
	}
	d, ok, err := thisDecimal(this)
	if err != nil || !ok {
		return nil, err
	}
	// Format and cut at the decimal point rather than rounding, since
	// truncate() always moves toward zero regardless of sign.
	text := d.apd().Text('f')
	dot := -1
	for i, ch := range text {
		if ch == '.' {
			dot = i
			break
		}
	}
	truncated := text
	if dot >= 0 {
		truncated = text[:dot]
	}
	n, _, parseErr := apd.NewFromString(truncated)
	if parseErr != nil {
		return nil, newTypeError("truncate(): %v", parseErr)
	}
	iv2, convErr := n.Int64()
	if convErr != nil {
		return nil, newTypeError("truncate(): result out of range")
	}
	return Collection{Integer(iv2)}, nil
}

func fnRound(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	d, ok, err := thisDecimal(this)
	if err != nil || !ok {
		return nil, err
	}
	precision := 0
	if args.count > 0 {
		precision, err = intArg(ctx, this, args, 0)
		if err != nil {
			return nil, err
		}
	}
	rctx := apdContextOf(ctx).WithPrecision(defaultDecimalPrecision)
	rctx.Rounding = apd.RoundHalfUp
	scaled := new(apd.Decimal)
	_, err = rctx.Quantize(scaled, d.apd(), int32(-precision))
	if err != nil {
		return nil, newTypeError("round(): %v", err)
	}
	return Collection{decimalOrInt(scaled, precision)}, nil
}

func decimalOrInt(d *apd.Decimal, precision int) Element {
	if precision <= 0 {
		if iv, err := d.Int64(); err == nil {
			return Integer(iv)
		}
	}
	return Decimal{v: d}
}

func fnExp(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return unaryMath(ctx, this, func(c *apd.Context, r, d *apd.Decimal) (apd.Condition, error) { return c.Exp(r, d) })
}

func fnLn(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return unaryMath(ctx, this, func(c *apd.Context, r, d *apd.Decimal) (apd.Condition, error) { return c.Ln(r, d) })
}

func fnSqrt(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return unaryMath(ctx, this, func(c *apd.Context, r, d *apd.Decimal) (apd.Condition, error) { return c.Sqrt(r, d) })
}

func unaryMath(ctx context.Context, this Collection, op func(*apd.Context, *apd.Decimal, *apd.Decimal) (apd.Condition, error)) (Collection, error) {
	d, ok, err := thisDecimal(this)
	if err != nil || !ok {
		return nil, err
	}
	r := new(apd.Decimal)
	_, err = op(apdContextOf(ctx), r, d.apd())
	if err != nil {
		return nil, nil
	}
	return Collection{Decimal{v: r}}, nil
}

func fnLog(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	d, ok, err := thisDecimal(this)
	if err != nil || !ok {
		return nil, err
	}
	baseColl, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	base, ok, err := Singleton[Element](baseColl)
	if err != nil || !ok {
		return nil, err
	}
	baseD, ok := asDecimalScalar(base)
	if !ok {
		return nil, newTypeError("log(): base must be numeric")
	}
	lnVal := new(apd.Decimal)
	if _, err := apdContextOf(ctx).Ln(lnVal, d.apd()); err != nil {
		return nil, nil
	}
	lnBase := new(apd.Decimal)
	if _, err := apdContextOf(ctx).Ln(lnBase, baseD.apd()); err != nil {
		return nil, nil
	}
	r := new(apd.Decimal)
	if _, err := apdContextOf(ctx).Quo(r, lnVal, lnBase); err != nil {
		return nil, nil
	}
	return Collection{Decimal{v: r}}, nil
}

func fnPower(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	d, ok, err := thisDecimal(this)
	if err != nil || !ok {
		return nil, err
	}
	expColl, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	exp, ok, err := Singleton[Element](expColl)
	if err != nil || !ok {
		return nil, err
	}
	expD, ok := asDecimalScalar(exp)
	if !ok {
		return nil, newTypeError("power(): exponent must be numeric")
	}
	r := new(apd.Decimal)
	_, err = apdContextOf(ctx).Pow(r, d.apd(), expD.apd())
	if err != nil {
		return nil, nil
	}
	return Collection{decimalResult(this, Decimal{v: r})}, nil
}

func fnPrecision(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	v, ok, err := Singleton[Element](this)
	if err != nil || !ok {
		return nil, err
	}
	switch e := v.(type) {
	case Decimal:
		return Collection{Integer(e.Precision())}, nil
	case Integer, Long:
		return Collection{Integer(0)}, nil
	default:
		return nil, newTypeError("precision() is not defined for %T", v)
	}
}

func fnLowBoundary(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return boundaryFn(ctx, this, args, true)
}

func fnHighBoundary(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return boundaryFn(ctx, this, args, false)
}

func boundaryFn(ctx context.Context, this Collection, args functionArgs, low bool) (Collection, error) {
	v, ok, err := Singleton[Element](this)
	if err != nil || !ok {
		return nil, err
	}
	targetScale := -1
	if args.count > 0 {
		targetScale, err = intArg(ctx, this, args, 0)
		if err != nil {
			return nil, err
		}
	}
	switch e := v.(type) {
	case Decimal:
		if low {
			return Collection{e.LowBoundary(targetScale)}, nil
		}
		return Collection{e.HighBoundary(targetScale)}, nil
	case Quantity:
		var b Decimal
		if low {
			b = e.Value.LowBoundary(targetScale)
		} else {
			b = e.Value.HighBoundary(targetScale)
		}
		return Collection{Quantity{Value: b, Unit: e.Unit}}, nil
	case Integer, Long:
		return Collection{v}, nil
	default:
		return nil, newTypeError("lowBoundary/highBoundary is not defined for %T", v)
	}
}

func fnComparable(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	v, ok, err := Singleton[Quantity](this)
	if err != nil || !ok {
		return nil, err
	}
	other, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	o, ok, err := Singleton[Quantity](other)
	if err != nil || !ok {
		return nil, err
	}
	return Collection{Boolean(v.Comparable(o))}, nil
}
