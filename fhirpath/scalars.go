package fhirpath

import (
	"context"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/fhirpath-go/fhirpath/internal/overflow"
)

// Boolean is the FHIRPath System.Boolean value kind.
type Boolean bool

func (b Boolean) Children(name ...string) Collection { return nil }

func (b Boolean) ToBoolean(explicit bool) (Boolean, bool, error) { return b, true, nil }

func (b Boolean) ToString(explicit bool) (String, bool, error) {
	if b {
		return "true", true, nil
	}
	return "false", true, nil
}

func (b Boolean) ToInteger(explicit bool) (Integer, bool, error) {
	if !explicit {
		return 0, false, implicitConversionError[Boolean, Integer](b)
	}
	if b {
		return 1, true, nil
	}
	return 0, true, nil
}

func (b Boolean) ToLong(explicit bool) (Long, bool, error) {
	if !explicit {
		return 0, false, implicitConversionError[Boolean, Long](b)
	}
	if b {
		return 1, true, nil
	}
	return 0, true, nil
}

func (b Boolean) ToDecimal(explicit bool) (Decimal, bool, error) {
	if !explicit {
		return Decimal{}, false, implicitConversionError[Boolean, Decimal](b)
	}
	if b {
		return newDecimalFromInt64(1), true, nil
	}
	return newDecimalFromInt64(0), true, nil
}

func (b Boolean) ToDate(bool) (Date, bool, error)         { return Date{}, false, conversionError[Boolean, Date]() }
func (b Boolean) ToTime(bool) (Time, bool, error)         { return Time{}, false, conversionError[Boolean, Time]() }
func (b Boolean) ToDateTime(bool) (DateTime, bool, error) { return DateTime{}, false, conversionError[Boolean, DateTime]() }
func (b Boolean) ToQuantity(bool) (Quantity, bool, error) { return Quantity{}, false, conversionError[Boolean, Quantity]() }

func (b Boolean) Equal(other Element) (bool, bool) {
	o, ok := other.(Boolean)
	if !ok {
		return false, true
	}
	return b == o, true
}

func (b Boolean) Equivalent(other Element) bool {
	eq, ok := b.Equal(other)
	return ok && eq
}

func (b Boolean) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Boolean"}
}

func (b Boolean) String() string {
	return strconv.FormatBool(bool(b))
}

func (b Boolean) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatBool(bool(b))), nil
}

// String is the FHIRPath System.String value kind.
type String string

func (s String) Children(name ...string) Collection { return nil }

func (s String) ToBoolean(explicit bool) (Boolean, bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "true", "t", "yes", "y", "1", "1.0":
		return true, true, nil
	case "false", "f", "no", "n", "0", "0.0":
		return false, true, nil
	default:
		return false, false, nil
	}
}

func (s String) ToString(explicit bool) (String, bool, error) { return s, true, nil }

func (s String) ToInteger(explicit bool) (Integer, bool, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 32)
	if err != nil {
		return 0, false, nil
	}
	return Integer(n), true, nil
}

func (s String) ToLong(explicit bool) (Long, bool, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return Long(n), true, nil
}

func (s String) ToDecimal(explicit bool) (Decimal, bool, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(string(s)))
	if err != nil {
		return Decimal{}, false, nil
	}
	return Decimal{v: d}, true, nil
}

func (s String) ToDate(explicit bool) (Date, bool, error) {
	d, ok := parseDate(string(s))
	return d, ok, nil
}

func (s String) ToTime(explicit bool) (Time, bool, error) {
	t, ok := parseTime(string(s))
	return t, ok, nil
}

func (s String) ToDateTime(explicit bool) (DateTime, bool, error) {
	dt, ok := parseDateTime(string(s))
	return dt, ok, nil
}

func (s String) ToQuantity(explicit bool) (Quantity, bool, error) {
	q, ok := parseQuantityLiteralString(string(s))
	if !ok {
		return Quantity{}, false, nil
	}
	return q, true, nil
}

func (s String) Equal(other Element) (bool, bool) {
	o, ok := other.(String)
	if !ok {
		return false, true
	}
	return s == o, true
}

func (s String) Equivalent(other Element) bool {
	o, ok := other.(String)
	if !ok {
		return false
	}
	return normalizeForEquivalence(string(s)) == normalizeForEquivalence(string(o))
}

func normalizeForEquivalence(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (s String) Cmp(other Element) (int, bool, error) {
	o, ok := other.(String)
	if !ok {
		return 0, false, newTypeError("can not compare String to %T", other)
	}
	return strings.Compare(string(s), string(o)), true, nil
}

func (s String) Add(ctx context.Context, other Element) (Element, error) {
	o, ok := other.(String)
	if !ok {
		return nil, newTypeError("'+' is not defined for String and %T", other)
	}
	return s + o, nil
}

func (s String) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "String"}
}

func (s String) String() string { return string(s) }

func (s String) MarshalJSON() ([]byte, error) {
	return marshalString(escapeFHIRPathString(string(s)))
}

// Integer is the FHIRPath System.Integer value kind, a fixed-width 32-bit
// signed integer. Arithmetic overflow returns empty rather than wrapping.
type Integer int32

func (i Integer) Children(name ...string) Collection { return nil }

func (i Integer) ToBoolean(explicit bool) (Boolean, bool, error) {
	if !explicit {
		return false, false, implicitConversionError[Integer, Boolean](i)
	}
	switch i {
	case 0:
		return false, true, nil
	case 1:
		return true, true, nil
	default:
		return false, false, nil
	}
}

func (i Integer) ToString(explicit bool) (String, bool, error) {
	return String(strconv.Itoa(int(i))), true, nil
}

func (i Integer) ToInteger(explicit bool) (Integer, bool, error) { return i, true, nil }

func (i Integer) ToLong(explicit bool) (Long, bool, error) { return Long(i), true, nil }

func (i Integer) ToDecimal(explicit bool) (Decimal, bool, error) {
	return newDecimalFromInt64(int64(i)), true, nil
}

func (i Integer) ToDate(bool) (Date, bool, error)         { return Date{}, false, conversionError[Integer, Date]() }
func (i Integer) ToTime(bool) (Time, bool, error)         { return Time{}, false, conversionError[Integer, Time]() }
func (i Integer) ToDateTime(bool) (DateTime, bool, error) { return DateTime{}, false, conversionError[Integer, DateTime]() }
func (i Integer) ToQuantity(explicit bool) (Quantity, bool, error) {
	return Quantity{Value: newDecimalFromInt64(int64(i)), Unit: "1"}, true, nil
}

func (i Integer) Equal(other Element) (bool, bool) {
	switch o := other.(type) {
	case Integer:
		return i == o, true
	case Long:
		return Long(i) == o, true
	case Decimal:
		return decimalEqualInt64(o, int64(i)), true
	default:
		return false, true
	}
}

func (i Integer) Equivalent(other Element) bool {
	eq, ok := i.Equal(other)
	return ok && eq
}

func (i Integer) Cmp(other Element) (int, bool, error) {
	switch o := other.(type) {
	case Integer:
		return cmpOrdered(int64(i), int64(o)), true, nil
	case Long:
		return cmpOrdered(int64(i), int64(o)), true, nil
	case Decimal:
		return i.toDecimalUnchecked().Cmp(o)
	default:
		return 0, false, newTypeError("can not compare Integer to %T", other)
	}
}

func (i Integer) toDecimalUnchecked() Decimal {
	d, _, _ := i.ToDecimal(true)
	return d
}

func (i Integer) Multiply(ctx context.Context, other Element) (Element, error) {
	return integerArith(other, func(a, b int32) (int32, bool) { return overflow.Mul32(a, b) }, i,
		func(a, b Decimal) (Element, error) { return a.Multiply(ctx, b) },
		func(a, b Long) (Element, error) { return a.Multiply(ctx, b) })
}

func (i Integer) Divide(ctx context.Context, other Element) (Element, error) {
	return i.toDecimalUnchecked().Divide(ctx, other)
}

func (i Integer) Div(ctx context.Context, other Element) (Element, error) {
	return integerArith(other, func(a, b int32) (int32, bool) { return overflow.Div32(a, b) }, i,
		func(a, b Decimal) (Element, error) { return a.Div(ctx, b) },
		func(a, b Long) (Element, error) { return a.Div(ctx, b) })
}

func (i Integer) Mod(ctx context.Context, other Element) (Element, error) {
	return integerArith(other, func(a, b int32) (int32, bool) { return overflow.Mod32(a, b) }, i,
		func(a, b Decimal) (Element, error) { return a.Mod(ctx, b) },
		func(a, b Long) (Element, error) { return a.Mod(ctx, b) })
}

func (i Integer) Add(ctx context.Context, other Element) (Element, error) {
	return integerArith(other, func(a, b int32) (int32, bool) { return overflow.Add32(a, b) }, i,
		func(a, b Decimal) (Element, error) { return a.Add(ctx, b) },
		func(a, b Long) (Element, error) { return a.Add(ctx, b) })
}

func (i Integer) Subtract(ctx context.Context, other Element) (Element, error) {
	return integerArith(other, func(a, b int32) (int32, bool) { return overflow.Sub32(a, b) }, i,
		func(a, b Decimal) (Element, error) { return a.Subtract(ctx, b) },
		func(a, b Long) (Element, error) { return a.Subtract(ctx, b) })
}

// integerArith dispatches Integer op Integer through the checked int32
// helper, promoting to Long or Decimal when the other operand demands it.
func integerArith(
	other Element,
	op func(a, b int32) (int32, bool),
	self Integer,
	viaDecimal func(a, b Decimal) (Element, error),
	viaLong func(a, b Long) (Element, error),
) (Element, error) {
	switch o := other.(type) {
	case Integer:
		r, ok := op(int32(self), int32(o))
		if !ok {
			return nil, nil
		}
		return Integer(r), nil
	case Long:
		return viaLong(Long(self), o)
	case Decimal:
		d, _, _ := self.ToDecimal(true)
		return viaDecimal(d, o)
	default:
		return nil, newTypeError("arithmetic is not defined between Integer and %T", other)
	}
}

func (i Integer) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Integer"}
}

func (i Integer) String() string { return strconv.Itoa(int(i)) }

func (i Integer) MarshalJSON() ([]byte, error) { return []byte(strconv.Itoa(int(i))), nil }

func cmpOrdered[T int64 | int32 | int](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Long is the FHIRPath System.Long value kind, a 64-bit signed integer.
type Long int64

func (l Long) Children(name ...string) Collection { return nil }

func (l Long) ToBoolean(explicit bool) (Boolean, bool, error) {
	if !explicit {
		return false, false, implicitConversionError[Long, Boolean](l)
	}
	switch l {
	case 0:
		return false, true, nil
	case 1:
		return true, true, nil
	default:
		return false, false, nil
	}
}

func (l Long) ToString(explicit bool) (String, bool, error) {
	return String(strconv.FormatInt(int64(l), 10)), true, nil
}

func (l Long) ToInteger(explicit bool) (Integer, bool, error) {
	if l < -(1<<31) || l > (1<<31-1) {
		return 0, false, nil
	}
	return Integer(l), true, nil
}

func (l Long) ToLong(explicit bool) (Long, bool, error) { return l, true, nil }

func (l Long) ToDecimal(explicit bool) (Decimal, bool, error) {
	return newDecimalFromInt64(int64(l)), true, nil
}

func (l Long) ToDate(bool) (Date, bool, error)         { return Date{}, false, conversionError[Long, Date]() }
func (l Long) ToTime(bool) (Time, bool, error)         { return Time{}, false, conversionError[Long, Time]() }
func (l Long) ToDateTime(bool) (DateTime, bool, error) { return DateTime{}, false, conversionError[Long, DateTime]() }
func (l Long) ToQuantity(explicit bool) (Quantity, bool, error) {
	return Quantity{Value: newDecimalFromInt64(int64(l)), Unit: "1"}, true, nil
}

func (l Long) Equal(other Element) (bool, bool) {
	switch o := other.(type) {
	case Long:
		return l == o, true
	case Integer:
		return l == Long(o), true
	case Decimal:
		return decimalEqualInt64(o, int64(l)), true
	default:
		return false, true
	}
}

func (l Long) Equivalent(other Element) bool {
	eq, ok := l.Equal(other)
	return ok && eq
}

func (l Long) Cmp(other Element) (int, bool, error) {
	switch o := other.(type) {
	case Long:
		return cmpOrdered(int64(l), int64(o)), true, nil
	case Integer:
		return cmpOrdered(int64(l), int64(o)), true, nil
	case Decimal:
		d, _, _ := l.ToDecimal(true)
		return d.Cmp(o)
	default:
		return 0, false, newTypeError("can not compare Long to %T", other)
	}
}

func (l Long) Multiply(ctx context.Context, other Element) (Element, error) {
	return longArith(other, func(a, b int64) (int64, bool) { return overflow.Mul64(a, b) }, l,
		func(a, b Decimal) (Element, error) { return a.Multiply(ctx, b) })
}

func (l Long) Divide(ctx context.Context, other Element) (Element, error) {
	d, _, _ := l.ToDecimal(true)
	return d.Divide(ctx, other)
}

func (l Long) Div(ctx context.Context, other Element) (Element, error) {
	return longArith(other, func(a, b int64) (int64, bool) { return overflow.Div64(a, b) }, l,
		func(a, b Decimal) (Element, error) { return a.Div(ctx, b) })
}

func (l Long) Mod(ctx context.Context, other Element) (Element, error) {
	return longArith(other, func(a, b int64) (int64, bool) { return overflow.Mod64(a, b) }, l,
		func(a, b Decimal) (Element, error) { return a.Mod(ctx, b) })
}

func (l Long) Add(ctx context.Context, other Element) (Element, error) {
	return longArith(other, func(a, b int64) (int64, bool) { return overflow.Add64(a, b) }, l,
		func(a, b Decimal) (Element, error) { return a.Add(ctx, b) })
}

func (l Long) Subtract(ctx context.Context, other Element) (Element, error) {
	return longArith(other, func(a, b int64) (int64, bool) { return overflow.Sub64(a, b) }, l,
		func(a, b Decimal) (Element, error) { return a.Subtract(ctx, b) })
}

func longArith(
	other Element,
	op func(a, b int64) (int64, bool),
	self Long,
	viaDecimal func(a, b Decimal) (Element, error),
) (Element, error) {
	switch o := other.(type) {
	case Long:
		r, ok := op(int64(self), int64(o))
		if !ok {
			return nil, nil
		}
		return Long(r), nil
	case Integer:
		r, ok := op(int64(self), int64(o))
		if !ok {
			return nil, nil
		}
		return Long(r), nil
	case Decimal:
		d, _, _ := self.ToDecimal(true)
		return viaDecimal(d, o)
	default:
		return nil, newTypeError("arithmetic is not defined between Long and %T", other)
	}
}

func (l Long) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Long"}
}

func (l Long) String() string { return strconv.FormatInt(int64(l), 10) }

func (l Long) MarshalJSON() ([]byte, error) { return []byte(strconv.FormatInt(int64(l), 10)), nil }
