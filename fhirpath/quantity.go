package fhirpath

import (
	"context"
	"regexp"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Quantity is the FHIRPath System.Quantity value kind: a Decimal value
// paired with a UCUM unit string. Canonicalisation is intentionally naïve
// (see ucum.go); composite derived units are never expanded to their base
// form, matching the behaviour this module preserves from its reference
// engine.
type Quantity struct {
	Value Decimal
	Unit  string
}

var quantityLiteralPattern = regexp.MustCompile(`^(-?\d+(\.\d+)?)\s*'([^']*)'$`)

// parseQuantityLiteralString parses the textual form toQuantity()/the
// `'...' 'unit'` literal grammar accepts, e.g. "4.5 'mg'" or "4.5 mg".
func parseQuantityLiteralString(s string) (Quantity, bool) {
	s = strings.TrimSpace(s)
	if m := quantityLiteralPattern.FindStringSubmatch(s); m != nil {
		d, _, err := apd.NewFromString(m[1])
		if err != nil {
			return Quantity{}, false
		}
		return Quantity{Value: Decimal{v: d}, Unit: m[3]}, true
	}
	fields := strings.Fields(s)
	if len(fields) == 2 {
		d, _, err := apd.NewFromString(fields[0])
		if err == nil {
			unit := fields[1]
			if canon, ok := calendarDurationUnits[strings.TrimSuffix(unit, "s")]; ok {
				unit = canon
			} else if canon, ok := calendarDurationUnits[unit]; ok {
				unit = canon
			}
			return Quantity{Value: Decimal{v: d}, Unit: unit}, true
		}
	}
	if len(fields) == 1 {
		d, _, err := apd.NewFromString(fields[0])
		if err == nil {
			return Quantity{Value: Decimal{v: d}, Unit: "1"}, true
		}
	}
	return Quantity{}, false
}

func (q Quantity) Children(name ...string) Collection { return nil }

func (q Quantity) ToBoolean(bool) (Boolean, bool, error) { return false, false, conversionError[Quantity, Boolean]() }

func (q Quantity) ToString(explicit bool) (String, bool, error) {
	return String(q.String()), true, nil
}

func (q Quantity) ToInteger(bool) (Integer, bool, error) { return 0, false, conversionError[Quantity, Integer]() }
func (q Quantity) ToLong(bool) (Long, bool, error)       { return 0, false, conversionError[Quantity, Long]() }
func (q Quantity) ToDecimal(bool) (Decimal, bool, error) { return Decimal{}, false, conversionError[Quantity, Decimal]() }
func (q Quantity) ToDate(bool) (Date, bool, error)       { return Date{}, false, conversionError[Quantity, Date]() }
func (q Quantity) ToTime(bool) (Time, bool, error)       { return Time{}, false, conversionError[Quantity, Time]() }
func (q Quantity) ToDateTime(bool) (DateTime, bool, error) { return DateTime{}, false, conversionError[Quantity, DateTime]() }
func (q Quantity) ToQuantity(explicit bool) (Quantity, bool, error) { return q, true, nil }

// calendarEqualityRestricted reports whether a and b's units are the
// variable-length calendar duration pair (year, month) that FHIRPath's `=`
// must refuse to equate even when their canonical forms match, while `~`
// remains free to equate them.
func calendarEqualityRestricted(a, b string) bool {
	ca, cb := canonicalizeUnitString(a), canonicalizeUnitString(b)
	return (isCalendarLiteralUnit(ca) || isCalendarLiteralUnit(cb)) && ca != cb
}

// canonicalValue returns q rewritten into canonicalizeQuantityUnit's
// canonical UnitMap, with Value rescaled by the corresponding factor, so
// two quantities expressed in differently-prefixed or differently-scaled
// units (`kg` vs `g`, `h` vs `s`) compare correctly against each other.
func (q Quantity) canonicalValue() (UnitMap, Decimal) {
	units, scale := canonicalizeQuantityUnit(q.Unit)
	rescaled := new(apd.Decimal)
	unitScaleContext.Mul(rescaled, q.Value.apd(), scale)
	return units, Decimal{v: rescaled}
}

func (q Quantity) Equal(other Element) (bool, bool) {
	o, ok := other.(Quantity)
	if !ok {
		return false, true
	}
	qUnits, qVal := q.canonicalValue()
	oUnits, oVal := o.canonicalValue()
	if !unitMapsEqual(qUnits, oUnits) {
		return false, false
	}
	if calendarEqualityRestricted(q.Unit, o.Unit) {
		return false, true
	}
	return qVal.apd().Cmp(oVal.apd()) == 0, true
}

func (q Quantity) Equivalent(other Element) bool {
	o, ok := other.(Quantity)
	if !ok {
		return false
	}
	qUnits, qVal := q.canonicalValue()
	oUnits, oVal := o.canonicalValue()
	if !unitMapsEqual(qUnits, oUnits) {
		return false
	}
	return qVal.apd().Cmp(oVal.apd()) == 0
}

func (q Quantity) Cmp(other Element) (int, bool, error) {
	o, ok := other.(Quantity)
	if !ok {
		return 0, false, newTypeError("can not compare Quantity to %T", other)
	}
	qUnits, qVal := q.canonicalValue()
	oUnits, oVal := o.canonicalValue()
	if !unitMapsEqual(qUnits, oUnits) {
		return 0, false, nil
	}
	return qVal.apd().Cmp(oVal.apd()), true, nil
}

func (q Quantity) Multiply(ctx context.Context, other Element) (Element, error) {
	o, ok := other.(Quantity)
	if !ok {
		if scalar, isScalar := asDecimalScalar(other); isScalar {
			o = Quantity{Value: scalar, Unit: "1"}
		} else {
			return nil, newTypeError("'*' is not defined between Quantity and %T", other)
		}
	}
	qUnits, qVal := q.canonicalValue()
	oUnits, oVal := o.canonicalValue()
	v, err := qVal.Multiply(ctx, oVal)
	if err != nil {
		return nil, err
	}
	return Quantity{Value: v.(Decimal), Unit: formatUnitMap(multiplyUnits(qUnits, oUnits))}, nil
}

func (q Quantity) Divide(ctx context.Context, other Element) (Element, error) {
	o, ok := other.(Quantity)
	if !ok {
		if scalar, isScalar := asDecimalScalar(other); isScalar {
			o = Quantity{Value: scalar, Unit: "1"}
		} else {
			return nil, newTypeError("'/' is not defined between Quantity and %T", other)
		}
	}
	if o.Value.apd().IsZero() {
		return nil, nil
	}
	qUnits, qVal := q.canonicalValue()
	oUnits, oVal := o.canonicalValue()
	v, err := qVal.Divide(ctx, oVal)
	if err != nil || v == nil {
		return nil, err
	}
	return Quantity{Value: v.(Decimal), Unit: formatUnitMap(divideUnits(qUnits, oUnits))}, nil
}

func asDecimalScalar(e Element) (Decimal, bool) {
	switch v := e.(type) {
	case Decimal:
		return v, true
	case Integer:
		d, _, _ := v.ToDecimal(true)
		return d, true
	case Long:
		d, _, _ := v.ToDecimal(true)
		return d, true
	default:
		return Decimal{}, false
	}
}

func (q Quantity) Add(ctx context.Context, other Element) (Element, error) {
	return q.addSubtract(ctx, other, true)
}

func (q Quantity) Subtract(ctx context.Context, other Element) (Element, error) {
	return q.addSubtract(ctx, other, false)
}

func (q Quantity) addSubtract(ctx context.Context, other Element, add bool) (Element, error) {
	o, ok := other.(Quantity)
	if !ok {
		return nil, newTypeError("Quantity arithmetic requires a Quantity operand, got %T", other)
	}
	qUnits, qVal := q.canonicalValue()
	oUnits, oVal := o.canonicalValue()
	if !unitMapsEqual(qUnits, oUnits) {
		return nil, newTypeError("can not add or subtract quantities with incompatible units %q and %q", q.Unit, o.Unit)
	}
	var v Element
	var err error
	if add {
		v, err = qVal.Add(ctx, oVal)
	} else {
		v, err = qVal.Subtract(ctx, oVal)
	}
	if err != nil {
		return nil, err
	}
	return Quantity{Value: v.(Decimal), Unit: formatUnitMap(qUnits)}, nil
}

func (q Quantity) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Quantity"}
}

func (q Quantity) String() string {
	return q.Value.String() + " '" + q.Unit + "'"
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return marshalString(q.String())
}

// Comparable reports whether q and other's units are UCUM-comparable
// without performing the comparison itself, the semantics backing the
// comparable() function.
func (q Quantity) Comparable(other Quantity) bool {
	qUnits, _ := canonicalizeQuantityUnit(q.Unit)
	oUnits, _ := canonicalizeQuantityUnit(other.Unit)
	return unitMapsEqual(qUnits, oUnits)
}
