package fhirpath

import (
	"context"

	"github.com/cockroachdb/apd/v3"
)

func evalLiteral(ctx context.Context, n *literalNode) (Collection, error) {
	switch n.kind {
	case litEmpty:
		return nil, nil
	case litBoolean:
		return Collection{Boolean(n.text == "true")}, nil
	case litString:
		return Collection{String(unquoteSimple(n.text))}, nil
	case litNumber:
		d, _, err := apd.NewFromString(n.text)
		if err != nil {
			return nil, newParseError(n.Pos(), "invalid number literal %q", n.text)
		}
		if !containsDot(n.text) {
			if iv, ierr := d.Int64(); ierr == nil && iv >= -(1<<31) && iv <= (1<<31-1) {
				return Collection{Integer(iv)}, nil
			}
		}
		return Collection{Decimal{v: d}}, nil
	case litLongNumber:
		d, _, err := apd.NewFromString(n.text)
		if err != nil {
			return nil, newParseError(n.Pos(), "invalid long literal %q", n.text)
		}
		iv, ierr := d.Int64()
		if ierr != nil {
			return nil, newParseError(n.Pos(), "long literal %q out of range", n.text)
		}
		return Collection{Long(iv)}, nil
	case litDate:
		d, ok := parseDate(n.text)
		if !ok {
			return nil, newParseError(n.Pos(), "invalid date literal @%s", n.text)
		}
		return Collection{d}, nil
	case litTime:
		t, ok := parseTime(n.text)
		if !ok {
			return nil, newParseError(n.Pos(), "invalid time literal @%s", n.text)
		}
		return Collection{t}, nil
	case litDateTime:
		dt, ok := parseDateTime(n.text)
		if !ok {
			return nil, newParseError(n.Pos(), "invalid datetime literal @%s", n.text)
		}
		return Collection{dt}, nil
	case litQuantity:
		d, _, err := apd.NewFromString(n.text)
		if err != nil {
			return nil, newParseError(n.Pos(), "invalid quantity value %q", n.text)
		}
		unit := n.unit
		if code, ok := calendarDurationUnits[unit]; ok {
			unit = code
		}
		return Collection{Quantity{Value: Decimal{v: d}, Unit: unit}}, nil
	default:
		return nil, newResolutionError("unhandled literal kind %v", n.kind)
	}
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}
