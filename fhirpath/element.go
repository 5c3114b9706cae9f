package fhirpath

import (
	"context"
	"encoding/json"
	"fmt"
)

// Element is the value interface every FHIRPath value kind implements:
// the eight scalar kinds (Boolean, String, Integer, Long, Decimal, Date,
// Time, DateTime), Quantity, and any host-supplied ResourceAdapter node
// that appears as a leaf of a Collection during evaluation.
type Element interface {
	// Children returns all child nodes with the given names, or every
	// child when no name is passed. Scalar value kinds always return nil;
	// only ResourceAdapter nodes have children.
	Children(name ...string) Collection
	ToBoolean(explicit bool) (v Boolean, ok bool, err error)
	ToString(explicit bool) (v String, ok bool, err error)
	ToInteger(explicit bool) (v Integer, ok bool, err error)
	ToLong(explicit bool) (v Long, ok bool, err error)
	ToDecimal(explicit bool) (v Decimal, ok bool, err error)
	ToDate(explicit bool) (v Date, ok bool, err error)
	ToTime(explicit bool) (v Time, ok bool, err error)
	ToDateTime(explicit bool) (v DateTime, ok bool, err error)
	ToQuantity(explicit bool) (v Quantity, ok bool, err error)
	Equal(other Element) (eq bool, ok bool)
	Equivalent(other Element) bool
	TypeInfo() TypeInfo
	json.Marshaler
	fmt.Stringer
}

// ResourceAdapter is the capability surface a host implements over its own
// resource model so this module can navigate it without knowing its
// concrete types. Any value satisfying ResourceAdapter also satisfies
// Element directly; hosts typically embed a struct that forwards the
// scalar ToX conversions to "not convertible" and only implement Children,
// Equal/Equivalent, TypeInfo, MarshalJSON, and String meaningfully.
type ResourceAdapter interface {
	Element
}

// hasValuer is implemented by primitive elements that can carry extensions
// without a value (a `null` in FHIR JSON terms). Functions like hasValue()
// and getValue() consult it when present and otherwise treat any Element as
// having a value.
type hasValuer interface {
	Element
	HasValue() bool
}

// cmpElement is implemented by value kinds that support relative ordering
// (<, <=, >, >=). Cmp's ok result is false when the operands are
// incomparable (e.g. quantities with incompatible units), which propagates
// as an empty result rather than an error.
type cmpElement interface {
	Element
	Cmp(other Element) (cmp int, ok bool, err error)
}

type multiplyElement interface {
	Element
	Multiply(ctx context.Context, other Element) (Element, error)
}

type divideElement interface {
	Element
	Divide(ctx context.Context, other Element) (Element, error)
}

type divElement interface {
	Element
	Div(ctx context.Context, other Element) (Element, error)
}

type modElement interface {
	Element
	Mod(ctx context.Context, other Element) (Element, error)
}

type addElement interface {
	Element
	Add(ctx context.Context, other Element) (Element, error)
}

type subtractElement interface {
	Element
	Subtract(ctx context.Context, other Element) (Element, error)
}

// defaultConversionError provides a "can not convert" implementation of
// every ToX method to a type that embeds it. None of this package's value
// kinds embed it: each defines all of its own ToX methods and returns
// conversionError for the conversions it does not support.
type defaultConversionError[F any] struct{}

func conversionError[F, T any]() error {
	var f F
	var t T
	return newTypeError("can not convert %T to %T", f, t)
}

func implicitConversionError[F, T any](f F) error {
	var t T
	return newTypeError("can not implicitly convert %T (%v) to %T", f, f, t)
}

func (defaultConversionError[F]) ToBoolean(bool) (Boolean, bool, error) {
	return false, false, conversionError[F, Boolean]()
}

func (defaultConversionError[F]) ToString(bool) (String, bool, error) {
	return "", false, conversionError[F, String]()
}

func (defaultConversionError[F]) ToInteger(bool) (Integer, bool, error) {
	return 0, false, conversionError[F, Integer]()
}

func (defaultConversionError[F]) ToLong(bool) (Long, bool, error) {
	return 0, false, conversionError[F, Long]()
}

func (defaultConversionError[F]) ToDecimal(bool) (Decimal, bool, error) {
	return Decimal{}, false, conversionError[F, Decimal]()
}

func (defaultConversionError[F]) ToDate(bool) (Date, bool, error) {
	return Date{}, false, conversionError[F, Date]()
}

func (defaultConversionError[F]) ToTime(bool) (Time, bool, error) {
	return Time{}, false, conversionError[F, Time]()
}

func (defaultConversionError[F]) ToDateTime(bool) (DateTime, bool, error) {
	return DateTime{}, false, conversionError[F, DateTime]()
}

func (defaultConversionError[F]) ToQuantity(bool) (Quantity, bool, error) {
	return Quantity{}, false, conversionError[F, Quantity]()
}
