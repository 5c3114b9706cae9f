package fhirpath

import "context"

func init() {
	defaultFunctions["toBoolean"] = convertTo(func(e Element) (Element, bool, error) { return toX(e.ToBoolean) })
	defaultFunctions["convertsToBoolean"] = convertsTo(func(e Element) (Element, bool, error) { return toX(e.ToBoolean) })
	defaultFunctions["toInteger"] = convertTo(func(e Element) (Element, bool, error) { return toX(e.ToInteger) })
	defaultFunctions["convertsToInteger"] = convertsTo(func(e Element) (Element, bool, error) { return toX(e.ToInteger) })
	defaultFunctions["toLong"] = convertTo(func(e Element) (Element, bool, error) { return toX(e.ToLong) })
	defaultFunctions["convertsToLong"] = convertsTo(func(e Element) (Element, bool, error) { return toX(e.ToLong) })
	defaultFunctions["toDecimal"] = convertTo(func(e Element) (Element, bool, error) { return toX(e.ToDecimal) })
	defaultFunctions["convertsToDecimal"] = convertsTo(func(e Element) (Element, bool, error) { return toX(e.ToDecimal) })
	defaultFunctions["toDate"] = convertTo(func(e Element) (Element, bool, error) { return toX(e.ToDate) })
	defaultFunctions["convertsToDate"] = convertsTo(func(e Element) (Element, bool, error) { return toX(e.ToDate) })
	defaultFunctions["toDateTime"] = convertTo(func(e Element) (Element, bool, error) { return toX(e.ToDateTime) })
	defaultFunctions["convertsToDateTime"] = convertsTo(func(e Element) (Element, bool, error) { return toX(e.ToDateTime) })
	defaultFunctions["toTime"] = convertTo(func(e Element) (Element, bool, error) { return toX(e.ToTime) })
	defaultFunctions["convertsToTime"] = convertsTo(func(e Element) (Element, bool, error) { return toX(e.ToTime) })
	defaultFunctions["toQuantity"] = convertTo(func(e Element) (Element, bool, error) { return toX(e.ToQuantity) })
	defaultFunctions["convertsToQuantity"] = convertsTo(func(e Element) (Element, bool, error) { return toX(e.ToQuantity) })
	defaultFunctions["toString"] = convertTo(func(e Element) (Element, bool, error) { return toX(e.ToString) })
	defaultFunctions["convertsToString"] = convertsTo(func(e Element) (Element, bool, error) { return toX(e.ToString) })
}

// toX adapts one of Element's ToBoolean/ToString/.../ToQuantity methods
// (each a generic (T, bool, error) shape) into the uniform (Element, bool,
// error) shape convertTo/convertsTo need, always passing explicit=true since
// toX()/convertsToX() are the user-requested explicit conversion family.
func toX[T Element](conv func(explicit bool) (T, bool, error)) (Element, bool, error) {
	v, ok, err := conv(true)
	return v, ok, err
}

// convertTo builds a toX() builtin: converts the singleton input, returning
// empty when the input is empty or not convertible, and a singleton error
// when it holds more than one value. Per
// FHIRPath semantics toX() never raises for an inconvertible source type, it
// just answers empty, so a TypeErrorKind from the underlying ToX method
// (every scalar's default "not convertible" response) is treated the same
// as ok=false rather than propagated.
func convertTo(conv func(Element) (Element, bool, error)) Function {
	return func(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
		v, ok, err := Singleton[Element](this)
		if err != nil || !ok {
			return nil, err
		}
		out, ok, err := conv(v)
		if !ok || isInconvertible(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return Collection{out}, nil
	}
}

// convertsTo builds a convertsToX() builtin: reports whether toX() would
// succeed, without returning the converted value.
func convertsTo(conv func(Element) (Element, bool, error)) Function {
	return func(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
		v, ok, err := Singleton[Element](this)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		_, ok, err = conv(v)
		if isInconvertible(err) {
			return Collection{Boolean(false)}, nil
		}
		if err != nil {
			return nil, err
		}
		return Collection{Boolean(ok)}, nil
	}
}

func isInconvertible(err error) bool {
	diag, ok := err.(*Diagnostic)
	return ok && diag.Kind == TypeErrorKind
}
