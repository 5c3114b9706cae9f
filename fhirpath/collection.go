package fhirpath

import (
	"context"
	"encoding/json"
	"strings"
)

// Collection is the ordered sequence of Element values that every
// subexpression evaluates to. There is no separate scalar type: a single
// value is a Collection of length one, and "empty" is represented by a
// nil/zero-length Collection rather than a distinguished null value.
type Collection []Element

// Singleton coerces c to exactly one value of type T. A zero-length
// Collection yields the zero T with ok=false and no error (the standard
// empty-propagates-to-empty rule). A Collection of length >= 2 is a
// SingletonErrorKind diagnostic, except that Singleton[Boolean] follows the
// FHIRPath existence-coercion rule: any non-empty Collection that is not
// already a Boolean singleton coerces to true. For any other T, a single
// value that is not a T is a TypeErrorKind diagnostic.
func Singleton[T Element](c Collection) (v T, ok bool, err error) {
	if len(c) == 0 {
		return v, false, nil
	}
	if len(c) == 1 {
		if t, isT := c[0].(T); isT {
			return t, true, nil
		}
	}
	if _, wantBoolean := any(v).(Boolean); wantBoolean {
		return any(Boolean(true)).(T), true, nil
	}
	if len(c) == 1 {
		return v, false, newTypeError("expected a value of type %T, found %T", v, c[0])
	}
	return v, false, newSingletonError("expected a single value, found a collection of length %d", len(c))
}

// Equal implements FHIRPath `=`: element-wise, order-sensitive equality.
// Equal's ok result is false whenever any element comparison is
// indeterminate (differing partial-precision date/time values, say), which
// propagates as an empty result from the caller.
func (c Collection) Equal(other Collection) (eq bool, ok bool) {
	if len(c) != len(other) {
		return false, true
	}
	for i := range c {
		e, k := c[i].Equal(other[i])
		if !k {
			return false, false
		}
		if !e {
			return false, true
		}
	}
	return true, true
}

// Equivalent implements FHIRPath `~`: element-wise, order-insensitive,
// case/whitespace-relaxed equivalence that never propagates empty.
func (c Collection) Equivalent(other Collection) bool {
	if len(c) != len(other) {
		return false
	}
	used := make([]bool, len(other))
	for _, e := range c {
		matched := false
		for j, o := range other {
			if used[j] {
				continue
			}
			if e.Equivalent(o) {
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Contains reports whether v appears anywhere in c under `=` semantics.
func (c Collection) Contains(v Element) bool {
	for _, e := range c {
		if eq, ok := e.Equal(v); ok && eq {
			return true
		}
	}
	return false
}

// Union implements FHIRPath `|`: concatenation with duplicates removed,
// keeping the first occurrence's position.
func (c Collection) Union(other Collection) Collection {
	out := make(Collection, 0, len(c)+len(other))
	for _, e := range c {
		if !out.Contains(e) {
			out = append(out, e)
		}
	}
	for _, e := range other {
		if !out.Contains(e) {
			out = append(out, e)
		}
	}
	return out
}

// Combine implements combine(): concatenation, duplicates kept.
func (c Collection) Combine(other Collection) Collection {
	out := make(Collection, 0, len(c)+len(other))
	out = append(out, c...)
	out = append(out, other...)
	return out
}

// Concat implements FHIRPath `&`: string concatenation treating an empty
// side as the empty string rather than propagating empty.
func (c Collection) Concat(ctx context.Context, other Collection) (Collection, error) {
	left, err := collectionToConcatString(c)
	if err != nil {
		return nil, err
	}
	right, err := collectionToConcatString(other)
	if err != nil {
		return nil, err
	}
	return Collection{String(left + right)}, nil
}

func collectionToConcatString(c Collection) (string, error) {
	if len(c) == 0 {
		return "", nil
	}
	if len(c) != 1 {
		return "", newSingletonError("expected a single value for '&', found a collection of length %d", len(c))
	}
	s, ok, err := c[0].ToString(true)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", newTypeError("value of type %T can not be used in string concatenation", c[0])
	}
	return string(s), nil
}

// Cmp is a shared helper for the inequality operators: it requires both
// sides to be singletons, then delegates to the left element's Cmp.
func (c Collection) Cmp(other Collection) (cmp int, ok bool, err error) {
	left, lok, err := Singleton[Element](c)
	if err != nil {
		return 0, false, err
	}
	right, rok, err := Singleton[Element](other)
	if err != nil {
		return 0, false, err
	}
	if !lok || !rok {
		return 0, false, nil
	}
	cmper, isCmp := left.(cmpElement)
	if !isCmp {
		return 0, false, newTypeError("values of type %T are not ordered", left)
	}
	return cmper.Cmp(right)
}

func (c Collection) arith(ctx context.Context, other Collection, apply func(a, b Element) (Element, error)) (Collection, error) {
	left, lok, err := Singleton[Element](c)
	if err != nil {
		return nil, err
	}
	right, rok, err := Singleton[Element](other)
	if err != nil {
		return nil, err
	}
	if !lok || !rok {
		return nil, nil
	}
	v, err := apply(left, right)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return Collection{v}, nil
}

func (c Collection) Multiply(ctx context.Context, other Collection) (Collection, error) {
	return c.arith(ctx, other, func(a, b Element) (Element, error) {
		m, ok := a.(multiplyElement)
		if !ok {
			return nil, newTypeError("'*' is not defined for %T", a)
		}
		return m.Multiply(ctx, b)
	})
}

func (c Collection) Divide(ctx context.Context, other Collection) (Collection, error) {
	return c.arith(ctx, other, func(a, b Element) (Element, error) {
		d, ok := a.(divideElement)
		if !ok {
			return nil, newTypeError("'/' is not defined for %T", a)
		}
		return d.Divide(ctx, b)
	})
}

func (c Collection) Div(ctx context.Context, other Collection) (Collection, error) {
	return c.arith(ctx, other, func(a, b Element) (Element, error) {
		d, ok := a.(divElement)
		if !ok {
			return nil, newTypeError("'div' is not defined for %T", a)
		}
		return d.Div(ctx, b)
	})
}

func (c Collection) Mod(ctx context.Context, other Collection) (Collection, error) {
	return c.arith(ctx, other, func(a, b Element) (Element, error) {
		m, ok := a.(modElement)
		if !ok {
			return nil, newTypeError("'mod' is not defined for %T", a)
		}
		return m.Mod(ctx, b)
	})
}

func (c Collection) Add(ctx context.Context, other Collection) (Collection, error) {
	return c.arith(ctx, other, func(a, b Element) (Element, error) {
		add, ok := a.(addElement)
		if !ok {
			return nil, newTypeError("'+' is not defined for %T", a)
		}
		return add.Add(ctx, b)
	})
}

func (c Collection) Subtract(ctx context.Context, other Collection) (Collection, error) {
	return c.arith(ctx, other, func(a, b Element) (Element, error) {
		sub, ok := a.(subtractElement)
		if !ok {
			return nil, newTypeError("'-' is not defined for %T", a)
		}
		return sub.Subtract(ctx, b)
	})
}

func (c Collection) String() string {
	parts := make([]string, len(c))
	for i, e := range c {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON renders an empty Collection as `null`, a singleton as its bare
// element, and anything longer as a JSON array, matching how a FHIRPath
// result is conventionally surfaced to a caller that round-trips through
// JSON.
func (c Collection) MarshalJSON() ([]byte, error) {
	switch len(c) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(c[0])
	default:
		return json.Marshal([]Element(c))
	}
}
