package fhirpath

import (
	"context"
)

// functionArgs lets a built-in Function evaluate its own arguments lazily
// and, for the lambda-argument family (where, select, ...), bind $this/
// $index/$total for the duration of a single per-element evaluation.
type functionArgs struct {
	count      int
	evalArg    func(ctx context.Context, this Collection, index int) (Collection, error)
	evalLambda func(ctx context.Context, this Collection, index int, scope FunctionScope) (Collection, error)
}

func (a functionArgs) arg(ctx context.Context, this Collection, index int) (Collection, error) {
	return a.evalArg(ctx, this, index)
}

func (a functionArgs) lambda(ctx context.Context, this Collection, index int, scope FunctionScope) (Collection, error) {
	return a.evalLambda(ctx, this, index, scope)
}

// Function is a built-in or host-supplied FHIRPath function implementation.
// this is the collection it operates on (the left-hand side of the `.` it
// follows, or the evaluator's root input for a standalone call).
type Function func(ctx context.Context, this Collection, args functionArgs) (Collection, error)

// Functions is a function-name registry, installed via WithFunctions to
// extend or override the built-ins.
type Functions map[string]Function

var defaultFunctions = Functions{
	"empty":      fnEmpty,
	"exists":     fnExists,
	"all":        fnAll,
	"allTrue":    fnAllTrue,
	"anyTrue":    fnAnyTrue,
	"allFalse":   fnAllFalse,
	"anyFalse":   fnAnyFalse,
	"subsetOf":   fnSubsetOf,
	"supersetOf": fnSupersetOf,
	"count":      fnCount,
	"distinct":   fnDistinct,
	"isDistinct": fnIsDistinct,
	"not":        fnNot,

	"where":     fnWhere,
	"select":    fnSelect,
	"repeat":    fnRepeat,
	"aggregate": fnAggregate,

	"single": fnSingle,
	"first":  fnFirst,
	"last":   fnLast,
	"tail":   fnTail,
	"skip":   fnSkip,
	"take":   fnTake,

	"intersect": fnIntersect,
	"exclude":   fnExclude,
	"union":     fnUnionFn,
	"combine":   fnCombine,

	"children":    fnChildren,
	"descendants": fnDescendants,

	"trace":          fnTrace,
	"defineVariable": fnDefineVariable,
	"iif":            fnIif,
}

// fnEmpty implements empty(): true iff `this` has no elements.
func fnEmpty(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return Collection{Boolean(len(this) == 0)}, nil
}

// fnExists implements exists([criteria]): without an argument, true iff
// `this` is non-empty; with one, true iff some element satisfies criteria.
func fnExists(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	if args.count == 0 {
		return Collection{Boolean(len(this) > 0)}, nil
	}
	for i, el := range this {
		res, err := args.lambda(ctx, Collection{el}, 0, FunctionScope{Index: i})
		if err != nil {
			return nil, err
		}
		b, ok, err := Singleton[Boolean](res)
		if err != nil {
			return nil, err
		}
		if ok && bool(b) {
			return Collection{Boolean(true)}, nil
		}
	}
	return Collection{Boolean(false)}, nil
}

// fnAll implements all(criteria): true iff every element satisfies
// criteria (vacuously true on an empty input).
func fnAll(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	for i, el := range this {
		res, err := args.lambda(ctx, Collection{el}, 0, FunctionScope{Index: i})
		if err != nil {
			return nil, err
		}
		b, ok, err := Singleton[Boolean](res)
		if err != nil {
			return nil, err
		}
		if !ok || !bool(b) {
			return Collection{Boolean(false)}, nil
		}
	}
	return Collection{Boolean(true)}, nil
}

func fnAllTrue(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return boolQuantifier(this, true, true)
}

func fnAnyTrue(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return boolQuantifier(this, true, false)
}

func fnAllFalse(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return boolQuantifier(this, false, true)
}

func fnAnyFalse(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return boolQuantifier(this, false, false)
}

// boolQuantifier implements the four allX/anyX functions: want is the
// boolean value being quantified over, all selects between "every element
// must be want" and "some element is want".
func boolQuantifier(this Collection, want bool, all bool) (Collection, error) {
	for _, el := range this {
		b, ok := el.(Boolean)
		if !ok {
			return nil, newTypeError("allTrue/anyTrue/allFalse/anyFalse require a collection of Boolean, found %T", el)
		}
		if all {
			if bool(b) != want {
				return Collection{Boolean(false)}, nil
			}
		} else if bool(b) == want {
			return Collection{Boolean(true)}, nil
		}
	}
	if all {
		return Collection{Boolean(true)}, nil
	}
	return Collection{Boolean(false)}, nil
}

func fnSubsetOf(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	other, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	for _, el := range this {
		if !other.Contains(el) {
			return Collection{Boolean(false)}, nil
		}
	}
	return Collection{Boolean(true)}, nil
}

func fnSupersetOf(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	other, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	for _, el := range other {
		if !this.Contains(el) {
			return Collection{Boolean(false)}, nil
		}
	}
	return Collection{Boolean(true)}, nil
}

func fnCount(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	return Collection{Integer(len(this))}, nil
}

func fnDistinct(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	var out Collection
	for _, el := range this {
		if !out.Contains(el) {
			out = append(out, el)
		}
	}
	return out, nil
}

func fnIsDistinct(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	distinct, err := fnDistinct(ctx, this, args)
	if err != nil {
		return nil, err
	}
	return Collection{Boolean(len(distinct) == len(this))}, nil
}

func fnNot(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	b, ok, err := Singleton[Boolean](this)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return Collection{Boolean(!b)}, nil
}

// fnWhere implements where(criteria): keeps each element whose criteria
// (evaluated with $this bound to it) is true.
func fnWhere(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	var out Collection
	for i, el := range this {
		res, err := args.lambda(ctx, Collection{el}, 0, FunctionScope{Index: i})
		if err != nil {
			return nil, err
		}
		b, ok, err := Singleton[Boolean](res)
		if err != nil {
			return nil, err
		}
		if ok && bool(b) {
			out = append(out, el)
		}
	}
	return out, nil
}

// fnSelect implements select(projection): evaluates projection once per
// element with $this bound to it, flattening and concatenating the results
// in order.
func fnSelect(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	var out Collection
	for i, el := range this {
		res, err := args.lambda(ctx, Collection{el}, 0, FunctionScope{Index: i})
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

// fnRepeat implements repeat(projection): repeatedly applies projection to
// the result of the previous round until a round adds nothing new,
// de-duplicating against everything accumulated so far.
func fnRepeat(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	var result Collection
	frontier := this
	for len(frontier) > 0 {
		var newItems Collection
		for i, el := range frontier {
			res, err := args.lambda(ctx, Collection{el}, 0, FunctionScope{Index: i})
			if err != nil {
				return nil, err
			}
			for _, r := range res {
				if !result.Contains(r) && !newItems.Contains(r) {
					newItems = append(newItems, r)
				}
			}
		}
		result = append(result, newItems...)
		frontier = newItems
	}
	return result, nil
}

// fnAggregate implements aggregate(aggregator[, init]): threads $total
// through each element's aggregator evaluation, starting from init (or
// empty when omitted). Nested aggregate() calls get their own independent
// $total because each call installs a fresh function scope.
func fnAggregate(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	var total Collection
	if args.count > 1 {
		initVal, err := args.arg(ctx, nil, 1)
		if err != nil {
			return nil, err
		}
		total = initVal
	}
	for i, el := range this {
		if total == nil {
			// An empty $total is a non-nil empty Collection, so $total
			// still resolves inside the aggregator.
			total = Collection{}
		}
		res, err := args.lambda(ctx, Collection{el}, 0, FunctionScope{Index: i, Total: total})
		if err != nil {
			return nil, err
		}
		total = res
	}
	return total, nil
}

func fnSingle(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	if len(this) == 0 {
		return nil, nil
	}
	if len(this) > 1 {
		return nil, newSingletonError("single() requires a collection with at most one element, found %d", len(this))
	}
	return this, nil
}

func fnFirst(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	if len(this) == 0 {
		return nil, nil
	}
	return this[:1], nil
}

func fnLast(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	if len(this) == 0 {
		return nil, nil
	}
	return this[len(this)-1:], nil
}

func fnTail(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	if len(this) <= 1 {
		return nil, nil
	}
	return this[1:], nil
}

func fnSkip(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	n, err := intArg(ctx, this, args, 0)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	if n >= len(this) {
		return nil, nil
	}
	return this[n:], nil
}

func fnTake(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	n, err := intArg(ctx, this, args, 0)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	if n > len(this) {
		n = len(this)
	}
	return this[:n], nil
}

func intArg(ctx context.Context, this Collection, args functionArgs, index int) (int, error) {
	v, err := args.arg(ctx, this, index)
	if err != nil {
		return 0, err
	}
	i, ok, err := Singleton[Integer](v)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, newTypeError("expected a single Integer argument")
	}
	return int(i), nil
}

func fnIntersect(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	other, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	var out Collection
	for _, el := range this {
		if other.Contains(el) && !out.Contains(el) {
			out = append(out, el)
		}
	}
	return out, nil
}

func fnExclude(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	other, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	var out Collection
	for _, el := range this {
		if !other.Contains(el) {
			out = append(out, el)
		}
	}
	return out, nil
}

func fnUnionFn(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	other, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	return this.Union(other), nil
}

func fnCombine(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	other, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	return this.Combine(other), nil
}

func fnChildren(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	var out Collection
	for _, el := range this {
		out = append(out, el.Children()...)
	}
	return out, nil
}

func fnDescendants(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	var out Collection
	frontier := this
	for len(frontier) > 0 {
		var next Collection
		for _, el := range frontier {
			children := el.Children()
			out = append(out, children...)
			next = append(next, children...)
		}
		frontier = next
	}
	return out, nil
}

// fnTrace implements trace(name[, projection]): reports the traced
// collection to the context's Tracer (if any) and returns `this` unchanged.
func fnTrace(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	nameColl, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	name, _, err := Singleton[String](nameColl)
	if err != nil {
		return nil, err
	}
	traced := this
	if args.count > 1 {
		traced, err = args.lambda(ctx, this, 1, FunctionScope{})
		if err != nil {
			return nil, err
		}
	}
	if t := tracerOf(ctx); t != nil {
		t.Trace(string(name), traced)
	}
	return this, nil
}

// fnDefineVariable implements defineVariable(name[, value]): binds name in
// the environment for the remainder of the containing expression chain.
func fnDefineVariable(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	nameColl, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	name, ok, err := Singleton[String](nameColl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newTypeError("defineVariable() requires a name")
	}
	value := this
	if args.count > 1 {
		value, err = args.arg(ctx, this, 1)
		if err != nil {
			return nil, err
		}
	}
	_ = withEnvBinding(ctx, string(name), value)
	return this, nil
}

// fnIif implements iif(criteria, true-result[, otherwise-result]).
func fnIif(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	crit, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	b, ok, err := Singleton[Boolean](crit)
	if err != nil {
		return nil, err
	}
	if ok && bool(b) {
		return args.arg(ctx, this, 1)
	}
	if args.count > 2 {
		return args.arg(ctx, this, 2)
	}
	return nil, nil
}
