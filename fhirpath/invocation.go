package fhirpath

import (
	"context"
	"sort"
)

// evalInvocation dispatches a function call. root is the input of the
// enclosing step; no built-in function reads it. left is the collection the
// function actually operates on (the left-hand side of the `.` it follows,
// or the whole input when standalone).
func evalInvocation(ctx context.Context, root, left Collection, inv *invocationNode) (Collection, error) {
	switch inv.name {
	case "is", "as", "ofType":
		return evalTypeFunction(ctx, left, inv)
	case "sort":
		return evalSort(ctx, left, inv)
	}

	fn, ok := lookupFunction(ctx, inv.name)
	if !ok {
		return nil, newResolutionError("unknown function %q", inv.name)
	}

	evalArg := func(ctx context.Context, this Collection, index int) (Collection, error) {
		if index >= len(inv.args) {
			return nil, newArityError("function %q: argument %d not supplied", inv.name, index)
		}
		return evalNode(ctx, this, inv.args[index])
	}
	evalLambda := func(ctx context.Context, this Collection, index int, scope FunctionScope) (Collection, error) {
		if index >= len(inv.args) {
			return nil, newArityError("function %q: argument %d not supplied", inv.name, index)
		}
		lambdaCtx := withFunctionScope(withClonedEnvFrame(ctx), this, scope)
		return evalNode(lambdaCtx, this, inv.args[index])
	}

	return fn(ctx, left, functionArgs{count: len(inv.args), evalArg: evalArg, evalLambda: evalLambda})
}

// evalTypeFunction handles the three type-introspection functions that
// take a type name as a bare identifier argument rather than a general
// expression: is(Type), as(Type), ofType(Type).
func evalTypeFunction(ctx context.Context, left Collection, inv *invocationNode) (Collection, error) {
	if len(inv.args) != 1 {
		return nil, newArityError("%s() takes exactly one type-name argument", inv.name)
	}
	spec, err := typeArgumentSpec(inv.args[0])
	if err != nil {
		return nil, err
	}
	switch inv.name {
	case "is":
		v, ok, err := Singleton[Element](left)
		if err != nil {
			return nil, err
		}
		if !ok {
			return Collection{Boolean(false)}, nil
		}
		return Collection{Boolean(isType(ctx, v, spec))}, nil
	case "as":
		v, ok, err := Singleton[Element](left)
		if err != nil {
			return nil, err
		}
		if !ok || !isType(ctx, v, spec) {
			return nil, nil
		}
		return Collection{v}, nil
	default: // ofType
		var out Collection
		for _, v := range left {
			if isType(ctx, v, spec) {
				out = append(out, v)
			}
		}
		return out, nil
	}
}

// evalSort implements sort(key, ...): a stable sort over left by one or
// more keys, each evaluated with $this bound to the element being ranked.
// An empty key list sorts by the elements' own natural ordering.
func evalSort(ctx context.Context, left Collection, inv *invocationNode) (Collection, error) {
	keys := inv.args
	if len(keys) == 0 {
		keys = []node{&sortArgNode{expr: &thisNode{}}}
	}

	type ranked struct {
		el   Element
		vals []Collection
	}
	rows := make([]ranked, len(left))
	for i, el := range left {
		vals := make([]Collection, len(keys))
		for k, keyNode := range keys {
			sa, ok := keyNode.(*sortArgNode)
			if !ok {
				return nil, newResolutionError("sort(): malformed sort argument")
			}
			v, err := evalNode(ctx, Collection{el}, sa.expr)
			if err != nil {
				return nil, err
			}
			vals[k] = v
		}
		rows[i] = ranked{el: el, vals: vals}
	}

	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		for k, keyNode := range keys {
			sa := keyNode.(*sortArgNode)
			cmp, ok, err := rows[i].vals[k].Cmp(rows[j].vals[k])
			if err != nil {
				sortErr = err
				return false
			}
			if !ok || cmp == 0 {
				continue
			}
			if sa.descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}

	out := make(Collection, len(rows))
	for i, r := range rows {
		out[i] = r.el
	}
	return out, nil
}

// typeArgumentSpec reads a type name out of an argument AST node without
// evaluating it as an expression: it must be a bare identifier or a
// namespace.Name member chain.
func typeArgumentSpec(n node) (TypeSpecifier, error) {
	switch v := n.(type) {
	case *identNode:
		return TypeSpecifier{Name: v.name}, nil
	case *memberNode:
		ns, ok := v.target.(*identNode)
		step, okStep := v.step.(*identNode)
		if !ok || !okStep {
			return TypeSpecifier{}, newParseError(v.Pos(), "expected a type name")
		}
		return TypeSpecifier{Namespace: ns.name, Name: step.name}, nil
	default:
		return TypeSpecifier{}, newParseError(n.Pos(), "expected a type name")
	}
}
