package fhirpath

import (
	"context"
	"fmt"
)

// Expression is a parsed FHIRPath expression, safe to evaluate repeatedly
// and concurrently: the parser produces an immutable tree and Evaluate
// never mutates it.
type Expression struct {
	root node
	src  string
}

// Parse tokenizes and parses a FHIRPath expression string.
func Parse(expr string) (Expression, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return Expression{}, err
	}
	root, err := parseTokens(tokens)
	if err != nil {
		return Expression{}, err
	}
	return Expression{root: root, src: expr}, nil
}

// MustParse is Parse, panicking on error; intended for constant expressions
// known at init time.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(fmt.Sprintf("fhirpath: MustParse(%q): %v", expr, err))
	}
	return e
}

func (e Expression) String() string { return e.src }

// Evaluate runs expr against target, which becomes both `%context` and the
// initial input collection (and, if non-nil, `%resource`/`$this`). Pass a
// nil target to evaluate a target-independent expression such as a literal
// or a constant computation.
func Evaluate(ctx context.Context, target Element, expr Expression) (Collection, error) {
	var input Collection
	if target != nil {
		input = Collection{target}
	}
	ctx = withClonedEnvFrame(ctx)
	if target != nil {
		ctx = withEnvBinding(ctx, "context", input)
		ctx = withEnvBinding(ctx, "resource", input)
	}
	ctx = withEnvBinding(ctx, "ucum", Collection{String("http://unitsofmeasure.org")})
	ctx = withEnvBinding(ctx, "loinc", Collection{String("http://loinc.org")})
	ctx = withEnvBinding(ctx, "sct", Collection{String("http://snomed.info/sct")})
	return evalNode(ctx, input, expr.root)
}

// evalNode is the tree-walking dispatch at the heart of the evaluator: each
// AST node kind evaluates against the collection flowing in from its
// enclosing step ("this" being $this for that node, the left-hand-side
// result for a member/indexer step).
func evalNode(ctx context.Context, this Collection, n node) (_ Collection, err error) {
	defer func() {
		// Give an evaluation error the position of the innermost node it
		// passed through, unless it already carries one.
		if d, isDiag := err.(*Diagnostic); isDiag && n != nil && d.Line == 0 && d.Column == 0 {
			pos := n.Pos()
			d.Line, d.Column = pos.line, pos.column
		}
	}()
	switch v := n.(type) {
	case *literalNode:
		return evalLiteral(ctx, v)
	case *identNode:
		return evalIdentifier(ctx, this, v)
	case *externalConstantNode:
		return evalExternalConstant(ctx, v)
	case *thisNode:
		return this, nil
	case *indexNode:
		fs, ok := getFunctionScope(ctx)
		if !ok {
			return nil, newResolutionError("$index is only defined inside a lambda-argument function")
		}
		return Collection{Integer(fs.index)}, nil
	case *totalNode:
		fs, ok := getFunctionScope(ctx)
		if !ok || fs.total == nil {
			return nil, newResolutionError("$total is only defined inside aggregate()")
		}
		return fs.total, nil
	case *invocationNode:
		return evalInvocation(ctx, this, this, v)
	case *memberNode:
		return evalMember(ctx, this, v)
	case *indexerNode:
		return evalIndexer(ctx, this, v)
	case *polarityNode:
		return evalPolarity(ctx, this, v)
	case *binaryNode:
		return evalBinary(ctx, this, v)
	case *typeExprNode:
		return evalTypeExpr(ctx, this, v)
	default:
		return nil, newResolutionError("unhandled AST node %T", n)
	}
}

func evalMember(ctx context.Context, this Collection, n *memberNode) (Collection, error) {
	left, err := evalNode(ctx, this, n.target)
	if err != nil {
		return nil, err
	}
	switch step := n.step.(type) {
	case *identNode:
		return evalIdentifier(ctx, left, step)
	case *invocationNode:
		return evalInvocation(ctx, this, left, step)
	case *thisNode:
		return left, nil
	case *indexNode, *totalNode:
		return evalNode(ctx, left, step)
	default:
		return nil, newResolutionError("unhandled member step %T", step)
	}
}

// evalIdentifier implements plain member-access navigation: look up the
// name as a child of every element of left (the root-level "Resource type
// name as a no-op filter" special case is left to a host's Children
// implementation, which is expected to return itself when name equals its
// own resource type).
func evalIdentifier(ctx context.Context, left Collection, id *identNode) (Collection, error) {
	var out Collection
	for _, el := range left {
		out = append(out, el.Children(id.name)...)
	}
	return out, nil
}

func evalExternalConstant(ctx context.Context, n *externalConstantNode) (Collection, error) {
	v, ok := envValue(ctx, n.name)
	if !ok {
		return nil, newResolutionError("unknown external constant %%%s", n.name)
	}
	return v, nil
}

func evalIndexer(ctx context.Context, this Collection, n *indexerNode) (Collection, error) {
	left, err := evalNode(ctx, this, n.target)
	if err != nil {
		return nil, err
	}
	idxColl, err := evalNode(ctx, this, n.index)
	if err != nil {
		return nil, err
	}
	idx, ok, err := Singleton[Integer](idxColl)
	if err != nil {
		return nil, err
	}
	if !ok || int(idx) < 0 || int(idx) >= len(left) {
		return nil, nil
	}
	return Collection{left[idx]}, nil
}

func evalPolarity(ctx context.Context, this Collection, n *polarityNode) (Collection, error) {
	arg, err := evalNode(ctx, this, n.arg)
	if err != nil {
		return nil, err
	}
	if n.op == tokPlus {
		return arg, nil
	}
	v, ok, err := Singleton[Element](arg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	negated, err := negateElement(ctx, v)
	if err != nil {
		return nil, err
	}
	return Collection{negated}, nil
}

func negateElement(ctx context.Context, v Element) (Element, error) {
	switch e := v.(type) {
	case Integer:
		return Integer(0).Subtract(ctx, e)
	case Long:
		return Long(0).Subtract(ctx, e)
	case Decimal:
		return newDecimalFromInt64(0).Subtract(ctx, e)
	case Quantity:
		neg, err := newDecimalFromInt64(0).Subtract(ctx, e.Value)
		if err != nil {
			return nil, err
		}
		return Quantity{Value: neg.(Decimal), Unit: e.Unit}, nil
	default:
		return nil, newTypeError("unary '-' is not defined for %T", v)
	}
}

func evalBinary(ctx context.Context, this Collection, n *binaryNode) (Collection, error) {
	switch n.op {
	case tokAnd, tokOr, tokXor, tokImplies:
		return evalBooleanOp(ctx, this, n)
	}

	leftCtx, rightCtx := ctx, ctx
	if n.op == tokPipe {
		// Each union branch gets its own copy of the env frame, so a
		// defineVariable() in one branch is not seen outside it.
		leftCtx, rightCtx = withClonedEnvFrame(ctx), withClonedEnvFrame(ctx)
	}
	left, err := evalNode(leftCtx, this, n.left)
	if err != nil {
		return nil, err
	}
	right, err := evalNode(rightCtx, this, n.right)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case tokPlus:
		return left.Add(ctx, right)
	case tokMinus:
		return left.Subtract(ctx, right)
	case tokStar:
		return left.Multiply(ctx, right)
	case tokSlash:
		return left.Divide(ctx, right)
	case tokDiv:
		return left.Div(ctx, right)
	case tokMod:
		return left.Mod(ctx, right)
	case tokAmp:
		return left.Concat(ctx, right)
	case tokPipe:
		return left.Union(right), nil
	case tokEq:
		eq, ok := left.Equal(right)
		if !ok {
			return nil, nil
		}
		return Collection{Boolean(eq)}, nil
	case tokNeq:
		eq, ok := left.Equal(right)
		if !ok {
			return nil, nil
		}
		return Collection{Boolean(!eq)}, nil
	case tokEquiv:
		return Collection{Boolean(left.Equivalent(right))}, nil
	case tokNequiv:
		return Collection{Boolean(!left.Equivalent(right))}, nil
	case tokLt, tokGt, tokLe, tokGe:
		cmp, ok, err := left.Cmp(right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return Collection{Boolean(compareSatisfies(n.op, cmp))}, nil
	case tokIn:
		return evalMembership(right, left)
	case tokContains:
		return evalMembership(left, right)
	default:
		return nil, newResolutionError("unhandled binary operator %v", n.op)
	}
}

func compareSatisfies(op tokenKind, cmp int) bool {
	switch op {
	case tokLt:
		return cmp < 0
	case tokGt:
		return cmp > 0
	case tokLe:
		return cmp <= 0
	default: // tokGe
		return cmp >= 0
	}
}

// evalMembership implements both `in` (needle in haystack) and `contains`
// (haystack contains needle) as the same haystack.Contains(needle) check
// with arguments swapped by the caller.
func evalMembership(haystack, needle Collection) (Collection, error) {
	if len(needle) == 0 {
		return nil, nil
	}
	v, ok, err := Singleton[Element](needle)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return Collection{Boolean(haystack.Contains(v))}, nil
}

// evalBooleanOp implements FHIRPath's three-valued (Kleene) logic for and,
// or, xor, and implies. Each operand is coerced to a boolean singleton;
// "empty" behaves as an unknown third truth value that short-circuits only
// when the known operand already decides the result.
func evalBooleanOp(ctx context.Context, this Collection, n *binaryNode) (Collection, error) {
	left, err := evalNode(ctx, this, n.left)
	if err != nil {
		return nil, err
	}
	lb, lok, err := Singleton[Boolean](left)
	if err != nil {
		return nil, err
	}

	// `implies` and `or` can short-circuit on a known left operand without
	// evaluating the right side at all.
	if n.op == tokOr && lok && bool(lb) {
		return Collection{Boolean(true)}, nil
	}
	if n.op == tokAnd && lok && !bool(lb) {
		return Collection{Boolean(false)}, nil
	}
	if n.op == tokImplies && lok && !bool(lb) {
		return Collection{Boolean(true)}, nil
	}

	right, err := evalNode(ctx, this, n.right)
	if err != nil {
		return nil, err
	}
	rb, rok, err := Singleton[Boolean](right)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case tokAnd:
		if lok && rok {
			return Collection{Boolean(lb && rb)}, nil
		}
		if (lok && !bool(lb)) || (rok && !bool(rb)) {
			return Collection{Boolean(false)}, nil
		}
		return nil, nil
	case tokOr:
		if lok && rok {
			return Collection{Boolean(lb || rb)}, nil
		}
		if (lok && bool(lb)) || (rok && bool(rb)) {
			return Collection{Boolean(true)}, nil
		}
		return nil, nil
	case tokXor:
		if !lok || !rok {
			return nil, nil
		}
		return Collection{Boolean(lb != rb)}, nil
	case tokImplies:
		if !lok {
			if rok && bool(rb) {
				return Collection{Boolean(true)}, nil
			}
			return nil, nil
		}
		// lok && bool(lb) here, since the false case short-circuited above.
		if rok {
			return Collection{Boolean(rb)}, nil
		}
		return nil, nil
	default:
		return nil, newResolutionError("unhandled boolean operator %v", n.op)
	}
}

func evalTypeExpr(ctx context.Context, this Collection, n *typeExprNode) (Collection, error) {
	left, err := evalNode(ctx, this, n.target)
	if err != nil {
		return nil, err
	}
	spec := TypeSpecifier{Namespace: n.namespace, Name: n.typeName}
	if n.op == tokIs {
		v, ok, err := Singleton[Element](left)
		if err != nil {
			return nil, err
		}
		if !ok {
			return Collection{Boolean(false)}, nil
		}
		return Collection{Boolean(isType(ctx, v, spec))}, nil
	}
	// as
	v, ok, err := Singleton[Element](left)
	if err != nil {
		return nil, err
	}
	if !ok || !isType(ctx, v, spec) {
		return nil, nil
	}
	return Collection{v}, nil
}
