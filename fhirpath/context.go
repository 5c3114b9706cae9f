package fhirpath

import (
	"context"
	"maps"

	"github.com/cockroachdb/apd/v3"
)

// apdContextKey, WithAPDContext, and apdContext configure the decimal
// arithmetic precision used throughout evaluation.
type apdContextKey struct{}

// defaultDecimalPrecision keeps 34 significant digits (roughly Decimal128),
// comfortably exceeding the minimum of 18 the FHIRPath spec requires for
// Decimal arithmetic, so intermediate results don't lose precision before a
// final rounding step. WithAPDContext lets a host narrow this.
const defaultDecimalPrecision uint32 = 34

// defaultAPDContext rounds half-away-from-zero, matching the FHIRPath
// Decimal arithmetic invariant; apd.BaseContext defaults to half-to-even,
// so the rounding mode is overridden explicitly rather than inherited.
var defaultAPDContext = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(defaultDecimalPrecision)
	c.Rounding = apd.RoundHalfUp
	return c
}()

// WithAPDContext overrides the decimal precision/rounding context for
// Decimal and Quantity arithmetic in an evaluation.
func WithAPDContext(ctx context.Context, apdCtx *apd.Context) context.Context {
	return context.WithValue(ctx, apdContextKey{}, apdCtx)
}

func apdContextOf(ctx context.Context) *apd.Context {
	if ctx != nil {
		if c, ok := ctx.Value(apdContextKey{}).(*apd.Context); ok && c != nil {
			return c
		}
	}
	return defaultAPDContext
}

// Tracer receives trace() calls made during evaluation.
type Tracer interface {
	Trace(name string, values Collection)
}

type tracerKey struct{}

// WithTracer installs a Tracer that trace() calls report to. Without one,
// trace() is a no-op passthrough.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	return context.WithValue(ctx, tracerKey{}, t)
}

func tracerOf(ctx context.Context) Tracer {
	if ctx != nil {
		if t, ok := ctx.Value(tracerKey{}).(Tracer); ok {
			return t
		}
	}
	return nil
}

// namespaceKey/WithNamespace configure the default type namespace `is`/`as`/
// `ofType` resolve unqualified type names against. Defaults to "System".
type namespaceKey struct{}

func WithNamespace(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, namespaceKey{}, namespace)
}

func namespaceOf(ctx context.Context) string {
	if ctx != nil {
		if ns, ok := ctx.Value(namespaceKey{}).(string); ok && ns != "" {
			return ns
		}
	}
	return "System"
}

// knownTypesKey/WithTypes let a host register additional (namespaced) types
// so `is`/`as`/`ofType` can resolve resource-model type names this module
// never defines itself.
type knownTypesKey struct{}

func WithTypes(ctx context.Context, types map[TypeSpecifier]TypeInfo) context.Context {
	return context.WithValue(ctx, knownTypesKey{}, types)
}

func knownTypesOf(ctx context.Context) map[TypeSpecifier]TypeInfo {
	if ctx != nil {
		if t, ok := ctx.Value(knownTypesKey{}).(map[TypeSpecifier]TypeInfo); ok {
			return t
		}
	}
	return nil
}

// functionsKey/WithFunctions let a host extend or override the built-in
// function registry.
type functionsKey struct{}

func WithFunctions(ctx context.Context, fns Functions) context.Context {
	return context.WithValue(ctx, functionsKey{}, fns)
}

func functionsOf(ctx context.Context) Functions {
	if ctx != nil {
		if fns, ok := ctx.Value(functionsKey{}).(Functions); ok {
			return fns
		}
	}
	return defaultFunctions
}

func lookupFunction(ctx context.Context, name string) (Function, bool) {
	fns := functionsOf(ctx)
	fn, ok := fns[name]
	if ok {
		return fn, true
	}
	fn, ok = defaultFunctions[name]
	return fn, ok
}

// envKey/WithEnv hold the `%`-prefixed environment variables visible during
// evaluation, including the implicit `%context`/`%resource`/`%ucum` and any
// user variables introduced by defineVariable(). Each union branch and
// lambda-argument scope clones the current frame (maps.Clone) so bindings it
// introduces never leak back to the caller's frame.
type envKey struct{}

func WithEnv(ctx context.Context, env map[string]Collection) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

func envOf(ctx context.Context) map[string]Collection {
	if ctx != nil {
		if env, ok := ctx.Value(envKey{}).(map[string]Collection); ok {
			return env
		}
	}
	return nil
}

func envValue(ctx context.Context, name string) (Collection, bool) {
	env := envOf(ctx)
	if env == nil {
		return nil, false
	}
	v, ok := env[name]
	return v, ok
}

// withClonedEnvFrame returns a context carrying a shallow clone of the
// current env frame, so the caller can introduce new bindings (a lambda
// parameter, a defineVariable() result, a union branch's isolation) that
// will not be visible once that subexpression finishes evaluating.
func withClonedEnvFrame(ctx context.Context) context.Context {
	return WithEnv(ctx, maps.Clone(envOf(ctx)))
}

// withEnvBinding adds name to the current env frame and returns ctx
// unchanged. It mutates the frame map in place rather than cloning it, so a
// defineVariable() partway through a `.` chain stays visible to every later
// step sharing this context, even though those steps receive ctx by value
// rather than a returned one. Lambda arguments and union branches still get
// isolation because they run against a frame withClonedEnvFrame copied
// first.
func withEnvBinding(ctx context.Context, name string, value Collection) context.Context {
	env := envOf(ctx)
	if env == nil {
		env = map[string]Collection{}
		ctx = WithEnv(ctx, env)
	}
	env[name] = value
	return ctx
}

// functionScopeKey/FunctionScope bind $this/$index/$total for the duration
// of a lambda-argument expression (the criteria of where(), the projection
// of select(), ...). total is only non-nil inside aggregate(), and each
// nested aggregate() call installs its own, independent $total.
type functionScopeKey struct{}

type functionScope struct {
	this  Collection
	index int
	total Collection
}

// FunctionScope is the subset of functionScope a built-in function needs to
// pass down explicitly when invoking a lambda-argument sub-expression.
type FunctionScope struct {
	Index int
	Total Collection
}

func withFunctionScope(ctx context.Context, this Collection, scope FunctionScope) context.Context {
	return context.WithValue(ctx, functionScopeKey{}, &functionScope{this: this, index: scope.Index, total: scope.Total})
}

func getFunctionScope(ctx context.Context) (*functionScope, bool) {
	if ctx == nil {
		return nil, false
	}
	fs, ok := ctx.Value(functionScopeKey{}).(*functionScope)
	return fs, ok
}
