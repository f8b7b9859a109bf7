package expr

import (
	"fmt"
	"log/slog"

	"github.com/lemonberrylabs/condeval/pkg/classes"
	"github.com/lemonberrylabs/condeval/pkg/types"
)

// Expression is a compiled expression. The AST is built once by Compile and
// can be evaluated any number of times against different bindings.
//
// Evaluation is safe for concurrent use provided the bound variables are
// not modified at the same time. SetVar and ClearVars are not synchronized;
// callers that mutate bound variables concurrently must serialize access
// themselves, or use one Expression per goroutine.
type Expression struct {
	source  string
	root    Node
	vars    map[string]types.Value
	classes classes.Resolver
	logger  *slog.Logger
}

// Option configures an Expression.
type Option func(*Expression)

// WithLogger sets the logger used to report failures in the non-throwing
// evaluation methods. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Expression) {
		e.logger = logger
	}
}

// WithClasses sets the type lookup used by :>, <: and .class. Defaults to a
// fresh classes.Registry with the builtin hierarchy.
func WithClasses(r classes.Resolver) Option {
	return func(e *Expression) {
		e.classes = r
	}
}

// Compile parses source into an Expression. Malformed input fails with a
// SyntaxError; there is no partially compiled result.
func Compile(source string, opts ...Option) (*Expression, error) {
	root, err := ParseExpression(source)
	if err != nil {
		return nil, err
	}

	e := &Expression{
		source: source,
		root:   root,
		vars:   make(map[string]types.Value),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classes == nil {
		e.classes = classes.NewRegistry()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// MustCompile is like Compile but panics on error. Intended for expressions
// fixed at build time.
func MustCompile(source string, opts ...Option) *Expression {
	e, err := Compile(source, opts...)
	if err != nil {
		panic(fmt.Sprintf("expr: Compile(%q): %v", source, err))
	}
	return e
}

// Source returns the original expression text.
func (e *Expression) Source() string {
	return e.source
}

// Root returns the parsed AST.
func (e *Expression) Root() Node {
	return e.root
}

// SetVar binds a variable for every subsequent evaluation. The value is
// converted with types.FromGo.
func (e *Expression) SetVar(name string, value interface{}) error {
	v, err := types.FromGo(value)
	if err != nil {
		return fmt.Errorf("variable %q: %w", name, err)
	}
	e.vars[name] = v
	return nil
}

// ClearVars removes all bound variables.
func (e *Expression) ClearVars() {
	e.vars = make(map[string]types.Value)
}

// HasVar reports whether name is bound.
func (e *Expression) HasVar(name string) bool {
	_, ok := e.vars[name]
	return ok
}

// Eval evaluates the expression and returns its dynamic value. vars are
// layered over the bound variables for this call only.
func (e *Expression) Eval(vars map[string]interface{}) (types.Value, error) {
	call, err := types.FromGoMap(vars)
	if err != nil {
		return types.Null, types.NewEvaluationError("%v", err)
	}
	return e.EvalValues(call)
}

// EvalValues is Eval for callers that already hold converted values.
func (e *Expression) EvalValues(vars map[string]types.Value) (types.Value, error) {
	ctx := &Context{
		Vars:    e.merge(vars),
		Classes: e.classes,
	}
	return Evaluate(e.root, ctx)
}

// merge builds the per-call binding map. Call entries win over bound ones.
func (e *Expression) merge(call map[string]types.Value) map[string]types.Value {
	if len(call) == 0 {
		return e.vars
	}
	if len(e.vars) == 0 {
		return call
	}
	merged := make(map[string]types.Value, len(e.vars)+len(call))
	for k, v := range e.vars {
		merged[k] = v
	}
	for k, v := range call {
		merged[k] = v
	}
	return merged
}

// Evaluate evaluates the expression and coerces the result to a double.
func (e *Expression) Evaluate(vars map[string]interface{}) (float64, error) {
	v, err := e.Eval(vars)
	if err != nil {
		return 0, err
	}
	return ToDouble(v), nil
}

// EvaluateBoolean evaluates the expression and coerces the result to a
// boolean.
func (e *Expression) EvaluateBoolean(vars map[string]interface{}) (bool, error) {
	v, err := e.Eval(vars)
	if err != nil {
		return false, err
	}
	return ToBoolean(v), nil
}

// EvaluateOrZero is Evaluate for callers that must not fail: errors are
// logged and 0 is returned.
func (e *Expression) EvaluateOrZero(vars map[string]interface{}) float64 {
	f, err := e.Evaluate(vars)
	if err != nil {
		e.logFailure(err)
		return 0
	}
	return f
}

// EvaluateBooleanOrFalse is EvaluateBoolean for callers that must not fail:
// errors are logged and false is returned.
func (e *Expression) EvaluateBooleanOrFalse(vars map[string]interface{}) bool {
	b, err := e.EvaluateBoolean(vars)
	if err != nil {
		e.logFailure(err)
		return false
	}
	return b
}

func (e *Expression) logFailure(err error) {
	e.logger.Warn("expression evaluation failed",
		"expression", e.source,
		"error", err)
}
