package expr

import (
	"math"
	"strings"

	"github.com/lemonberrylabs/condeval/pkg/classes"
	"github.com/lemonberrylabs/condeval/pkg/types"
)

// Context provides variable bindings and type lookup for one evaluation.
type Context struct {
	// Vars holds the variable bindings. Missing names evaluate to null.
	Vars map[string]types.Value

	// Classes resolves type names for :>, <: and .class. Required only by
	// expressions that use them.
	Classes classes.Resolver
}

func (c *Context) variable(name string) types.Value {
	if c == nil || c.Vars == nil {
		return types.Null
	}
	v, ok := c.Vars[name]
	if !ok {
		return types.Null
	}
	return v
}

// Evaluate evaluates an expression node within the given context.
func Evaluate(node Node, ctx *Context) (types.Value, error) {
	switch n := node.(type) {
	case *LiteralNode:
		return n.Value, nil
	case *VariableNode:
		return ctx.variable(n.Name), nil
	case *UnaryNode:
		return evalUnary(n, ctx)
	case *BinaryNode:
		return evalBinary(n, ctx)
	case *FunctionCallNode:
		return evalFunctionCall(n, ctx)
	case *MethodCallNode:
		return evalMethodCall(n, ctx)
	case *ClassRefNode:
		return evalClassRef(n, ctx)
	case *PropertyNode:
		return types.Null, types.NewEvaluationError("property access %s is not supported for safety", n)
	default:
		return types.Null, types.NewEvaluationError("unsupported expression node type: %T", node)
	}
}

func evalUnary(n *UnaryNode, ctx *Context) (types.Value, error) {
	operand, err := Evaluate(n.Operand, ctx)
	if err != nil {
		return types.Null, err
	}

	switch n.Op {
	case TokenNot:
		return types.NewBool(!ToBoolean(operand)), nil
	case TokenMinus:
		return types.NewDouble(-ToDouble(operand)), nil
	default:
		return types.Null, types.NewEvaluationError("unsupported unary operator: %s", n.Op.Symbol())
	}
}

func evalBinary(n *BinaryNode, ctx *Context) (types.Value, error) {
	// Short-circuit for logical operators
	if n.Op == TokenAnd || n.Op == TokenOr {
		left, err := Evaluate(n.Left, ctx)
		if err != nil {
			return types.Null, err
		}
		l := ToBoolean(left)
		if n.Op == TokenAnd && !l {
			return types.NewBool(false), nil
		}
		if n.Op == TokenOr && l {
			return types.NewBool(true), nil
		}
		right, err := Evaluate(n.Right, ctx)
		if err != nil {
			return types.Null, err
		}
		return types.NewBool(ToBoolean(right)), nil
	}

	left, err := Evaluate(n.Left, ctx)
	if err != nil {
		return types.Null, err
	}
	right, err := Evaluate(n.Right, ctx)
	if err != nil {
		return types.Null, err
	}

	switch n.Op {
	case TokenEq:
		return types.NewBool(equals(left, right)), nil
	case TokenNeq:
		return types.NewBool(!equals(left, right)), nil
	case TokenLt:
		return evalCompare(left, right, func(c int) bool { return c < 0 }), nil
	case TokenGt:
		return evalCompare(left, right, func(c int) bool { return c > 0 }), nil
	case TokenLte:
		return evalCompare(left, right, func(c int) bool { return c <= 0 }), nil
	case TokenGte:
		return evalCompare(left, right, func(c int) bool { return c >= 0 }), nil
	case TokenAssignableTo:
		return evalAssignable(left, right, ctx)
	case TokenAssignableFrom:
		return evalAssignable(right, left, ctx)
	case TokenPlus:
		return types.NewDouble(ToDouble(left) + ToDouble(right)), nil
	case TokenMinus:
		return types.NewDouble(ToDouble(left) - ToDouble(right)), nil
	case TokenStar:
		return types.NewDouble(ToDouble(left) * ToDouble(right)), nil
	case TokenSlash:
		return types.NewDouble(ToDouble(left) / ToDouble(right)), nil
	case TokenCaret:
		return types.NewDouble(math.Pow(ToDouble(left), ToDouble(right))), nil
	default:
		return types.Null, types.NewEvaluationError("unsupported binary operator: %s", n.Op.Symbol())
	}
}

// equals implements == semantics: null only equals null, numbers and
// numeric strings compare as doubles, everything else by value.
func equals(left, right types.Value) bool {
	if left.IsNull() || right.IsNull() {
		return left.IsNull() && right.IsNull()
	}
	if isNumeric(left) || isNumeric(right) {
		return ToDouble(left) == ToDouble(right)
	}
	return left.Equal(right)
}

// evalCompare orders two values. A null operand makes every ordering false.
func evalCompare(left, right types.Value, test func(int) bool) types.Value {
	if left.IsNull() || right.IsNull() {
		return types.NewBool(false)
	}
	if isNumeric(left) || isNumeric(right) {
		a, b := ToDouble(left), ToDouble(right)
		switch {
		case a < b:
			return types.NewBool(test(-1))
		case a > b:
			return types.NewBool(test(1))
		case a == b:
			return types.NewBool(test(0))
		default:
			// NaN is unordered.
			return types.NewBool(false)
		}
	}
	return types.NewBool(test(strings.Compare(left.String(), right.String())))
}

// evalAssignable reports whether subject is assignable to the class named
// by target.
func evalAssignable(subject, target types.Value, ctx *Context) (types.Value, error) {
	resolver, err := ctx.resolver()
	if err != nil {
		return types.Null, err
	}

	to, err := resolveTargetClass(target, resolver)
	if err != nil {
		return types.Null, err
	}
	from := resolveSubjectClass(subject, resolver)
	return types.NewBool(from.AssignableTo(to)), nil
}

func (c *Context) resolver() (classes.Resolver, error) {
	if c == nil || c.Classes == nil {
		return nil, types.NewEvaluationError("no class resolver configured")
	}
	return c.Classes, nil
}

// resolveTargetClass requires a class handle or the name of a known class.
func resolveTargetClass(v types.Value, resolver classes.Resolver) (*types.Class, error) {
	switch v.Type() {
	case types.TypeClass:
		return v.AsClass(), nil
	case types.TypeString:
		c, ok := resolver.Lookup(v.AsString())
		if !ok {
			return nil, types.NewEvaluationError("cannot resolve class %q", v.AsString())
		}
		return c, nil
	default:
		return nil, types.NewEvaluationError("cannot resolve class from %s value", v.Type())
	}
}

// resolveSubjectClass takes a class handle as itself, a string naming a
// known class as that class, and anything else as its runtime class.
func resolveSubjectClass(v types.Value, resolver classes.Resolver) *types.Class {
	switch v.Type() {
	case types.TypeClass:
		return v.AsClass()
	case types.TypeString:
		if c, ok := resolver.Lookup(v.AsString()); ok {
			return c
		}
	}
	return resolver.ClassOf(v)
}

func evalFunctionCall(n *FunctionCallNode, ctx *Context) (types.Value, error) {
	args, err := evalArgs(n.Args, ctx)
	if err != nil {
		return types.Null, err
	}
	return callFunction(n.Name, args)
}

func evalMethodCall(n *MethodCallNode, ctx *Context) (types.Value, error) {
	target, err := Evaluate(n.Target, ctx)
	if err != nil {
		return types.Null, err
	}
	args, err := evalArgs(n.Args, ctx)
	if err != nil {
		return types.Null, err
	}
	return callMethod(n.Name, target, args)
}

func evalArgs(nodes []Node, ctx *Context) ([]types.Value, error) {
	args := make([]types.Value, len(nodes))
	for i, arg := range nodes {
		val, err := Evaluate(arg, ctx)
		if err != nil {
			return nil, err
		}
		args[i] = val
	}
	return args, nil
}

func evalClassRef(n *ClassRefNode, ctx *Context) (types.Value, error) {
	v := ctx.variable(n.Variable.Name)
	if v.Type() != types.TypeClass {
		return types.Null, types.NewEvaluationError("%s.class requires a class value, got %s", n.Variable.Name, v.Type())
	}
	return v, nil
}
