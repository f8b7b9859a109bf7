package expr

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/lemonberrylabs/condeval/pkg/types"
)

// isMathFunction reports whether name is one of the callable math functions.
// Keep in sync with callFunction.
func isMathFunction(name string) bool {
	switch name {
	case "sqrt", "pow", "log", "sin", "cos", "abs", "random":
		return true
	default:
		return false
	}
}

// callFunction dispatches a math function over an explicit closed set.
// Arguments are already evaluated.
func callFunction(name string, args []types.Value) (types.Value, error) {
	if !isMathFunction(name) {
		return types.Null, types.NewEvaluationError("unsupported function %s", name)
	}
	nums, err := numericArgs(name, args)
	if err != nil {
		return types.Null, err
	}

	switch name {
	case "sqrt":
		return unary(name, nums, math.Sqrt)
	case "log":
		return unary(name, nums, math.Log)
	case "sin":
		return unary(name, nums, math.Sin)
	case "cos":
		return unary(name, nums, math.Cos)
	case "abs":
		return unary(name, nums, math.Abs)
	case "pow":
		if err := requireArgs(name, nums, 2); err != nil {
			return types.Null, err
		}
		return types.NewDouble(math.Pow(nums[0], nums[1])), nil
	case "random":
		if err := requireArgs(name, nums, 2); err != nil {
			return types.Null, err
		}
		lo, hi := nums[0], nums[1]
		if lo > hi {
			lo, hi = hi, lo
		}
		return types.NewDouble(lo + rand.Float64()*(hi-lo)), nil
	default:
		return types.Null, types.NewEvaluationError("unsupported function %s", name)
	}
}

// callMethod dispatches a method over an explicit closed set. The target is
// already evaluated; so are the arguments.
func callMethod(name string, target types.Value, args []types.Value) (types.Value, error) {
	switch name {
	case "contains":
		if len(args) != 1 {
			return types.Null, types.NewEvaluationError("contains expects 1 argument, got %d", len(args))
		}
		return contains(target, args[0])
	default:
		return types.Null, types.NewEvaluationError("method %s is not allowed", name)
	}
}

func contains(target, arg types.Value) (types.Value, error) {
	switch target.Type() {
	case types.TypeNull:
		return types.NewBool(false), nil
	case types.TypeCollection, types.TypeArray:
		for _, item := range target.AsList() {
			if item.Equal(arg) {
				return types.NewBool(true), nil
			}
		}
		return types.NewBool(false), nil
	case types.TypeString:
		return types.NewBool(strings.Contains(target.AsString(), arg.String())), nil
	default:
		return types.Null, types.NewEvaluationError("contains is not allowed on %s values", target.Type())
	}
}

// numericArgs coerces math function arguments. Only doubles and numeric
// strings are accepted.
func numericArgs(name string, args []types.Value) ([]float64, error) {
	nums := make([]float64, len(args))
	for i, arg := range args {
		if !isNumeric(arg) {
			return nil, types.NewEvaluationError("%s argument %d must be numeric, got %s", name, i+1, arg.Type())
		}
		nums[i] = ToDouble(arg)
	}
	return nums, nil
}

func unary(name string, nums []float64, fn func(float64) float64) (types.Value, error) {
	if err := requireArgs(name, nums, 1); err != nil {
		return types.Null, err
	}
	return types.NewDouble(fn(nums[0])), nil
}

func requireArgs(name string, nums []float64, n int) error {
	if len(nums) != n {
		return types.NewEvaluationError("%s expects %d argument(s), got %d", name, n, len(nums))
	}
	return nil
}
