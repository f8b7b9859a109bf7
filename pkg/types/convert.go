package types

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// FromGo converts a host Go value into a Value. Only the value kinds the
// evaluator understands are accepted; maps, structs and functions are
// rejected so that no host object graph can leak into an expression.
func FromGo(v interface{}) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null, nil
	case Value:
		return val, nil
	case *Class:
		return NewClass(val), nil
	case bool:
		return NewBool(val), nil
	case string:
		return NewString(val), nil
	case float64:
		return NewDouble(val), nil
	case float32:
		return NewDouble(float64(val)), nil
	case int:
		return NewDouble(float64(val)), nil
	case int8:
		return NewDouble(float64(val)), nil
	case int16:
		return NewDouble(float64(val)), nil
	case int32:
		return NewDouble(float64(val)), nil
	case int64:
		return NewDouble(float64(val)), nil
	case uint:
		return NewDouble(float64(val)), nil
	case uint8:
		return NewDouble(float64(val)), nil
	case uint16:
		return NewDouble(float64(val)), nil
	case uint32:
		return NewDouble(float64(val)), nil
	case uint64:
		return NewDouble(float64(val)), nil
	case []Value:
		return NewCollection(val), nil
	case []interface{}:
		items := make([]Value, len(val))
		for i, item := range val {
			conv, err := FromGo(item)
			if err != nil {
				return Null, fmt.Errorf("element %d: %w", i, err)
			}
			items[i] = conv
		}
		return NewCollection(items), nil
	case []string:
		items := make([]Value, len(val))
		for i, s := range val {
			items[i] = NewString(s)
		}
		return NewCollection(items), nil
	case []float64:
		items := make([]Value, len(val))
		for i, f := range val {
			items[i] = NewDouble(f)
		}
		return NewCollection(items), nil
	case []int:
		items := make([]Value, len(val))
		for i, n := range val {
			items[i] = NewDouble(float64(n))
		}
		return NewCollection(items), nil
	case []bool:
		items := make([]Value, len(val))
		for i, b := range val {
			items[i] = NewBool(b)
		}
		return NewCollection(items), nil
	default:
		return Null, fmt.Errorf("unsupported value type %T", v)
	}
}

// FromGoMap converts a map of host values. The first conversion failure is
// returned with the offending key.
func FromGoMap(m map[string]interface{}) (map[string]Value, error) {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		conv, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", k, err)
		}
		out[k] = conv
	}
	return out, nil
}

// FromProto converts a protobuf struct value. JSON objects have no
// counterpart in the value model and are rejected.
func FromProto(v *structpb.Value) (Value, error) {
	switch k := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return Null, nil
	case *structpb.Value_BoolValue:
		return NewBool(k.BoolValue), nil
	case *structpb.Value_NumberValue:
		return NewDouble(k.NumberValue), nil
	case *structpb.Value_StringValue:
		return NewString(k.StringValue), nil
	case *structpb.Value_ListValue:
		items := make([]Value, len(k.ListValue.GetValues()))
		for i, item := range k.ListValue.GetValues() {
			conv, err := FromProto(item)
			if err != nil {
				return Null, fmt.Errorf("element %d: %w", i, err)
			}
			items[i] = conv
		}
		return NewCollection(items), nil
	case *structpb.Value_StructValue:
		return Null, fmt.Errorf("object values are not supported")
	default:
		return Null, fmt.Errorf("unsupported protobuf value %T", k)
	}
}

// FromProtoStruct converts every field of a protobuf struct.
func FromProtoStruct(s *structpb.Struct) (map[string]Value, error) {
	out := make(map[string]Value, len(s.GetFields()))
	for k, v := range s.GetFields() {
		conv, err := FromProto(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", k, err)
		}
		out[k] = conv
	}
	return out, nil
}

// ToProto converts a Value into a protobuf struct value. NaN and the
// infinities have no JSON number form and are sent as their string
// rendering.
func ToProto(v Value) *structpb.Value {
	switch v.typ {
	case TypeBool:
		return structpb.NewBoolValue(v.boolVal)
	case TypeDouble:
		if math.IsNaN(v.doubleVal) || math.IsInf(v.doubleVal, 0) {
			return structpb.NewStringValue(FormatDouble(v.doubleVal))
		}
		return structpb.NewNumberValue(v.doubleVal)
	case TypeString:
		return structpb.NewStringValue(v.stringVal)
	case TypeCollection, TypeArray:
		items := make([]*structpb.Value, len(v.listVal))
		for i, item := range v.listVal {
			items[i] = ToProto(item)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: items})
	case TypeClass:
		return structpb.NewStringValue(v.classVal.Name)
	}
	return structpb.NewNullValue()
}
