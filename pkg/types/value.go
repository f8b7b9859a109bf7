// Package types defines the dynamic values that flow through the condition
// expression evaluator: null, bool, double, string, collection, array and
// class references.
package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType represents the kind of a Value.
type ValueType int

const (
	TypeNull       ValueType = iota
	TypeBool                 // bool
	TypeDouble               // float64
	TypeString               // string
	TypeCollection           // []Value, growable collection semantics
	TypeArray                // []Value, fixed array semantics
	TypeClass                // *Class
)

// String returns the type name used in error messages.
func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "boolean"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeCollection:
		return "collection"
	case TypeArray:
		return "array"
	case TypeClass:
		return "class"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed expression value. It is a tagged union; the
// zero Value is null.
type Value struct {
	typ       ValueType
	boolVal   bool
	doubleVal float64
	stringVal string
	listVal   []Value
	classVal  *Class
}

// Null is the singleton null value.
var Null = Value{typ: TypeNull}

// NewBool creates a boolean value.
func NewBool(v bool) Value {
	return Value{typ: TypeBool, boolVal: v}
}

// NewDouble creates a double value.
func NewDouble(v float64) Value {
	return Value{typ: TypeDouble, doubleVal: v}
}

// NewString creates a string value.
func NewString(v string) Value {
	return Value{typ: TypeString, stringVal: v}
}

// NewCollection creates a collection value from a slice of values.
func NewCollection(v []Value) Value {
	return Value{typ: TypeCollection, listVal: v}
}

// NewArray creates an array value from a slice of values.
func NewArray(v []Value) Value {
	return Value{typ: TypeArray, listVal: v}
}

// NewClass creates a class reference value. A nil class yields null.
func NewClass(c *Class) Value {
	if c == nil {
		return Null
	}
	return Value{typ: TypeClass, classVal: c}
}

// Type returns the value's type.
func (v Value) Type() ValueType {
	return v.typ
}

// IsNull returns true if the value is null.
func (v Value) IsNull() bool {
	return v.typ == TypeNull
}

// IsList reports whether the value is a collection or an array.
func (v Value) IsList() bool {
	return v.typ == TypeCollection || v.typ == TypeArray
}

// AsBool returns the boolean value. Panics if not a bool.
func (v Value) AsBool() bool {
	if v.typ != TypeBool {
		panic(fmt.Sprintf("AsBool called on %s value", v.typ))
	}
	return v.boolVal
}

// AsDouble returns the double value. Panics if not a double.
func (v Value) AsDouble() float64 {
	if v.typ != TypeDouble {
		panic(fmt.Sprintf("AsDouble called on %s value", v.typ))
	}
	return v.doubleVal
}

// AsString returns the string value. Panics if not a string.
func (v Value) AsString() string {
	if v.typ != TypeString {
		panic(fmt.Sprintf("AsString called on %s value", v.typ))
	}
	return v.stringVal
}

// AsList returns the elements of a collection or array. Panics otherwise.
func (v Value) AsList() []Value {
	if !v.IsList() {
		panic(fmt.Sprintf("AsList called on %s value", v.typ))
	}
	return v.listVal
}

// AsClass returns the class reference. Panics if not a class.
func (v Value) AsClass() *Class {
	if v.typ != TypeClass {
		panic(fmt.Sprintf("AsClass called on %s value", v.typ))
	}
	return v.classVal
}

// Equal tests value equality. Numbers compare by value, strings and booleans
// by content, collections and arrays element-wise, classes by name.
// Collections and arrays never equal each other.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeNull:
		return true
	case TypeBool:
		return v.boolVal == other.boolVal
	case TypeDouble:
		return v.doubleVal == other.doubleVal
	case TypeString:
		return v.stringVal == other.stringVal
	case TypeCollection, TypeArray:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equal(other.listVal[i]) {
				return false
			}
		}
		return true
	case TypeClass:
		return v.classVal == other.classVal || v.classVal.Name == other.classVal.Name
	}
	return false
}

// String renders the value the way string coercion sees it.
func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeBool:
		return strconv.FormatBool(v.boolVal)
	case TypeDouble:
		return FormatDouble(v.doubleVal)
	case TypeString:
		return v.stringVal
	case TypeCollection, TypeArray:
		parts := make([]string, len(v.listVal))
		for i, item := range v.listVal {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeClass:
		return "class " + v.classVal.Name
	}
	return "<unknown>"
}

// FormatDouble formats a double with a trailing ".0" for integral values,
// e.g. 7 -> "7.0", 0.5 -> "0.5".
func FormatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ToGoValue converts a Value to a plain Go value suitable for JSON marshaling.
func (v Value) ToGoValue() interface{} {
	switch v.typ {
	case TypeNull:
		return nil
	case TypeBool:
		return v.boolVal
	case TypeDouble:
		return v.doubleVal
	case TypeString:
		return v.stringVal
	case TypeCollection, TypeArray:
		result := make([]interface{}, len(v.listVal))
		for i, item := range v.listVal {
			result[i] = item.ToGoValue()
		}
		return result
	case TypeClass:
		return v.classVal.Name
	}
	return nil
}
