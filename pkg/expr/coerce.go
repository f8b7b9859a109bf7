package expr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lemonberrylabs/condeval/pkg/types"
)

var numericPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// isNumericString reports whether s, once trimmed, looks like a decimal
// number such as "12", "-3" or "0.25".
func isNumericString(s string) bool {
	return numericPattern.MatchString(strings.TrimSpace(s))
}

// isNumeric reports whether v is a double or a numeric-looking string.
func isNumeric(v types.Value) bool {
	switch v.Type() {
	case types.TypeDouble:
		return true
	case types.TypeString:
		return isNumericString(v.AsString())
	default:
		return false
	}
}

// ToDouble coerces a value to a double. It never fails: values without a
// numeric reading become 0.
func ToDouble(v types.Value) float64 {
	switch v.Type() {
	case types.TypeDouble:
		return v.AsDouble()
	case types.TypeBool:
		if v.AsBool() {
			return 1
		}
		return 0
	case types.TypeString:
		s := strings.TrimSpace(v.AsString())
		if !numericPattern.MatchString(s) {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ToBoolean coerces a value to a boolean. Strings are read against a small
// vocabulary; anything outside it is false.
func ToBoolean(v types.Value) bool {
	switch v.Type() {
	case types.TypeNull:
		return false
	case types.TypeBool:
		return v.AsBool()
	case types.TypeDouble:
		return v.AsDouble() != 0
	case types.TypeString:
		switch strings.ToLower(strings.TrimSpace(v.AsString())) {
		case "true", "yes", "y", "t", "1":
			return true
		default:
			return false
		}
	default:
		return true
	}
}
