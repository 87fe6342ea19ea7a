package core

import (
	"fmt"
	"strings"
)

// Value is a scalar held by key tuples, literals and column data.
// Concrete types are uint8/16/32/64, int64, float64 and string. Date
// values travel as uint64 day numbers.
type Value interface{}

// ValueType classifies the concrete type of a Value.
type ValueType int

const (
	TypeUInt8 ValueType = iota
	TypeUInt16
	TypeUInt32
	TypeUInt64
	TypeInt64
	TypeFloat64
	TypeString
	TypeDate
)

// String returns the string representation of ValueType
func (vt ValueType) String() string {
	switch vt {
	case TypeUInt8:
		return "UInt8"
	case TypeUInt16:
		return "UInt16"
	case TypeUInt32:
		return "UInt32"
	case TypeUInt64:
		return "UInt64"
	case TypeInt64:
		return "Int64"
	case TypeFloat64:
		return "Float64"
	case TypeString:
		return "String"
	case TypeDate:
		return "Date"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(vt))
	}
}

// ParseValueType maps a type name to a ValueType. The second result is
// false for names that are not a supported column type.
func ParseValueType(name string) (ValueType, bool) {
	switch strings.TrimSpace(name) {
	case "UInt8":
		return TypeUInt8, true
	case "UInt16":
		return TypeUInt16, true
	case "UInt32":
		return TypeUInt32, true
	case "UInt64":
		return TypeUInt64, true
	case "Int64":
		return TypeInt64, true
	case "Float64":
		return TypeFloat64, true
	case "String":
		return TypeString, true
	case "Date":
		return TypeDate, true
	default:
		return 0, false
	}
}

// IsUnsignedInteger reports whether the type is one of the unsigned
// integer widths usable as a sampling column.
func (vt ValueType) IsUnsignedInteger() bool {
	switch vt {
	case TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64:
		return true
	}
	return false
}

// MaxUnsigned returns the maximum representable value for an unsigned
// integer type, or 0 for other types.
func (vt ValueType) MaxUnsigned() uint64 {
	switch vt {
	case TypeUInt8:
		return 1<<8 - 1
	case TypeUInt16:
		return 1<<16 - 1
	case TypeUInt32:
		return 1<<32 - 1
	case TypeUInt64:
		return 1<<64 - 1
	}
	return 0
}

// AsUInt64 converts any integer-typed Value to uint64.
// The second result is false for non-integer values.
func AsUInt64(v Value) (uint64, bool) {
	switch x := v.(type) {
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	case int:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case int64:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	}
	return 0, false
}

// AsFloat64 converts any numeric Value to float64.
// The second result is false for non-numeric values.
func AsFloat64(v Value) (float64, bool) {
	switch x := v.(type) {
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// CompareValues orders two Values: -1, 0 or 1. Numeric values of
// different concrete widths compare numerically; strings compare
// lexicographically. Comparing a string with a number is undefined for
// key data and orders numbers before strings for stability.
func CompareValues(a, b Value) int {
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.Compare(as, bs)
	}
	if aIsStr != bIsStr {
		if aIsStr {
			return 1
		}
		return -1
	}

	// Integer fast path keeps full uint64 precision.
	au, aOK := AsUInt64(a)
	bu, bOK := AsUInt64(b)
	if aOK && bOK {
		switch {
		case au < bu:
			return -1
		case au > bu:
			return 1
		}
		return 0
	}

	af, _ := AsFloat64(a)
	bf, _ := AsFloat64(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

// FormatValue renders a Value for diagnostics.
func FormatValue(v Value) string {
	if v == nil {
		return "inf"
	}
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprintf("%v", v)
}
