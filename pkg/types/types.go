package types

import (
	"fmt"
	"strings"
)

// Type is the on-disk type of a column. The numeric values are persisted in
// the schema text format, so the order must never change.
type Type int

const (
	Int32Type Type = iota
	Int64Type
	CharType
	FloatType
	DoubleType
	VarcharType
)

// String returns a string representation of the type
func (t Type) String() string {
	switch t {
	case Int32Type:
		return "INT32"
	case Int64Type:
		return "INT64"
	case CharType:
		return "CHAR"
	case FloatType:
		return "FLOAT"
	case DoubleType:
		return "DOUBLE"
	case VarcharType:
		return "VARCHAR"
	default:
		return "UNKNOWN_TYPE"
	}
}

// IsValid reports whether t is one of the known column types.
func (t Type) IsValid() bool {
	return t >= Int32Type && t <= VarcharType
}

// IsVariable reports whether values of this type have a per-record length.
func (t Type) IsVariable() bool {
	return t == VarcharType
}

// Size returns the number of bytes a value occupies in the fixed region of a
// record. arraySize is only consulted for CHAR; VARCHAR values occupy a
// 4-byte descriptor in the fixed region.
func (t Type) Size(arraySize uint32) uint32 {
	switch t {
	case Int32Type, FloatType:
		return 4
	case Int64Type, DoubleType:
		return 8
	case CharType:
		return arraySize
	case VarcharType:
		return VarDescriptorSize
	default:
		return 0
	}
}

// VarDescriptorSize is the width of the {offset u16, length u16} pair a
// VARCHAR column stores in the fixed region.
const VarDescriptorSize = 4

// ParseType accepts either a type name ("INT32") or its numeric index ("0").
func ParseType(s string) (Type, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t := Int32Type; t <= VarcharType; t++ {
		if s == t.String() || s == fmt.Sprint(int(t)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown column type %q", s)
}
