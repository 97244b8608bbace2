package types

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"math"
	"strconv"

	dberr "recordstore/pkg/error"
)

// Compare orders two encoded values of type t. Fixed-size values must have
// the same length; a mismatch is a programming error and panics with a
// type mismatch DBError.
func Compare(t Type, a, b []byte) int {
	if t != VarcharType && len(a) != len(b) {
		panic(mismatch("Compare", t, len(a), len(b)))
	}

	switch t {
	case Int32Type:
		return cmp.Compare(int32(binary.LittleEndian.Uint32(a)), int32(binary.LittleEndian.Uint32(b)))
	case Int64Type:
		return cmp.Compare(int64(binary.LittleEndian.Uint64(a)), int64(binary.LittleEndian.Uint64(b)))
	case FloatType:
		return cmp.Compare(math.Float32frombits(binary.LittleEndian.Uint32(a)), math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case DoubleType:
		return cmp.Compare(math.Float64frombits(binary.LittleEndian.Uint64(a)), math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case CharType:
		return bytes.Compare(trimChar(a), trimChar(b))
	default:
		return bytes.Compare(a, b)
	}
}

// Equals reports whether two encoded values are equal under Compare.
func Equals(t Type, a, b []byte) bool {
	return Compare(t, a, b) == 0
}

// Parse converts the textual form of a value into its encoded bytes.
// arraySize bounds CHAR and VARCHAR values.
func Parse(t Type, arraySize uint32, s string) ([]byte, error) {
	switch t {
	case Int32Type:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, parseErr(t, s, err)
		}
		return binary.LittleEndian.AppendUint32(nil, uint32(v)), nil // #nosec G115
	case Int64Type:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, parseErr(t, s, err)
		}
		return binary.LittleEndian.AppendUint64(nil, uint64(v)), nil // #nosec G115
	case FloatType:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, parseErr(t, s, err)
		}
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v))), nil
	case DoubleType:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, parseErr(t, s, err)
		}
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)), nil
	case CharType:
		if uint32(len(s)) > arraySize {
			return nil, tooLong(t, s, arraySize)
		}
		buf := make([]byte, arraySize)
		copy(buf, s)
		return buf, nil
	case VarcharType:
		if uint32(len(s)) > arraySize {
			return nil, tooLong(t, s, arraySize)
		}
		return []byte(s), nil
	default:
		return nil, dberr.Newf(dberr.ErrCategoryUser, "UNKNOWN_TYPE", "unknown column type %d", int(t))
	}
}

// WriteValue copies an encoded value into dst. The destination must be
// exactly the value's size for fixed types and at least as large for VARCHAR.
func WriteValue(t Type, dst, value []byte) error {
	if t == VarcharType {
		if len(value) > len(dst) {
			return mismatch("WriteValue", t, len(dst), len(value))
		}
	} else if len(dst) != len(value) {
		return mismatch("WriteValue", t, len(dst), len(value))
	}
	copy(dst, value)
	return nil
}

// Format renders an encoded value for display.
func Format(t Type, b []byte) string {
	switch t {
	case Int32Type:
		if len(b) < 4 {
			return "?"
		}
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b))), 10)
	case Int64Type:
		if len(b) < 8 {
			return "?"
		}
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(b)), 10) // #nosec G115
	case FloatType:
		if len(b) < 4 {
			return "?"
		}
		return strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 'g', -1, 32)
	case DoubleType:
		if len(b) < 8 {
			return "?"
		}
		return strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)), 'g', -1, 64)
	case CharType:
		return string(trimChar(b))
	default:
		return string(b)
	}
}

// Int32 encodes v as an INT32 value.
func Int32(v int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v)) // #nosec G115
}

// Int64 encodes v as an INT64 value.
func Int64(v int64) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(v)) // #nosec G115
}

// Double encodes v as a DOUBLE value.
func Double(v float64) []byte {
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
}

// Char encodes s as a CHAR value of the given array size, truncating.
func Char(s string, arraySize uint32) []byte {
	buf := make([]byte, arraySize)
	copy(buf, s)
	return buf
}

func trimChar(b []byte) []byte {
	return bytes.TrimRight(b, "\x00")
}

func mismatch(op string, t Type, want, got int) *dberr.DBError {
	return dberr.Newf(dberr.ErrCategoryTypeMismatch, "TYPE_MISMATCH", "%s value size mismatch", t).
		WithDetail("expected %d bytes, got %d", want, got).
		At(op, "Column")
}

func parseErr(t Type, s string, cause error) *dberr.DBError {
	e := dberr.Newf(dberr.ErrCategoryUser, "PARSE_VALUE", "cannot parse %q as %s", s, t)
	e.Cause = cause
	return e
}

func tooLong(t Type, s string, max uint32) *dberr.DBError {
	return dberr.Newf(dberr.ErrCategoryUser, "VALUE_TOO_LONG", "%s value exceeds %d bytes", t, max).
		WithDetail("%d bytes given", len(s))
}
