package types

import (
	"testing"

	dberr "recordstore/pkg/error"
)

func TestParseFormatRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		typ       Type
		arraySize uint32
		in        string
		want      string
		wantLen   int
	}{
		{"int32", Int32Type, 0, "-42", "-42", 4},
		{"int64", Int64Type, 0, "9000000000", "9000000000", 8},
		{"float", FloatType, 0, "1.5", "1.5", 4},
		{"double", DoubleType, 0, "3.25", "3.25", 8},
		{"char padded", CharType, 8, "abc", "abc", 8},
		{"varchar", VarcharType, 16, "hello", "hello", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Parse(tt.typ, tt.arraySize, tt.in)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(b) != tt.wantLen {
				t.Errorf("encoded length = %d, want %d", len(b), tt.wantLen)
			}
			if got := Format(tt.typ, b); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		typ       Type
		arraySize uint32
		in        string
	}{
		{"int32 overflow", Int32Type, 0, "3000000000"},
		{"not a number", Int64Type, 0, "abc"},
		{"char too long", CharType, 2, "abc"},
		{"varchar too long", VarcharType, 3, "abcd"},
		{"bad float", DoubleType, 0, "1..2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.typ, tt.arraySize, tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if !dberr.HasCategory(err, dberr.ErrCategoryUser) {
				t.Errorf("expected user category, got %v", err)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		a, b []byte
		want int
	}{
		{"int32 negative", Int32Type, Int32(-5), Int32(3), -1},
		{"int64 equal", Int64Type, Int64(7), Int64(7), 0},
		{"double greater", DoubleType, Double(2.5), Double(-1), 1},
		{"char ignores padding", CharType, Char("ab", 4), Char("ab", 4), 0},
		{"char order", CharType, Char("b", 4), Char("ab", 4), 1},
		{"varchar prefix", VarcharType, []byte("ab"), []byte("abc"), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.typ, tt.a, tt.b); got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCompareSizeMismatchPanics(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(*dberr.DBError)
		if !ok || err.Category != dberr.ErrCategoryTypeMismatch {
			t.Fatalf("expected type mismatch panic, got %v", r)
		}
	}()
	Compare(Int32Type, Int32(1), Int64(1))
}

func TestWriteValue(t *testing.T) {
	dst := make([]byte, 4)
	if err := WriteValue(Int32Type, dst, Int32(9)); err != nil {
		t.Fatalf("WriteValue() error = %v", err)
	}
	if Format(Int32Type, dst) != "9" {
		t.Errorf("dst = %v", dst)
	}
	if err := WriteValue(Int32Type, dst, Int64(9)); err == nil {
		t.Error("expected size mismatch error")
	}
	if err := WriteValue(VarcharType, make([]byte, 2), []byte("abc")); err == nil {
		t.Error("expected varchar overflow error")
	}
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"INT32", "int64", "2", "varchar"} {
		if _, err := ParseType(s); err != nil {
			t.Errorf("ParseType(%q) error = %v", s, err)
		}
	}
	if _, err := ParseType("BLOB"); err == nil {
		t.Error("expected error for unknown type")
	}
	if VarcharType.Size(100) != VarDescriptorSize || CharType.Size(12) != 12 {
		t.Error("unexpected type sizes")
	}
}
