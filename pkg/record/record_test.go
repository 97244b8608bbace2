package record

import (
	"testing"

	"recordstore/pkg/primitives"
)

func TestRecordHeader(t *testing.T) {
	r := New(32)
	if r.Len() != 32 {
		t.Fatalf("Len() = %d, want 32", r.Len())
	}

	r.SetID(42)
	if r.ID() != 42 {
		t.Errorf("ID() = %d, want 42", r.ID())
	}
	if r.IsTombstone() {
		t.Error("fresh record should not be a tombstone")
	}

	next := Location{Block: 3, Slot: 7}
	Tombstone(r.Bytes(), next)
	if !r.IsTombstone() {
		t.Error("record should be a tombstone")
	}
	if got := r.NextDeleted(); got != next {
		t.Errorf("NextDeleted() = %v, want %v", got, next)
	}
}

func TestNewEnforcesHeaderSize(t *testing.T) {
	if got := New(4).Len(); got != HeaderSize {
		t.Errorf("Len() = %d, want %d", got, HeaderSize)
	}
}

func TestSetBytesAndClone(t *testing.T) {
	r := New(HeaderSize)
	src := make([]byte, HeaderSize+4)
	SetID(src, 9)
	r.SetBytes(src)
	if r.Len() != len(src) || r.ID() != 9 {
		t.Fatalf("SetBytes did not copy: len=%d id=%d", r.Len(), r.ID())
	}

	c := r.Clone()
	c.SetID(10)
	if r.ID() != 9 {
		t.Error("Clone should not share storage")
	}
}

func TestLocation(t *testing.T) {
	tests := []struct {
		name  string
		loc   Location
		valid bool
	}{
		{"zero", Location{}, true},
		{"regular", Location{Block: 12, Slot: 4}, true},
		{"none", NoLocation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, LocationSize)
			PutLocation(buf, tt.loc)
			got := GetLocation(buf)
			if got != tt.loc {
				t.Errorf("decoded %v, want %v", got, tt.loc)
			}
			if got.IsValid() != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got.IsValid(), tt.valid)
			}
		})
	}

	if NoLocation.Block != primitives.InvalidBlockID {
		t.Error("NoLocation must use the invalid block sentinel")
	}
}
