// Package record defines the byte-level representation of one tuple.
//
// Every record begins with a fixed header:
//
//	offset 0   id           u64   (all ones = tombstone)
//	offset 8   next deleted u64 block + u32 slot (all ones = none)
//
// The remaining bytes are laid out by the schema. Encoding is little-endian.
package record

import (
	"encoding/binary"

	"recordstore/pkg/primitives"
)

const (
	idOffset          = 0
	nextDeletedOffset = 8

	// HeaderSize is the number of bytes every record reserves before its
	// first non-id column.
	HeaderSize = nextDeletedOffset + LocationSize
)

// Record is a mutable byte buffer holding one tuple.
type Record struct {
	data []byte
}

// New allocates a zeroed record of size bytes.
func New(size int) *Record {
	if size < HeaderSize {
		size = HeaderSize
	}
	return &Record{data: make([]byte, size)}
}

// FromBytes wraps data without copying.
func FromBytes(data []byte) *Record {
	return &Record{data: data}
}

// Bytes returns the underlying buffer.
func (r *Record) Bytes() []byte {
	return r.data
}

// Len returns the record length in bytes.
func (r *Record) Len() int {
	return len(r.data)
}

// SetBytes replaces the contents with a copy of b, reusing capacity.
func (r *Record) SetBytes(b []byte) {
	if cap(r.data) < len(b) {
		r.data = make([]byte, len(b))
	}
	r.data = r.data[:len(b)]
	copy(r.data, b)
}

// Clone returns an independent copy.
func (r *Record) Clone() *Record {
	c := make([]byte, len(r.data))
	copy(c, r.data)
	return &Record{data: c}
}

// ID returns the record id.
func (r *Record) ID() primitives.RecordID {
	return ID(r.data)
}

// SetID stores id in the record header.
func (r *Record) SetID(id primitives.RecordID) {
	SetID(r.data, id)
}

// IsTombstone reports whether the record is logically deleted.
func (r *Record) IsTombstone() bool {
	return r.ID().IsTombstone()
}

// NextDeleted returns the free-list link of a tombstoned record.
func (r *Record) NextDeleted() Location {
	return NextDeleted(r.data)
}

// SetNextDeleted stores the free-list link.
func (r *Record) SetNextDeleted(l Location) {
	SetNextDeleted(r.data, l)
}

// The functions below operate on raw spans so block-resident records can be
// patched in place without copying.

// ID reads the id from a record span.
func ID(b []byte) primitives.RecordID {
	return primitives.RecordID(binary.LittleEndian.Uint64(b[idOffset : idOffset+8]))
}

// SetID writes the id into a record span.
func SetID(b []byte, id primitives.RecordID) {
	binary.LittleEndian.PutUint64(b[idOffset:idOffset+8], uint64(id))
}

// IsTombstone reports whether the span holds a deleted record.
func IsTombstone(b []byte) bool {
	return ID(b).IsTombstone()
}

// Tombstone marks the span as deleted and links it to next.
func Tombstone(b []byte, next Location) {
	SetID(b, primitives.TombstoneID)
	SetNextDeleted(b, next)
}

// NextDeleted reads the free-list link from a record span.
func NextDeleted(b []byte) Location {
	return GetLocation(b[nextDeletedOffset:HeaderSize])
}

// SetNextDeleted writes the free-list link into a record span.
func SetNextDeleted(b []byte, l Location) {
	PutLocation(b[nextDeletedOffset:HeaderSize], l)
}
