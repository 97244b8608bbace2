package primitives

import "fmt"

// RecordID Methods
// =============================================================================

// IsTombstone reports whether the id is the deleted-record sentinel.
func (r RecordID) IsTombstone() bool {
	return r == TombstoneID
}

func (r RecordID) String() string {
	if r.IsTombstone() {
		return "RecordID(tombstone)"
	}
	return fmt.Sprintf("RecordID(%d)", uint64(r))
}

// BlockID Methods
// =============================================================================

// IsValid reports whether the block id points at a real block.
func (b BlockID) IsValid() bool {
	return b != InvalidBlockID
}

// AsUint64 returns the BlockID as a uint64 for serialization.
func (b BlockID) AsUint64() uint64 {
	return uint64(b)
}

func (b BlockID) String() string {
	if !b.IsValid() {
		return "BlockID(none)"
	}
	return fmt.Sprintf("BlockID(%d)", uint64(b))
}

// ColumnID Methods
// =============================================================================

// IsValid reports whether the column id is set.
func (c ColumnID) IsValid() bool {
	return c != InvalidColumnID
}
