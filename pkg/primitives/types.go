package primitives

import "math"

// RecordID is the manager-assigned identifier stored in the first 8 bytes of
// every record. The all-ones value is reserved for tombstones.
type RecordID uint64

// BlockID is the logical number of a block within a paged file.
// Block 0 starts immediately after the file header.
type BlockID uint64

// SlotIndex addresses one record slot inside a block.
type SlotIndex uint32

// ColumnID identifies a column within a schema. Column 0 is always the
// implicit Id column.
type ColumnID uint32

// Sentinel values for invalid/unset identifiers
const (
	// TombstoneID marks a logically deleted record whose slot may be reused.
	TombstoneID RecordID = math.MaxUint64

	// InvalidBlockID terminates hash overflow chains and free lists.
	InvalidBlockID BlockID = math.MaxUint64

	// InvalidSlotIndex pairs with InvalidBlockID in empty record locations.
	InvalidSlotIndex SlotIndex = math.MaxUint32

	InvalidColumnID ColumnID = math.MaxUint32

	// IDColumn is the column holding the record id.
	IDColumn ColumnID = 0
)
