package record

import (
	"encoding/binary"
	"fmt"

	"recordstore/pkg/primitives"
)

// LocationSize is the encoded width of a Location: block u64 + slot u32.
const LocationSize = 12

// Location addresses one record slot in a paged file. Free lists and hash
// chains store locations instead of pointers.
type Location struct {
	Block primitives.BlockID
	Slot  primitives.SlotIndex
}

// NoLocation terminates free lists.
var NoLocation = Location{Block: primitives.InvalidBlockID, Slot: primitives.InvalidSlotIndex}

// IsValid reports whether l points at a slot.
func (l Location) IsValid() bool {
	return l.Block.IsValid()
}

func (l Location) String() string {
	if !l.IsValid() {
		return "(none)"
	}
	return fmt.Sprintf("(%d,%d)", uint64(l.Block), uint32(l.Slot))
}

// PutLocation encodes l into the first LocationSize bytes of b.
func PutLocation(b []byte, l Location) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(l.Block))
	binary.LittleEndian.PutUint32(b[8:12], uint32(l.Slot))
}

// GetLocation decodes a Location written by PutLocation.
func GetLocation(b []byte) Location {
	return Location{
		Block: primitives.BlockID(binary.LittleEndian.Uint64(b[0:8])),
		Slot:  primitives.SlotIndex(binary.LittleEndian.Uint32(b[8:12])),
	}
}
