package schema

import (
	"recordstore/pkg/primitives"
	"recordstore/pkg/types"
)

// Column describes one column of a record layout.
type Column struct {
	Name      string              // Column name
	Type      types.Type          // Column data type
	ArraySize uint32              // CHAR length or VARCHAR maximum, 0 otherwise
	Position  primitives.ColumnID // Column position in the schema (0 is Id)
	Offset    uint32              // Byte offset of the value (or VARCHAR descriptor) in the record
}

// Size returns the width the column occupies in the fixed region.
func (c Column) Size() uint32 {
	return c.Type.Size(c.ArraySize)
}

// IsVariable reports whether the column holds a VARCHAR.
func (c Column) IsVariable() bool {
	return c.Type.IsVariable()
}

// Compare orders two encoded values of this column.
func (c Column) Compare(a, b []byte) int {
	return types.Compare(c.Type, a, b)
}

// Equals reports whether two encoded values of this column are equal.
func (c Column) Equals(a, b []byte) bool {
	return types.Equals(c.Type, a, b)
}

// Parse encodes the textual form of a value.
func (c Column) Parse(s string) ([]byte, error) {
	return types.Parse(c.Type, c.ArraySize, s)
}

// WriteValue copies an encoded value into its destination span.
func (c Column) WriteValue(dst, value []byte) error {
	return types.WriteValue(c.Type, dst, value)
}

// Format renders an encoded value.
func (c Column) Format(value []byte) string {
	return types.Format(c.Type, value)
}
