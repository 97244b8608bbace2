// Package schema describes record layouts and performs typed access to the
// values stored in a record.
//
// Column 0 is always the implicit Id column (INT64) overlaying the first
// eight bytes of the record header. User columns follow the header in
// declaration order. When a schema contains VARCHAR columns the fixed region
// holds a 4-byte {offset, length} descriptor per VARCHAR column and the
// variable bytes follow the fixed region in column order.
package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/types"
)

// IDColumnName is the name of the implicit column 0.
const IDColumnName = "Id"

// Schema is an immutable record layout.
type Schema struct {
	columns    []Column
	byName     map[string]primitives.ColumnID
	fixedSize  uint32
	maxSize    uint32
	varColumns []primitives.ColumnID
}

// New builds a schema from user column definitions. The Id column is
// prepended automatically; a leading definition named Id of type INT64 is
// accepted and treated as that column.
func New(defs ...ColumnDef) (*Schema, error) {
	if len(defs) > 0 && defs[0].Name == IDColumnName {
		if defs[0].Type != types.Int64Type {
			return nil, invalid("column %q must be INT64", IDColumnName)
		}
		defs = defs[1:]
	}

	s := &Schema{
		columns: make([]Column, 0, len(defs)+1),
		byName:  make(map[string]primitives.ColumnID, len(defs)+1),
	}
	s.columns = append(s.columns, Column{Name: IDColumnName, Type: types.Int64Type, Position: primitives.IDColumn})
	s.byName[IDColumnName] = primitives.IDColumn

	offset := uint32(record.HeaderSize)
	for i, def := range defs {
		if def.Name == "" {
			return nil, invalid("column %d has an empty name", i+1)
		}
		if strings.ContainsAny(def.Name, ",\n") {
			return nil, invalid("column name %q contains a separator", def.Name)
		}
		if _, dup := s.byName[def.Name]; dup {
			return nil, invalid("duplicate column %q", def.Name)
		}
		if !def.Type.IsValid() {
			return nil, invalid("column %q has unknown type %d", def.Name, int(def.Type))
		}
		if (def.Type == types.CharType || def.Type == types.VarcharType) && def.ArraySize == 0 {
			return nil, invalid("column %q needs a positive size", def.Name)
		}
		if def.Type == types.VarcharType && def.ArraySize > math.MaxUint16 {
			return nil, invalid("column %q exceeds the VARCHAR limit of %d", def.Name, math.MaxUint16)
		}

		arraySize := def.ArraySize
		if def.Type != types.CharType && def.Type != types.VarcharType {
			arraySize = 0
		}

		id := primitives.ColumnID(len(s.columns)) // #nosec G115
		col := Column{Name: def.Name, Type: def.Type, ArraySize: arraySize, Position: id, Offset: offset}
		s.columns = append(s.columns, col)
		s.byName[def.Name] = id
		offset += col.Size()
		if col.IsVariable() {
			s.varColumns = append(s.varColumns, id)
			s.maxSize += arraySize
		}
	}

	s.fixedSize = offset
	s.maxSize += offset
	if s.maxSize > math.MaxUint16 && len(s.varColumns) > 0 {
		return nil, invalid("variable record may reach %d bytes, limit is %d", s.maxSize, math.MaxUint16)
	}
	return s, nil
}

func invalid(format string, args ...any) *dberr.DBError {
	return dberr.Newf(dberr.ErrCategoryUser, "INVALID_SCHEMA", format, args...)
}

// NumColumns returns the number of columns including Id.
func (s *Schema) NumColumns() int {
	return len(s.columns)
}

// Columns returns the columns in position order.
func (s *Schema) Columns() []Column {
	return s.columns
}

// Column returns the column at position id.
func (s *Schema) Column(id primitives.ColumnID) (Column, error) {
	if int(id) >= len(s.columns) {
		return Column{}, dberr.Newf(dberr.ErrCategoryUser, "UNKNOWN_COLUMN", "column %d out of range", id).
			WithDetail("schema has %d columns", len(s.columns))
	}
	return s.columns[id], nil
}

// ColumnID resolves a column name.
func (s *Schema) ColumnID(name string) (primitives.ColumnID, error) {
	id, ok := s.byName[name]
	if !ok {
		return primitives.InvalidColumnID, dberr.Newf(dberr.ErrCategoryUser, "UNKNOWN_COLUMN", "unknown column %q", name)
	}
	return id, nil
}

// Size returns the size of the fixed region. For fixed schemas this is the
// exact record size; for variable schemas it is the minimum record size.
func (s *Schema) Size() uint32 {
	return s.fixedSize
}

// MaxSize returns the largest record the schema can produce.
func (s *Schema) MaxSize() uint32 {
	return s.maxSize
}

// IsVariable reports whether records have per-record lengths.
func (s *Schema) IsVariable() bool {
	return len(s.varColumns) > 0
}

// NewRecord allocates a zeroed record of the fixed size.
func (s *Schema) NewRecord() *record.Record {
	return record.New(int(s.fixedSize))
}

// Value returns the span of column id inside the record data. The span
// aliases data.
func (s *Schema) Value(data []byte, id primitives.ColumnID) []byte {
	col := s.columns[id]
	if id == primitives.IDColumn {
		return data[0:8]
	}
	if !col.IsVariable() {
		return data[col.Offset : col.Offset+col.Size()]
	}
	d := data[col.Offset : col.Offset+types.VarDescriptorSize]
	start := uint32(binary.LittleEndian.Uint16(d[0:2]))
	length := uint32(binary.LittleEndian.Uint16(d[2:4]))
	if start+length > uint32(len(data)) {
		dberr.Fatal("VAR_DESCRIPTOR", "Schema", "column %q points past the record end (%d+%d > %d)",
			col.Name, start, length, len(data))
	}
	return data[start : start+length]
}

// Compare compares column id of two records.
func (s *Schema) Compare(id primitives.ColumnID, a, b []byte) int {
	return s.columns[id].Compare(s.Value(a, id), s.Value(b, id))
}

// CompareValue compares column id of a record against an encoded value.
func (s *Schema) CompareValue(id primitives.ColumnID, data, value []byte) int {
	return s.columns[id].Compare(s.Value(data, id), value)
}

// Encode builds a record from encoded values for every user column
// (positions 1..n). The id and free-list link are left zero.
func (s *Schema) Encode(values [][]byte) (*record.Record, error) {
	if len(values) != len(s.columns)-1 {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "COLUMN_COUNT", "expected %d values, got %d",
			len(s.columns)-1, len(values))
	}

	size := s.fixedSize
	for _, id := range s.varColumns {
		size += uint32(len(values[id-1])) // #nosec G115
	}
	if size > s.maxSize {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "VALUE_TOO_LONG", "record of %d bytes exceeds %d", size, s.maxSize)
	}

	rec := record.New(int(size))
	data := rec.Bytes()
	varOffset := s.fixedSize
	for _, col := range s.columns[1:] {
		v := values[col.Position-1]
		if col.IsVariable() {
			if uint32(len(v)) > col.ArraySize {
				return nil, dberr.Newf(dberr.ErrCategoryUser, "VALUE_TOO_LONG", "column %q exceeds %d bytes", col.Name, col.ArraySize)
			}
			d := data[col.Offset : col.Offset+types.VarDescriptorSize]
			binary.LittleEndian.PutUint16(d[0:2], uint16(varOffset)) // #nosec G115
			binary.LittleEndian.PutUint16(d[2:4], uint16(len(v)))    // #nosec G115
			copy(data[varOffset:], v)
			varOffset += uint32(len(v)) // #nosec G115
			continue
		}
		if err := col.WriteValue(data[col.Offset:col.Offset+col.Size()], v); err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
	}
	return rec, nil
}

// Parse builds a record from the textual values of every user column.
func (s *Schema) Parse(values []string) (*record.Record, error) {
	if len(values) != len(s.columns)-1 {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "COLUMN_COUNT", "expected %d values, got %d",
			len(s.columns)-1, len(values))
	}
	encoded := make([][]byte, len(values))
	for i, v := range values {
		b, err := s.columns[i+1].Parse(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", s.columns[i+1].Name, err)
		}
		encoded[i] = b
	}
	return s.Encode(encoded)
}

// Format renders every column of a record, Id first.
func (s *Schema) Format(data []byte) []string {
	out := make([]string, len(s.columns))
	for i, col := range s.columns {
		if i == 0 {
			out[0] = fmt.Sprint(uint64(record.ID(data)))
			continue
		}
		out[i] = col.Format(s.Value(data, col.Position))
	}
	return out
}

// Names returns the column names, Id first.
func (s *Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, col := range s.columns {
		names[i] = col.Name
	}
	return names
}

// Equal reports whether two schemas describe the same layout.
func (s *Schema) Equal(other *Schema) bool {
	if other == nil || len(s.columns) != len(other.columns) {
		return false
	}
	for i := range s.columns {
		a, b := s.columns[i], other.columns[i]
		if a.Name != b.Name || a.Type != b.Type || a.ArraySize != b.ArraySize {
			return false
		}
	}
	return true
}
