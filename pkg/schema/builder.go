package schema

import (
	"fmt"

	"recordstore/pkg/types"
)

// ColumnDef defines a column for schema building.
type ColumnDef struct {
	Name      string
	Type      types.Type
	ArraySize uint32
}

// Builder helps construct schemas with less boilerplate.
//
//	s, err := schema.NewBuilder().
//		AddColumn("Value", types.Int32Type).
//		AddVarchar("Name", 32).
//		Build()
type Builder struct {
	columns []ColumnDef
}

// NewBuilder creates an empty builder. The Id column is added by Build.
func NewBuilder() *Builder {
	return &Builder{columns: make([]ColumnDef, 0)}
}

// AddColumn adds a fixed-width numeric column.
func (b *Builder) AddColumn(name string, t types.Type) *Builder {
	b.columns = append(b.columns, ColumnDef{Name: name, Type: t})
	return b
}

// AddChar adds a fixed-length character column.
func (b *Builder) AddChar(name string, size uint32) *Builder {
	b.columns = append(b.columns, ColumnDef{Name: name, Type: types.CharType, ArraySize: size})
	return b
}

// AddVarchar adds a variable-length character column of at most max bytes.
func (b *Builder) AddVarchar(name string, max uint32) *Builder {
	b.columns = append(b.columns, ColumnDef{Name: name, Type: types.VarcharType, ArraySize: max})
	return b
}

// Build constructs the schema
func (b *Builder) Build() (*Schema, error) {
	s, err := New(b.columns...)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}
	return s, nil
}

// MustBuild is Build for schemas known to be valid, such as test fixtures.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
