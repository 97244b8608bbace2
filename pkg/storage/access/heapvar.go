package access

import (
	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/schema"
)

// CreateHeapVar creates a heap table for a schema with VARCHAR columns.
// Records are stored in variable-layout blocks; a freed slot is reused only
// by a record that fits into it.
func CreateHeapVar(path primitives.Filepath, s *schema.Schema, opts Options) (*Heap, error) {
	if !s.IsVariable() {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "FIXED_SCHEMA", "heapvar tables need a schema with VARCHAR columns").
			WithHint("use a heap table for fixed-size schemas")
	}
	return createHeap(path, s, opts, KindHeapVar)
}

// OpenHeapVar opens an existing heapvar table.
func OpenHeapVar(path primitives.Filepath, opts Options) (*Heap, error) {
	return openHeap(path, opts, KindHeapVar)
}
