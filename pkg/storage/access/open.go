package access

import (
	"fmt"

	"recordstore/pkg/primitives"
	"recordstore/pkg/schema"
)

var (
	_ RecordManager = (*Heap)(nil)
	_ RecordManager = (*Hash)(nil)
	_ RecordManager = (*Ordered)(nil)
)

// Create creates a table of the given organization at path.
func Create(kind Kind, path primitives.Filepath, s *schema.Schema, opts Options) (RecordManager, error) {
	switch kind {
	case KindHeap:
		return manager(CreateHeap(path, s, opts))
	case KindHeapVar:
		return manager(CreateHeapVar(path, s, opts))
	case KindHash:
		return manager(CreateHash(path, s, opts))
	case KindOrdered:
		return manager(CreateOrdered(path, s, opts))
	default:
		return nil, fmt.Errorf("create %s: unknown organization %d", path, int(kind))
	}
}

// Open opens an existing table of the given organization.
func Open(kind Kind, path primitives.Filepath, opts Options) (RecordManager, error) {
	switch kind {
	case KindHeap:
		return manager(OpenHeap(path, opts))
	case KindHeapVar:
		return manager(OpenHeapVar(path, opts))
	case KindHash:
		return manager(OpenHash(path, opts))
	case KindOrdered:
		return manager(OpenOrdered(path, opts))
	default:
		return nil, fmt.Errorf("open %s: unknown organization %d", path, int(kind))
	}
}

// manager keeps a failed constructor from yielding a non-nil interface
// around a nil pointer.
func manager[M RecordManager](m M, err error) (RecordManager, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}
