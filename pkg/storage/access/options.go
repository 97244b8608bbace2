package access

import (
	"fmt"
	"strings"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/block"
)

// Kind names a file organization.
type Kind int

const (
	KindHeap Kind = iota
	KindHeapVar
	KindHash
	KindOrdered
)

func (k Kind) String() string {
	switch k {
	case KindHeap:
		return "heap"
	case KindHeapVar:
		return "heapvar"
	case KindHash:
		return "hash"
	case KindOrdered:
		return "ordered"
	default:
		return "unknown"
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heap":
		return KindHeap, nil
	case "heapvar", "heap-var", "heap_var":
		return KindHeapVar, nil
	case "hash":
		return KindHash, nil
	case "ordered", "sequential":
		return KindOrdered, nil
	default:
		return 0, fmt.Errorf("unknown organization %q", s)
	}
}

// Kinds lists every organization in a stable order.
func Kinds() []Kind {
	return []Kind{KindHeap, KindHeapVar, KindHash, KindOrdered}
}

// Options configures a record manager.
type Options struct {
	// BlockSize is the page size of every file of the table. Zero on Open
	// uses the size stored in the file.
	BlockSize int

	// MaxPercentEmptySpace triggers compaction once tombstoned bytes reach
	// this fraction of the table size.
	MaxPercentEmptySpace float64

	// MaxExtensionBlocks caps the ordered extension file; reaching it
	// triggers a reorganization.
	MaxExtensionBlocks uint64

	// Buckets is the hash directory size. Zero on Open accepts whatever
	// the file was created with.
	Buckets int

	// OrderedBy is the column an ordered table is sorted by.
	OrderedBy primitives.ColumnID

	// CacheBlocks bounds the per-file block read cache. Zero disables it.
	CacheBlocks int64

	// InMemoryReorganize makes ordered reorganization load the whole table
	// and sort it in memory instead of running the external merge.
	InMemoryReorganize bool

	// AutoReorganize enables the density-triggered compaction after deletes.
	AutoReorganize bool

	// ReorganizeOnClose folds a non-empty ordered extension on Close.
	ReorganizeOnClose bool
}

// DefaultOptions returns the defaults used by the tools.
func DefaultOptions() Options {
	return Options{
		BlockSize:            4096,
		MaxPercentEmptySpace: 0.2,
		MaxExtensionBlocks:   1000,
		Buckets:              256,
		OrderedBy:            primitives.IDColumn,
		AutoReorganize:       true,
		ReorganizeOnClose:    true,
	}
}

// checkBlockSize rejects pages that cannot hold the largest record of s.
func checkBlockSize(s *schema.Schema, blockSize, headerSize int) error {
	need := 4 + headerSize + int(s.Size())
	if s.IsVariable() {
		need = 8 + headerSize + block.DirEntrySize + int(s.MaxSize())
	}
	if blockSize < need {
		return dberr.Newf(dberr.ErrCategoryUser, "BLOCK_SIZE", "block size %d cannot hold a %d byte record", blockSize, s.MaxSize()).
			WithDetail("need at least %d bytes", need)
	}
	return nil
}
