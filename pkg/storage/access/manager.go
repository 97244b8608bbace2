package access

import (
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
)

// Stats reports block traffic, the cost measure every organization is
// compared by.
type Stats struct {
	BlockReads  uint64
	BlockWrites uint64
	CacheHits   uint64
}

// Add returns the element-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		BlockReads:  s.BlockReads + o.BlockReads,
		BlockWrites: s.BlockWrites + o.BlockWrites,
		CacheHits:   s.CacheHits + o.CacheHits,
	}
}

// Scanner is the sequential scan protocol. Locations whose block equals the
// flushed block count address the in-memory write-behind block.
//
// BlocksTouched reports how many blocks the last MoveNext read from the file
// or cache. It is 0 while the cursor stays inside an already loaded block.
type Scanner interface {
	MoveToStart()
	MoveNext(rec *record.Record) (record.Location, bool, error)
	BlocksTouched() int
}

// RecordManager is implemented by every file organization.
//
// Managers are not safe for concurrent use; a caller driving one table from
// several goroutines must serialize access with its own mutex. A scan must
// not be interleaved with mutations of the same manager.
type RecordManager interface {
	Scanner

	Kind() Kind
	Schema() *schema.Schema

	Insert(rec *record.Record) (primitives.RecordID, error)
	InsertMany(recs []*record.Record) ([]primitives.RecordID, error)

	// Select returns nil when no live record has the id.
	Select(id primitives.RecordID) (*record.Record, error)
	SelectIDs(ids []primitives.RecordID) ([]*record.Record, error)
	SelectAll() ([]*record.Record, error)
	SelectWhereEquals(col primitives.ColumnID, value []byte) ([]*record.Record, error)
	SelectWhereBetween(col primitives.ColumnID, min, max []byte) ([]*record.Record, error)

	Delete(id primitives.RecordID) (bool, error)
	DeleteWhereEquals(col primitives.ColumnID, value []byte) (int, error)

	// Reorganize compacts (heap), re-sorts (ordered) or does nothing (hash).
	Reorganize() error

	// Size is blockSize × flushed blocks plus the bytes held in memory.
	Size() uint64
	Stats() Stats
	ResetStats()
	Close() error
}
