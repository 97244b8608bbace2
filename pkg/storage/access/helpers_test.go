package access

import (
	"encoding/binary"
	"slices"
	"testing"

	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
	"recordstore/pkg/types"
)

const valueColumn primitives.ColumnID = 1

func intSchema() *schema.Schema {
	return schema.NewBuilder().AddColumn("Value", types.Int32Type).MustBuild()
}

func varSchema() *schema.Schema {
	return schema.NewBuilder().AddVarchar("Name", 32).MustBuild()
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BlockSize = 64
	opts.Buckets = 4
	opts.AutoReorganize = false
	return opts
}

func tablePath(t *testing.T) primitives.Filepath {
	t.Helper()
	return primitives.Filepath(t.TempDir()).Join("t.tbl")
}

func intRecord(t *testing.T, s *schema.Schema, v int32) *record.Record {
	t.Helper()
	rec, err := s.Encode([][]byte{types.Int32(v)})
	if err != nil {
		t.Fatalf("Encode(%d) error = %v", v, err)
	}
	return rec
}

func nameRecord(t *testing.T, s *schema.Schema, name string) *record.Record {
	t.Helper()
	rec, err := s.Parse([]string{name})
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", name, err)
	}
	return rec
}

func intValue(s *schema.Schema, data []byte) int32 {
	return int32(binary.LittleEndian.Uint32(s.Value(data, valueColumn))) // #nosec G115
}

func insertValues(t *testing.T, m RecordManager, values ...int32) []primitives.RecordID {
	t.Helper()
	recs := make([]*record.Record, len(values))
	for i, v := range values {
		recs[i] = intRecord(t, m.Schema(), v)
	}
	ids, err := m.InsertMany(recs)
	if err != nil {
		t.Fatalf("InsertMany() error = %v", err)
	}
	return ids
}

// locate scans for id and returns its location.
func locate(t *testing.T, sc Scanner, id primitives.RecordID) record.Location {
	t.Helper()
	rec := record.New(record.HeaderSize)
	sc.MoveToStart()
	for {
		loc, ok, err := sc.MoveNext(rec)
		if err != nil {
			t.Fatalf("MoveNext() error = %v", err)
		}
		if !ok {
			return record.NoLocation
		}
		if rec.ID() == id {
			return loc
		}
	}
}

func recordIDs(recs []*record.Record) []primitives.RecordID {
	ids := make([]primitives.RecordID, len(recs))
	for i, r := range recs {
		ids[i] = r.ID()
	}
	return ids
}

func sortedIDs(recs []*record.Record) []primitives.RecordID {
	ids := recordIDs(recs)
	slices.Sort(ids)
	return ids
}

func mustClose(t *testing.T, m RecordManager) {
	t.Helper()
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
