package access

import (
	"fmt"
	"slices"
	"testing"

	"recordstore/pkg/record"
	"recordstore/pkg/schema"
)

func TestRoundTripAllKinds(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			s := intSchema()
			if kind == KindHeapVar {
				s = varSchema()
			}
			opts := testOptions()
			opts.BlockSize = 128
			path := tablePath(t)

			m, err := Create(kind, path, s, opts)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if m.Kind() != kind {
				t.Fatalf("Kind() = %v, want %v", m.Kind(), kind)
			}

			recs := make([]*record.Record, 37)
			for i := range recs {
				recs[i] = testRecord(t, s, i)
			}
			ids, err := m.InsertMany(recs)
			if err != nil {
				t.Fatalf("InsertMany() error = %v", err)
			}
			if len(ids) != len(recs) || ids[0] != 0 || ids[36] != 36 {
				t.Fatalf("InsertMany() ids = %v", ids)
			}
			want := formatAll(t, m)
			mustClose(t, m)

			m, err = Open(kind, path, opts)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer mustClose(t, m)
			if got := formatAll(t, m); !slices.Equal(got, want) {
				t.Errorf("records after reopen = %v, want %v", got, want)
			}
			if m.Size() == 0 {
				t.Error("Size() = 0 for a non-empty table")
			}
			rec, err := m.Select(20)
			if err != nil || rec == nil || rec.ID() != 20 {
				t.Errorf("Select(20) = %v, %v", rec, err)
			}
		})
	}
}

func TestOpenWrongOrganization(t *testing.T) {
	path := tablePath(t)
	m, err := Create(KindHeap, path, intSchema(), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	mustClose(t, m)

	if m, err := Open(KindHeapVar, path, testOptions()); err == nil || m != nil {
		t.Errorf("Open(heapvar) of a heap file = %v, %v", m, err)
	}
	if m, err := Open(Kind(9), path, testOptions()); err == nil || m != nil {
		t.Errorf("Open(unknown kind) = %v, %v", m, err)
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range Kinds() {
		got, err := ParseKind(kind.String())
		if err != nil || got != kind {
			t.Errorf("ParseKind(%q) = %v, %v", kind.String(), got, err)
		}
	}
	if _, err := ParseKind("btree"); err == nil {
		t.Error("ParseKind(btree) succeeded")
	}
}

func TestStatsAdd(t *testing.T) {
	got := Stats{BlockReads: 1, BlockWrites: 2, CacheHits: 3}.Add(Stats{BlockReads: 10, BlockWrites: 20, CacheHits: 30})
	if want := (Stats{BlockReads: 11, BlockWrites: 22, CacheHits: 33}); got != want {
		t.Errorf("Add() = %+v, want %+v", got, want)
	}
}

func testRecord(t *testing.T, s *schema.Schema, i int) *record.Record {
	t.Helper()
	if s.IsVariable() {
		return nameRecord(t, s, fmt.Sprintf("name-%d", i*37%101))
	}
	return intRecord(t, s, int32(i*37%101)) // #nosec G115
}

// formatAll renders every record sorted by id.
func formatAll(t *testing.T, m RecordManager) []string {
	t.Helper()
	recs, err := m.SelectAll()
	if err != nil {
		t.Fatalf("SelectAll() error = %v", err)
	}
	slices.SortFunc(recs, func(a, b *record.Record) int { return int(a.ID()) - int(b.ID()) })
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = fmt.Sprint(m.Schema().Format(r.Bytes()))
	}
	return out
}
