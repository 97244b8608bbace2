package access

import (
	"errors"
	"testing"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/types"
)

func createTestHash(t *testing.T, n int) *Hash {
	t.Helper()
	h, err := CreateHash(tablePath(t), intSchema(), testOptions())
	if err != nil {
		t.Fatalf("CreateHash() error = %v", err)
	}
	for i := 0; i < n; i++ {
		insertValues(t, h, int32(i)) // #nosec G115
	}
	return h
}

func TestHashChainDepth(t *testing.T) {
	// four buckets, two records per block: every bucket gets five records
	// spread over three blocks, newest first
	h := createTestHash(t, 20)
	defer mustClose(t, h)

	for b := 0; b < h.NumBuckets(); b++ {
		if n, err := h.ChainLength(b); err != nil || n != 3 {
			t.Fatalf("ChainLength(%d) = %d, %v, want 3", b, n, err)
		}
	}

	for id := primitives.RecordID(0); id < 20; id++ {
		h.ResetStats()
		rec, err := h.Select(id)
		if err != nil || rec == nil {
			t.Fatalf("Select(%d) = %v, %v", id, rec, err)
		}
		if rec.ID() != id || intValue(h.Schema(), rec.Bytes()) != int32(id) { // #nosec G115
			t.Errorf("Select(%d) returned id %d", id, rec.ID())
		}
		depth := 3 - (uint64(id)/4)/2
		if got := h.Stats().BlockReads; got != depth {
			t.Errorf("Select(%d) read %d blocks, want %d", id, got, depth)
		}
		// the count covers this walk only
		if _, err := h.Select(id); err != nil {
			t.Fatal(err)
		}
		if got := uint64(h.BlocksTouched()); got != depth { // #nosec G115
			t.Errorf("Select(%d) touched %d blocks, want %d", id, got, depth)
		}
	}

	h.ResetStats()
	if rec, err := h.Select(77); err != nil || rec != nil {
		t.Fatalf("Select(77) = %v, %v", rec, err)
	}
	if got := h.Stats().BlockReads; got != 3 {
		t.Errorf("missing id read %d blocks, want the full chain of 3", got)
	}
}

func TestHashDeleteRefillsFromHead(t *testing.T) {
	h := createTestHash(t, 20)
	defer mustClose(t, h)

	// bucket 0 chain: {16} -> {8,12} -> {0,4}
	ok, err := h.Delete(4)
	if err != nil || !ok {
		t.Fatalf("Delete(4) = %v, %v", ok, err)
	}
	if rec, _ := h.Select(4); rec != nil {
		t.Fatal("deleted record still selectable")
	}
	if n, _ := h.ChainLength(0); n != 3 {
		t.Errorf("ChainLength(0) = %d, empty head block should stay linked", n)
	}

	h.ResetStats()
	rec, err := h.Select(16)
	if err != nil || rec == nil {
		t.Fatalf("Select(16) = %v, %v", rec, err)
	}
	if got := h.Stats().BlockReads; got != 3 {
		t.Errorf("Select(16) read %d blocks, want 3 after moving to the oldest block", got)
	}

	all, err := h.SelectAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 19 {
		t.Errorf("SelectAll() = %d records, want 19", len(all))
	}

	// the emptied head takes new records again
	id, err := h.Insert(intRecord(t, h.Schema(), 20))
	if err != nil || id != 20 {
		t.Fatalf("Insert() = %d, %v", id, err)
	}
	if n, _ := h.ChainLength(0); n != 3 {
		t.Errorf("ChainLength(0) = %d after reinsert, want 3", n)
	}
}

func TestHashEqualsAndDeleteWhere(t *testing.T) {
	h, err := CreateHash(tablePath(t), intSchema(), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer mustClose(t, h)
	for i := int32(0); i < 30; i++ {
		insertValues(t, h, i%3)
	}

	recs, err := h.SelectWhereEquals(primitives.IDColumn, types.Int64(7))
	if err != nil || len(recs) != 1 || recs[0].ID() != 7 {
		t.Fatalf("SelectWhereEquals(Id, 7) = %v, %v", recordIDs(recs), err)
	}

	recs, err = h.SelectWhereBetween(valueColumn, types.Int32(1), types.Int32(2))
	if err != nil || len(recs) != 20 {
		t.Fatalf("SelectWhereBetween() = %d records, %v", len(recs), err)
	}

	n, err := h.DeleteWhereEquals(valueColumn, types.Int32(0))
	if err != nil || n != 10 {
		t.Fatalf("DeleteWhereEquals(Value, 0) = %d, %v, want 10", n, err)
	}
	n, err = h.DeleteWhereEquals(primitives.IDColumn, types.Int64(1))
	if err != nil || n != 1 {
		t.Fatalf("DeleteWhereEquals(Id, 1) = %d, %v, want 1", n, err)
	}

	all, _ := h.SelectAll()
	if len(all) != 19 {
		t.Errorf("%d records left, want 19", len(all))
	}
	for _, r := range all {
		if intValue(h.Schema(), r.Bytes()) == 0 || r.ID() == 1 {
			t.Errorf("record %d should have been deleted", r.ID())
		}
	}
	if err := h.Reorganize(); err != nil {
		t.Errorf("Reorganize() error = %v", err)
	}
}

func TestHashReopen(t *testing.T) {
	path := tablePath(t)
	h, err := CreateHash(path, intSchema(), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	insertValues(t, h, 5, 6, 7, 8, 9)
	mustClose(t, h)

	tests := []struct {
		name    string
		buckets int
		panics  bool
	}{
		{"same bucket count", 4, false},
		{"bucket count from file", 0, false},
		{"mismatch", 8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.Buckets = tt.buckets

			var opened *Hash
			var openErr error
			recovered := func() (r any) {
				defer func() { r = recover() }()
				opened, openErr = OpenHash(path, opts)
				return nil
			}()

			if tt.panics {
				var dbErr *dberr.DBError
				err, _ := recovered.(error)
				if !errors.As(err, &dbErr) || dbErr.Category != dberr.ErrCategoryConsistency {
					t.Fatalf("OpenHash() panic = %v, want consistency error", recovered)
				}
				return
			}
			if recovered != nil || openErr != nil {
				t.Fatalf("OpenHash() = %v, panic %v", openErr, recovered)
			}
			defer mustClose(t, opened)
			if opened.NumBuckets() != 4 {
				t.Errorf("NumBuckets() = %d, want 4", opened.NumBuckets())
			}
			rec, err := opened.Select(3)
			if err != nil || rec == nil || intValue(opened.Schema(), rec.Bytes()) != 8 {
				t.Errorf("Select(3) = %v, %v", rec, err)
			}
		})
	}
}

func TestCreateHashRejectsBucketCount(t *testing.T) {
	opts := testOptions()
	opts.Buckets = 0
	if _, err := CreateHash(tablePath(t), intSchema(), opts); !dberr.HasCategory(err, dberr.ErrCategoryUser) {
		t.Errorf("CreateHash(0 buckets) error = %v, want user error", err)
	}
}
