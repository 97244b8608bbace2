package access

import (
	"errors"
	"slices"
	"strings"
	"testing"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/types"
)

func createTestHeap(t *testing.T, opts Options) *Heap {
	t.Helper()
	h, err := CreateHeap(tablePath(t), intSchema(), opts)
	if err != nil {
		t.Fatalf("CreateHeap() error = %v", err)
	}
	return h
}

func TestHeapFreeSlotReuse(t *testing.T) {
	h := createTestHeap(t, testOptions())
	defer mustClose(t, h)

	insertValues(t, h, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9)

	// 24 byte records, two per 64 byte block: four flushed blocks and two
	// records behind
	if got, want := h.Size(), uint64(4*64+2*24); got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}

	removedBefore := h.RemovedCount()
	vacated := locate(t, h, 5)
	if want := (record.Location{Block: 2, Slot: 1}); vacated != want {
		t.Fatalf("id 5 at %v, want %v", vacated, want)
	}

	ok, err := h.Delete(5)
	if err != nil || !ok {
		t.Fatalf("Delete(5) = %v, %v", ok, err)
	}
	if h.RemovedCount() != removedBefore+1 {
		t.Fatalf("RemovedCount() = %d after delete", h.RemovedCount())
	}
	if rec, err := h.Select(5); err != nil || rec != nil {
		t.Fatalf("Select(5) = %v, %v, want nil", rec, err)
	}
	if rec, err := h.Select(6); err != nil || rec == nil || intValue(h.Schema(), rec.Bytes()) != 6 {
		t.Fatalf("Select(6) = %v, %v", rec, err)
	}

	id, err := h.Insert(intRecord(t, h.Schema(), 42))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if h.RemovedCount() != removedBefore {
		t.Errorf("RemovedCount() = %d, want %d", h.RemovedCount(), removedBefore)
	}

	blk := h.newBlock()
	if err := h.File().GetBlock(vacated.Block, blk); err != nil {
		t.Fatalf("GetBlock() error = %v", err)
	}
	span := blk.Record(int(vacated.Slot))
	if record.ID(span) != id || intValue(h.Schema(), span) != 42 {
		t.Errorf("vacated slot holds id %d value %d, want id %d value 42", record.ID(span), intValue(h.Schema(), span), id)
	}
}

func TestHeapFreeListOrder(t *testing.T) {
	h := createTestHeap(t, testOptions())
	defer mustClose(t, h)

	insertValues(t, h, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	first, second := locate(t, h, 1), locate(t, h, 6)

	for _, id := range []primitives.RecordID{1, 6} {
		if ok, err := h.Delete(id); err != nil || !ok {
			t.Fatalf("Delete(%d) = %v, %v", id, ok, err)
		}
	}
	if h.FreeListHead() != first {
		t.Fatalf("FreeListHead() = %v, want %v", h.FreeListHead(), first)
	}

	a, _ := h.Insert(intRecord(t, h.Schema(), 100))
	b, _ := h.Insert(intRecord(t, h.Schema(), 101))
	if got := locate(t, h, a); got != first {
		t.Errorf("first reinsert at %v, want %v", got, first)
	}
	if got := locate(t, h, b); got != second {
		t.Errorf("second reinsert at %v, want %v", got, second)
	}
	if h.FreeListHead().IsValid() || h.RemovedCount() != 0 {
		t.Errorf("free list not empty: head %v, removed %d", h.FreeListHead(), h.RemovedCount())
	}
}

func TestHeapDeleteFromWriteBlock(t *testing.T) {
	h := createTestHeap(t, testOptions())
	defer mustClose(t, h)

	insertValues(t, h, 0, 1, 2)
	ok, err := h.Delete(2)
	if err != nil || !ok {
		t.Fatalf("Delete(2) = %v, %v", ok, err)
	}
	if h.RemovedCount() != 0 {
		t.Errorf("unflushed delete was tombstoned")
	}
	if got, want := h.Size(), uint64(64); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
	if ok, _ := h.Delete(2); ok {
		t.Error("second Delete(2) reported a deletion")
	}
}

func TestHeapSelectPredicates(t *testing.T) {
	h := createTestHeap(t, testOptions())
	defer mustClose(t, h)

	for i := int32(0); i < 12; i++ {
		insertValues(t, h, i%4)
	}

	tests := []struct {
		name string
		run  func() (int, error)
		want int
	}{
		{"equals", func() (int, error) {
			recs, err := h.SelectWhereEquals(valueColumn, types.Int32(2))
			return len(recs), err
		}, 3},
		{"between", func() (int, error) {
			recs, err := h.SelectWhereBetween(valueColumn, types.Int32(1), types.Int32(2))
			return len(recs), err
		}, 6},
		{"ids", func() (int, error) {
			recs, err := h.SelectIDs([]primitives.RecordID{0, 5, 11, 99})
			return len(recs), err
		}, 3},
		{"delete where", func() (int, error) {
			return h.DeleteWhereEquals(valueColumn, types.Int32(3))
		}, 3},
		{"all after delete", func() (int, error) {
			recs, err := h.SelectAll()
			return len(recs), err
		}, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.run()
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHeapCompaction(t *testing.T) {
	h := createTestHeap(t, testOptions())
	defer mustClose(t, h)

	for i := int32(0); i < 20; i++ {
		insertValues(t, h, i)
	}
	for id := primitives.RecordID(0); id < 18; id += 2 {
		if ok, err := h.Delete(id); err != nil || !ok {
			t.Fatalf("Delete(%d) = %v, %v", id, ok, err)
		}
	}
	if h.BlockCount() != 9 || h.RemovedCount() != 9 {
		t.Fatalf("before compaction: %d blocks, %d removed", h.BlockCount(), h.RemovedCount())
	}

	if err := h.Reorganize(); err != nil {
		t.Fatalf("Reorganize() error = %v", err)
	}
	if h.BlockCount() != 5 {
		t.Errorf("BlockCount() = %d after compaction, want 5", h.BlockCount())
	}
	if h.RemovedCount() != 0 || h.FreeListHead().IsValid() {
		t.Errorf("free list survived compaction")
	}
	all, err := h.SelectAll()
	if err != nil {
		t.Fatalf("SelectAll() error = %v", err)
	}
	want := []primitives.RecordID{1, 3, 5, 7, 9, 11, 13, 15, 17, 18, 19}
	if got := sortedIDs(all); !slices.Equal(got, want) {
		t.Errorf("ids after compaction = %v, want %v", got, want)
	}

	if err := h.Reorganize(); err != nil {
		t.Fatalf("second Reorganize() error = %v", err)
	}
	if h.BlockCount() != 5 {
		t.Errorf("second compaction changed block count to %d", h.BlockCount())
	}
}

func TestHeapAutoReorganize(t *testing.T) {
	opts := testOptions()
	opts.AutoReorganize = true
	opts.MaxPercentEmptySpace = 0.25
	h := createTestHeap(t, opts)
	defer mustClose(t, h)

	for i := int32(0); i < 20; i++ {
		insertValues(t, h, i)
	}
	// 9 flushed blocks + 2 pending: 624 bytes, threshold 156 bytes, 7 tombstones
	for id := primitives.RecordID(0); id < 7; id++ {
		if _, err := h.Delete(id); err != nil {
			t.Fatalf("Delete(%d) error = %v", id, err)
		}
	}
	if h.RemovedCount() != 0 {
		t.Errorf("RemovedCount() = %d, want compaction to reset it", h.RemovedCount())
	}
	all, _ := h.SelectAll()
	if len(all) != 13 {
		t.Errorf("SelectAll() returned %d records, want 13", len(all))
	}
}

func TestHeapReopenKeepsFreeList(t *testing.T) {
	path := tablePath(t)
	h, err := CreateHeap(path, intSchema(), testOptions())
	if err != nil {
		t.Fatalf("CreateHeap() error = %v", err)
	}
	insertValues(t, h, 0, 1, 2, 3, 4, 5)
	if _, err := h.Delete(1); err != nil {
		t.Fatal(err)
	}
	vacated := h.FreeListHead()
	mustClose(t, h)

	h, err = OpenHeap(path, testOptions())
	if err != nil {
		t.Fatalf("OpenHeap() error = %v", err)
	}
	defer mustClose(t, h)
	if h.RemovedCount() != 1 || h.FreeListHead() != vacated {
		t.Fatalf("reopened free list = %v (%d), want %v (1)", h.FreeListHead(), h.RemovedCount(), vacated)
	}
	id, err := h.Insert(intRecord(t, h.Schema(), 7))
	if err != nil {
		t.Fatal(err)
	}
	if id != 6 {
		t.Errorf("Insert() id = %d, want 6", id)
	}
	if got := locate(t, h, id); got != vacated {
		t.Errorf("reinsert at %v, want %v", got, vacated)
	}
}

func TestHeapRejectsWrongRecords(t *testing.T) {
	h := createTestHeap(t, testOptions())
	defer mustClose(t, h)

	_, err := h.Insert(record.New(40))
	if !dberr.HasCategory(err, dberr.ErrCategoryUser) {
		t.Errorf("Insert(oversized) error = %v, want user error", err)
	}
	_, err = h.SelectWhereEquals(9, []byte{0})
	var dbErr *dberr.DBError
	if !errors.As(err, &dbErr) || dbErr.Code != "UNKNOWN_COLUMN" {
		t.Errorf("SelectWhereEquals(bad column) error = %v", err)
	}
	if _, err := CreateHeap(tablePath(t), varSchema(), testOptions()); err == nil {
		t.Error("CreateHeap accepted a variable schema")
	}
}

func TestHeapVarReuse(t *testing.T) {
	opts := testOptions()
	opts.BlockSize = 128
	h, err := CreateHeapVar(tablePath(t), varSchema(), opts)
	if err != nil {
		t.Fatalf("CreateHeapVar() error = %v", err)
	}
	defer mustClose(t, h)

	names := []string{"alpha-0000", "bravo", "charlie-000", "d", "echo", "foxtrot", "golf-golf-golf"}
	for _, n := range names {
		if _, err := h.Insert(nameRecord(t, h.Schema(), n)); err != nil {
			t.Fatalf("Insert(%q) error = %v", n, err)
		}
	}
	if h.BlockCount() == 0 {
		t.Fatal("expected flushed blocks")
	}

	vacated := locate(t, h, 0)
	if _, err := h.Delete(0); err != nil {
		t.Fatal(err)
	}

	if head := h.FreeListHead(); head != vacated {
		t.Fatalf("FreeListHead() = %v, want %v", head, vacated)
	}

	// longer than the freed slot: appended, the free list is untouched
	long, err := h.Insert(nameRecord(t, h.Schema(), strings.Repeat("x", 20)))
	if err != nil {
		t.Fatal(err)
	}
	if locate(t, h, long) == vacated || h.RemovedCount() != 1 {
		t.Fatalf("oversized record reused the freed slot")
	}
	if head := h.FreeListHead(); head != vacated {
		t.Errorf("FreeListHead() = %v after an oversized insert, want %v", head, vacated)
	}

	short, err := h.Insert(nameRecord(t, h.Schema(), "hi"))
	if err != nil {
		t.Fatal(err)
	}
	if got := locate(t, h, short); got != vacated {
		t.Errorf("short record at %v, want %v", got, vacated)
	}
	if head := h.FreeListHead(); head.IsValid() {
		t.Errorf("FreeListHead() = %v after reuse, want empty", head)
	}
	rec, err := h.Select(short)
	if err != nil || rec == nil {
		t.Fatalf("Select(%d) = %v, %v", short, rec, err)
	}
	if got := h.Schema().Format(rec.Bytes())[1]; got != "hi" {
		t.Errorf("reused record name = %q, want %q", got, "hi")
	}
}

func TestHeapVarCompaction(t *testing.T) {
	opts := testOptions()
	opts.BlockSize = 128
	h, err := CreateHeapVar(tablePath(t), varSchema(), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer mustClose(t, h)

	for i := 0; i < 30; i++ {
		if _, err := h.Insert(nameRecord(t, h.Schema(), strings.Repeat("n", 1+i%9))); err != nil {
			t.Fatal(err)
		}
	}
	before := h.BlockCount()
	deleted, err := h.DeleteWhereEquals(valueColumn, []byte("nnn"))
	if err != nil {
		t.Fatal(err)
	}
	for id := primitives.RecordID(0); id < 10; id++ {
		if _, err := h.Delete(id); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.Reorganize(); err != nil {
		t.Fatalf("Reorganize() error = %v", err)
	}
	if h.BlockCount() >= before {
		t.Errorf("BlockCount() = %d, want fewer than %d", h.BlockCount(), before)
	}
	all, err := h.SelectAll()
	if err != nil {
		t.Fatal(err)
	}
	if deleted == 0 || len(all) >= 30-deleted {
		t.Errorf("%d records after deleting %d+ of 30", len(all), deleted)
	}
	for _, r := range all {
		if r.ID() < 10 {
			t.Errorf("deleted id %d survived compaction", r.ID())
		}
	}
}
