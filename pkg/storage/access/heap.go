package access

import (
	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/pagefile"
)

// heapHeader adds the free list of tombstoned slots to the common header.
type heapHeader struct {
	pagefile.Common
	FreeHead record.Location
	FreeTail record.Location
	Removed  uint64
}

func (h *heapHeader) MarshalHeader(w *pagefile.HeaderWriter) {
	h.Common.MarshalHeader(w)
	w.Location("free_head", h.FreeHead)
	w.Location("free_tail", h.FreeTail)
	w.Uint("removed", h.Removed)
}

func (h *heapHeader) UnmarshalHeader(r *pagefile.HeaderReader) error {
	if err := h.Common.UnmarshalHeader(r); err != nil {
		return err
	}
	h.FreeHead = r.Location("free_head")
	h.FreeTail = r.Location("free_tail")
	h.Removed = r.Uint("removed")
	return r.Err()
}

// Heap is an unordered file. Inserts reuse tombstoned slots through a free
// list threaded via each tombstone's NextDeleted field and otherwise append
// to the write-behind block. The same type serves fixed (Heap) and variable
// (HeapVar) schemas; only the block layout differs.
type Heap struct {
	*Base
	header *heapHeader
	kind   Kind
	rec    *record.Record
}

// CreateHeap creates a heap table for a fixed-size schema.
func CreateHeap(path primitives.Filepath, s *schema.Schema, opts Options) (*Heap, error) {
	if s.IsVariable() {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "VARIABLE_SCHEMA", "heap tables need a fixed-size schema").
			WithHint("use a heapvar table for schemas with VARCHAR columns")
	}
	return createHeap(path, s, opts, KindHeap)
}

// OpenHeap opens an existing heap table.
func OpenHeap(path primitives.Filepath, opts Options) (*Heap, error) {
	return openHeap(path, opts, KindHeap)
}

func createHeap(path primitives.Filepath, s *schema.Schema, opts Options, kind Kind) (*Heap, error) {
	if err := checkBlockSize(s, opts.BlockSize, 0); err != nil {
		return nil, err
	}
	h := &heapHeader{
		Common:   pagefile.Common{Schema: s},
		FreeHead: record.NoLocation,
		FreeTail: record.NoLocation,
	}
	f, err := pagefile.Create(path, h, fileOptions(opts))
	if err != nil {
		return nil, err
	}
	return newHeap(f, h, opts, kind), nil
}

func openHeap(path primitives.Filepath, opts Options, kind Kind) (*Heap, error) {
	h := &heapHeader{}
	f, err := pagefile.Open(path, h, fileOptions(opts))
	if err != nil {
		return nil, err
	}
	if (kind == KindHeapVar) != h.Schema.IsVariable() {
		_ = f.Close()
		return nil, dberr.Newf(dberr.ErrCategoryUser, "WRONG_ORGANIZATION", "%s does not hold a %s table", path, kind)
	}
	return newHeap(f, h, opts, kind), nil
}

func newHeap(f *pagefile.File, h *heapHeader, opts Options, kind Kind) *Heap {
	heap := &Heap{
		Base:   newBase(f, &h.Common, opts, 0, kind.String()),
		header: h,
		kind:   kind,
	}
	heap.rec = record.New(int(h.Schema.MaxSize()))
	return heap
}

func fileOptions(opts Options) pagefile.Options {
	return pagefile.Options{BlockSize: opts.BlockSize, CacheBlocks: opts.CacheBlocks}
}

// Kind returns KindHeap or KindHeapVar.
func (h *Heap) Kind() Kind {
	return h.kind
}

// RemovedCount returns the length of the free list.
func (h *Heap) RemovedCount() uint64 {
	return h.header.Removed
}

// FreeListHead returns the slot the next insert will reuse.
func (h *Heap) FreeListHead() record.Location {
	return h.header.FreeHead
}

// Insert assigns an id to rec and stores it, reusing a free slot if any.
func (h *Heap) Insert(rec *record.Record) (primitives.RecordID, error) {
	if err := h.validate(rec); err != nil {
		return 0, err
	}
	id := h.header.AllocateID()
	rec.SetID(id)
	rec.SetNextDeleted(record.NoLocation)

	if h.header.FreeHead.IsValid() {
		reused, err := h.reuseFreeSlot(rec)
		if err != nil || reused {
			return id, err
		}
	}
	if _, err := h.appendRecord(rec.Bytes()); err != nil {
		return 0, err
	}
	return id, nil
}

// reuseFreeSlot pops the free-list head and overwrites it with rec. A
// variable record longer than the freed slot is not placed there.
func (h *Heap) reuseFreeSlot(rec *record.Record) (bool, error) {
	loc := h.header.FreeHead
	blk, err := h.loadForUpdate(loc.Block)
	if err != nil {
		return false, err
	}
	dberr.Assert(int(loc.Slot) < blk.Count(), "FREE_LIST_CORRUPT", "Heap",
		"free list head %v points past block end (%d slots)", loc, blk.Count())
	span := blk.Record(int(loc.Slot))
	dberr.Assert(record.IsTombstone(span), "FREE_LIST_CORRUPT", "Heap",
		"free list head %v holds live record %d", loc, record.ID(span))

	next := record.NextDeleted(span)
	if !blk.ReplaceAt(int(loc.Slot), rec.Bytes()) {
		return false, nil
	}
	if err := h.store(loc.Block, blk); err != nil {
		return false, err
	}

	h.header.FreeHead = next
	if !next.IsValid() {
		h.header.FreeTail = record.NoLocation
	}
	h.header.Removed--
	return true, nil
}

// InsertMany inserts every record in order.
func (h *Heap) InsertMany(recs []*record.Record) ([]primitives.RecordID, error) {
	ids := make([]primitives.RecordID, 0, len(recs))
	for _, rec := range recs {
		id, err := h.Insert(rec)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Select scans for the record with the given id.
func (h *Heap) Select(id primitives.RecordID) (*record.Record, error) {
	rec, _, err := scanFind(h, h.rec, idSetPredicate([]primitives.RecordID{id}))
	return rec, err
}

// SelectIDs returns every live record whose id is in ids, in scan order.
func (h *Heap) SelectIDs(ids []primitives.RecordID) ([]*record.Record, error) {
	return scanSelect(h, h.rec, idSetPredicate(ids))
}

// SelectAll returns every live record in scan order.
func (h *Heap) SelectAll() ([]*record.Record, error) {
	return scanSelect(h, h.rec, nil)
}

// SelectWhereEquals returns records whose column col equals value.
func (h *Heap) SelectWhereEquals(col primitives.ColumnID, value []byte) ([]*record.Record, error) {
	if _, err := h.schema.Column(col); err != nil {
		return nil, err
	}
	return scanSelect(h, h.rec, equalsPredicate(h.schema, col, value))
}

// SelectWhereBetween returns records whose column col lies in [min, max].
func (h *Heap) SelectWhereBetween(col primitives.ColumnID, min, max []byte) ([]*record.Record, error) {
	if _, err := h.schema.Column(col); err != nil {
		return nil, err
	}
	return scanSelect(h, h.rec, betweenPredicate(h.schema, col, min, max))
}

// Delete removes the record with the given id.
func (h *Heap) Delete(id primitives.RecordID) (bool, error) {
	_, loc, err := scanFind(h, h.rec, idSetPredicate([]primitives.RecordID{id}))
	if err != nil || !loc.IsValid() {
		return false, err
	}
	if err := h.deleteAt(loc); err != nil {
		return false, err
	}
	return true, h.maybeReorganize()
}

// DeleteWhereEquals removes every record whose column col equals value in a
// single pass.
func (h *Heap) DeleteWhereEquals(col primitives.ColumnID, value []byte) (int, error) {
	if _, err := h.schema.Column(col); err != nil {
		return 0, err
	}
	n, err := scanDelete(h, h.rec, equalsPredicate(h.schema, col, value), h.deleteAt)
	if err != nil {
		return n, err
	}
	return n, h.maybeReorganize()
}

// deleteAt tombstones a flushed slot and appends it to the free list.
// Records still in the write block are removed outright.
func (h *Heap) deleteAt(loc record.Location) error {
	if loc.Block == h.writeBlockID() {
		h.writeBlock.RemoveRecordAt(int(loc.Slot))
		return nil
	}

	blk, err := h.loadForUpdate(loc.Block)
	if err != nil {
		return err
	}
	record.Tombstone(blk.Record(int(loc.Slot)), record.NoLocation)
	if err := h.store(loc.Block, blk); err != nil {
		return err
	}

	if tail := h.header.FreeTail; tail.IsValid() {
		tb, err := h.loadForUpdate(tail.Block)
		if err != nil {
			return err
		}
		dberr.Assert(int(tail.Slot) < tb.Count(), "FREE_LIST_CORRUPT", "Heap",
			"free list tail %v points past block end", tail)
		span := tb.Record(int(tail.Slot))
		dberr.Assert(record.IsTombstone(span), "FREE_LIST_CORRUPT", "Heap",
			"free list tail %v holds live record %d", tail, record.ID(span))
		record.SetNextDeleted(span, loc)
		if err := h.store(tail.Block, tb); err != nil {
			return err
		}
	} else {
		h.header.FreeHead = loc
	}
	h.header.FreeTail = loc
	h.header.Removed++
	return nil
}

// shouldReorganize reports whether tombstones fill enough of the table.
func (h *Heap) shouldReorganize() bool {
	if !h.opts.AutoReorganize || h.header.Removed == 0 {
		return false
	}
	wasted := float64(h.header.Removed) * float64(h.schema.Size())
	return wasted >= h.opts.MaxPercentEmptySpace*float64(h.Size())
}

func (h *Heap) maybeReorganize() error {
	if !h.shouldReorganize() {
		return nil
	}
	return h.Reorganize()
}

// Reorganize compacts the file: tombstones are removed from every block,
// live records from the tail blocks refill free space in earlier blocks,
// and the emptied tail is truncated. The free list is reset.
func (h *Heap) Reorganize() error {
	before := h.BlockCount()
	stripped, err := h.stripTombstones()
	if err != nil {
		return err
	}
	live, err := h.backfill()
	if err != nil {
		return err
	}
	if err := h.file.Truncate(live); err != nil {
		return err
	}

	h.header.FreeHead = record.NoLocation
	h.header.FreeTail = record.NoLocation
	h.header.Removed = 0
	h.invalidate()
	h.log.Info("heap compacted", "tombstones", stripped, "blocks_before", before, "blocks_after", live)
	return nil
}

// stripTombstones physically removes tombstones block by block.
func (h *Heap) stripTombstones() (int, error) {
	total := 0
	for id := primitives.BlockID(0); uint64(id) < h.BlockCount(); id++ {
		if err := h.file.GetBlock(id, h.scratch); err != nil {
			return total, err
		}
		free := h.scratch.FreeSpace()
		removed := h.scratch.RemoveTombstones()
		h.scratch.Compact()
		if removed == 0 && free == h.scratch.FreeSpace() {
			continue
		}
		if err := h.file.WriteBlock(h.scratch, id); err != nil {
			return total, err
		}
		total += removed
	}
	return total, nil
}

// backfill moves records from the last blocks into free space of the first
// ones and returns the number of non-empty leading blocks.
func (h *Heap) backfill() (uint64, error) {
	n := h.BlockCount()
	if n == 0 {
		return 0, nil
	}
	dst, src := uint64(0), n-1
	dstBlk, srcBlk := h.readBlock, h.scratch
	h.readID = primitives.InvalidBlockID

	for dst < src {
		if err := h.file.GetBlock(primitives.BlockID(dst), dstBlk); err != nil {
			return 0, err
		}
		if !dstBlk.HasRoom(int(h.schema.Size())) {
			dst++
			continue
		}
		if err := h.file.GetBlock(primitives.BlockID(src), srcBlk); err != nil {
			return 0, err
		}

		moved := 0
		for srcBlk.Count() > 0 {
			last := srcBlk.Record(srcBlk.Count() - 1)
			if !dstBlk.Append(last) {
				break
			}
			srcBlk.RemoveRecordAt(srcBlk.Count() - 1)
			moved++
		}
		if moved > 0 {
			if err := h.file.WriteBlock(dstBlk, primitives.BlockID(dst)); err != nil {
				return 0, err
			}
			if err := h.file.WriteBlock(srcBlk, primitives.BlockID(src)); err != nil {
				return 0, err
			}
		}
		if srcBlk.IsEmpty() {
			src--
		} else {
			dst++
		}
	}

	if err := h.file.GetBlock(primitives.BlockID(src), srcBlk); err != nil {
		return 0, err
	}
	if srcBlk.IsEmpty() {
		return src, nil
	}
	return src + 1, nil
}

// Close flushes the write block and the header.
func (h *Heap) Close() error {
	return h.close()
}
