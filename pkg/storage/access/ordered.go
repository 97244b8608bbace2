package access

import (
	"cmp"
	"errors"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/block"
	"recordstore/pkg/storage/pagefile"
	"recordstore/pkg/types"
)

type orderedHeader struct {
	pagefile.Common
	OrderedBy primitives.ColumnID
	Records   uint64
	Deleted   uint64
}

func (h *orderedHeader) MarshalHeader(w *pagefile.HeaderWriter) {
	h.Common.MarshalHeader(w)
	w.Uint("ordered_by", uint64(h.OrderedBy))
	w.Uint("records", h.Records)
	w.Uint("deleted", h.Deleted)
}

func (h *orderedHeader) UnmarshalHeader(r *pagefile.HeaderReader) error {
	if err := h.Common.UnmarshalHeader(r); err != nil {
		return err
	}
	h.OrderedBy = primitives.ColumnID(r.Uint("ordered_by")) // #nosec G115
	h.Records = r.Uint("records")
	h.Deleted = r.Uint("deleted")
	return r.Err()
}

type extensionHeader struct {
	pagefile.Common
	OrderedBy primitives.ColumnID
}

func (h *extensionHeader) MarshalHeader(w *pagefile.HeaderWriter) {
	h.Common.MarshalHeader(w)
	w.Uint("ordered_by", uint64(h.OrderedBy))
}

func (h *extensionHeader) UnmarshalHeader(r *pagefile.HeaderReader) error {
	if err := h.Common.UnmarshalHeader(r); err != nil {
		return err
	}
	h.OrderedBy = primitives.ColumnID(r.Uint("ordered_by")) // #nosec G115
	return r.Err()
}

// Ordered keeps a primary file sorted by one column plus an unsorted
// extension file that takes every insert. Lookups on the ordered column
// binary search the primary file and scan the extension. Reorganize folds
// the extension into the primary file with an external merge sort.
//
// Scan locations address primary blocks as [0,P), extension blocks as
// [P,P+E) and the extension write block as P+E.
type Ordered struct {
	*Base
	ext       *Base
	header    *orderedHeader
	extHeader *extensionHeader
	orderedBy primitives.ColumnID
	perBlock  uint64
	rec       *record.Record
	inExt     bool

	// merge buffers
	runA, runB, out *block.Block
	mergeStats      Stats
}

// CreateOrdered creates <path> and <path>.extension for a fixed-size schema
// sorted by opts.OrderedBy.
func CreateOrdered(path primitives.Filepath, s *schema.Schema, opts Options) (*Ordered, error) {
	if s.IsVariable() {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "VARIABLE_SCHEMA", "ordered tables need a fixed-size schema")
	}
	if _, err := s.Column(opts.OrderedBy); err != nil {
		return nil, err
	}
	if err := checkBlockSize(s, opts.BlockSize, 0); err != nil {
		return nil, err
	}

	ph := &orderedHeader{Common: pagefile.Common{Schema: s}, OrderedBy: opts.OrderedBy}
	pf, err := pagefile.Create(path, ph, fileOptions(opts))
	if err != nil {
		return nil, err
	}
	eh := &extensionHeader{Common: pagefile.Common{Schema: s}, OrderedBy: opts.OrderedBy}
	ef, err := pagefile.Create(path.WithSuffix(primitives.ExtensionSuffix), eh, fileOptions(opts))
	if err != nil {
		_ = pf.Close()
		return nil, err
	}
	_ = path.WithSuffix(primitives.MergeSuffix).Remove()
	return newOrdered(pf, ph, ef, eh, opts), nil
}

// OpenOrdered opens an ordered table. The ordering column is taken from the
// file, opts.OrderedBy is ignored.
func OpenOrdered(path primitives.Filepath, opts Options) (*Ordered, error) {
	ph := &orderedHeader{}
	pf, err := pagefile.Open(path, ph, fileOptions(opts))
	if err != nil {
		return nil, err
	}
	if ph.Schema.IsVariable() {
		_ = pf.Close()
		return nil, dberr.Newf(dberr.ErrCategoryUser, "WRONG_ORGANIZATION", "%s does not hold an ordered table", path)
	}
	eh := &extensionHeader{}
	ef, err := pagefile.Open(path.WithSuffix(primitives.ExtensionSuffix), eh, fileOptions(opts))
	if err != nil {
		_ = pf.Close()
		return nil, err
	}
	if eh.OrderedBy != ph.OrderedBy || !eh.Schema.Equal(ph.Schema) {
		_ = ef.Close()
		_ = pf.Close()
		return nil, dberr.Newf(dberr.ErrCategoryData, "EXTENSION_MISMATCH", "extension of %s does not match its primary file", path)
	}

	o := newOrdered(pf, ph, ef, eh, opts)
	if ph.Records > o.BlockCount()*o.perBlock {
		_ = o.ext.file.Close()
		_ = o.file.Close()
		return nil, dberr.Newf(dberr.ErrCategoryData, "MALFORMED_HEADER", "%s claims %d records in %d blocks", path, ph.Records, o.BlockCount())
	}
	return o, nil
}

func newOrdered(pf *pagefile.File, ph *orderedHeader, ef *pagefile.File, eh *extensionHeader, opts Options) *Ordered {
	opts.OrderedBy = ph.OrderedBy
	o := &Ordered{
		Base:      newBase(pf, &ph.Common, opts, 0, KindOrdered.String()),
		ext:       newBase(ef, &eh.Common, opts, 0, "ordered.extension"),
		header:    ph,
		extHeader: eh,
		orderedBy: ph.OrderedBy,
		rec:       ph.Schema.NewRecord(),
	}
	o.runA = o.newBlock()
	o.runB = o.newBlock()
	o.out = o.newBlock()
	o.perBlock = uint64(o.out.RecordsPerBlock()) // #nosec G115
	return o
}

func (o *Ordered) Kind() Kind {
	return KindOrdered
}

// OrderedBy returns the sort column.
func (o *Ordered) OrderedBy() primitives.ColumnID {
	return o.orderedBy
}

// RecordCount returns the number of slots in the sorted primary file,
// tombstones included.
func (o *Ordered) RecordCount() uint64 {
	return o.header.Records
}

// DeletedCount returns the tombstones created since the last reorganization.
func (o *Ordered) DeletedCount() uint64 {
	return o.header.Deleted
}

// ExtensionBlocks returns the flushed blocks of the extension file.
func (o *Ordered) ExtensionBlocks() uint64 {
	return o.ext.BlockCount()
}

// Size covers both files.
func (o *Ordered) Size() uint64 {
	return o.Base.Size() + o.ext.Size()
}

func (o *Ordered) Stats() Stats {
	return o.Base.Stats().Add(o.ext.Stats()).Add(o.mergeStats)
}

func (o *Ordered) ResetStats() {
	o.Base.ResetStats()
	o.ext.ResetStats()
	o.mergeStats = Stats{}
}

// compare orders records by the sort column, then by id. Tombstones sort
// after every live record.
func (o *Ordered) compare(a, b []byte) int {
	ta, tb := record.IsTombstone(a), record.IsTombstone(b)
	switch {
	case ta && tb:
		return 0
	case ta:
		return 1
	case tb:
		return -1
	}
	if c := o.schema.Compare(o.orderedBy, a, b); c != 0 {
		return c
	}
	return cmp.Compare(record.ID(a), record.ID(b))
}

// MoveToStart rewinds the combined cursor to the first primary block.
func (o *Ordered) MoveToStart() {
	o.Base.MoveToStart()
	o.ext.MoveToStart()
	o.inExt = false
}

// MoveNext walks the primary file and then the extension.
func (o *Ordered) MoveNext(rec *record.Record) (record.Location, bool, error) {
	o.Base.touched = 0
	o.ext.touched = 0
	if !o.inExt {
		loc, ok, err := o.Base.MoveNext(rec)
		if err != nil || ok {
			return loc, ok, err
		}
		o.inExt = true
	}
	loc, ok, err := o.ext.MoveNext(rec)
	if ok {
		loc.Block += primitives.BlockID(o.BlockCount())
	}
	return loc, ok, err
}

// BlocksTouched counts the primary and extension blocks the last MoveNext
// loaded.
func (o *Ordered) BlocksTouched() int {
	return o.Base.touched + o.ext.touched
}

// Insert appends to the extension. Reaching MaxExtensionBlocks folds the
// extension into the primary file.
func (o *Ordered) Insert(rec *record.Record) (primitives.RecordID, error) {
	if err := o.validate(rec); err != nil {
		return 0, err
	}
	id := o.extHeader.AllocateID()
	rec.SetID(id)
	rec.SetNextDeleted(record.NoLocation)
	if _, err := o.ext.appendRecord(rec.Bytes()); err != nil {
		return 0, err
	}
	if o.opts.MaxExtensionBlocks > 0 && o.ext.BlockCount() >= o.opts.MaxExtensionBlocks {
		o.log.Info("extension full, reorganizing", "extension_blocks", o.ext.BlockCount())
		if err := o.Reorganize(); err != nil {
			return id, err
		}
	}
	return id, nil
}

func (o *Ordered) InsertMany(recs []*record.Record) ([]primitives.RecordID, error) {
	ids := make([]primitives.RecordID, 0, len(recs))
	for _, rec := range recs {
		id, err := o.Insert(rec)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func idKey(id primitives.RecordID) []byte {
	return types.Int64(int64(id)) // #nosec G115
}

// Select binary searches the primary file when the table is ordered by id
// and otherwise scans both files.
func (o *Ordered) Select(id primitives.RecordID) (*record.Record, error) {
	if o.orderedBy != primitives.IDColumn {
		rec, _, err := scanFind(o, o.rec, idSetPredicate([]primitives.RecordID{id}))
		return rec, err
	}
	key := idKey(id)
	recs, _, err := o.rangePrimary(key, key, true)
	if err != nil || len(recs) > 0 {
		if len(recs) > 0 {
			return recs[0], nil
		}
		return nil, err
	}
	rec, _, err := scanFind(o.ext, o.rec, idSetPredicate([]primitives.RecordID{id}))
	return rec, err
}

func (o *Ordered) SelectIDs(ids []primitives.RecordID) ([]*record.Record, error) {
	if o.orderedBy != primitives.IDColumn {
		return scanSelect(o, o.rec, idSetPredicate(ids))
	}
	var out []*record.Record
	for _, id := range ids {
		rec, err := o.Select(id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (o *Ordered) SelectAll() ([]*record.Record, error) {
	return scanSelect(o, o.rec, nil)
}

func (o *Ordered) SelectWhereEquals(col primitives.ColumnID, value []byte) ([]*record.Record, error) {
	return o.SelectWhereBetween(col, value, value)
}

// SelectWhereBetween returns primary matches in sort order followed by the
// extension matches in insertion order.
func (o *Ordered) SelectWhereBetween(col primitives.ColumnID, min, max []byte) ([]*record.Record, error) {
	if _, err := o.schema.Column(col); err != nil {
		return nil, err
	}
	match := betweenPredicate(o.schema, col, min, max)
	if col != o.orderedBy {
		return scanSelect(o, o.rec, match)
	}
	recs, _, err := o.rangePrimary(min, max, false)
	if err != nil {
		return nil, err
	}
	more, err := scanSelect(o.ext, o.rec, match)
	if err != nil {
		return nil, err
	}
	return append(recs, more...), nil
}

// Delete tombstones the record with the given id.
func (o *Ordered) Delete(id primitives.RecordID) (bool, error) {
	var loc record.Location
	if o.orderedBy == primitives.IDColumn {
		key := idKey(id)
		_, locs, err := o.rangePrimary(key, key, true)
		if err != nil {
			return false, err
		}
		if len(locs) > 0 {
			loc = locs[0]
		} else {
			_, extLoc, err := scanFind(o.ext, o.rec, idSetPredicate([]primitives.RecordID{id}))
			if err != nil || !extLoc.IsValid() {
				return false, err
			}
			loc = o.fromExtension(extLoc)
		}
	} else {
		_, found, err := scanFind(o, o.rec, idSetPredicate([]primitives.RecordID{id}))
		if err != nil || !found.IsValid() {
			return false, err
		}
		loc = found
	}

	if err := o.deleteAt(loc); err != nil {
		return false, err
	}
	return true, o.maybeCompress()
}

// DeleteWhereEquals tombstones every match. On the ordered column the
// primary matches are found by binary search.
func (o *Ordered) DeleteWhereEquals(col primitives.ColumnID, value []byte) (int, error) {
	if _, err := o.schema.Column(col); err != nil {
		return 0, err
	}
	match := equalsPredicate(o.schema, col, value)
	if col != o.orderedBy {
		n, err := scanDelete(o, o.rec, match, o.deleteAt)
		if err != nil {
			return n, err
		}
		return n, o.maybeCompress()
	}

	_, locs, err := o.rangePrimary(value, value, false)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, loc := range locs {
		if err := o.deleteAt(loc); err != nil {
			return deleted, err
		}
		deleted++
	}
	n, err := scanDelete(o.ext, o.rec, match, func(loc record.Location) error {
		return o.deleteAt(o.fromExtension(loc))
	})
	deleted += n
	if err != nil {
		return deleted, err
	}
	return deleted, o.maybeCompress()
}

// fromExtension converts an extension location to a combined location.
func (o *Ordered) fromExtension(loc record.Location) record.Location {
	loc.Block += primitives.BlockID(o.BlockCount())
	return loc
}

// deleteAt tombstones a primary or flushed extension slot in place. Records
// in the extension write block are removed outright.
func (o *Ordered) deleteAt(loc record.Location) error {
	primary := primitives.BlockID(o.BlockCount())
	if loc.Block < primary {
		return o.tombstone(o.Base, loc)
	}
	extLoc := record.Location{Block: loc.Block - primary, Slot: loc.Slot}
	if extLoc.Block == o.ext.writeBlockID() {
		o.ext.writeBlock.RemoveRecordAt(int(extLoc.Slot))
		return nil
	}
	return o.tombstone(o.ext, extLoc)
}

func (o *Ordered) tombstone(b *Base, loc record.Location) error {
	blk, err := b.loadForUpdate(loc.Block)
	if err != nil {
		return err
	}
	span := blk.Record(int(loc.Slot))
	dberr.Assert(!record.IsTombstone(span), "RECORD_SPAN", "Ordered", "slot %v is already deleted", loc)
	record.Tombstone(span, record.NoLocation)
	if err := b.store(loc.Block, blk); err != nil {
		return err
	}
	o.header.Deleted++
	return nil
}

func (o *Ordered) maybeCompress() error {
	if !o.opts.AutoReorganize || o.header.Deleted == 0 {
		return nil
	}
	wasted := float64(o.header.Deleted) * float64(o.schema.Size())
	if wasted < o.opts.MaxPercentEmptySpace*float64(o.Size()) {
		return nil
	}
	return o.Compress()
}

// Close folds a non-empty extension when ReorganizeOnClose is set, then
// closes both files.
func (o *Ordered) Close() error {
	if o.opts.ReorganizeOnClose && (o.ext.BlockCount() > 0 || !o.ext.writeBlock.IsEmpty()) {
		if err := o.Reorganize(); err != nil {
			return err
		}
	}
	o.header.NextID = o.extHeader.NextID
	return errors.Join(o.ext.close(), o.Base.close())
}
