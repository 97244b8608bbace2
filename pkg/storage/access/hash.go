package access

import (
	"encoding/binary"
	"math"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/block"
	"recordstore/pkg/storage/pagefile"
)

const (
	// hashBlockHeaderSize holds the previous block of the overflow chain.
	hashBlockHeaderSize = 8
	noBucketBlock       = -1
	maxBuckets          = 1 << 20
)

type hashHeader struct {
	pagefile.Common
	Buckets []int64
}

func (h *hashHeader) MarshalHeader(w *pagefile.HeaderWriter) {
	h.Common.MarshalHeader(w)
	w.Uint("buckets", uint64(len(h.Buckets)))
	for _, head := range h.Buckets {
		w.Int("bucket", head)
	}
}

func (h *hashHeader) UnmarshalHeader(r *pagefile.HeaderReader) error {
	if err := h.Common.UnmarshalHeader(r); err != nil {
		return err
	}
	n := r.Uint("buckets")
	if r.Err() != nil {
		return r.Err()
	}
	if n == 0 || n > maxBuckets {
		return dberr.Newf(dberr.ErrCategoryData, "MALFORMED_HEADER", "hash header declares %d buckets", n)
	}
	h.Buckets = make([]int64, n)
	for i := range h.Buckets {
		h.Buckets[i] = r.Int("bucket")
	}
	return r.Err()
}

// Hash is a static external hash table keyed by record id. Each bucket
// points at the newest block of its overflow chain; every block stores the
// id of the next older block in its header region. Inserts go straight to
// the bucket head, so the write-behind block is never used.
//
// Deleting the last record of an overflow block leaves the empty block in
// its chain. Chains are only shortened by recreating the table.
type Hash struct {
	*Base
	header *hashHeader
	rec    *record.Record
}

// CreateHash creates a hash table with opts.Buckets buckets.
func CreateHash(path primitives.Filepath, s *schema.Schema, opts Options) (*Hash, error) {
	if opts.Buckets <= 0 || opts.Buckets > maxBuckets {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "BUCKET_COUNT", "bucket count must be in [1,%d], got %d", maxBuckets, opts.Buckets)
	}
	if err := checkBlockSize(s, opts.BlockSize, hashBlockHeaderSize); err != nil {
		return nil, err
	}
	h := &hashHeader{
		Common:  pagefile.Common{Schema: s},
		Buckets: make([]int64, opts.Buckets),
	}
	for i := range h.Buckets {
		h.Buckets[i] = noBucketBlock
	}
	f, err := pagefile.Create(path, h, fileOptions(opts))
	if err != nil {
		return nil, err
	}
	return newHash(f, h, opts), nil
}

// OpenHash opens a hash table. A non-zero opts.Buckets must match the
// bucket count the table was created with.
func OpenHash(path primitives.Filepath, opts Options) (*Hash, error) {
	h := &hashHeader{}
	f, err := pagefile.Open(path, h, fileOptions(opts))
	if err != nil {
		return nil, err
	}
	if opts.Buckets != 0 && opts.Buckets != len(h.Buckets) {
		_ = f.Close()
		dberr.Fatal("BUCKET_MISMATCH", "Hash", "%s was created with %d buckets, opened with %d",
			path, len(h.Buckets), opts.Buckets)
	}
	return newHash(f, h, opts), nil
}

func newHash(f *pagefile.File, h *hashHeader, opts Options) *Hash {
	return &Hash{
		Base:   newBase(f, &h.Common, opts, hashBlockHeaderSize, KindHash.String()),
		header: h,
		rec:    record.New(int(h.Schema.MaxSize())),
	}
}

func (h *Hash) Kind() Kind {
	return KindHash
}

// NumBuckets returns the directory size.
func (h *Hash) NumBuckets() int {
	return len(h.header.Buckets)
}

// BucketOf returns the bucket an id hashes to.
func (h *Hash) BucketOf(id primitives.RecordID) int {
	return int(uint64(id) % uint64(len(h.header.Buckets)))
}

func prevBlock(b *block.Block) int64 {
	v := binary.LittleEndian.Uint64(b.Header())
	if v == math.MaxUint64 {
		return noBucketBlock
	}
	return int64(v) // #nosec G115
}

func setPrevBlock(b *block.Block, prev int64) {
	v := uint64(math.MaxUint64)
	if prev >= 0 {
		v = uint64(prev)
	}
	binary.LittleEndian.PutUint64(b.Header(), v)
}

// ChainLength returns the number of blocks in a bucket's overflow chain.
func (h *Hash) ChainLength(bucket int) (int, error) {
	n := 0
	for next := h.header.Buckets[bucket]; next != noBucketBlock; n++ {
		if err := h.file.GetBlock(primitives.BlockID(next), h.scratch); err != nil {
			return n, err
		}
		next = prevBlock(h.scratch)
	}
	return n, nil
}

// Insert stores rec in the head block of its bucket, starting a new head
// when the current one is full.
func (h *Hash) Insert(rec *record.Record) (primitives.RecordID, error) {
	if err := h.validate(rec); err != nil {
		return 0, err
	}
	id := h.header.AllocateID()
	rec.SetID(id)
	rec.SetNextDeleted(record.NoLocation)

	bucket := h.BucketOf(id)
	head := h.header.Buckets[bucket]
	if head != noBucketBlock {
		blk, err := h.loadForUpdate(primitives.BlockID(head))
		if err != nil {
			return 0, err
		}
		if blk.Append(rec.Bytes()) {
			return id, h.store(primitives.BlockID(head), blk)
		}
	}

	h.scratch.Clear()
	setPrevBlock(h.scratch, head)
	h.scratch.Append(rec.Bytes())
	newHead, err := h.file.AddBlock(h.scratch)
	if err != nil {
		return 0, err
	}
	h.header.Buckets[bucket] = int64(newHead) // #nosec G115
	h.log.Debug("bucket chain grown", "bucket", bucket, "head", uint64(newHead), "prev", head)
	return id, nil
}

func (h *Hash) InsertMany(recs []*record.Record) ([]primitives.RecordID, error) {
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

// find walks the bucket chain for id. On success the containing block is
// left in the read block.
func (h *Hash) find(id primitives.RecordID) (*record.Record, record.Location, error) {
	h.touched = 0
	for next := h.header.Buckets[h.BucketOf(id)]; next != noBucketBlock; {
		blockID := primitives.BlockID(next)
		if err := h.load(blockID); err != nil {
			return nil, record.NoLocation, err
		}
		h.readBlock.MoveToStart()
		for h.readBlock.GetRecord(h.rec) {
			if h.rec.ID() == id {
				return h.rec.Clone(), h.location(blockID, h.readBlock), nil
			}
		}
		next = prevBlock(h.readBlock)
	}
	return nil, record.NoLocation, nil
}

// Select walks the id's bucket chain.
func (h *Hash) Select(id primitives.RecordID) (*record.Record, error) {
	rec, _, err := h.find(id)
	return rec, err
}

func (h *Hash) SelectIDs(ids []primitives.RecordID) ([]*record.Record, error) {
	var out []*record.Record
	for _, id := range ids {
		rec, err := h.Select(id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (h *Hash) SelectAll() ([]*record.Record, error) {
	return scanSelect(h, h.rec, nil)
}

// SelectWhereEquals uses the bucket walk for the id column and a full scan
// for any other column.
func (h *Hash) SelectWhereEquals(col primitives.ColumnID, value []byte) ([]*record.Record, error) {
	if _, err := h.schema.Column(col); err != nil {
		return nil, err
	}
	if col == primitives.IDColumn {
		id, ok := idValue(value)
		if !ok {
			return nil, nil
		}
		rec, err := h.Select(id)
		if err != nil || rec == nil {
			return nil, err
		}
		return []*record.Record{rec}, nil
	}
	return scanSelect(h, h.rec, equalsPredicate(h.schema, col, value))
}

func (h *Hash) SelectWhereBetween(col primitives.ColumnID, min, max []byte) ([]*record.Record, error) {
	if _, err := h.schema.Column(col); err != nil {
		return nil, err
	}
	return scanSelect(h, h.rec, betweenPredicate(h.schema, col, min, max))
}

// Delete removes the record and refills its slot with the last record of
// the bucket's newest non-empty block.
func (h *Hash) Delete(id primitives.RecordID) (bool, error) {
	_, loc, err := h.find(id)
	if err != nil || !loc.IsValid() {
		return false, err
	}
	dberr.Assert(h.readID == loc.Block, "RECORD_SPAN", "Hash", "record %d located in block %v but block %v is loaded", id, loc.Block, h.readID)

	found := h.readBlock
	dberr.Assert(record.ID(found.CurrentRecord()) == id, "RECORD_SPAN", "Hash",
		"cursor of block %v is not on record %d", loc.Block, id)
	found.RemoveRecordAt(int(loc.Slot))
	if err := h.refill(h.BucketOf(id), loc.Block, found); err != nil {
		return false, err
	}
	return true, h.file.WriteBlock(found, loc.Block)
}

// refill moves the last record of the first non-empty block of the chain
// into found, which must have just lost a record.
func (h *Hash) refill(bucket int, foundID primitives.BlockID, found *block.Block) error {
	next := h.header.Buckets[bucket]
	for next != noBucketBlock && primitives.BlockID(next) != foundID {
		donorID := primitives.BlockID(next)
		if err := h.file.GetBlock(donorID, h.scratch); err != nil {
			return err
		}
		if h.scratch.IsEmpty() {
			next = prevBlock(h.scratch)
			continue
		}
		last := h.scratch.Count() - 1
		if !found.Append(h.scratch.Record(last)) {
			return nil
		}
		h.scratch.RemoveRecordAt(last)
		return h.file.WriteBlock(h.scratch, donorID)
	}
	return nil
}

// DeleteWhereEquals deletes by id through the bucket walk. For other columns
// the matching ids are collected first and deleted one by one, since a
// refill may move records between blocks of a chain.
func (h *Hash) DeleteWhereEquals(col primitives.ColumnID, value []byte) (int, error) {
	if _, err := h.schema.Column(col); err != nil {
		return 0, err
	}
	var ids []primitives.RecordID
	if col == primitives.IDColumn {
		id, ok := idValue(value)
		if !ok {
			return 0, nil
		}
		ids = append(ids, id)
	} else {
		matches, err := scanSelect(h, h.rec, equalsPredicate(h.schema, col, value))
		if err != nil {
			return 0, err
		}
		for _, m := range matches {
			ids = append(ids, m.ID())
		}
	}

	deleted := 0
	for _, id := range ids {
		ok, err := h.Delete(id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

// Reorganize is a no-op: the bucket layout is static.
func (h *Hash) Reorganize() error {
	return nil
}

func (h *Hash) Close() error {
	return h.close()
}
