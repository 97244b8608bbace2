package access

import (
	"slices"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/storage/block"
	"recordstore/pkg/storage/pagefile"
)

// partition is a contiguous run of primary blocks that is internally sorted
// once every partition below it has been merged.
type partition struct {
	first uint64
	count uint64
	level int
}

// splitPartitions halves p until every partition spans one block. The extra
// block of an odd split goes to the left half.
func splitPartitions(p partition) []partition {
	if p.count <= 1 {
		return []partition{p}
	}
	left := partition{first: p.first, count: (p.count + 1) / 2, level: p.level + 1}
	right := partition{first: left.first + left.count, count: p.count - left.count, level: p.level + 1}
	return append(splitPartitions(left), splitPartitions(right)...)
}

// run streams the live records of a partition.
type run struct {
	file *pagefile.File
	blk  *block.Block
	next uint64
	end  uint64
	slot int
}

func newRun(f *pagefile.File, p partition, blk *block.Block) *run {
	blk.Clear()
	return &run{file: f, blk: blk, next: p.first, end: p.first + p.count}
}

// advance returns the next live record span.
func (r *run) advance() ([]byte, bool, error) {
	for {
		for r.slot < r.blk.Count() {
			span := r.blk.Record(r.slot)
			r.slot++
			if !record.IsTombstone(span) {
				return span, true, nil
			}
		}
		if r.next >= r.end {
			return nil, false, nil
		}
		if err := r.file.GetBlock(primitives.BlockID(r.next), r.blk); err != nil {
			return nil, false, err
		}
		r.next++
		r.slot = 0
	}
}

// Compress removes tombstones by reorganizing the table.
func (o *Ordered) Compress() error {
	return o.Reorganize()
}

// Reorganize folds the extension into the primary file and restores full
// sort order, dropping tombstones.
func (o *Ordered) Reorganize() error {
	if o.opts.InMemoryReorganize {
		return o.ReorganizeInMemory()
	}
	return o.reorganizeExternal()
}

// foldExtension appends every extension block, sorted, to the primary file
// and empties the extension.
func (o *Ordered) foldExtension() error {
	if err := o.ext.flushWriteBlock(); err != nil {
		return err
	}
	for id := primitives.BlockID(0); uint64(id) < o.ext.BlockCount(); id++ {
		if err := o.ext.file.GetBlock(id, o.runA); err != nil {
			return err
		}
		o.runA.Sort(o.compare)
		if _, err := o.file.AddBlock(o.runA); err != nil {
			return err
		}
	}
	o.ext.file.SeekHead()
	o.ext.invalidate()
	return nil
}

func (o *Ordered) reorganizeExternal() error {
	extBlocks := o.ext.BlockCount()
	if err := o.foldExtension(); err != nil {
		return err
	}
	total := o.BlockCount()
	o.invalidate()

	var live uint64
	if total > 0 {
		mergePath := o.file.Path().WithSuffix(primitives.MergeSuffix)
		mf, err := pagefile.Create(mergePath, &pagefile.Common{Schema: o.schema}, pagefile.Options{BlockSize: o.file.BlockSize()})
		if err != nil {
			return err
		}
		live, err = o.mergeAll(mf, total)
		c := mf.Counters()
		o.mergeStats = o.mergeStats.Add(Stats{BlockReads: c.Reads, BlockWrites: c.Writes})
		if rerr := mf.Remove(); err == nil {
			err = rerr
		}
		if err != nil {
			return err
		}
	}

	if err := o.finish(live); err != nil {
		return err
	}
	o.log.Info("ordered table reorganized", "extension_blocks", extBlocks, "records", live, "blocks", o.BlockCount())
	return nil
}

// mergeAll splits the primary file into single-block partitions and merges
// equal-level neighbours, deepest first, until one level-0 partition is left.
func (o *Ordered) mergeAll(mf *pagefile.File, total uint64) (uint64, error) {
	parts := splitPartitions(partition{first: 0, count: total})
	if len(parts) == 1 {
		return o.mergeInto(mf, parts[0], partition{first: total})
	}

	var written uint64
	for len(parts) > 1 {
		deepest := 0
		for _, p := range parts {
			deepest = max(deepest, p.level)
		}
		i := slices.IndexFunc(parts[:len(parts)-1], func(p partition) bool { return p.level == deepest })
		dberr.Assert(i >= 0 && parts[i+1].level == deepest, "PARTITION_LEVEL", "Ordered",
			"no partition pairs with level %d among %d partitions", deepest, len(parts))

		merged, n, err := o.mergePair(mf, parts[i], parts[i+1])
		if err != nil {
			return 0, err
		}
		written = n
		parts = slices.Replace(parts, i, i+2, merged)
	}
	dberr.Assert(parts[0].level == 0, "PARTITION_LEVEL", "Ordered", "merge finished at level %d", parts[0].level)
	return written, nil
}

// mergePair merges two sibling partitions into their parent.
func (o *Ordered) mergePair(mf *pagefile.File, left, right partition) (partition, uint64, error) {
	dberr.Assert(left.level == right.level, "PARTITION_LEVEL", "Ordered",
		"merging partitions of levels %d and %d", left.level, right.level)
	dberr.Assert(left.first+left.count == right.first, "PARTITION_LEVEL", "Ordered",
		"partitions [%d,+%d) and [%d,+%d) are not adjacent", left.first, left.count, right.first, right.count)

	n, err := o.mergeInto(mf, left, right)
	if err != nil {
		return partition{}, 0, err
	}
	return partition{first: left.first, count: left.count + right.count, level: left.level - 1}, n, nil
}

// mergeInto streams the live records of two sorted runs into the merge
// file, copies the result over both partitions and pads the rest with
// empty blocks. It returns the number of records written.
func (o *Ordered) mergeInto(mf *pagefile.File, left, right partition) (uint64, error) {
	mf.SeekHead()
	a, b := newRun(o.file, left, o.runA), newRun(o.file, right, o.runB)
	o.out.Clear()

	spanA, okA, err := a.advance()
	if err != nil {
		return 0, err
	}
	spanB, okB, err := b.advance()
	if err != nil {
		return 0, err
	}

	var written uint64
	for okA || okB {
		span := spanA
		takeB := okB && (!okA || o.compare(spanA, spanB) > 0)
		if takeB {
			span = spanB
		}
		if !o.out.Append(span) {
			if _, err := mf.AddBlock(o.out); err != nil {
				return 0, err
			}
			o.out.Clear()
			o.out.Append(span)
		}
		written++

		if takeB {
			spanB, okB, err = b.advance()
		} else {
			spanA, okA, err = a.advance()
		}
		if err != nil {
			return 0, err
		}
	}
	if !o.out.IsEmpty() {
		if _, err := mf.AddBlock(o.out); err != nil {
			return 0, err
		}
	}

	blocks := left.count + right.count
	produced := mf.BlockCount()
	dberr.Assert(produced <= blocks, "PARTITION_LEVEL", "Ordered", "merge produced %d blocks for %d", produced, blocks)
	for j := uint64(0); j < produced; j++ {
		if err := mf.GetBlock(primitives.BlockID(j), o.out); err != nil {
			return 0, err
		}
		if err := o.file.WriteBlock(o.out, primitives.BlockID(left.first+j)); err != nil {
			return 0, err
		}
	}
	o.out.Clear()
	for j := produced; j < blocks; j++ {
		if err := o.file.WriteBlock(o.out, primitives.BlockID(left.first+j)); err != nil {
			return 0, err
		}
	}
	return written, nil
}

// finish truncates the primary file to the packed prefix holding live
// records and resets the delete counter.
func (o *Ordered) finish(live uint64) error {
	packed := (live + o.perBlock - 1) / o.perBlock
	if err := o.file.Truncate(packed); err != nil {
		return err
	}
	o.header.Records = live
	o.header.Deleted = 0
	o.invalidate()
	return nil
}

// ReorganizeInMemory loads every live record of both files, sorts them and
// rewrites the primary file. It produces the same order as the external
// merge.
func (o *Ordered) ReorganizeInMemory() error {
	if err := o.ext.flushWriteBlock(); err != nil {
		return err
	}
	var recs [][]byte
	collect := func(f *pagefile.File) error {
		for id := primitives.BlockID(0); uint64(id) < f.BlockCount(); id++ {
			if err := f.GetBlock(id, o.runA); err != nil {
				return err
			}
			for i := 0; i < o.runA.Count(); i++ {
				if span := o.runA.Record(i); !record.IsTombstone(span) {
					recs = append(recs, slices.Clone(span))
				}
			}
		}
		return nil
	}
	if err := collect(o.file); err != nil {
		return err
	}
	if err := collect(o.ext.file); err != nil {
		return err
	}
	slices.SortFunc(recs, o.compare)

	o.file.SeekHead()
	o.out.Clear()
	for _, r := range recs {
		if !o.out.Append(r) {
			if _, err := o.file.AddBlock(o.out); err != nil {
				return err
			}
			o.out.Clear()
			o.out.Append(r)
		}
	}
	if !o.out.IsEmpty() {
		if _, err := o.file.AddBlock(o.out); err != nil {
			return err
		}
	}
	o.ext.file.SeekHead()
	o.ext.invalidate()

	if err := o.finish(uint64(len(recs))); err != nil {
		return err
	}
	o.log.Info("ordered table reorganized in memory", "records", len(recs), "blocks", o.BlockCount())
	return nil
}
