package access

import (
	"log/slog"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/logging"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/block"
	"recordstore/pkg/storage/pagefile"
)

type scanPhase int

const (
	phaseStart scanPhase = iota
	phaseWrite
	phaseFile
	phaseDone
)

// Base owns one paged file, its reusable blocks and the scan cursor. It
// implements the scan/seek protocol and the block bookkeeping shared by all
// organizations.
//
// Three blocks are kept per file: readBlock follows the scan cursor,
// writeBlock accumulates inserts that have not been flushed, and scratch
// serves random-access updates so that an update never disturbs a block a
// cursor is walking. None of the methods are reentrant.
type Base struct {
	file   *pagefile.File
	common *pagefile.Common
	schema *schema.Schema
	opts   Options
	log    *slog.Logger

	blockHeaderSize int
	readBlock       *block.Block
	writeBlock      *block.Block
	scratch         *block.Block
	readID          primitives.BlockID

	phase    scanPhase
	nextRead primitives.BlockID
	touched  int
}

func newBase(file *pagefile.File, common *pagefile.Common, opts Options, blockHeaderSize int, component string) *Base {
	b := &Base{
		file:            file,
		common:          common,
		schema:          common.Schema,
		opts:            opts,
		log:             logging.WithTableComponent(string(file.Path()), component),
		blockHeaderSize: blockHeaderSize,
		readID:          primitives.InvalidBlockID,
	}
	b.readBlock = b.newBlock()
	b.writeBlock = b.newBlock()
	b.scratch = b.newBlock()
	return b
}

// newBlock allocates a block with this file's geometry.
func (b *Base) newBlock() *block.Block {
	if b.schema.IsVariable() {
		return block.NewVariable(b.file.BlockSize(), b.blockHeaderSize)
	}
	return block.NewFixed(b.file.BlockSize(), b.blockHeaderSize, int(b.schema.Size()))
}

// Schema returns the table schema.
func (b *Base) Schema() *schema.Schema {
	return b.schema
}

// File returns the underlying paged file.
func (b *Base) File() *pagefile.File {
	return b.file
}

// BlockCount returns the number of flushed blocks.
func (b *Base) BlockCount() uint64 {
	return b.file.BlockCount()
}

// writeBlockID is the location id used for records still in writeBlock.
func (b *Base) writeBlockID() primitives.BlockID {
	return primitives.BlockID(b.file.BlockCount())
}

// Size returns blockSize × flushed blocks plus the write-behind bytes.
func (b *Base) Size() uint64 {
	return uint64(b.file.BlockSize())*b.file.BlockCount() + uint64(b.writeBlock.UsedBytes()) // #nosec G115
}

// Stats returns the block traffic of the file.
func (b *Base) Stats() Stats {
	c := b.file.Counters()
	return Stats{BlockReads: c.Reads, BlockWrites: c.Writes, CacheHits: c.CacheHits}
}

// ResetStats zeroes the traffic counters.
func (b *Base) ResetStats() {
	b.file.ResetCounters()
}

// BlocksTouched returns how many blocks the last MoveNext, MovePrev or hash
// bucket walk loaded.
func (b *Base) BlocksTouched() int {
	return b.touched
}

// validate checks a caller-supplied record against the schema.
func (b *Base) validate(rec *record.Record) error {
	n := uint32(rec.Len()) // #nosec G115
	if b.schema.IsVariable() {
		if n < b.schema.Size() || n > b.schema.MaxSize() {
			return dberr.Newf(dberr.ErrCategoryUser, "RECORD_SIZE", "record of %d bytes outside [%d,%d]",
				n, b.schema.Size(), b.schema.MaxSize())
		}
		return nil
	}
	if n != b.schema.Size() {
		return dberr.Newf(dberr.ErrCategoryUser, "RECORD_SIZE", "record of %d bytes, schema needs %d", n, b.schema.Size())
	}
	return nil
}

// load reads block id into the read block.
func (b *Base) load(id primitives.BlockID) error {
	b.readID = primitives.InvalidBlockID
	if err := b.file.GetBlock(id, b.readBlock); err != nil {
		return err
	}
	b.readID = id
	b.touched++
	return nil
}

// loadForUpdate returns the block holding id: the write block, the read
// block when it already holds id, or scratch loaded from disk.
func (b *Base) loadForUpdate(id primitives.BlockID) (*block.Block, error) {
	if id == b.writeBlockID() {
		return b.writeBlock, nil
	}
	if id == b.readID {
		return b.readBlock, nil
	}
	if err := b.file.GetBlock(id, b.scratch); err != nil {
		return nil, err
	}
	return b.scratch, nil
}

// store writes back a block obtained from loadForUpdate.
func (b *Base) store(id primitives.BlockID, blk *block.Block) error {
	if blk == b.writeBlock {
		return nil
	}
	return b.file.WriteBlock(blk, id)
}

// invalidate forgets the read block contents after bulk rewrites.
func (b *Base) invalidate() {
	b.readID = primitives.InvalidBlockID
	b.phase = phaseStart
}

// appendRecord adds data to the write block, flushing it first when full.
func (b *Base) appendRecord(data []byte) (record.Location, error) {
	if !b.writeBlock.HasRoom(len(data)) {
		if err := b.flushWriteBlock(); err != nil {
			return record.NoLocation, err
		}
	}
	if !b.writeBlock.Append(data) {
		dberr.Fatal("RECORD_TOO_LARGE", "Base", "record of %d bytes does not fit an empty block", len(data))
	}
	return record.Location{
		Block: b.writeBlockID(),
		Slot:  primitives.SlotIndex(b.writeBlock.Count() - 1), // #nosec G115
	}, nil
}

// flushWriteBlock appends the write block to the file and clears it.
func (b *Base) flushWriteBlock() error {
	if b.writeBlock.IsEmpty() {
		return nil
	}
	id, err := b.file.AddBlock(b.writeBlock)
	if err != nil {
		return err
	}
	b.log.Debug("write block flushed", "block", uint64(id), "records", b.writeBlock.Count())
	b.writeBlock.Clear()
	return nil
}

// MoveToStart rewinds the scan cursor.
func (b *Base) MoveToStart() {
	b.phase = phaseStart
	b.nextRead = 0
	b.touched = 0
}

// MoveNext returns the next live record. Records still in the write-behind
// block come first, then flushed blocks in order. Tombstones are skipped.
func (b *Base) MoveNext(rec *record.Record) (record.Location, bool, error) {
	b.touched = 0
	for {
		switch b.phase {
		case phaseStart:
			b.writeBlock.MoveToStart()
			b.phase = phaseWrite

		case phaseWrite:
			for b.writeBlock.GetRecord(rec) {
				if !rec.IsTombstone() {
					return b.location(b.writeBlockID(), b.writeBlock), true, nil
				}
			}
			b.phase = phaseFile
			b.nextRead = 0
			b.readID = primitives.InvalidBlockID

		case phaseFile:
			if b.readID != primitives.InvalidBlockID && b.readID+1 == b.nextRead {
				for b.readBlock.GetRecord(rec) {
					if !rec.IsTombstone() {
						return b.location(b.readID, b.readBlock), true, nil
					}
				}
			}
			if uint64(b.nextRead) >= b.file.BlockCount() {
				b.phase = phaseDone
				continue
			}
			if err := b.load(b.nextRead); err != nil {
				return record.NoLocation, false, err
			}
			b.nextRead++

		default:
			return record.NoLocation, false, nil
		}
	}
}

// MovePrev returns the previous live record of the flushed blocks. It is
// only meaningful after seek or MoveNext positioned the cursor in the file;
// the write-behind block is never visited backward.
func (b *Base) MovePrev(rec *record.Record) (record.Location, bool, error) {
	b.touched = 0
	for b.phase == phaseFile && b.readID != primitives.InvalidBlockID {
		for b.readBlock.GetRecordBack(rec) {
			if !rec.IsTombstone() {
				return b.location(b.readID, b.readBlock), true, nil
			}
		}
		if b.readID == 0 {
			break
		}
		prev := b.readID - 1
		if err := b.load(prev); err != nil {
			return record.NoLocation, false, err
		}
		b.readBlock.MoveToEnd()
		b.nextRead = prev + 1
	}
	return record.NoLocation, false, nil
}

// seek positions the cursor before slot of flushed block id, so that
// MoveNext returns that slot and MovePrev the one before it.
func (b *Base) seek(id primitives.BlockID, slot int) error {
	if err := b.load(id); err != nil {
		return err
	}
	b.readBlock.Seek(slot)
	b.phase = phaseFile
	b.nextRead = id + 1
	return nil
}

func (b *Base) location(id primitives.BlockID, blk *block.Block) record.Location {
	return record.Location{Block: id, Slot: primitives.SlotIndex(blk.Current())} // #nosec G115
}

// close flushes the write block and closes the file.
func (b *Base) close() error {
	if err := b.flushWriteBlock(); err != nil {
		return err
	}
	return b.file.Close()
}
