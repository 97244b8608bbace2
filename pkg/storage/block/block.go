// Package block implements the slotted page shared by every record manager.
//
// Two layouts exist. Fixed-size records:
//
//	[count u32][header region][slot 0][slot 1]...
//
// Variable-length records:
//
//	[count u32][dataStart u32][header region][dir 0][dir 1]... free ...[data n-1]...[data 0]
//
// where each directory entry is {start u32, length u32} and record bytes are
// packed backward from the end of the page. Free space is the gap between the
// end of the directory and dataStart.
//
// A Block is a reusable buffer: managers allocate a few per table and Load
// different pages into them. Blocks are not safe for concurrent use.
package block

import (
	"encoding/binary"
	"slices"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/record"
)

const (
	countOffset     = 0
	dataStartOffset = 4

	fixedMetaSize    = 4
	variableMetaSize = 8

	// DirEntrySize is the size of one variable-layout directory entry.
	DirEntrySize = 8
)

// Block is one in-memory page plus a double-ended cursor over its slots.
type Block struct {
	buf        []byte
	headerSize int
	recordSize int
	variable   bool

	// pos splits slots into consumed [0,pos) and remaining [pos,count).
	pos int
	// last is the slot most recently returned by GetRecord/GetRecordBack.
	last int
}

// NewFixed creates a block for records of exactly recordSize bytes.
func NewFixed(blockSize, headerSize, recordSize int) *Block {
	b := &Block{
		buf:        make([]byte, blockSize),
		headerSize: headerSize,
		recordSize: recordSize,
	}
	if b.RecordsPerBlock() < 1 {
		dberr.Fatal("BLOCK_TOO_SMALL", "Block", "block of %d bytes cannot hold a %d byte record", blockSize, recordSize)
	}
	b.Clear()
	return b
}

// NewVariable creates a block for variable-length records.
func NewVariable(blockSize, headerSize int) *Block {
	b := &Block{
		buf:        make([]byte, blockSize),
		headerSize: headerSize,
		variable:   true,
	}
	if blockSize <= variableMetaSize+headerSize+DirEntrySize {
		dberr.Fatal("BLOCK_TOO_SMALL", "Block", "block of %d bytes has no room for records", blockSize)
	}
	b.Clear()
	return b
}

// Size returns the page size in bytes.
func (b *Block) Size() int {
	return len(b.buf)
}

// IsVariable reports whether the block uses the variable layout.
func (b *Block) IsVariable() bool {
	return b.variable
}

// RecordSize returns the fixed record size, or 0 for variable blocks.
func (b *Block) RecordSize() int {
	return b.recordSize
}

func (b *Block) metaSize() int {
	if b.variable {
		return variableMetaSize
	}
	return fixedMetaSize
}

// firstSlot is the offset of slot 0 (fixed) or directory entry 0 (variable).
func (b *Block) firstSlot() int {
	return b.metaSize() + b.headerSize
}

// Count returns the number of slots in the block.
func (b *Block) Count() int {
	return int(binary.LittleEndian.Uint32(b.buf[countOffset:]))
}

func (b *Block) setCount(n int) {
	binary.LittleEndian.PutUint32(b.buf[countOffset:], uint32(n)) // #nosec G115
}

func (b *Block) dataStart() int {
	return int(binary.LittleEndian.Uint32(b.buf[dataStartOffset:]))
}

func (b *Block) setDataStart(n int) {
	binary.LittleEndian.PutUint32(b.buf[dataStartOffset:], uint32(n)) // #nosec G115
}

func (b *Block) dirEnd() int {
	return b.firstSlot() + b.Count()*DirEntrySize
}

func (b *Block) entry(i int) (start, length int) {
	off := b.firstSlot() + i*DirEntrySize
	return int(binary.LittleEndian.Uint32(b.buf[off:])), int(binary.LittleEndian.Uint32(b.buf[off+4:]))
}

func (b *Block) setEntry(i, start, length int) {
	off := b.firstSlot() + i*DirEntrySize
	binary.LittleEndian.PutUint32(b.buf[off:], uint32(start))    // #nosec G115
	binary.LittleEndian.PutUint32(b.buf[off+4:], uint32(length)) // #nosec G115
}

// Header returns the manager-specific header region. The slice aliases the
// page buffer.
func (b *Block) Header() []byte {
	return b.buf[b.metaSize() : b.metaSize()+b.headerSize]
}

// RecordsPerBlock returns the slot capacity of a fixed block.
func (b *Block) RecordsPerBlock() int {
	if b.variable {
		return 0
	}
	return (len(b.buf) - fixedMetaSize - b.headerSize) / b.recordSize
}

// FreeSpace returns the bytes still available for new records. For variable
// blocks the directory entry of a new record must also fit.
func (b *Block) FreeSpace() int {
	if b.variable {
		return b.dataStart() - b.dirEnd()
	}
	return (b.RecordsPerBlock() - b.Count()) * b.recordSize
}

// HasRoom reports whether a record of n bytes can be appended.
func (b *Block) HasRoom(n int) bool {
	if b.variable {
		return n+DirEntrySize <= b.FreeSpace()
	}
	return b.Count() < b.RecordsPerBlock()
}

// IsEmpty reports whether the block holds no slots.
func (b *Block) IsEmpty() bool {
	return b.Count() == 0
}

// UsedBytes returns the record bytes held by the block.
func (b *Block) UsedBytes() int {
	if b.variable {
		return len(b.buf) - b.dataStart()
	}
	return b.Count() * b.recordSize
}

// Clear resets the block to empty. The header region is zeroed too.
func (b *Block) Clear() {
	clear(b.buf)
	if b.variable {
		b.setDataStart(len(b.buf))
	}
	b.pos = 0
	b.last = -1
}

// Load copies a page image into the block and rewinds the cursor.
func (b *Block) Load(data []byte) error {
	if len(data) != len(b.buf) {
		return dberr.Newf(dberr.ErrCategoryData, "BLOCK_SIZE", "page image has %d bytes, block size is %d", len(data), len(b.buf))
	}
	copy(b.buf, data)
	b.pos = 0
	b.last = -1
	return b.validate()
}

func (b *Block) validate() error {
	n := b.Count()
	if !b.variable {
		if n > b.RecordsPerBlock() {
			return dberr.Newf(dberr.ErrCategoryData, "BLOCK_CORRUPT", "fixed block claims %d records, capacity %d", n, b.RecordsPerBlock())
		}
		return nil
	}
	ds := b.dataStart()
	if b.dirEnd() > len(b.buf) || ds < b.dirEnd() || ds > len(b.buf) {
		return dberr.Newf(dberr.ErrCategoryData, "BLOCK_CORRUPT", "variable block directory end %d, data start %d", b.dirEnd(), ds)
	}
	return nil
}

// Bytes returns the page image for flushing. The slice aliases the block.
func (b *Block) Bytes() []byte {
	return b.buf
}

// Append adds a record at the end of the slot sequence. It returns false
// when the block is full; callers check HasRoom first.
func (b *Block) Append(data []byte) bool {
	if !b.HasRoom(len(data)) {
		return false
	}
	n := b.Count()
	if !b.variable {
		if len(data) != b.recordSize {
			dberr.Fatal("RECORD_SIZE", "Block", "appending %d bytes to a block of %d byte records", len(data), b.recordSize)
		}
		copy(b.buf[b.firstSlot()+n*b.recordSize:], data)
		b.setCount(n + 1)
		return true
	}
	start := b.dataStart() - len(data)
	copy(b.buf[start:], data)
	b.setDataStart(start)
	b.setEntry(n, start, len(data))
	b.setCount(n + 1)
	return true
}

// Record returns the span of slot i without copying (GetRecordSpan).
// Mutating the span mutates the block.
func (b *Block) Record(i int) []byte {
	if i < 0 || i >= b.Count() {
		dberr.Fatal("SLOT_RANGE", "Block", "slot %d out of range [0,%d)", i, b.Count())
	}
	if !b.variable {
		off := b.firstSlot() + i*b.recordSize
		return b.buf[off : off+b.recordSize]
	}
	start, length := b.entry(i)
	if start < b.dataStart() || start+length > len(b.buf) {
		dberr.Fatal("SLOT_CORRUPT", "Block", "slot %d spans [%d,%d) outside the data region", i, start, start+length)
	}
	return b.buf[start : start+length]
}

// ReadRecord copies slot i into dst.
func (b *Block) ReadRecord(i int, dst *record.Record) {
	dst.SetBytes(b.Record(i))
}

// MoveToStart rewinds the cursor before slot 0.
func (b *Block) MoveToStart() {
	b.pos = 0
	b.last = -1
}

// MoveToEnd places the cursor after the last slot.
func (b *Block) MoveToEnd() {
	b.pos = b.Count()
	b.last = -1
}

// Seek places the cursor before slot i.
func (b *Block) Seek(i int) {
	b.pos = min(max(i, 0), b.Count())
	b.last = -1
}

// Current returns the slot most recently returned by the cursor, or -1.
func (b *Block) Current() int {
	return b.last
}

// CurrentRecord returns the span of the slot most recently returned by the
// cursor (GetCurrentSpan). It is fatal when the cursor has not returned one.
func (b *Block) CurrentRecord() []byte {
	return b.Record(b.last)
}

// GetRecord copies the next slot into dst and advances the cursor.
func (b *Block) GetRecord(dst *record.Record) bool {
	if b.pos >= b.Count() {
		return false
	}
	b.last = b.pos
	b.pos++
	b.ReadRecord(b.last, dst)
	return true
}

// GetRecordBack retreats the cursor and copies that slot into dst.
func (b *Block) GetRecordBack(dst *record.Record) bool {
	if b.pos <= 0 {
		return false
	}
	b.pos--
	b.last = b.pos
	b.ReadRecord(b.last, dst)
	return true
}

// ReplaceAt overwrites slot i with data. Fixed blocks require the exact
// record size; variable blocks accept data no longer than the current slot,
// shrinking it. The freed tail stays unused until Compact.
func (b *Block) ReplaceAt(i int, data []byte) bool {
	span := b.Record(i)
	if !b.variable {
		if len(data) != len(span) {
			return false
		}
		copy(span, data)
		return true
	}
	if len(data) > len(span) {
		return false
	}
	start, _ := b.entry(i)
	copy(span, data)
	b.setEntry(i, start, len(data))
	return true
}

// RemoveRecordAt deletes slot n.
//
// Fixed blocks move the last slot into n (order is not preserved).
// Variable blocks shift the record bytes stored below slot n up by its
// length, patch the affected directory offsets and erase the directory row.
//
// A forward cursor stays valid when n is the slot it just returned.
func (b *Block) RemoveRecordAt(n int) {
	count := b.Count()
	if n < 0 || n >= count {
		dberr.Fatal("SLOT_RANGE", "Block", "remove slot %d out of range [0,%d)", n, count)
	}

	if b.variable {
		b.removeVariable(n, count)
		if n < b.pos {
			b.pos--
		}
	} else {
		lastSlot := count - 1
		if n != lastSlot {
			copy(b.Record(n), b.Record(lastSlot))
		}
		clear(b.Record(lastSlot))
		b.setCount(lastSlot)
		// the moved record has not been visited yet
		if n == b.pos-1 && lastSlot >= b.pos {
			b.pos = n
		}
	}

	b.pos = min(b.pos, b.Count())
	b.last = -1
}

func (b *Block) removeVariable(n, count int) {
	start, length := b.entry(n)
	ds := b.dataStart()

	b.shiftBytes(ds, start, length)
	for i := 0; i < count; i++ {
		if s, l := b.entry(i); i != n && s < start {
			b.setEntry(i, s+length, l)
		}
	}
	b.setDataStart(ds + length)
	b.removeRecordMap(n, count)
}

// shiftBytes moves data[from:to) up by delta bytes and zeroes the vacated head.
func (b *Block) shiftBytes(from, to, delta int) {
	if delta == 0 {
		return
	}
	copy(b.buf[from+delta:to+delta], b.buf[from:to])
	clear(b.buf[from : from+delta])
}

// removeRecordMap erases directory row n.
func (b *Block) removeRecordMap(n, count int) {
	first := b.firstSlot()
	copy(b.buf[first+n*DirEntrySize:], b.buf[first+(n+1)*DirEntrySize:first+count*DirEntrySize])
	clear(b.buf[first+(count-1)*DirEntrySize : first+count*DirEntrySize])
	b.setCount(count - 1)
}

// Compact packs variable record bytes against the end of the page,
// reclaiming space left behind by ReplaceAt. Slot order is unchanged.
// Fixed blocks are always compact.
func (b *Block) Compact() {
	if !b.variable {
		return
	}
	count := b.Count()
	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(x, y int) int {
		sx, _ := b.entry(x)
		sy, _ := b.entry(y)
		return sy - sx
	})

	end := len(b.buf)
	for _, i := range order {
		start, length := b.entry(i)
		newStart := end - length
		if newStart != start {
			copy(b.buf[newStart:end], b.buf[start:start+length])
			b.setEntry(i, newStart, length)
		}
		end = newStart
	}
	clear(b.buf[b.dirEnd():end])
	b.setDataStart(end)
}

// RemoveTombstones physically deletes every tombstoned slot and returns how
// many were removed.
func (b *Block) RemoveTombstones() int {
	removed := 0
	for i := b.Count() - 1; i >= 0; i-- {
		if record.IsTombstone(b.Record(i)) {
			b.RemoveRecordAt(i)
			removed++
		}
	}
	b.pos = 0
	b.last = -1
	return removed
}

// Sort reorders the slots by cmp. The header region is preserved.
func (b *Block) Sort(cmp func(a, c []byte) int) {
	count := b.Count()
	recs := make([][]byte, count)
	for i := range recs {
		recs[i] = slices.Clone(b.Record(i))
	}
	slices.SortStableFunc(recs, cmp)

	header := slices.Clone(b.Header())
	b.Clear()
	copy(b.Header(), header)
	for _, r := range recs {
		b.Append(r)
	}
}
