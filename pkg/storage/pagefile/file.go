// Package pagefile maps logical block numbers onto a backing file.
//
// A file starts with a fixed-width preamble, followed by the typed header and
// then the blocks:
//
//	RECSTORE <header length %010d> <xxhash64 of header %016x>\n
//	<header text>
//	<block 0><block 1>...
//
// Block n lives at preamble + header length + n*blockSize. The block count
// in the header only counts flushed blocks and is persisted by Flush/Close.
package pagefile

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/logging"
	"recordstore/pkg/primitives"
	"recordstore/pkg/storage/block"
)

const (
	magic        = "RECSTORE"
	preambleSize = len(magic) + 1 + 10 + 1 + 16 + 1
	component    = "PagedFile"
)

// Options configures a paged file.
type Options struct {
	// BlockSize is the page size shared by every block of the file.
	BlockSize int

	// CacheBlocks bounds the block read cache. Zero disables the cache.
	CacheBlocks int64
}

// Counters reports physical block traffic.
type Counters struct {
	Reads     uint64
	Writes    uint64
	CacheHits uint64
}

// File is a block-addressed paged file with a typed header.
type File struct {
	path       primitives.Filepath
	f          *os.File
	blockSize  int
	header     Header
	headerLen  int
	firstBlock int64
	scratch    []byte
	cache      *ristretto.Cache[uint64, []byte]
	counters   Counters
	log        *slog.Logger
}

// Create creates (or truncates) a paged file and writes its header.
func Create(path primitives.Filepath, header Header, opts Options) (*File, error) {
	if opts.BlockSize <= 0 {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "BLOCK_SIZE", "block size must be positive, got %d", opts.BlockSize)
	}
	f, err := os.OpenFile(string(path), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, dberr.Wrap(err, "OPEN_FAILED", "Create", component)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	pf := newFile(path, f, header)
	if err := f.Truncate(0); err != nil {
		pf.release()
		return nil, dberr.Wrap(err, "TRUNCATE_FAILED", "Create", component)
	}
	header.SetBlockSize(opts.BlockSize)
	if err := pf.setup(opts); err != nil {
		pf.release()
		return nil, err
	}

	var w HeaderWriter
	header.MarshalHeader(&w)
	pf.headerLen = len(w.Bytes())
	pf.firstBlock = int64(preambleSize + pf.headerLen)
	if err := pf.Flush(); err != nil {
		pf.release()
		return nil, err
	}
	pf.log.Debug("paged file created", "header_bytes", pf.headerLen, "block_size", pf.blockSize)
	return pf, nil
}

// Open opens an existing paged file and decodes its header into header.
// A zero opts.BlockSize accepts the block size stored in the file.
func Open(path primitives.Filepath, header Header, opts Options) (*File, error) {
	if opts.BlockSize < 0 {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "BLOCK_SIZE", "block size must not be negative, got %d", opts.BlockSize)
	}
	f, err := os.OpenFile(string(path), os.O_RDWR, 0o600)
	if err != nil {
		return nil, dberr.Wrap(err, "OPEN_FAILED", "Open", component)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	pf := newFile(path, f, header)
	if err := pf.readHeader(); err != nil {
		pf.release()
		return nil, err
	}
	if opts.BlockSize != 0 && opts.BlockSize != header.BlockSize() {
		pf.release()
		return nil, dberr.Newf(dberr.ErrCategoryUser, "BLOCK_SIZE", "%s uses %d byte blocks, opened with %d", path, header.BlockSize(), opts.BlockSize)
	}
	opts.BlockSize = header.BlockSize()
	if err := pf.setup(opts); err != nil {
		pf.release()
		return nil, err
	}
	if err := pf.checkSize(); err != nil {
		pf.release()
		return nil, err
	}
	pf.log.Debug("paged file opened", "blocks", header.Blocks(), "block_size", pf.blockSize)
	return pf, nil
}

func newFile(path primitives.Filepath, f *os.File, header Header) *File {
	return &File{
		path:   path,
		f:      f,
		header: header,
		log:    logging.WithTableComponent(string(path), component),
	}
}

// setup allocates the read buffer and the optional block cache.
func (pf *File) setup(opts Options) error {
	pf.blockSize = opts.BlockSize
	pf.scratch = make([]byte, opts.BlockSize)
	if opts.CacheBlocks <= 0 {
		return nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: opts.CacheBlocks * 10,
		MaxCost:     opts.CacheBlocks * int64(opts.BlockSize),
		BufferItems: 64,
	})
	if err != nil {
		return dberr.Wrap(err, "CACHE_INIT", "Open", component)
	}
	pf.cache = cache
	return nil
}

func (pf *File) readHeader() error {
	pre := make([]byte, preambleSize)
	if _, err := pf.f.ReadAt(pre, 0); err != nil {
		return dberr.Newf(dberr.ErrCategoryData, "MALFORMED_HEADER", "cannot read preamble").WithDetail("%v", err)
	}

	fields := strings.Fields(string(pre))
	if len(fields) != 3 || fields[0] != magic || pre[preambleSize-1] != '\n' {
		return dberr.Newf(dberr.ErrCategoryData, "MALFORMED_HEADER", "%s is not a record file", pf.path)
	}
	length, lerr := strconv.Atoi(fields[1])
	sum, serr := strconv.ParseUint(fields[2], 16, 64)
	if lerr != nil || serr != nil || length <= 0 {
		return dberr.Newf(dberr.ErrCategoryData, "MALFORMED_HEADER", "bad preamble %q", strings.TrimSpace(string(pre)))
	}

	data := make([]byte, length)
	if _, err := pf.f.ReadAt(data, int64(preambleSize)); err != nil {
		return dberr.Newf(dberr.ErrCategoryData, "MALFORMED_HEADER", "header truncated").WithDetail("%v", err)
	}
	if got := xxhash.Sum64(data); got != sum {
		return dberr.Newf(dberr.ErrCategoryData, "HEADER_CHECKSUM", "header checksum mismatch").
			WithDetail("stored %016x, computed %016x", sum, got)
	}

	r := NewHeaderReader(data)
	if err := pf.header.UnmarshalHeader(r); err != nil {
		return err
	}
	if r.Err() != nil {
		return r.Err()
	}

	if pf.header.BlockSize() <= 0 {
		return dberr.Newf(dberr.ErrCategoryData, "MALFORMED_HEADER", "header declares block size %d", pf.header.BlockSize())
	}

	pf.headerLen = length
	pf.firstBlock = int64(preambleSize + length)
	return nil
}

// checkSize verifies the file holds every block the header lists.
func (pf *File) checkSize() error {
	info, err := pf.f.Stat()
	if err != nil {
		return dberr.Wrap(err, "STAT_FAILED", "Open", component)
	}
	need := pf.offset(pf.header.Blocks())
	if info.Size() < need {
		return dberr.Newf(dberr.ErrCategoryData, "FILE_TRUNCATED", "header lists %d blocks", pf.header.Blocks()).
			WithDetail("file has %d bytes, need %d", info.Size(), need)
	}
	return nil
}

func (pf *File) offset(id uint64) int64 {
	return pf.firstBlock + int64(id)*int64(pf.blockSize) // #nosec G115
}

// Path returns the file path.
func (pf *File) Path() primitives.Filepath {
	return pf.path
}

// BlockSize returns the page size.
func (pf *File) BlockSize() int {
	return pf.blockSize
}

// BlockCount returns the number of flushed blocks.
func (pf *File) BlockCount() uint64 {
	return pf.header.Blocks()
}

// Header returns the typed header.
func (pf *File) Header() Header {
	return pf.header
}

// Counters returns the block traffic recorded since open or ResetCounters.
func (pf *File) Counters() Counters {
	return pf.counters
}

// ResetCounters zeroes the traffic counters.
func (pf *File) ResetCounters() {
	pf.counters = Counters{}
}

// GetBlock loads block id into dst. A short read means the file is corrupt
// and is reported as a data error.
func (pf *File) GetBlock(id primitives.BlockID, dst *block.Block) error {
	n := uint64(id)
	if n >= pf.header.Blocks() {
		return dberr.Newf(dberr.ErrCategoryData, "BLOCK_RANGE", "block %d of %s does not exist", n, pf.path).
			WithDetail("file has %d blocks", pf.header.Blocks())
	}
	pf.counters.Reads++

	if pf.cache != nil {
		if data, ok := pf.cache.Get(n); ok {
			pf.counters.CacheHits++
			return dst.Load(data)
		}
	}

	read, err := pf.f.ReadAt(pf.scratch, pf.offset(n))
	if read != pf.blockSize {
		e := dberr.Newf(dberr.ErrCategoryData, "SHORT_READ", "short read of block %d", n).
			WithDetail("got %d of %d bytes", read, pf.blockSize).At("GetBlock", component)
		if err != nil && err != io.EOF {
			e.Cause = err
		}
		return e
	}

	if pf.cache != nil {
		cp := make([]byte, len(pf.scratch))
		copy(cp, pf.scratch)
		pf.cache.Set(n, cp, int64(len(cp)))
	}
	return dst.Load(pf.scratch)
}

// AddBlock writes b as a new last block and returns its id.
func (pf *File) AddBlock(b *block.Block) (primitives.BlockID, error) {
	id := pf.header.Blocks()
	if err := pf.writeAt(b, id); err != nil {
		return 0, err
	}
	pf.header.SetBlocks(id + 1)
	return primitives.BlockID(id), nil
}

// WriteBlock overwrites an existing block in place.
func (pf *File) WriteBlock(b *block.Block, id primitives.BlockID) error {
	n := uint64(id)
	if n >= pf.header.Blocks() {
		return dberr.Newf(dberr.ErrCategoryData, "BLOCK_RANGE", "write to block %d of %s which does not exist", n, pf.path)
	}
	return pf.writeAt(b, n)
}

func (pf *File) writeAt(b *block.Block, id uint64) error {
	if b.Size() != pf.blockSize {
		dberr.Fatal("BLOCK_SIZE", component, "block of %d bytes written to a file of %d byte blocks", b.Size(), pf.blockSize)
	}
	if _, err := pf.f.WriteAt(b.Bytes(), pf.offset(id)); err != nil {
		return dberr.Wrap(err, "WRITE_FAILED", "WriteBlock", component)
	}
	pf.counters.Writes++
	if pf.cache != nil {
		pf.cache.Del(id)
		pf.cache.Wait()
	}
	return nil
}

// SeekHead empties the file logically. The bytes on disk are reused by the
// next AddBlock calls.
func (pf *File) SeekHead() {
	pf.header.SetBlocks(0)
	if pf.cache != nil {
		pf.cache.Clear()
	}
}

// Truncate shrinks the file to n blocks.
func (pf *File) Truncate(n uint64) error {
	if n > pf.header.Blocks() {
		return dberr.Newf(dberr.ErrCategoryUser, "BLOCK_RANGE", "cannot truncate %d blocks to %d", pf.header.Blocks(), n)
	}
	if err := pf.f.Truncate(pf.offset(n)); err != nil {
		return dberr.Wrap(err, "TRUNCATE_FAILED", "Truncate", component)
	}
	pf.header.SetBlocks(n)
	if pf.cache != nil {
		pf.cache.Clear()
	}
	return nil
}

// Flush persists the header.
func (pf *File) Flush() error {
	var w HeaderWriter
	pf.header.MarshalHeader(&w)
	data := w.Bytes()
	dberr.Assert(len(data) == pf.headerLen, "HEADER_LENGTH", component,
		"header of %s changed length from %d to %d bytes", pf.path, pf.headerLen, len(data))

	buf := make([]byte, 0, preambleSize+len(data))
	buf = fmt.Appendf(buf, "%s %010d %016x\n", magic, len(data), xxhash.Sum64(data))
	buf = append(buf, data...)
	if _, err := pf.f.WriteAt(buf, 0); err != nil {
		return dberr.Wrap(err, "WRITE_FAILED", "Flush", component)
	}
	return nil
}

// Close flushes the header, releases the lock and closes the file.
func (pf *File) Close() error {
	if pf.f == nil {
		return nil
	}
	err := pf.Flush()
	if err == nil {
		err = pf.f.Sync()
	}
	if pf.cache != nil {
		pf.cache.Close()
		pf.cache = nil
	}
	_ = unlockFile(pf.f)
	if cerr := pf.f.Close(); err == nil && cerr != nil {
		err = dberr.Wrap(cerr, "CLOSE_FAILED", "Close", component)
	}
	pf.f = nil
	return err
}

// release closes the handle without touching the header.
func (pf *File) release() {
	if pf.cache != nil {
		pf.cache.Close()
		pf.cache = nil
	}
	_ = unlockFile(pf.f)
	_ = pf.f.Close()
	pf.f = nil
}

// Remove closes the file (if open) and deletes it from disk.
func (pf *File) Remove() error {
	if err := pf.Close(); err != nil {
		return err
	}
	return pf.path.Remove()
}
