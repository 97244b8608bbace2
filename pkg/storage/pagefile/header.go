package pagefile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
)

// Header is the typed metadata a paged file persists before block 0.
//
// The encoded length must not change after the file is created: every
// numeric field is written at a fixed width and only the schema varies,
// which is immutable for the life of a table.
type Header interface {
	MarshalHeader(w *HeaderWriter)
	UnmarshalHeader(r *HeaderReader) error
	Blocks() uint64
	SetBlocks(n uint64)
	BlockSize() int
	SetBlockSize(n int)
}

// Common holds the fields every organization persists: the schema, the
// page size, the flushed block count and the next id to assign.
type Common struct {
	Schema     *schema.Schema
	PageSize   uint64
	BlockCount uint64
	NextID     primitives.RecordID
}

func (c *Common) Blocks() uint64     { return c.BlockCount }
func (c *Common) SetBlocks(n uint64) { c.BlockCount = n }
func (c *Common) BlockSize() int     { return int(c.PageSize) } // #nosec G115
func (c *Common) SetBlockSize(n int) { c.PageSize = uint64(n) } // #nosec G115

// MarshalHeader writes the common fields.
func (c *Common) MarshalHeader(w *HeaderWriter) {
	w.Uint("block_size", c.PageSize)
	w.Uint("blocks", c.BlockCount)
	w.Uint("next_id", uint64(c.NextID))
	w.Text("schema", c.Schema.String())
}

// UnmarshalHeader reads the common fields.
func (c *Common) UnmarshalHeader(r *HeaderReader) error {
	c.PageSize = r.Uint("block_size")
	c.BlockCount = r.Uint("blocks")
	c.NextID = primitives.RecordID(r.Uint("next_id"))
	text := r.Text("schema")
	if r.Err() != nil {
		return r.Err()
	}
	s, err := schema.Unmarshal([]byte(text))
	if err != nil {
		return err
	}
	c.Schema = s
	return nil
}

// AllocateID returns the next record id and advances the counter.
func (c *Common) AllocateID() primitives.RecordID {
	id := c.NextID
	c.NextID++
	return id
}

// HeaderWriter encodes header fields as "key=value" lines.
type HeaderWriter struct {
	buf bytes.Buffer
}

// Uint writes an unsigned field at fixed width.
func (w *HeaderWriter) Uint(key string, v uint64) {
	fmt.Fprintf(&w.buf, "%s=%020d\n", key, v)
}

// Int writes a signed field at fixed width.
func (w *HeaderWriter) Int(key string, v int64) {
	fmt.Fprintf(&w.buf, "%s=%+020d\n", key, v)
}

// Location writes a record location as block and slot fields.
func (w *HeaderWriter) Location(key string, l record.Location) {
	w.Uint(key+".block", uint64(l.Block))
	w.Uint(key+".slot", uint64(l.Slot))
}

// Text writes a length-prefixed block of text.
func (w *HeaderWriter) Text(key, s string) {
	fmt.Fprintf(&w.buf, "%s=%010d\n%s\n", key, len(s), s)
}

// Bytes returns the encoded header.
func (w *HeaderWriter) Bytes() []byte {
	return w.buf.Bytes()
}

// HeaderReader decodes fields in the order they were written. The first
// failure sticks; callers check Err once after reading.
type HeaderReader struct {
	src *bytes.Reader
	r   *bufio.Reader
	err error
}

// NewHeaderReader reads fields from data.
func NewHeaderReader(data []byte) *HeaderReader {
	src := bytes.NewReader(data)
	return &HeaderReader{src: src, r: bufio.NewReader(src)}
}

// Err returns the first decoding error.
func (r *HeaderReader) Err() error {
	return r.err
}

func (r *HeaderReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = dberr.Newf(dberr.ErrCategoryData, "MALFORMED_HEADER", format, args...)
	}
}

func (r *HeaderReader) field(key string) string {
	if r.err != nil {
		return ""
	}
	line, err := r.r.ReadString('\n')
	if err != nil {
		r.fail("field %q: %v", key, err)
		return ""
	}
	k, v, ok := strings.Cut(strings.TrimSuffix(line, "\n"), "=")
	if !ok || k != key {
		r.fail("expected field %q, found %q", key, strings.TrimSpace(line))
		return ""
	}
	return v
}

// Uint reads an unsigned field.
func (r *HeaderReader) Uint(key string) uint64 {
	v := r.field(key)
	if r.err != nil {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		r.fail("field %q: %v", key, err)
	}
	return n
}

// Int reads a signed field.
func (r *HeaderReader) Int(key string) int64 {
	v := r.field(key)
	if r.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail("field %q: %v", key, err)
	}
	return n
}

// Location reads a record location.
func (r *HeaderReader) Location(key string) record.Location {
	block := r.Uint(key + ".block")
	slot := r.Uint(key + ".slot")
	return record.Location{Block: primitives.BlockID(block), Slot: primitives.SlotIndex(slot)} // #nosec G115
}

// Text reads a length-prefixed block of text.
func (r *HeaderReader) Text(key string) string {
	n := r.Uint(key)
	if r.err != nil {
		return ""
	}
	if left := uint64(r.r.Buffered()) + uint64(r.src.Len()); n >= left { // #nosec G115
		r.fail("field %q claims %d bytes, %d left", key, n, left)
		return ""
	}
	buf := make([]byte, n+1)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.fail("field %q: %v", key, err)
		return ""
	}
	if buf[n] != '\n' {
		r.fail("field %q is not newline terminated", key)
		return ""
	}
	return string(buf[:n])
}
