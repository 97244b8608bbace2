package pagefile

import (
	"os"
	"testing"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/block"
	"recordstore/pkg/types"
)

type testHeader struct {
	Common
	Bias int64
	Free record.Location
}

func (h *testHeader) MarshalHeader(w *HeaderWriter) {
	h.Common.MarshalHeader(w)
	w.Int("bias", h.Bias)
	w.Location("free", h.Free)
}

func (h *testHeader) UnmarshalHeader(r *HeaderReader) error {
	if err := h.Common.UnmarshalHeader(r); err != nil {
		return err
	}
	h.Bias = r.Int("bias")
	h.Free = r.Location("free")
	return r.Err()
}

func mustSchema() *schema.Schema {
	return schema.NewBuilder().AddColumn("Value", types.Int32Type).MustBuild()
}

func newTestFile(t *testing.T, cacheBlocks int64) (*File, primitives.Filepath) {
	t.Helper()
	path := primitives.Filepath(t.TempDir()).Join("t.tbl")
	h := &testHeader{Common: Common{Schema: mustSchema()}, Bias: -3, Free: record.NoLocation}
	f, err := Create(path, h, Options{BlockSize: 64, CacheBlocks: cacheBlocks})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return f, path
}

func blockWith(ids ...uint64) *block.Block {
	b := block.NewFixed(64, 0, 24)
	for _, id := range ids {
		rec := make([]byte, 24)
		record.SetID(rec, primitives.RecordID(id))
		b.Append(rec)
	}
	return b
}

func TestCreateAddReopen(t *testing.T) {
	for _, cache := range []int64{0, 8} {
		t.Run(map[bool]string{true: "cached", false: "uncached"}[cache > 0], func(t *testing.T) {
			f, path := newTestFile(t, cache)

			for i := uint64(0); i < 3; i++ {
				id, err := f.AddBlock(blockWith(i*10, i*10+1))
				if err != nil {
					t.Fatalf("AddBlock() error = %v", err)
				}
				if uint64(id) != i {
					t.Errorf("AddBlock() id = %d, want %d", id, i)
				}
			}
			h := f.Header().(*testHeader)
			h.NextID = 42
			h.Free = record.Location{Block: 1, Slot: 1}

			dst := block.NewFixed(64, 0, 24)
			if err := f.GetBlock(1, dst); err != nil {
				t.Fatalf("GetBlock() error = %v", err)
			}
			if err := f.WriteBlock(blockWith(99), 1); err != nil {
				t.Fatalf("WriteBlock() error = %v", err)
			}
			if err := f.GetBlock(1, dst); err != nil {
				t.Fatalf("GetBlock() error = %v", err)
			}
			if dst.Count() != 1 || record.ID(dst.Record(0)) != 99 {
				t.Errorf("GetBlock after WriteBlock returned stale data")
			}
			if err := f.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			reopened := &testHeader{}
			f2, err := Open(path, reopened, Options{BlockSize: 64})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer f2.Close()

			if f2.BlockCount() != 3 || reopened.NextID != 42 || reopened.Bias != -3 {
				t.Errorf("header = %+v", reopened)
			}
			if reopened.Free != (record.Location{Block: 1, Slot: 1}) {
				t.Errorf("Free = %v", reopened.Free)
			}
			if !reopened.Schema.Equal(mustSchema()) {
				t.Errorf("schema changed: %s", reopened.Schema)
			}
			if err := f2.GetBlock(2, dst); err != nil || record.ID(dst.Record(1)) != 21 {
				t.Errorf("block 2 = %v, %v", dst.Count(), err)
			}
		})
	}
}

func TestGetBlockErrors(t *testing.T) {
	f, _ := newTestFile(t, 0)
	defer f.Close()

	dst := block.NewFixed(64, 0, 24)
	err := f.GetBlock(0, dst)
	if !dberr.HasCategory(err, dberr.ErrCategoryData) {
		t.Errorf("GetBlock on empty file = %v, want data error", err)
	}

	if _, err := f.AddBlock(blockWith(1)); err != nil {
		t.Fatal(err)
	}
	// chop the last block in half behind the file's back
	if err := f.f.Truncate(f.offset(1) - 10); err != nil {
		t.Fatal(err)
	}
	if err := f.GetBlock(0, dst); !dberr.HasCategory(err, dberr.ErrCategoryData) {
		t.Errorf("short read = %v, want data error", err)
	}
}

func TestSeekHeadAndTruncate(t *testing.T) {
	f, path := newTestFile(t, 4)
	for i := 0; i < 4; i++ {
		if _, err := f.AddBlock(blockWith(uint64(i))); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.Truncate(2); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	info, _ := os.Stat(string(path))
	if info.Size() != f.offset(2) {
		t.Errorf("file size = %d, want %d", info.Size(), f.offset(2))
	}
	if err := f.Truncate(5); err == nil {
		t.Error("growing via Truncate should fail")
	}

	f.SeekHead()
	if f.BlockCount() != 0 {
		t.Fatalf("BlockCount() = %d after SeekHead", f.BlockCount())
	}
	id, err := f.AddBlock(blockWith(7))
	if err != nil || id != 0 {
		t.Fatalf("AddBlock after SeekHead = %d, %v", id, err)
	}
	dst := block.NewFixed(64, 0, 24)
	if err := f.GetBlock(0, dst); err != nil || record.ID(dst.Record(0)) != 7 {
		t.Errorf("block 0 not rewritten: %v", err)
	}
	if c := f.Counters(); c.Writes != 5 || c.Reads != 1 {
		t.Errorf("Counters() = %+v", c)
	}
	_ = f.Close()
}

func TestOpenRejectsCorruptHeader(t *testing.T) {
	f, path := newTestFile(t, 0)
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(string(path))
	if err != nil {
		t.Fatal(err)
	}
	data[preambleSize+3] ^= 0xff
	if err := os.WriteFile(string(path), data, 0o600); err != nil {
		t.Fatal(err)
	}

	_, err = Open(path, &testHeader{}, Options{BlockSize: 64})
	if !dberr.HasCategory(err, dberr.ErrCategoryData) {
		t.Errorf("Open() = %v, want checksum data error", err)
	}

	if err := os.WriteFile(string(path), []byte("not a table"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, &testHeader{}, Options{BlockSize: 64}); err == nil {
		t.Error("Open() of garbage should fail")
	}
}

func TestHeaderReaderOrder(t *testing.T) {
	var w HeaderWriter
	w.Uint("a", 1)
	w.Int("delta", -3)
	w.Text("t", "two\nlines")

	r := NewHeaderReader(w.Bytes())
	if r.Uint("a") != 1 || r.Int("delta") != -3 || r.Text("t") != "two\nlines" || r.Err() != nil {
		t.Fatalf("decode failed: %v", r.Err())
	}

	r = NewHeaderReader(w.Bytes())
	r.Uint("b")
	if r.Err() == nil {
		t.Error("reading the wrong key should fail")
	}
}

func TestHeaderReaderTextLength(t *testing.T) {
	tests := []struct {
		name    string
		length  uint64
		body    string
		wantErr bool
	}{
		{"exact", 5, "hello\n", false},
		{"empty", 0, "\n", false},
		{"longer than data", 6, "hello\n", true},
		{"huge", 1 << 62, "hello\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w HeaderWriter
			w.Uint("t", tt.length)
			data := append(w.Bytes(), tt.body...)

			r := NewHeaderReader(data)
			got := r.Text("t")
			if (r.Err() != nil) != tt.wantErr {
				t.Fatalf("Text() error = %v, wantErr %v", r.Err(), tt.wantErr)
			}
			if !tt.wantErr && got != tt.body[:tt.length] {
				t.Errorf("Text() = %q, want %q", got, tt.body[:tt.length])
			}
		})
	}
}

func TestOpenBlockSize(t *testing.T) {
	f, path := newTestFile(t, 0)
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		blockSize int
		wantErr   bool
	}{
		{"from file", 0, false},
		{"matching", 64, false},
		{"mismatch", 128, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Open(path, &testHeader{}, Options{BlockSize: tt.blockSize})
			if tt.wantErr {
				if !dberr.HasCategory(err, dberr.ErrCategoryUser) {
					t.Fatalf("Open() error = %v, want user error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer f.Close()
			if f.BlockSize() != 64 {
				t.Errorf("BlockSize() = %d, want 64", f.BlockSize())
			}
		})
	}
}
