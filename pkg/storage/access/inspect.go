package access

import (
	"strings"

	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/storage/block"
	"recordstore/pkg/storage/pagefile"
)

// SlotView is one decoded slot of a block.
type SlotView struct {
	Slot        int
	ID          primitives.RecordID
	Tombstone   bool
	NextDeleted record.Location
	Length      int
	Values      []string
}

// BlockView is one decoded block.
type BlockView struct {
	ID primitives.BlockID
	// Prev is the previous block of a hash chain, -1 for none. It is only
	// meaningful in hash files.
	Prev  int64
	Used  int
	Free  int
	Slots []SlotView
}

// FileView is one paged file of a table.
type FileView struct {
	Label  string
	base   *Base
	isHash bool
}

// Path returns the file path.
func (v *FileView) Path() primitives.Filepath {
	return v.base.file.Path()
}

// BlockCount returns the number of flushed blocks.
func (v *FileView) BlockCount() uint64 {
	return v.base.BlockCount()
}

// Header returns the header as it is stored in the file.
func (v *FileView) Header() string {
	var w pagefile.HeaderWriter
	v.base.file.Header().MarshalHeader(&w)
	return strings.TrimRight(string(w.Bytes()), "\n")
}

// Block reads and decodes block id.
func (v *FileView) Block(id primitives.BlockID) (BlockView, error) {
	b := v.base.newBlock()
	if err := v.base.file.GetBlock(id, b); err != nil {
		return BlockView{}, err
	}
	return v.decode(id, b), nil
}

func (v *FileView) decode(id primitives.BlockID, b *block.Block) BlockView {
	s := v.base.schema
	view := BlockView{
		ID:    id,
		Prev:  noBucketBlock,
		Used:  b.UsedBytes(),
		Free:  b.FreeSpace(),
		Slots: make([]SlotView, b.Count()),
	}
	if v.isHash {
		view.Prev = prevBlock(b)
	}
	for i := range view.Slots {
		data := b.Record(i)
		slot := SlotView{Slot: i, Length: len(data)}
		if record.IsTombstone(data) {
			slot.Tombstone = true
			slot.NextDeleted = record.NextDeleted(data)
		} else {
			slot.ID = record.ID(data)
			slot.Values = s.Format(data)[1:]
		}
		view.Slots[i] = slot
	}
	return view
}

// Inspector opens a table read-only for the block inspector. It never
// reorganizes or compacts, so the files are shown as they are on disk.
type Inspector struct {
	manager RecordManager
	files   []*FileView
}

// OpenInspector opens the table at path with the block size, bucket count
// and sort column stored in its files.
func OpenInspector(kind Kind, path primitives.Filepath) (*Inspector, error) {
	opts := DefaultOptions()
	opts.BlockSize = 0
	opts.Buckets = 0
	opts.AutoReorganize = false
	opts.ReorganizeOnClose = false

	m, err := Open(kind, path, opts)
	if err != nil {
		return nil, err
	}
	in := &Inspector{manager: m}
	switch t := m.(type) {
	case *Heap:
		in.files = []*FileView{{Label: "primary", base: t.Base}}
	case *Hash:
		in.files = []*FileView{{Label: "buckets", base: t.Base, isHash: true}}
	case *Ordered:
		in.files = []*FileView{
			{Label: "primary", base: t.Base},
			{Label: "extension", base: t.ext},
		}
	}
	return in, nil
}

// Kind returns the table organization.
func (in *Inspector) Kind() Kind {
	return in.manager.Kind()
}

// Columns returns the user column names.
func (in *Inspector) Columns() []string {
	return in.manager.Schema().Names()[1:]
}

// Files returns the paged files of the table, primary first.
func (in *Inspector) Files() []*FileView {
	return in.files
}

// Size returns the table size in bytes.
func (in *Inspector) Size() uint64 {
	return in.manager.Size()
}

// Close releases the table files.
func (in *Inspector) Close() error {
	return in.manager.Close()
}
