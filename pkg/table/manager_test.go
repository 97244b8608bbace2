package table

import (
	"slices"
	"strconv"
	"testing"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/storage/access"
)

func TestManagerCreateGetDrop(t *testing.T) {
	m := newTestManager(t)

	for _, kind := range access.Kinds() {
		if _, err := m.Create(kind.String()+"_t", kind, schemaFor(kind)); err != nil {
			t.Fatalf("Create(%s) error = %v", kind, err)
		}
	}
	want := []string{"hash_t", "heap_t", "heapvar_t", "ordered_t"}
	if got := m.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	if _, err := m.Create("heap_t", access.KindHeap, fixedPeopleSchema()); !dberr.HasCategory(err, dberr.ErrCategoryUser) {
		t.Errorf("Create(duplicate) error = %v, want user error", err)
	}

	tbl, err := m.Get("ordered_t")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	path := tbl.Path
	if err := m.Drop("ordered_t"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if path.Exists() || path.WithSuffix(primitives.ExtensionSuffix).Exists() {
		t.Error("Drop() left table files behind")
	}
	if _, err := m.Get("ordered_t"); !dberr.HasCategory(err, dberr.ErrCategoryNotFound) {
		t.Errorf("Get(dropped) error = %v, want not found", err)
	}
	if err := m.Drop("ordered_t"); err == nil {
		t.Error("Drop(dropped) error = nil, want error")
	}
}

func TestManagerInvalidName(t *testing.T) {
	m := newTestManager(t)
	for _, name := range []string{"", "a/b", "a.b"} {
		if _, err := m.Create(name, access.KindHeap, fixedPeopleSchema()); err == nil {
			t.Errorf("Create(%q) error = nil, want error", name)
		}
	}
}

func TestManagerReopen(t *testing.T) {
	dir := primitives.Filepath(t.TempDir())

	m, err := NewManager(dir, testOptions())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	for _, kind := range access.Kinds() {
		tbl, err := m.Create(kind.String()+"_t", kind, schemaFor(kind))
		if err != nil {
			t.Fatalf("Create(%s) error = %v", kind, err)
		}
		for i := range 20 {
			if _, err := tbl.Insert("n"+strconv.Itoa(i), strconv.Itoa(i%7)); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
		}
	}
	if err := m.ReorganizeAll(); err != nil {
		t.Fatalf("ReorganizeAll() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(m.Names()) != 0 {
		t.Errorf("Names() after Close = %v, want none", m.Names())
	}

	m, err = NewManager(dir, testOptions())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer func() { _ = m.Close() }()

	opened, err := m.OpenAll()
	if err != nil {
		t.Fatalf("OpenAll() error = %v", err)
	}
	if len(opened) != 4 {
		t.Fatalf("OpenAll() opened %d tables, want 4", len(opened))
	}
	for _, tbl := range opened {
		recs, err := tbl.Where("Age", "3")
		if err != nil {
			t.Fatalf("%s: Where() error = %v", tbl.Name, err)
		}
		if len(recs) != 3 {
			t.Errorf("%s: Where(Age=3) returned %d records, want 3", tbl.Name, len(recs))
		}
		if tbl.Name != tbl.Kind().String()+"_t" {
			t.Errorf("table %s opened as %s", tbl.Name, tbl.Kind())
		}
	}

	if _, err := m.Open("heap_t", access.KindHash); !dberr.HasCategory(err, dberr.ErrCategoryUser) {
		t.Errorf("Open(wrong kind) error = %v, want user error", err)
	}
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		file string
		name string
		kind access.Kind
		ok   bool
	}{
		{"users.heap", "users", access.KindHeap, true},
		{"users.heapvar", "users", access.KindHeapVar, true},
		{"users.ordered", "users", access.KindOrdered, true},
		{"users.ordered.extension", "", 0, false},
		{"users.ordered.merge", "", 0, false},
		{"users.sequential", "", 0, false},
		{"users", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			name, kind, ok := parseFileName(tt.file)
			if ok != tt.ok || name != tt.name || kind != tt.kind {
				t.Errorf("parseFileName(%q) = %q, %v, %v; want %q, %v, %v", tt.file, name, kind, ok, tt.name, tt.kind, tt.ok)
			}
		})
	}
}
