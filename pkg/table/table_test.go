package table

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/access"
	"recordstore/pkg/types"
)

func peopleSchema() *schema.Schema {
	return schema.NewBuilder().
		AddVarchar("Name", 24).
		AddColumn("Age", types.Int32Type).
		MustBuild()
}

func fixedPeopleSchema() *schema.Schema {
	return schema.NewBuilder().
		AddChar("Name", 16).
		AddColumn("Age", types.Int32Type).
		MustBuild()
}

func testOptions() access.Options {
	opts := access.DefaultOptions()
	opts.BlockSize = 128
	opts.Buckets = 8
	return opts
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(primitives.Filepath(t.TempDir()), testOptions())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func schemaFor(kind access.Kind) *schema.Schema {
	if kind == access.KindHeapVar {
		return peopleSchema()
	}
	return fixedPeopleSchema()
}

const peopleCSV = `Name,Age
alice,31
bob,27
carol,31
dave,45
erin,27
`

func TestLoadCSVAndQuery(t *testing.T) {
	for _, kind := range access.Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			m := newTestManager(t)
			tbl, err := m.Create("people", kind, schemaFor(kind))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			n, err := tbl.LoadCSV(strings.NewReader(peopleCSV), true)
			if err != nil {
				t.Fatalf("LoadCSV() error = %v", err)
			}
			if n != 5 {
				t.Fatalf("LoadCSV() = %d, want 5", n)
			}

			recs, err := tbl.Where("Age", "31")
			if err != nil {
				t.Fatalf("Where() error = %v", err)
			}
			if len(recs) != 2 {
				t.Errorf("Where(Age=31) returned %d records, want 2", len(recs))
			}

			recs, err = tbl.Between("Age", "27", "31")
			if err != nil {
				t.Fatalf("Between() error = %v", err)
			}
			if len(recs) != 4 {
				t.Errorf("Between(27, 31) returned %d records, want 4", len(recs))
			}

			rec, err := tbl.Get(3)
			if err != nil {
				t.Fatalf("Get(3) error = %v", err)
			}
			if rec == nil {
				t.Fatal("Get(3) = nil")
			}
			got := tbl.Format([]*record.Record{rec})[0]
			want := []string{"3", "dave", "45"}
			if strings.Join(got, ",") != strings.Join(want, ",") {
				t.Errorf("Get(3) = %v, want %v", got, want)
			}

			deleted, err := tbl.DeleteWhere("Age", "27")
			if err != nil {
				t.Fatalf("DeleteWhere() error = %v", err)
			}
			if deleted != 2 {
				t.Errorf("DeleteWhere(Age=27) = %d, want 2", deleted)
			}
			all, err := tbl.All()
			if err != nil {
				t.Fatalf("All() error = %v", err)
			}
			if len(all) != 3 {
				t.Errorf("All() returned %d records, want 3", len(all))
			}
		})
	}
}

func TestLoadCSVWithoutHeader(t *testing.T) {
	m := newTestManager(t)
	tbl, err := m.Create("people", access.KindHeap, fixedPeopleSchema())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	n, err := tbl.LoadCSV(strings.NewReader("zoe, 19\nyann, 22\n"), false)
	if err != nil {
		t.Fatalf("LoadCSV() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("LoadCSV() = %d, want 2", n)
	}
	recs, err := tbl.Where("Name", "yann")
	if err != nil {
		t.Fatalf("Where() error = %v", err)
	}
	if len(recs) != 1 || recs[0].ID() != 1 {
		t.Errorf("Where(Name=yann) = %v, want record 1", recs)
	}
}

func TestLoadCSVReorderedHeader(t *testing.T) {
	m := newTestManager(t)
	tbl, err := m.Create("people", access.KindOrdered, fixedPeopleSchema())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := tbl.LoadCSV(strings.NewReader("Age,Name\n50,frank\n"), true); err != nil {
		t.Fatalf("LoadCSV() error = %v", err)
	}
	recs, err := tbl.Where("Name", "frank")
	if err != nil {
		t.Fatalf("Where() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Where(Name=frank) returned %d records, want 1", len(recs))
	}
	if got := tbl.Format(recs)[0][2]; got != "50" {
		t.Errorf("Age = %s, want 50", got)
	}
}

func TestLoadCSVErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		header bool
		loaded int
	}{
		{name: "unknown column", input: "Name,Height\nann,3\n", header: true},
		{name: "id column", input: "Id,Name\n1,ann\n", header: true},
		{name: "duplicate column", input: "Name,Name\nann,bob\n", header: true},
		{name: "short row", input: "ann,3\nbob\n", loaded: 1},
		{name: "bad value", input: "ann,3\nbob,old\n", loaded: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			tbl, err := m.Create("people", access.KindHeap, fixedPeopleSchema())
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			n, err := tbl.LoadCSV(strings.NewReader(tt.input), tt.header)
			if err == nil {
				t.Fatal("LoadCSV() error = nil, want error")
			}
			if n != tt.loaded {
				t.Errorf("LoadCSV() loaded %d, want %d", n, tt.loaded)
			}
		})
	}
}

func TestWhereUnknownColumn(t *testing.T) {
	m := newTestManager(t)
	tbl, err := m.Create("people", access.KindHash, fixedPeopleSchema())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err = tbl.Where("Height", "3")
	if !dberr.HasCategory(err, dberr.ErrCategoryUser) {
		t.Errorf("Where(Height) error = %v, want user error", err)
	}
}

func TestLoadCSVFile(t *testing.T) {
	m := newTestManager(t)
	tbl, err := m.Create("people", access.KindHeapVar, peopleSchema())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(path, []byte(peopleCSV), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	n, err := tbl.LoadCSVFile(path)
	if err != nil {
		t.Fatalf("LoadCSVFile() error = %v", err)
	}
	if n != 5 {
		t.Errorf("LoadCSVFile() = %d, want 5", n)
	}
	if _, err := tbl.LoadCSVFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("LoadCSVFile(missing) error = nil, want error")
	}
}
