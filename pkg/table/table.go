// Package table wraps a record manager with a name, a mutex and textual
// (string-valued) operations, and loads CSV data into it.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/access"
)

// Table is one named table. All methods serialize on an internal mutex, so a
// Table may be shared between goroutines even though record managers may not.
type Table struct {
	Name string
	Path primitives.Filepath

	mu      sync.Mutex
	manager access.RecordManager
}

func newTable(name string, path primitives.Filepath, m access.RecordManager) *Table {
	return &Table{Name: name, Path: path, manager: m}
}

// Kind returns the file organization.
func (t *Table) Kind() access.Kind {
	return t.manager.Kind()
}

// Schema returns the table schema.
func (t *Table) Schema() *schema.Schema {
	return t.manager.Schema()
}

// String returns a short description of the table.
func (t *Table) String() string {
	return fmt.Sprintf("Table(%s, %s, %s)", t.Name, t.Kind(), strings.Join(t.Schema().Names(), ","))
}

func (t *Table) column(name string) (primitives.ColumnID, schema.Column, error) {
	id, err := t.Schema().ColumnID(name)
	if err != nil {
		return id, schema.Column{}, err
	}
	col, err := t.Schema().Column(id)
	return id, col, err
}

// Insert parses one value per user column and inserts the record.
func (t *Table) Insert(values ...string) (primitives.RecordID, error) {
	rec, err := t.Schema().Parse(values)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.Insert(rec)
}

// InsertRecords inserts already encoded records.
func (t *Table) InsertRecords(recs []*record.Record) ([]primitives.RecordID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.InsertMany(recs)
}

// Get returns the record with the given id, or nil.
func (t *Table) Get(id primitives.RecordID) (*record.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.Select(id)
}

// GetMany returns the records whose ids are listed.
func (t *Table) GetMany(ids []primitives.RecordID) ([]*record.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.SelectIDs(ids)
}

// All returns every live record.
func (t *Table) All() ([]*record.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.SelectAll()
}

// Where returns the records whose column equals value.
func (t *Table) Where(column, value string) ([]*record.Record, error) {
	id, col, err := t.column(column)
	if err != nil {
		return nil, err
	}
	v, err := col.Parse(value)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.SelectWhereEquals(id, v)
}

// Between returns the records whose column lies in [min, max].
func (t *Table) Between(column, min, max string) ([]*record.Record, error) {
	id, col, err := t.column(column)
	if err != nil {
		return nil, err
	}
	lo, err := col.Parse(min)
	if err != nil {
		return nil, err
	}
	hi, err := col.Parse(max)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.SelectWhereBetween(id, lo, hi)
}

// Delete removes the record with the given id.
func (t *Table) Delete(id primitives.RecordID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.Delete(id)
}

// DeleteWhere removes the records whose column equals value.
func (t *Table) DeleteWhere(column, value string) (int, error) {
	id, col, err := t.column(column)
	if err != nil {
		return 0, err
	}
	v, err := col.Parse(value)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.DeleteWhereEquals(id, v)
}

// Reorganize compacts or re-sorts the table.
func (t *Table) Reorganize() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.Reorganize()
}

// Size returns the table size in bytes.
func (t *Table) Size() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.Size()
}

// Stats returns the block traffic since the last ResetStats.
func (t *Table) Stats() access.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.Stats()
}

// ResetStats zeroes the block traffic counters.
func (t *Table) ResetStats() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manager.ResetStats()
}

// Format renders records as rows of strings, Id first.
func (t *Table) Format(recs []*record.Record) [][]string {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = t.Schema().Format(r.Bytes())
	}
	return rows
}

// LoadCSV inserts one record per CSV row. Rows hold the user columns in
// schema order; with header set, the first row names them and may list
// them in any order. It returns the number of records inserted.
func (t *Table) LoadCSV(r io.Reader, header bool) (int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	s := t.Schema()

	order := make([]int, s.NumColumns()-1)
	for i := range order {
		order[i] = i
	}
	if header {
		names, err := cr.Read()
		if err != nil {
			return 0, dberr.Wrap(err, "CSV_HEADER", "LoadCSV", "Table")
		}
		if order, err = columnOrder(s, names); err != nil {
			return 0, err
		}
	}

	values := make([]string, len(order))
	loaded := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return loaded, nil
		}
		if err != nil {
			return loaded, dberr.Wrap(err, "CSV_READ", "LoadCSV", "Table")
		}
		if len(row) != len(order) {
			line, _ := cr.FieldPos(0)
			return loaded, dberr.Newf(dberr.ErrCategoryUser, "CSV_ROW", "line %d has %d fields, want %d", line, len(row), len(order))
		}
		for i, pos := range order {
			values[pos] = row[i]
		}
		if _, err := t.Insert(values...); err != nil {
			line, _ := cr.FieldPos(0)
			return loaded, fmt.Errorf("line %d: %w", line, err)
		}
		loaded++
	}
}

// LoadCSVFile loads the CSV file at path; its first row names the columns.
func (t *Table) LoadCSVFile(path string) (int, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return 0, dberr.Wrap(err, "CSV_OPEN", "LoadCSV", "Table")
	}
	defer f.Close()
	return t.LoadCSV(f, true)
}

// columnOrder maps CSV header positions to user column positions.
func columnOrder(s *schema.Schema, names []string) ([]int, error) {
	if len(names) != s.NumColumns()-1 {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "CSV_HEADER", "header has %d columns, schema has %d", len(names), s.NumColumns()-1)
	}
	order := make([]int, len(names))
	seen := make(map[primitives.ColumnID]bool, len(names))
	for i, name := range names {
		id, err := s.ColumnID(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if id == primitives.IDColumn || seen[id] {
			return nil, dberr.Newf(dberr.ErrCategoryUser, "CSV_HEADER", "column %q cannot be loaded", name)
		}
		seen[id] = true
		order[i] = int(id) - 1
	}
	return order, nil
}

// Close closes the underlying record manager.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.Close()
}
