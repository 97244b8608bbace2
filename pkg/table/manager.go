package table

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/logging"
	"recordstore/pkg/primitives"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/access"
)

// Manager owns the tables stored in one directory. A table named n with
// organization k lives in the file "n.k" (plus the ordered sibling files).
type Manager struct {
	dir    primitives.Filepath
	opts   access.Options
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewManager creates dir if needed and returns an empty manager for it.
func NewManager(dir primitives.Filepath, opts access.Options) (*Manager, error) {
	if err := dir.MkdirAll(0o755); err != nil {
		return nil, dberr.Wrap(err, "MKDIR", "NewManager", "TableManager")
	}
	return &Manager{
		dir:    dir,
		opts:   opts,
		tables: make(map[string]*Table),
	}, nil
}

// Path returns the primary file of the named table.
func (m *Manager) Path(name string, kind access.Kind) primitives.Filepath {
	return m.dir.Join(name + "." + kind.String())
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\.`) {
		return dberr.Newf(dberr.ErrCategoryUser, "TABLE_NAME", "invalid table name %q", name)
	}
	return nil
}

// Create creates a new table and registers it.
func (m *Manager) Create(name string, kind access.Kind, s *schema.Schema) (*Table, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[name]; ok {
		return nil, dberr.Newf(dberr.ErrCategoryUser, "TABLE_EXISTS", "table %s already exists", name)
	}
	path := m.Path(name, kind)
	rm, err := access.Create(kind, path, s, m.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", name, err)
	}
	t := newTable(name, path, rm)
	m.tables[name] = t
	logging.WithTable(path.String()).Info("table created", "organization", kind)
	return t, nil
}

// Open opens an existing table and registers it. An already open table is
// returned as is.
func (m *Manager) Open(name string, kind access.Kind) (*Table, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tables[name]; ok {
		if t.Kind() != kind {
			return nil, dberr.Newf(dberr.ErrCategoryUser, "WRONG_ORGANIZATION", "table %s is %s, not %s", name, t.Kind(), kind)
		}
		return t, nil
	}
	path := m.Path(name, kind)
	rm, err := access.Open(kind, path, m.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open table %s: %w", name, err)
	}
	t := newTable(name, path, rm)
	m.tables[name] = t
	return t, nil
}

// OpenAll opens every table file found in the directory.
func (m *Manager) OpenAll() ([]*Table, error) {
	entries, err := os.ReadDir(m.dir.String())
	if err != nil {
		return nil, dberr.Wrap(err, "READ_DIR", "OpenAll", "TableManager")
	}
	var opened []*Table
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, kind, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		t, err := m.Open(name, kind)
		if err != nil {
			return opened, err
		}
		opened = append(opened, t)
	}
	return opened, nil
}

// parseFileName splits "name.kind", rejecting sibling files.
func parseFileName(file string) (string, access.Kind, bool) {
	ext := filepath.Ext(file)
	if ext == "" {
		return "", 0, false
	}
	kind, err := access.ParseKind(ext[1:])
	if err != nil || ext[1:] != kind.String() {
		return "", 0, false
	}
	return strings.TrimSuffix(file, ext), kind, true
}

// Get returns the named table.
func (m *Manager) Get(name string) (*Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[name]
	if !ok {
		return nil, dberr.Newf(dberr.ErrCategoryNotFound, "TABLE_NOT_FOUND", "table %s not found", name)
	}
	return t, nil
}

// Names returns the registered table names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Tables returns the registered tables sorted by name.
func (m *Manager) Tables() []*Table {
	names := m.Names()

	m.mu.RLock()
	defer m.mu.RUnlock()
	tables := make([]*Table, 0, len(names))
	for _, name := range names {
		if t, ok := m.tables[name]; ok {
			tables = append(tables, t)
		}
	}
	return tables
}

// Drop closes the named table and removes its files.
func (m *Manager) Drop(name string) error {
	m.mu.Lock()
	t, ok := m.tables[name]
	if ok {
		delete(m.tables, name)
	}
	m.mu.Unlock()

	if !ok {
		return dberr.Newf(dberr.ErrCategoryNotFound, "TABLE_NOT_FOUND", "table %s not found", name)
	}
	if err := t.Close(); err != nil {
		return fmt.Errorf("failed to close table %s: %w", name, err)
	}
	for _, suffix := range []string{"", primitives.ExtensionSuffix, primitives.MergeSuffix} {
		if err := t.Path.WithSuffix(suffix).Remove(); err != nil {
			return dberr.Wrap(err, "REMOVE", "Drop", "TableManager")
		}
	}
	logging.WithTable(t.Path.String()).Info("table dropped")
	return nil
}

// each runs fn on every table concurrently and returns the first error.
func (m *Manager) each(fn func(*Table) error) error {
	var g errgroup.Group
	for _, t := range m.Tables() {
		g.Go(func() error {
			return fn(t)
		})
	}
	return g.Wait()
}

// ReorganizeAll reorganizes every table in parallel.
func (m *Manager) ReorganizeAll() error {
	if err := m.each((*Table).Reorganize); err != nil {
		return fmt.Errorf("error reorganizing tables: %w", err)
	}
	return nil
}

// Close closes every table in parallel and forgets them.
func (m *Manager) Close() error {
	err := m.each((*Table).Close)

	m.mu.Lock()
	clear(m.tables)
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("error closing tables: %w", err)
	}
	return nil
}
