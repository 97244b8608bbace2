package primitives

import (
	"os"
	"path/filepath"
	"strings"
)

// Filepath is a type-safe wrapper around the paths of table files.
//
// An ordered table is stored as several sibling files derived from one base
// path:
//
//	base := primitives.Filepath("/data/users.tbl")
//	ext := base.WithSuffix(ExtensionSuffix) // /data/users.tbl.extension
type Filepath string

const (
	// ExtensionSuffix names the unsorted overflow file of an ordered table.
	ExtensionSuffix = ".extension"

	// MergeSuffix names the scratch run file used during reorganization.
	MergeSuffix = ".merge"
)

// WithSuffix returns the sibling path formed by appending suffix.
func (f Filepath) WithSuffix(suffix string) Filepath {
	return Filepath(string(f) + suffix)
}

// Dir returns the directory portion of the file path.
func (f Filepath) Dir() Filepath {
	return Filepath(filepath.Dir(string(f)))
}

// Base returns the last element of the path.
func (f Filepath) Base() string {
	return filepath.Base(string(f))
}

// Join appends path elements to f.
func (f Filepath) Join(elem ...string) Filepath {
	parts := append([]string{string(f)}, elem...)
	return Filepath(filepath.Join(parts...))
}

// Exists reports whether a file exists at this path.
func (f Filepath) Exists() bool {
	_, err := os.Stat(string(f))
	return err == nil
}

// Remove deletes the file. A missing file is not an error.
func (f Filepath) Remove() error {
	err := os.Remove(string(f))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// MkdirAll creates the directory path if it doesn't exist.
func (f Filepath) MkdirAll(perm os.FileMode) error {
	return os.MkdirAll(string(f), perm)
}

// HasSuffix reports whether the path ends with suffix.
func (f Filepath) HasSuffix(suffix string) bool {
	return strings.HasSuffix(string(f), suffix)
}

func (f Filepath) String() string {
	return string(f)
}
