package schema

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	dberr "recordstore/pkg/error"
	"recordstore/pkg/types"
)

// MarshalText serializes the schema: the column count on the first line,
// then one "name,typeIndex,arraySize" line per column, Id included.
func (s *Schema) MarshalText() ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", len(s.columns))
	for _, col := range s.columns {
		fmt.Fprintf(&b, "%s,%d,%d\n", col.Name, int(col.Type), col.ArraySize)
	}
	return []byte(b.String()), nil
}

// String returns the text form of the schema.
func (s *Schema) String() string {
	b, _ := s.MarshalText()
	return string(b)
}

// Unmarshal parses the text format produced by MarshalText. Files written by
// hand may omit the Id line; it is implied.
func Unmarshal(text []byte) (*Schema, error) {
	sc := bufio.NewScanner(strings.NewReader(string(text)))
	if !sc.Scan() {
		return nil, malformed("missing column count")
	}
	count, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil || count < 0 {
		return nil, malformed("bad column count %q", sc.Text())
	}

	defs := make([]ColumnDef, 0, count)
	for len(defs) < count {
		if !sc.Scan() {
			return nil, malformed("expected %d columns, found %d", count, len(defs))
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return nil, malformed("column line %q needs name,typeIndex,arraySize", line)
		}
		typ, err := types.ParseType(parts[1])
		if err != nil {
			return nil, malformed("column %q: %v", parts[0], err)
		}
		size, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 32)
		if err != nil {
			return nil, malformed("column %q: bad array size %q", parts[0], parts[2])
		}
		defs = append(defs, ColumnDef{Name: strings.TrimSpace(parts[0]), Type: typ, ArraySize: uint32(size)})
	}
	return New(defs...)
}

func malformed(format string, args ...any) *dberr.DBError {
	return dberr.Newf(dberr.ErrCategoryData, "MALFORMED_SCHEMA", format, args...)
}
