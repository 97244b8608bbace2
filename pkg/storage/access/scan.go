package access

import (
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
	"recordstore/pkg/types"
)

// predicate decides whether a record span matches.
type predicate func(data []byte) bool

func equalsPredicate(s *schema.Schema, col primitives.ColumnID, value []byte) predicate {
	return func(data []byte) bool {
		return s.CompareValue(col, data, value) == 0
	}
}

func betweenPredicate(s *schema.Schema, col primitives.ColumnID, min, max []byte) predicate {
	return func(data []byte) bool {
		return s.CompareValue(col, data, min) >= 0 && s.CompareValue(col, data, max) <= 0
	}
}

func idSetPredicate(ids []primitives.RecordID) predicate {
	set := make(map[primitives.RecordID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(data []byte) bool {
		_, ok := set[record.ID(data)]
		return ok
	}
}

// scanSelect runs a full linear scan and returns copies of every match.
func scanSelect(sc Scanner, rec *record.Record, match predicate) ([]*record.Record, error) {
	var out []*record.Record
	sc.MoveToStart()
	for {
		_, ok, err := sc.MoveNext(rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if match == nil || match(rec.Bytes()) {
			out = append(out, rec.Clone())
		}
	}
}

// scanFind returns the first match and its location.
func scanFind(sc Scanner, rec *record.Record, match predicate) (*record.Record, record.Location, error) {
	sc.MoveToStart()
	for {
		loc, ok, err := sc.MoveNext(rec)
		if err != nil || !ok {
			return nil, record.NoLocation, err
		}
		if match(rec.Bytes()) {
			return rec.Clone(), loc, nil
		}
	}
}

// scanDelete deletes matches the moment they are found. deleteAt must only
// tombstone the slot in place or remove the slot the cursor just returned.
func scanDelete(sc Scanner, rec *record.Record, match predicate, deleteAt func(record.Location) error) (int, error) {
	deleted := 0
	sc.MoveToStart()
	for {
		loc, ok, err := sc.MoveNext(rec)
		if err != nil {
			return deleted, err
		}
		if !ok {
			return deleted, nil
		}
		if match(rec.Bytes()) {
			if err := deleteAt(loc); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
}

// idValue decodes an INT64 id column value.
func idValue(value []byte) (primitives.RecordID, bool) {
	if len(value) != int(types.Int64Type.Size(0)) {
		return 0, false
	}
	return record.ID(value), true
}
