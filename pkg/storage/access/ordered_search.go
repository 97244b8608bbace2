package access

import (
	"slices"

	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
)

// position maps a logical primary index to its block and slot.
func (o *Ordered) position(i uint64) (primitives.BlockID, int) {
	return primitives.BlockID(i / o.perBlock), int(i % o.perBlock) // #nosec G115
}

// spanAt returns the primary record at logical index i. The span aliases
// the read block and is valid until the next block load.
func (o *Ordered) spanAt(i uint64) ([]byte, error) {
	id, slot := o.position(i)
	if o.readID != id {
		if err := o.load(id); err != nil {
			return nil, err
		}
	}
	return o.readBlock.Record(slot), nil
}

// firstLive returns the first non-tombstone index in [from, to), or to.
func (o *Ordered) firstLive(from, to uint64) (uint64, []byte, error) {
	for i := from; i < to; i++ {
		span, err := o.spanAt(i)
		if err != nil {
			return to, nil, err
		}
		if !record.IsTombstone(span) {
			return i, span, nil
		}
	}
	return to, nil, nil
}

// search binary searches the primary file for any live record whose sort
// key lies in [min, max]. A tombstoned pivot is replaced by the next live
// record of the current range.
func (o *Ordered) search(min, max []byte) (uint64, bool, error) {
	lo, hi := uint64(0), o.header.Records
	for lo < hi {
		mid := lo + (hi-lo)/2
		probe, span, err := o.firstLive(mid, hi)
		if err != nil {
			return 0, false, err
		}
		if probe == hi {
			hi = mid
			continue
		}
		switch {
		case o.schema.CompareValue(o.orderedBy, span, min) < 0:
			lo = probe + 1
		case o.schema.CompareValue(o.orderedBy, span, max) > 0:
			hi = mid
		default:
			return probe, true, nil
		}
	}
	return lo, false, nil
}

// rangePrimary returns the primary records with sort key in [min, max] in
// sort order, with their locations. With firstOnly it stops at the first.
func (o *Ordered) rangePrimary(min, max []byte, firstOnly bool) ([]*record.Record, []record.Location, error) {
	idx, found, err := o.search(min, max)
	if err != nil || !found {
		return nil, nil, err
	}
	block, slot := o.position(idx)

	// walk back to the first record of the run
	var recs []*record.Record
	var locs []record.Location
	if err := o.seek(block, slot); err != nil {
		return nil, nil, err
	}
	for {
		loc, ok, err := o.MovePrev(o.rec)
		if err != nil {
			return nil, nil, err
		}
		if !ok || o.schema.CompareValue(o.orderedBy, o.rec.Bytes(), min) < 0 {
			break
		}
		recs = append(recs, o.rec.Clone())
		locs = append(locs, loc)
	}
	slices.Reverse(recs)
	slices.Reverse(locs)
	if firstOnly && len(recs) > 0 {
		return recs[:1], locs[:1], nil
	}

	if err := o.seek(block, slot); err != nil {
		return nil, nil, err
	}
	for {
		loc, ok, err := o.Base.MoveNext(o.rec)
		if err != nil {
			return nil, nil, err
		}
		if !ok || o.schema.CompareValue(o.orderedBy, o.rec.Bytes(), max) > 0 {
			break
		}
		recs = append(recs, o.rec.Clone())
		locs = append(locs, loc)
		if firstOnly {
			break
		}
	}
	return recs, locs, nil
}
