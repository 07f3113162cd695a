package streamlog

import "errors"

// ErrNotMonotonic is returned when an XADD id is not strictly greater
// than the stream's current last id.
var ErrNotMonotonic = errors.New("stream id must be greater than the last entry id")

// Stream is an append-only, strictly-monotonic log of entries keyed by
// Key, stored in a radix tree for ordered iteration.
type Stream struct {
	root rxNode
	Last Key
	n    int
}

// New returns an empty stream.
func New() *Stream {
	return &Stream{}
}

// Append inserts fields under id, which must be strictly greater than
// the stream's current last id; the first entry is accepted with any
// id, including 0-0.
func (s *Stream) Append(id Key, fields []Field) error {
	if s.n > 0 && !id.Greater(s.Last) {
		return ErrNotMonotonic
	}
	node := s.root.create(id.internalRepr())
	node.entry = &Entry{Key: id, Fields: fields}
	s.Last = id
	s.n++
	return nil
}

// Len returns the number of entries.
func (s *Stream) Len() int {
	return s.n
}

// Range returns entries with id in [from, to], inclusive, ascending.
func (s *Stream) Range(from, to Key) []Entry {
	if s.n == 0 || from.Greater(to) {
		return nil
	}
	return s.root.rangeEntries(from.internalRepr(), to.internalRepr())
}

// After returns entries with id strictly greater than after, ascending;
// used by XREAD to pick up entries newer than a client's last-seen id.
func (s *Stream) After(after Key) []Entry {
	if s.n == 0 {
		return nil
	}
	key := after.internalRepr()
	bumped := bumpKey(key)
	return s.root.higherEntries(bumped)
}

// bumpKey returns the internal-key representation of the smallest key
// strictly greater than the one key represents, by treating key as a
// base-64 number and adding one. Overflow (key already all 63s)
// returns all 63s again; no real entry id has that representation,
// since the leading digit of an 11-digit uint64 never exceeds 15.
func bumpKey(key internalKey) internalKey {
	out := make(internalKey, len(key))
	copy(out, key)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 63 {
			out[i]++
			return out
		}
		out[i] = 0
	}
	for i := range out {
		out[i] = 63
	}
	return out
}
