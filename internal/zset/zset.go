// Package zset implements the sorted-set value type: a total order over
// (score, member) pairs with unique members, backed by github.com/google/btree.
//
// Ordering follows original_source's storage/zset_member.rs: NaN compares
// as the smallest possible score and NaN == NaN; ties on score break on
// lexicographic member order.
package zset

import (
	"math"

	"github.com/google/btree"
)

// Member is one (score, member) pair.
type Member struct {
	Score  float64
	Member string
}

// Less implements btree.Item.
func (m Member) Less(than btree.Item) bool {
	o := than.(Member)
	return less(m.Score, m.Member, o.Score, o.Member)
}

func less(s1 float64, m1 string, s2 float64, m2 string) bool {
	n1, n2 := math.IsNaN(s1), math.IsNaN(s2)
	switch {
	case n1 && n2:
		return m1 < m2
	case n1:
		return true
	case n2:
		return false
	case s1 != s2:
		return s1 < s2
	default:
		return m1 < m2
	}
}

// Set is a sorted set of unique members ordered by (score, member).
type Set struct {
	tree  *btree.BTree
	byMem map[string]float64
}

// New returns an empty sorted set.
func New() *Set {
	return &Set{
		tree:  btree.New(32),
		byMem: make(map[string]float64),
	}
}

// Add inserts member with score, or updates its score if it already
// exists. Returns true if the member was newly inserted.
func (s *Set) Add(score float64, member string) bool {
	if oldScore, ok := s.byMem[member]; ok {
		if oldScore == score || (math.IsNaN(oldScore) && math.IsNaN(score)) {
			return false
		}
		s.tree.Delete(Member{Score: oldScore, Member: member})
		s.tree.ReplaceOrInsert(Member{Score: score, Member: member})
		s.byMem[member] = score
		return false
	}
	s.tree.ReplaceOrInsert(Member{Score: score, Member: member})
	s.byMem[member] = score
	return true
}

// Score returns the member's score, if present.
func (s *Set) Score(member string) (float64, bool) {
	score, ok := s.byMem[member]
	return score, ok
}

// Remove deletes member, returning true if it was present.
func (s *Set) Remove(member string) bool {
	score, ok := s.byMem[member]
	if !ok {
		return false
	}
	s.tree.Delete(Member{Score: score, Member: member})
	delete(s.byMem, member)
	return true
}

// Len returns the number of members.
func (s *Set) Len() int {
	return s.tree.Len()
}

// Rank returns the zero-based rank of member in ascending score order.
func (s *Set) Rank(member string) (int, bool) {
	score, ok := s.byMem[member]
	if !ok {
		return 0, false
	}
	rank := 0
	found := false
	s.tree.Ascend(func(it btree.Item) bool {
		m := it.(Member)
		if m.Member == member && m.Score == score {
			found = true
			return false
		}
		rank++
		return true
	})
	return rank, found
}

// Range returns the members at zero-based indices [start, end], both
// inclusive, after clamping negative indices (counted from the end) and
// the [0, len-1] bounds. Returns an empty slice if start > end after
// normalization.
func (s *Set) Range(start, end int) []Member {
	n := s.tree.Len()
	start = normalizeIndex(start, n)
	end = normalizeIndex(end, n)
	if n == 0 || start > end || start >= n {
		return nil
	}
	if end >= n {
		end = n - 1
	}
	out := make([]Member, 0, end-start+1)
	idx := 0
	s.tree.Ascend(func(it btree.Item) bool {
		if idx >= start && idx <= end {
			out = append(out, it.(Member))
		}
		idx++
		return idx <= end
	})
	return out
}

func normalizeIndex(idx, n int) int {
	if idx < 0 {
		idx += n
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

