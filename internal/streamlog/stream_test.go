package streamlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRejectsNonMonotonicIDs(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(Key{1, 0}, nil))
	require.NoError(t, s.Append(Key{1, 1}, nil))
	assert.ErrorIs(t, s.Append(Key{1, 1}, nil), ErrNotMonotonic)
	assert.ErrorIs(t, s.Append(Key{0, 9}, nil), ErrNotMonotonic)
}

func TestRangeInclusiveBounds(t *testing.T) {
	s := New()
	ids := []Key{{1, 0}, {2, 0}, {2, 1}, {3, 0}, {10, 0}}
	for _, id := range ids {
		require.NoError(t, s.Append(id, []Field{{Name: "k", Value: id.String()}}))
	}

	got := s.Range(Key{2, 0}, Key{3, 0})
	assertKeys(t, got, Key{2, 0}, Key{2, 1}, Key{3, 0})

	all := s.Range(MinKey, MaxKey)
	assertKeys(t, all, ids...)

	exact := s.Range(Key{2, 1}, Key{2, 1})
	assertKeys(t, exact, Key{2, 1})
}

func TestAfterReturnsStrictlyGreater(t *testing.T) {
	s := New()
	ids := []Key{{1, 0}, {1, 1}, {2, 0}}
	for _, id := range ids {
		require.NoError(t, s.Append(id, nil))
	}

	got := s.After(Key{1, 0})
	assertKeys(t, got, Key{1, 1}, Key{2, 0})

	assert.Empty(t, s.After(Key{2, 0}))
	assert.Empty(t, New().After(MinKey))
}

func TestParseIDAutoSequence(t *testing.T) {
	last := Key{5, 3}
	id, err := ParseID("5-*", last, func() uint64 { return 99 })
	require.NoError(t, err)
	assert.Equal(t, Key{5, 4}, id)

	id, err = ParseID("6-*", last, func() uint64 { return 99 })
	require.NoError(t, err)
	assert.Equal(t, Key{6, 0}, id)

	id, err = ParseID("*", last, func() uint64 { return 5 })
	require.NoError(t, err)
	assert.Equal(t, Key{5, 4}, id)
}

func TestParseRangeBoundBareMsExpandsToZeroOrMax(t *testing.T) {
	start, err := ParseRangeBound("5", true)
	require.NoError(t, err)
	assert.Equal(t, Key{5, 0}, start)

	end, err := ParseRangeBound("5", false)
	require.NoError(t, err)
	assert.Equal(t, Key{5, MaxUint64}, end)

	minusKey, err := ParseRangeBound("-", true)
	require.NoError(t, err)
	assert.Equal(t, MinKey, minusKey)

	plusKey, err := ParseRangeBound("+", false)
	require.NoError(t, err)
	assert.Equal(t, MaxKey, plusKey)
}

func assertKeys(t *testing.T, got []Entry, want ...Key) {
	t.Helper()
	require.Len(t, got, len(want))
	for i, k := range want {
		assert.Equal(t, k, got[i].Key)
	}
}
