package blocked

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopFrontIsFIFOPerKey(t *testing.T) {
	r := New()
	r.Park(1, []string{"k"}, KindListLeft, nil, nil)
	r.Park(2, []string{"k"}, KindListLeft, nil, nil)
	r.Park(3, []string{"k"}, KindListLeft, nil, nil)

	rec, ok := r.PopFront("k")
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.Token)

	rec, ok = r.PopFront("k")
	require.True(t, ok)
	assert.Equal(t, uint64(2), rec.Token)
}

func TestPopFrontCleansUpOtherKeys(t *testing.T) {
	r := New()
	r.Park(1, []string{"a", "b"}, KindListLeft, nil, nil)

	_, ok := r.PopFront("a")
	require.True(t, ok)

	_, ok = r.PopFront("b")
	assert.False(t, ok, "record should have been removed from every key it was parked on")
}

func TestRemoveByTokenOnConnectionClose(t *testing.T) {
	r := New()
	r.Park(1, []string{"a", "b"}, KindListLeft, nil, nil)

	rec, ok := r.Remove(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.Token)

	_, ok = r.PopFront("a")
	assert.False(t, ok)
	_, ok = r.Remove(1)
	assert.False(t, ok)
}

func TestExpiredReturnsOnlyDueRecords(t *testing.T) {
	r := New()
	now := time.Unix(1000, 0)
	soon := now.Add(time.Second)
	later := now.Add(time.Hour)

	r.Park(1, []string{"a"}, KindListLeft, &soon, nil)
	r.Park(2, []string{"b"}, KindListLeft, &later, nil)
	r.Park(3, []string{"c"}, KindListLeft, nil, nil)

	expired := r.Expired(soon)
	require.Len(t, expired, 1)
	assert.Equal(t, uint64(1), expired[0].Token)

	_, ok := r.PopFront("a")
	assert.False(t, ok)

	next, ok := r.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, later, next)
}

func TestNextDeadlineEmptyWhenNoTimedWaiters(t *testing.T) {
	r := New()
	r.Park(1, []string{"a"}, KindListLeft, nil, nil)
	_, ok := r.NextDeadline()
	assert.False(t, ok)
}
