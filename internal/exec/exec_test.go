package exec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvsrv/redisd/internal/blocked"
	"github.com/kvsrv/redisd/internal/command"
	"github.com/kvsrv/redisd/internal/store"
)

func newExecutor() *Executor {
	now := time.Unix(1000, 0)
	return &Executor{
		KS:      store.New(func() time.Time { return now }),
		Blocked: blocked.New(),
		Now:     func() time.Time { return now },
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	e := newExecutor()
	out := e.Execute(command.Set{Key: "k", Val: "v"}, 1)
	assert.Equal(t, OK(), *out.Reply)

	out = e.Execute(command.Get{Key: "k"}, 1)
	assert.Equal(t, Bulk("v"), *out.Reply)
}

func TestIncrFromAbsentAndNonInteger(t *testing.T) {
	e := newExecutor()
	out := e.Execute(command.Incr{Key: "n"}, 1)
	assert.Equal(t, Int(1), *out.Reply)
	out = e.Execute(command.Incr{Key: "n"}, 1)
	assert.Equal(t, Int(2), *out.Reply)

	e.Execute(command.Set{Key: "s", Val: "abc"}, 1)
	out = e.Execute(command.Incr{Key: "s"}, 1)
	assert.Equal(t, RError, out.Reply.Kind)
}

func TestBLPopImmediateAndParked(t *testing.T) {
	e := newExecutor()
	e.Execute(command.RPush{Key: "k", Vals: []string{"v"}}, 1)

	out := e.Execute(command.BLPop{Keys: []string{"k"}, Timeout: 0}, 2)
	require.NotNil(t, out.Reply)
	assert.Equal(t, BulkArray([]string{"k", "v"}), *out.Reply)

	out = e.Execute(command.BLPop{Keys: []string{"k"}, Timeout: time.Second}, 3)
	require.Nil(t, out.Reply)
	require.NotNil(t, out.Block)
	assert.Equal(t, []string{"k"}, out.Block.Keys)
}

func TestRPushWakesParkedBLPopFIFO(t *testing.T) {
	e := newExecutor()
	// Execute only returns the park request; the reactor registers it,
	// so the test registers each one the same way.
	out := e.Execute(command.BLPop{Keys: []string{"k"}, Timeout: 0}, 1)
	require.Nil(t, out.Reply)
	e.Blocked.Park(1, out.Block.Keys, out.Block.Kind, nil, nil)
	out2 := e.Execute(command.BLPop{Keys: []string{"k"}, Timeout: 0}, 2)
	require.Nil(t, out2.Reply)
	e.Blocked.Park(2, out2.Block.Keys, out2.Block.Kind, nil, nil)

	out = e.Execute(command.RPush{Key: "k", Vals: []string{"v1"}}, 3)
	require.Len(t, out.Wakes, 1)
	assert.Equal(t, uint64(1), out.Wakes[0].Token)
	assert.Equal(t, BulkArray([]string{"k", "v1"}), out.Wakes[0].Reply)

	out = e.Execute(command.RPush{Key: "k", Vals: []string{"v2"}}, 4)
	require.Len(t, out.Wakes, 1)
	assert.Equal(t, uint64(2), out.Wakes[0].Token)
}

func TestZAddAndZRange(t *testing.T) {
	e := newExecutor()
	e.Execute(command.ZAdd{Key: "z", Pairs: []ZPair{{Score: 1, Member: "a"}, {Score: 2, Member: "b"}, {Score: 3, Member: "c"}}}, 1)

	out := e.Execute(command.ZRange{Key: "z", Start: 0, End: -1}, 1)
	assert.Equal(t, BulkArray([]string{"a", "b", "c"}), *out.Reply)

	out = e.Execute(command.ZRange{Key: "z", Start: -2, End: -1}, 1)
	assert.Equal(t, BulkArray([]string{"b", "c"}), *out.Reply)
}

func TestXAddMonotonicIDs(t *testing.T) {
	e := newExecutor()
	out := e.Execute(command.XAdd{Key: "s", ID: "1-1", Fields: nil}, 1)
	assert.Equal(t, Bulk("1-1"), *out.Reply)

	out = e.Execute(command.XAdd{Key: "s", ID: "1-1", Fields: nil}, 1)
	assert.Equal(t, RError, out.Reply.Kind)
	assert.Contains(t, out.Reply.Str, "equal or smaller")

	out = e.Execute(command.XAdd{Key: "s", ID: "0-0", Fields: nil}, 1)
	assert.Contains(t, out.Reply.Str, "greater than 0-0")
}

func TestGeoAddAndGeoDist(t *testing.T) {
	e := newExecutor()
	e.Execute(command.GeoAdd{Key: "g", Points: []GeoPoint{
		{Lon: 13.361389, Lat: 38.115556, Member: "Palermo"},
		{Lon: 15.087269, Lat: 37.502669, Member: "Catania"},
	}}, 1)

	out := e.Execute(command.GeoDist{Key: "g", Member1: "Palermo", Member2: "Catania", Unit: "m"}, 1)
	require.Equal(t, RBulk, out.Reply.Kind)
}

// GeoPoint and ZPair are aliased locally only for test readability; the
// real types live in package command.
type GeoPoint = command.GeoPoint
type ZPair = command.ZPair
