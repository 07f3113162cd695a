package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStringMissingAndWrongType(t *testing.T) {
	ks := New(nil)
	_, ok, err := ks.GetString("nope")
	assert.False(t, ok)
	assert.NoError(t, err)

	_, err = ks.ListForWrite("list")
	require.NoError(t, err)
	_, ok, err = ks.GetString("list")
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestExpiryIsLazy(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := now
	ks := New(func() time.Time { return clock })

	past := now.Add(-time.Second)
	ks.SetString("k", "v", &past)
	assert.False(t, ks.Exists("k"))

	future := now.Add(time.Minute)
	ks.SetString("k2", "v2", &future)
	assert.True(t, ks.Exists("k2"))

	clock = future.Add(time.Second)
	assert.False(t, ks.Exists("k2"))
}

func TestKeysGlobMatching(t *testing.T) {
	ks := New(nil)
	ks.SetString("hello", "1", nil)
	ks.SetString("help", "1", nil)
	ks.SetString("world", "1", nil)

	got, err := ks.Keys("hel*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hello", "help"}, got)

	got, err = ks.Keys("*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hello", "help", "world"}, got)

	got, err = ks.Keys("h?llo")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hello"}, got)
}

func TestTypeOfAndDelete(t *testing.T) {
	ks := New(nil)
	assert.Equal(t, "none", ks.TypeOf("missing"))

	ks.SetString("s", "v", nil)
	assert.Equal(t, "string", ks.TypeOf("s"))

	_, err := ks.ZSetForWrite("z")
	require.NoError(t, err)
	assert.Equal(t, "zset", ks.TypeOf("z"))

	assert.True(t, ks.Delete("s"))
	assert.False(t, ks.Delete("s"))
	assert.Equal(t, "none", ks.TypeOf("s"))
}

func TestConfigGet(t *testing.T) {
	c := Config{Dir: "/data", Dbfilename: "dump.rdb"}
	v, ok := c.Get("dir")
	assert.True(t, ok)
	assert.Equal(t, "/data", v)

	v, ok = c.Get("DBFILENAME")
	assert.True(t, ok)
	assert.Equal(t, "dump.rdb", v)

	_, ok = c.Get("maxmemory")
	assert.False(t, ok)
}
