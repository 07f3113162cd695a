package rdb

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvsrv/redisd/internal/store"
)

func shortStr(s string) []byte {
	return append([]byte{byte(len(s))}, []byte(s)...)
}

func writeRDB(t *testing.T, dir, name string, body []byte) {
	t.Helper()
	buf := append([]byte("REDIS0011"), body...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf, 0o644))
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	ks := store.New(nil)
	dir := t.TempDir()
	require.NoError(t, Load(ks, dir, "nope.rdb", nil))
	assert.False(t, ks.Exists("anything"))
}

func TestLoadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.rdb"), []byte("NOTRDBFILE"), 0o644))

	ks := store.New(nil)
	err := Load(ks, dir, "bad.rdb", nil)
	assert.Error(t, err)
}

func TestLoadStringPairsAndExpiry(t *testing.T) {
	dir := t.TempDir()

	var body []byte
	// aux field, should be skipped
	body = append(body, opCodeAux)
	body = append(body, shortStr("redis-ver")...)
	body = append(body, shortStr("7.0.0")...)

	// plain key/value
	body = append(body, stringEnc)
	body = append(body, shortStr("foo")...)
	body = append(body, shortStr("bar")...)

	// expiring key/value
	expireAt := time.UnixMilli(4102444800000) // 2100-01-01 UTC
	msbuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(msbuf, uint64(expireAt.UnixMilli()))
	body = append(body, opCodeExpireTimeMs)
	body = append(body, msbuf...)
	body = append(body, stringEnc)
	body = append(body, shortStr("session")...)
	body = append(body, shortStr("token123")...)

	body = append(body, opCodeEOF)

	writeRDB(t, dir, "dump.rdb", body)

	ks := store.New(nil)
	require.NoError(t, Load(ks, dir, "dump.rdb", nil))

	val, ok, err := ks.GetString("foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bar", val)

	val, ok, err = ks.GetString("session")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "token123", val)
}

func TestLoadStopsEarlyOnUnsupportedValueTypeButKeepsPriorKeys(t *testing.T) {
	dir := t.TempDir()

	var body []byte
	body = append(body, stringEnc)
	body = append(body, shortStr("before")...)
	body = append(body, shortStr("kept")...)

	body = append(body, byte(1)) // listEnc, unsupported by this loader
	body = append(body, shortStr("k")...)
	body = append(body, opCodeEOF)

	writeRDB(t, dir, "dump.rdb", body)

	ks := store.New(nil)
	require.NoError(t, Load(ks, dir, "dump.rdb", nil))

	val, ok, err := ks.GetString("before")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "kept", val)
}
