package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 6379, c.Port)
	assert.Equal(t, "tcp://:6379", c.Addr())
	_, ok := c.ReplicaOfAddr()
	assert.False(t, ok)
}

func TestParseReplicaOf(t *testing.T) {
	c, err := Parse([]string{"--port", "6380", "--replicaof", "localhost 6379"})
	require.NoError(t, err)
	assert.Equal(t, 6380, c.Port)
	addr, ok := c.ReplicaOfAddr()
	require.True(t, ok)
	assert.Equal(t, "localhost:6379", addr)
}

func TestParseRejectsMalformedReplicaOf(t *testing.T) {
	_, err := Parse([]string{"--replicaof", "justahost"})
	assert.Error(t, err)
}

func TestParseRejectsBadPort(t *testing.T) {
	_, err := Parse([]string{"--port", "70000"})
	assert.Error(t, err)
}
