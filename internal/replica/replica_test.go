package replica

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMaster accepts one connection and replies +OK to every command it
// reads, recording the commands it saw as raw argv slices.
func fakeMaster(t *testing.T) (addr string, seen chan []string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	seen = make(chan []string, 8)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			argv, err := readArray(r)
			if err != nil {
				return
			}
			seen <- argv
			conn.Write([]byte("+OK\r\n"))
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String(), seen
}

func readArray(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n := 0
	fmtSscan(line, &n)
	argv := make([]string, n)
	for i := 0; i < n; i++ {
		if _, err := r.ReadString('\n'); err != nil { // $<len>
			return nil, err
		}
		val, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		argv[i] = val[:len(val)-2]
	}
	return argv, nil
}

func fmtSscan(line string, n *int) {
	// line looks like "*<n>\r\n"; trim the sigil and trailer.
	for i := 1; i < len(line); i++ {
		if line[i] < '0' || line[i] > '9' {
			break
		}
		*n = *n*10 + int(line[i]-'0')
	}
}

func TestHandshakeSendsExpectedSequence(t *testing.T) {
	addr, seen := fakeMaster(t)

	err := Handshake(addr, 6380, time.Second)
	require.NoError(t, err)

	assert.Equal(t, []string{"PING"}, <-seen)
	assert.Equal(t, []string{"REPLCONF", "listening-port", "6380"}, <-seen)
	assert.Equal(t, []string{"REPLCONF", "capa", "psync2"}, <-seen)
	assert.Equal(t, []string{"PSYNC", "?", "-1"}, <-seen)
}

func TestHandshakeFailsOnDialError(t *testing.T) {
	err := Handshake("127.0.0.1:1", 6380, 50*time.Millisecond)
	assert.Error(t, err)
}
