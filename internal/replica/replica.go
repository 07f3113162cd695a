// Package replica performs the replication handshake a --replicaof
// instance runs against its master, then goes idle: PING, REPLCONF
// listening-port, REPLCONF capa psync2, PSYNC ? -1. Propagating command
// traffic beyond the handshake is out of scope (spec.md §1's Non-goals,
// §6's explicit scope limit); no pack example implements this side of
// the protocol, so the exchange here follows spec.md §6 directly rather
// than any teacher/example file.
package replica

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kvsrv/redisd/internal/resp"
)

// Handshake dials addr (the master's "host:port") and runs the
// handshake sequence, returning once PSYNC's FULLRESYNC reply (or any
// positive reply) has been read. The connection is then closed: this
// server does not keep a live replication link open past the handshake.
func Handshake(addr string, listenPort int, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("replica: dial master %s: %w", addr, err)
	}
	defer conn.Close()

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	r := bufio.NewReader(conn)

	if err := sendAndExpect(conn, r, []string{"PING"}); err != nil {
		return fmt.Errorf("replica: PING: %w", err)
	}
	if err := sendAndExpect(conn, r, []string{"REPLCONF", "listening-port", strconv.Itoa(listenPort)}); err != nil {
		return fmt.Errorf("replica: REPLCONF listening-port: %w", err)
	}
	if err := sendAndExpect(conn, r, []string{"REPLCONF", "capa", "psync2"}); err != nil {
		return fmt.Errorf("replica: REPLCONF capa psync2: %w", err)
	}
	if err := sendAndExpect(conn, r, []string{"PSYNC", "?", "-1"}); err != nil {
		return fmt.Errorf("replica: PSYNC: %w", err)
	}
	return nil
}

// sendAndExpect writes args as a RESP array and reads back one line,
// rejecting only a leading '-' error reply; any other first byte
// ('+', ':', '$') is accepted as success for handshake purposes.
func sendAndExpect(conn net.Conn, r *bufio.Reader, args []string) error {
	if _, err := conn.Write(encodeCommand(args)); err != nil {
		return err
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	if len(line) > 0 && line[0] == '-' {
		return fmt.Errorf("master replied %q", line)
	}
	return nil
}

func encodeCommand(args []string) []byte {
	var w resp.Writer
	w.WriteStringArray(args)
	return w.Buf
}
