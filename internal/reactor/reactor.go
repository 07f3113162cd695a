// Package reactor wires the command executor into a single-threaded
// gnet event loop: one goroutine accepts connections, reads and parses
// RESP frames, dispatches to internal/exec, and delivers wake replies
// to parked connections — all without ever blocking on I/O. Grounded
// on other_examples's gnet-shaped EventHandler/Conn interfaces (for the
// callback architecture) and the teacher's diyredis/session.go
// dispatch-then-write loop (for per-command handling), ported onto
// github.com/panjf2000/gnet/v2 with gnet.WithNumEventLoop(1) enforcing
// the single-event-loop guarantee spec.md's reactor section requires.
package reactor

import (
	"log"
	"strings"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/kvsrv/redisd/internal/blocked"
	"github.com/kvsrv/redisd/internal/command"
	"github.com/kvsrv/redisd/internal/control"
	"github.com/kvsrv/redisd/internal/exec"
	"github.com/kvsrv/redisd/internal/resp"
	"github.com/kvsrv/redisd/internal/streamlog"
)

// defaultTick bounds how often OnTick fires when no client has a
// blocking deadline pending.
const defaultTick = 200 * time.Millisecond

// session is the per-connection state stored in gnet.Conn's context.
type session struct {
	token  uint64
	conn   gnet.Conn
	buf    []byte
	parked bool

	inMulti  bool
	dirtyTxn bool // a command failed to parse while queuing; EXEC must abort
	queue    []command.Command
}

// Server implements gnet.EventHandler over an exec.Executor. Park and
// wake requests the executor produces are posted to Bus and drained
// after every dispatch, rather than applied inline, so that the
// reactor has one place (drainBus) that turns control-channel messages
// into connection-state changes.
type Server struct {
	gnet.BuiltinEventEngine

	Exec    *exec.Executor
	Bus     *control.Bus
	Log     *log.Logger
	nextTok uint64
	byToken map[uint64]*session
}

// New returns a Server ready to be passed to gnet.Run.
func New(e *exec.Executor, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{Exec: e, Bus: control.NewBus(), Log: logger, byToken: make(map[uint64]*session)}
}

// Serve runs the reactor on addr (e.g. "tcp://:6379") until the
// process is signaled to stop; it always runs with a single event loop
// per spec.md's single-threaded reactor requirement.
func (s *Server) Serve(addr string) error {
	return gnet.Run(s, addr,
		gnet.WithMulticore(false),
		gnet.WithNumEventLoop(1),
		gnet.WithTicker(true),
	)
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.Log.Println("redisd reactor booted")
	return gnet.None
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	s.nextTok++
	token := s.nextTok
	sess := &session{token: token, conn: c}
	s.byToken[token] = sess
	c.SetContext(token)
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	token, ok := c.Context().(uint64)
	if !ok {
		return gnet.None
	}
	s.Exec.Blocked.Remove(token)
	delete(s.byToken, token)
	return gnet.None
}

func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	token := c.Context().(uint64)
	sess, ok := s.byToken[token]
	if !ok {
		return gnet.Close
	}

	data, _ := c.Next(-1)
	sess.buf = append(sess.buf, data...)

	// Frames are consumed from sess.buf one at a time, immediately
	// before being dispatched: if dispatching one parks the connection,
	// the loop stops right there and leaves every remaining byte (any
	// pipelined frame after the one that blocked) in sess.buf for the
	// next OnTraffic call after the block resolves, rather than
	// discarding it.
	for !sess.parked {
		frame, n, ok, err := resp.ParseOne(sess.buf)
		if err != nil {
			s.writeErr(sess, "ERR Protocol error: "+err.Error())
			return gnet.Close
		}
		if !ok {
			break
		}
		sess.buf = sess.buf[n:]
		s.handleFrame(sess, frame)
	}
	return gnet.None
}

func (s *Server) OnTick() (time.Duration, gnet.Action) {
	now := time.Now()
	for _, rec := range s.Exec.Blocked.Expired(now) {
		sess, ok := s.byToken[rec.Token]
		if !ok {
			continue
		}
		sess.parked = false
		var w resp.Writer
		w.WriteNullArray()
		sess.conn.Write(w.Buf)
	}

	delay := defaultTick
	if next, ok := s.Exec.Blocked.NextDeadline(); ok {
		if d := next.Sub(now); d < delay {
			if d < 0 {
				d = 0
			}
			delay = d
		}
	}
	return delay, gnet.None
}

func (s *Server) handleFrame(sess *session, f resp.Frame) {
	argv, err := f.Args()
	if err != nil {
		s.writeErr(sess, "ERR Protocol error: "+err.Error())
		return
	}
	if len(argv) == 0 {
		return
	}
	args := make([]string, len(argv))
	for i, a := range argv {
		args[i] = string(a)
	}

	cmd, perr := command.Parse(args)
	if perr != nil {
		if sess.inMulti {
			sess.dirtyTxn = true
		}
		s.writeErr(sess, "ERR "+perr.Error())
		return
	}

	switch cmd.(type) {
	case command.Multi:
		sess.inMulti = true
		sess.dirtyTxn = false
		sess.queue = nil
		s.writeSimple(sess, "OK")
		return
	case command.Discard:
		if !sess.inMulti {
			s.writeErr(sess, "ERR DISCARD without MULTI")
			return
		}
		sess.inMulti = false
		sess.queue = nil
		s.writeSimple(sess, "OK")
		return
	case command.Exec:
		s.execTransaction(sess)
		return
	}

	if sess.inMulti {
		sess.queue = append(sess.queue, cmd)
		s.writeSimple(sess, "QUEUED")
		return
	}

	s.runOne(sess, cmd)
}

// execTransaction runs every queued command atomically: since the
// reactor is single-threaded, nothing can interleave between EXEC's
// first and last queued command. Blocking commands inside a
// transaction execute immediately, non-blocking (spec.md §4.6).
func (s *Server) execTransaction(sess *session) {
	if !sess.inMulti {
		s.writeErr(sess, "ERR EXEC without MULTI")
		return
	}
	dirty := sess.dirtyTxn
	queued := sess.queue
	sess.inMulti = false
	sess.dirtyTxn = false
	sess.queue = nil

	if dirty {
		s.writeErr(sess, "EXECABORT Transaction discarded because of previous errors.")
		return
	}

	var w resp.Writer
	w.WriteArrayHeader(len(queued))
	for _, cmd := range queued {
		out := s.Exec.Execute(cmd, sess.token)
		if out.Block != nil {
			// Blocking commands never block inside a transaction.
			w.WriteNullArray()
			continue
		}
		exec.Encode(&w, *out.Reply)
		s.postWakes(out.Wakes)
	}
	sess.conn.Write(w.Buf)
	s.drainBus()
}

func (s *Server) runOne(sess *session, cmd command.Command) {
	out := s.Exec.Execute(cmd, sess.token)
	if out.Block != nil {
		s.Bus.Post(control.Message{Kind: control.Park, Token: sess.token, Block: out.Block})
		s.drainBus()
		return
	}
	var w resp.Writer
	exec.Encode(&w, *out.Reply)
	sess.conn.Write(w.Buf)
	s.postWakes(out.Wakes)
	s.drainBus()
}

func (s *Server) postWakes(wakes []exec.WakeEvent) {
	for _, wake := range wakes {
		reply := wake.Reply
		s.Bus.Post(control.Message{Kind: control.Wake, Token: wake.Token, Reply: &reply})
	}
}

// drainBus applies every control-channel message queued since the last
// drain: Park registers a connection in the blocked registry and marks
// it parked; Wake writes a reply to a previously-parked connection and
// resumes it. Safe to call even when empty.
func (s *Server) drainBus() {
	for _, msg := range s.Bus.Drain() {
		sess, ok := s.byToken[msg.Token]
		if !ok {
			continue
		}
		switch msg.Kind {
		case control.Park:
			s.park(sess, msg.Block)
		case control.Wake:
			sess.parked = false
			var w resp.Writer
			exec.Encode(&w, *msg.Reply)
			sess.conn.Write(w.Buf)
		}
	}
}

func (s *Server) park(sess *session, b *exec.BlockSpec) {
	var deadline *time.Time
	if b.Timeout > 0 {
		at := time.Now().Add(b.Timeout)
		deadline = &at
	}
	var meta any
	if b.Kind == blocked.KindStream {
		meta = map[string]streamlog.Key(b.StreamIDs)
	}
	s.Exec.Blocked.Park(sess.token, b.Keys, b.Kind, deadline, meta)
	sess.parked = true
}

func (s *Server) writeErr(sess *session, msg string) {
	var w resp.Writer
	w.WriteError(strings.TrimPrefix(msg, "-"))
	sess.conn.Write(w.Buf)
}

func (s *Server) writeSimple(sess *session, msg string) {
	var w resp.Writer
	w.WriteSimpleString(msg)
	sess.conn.Write(w.Buf)
}
