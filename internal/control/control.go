// Package control implements the same-goroutine message queue the
// executor uses to ask the reactor to park a connection or wake one.
// Grounded on original_source's server/event_loop_handle.rs
// EventLoopMessage enum and event_loop.rs's process_messages drain
// loop; because this server's reactor runs with a single event loop,
// every producer and consumer of these messages already share one
// goroutine, so a plain in-memory slice queue replaces the original's mio
// Waker + mpsc::Receiver pairing (see SPEC_FULL.md §0). MULTI/EXEC/
// DISCARD are instead handled entirely by the reactor's own
// per-connection state machine, since they never need to cross a
// goroutine boundary.
package control

import "github.com/kvsrv/redisd/internal/exec"

// Kind identifies a Message's meaning.
type Kind int

const (
	Park Kind = iota
	Wake
)

// Message is one control-channel event.
type Message struct {
	Kind  Kind
	Token uint64 // connection this message concerns

	// Park
	Block *exec.BlockSpec

	// Wake
	Reply *exec.Reply
}

// Bus is a same-goroutine queue: the reactor posts the park and wake
// requests the executor returns for a command, then drains the bus
// after that dispatch. It is an unbounded slice, since posts and drains
// happen on the same goroutine and never block each other.
type Bus struct {
	queue []Message
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Post enqueues msg.
func (b *Bus) Post(msg Message) {
	b.queue = append(b.queue, msg)
}

// Drain removes and returns every queued message, in order.
func (b *Bus) Drain() []Message {
	if len(b.queue) == 0 {
		return nil
	}
	out := b.queue
	b.queue = nil
	return out
}
