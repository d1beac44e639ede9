package reactor

import (
	"net"
	"sync"

	"github.com/aegistudio/chatroom/internal/chatproto"
)

// handle is the stable key the registry uses for a live connection. A
// socket descriptor would serve the same purpose in a runtime that exposed
// one directly; Go does not, so a monotonically increasing counter owned by
// the reactor's actor goroutine plays the same role.
type handle uint64

// outbox is the per-connection backpressure queue: a FIFO of owned byte
// chunks, mutated only through Conn's own methods. Rather than a
// non-blocking poll-driven drain, the queue here is drained by a dedicated
// writer goroutine that blocks on the socket write; this still gives every
// property a backpressure queue needs (FIFO order, no silent drops,
// eventual delivery once the peer starts reading again) without simulating
// EAGAIN, which Go's net.Conn does not expose. See DESIGN.md.
type outbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
}

func newOutbox() *outbox {
	o := &outbox{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// enqueue clones b and appends it to the queue. It never blocks the caller
// and never reports a write error back to it.
func (o *outbox) enqueue(b []byte) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	o.queue = append(o.queue, cp)
	o.mu.Unlock()
	o.cond.Signal()
}

// dequeue blocks until a chunk is available or the outbox is closed.
func (o *outbox) dequeue() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.queue) == 0 && !o.closed {
		o.cond.Wait()
	}
	if len(o.queue) == 0 {
		return nil, false
	}
	b := o.queue[0]
	o.queue = o.queue[1:]
	return b, true
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cond.Broadcast()
}

// Conn is the per-connection runtime record: exclusive owner of its socket,
// its Session, and its outbound queue. Its inbound buffer is borrowed from
// internal/bufpool for the duration of one window rather than stored
// permanently, since the reader goroutine is the only thing that ever
// touches it.
type Conn struct {
	id      handle
	nc      net.Conn
	addr    string
	session *chatproto.Session
	out     *outbox

	// writeOffset tracks partial progress through the head chunk; since a
	// successful blocking net.Conn.Write always consumes a whole chunk or
	// fails outright, it is always 0 between drain attempts here. See
	// DESIGN.md.
	writeOffset int
}

func newConn(id handle, nc net.Conn) *Conn {
	return &Conn{
		id:   id,
		nc:   nc,
		addr: nc.RemoteAddr().String(),
		out:  newOutbox(),
	}
}
