// Package reactor implements the event-loop dispatcher: it owns the listen
// socket, the connection registry, and the taken-names set, and mediates
// accept/read/write/teardown for every live connection.
//
// A single-threaded reactor would multiplex readiness over one poll/select
// call. Go's networking stack does not expose raw readiness multiplexing
// below net.Conn (the runtime netpoller already sits there), so this keeps
// the single-owner invariant literally instead: exactly one actor goroutine
// (Reactor.Run) ever touches the registry or the taken-names set, fed by
// per-connection reader/writer goroutines that only ever talk to it over
// channels or through a Conn's own mutex-guarded outbox. See DESIGN.md.
package reactor

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/aegistudio/chatroom/internal/bufpool"
	"github.com/aegistudio/chatroom/internal/chatproto"
	"github.com/aegistudio/chatroom/internal/chatstats"
)

// Options configures a Reactor.
type Options struct {
	Logger        *log.Logger
	Colorizer     chatproto.Colorizer
	MaxPacketSize int
	Quiet         bool
	// Stats, if non-nil, is updated with connection/name/broadcast counters
	// as the reactor runs.
	Stats *chatstats.Counters
}

// frameEvent is a completed inbound window, reported by a connection's
// reader goroutine and processed exactly once by the actor goroutine.
type frameEvent struct {
	id    handle
	data  []byte
	reply chan windowReply
}

type windowReply struct {
	size       int
	terminated bool
}

// acceptEvent carries a freshly accepted socket to the actor goroutine.
type acceptEvent struct {
	nc net.Conn
}

// Reactor is the program's top-level loop. It exposes no public operations
// of its own beyond Run.
type Reactor struct {
	listener net.Listener
	logger   *log.Logger
	color    chatproto.Colorizer
	maxPkt   int
	quiet    bool
	stats    *chatstats.Counters

	acceptCh   chan acceptEvent
	frameCh    chan frameEvent
	teardownCh chan handle
	doneCh     chan struct{}

	// state below is touched only by the actor goroutine (Run).
	nextID   handle
	registry map[handle]*Conn
	names    map[string]struct{}
}

// New constructs a Reactor bound to an already-listening socket. Listener
// construction itself is a separate collaborator; see internal/netsetup for
// the concrete factory wired in by cmd/chatroomd.
func New(l net.Listener, opts Options) *Reactor {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	color := opts.Colorizer
	if color == nil {
		color = chatproto.PlainColorizer()
	}
	return &Reactor{
		listener:   l,
		logger:     logger,
		color:      color,
		maxPkt:     opts.MaxPacketSize,
		quiet:      opts.Quiet,
		stats:      opts.Stats,
		acceptCh:   make(chan acceptEvent),
		frameCh:    make(chan frameEvent),
		teardownCh: make(chan handle),
		doneCh:     make(chan struct{}),
		registry:   make(map[handle]*Conn),
		names:      make(map[string]struct{}),
	}
}

// Run drives the reactor until ctx is cancelled, then returns ctx.Err(); it
// never returns nil. Accept errors are logged and accepting continues, so
// a failing listener does not end Run.
func (r *Reactor) Run(ctx context.Context) error {
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		r.acceptLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			r.listener.Close()
			r.shutdownAll()
			close(r.doneCh)
			<-acceptDone
			return ctx.Err()
		case ev := <-r.acceptCh:
			r.handleAccept(ev.nc)
		case ev := <-r.frameCh:
			r.handleFrame(ev)
		case id := <-r.teardownCh:
			r.teardown(id)
		}
	}
}

// acceptLoop is the only goroutine that calls Accept; every socket it
// receives is handed to the actor goroutine before any further setup so
// that registry insertion happens on the single owning goroutine.
func (r *Reactor) acceptLoop(ctx context.Context) {
	for {
		nc, err := r.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			r.logger.Printf("accept: %v", err)
			continue
		}
		select {
		case r.acceptCh <- acceptEvent{nc: nc}:
		case <-ctx.Done():
			nc.Close()
			return
		}
	}
}

func (r *Reactor) handleAccept(nc net.Conn) {
	id := r.nextID
	r.nextID++

	conn := newConn(id, nc)
	svc := &serviceHandle{r: r, conn: conn}
	conn.session = chatproto.NewSession(svc,
		chatproto.WithColorizer(r.color),
		chatproto.WithMaxPacketSize(r.maxPkt))

	r.registry[id] = conn
	if r.stats != nil {
		r.stats.ConnectionsAccepted.Add(1)
	}

	size, terminated := conn.session.Next()
	if terminated || size == 0 {
		nc.Close()
		return
	}

	go conn.readLoop(r, size)
	go conn.writeLoop(r)
}

// handleFrame processes one completed window on behalf of whichever
// connection reported it, synchronously on the actor goroutine — this is
// where Broadcast/TryRegisterName calls land, so they never race with any
// other connection's dispatch.
func (r *Reactor) handleFrame(ev frameEvent) {
	conn, ok := r.registry[ev.id]
	if !ok {
		ev.reply <- windowReply{terminated: true}
		return
	}

	if err := conn.session.Fill(ev.data); err != nil {
		r.logger.Printf("%s: %v", conn.addr, err)
	}

	size, terminated := conn.session.Next()
	ev.reply <- windowReply{size: size, terminated: terminated}

	if terminated {
		r.teardown(ev.id)
	}
}

// teardown closes the socket, frees queued outbound chunks, removes any
// registered name, and removes the Connection from the registry. It is
// idempotent: a teardown request for a handle that is no longer in the
// registry does nothing.
func (r *Reactor) teardown(id handle) {
	conn, ok := r.registry[id]
	if !ok {
		return
	}
	delete(r.registry, id)

	if name := conn.session.Name(); name != "" {
		delete(r.names, name)
		if r.stats != nil {
			r.stats.UsersOnline.Add(-1)
		}
		r.broadcastLocked(chatproto.EncodeMessage(fmt.Sprintf("%s has left.", name)), nil)
	}

	conn.out.close()
	conn.nc.Close()
}

func (r *Reactor) shutdownAll() {
	for id := range r.registry {
		r.teardown(id)
	}
}

// broadcastLocked enqueues frame on every registered connection not in
// mute. It must only be called from the actor goroutine.
func (r *Reactor) broadcastLocked(frame []byte, mute map[string]struct{}) {
	for _, conn := range r.registry {
		name := conn.session.Name()
		if name == "" {
			// unregistered peers never receive broadcasts.
			continue
		}
		if _, muted := mute[name]; muted {
			continue
		}
		conn.out.enqueue(frame)
		if r.stats != nil {
			r.stats.MessagesRelayed.Add(1)
			r.stats.BytesBroadcast.Add(int64(len(frame)))
		}
	}
}

// readLoop pumps inbound bytes for one connection: a pure I/O loop with no
// shared state of its own, reporting completed windows to the actor
// goroutine and blocking for its verdict before reading again.
func (c *Conn) readLoop(r *Reactor, initialSize int) {
	size := initialSize
	for {
		if size == 0 {
			r.requestTeardown(c.id)
			return
		}
		buf := bufpool.Get(size)
		if _, err := io.ReadFull(c.nc, *buf); err != nil {
			bufpool.Put(buf)
			r.requestTeardown(c.id)
			return
		}

		reply := make(chan windowReply, 1)
		select {
		case r.frameCh <- frameEvent{id: c.id, data: *buf, reply: reply}:
		case <-r.doneCh:
			bufpool.Put(buf)
			return
		}
		wr := <-reply
		bufpool.Put(buf)

		if wr.terminated {
			return
		}
		size = wr.size
	}
}

// writeLoop drains one connection's outbox, blocking on the socket write;
// see the outbox doc comment for why this differs from a non-blocking
// poll-driven drain while preserving the same delivery guarantees. A write
// error stops this loop but does not tear the connection down: that is left
// to the reader's next failure or a protocol violation.
func (c *Conn) writeLoop(r *Reactor) {
	for {
		chunk, ok := c.out.dequeue()
		if !ok {
			return
		}
		if _, err := c.nc.Write(chunk); err != nil {
			return
		}
	}
}

// requestTeardown reports a dead connection to the actor goroutine, or
// gives up silently if the reactor has already shut down (in which case
// every connection was already torn down by shutdownAll).
func (r *Reactor) requestTeardown(id handle) {
	select {
	case r.teardownCh <- id:
	case <-r.doneCh:
	}
}
