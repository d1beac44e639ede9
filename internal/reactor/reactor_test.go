package reactor

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/aegistudio/chatroom/internal/chatstats"
)

// startReactor boots a Reactor on a loopback listener and returns its dial
// address, plus a cancel func that shuts it down and waits for Run to exit.
func startReactor(t *testing.T, stats *chatstats.Counters) (addr string, stop func()) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	r := New(l, Options{MaxPacketSize: 1 << 16, Quiet: true, Stats: stats})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	return l.Addr().String(), func() {
		cancel()
		<-done
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func leU32(n int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(n))
	return b
}

func join(name string) []byte {
	return append(leU32(int32(len(name))), []byte(name)...)
}

// packet builds a client->server steady packet: total length, id, payload.
func packet(id int32, payload string) []byte {
	body := append(leU32(id), append(leU32(int32(len(payload))), []byte(payload)...)...)
	return append(leU32(int32(len(body))), body...)
}

// readServerLine reads one server->client packet: id (unframed) then a
// length-prefixed string, and returns the decoded string.
func readServerLine(t *testing.T, c net.Conn) string {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))

	hdr := make([]byte, 8)
	if _, err := readFull(c, hdr); err != nil {
		t.Fatalf("read server packet header: %v", err)
	}
	id := int32(binary.LittleEndian.Uint32(hdr[0:4]))
	if id != 0 {
		t.Fatalf("unexpected server packet id %d", id)
	}
	n := binary.LittleEndian.Uint32(hdr[4:8])
	payload := make([]byte, n)
	if _, err := readFull(c, payload); err != nil {
		t.Fatalf("read server packet payload: %v", err)
	}
	return string(payload)
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TestSingleUserChatToSelf verifies a lone client's own chat message comes
// back addressed to itself.
func TestSingleUserChatToSelf(t *testing.T) {
	addr, stop := startReactor(t, nil)
	defer stop()

	c := dial(t, addr)
	defer c.Close()

	if _, err := c.Write(join("Alice")); err != nil {
		t.Fatalf("write name: %v", err)
	}
	welcome := readServerLine(t, c)
	if !strings.Contains(welcome, "Alice") {
		t.Fatalf("welcome line missing name: %q", welcome)
	}

	if _, err := c.Write(packet(0, "hi")); err != nil {
		t.Fatalf("write chat: %v", err)
	}
	chat := readServerLine(t, c)
	if !strings.HasSuffix(chat, "] hi") {
		t.Fatalf("chat echo %q does not end with '] hi'", chat)
	}
}

// TestDuplicateNameRejected verifies the second claimant of a name is
// rejected and disconnected.
func TestDuplicateNameRejected(t *testing.T) {
	addr, stop := startReactor(t, nil)
	defer stop()

	first := dial(t, addr)
	defer first.Close()
	if _, err := first.Write(join("Bob")); err != nil {
		t.Fatalf("write first name: %v", err)
	}
	readServerLine(t, first) // welcome

	second := dial(t, addr)
	defer second.Close()
	if _, err := second.Write(join("Bob")); err != nil {
		t.Fatalf("write second name: %v", err)
	}
	rejection := readServerLine(t, second)
	if !strings.HasPrefix(rejection, "Sorry but") || !strings.Contains(rejection, "Bob") {
		t.Fatalf("unexpected rejection line %q", rejection)
	}

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := second.Read(buf); err == nil {
		t.Fatalf("expected socket to be closed after rejection")
	}
}

// TestOnlineCommandListsNames verifies /online replies only to the caller
// with every connected name.
func TestOnlineCommandListsNames(t *testing.T) {
	addr, stop := startReactor(t, nil)
	defer stop()

	ada := dial(t, addr)
	defer ada.Close()
	ada.Write(join("Ada"))
	readServerLine(t, ada)

	lin := dial(t, addr)
	defer lin.Close()
	lin.Write(join("Lin"))
	readServerLine(t, lin)
	readServerLine(t, ada) // join announcement for Lin

	ada.Write(packet(1, "online"))
	reply := readServerLine(t, ada)
	if !strings.Contains(reply, "Ada") || !strings.Contains(reply, "Lin") {
		t.Fatalf("online reply missing a name: %q", reply)
	}

	lin.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 1)
	if _, err := lin.Read(buf); err == nil {
		t.Fatalf("Lin should not receive a reply to Ada's command")
	}
}

// TestLeaveAnnouncement verifies the remaining peer sees a departure
// notice naming the connection that just closed.
func TestLeaveAnnouncement(t *testing.T) {
	addr, stop := startReactor(t, nil)
	defer stop()

	cad := dial(t, addr)
	cad.Write(join("Cad"))
	readServerLine(t, cad)

	dex := dial(t, addr)
	defer dex.Close()
	dex.Write(join("Dex"))
	readServerLine(t, dex)
	readServerLine(t, cad) // join announcement for Dex

	cad.Close()

	leave := readServerLine(t, dex)
	if !strings.Contains(leave, "has left") || !strings.Contains(leave, "Cad") {
		t.Fatalf("unexpected leave line %q", leave)
	}
}

// TestOversizedNameClosesWithoutRegistering verifies a name length beyond
// the configured limit closes the connection before any name is claimed.
func TestOversizedNameClosesWithoutRegistering(t *testing.T) {
	addr, stop := startReactor(t, nil)
	defer stop()

	bad := dial(t, addr)
	defer bad.Close()
	if _, err := bad.Write(leU32(100)); err != nil {
		t.Fatalf("write oversized length: %v", err)
	}

	bad.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := bad.Read(buf); err == nil {
		t.Fatalf("expected connection to be closed for an oversized name")
	}

	// A second client may now claim any name, proving the rejected name was
	// never added to the taken-names set.
	other := dial(t, addr)
	defer other.Close()
	other.Write(join("Anyone"))
	welcome := readServerLine(t, other)
	if !strings.Contains(welcome, "Anyone") {
		t.Fatalf("expected a normal welcome, got %q", welcome)
	}
}

// TestBackpressureDeliversInOrder verifies a slow reader eventually sees
// every broadcast chat line, in order, once it starts draining again.
func TestBackpressureDeliversInOrder(t *testing.T) {
	addr, stop := startReactor(t, nil)
	defer stop()

	slow := dial(t, addr)
	defer slow.Close()
	slow.Write(join("Slow"))
	readServerLine(t, slow)

	fast := dial(t, addr)
	defer fast.Close()
	fast.Write(join("Fast"))
	readServerLine(t, fast)
	readServerLine(t, slow) // join announcement for Fast

	const n = 50
	for i := 0; i < n; i++ {
		if _, err := fast.Write(packet(0, fmt.Sprintf("msg %d", i))); err != nil {
			t.Fatalf("write chat %d: %v", i, err)
		}
		readServerLine(t, fast) // fast sees its own echo immediately
	}

	// Slow only starts reading now; every queued line must still arrive, in
	// order, with none dropped.
	for i := 0; i < n; i++ {
		line := readServerLine(t, slow)
		if !strings.HasSuffix(line, fmt.Sprintf("] msg %d", i)) {
			t.Fatalf("message %d missing or out of order: %q", i, line)
		}
	}
}

// TestStatsCountersUpdate exercises the supplemented stats wiring.
func TestStatsCountersUpdate(t *testing.T) {
	stats := &chatstats.Counters{}
	addr, stop := startReactor(t, stats)
	defer stop()

	c := dial(t, addr)
	defer c.Close()
	c.Write(join("Gauge"))
	readServerLine(t, c)

	c.Write(packet(0, "ping"))
	readServerLine(t, c)

	if got := stats.ConnectionsAccepted.Load(); got != 1 {
		t.Fatalf("ConnectionsAccepted = %d, want 1", got)
	}
	if got := stats.UsersOnline.Load(); got != 1 {
		t.Fatalf("UsersOnline = %d, want 1", got)
	}
	if got := stats.MessagesRelayed.Load(); got != 1 {
		t.Fatalf("MessagesRelayed = %d, want 1", got)
	}
	if got := stats.BytesBroadcast.Load(); got == 0 {
		t.Fatalf("BytesBroadcast should be non-zero")
	}
}
