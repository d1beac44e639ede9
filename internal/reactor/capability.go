package reactor

import "github.com/aegistudio/chatroom/internal/chatproto"

// serviceHandle is the concrete implementation of chatproto.Capability
// handed to a Session at construction time. Every method here runs on the
// reactor's single actor goroutine (it is only ever called from inside
// Session.Fill, which Reactor.handleFrame calls directly), so it reaches
// into Reactor's registry/taken-names state without any locking of its own.
// It is a narrow capability parameterized by the current connection handle,
// which avoids any raw back-pointer cycle between Session, Reactor, and
// Conn.
type serviceHandle struct {
	r    *Reactor
	conn *Conn
}

var _ chatproto.Capability = (*serviceHandle)(nil)

func (s *serviceHandle) PeerAddress() string { return s.conn.addr }

func (s *serviceHandle) TryRegisterName(name string) bool {
	if _, taken := s.r.names[name]; taken {
		if s.r.stats != nil {
			s.r.stats.NamesRejected.Add(1)
		}
		return false
	}
	s.r.names[name] = struct{}{}
	if s.r.stats != nil {
		s.r.stats.UsersOnline.Add(1)
	}
	return true
}

func (s *serviceHandle) ListNames() []string {
	names := make([]string, 0, len(s.r.names))
	for n := range s.r.names {
		names = append(names, n)
	}
	return names
}

func (s *serviceHandle) Broadcast(frame []byte, mute map[string]struct{}) {
	s.r.broadcastLocked(frame, mute)
}

func (s *serviceHandle) SendSelf(frame []byte) {
	s.conn.out.enqueue(frame)
}

func (s *serviceHandle) Log(line string) {
	if s.r.quiet {
		return
	}
	s.r.logger.Printf("%s: %s", s.conn.addr, line)
}
