// Package chatproto implements the per-connection session state machine: it
// consumes completed frame windows and produces outbound packets, log
// lines, and termination requests, without any knowledge of sockets or
// readiness multiplexing. The transport (see internal/reactor) asks the
// Session what it wants to read next and hands back exactly that many bytes
// once collected — the same pull-based shape smux's stream.Read/waitRead use
// to decouple a stream from whatever is driving its transport.
package chatproto

import (
	"fmt"
	"strings"

	"github.com/aegistudio/chatroom/internal/wire"
)

// State is one of the five states a Session passes through from handshake
// to steady-state chat.
type State int

const (
	AwaitingNameLength State = iota
	AwaitingNameBytes
	AwaitingPacketLength
	AwaitingPacketBytes
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingNameLength:
		return "AwaitingNameLength"
	case AwaitingNameBytes:
		return "AwaitingNameBytes"
	case AwaitingPacketLength:
		return "AwaitingPacketLength"
	case AwaitingPacketBytes:
		return "AwaitingPacketBytes"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Packet ids carried in the 4-byte header of a steady-state packet.
const (
	PacketChat    int32 = 0
	PacketCommand int32 = 1
)

// serverPacketID is the packet id the server always uses for its own
// outbound messages; the client only ever distinguishes id 0.
const serverPacketID int32 = 0

// Capability is the narrow set of operations a Session needs from whatever
// owns the connection registry and broadcast fan-out. internal/reactor's
// serviceHandle is the concrete implementation; every method here is
// expected to run on the single goroutine that owns the registry and
// taken-names set, so this interface carries no concurrency guarantees of
// its own.
type Capability interface {
	// PeerAddress returns the connection's remote address string, for
	// logging and join/leave announcements.
	PeerAddress() string
	// TryRegisterName atomically claims name in the taken-names set,
	// returning false if it is already in use.
	TryRegisterName(name string) bool
	// ListNames returns a snapshot of every currently registered name.
	ListNames() []string
	// Broadcast enqueues frame on every registered connection whose name is
	// not in mute. A nil mute set excludes nobody.
	Broadcast(frame []byte, mute map[string]struct{})
	// SendSelf enqueues frame on this connection only.
	SendSelf(frame []byte)
	// Log writes a best-effort diagnostic line.
	Log(line string)
}

// Session is the per-connection state machine.
type Session struct {
	cap        Capability
	color      Colorizer
	maxPacket  int
	state      State
	want       int
	name       string
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithColorizer overrides the default no-op Colorizer.
func WithColorizer(c Colorizer) Option {
	return func(s *Session) { s.color = c }
}

// WithMaxPacketSize overrides wire.DefaultMaxPacketSize.
func WithMaxPacketSize(n int) Option {
	return func(s *Session) { s.maxPacket = n }
}

// NewSession constructs a Session in its initial AwaitingNameLength state,
// bound to cap for the lifetime of the connection.
func NewSession(cap Capability, opts ...Option) *Session {
	s := &Session{
		cap:       cap,
		color:     PlainColorizer(),
		maxPacket: wire.DefaultMaxPacketSize,
		state:     AwaitingNameLength,
		want:      wire.IntSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Name returns the registered display name, or "" before the handshake
// completes.
func (s *Session) Name() string { return s.name }

// Next announces the size of the next window the transport should fill. A
// returned size of 0 means the session has terminated and the connection
// should be torn down.
func (s *Session) Next() (size int, terminated bool) {
	if s.state == Terminated {
		return 0, true
	}
	return s.want, false
}

// Fill delivers exactly the number of bytes Next most recently requested.
// It drives the state transition table and returns any error that caused
// termination, for logging; the caller must still call Next afterward to
// learn the session terminated.
func (s *Session) Fill(data []byte) error {
	switch s.state {
	case AwaitingNameLength:
		return s.fillNameLength(data)
	case AwaitingNameBytes:
		return s.fillNameBytes(data)
	case AwaitingPacketLength:
		return s.fillPacketLength(data)
	case AwaitingPacketBytes:
		return s.fillPacketBytes(data)
	default:
		return nil
	}
}

func (s *Session) fillNameLength(data []byte) error {
	n, _, err := wire.DecodeInt(data, 0)
	if err != nil {
		s.state = Terminated
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if n <= 0 || int(n) >= wire.MaxNameLength {
		s.state = Terminated
		return fmt.Errorf("%w: length %d", ErrNameInvalid, n)
	}
	s.want = int(n)
	s.state = AwaitingNameBytes
	return nil
}

func (s *Session) fillNameBytes(data []byte) error {
	name := string(data)
	if !s.cap.TryRegisterName(name) {
		s.state = Terminated
		msg := fmt.Sprintf("Sorry but the name %q is already taken. Disconnecting.", name)
		s.cap.SendSelf(EncodeMessage(s.color.Warn(msg)))
		return fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	s.name = name
	s.state = AwaitingPacketLength
	s.want = wire.IntSize

	welcome := fmt.Sprintf("Welcome to the chatroom, %s!", name)
	s.cap.SendSelf(EncodeMessage(s.color.Notice(welcome)))

	joined := fmt.Sprintf("%s has joined from %s.", name, s.cap.PeerAddress())
	s.cap.Broadcast(EncodeMessage(joined), map[string]struct{}{name: {}})
	s.cap.Log(fmt.Sprintf("%s: joined as %q", s.cap.PeerAddress(), name))
	return nil
}

func (s *Session) fillPacketLength(data []byte) error {
	m, _, err := wire.DecodeInt(data, 0)
	if err != nil || m < wire.IntSize || int(m) > s.maxPacket {
		s.state = Terminated
		return fmt.Errorf("%w: packet length %d", ErrProtocolViolation, m)
	}
	s.want = int(m)
	s.state = AwaitingPacketBytes
	return nil
}

func (s *Session) fillPacketBytes(data []byte) error {
	id, off, err := wire.DecodeInt(data, 0)
	if err != nil {
		s.state = Terminated
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	switch id {
	case PacketChat:
		text, _, err := wire.DecodeString(data, off, 0)
		if err != nil {
			s.state = Terminated
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		line := fmt.Sprintf("[%s] %s", s.name, text)
		s.cap.Broadcast(EncodeMessage(line), nil)
	case PacketCommand:
		text, _, err := wire.DecodeString(data, off, 0)
		if err != nil {
			s.state = Terminated
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		s.handleCommand(text)
	default:
		s.state = Terminated
		return fmt.Errorf("%w: packet id %d", ErrProtocolViolation, id)
	}

	s.state = AwaitingPacketLength
	s.want = wire.IntSize
	return nil
}

// splitCommandTokens splits on literal ASCII space only and drops empty
// tokens; tabs and other whitespace are treated as ordinary token
// characters, not separators.
func splitCommandTokens(line string) []string {
	var tokens []string
	start := -1
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' {
			if start >= 0 {
				tokens = append(tokens, line[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, line[start:])
	}
	return tokens
}

func (s *Session) handleCommand(line string) {
	tokens := splitCommandTokens(line)
	if len(tokens) == 0 {
		return
	}

	switch tokens[0] {
	case "online":
		s.cap.SendSelf(EncodeMessage(s.color.Notice(formatOnline(s.cap.ListNames()))))
	case "help":
		s.cap.SendSelf(EncodeMessage(s.color.Notice(helpText)))
	default:
		msg := fmt.Sprintf("Unknown command /%s.", tokens[0])
		s.cap.SendSelf(EncodeMessage(s.color.Warn(msg)))
	}
}

func formatOnline(names []string) string {
	if len(names) == 1 {
		return fmt.Sprintf("There is 1 user online: %s.", names[0])
	}
	return fmt.Sprintf("There are %d users online: %s.", len(names), strings.Join(names, ", "))
}

// EncodeMessage frames a server->client message: a 4-byte packet id of 0
// followed by a length-prefixed string, with no outer total-length prefix.
// This asymmetry versus client->server framing is deliberate and must be
// preserved for interop with the existing client.
func EncodeMessage(msg string) []byte {
	buf := wire.PutInt(nil, serverPacketID)
	return wire.PutString(buf, msg)
}
