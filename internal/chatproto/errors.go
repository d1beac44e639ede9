package chatproto

import "errors"

// Sentinel error kinds a Session can terminate with. Io and AcceptFailed are
// reported by internal/reactor directly; the remaining kinds originate
// inside the Session FSM and are wrapped with fmt.Errorf("%w: ...", kind)
// for context.
var (
	ErrProtocolViolation = errors.New("chatproto: protocol violation")
	ErrNameTaken         = errors.New("chatproto: name already taken")
	ErrNameInvalid       = errors.New("chatproto: invalid name")
)
