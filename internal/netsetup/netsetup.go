// Package netsetup produces the daemon's listening socket: a bound,
// listening, SO_REUSEADDR socket, or one of the setup errors the CLI maps to
// an exit code, split between a generic and a Linux-specific listener
// constructor.
package netsetup

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// DefaultBacklog is used when the CLI's optional backlog argument is
// omitted.
const DefaultBacklog = 10

// Listen binds 0.0.0.0:port and starts listening.
//
// Go's net package does not expose a portable knob for the listen(2)
// backlog below net.Listen, so backlog is only validated here (a
// non-positive value is an error) and is not passed to the kernel; the
// kernel's own default backlog governs.
func Listen(port int, backlog int) (net.Listener, error) {
	if backlog <= 0 {
		return nil, errors.New("backlog must be positive")
	}
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	l, err := listenPlatform(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	return l, nil
}
