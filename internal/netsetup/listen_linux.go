//go:build linux
// +build linux

package netsetup

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenPlatform binds with SO_REUSEADDR explicitly set before bind, using a
// net.ListenConfig.Control hook so the reused-address option is in effect
// before the bind syscall runs.
func listenPlatform(addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return setErr
		},
	}
	return lc.Listen(context.Background(), "tcp", addr)
}
