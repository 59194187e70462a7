//go:build linux

package server

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// primeListenConfig returns a net.ListenConfig whose Control hook sets
// SO_REUSEADDR (so a restarted server can rebind the well-known port
// immediately) and raises the socket's priority, so inbound request
// datagrams aren't starved under load.
func primeListenConfig() *net.ListenConfig {
	return &net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
					ctrlErr = err
					return
				}
				// socket priority ranges [1-7]; 7 is highest.
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, syscall.SO_PRIORITY, 7)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
}
