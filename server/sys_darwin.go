//go:build darwin

package server

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// primeListenConfig returns a net.ListenConfig whose Control hook sets
// SO_REUSEADDR. Darwin has no SO_PRIORITY equivalent worth setting here.
func primeListenConfig() *net.ListenConfig {
	return &net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
}
