//go:build !linux && !darwin

package server

import "net"

// primeListenConfig on other platforms applies no special socket
// options; the server still runs, just without the reuse/priority
// tuning the linux and darwin variants apply.
func primeListenConfig() *net.ListenConfig {
	return &net.ListenConfig{}
}
