package tftp

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"
)

// Conn is a single TFTP transport endpoint: one UDP socket bound to one
// local port. A listening Conn (created by Listen) accepts requests from
// any peer; a connected Conn (created by Dial, or by the server spawning
// a worker) remembers exactly one peer address -- its Transfer
// Identifier -- and is used for the lifetime of one transfer.
type Conn struct {
	c    *net.UDPConn
	peer netip.AddrPort
	have bool
}

// Dial opens an ephemeral local UDP socket for a client-side transfer.
// The peer is not yet "known" in the TID sense -- SetPeer must be called
// once the first reply is observed, per spec §4.4.
func Dial(network, address string) (*Conn, error) {
	if !strings.Contains(network, "udp") {
		return nil, fmt.Errorf("tftp: protocol runs only over udp, got %q", network)
	}
	raddr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, err
	}
	local, err := net.ResolveUDPAddr(network, ":0")
	if err != nil {
		return nil, err
	}
	c, err := net.ListenUDP(network, local)
	if err != nil {
		return nil, err
	}
	conn := &Conn{c: c}
	conn.peer = raddr.AddrPort()
	return conn, nil
}

// Listen announces a listening socket on address, typically the
// well-known TFTP port. The returned Conn has no peer; call ReadFrom
// in a loop to accept incoming RRQ/WRQ packets.
func Listen(network, address string) (*Conn, error) {
	return ListenConfig(context.Background(), &net.ListenConfig{}, network, address)
}

// ListenConfig is Listen with caller control over the socket, so platform
// priming (SO_REUSEADDR, SO_PRIORITY) can be applied via cfg.Control.
func ListenConfig(ctx context.Context, cfg *net.ListenConfig, network, address string) (*Conn, error) {
	if !strings.Contains(network, "udp") {
		return nil, fmt.Errorf("tftp: protocol runs only over udp, got %q", network)
	}
	pc, err := cfg.ListenPacket(ctx, network, address)
	if err != nil {
		return nil, err
	}
	uc, ok := pc.(*net.UDPConn)
	if !ok {
		return nil, fmt.Errorf("tftp: expected a UDP socket, got %T", pc)
	}
	return &Conn{c: uc}, nil
}

// NewWorkerConn binds a fresh ephemeral UDP socket for network on the
// wildcard local address, to serve as a server worker's TID for the
// remainder of one transfer (spec §4.5 step 1).
func NewWorkerConn(network string) (*Conn, error) {
	local, err := net.ResolveUDPAddr(network, ":0")
	if err != nil {
		return nil, err
	}
	c, err := net.ListenUDP(network, local)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

// LocalAddr returns the local address of the socket.
func (c *Conn) LocalAddr() net.Addr { return c.c.LocalAddr() }

// Peer returns the remembered peer TID and whether one has been set.
func (c *Conn) Peer() (netip.AddrPort, bool) { return c.peer, c.have }

// SetPeer fixes addr as this Conn's peer TID for the rest of the
// session.
func (c *Conn) SetPeer(addr netip.AddrPort) {
	c.peer = addr
	c.have = true
}

// Send writes b to c.peer: the dial target before the TID is pinned, or
// the pinned peer afterward. Dial and NewWorkerConn+SetPeer both leave
// c.peer populated before a session ever calls Send; have only gates
// recv's validation of *incoming* datagrams, not this outgoing address.
func (c *Conn) Send(b []byte) error {
	if c.peer == (netip.AddrPort{}) {
		return fmt.Errorf("tftp: send with no peer set")
	}
	_, err := c.c.WriteToUDPAddrPort(b, c.peer)
	return err
}

// SendTo writes b to an arbitrary address, used for the client's initial
// request and for ERROR replies to a TID intruder.
func (c *Conn) SendTo(b []byte, addr netip.AddrPort) error {
	_, err := c.c.WriteToUDPAddrPort(b, addr)
	return err
}

// RecvTimeout waits up to timeout for one datagram, returning its payload
// and sender address. It performs no TID filtering; callers that care
// about TID discipline (the transfer engine) apply it themselves.
func (c *Conn) RecvTimeout(buf []byte, timeout time.Duration) (int, netip.AddrPort, error) {
	if err := c.c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, netip.AddrPort{}, err
	}
	n, addr, err := c.c.ReadFromUDPAddrPort(buf)
	return n, addr, err
}

// ReadFrom waits indefinitely for one datagram, returning its payload
// and sender address. It is used only by the server dispatcher's
// well-known-port listener, which has no per-packet deadline of its
// own -- request timing is governed entirely by each spawned worker's
// Conn instead.
func (c *Conn) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	return c.c.ReadFromUDPAddrPort(buf)
}

// Close releases the underlying socket.
func (c *Conn) Close() error { return c.c.Close() }

// isTimeout reports whether err is a network timeout, as opposed to a
// hard failure.
func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
