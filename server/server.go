// Package server implements the TFTP server dispatcher (spec §4.5): a
// single well-known-port listener that decodes each inbound RRQ/WRQ,
// spawns a fresh ephemeral-port worker Conn to serve it, and continues
// accepting while that worker's transfer runs to completion in its own
// goroutine.
package server

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"

	tftp "github.com/tftp-go/tftpd"
	"github.com/tftp-go/tftpd/internal/config"
	"github.com/tftp-go/tftpd/internal/tracelog"
)

// Server is the TFTP server dispatcher.
type Server struct {
	listener *tftp.Conn
	opts     *config.ServerOpts
	root     string
	log      *tracelog.Logger
	refuse   map[tftp.OptionKind]bool
}

// New validates root and binds the listening socket at opts.Address.
func New(opts *config.ServerOpts, root string, log *tracelog.Logger) (*Server, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("tftpd: root directory %q: %w", root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("tftpd: root path %q is not a directory", root)
	}
	d, err := os.Open(root)
	if err != nil {
		return nil, fmt.Errorf("tftpd: root directory %q is not readable: %w", root, err)
	}
	d.Close()

	listener, err := tftp.ListenConfig(context.Background(), primeListenConfig(), "udp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("tftpd: listen on %s: %w", opts.Address, err)
	}

	return &Server{
		listener: listener,
		opts:     opts,
		root:     root,
		log:      log,
		refuse:   parseRefuse(opts.Refuse),
	}, nil
}

func parseRefuse(s string) map[tftp.OptionKind]bool {
	out := make(map[tftp.OptionKind]bool)
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if name := s[start:i]; name != "" {
				out[tftp.ParseOptionKind(name)] = true
			}
			start = i + 1
		}
	}
	return out
}

// Start accepts requests until the listener errors (typically because
// it was closed), spawning a goroutine per request.
func (s *Server) Start() error {
	for {
		buf := make([]byte, 65464+64)
		n, addr, err := s.listener.ReadFrom(buf)
		if err != nil {
			return err
		}
		go s.handle(addr, buf[:n])
	}
}

// Close shuts down the listening socket; in-flight workers are
// unaffected since each owns its own socket.
func (s *Server) Close() error { return s.listener.Close() }

// Addr returns the listening socket's local address, so a caller that
// bound to an ephemeral port (address "127.0.0.1:0", typically in
// tests) can discover the port the dispatcher is actually reachable on.
func (s *Server) Addr() net.Addr { return s.listener.LocalAddr() }

func (s *Server) handle(addr netip.AddrPort, raw []byte) {
	p, err := tftp.DecodePacket(raw)
	if err != nil {
		s.log.Verbose(s.opts.Verbose, "malformed datagram from %s: %v", addr, err)
		s.sendError(addr, tftp.IllegalOperation, "malformed request")
		return
	}

	req, ok := p.(*tftp.ReadWriteRequest)
	if !ok {
		s.log.Verbose(s.opts.Verbose, "unexpected opcode from %s before a request", addr)
		s.sendError(addr, tftp.IllegalOperation, "expected a read or write request")
		return
	}

	kind := "RRQ"
	if req.Opcode == tftp.Wrq {
		kind = "WRQ"
	}
	s.log.TraceRequest(kind, addr, req.Filename, req.Mode, traceOpts(req.Options))
	s.log.Dump(req)

	worker, err := tftp.NewWorkerConn("udp")
	if err != nil {
		s.log.Error("spawn worker for %s: %v", addr, err)
		return
	}
	worker.SetPeer(addr)

	policy := tftp.ServerOptionPolicy{BlksizeCeiling: s.opts.BlockSize, Refuse: s.refuse}
	accepted := tftp.NegotiateRequestOptions(req.Options, policy)

	w := &workerConn{Conn: worker, req: req, accepted: accepted, log: s.log}
	buf, code, msg, err := w.open(s.root, s.opts.Create)
	if err != nil {
		s.log.Error("open %q for %s: %v", req.Filename, addr, err)
		s.sendErrorVia(worker, addr, code, msg)
		worker.Close()
		return
	}
	w.buf = buf

	if err := w.serve(); err != nil {
		s.log.Error("%s %q from %s: %v", kind, req.Filename, addr, err)
	} else {
		s.log.Verbose(s.opts.Verbose, "%s %q from %s complete", kind, req.Filename, addr)
	}
	worker.Close()
}

func (s *Server) sendError(addr netip.AddrPort, code tftp.ErrorCode, msg string) {
	s.sendErrorVia(s.listener, addr, code, msg)
}

func (s *Server) sendErrorVia(conn *tftp.Conn, addr netip.AddrPort, code tftp.ErrorCode, msg string) {
	b, err := tftp.EncodePacket(&tftp.ErrorPacket{Opcode: tftp.Error, ErrorCode: code, Message: msg})
	if err != nil {
		return
	}
	_ = conn.SendTo(b, addr)
	s.log.TraceError(addr, 0, uint16(code), msg)
}

func traceOpts(opts []tftp.RequestOption) []tracelog.TraceOpt {
	out := make([]tracelog.TraceOpt, len(opts))
	for i, o := range opts {
		out[i] = tracelog.TraceOpt{Name: o.Name.String(), Value: o.Value}
	}
	return out
}
