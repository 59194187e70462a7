package tftp

import (
	"fmt"
	"io"
	"net"
	"net/netip"

	"github.com/tftp-go/tftpd/internal/tracelog"
)

// ClientOptionRequest is the set of options a client driver may offer on
// its RRQ/WRQ. A zero value requests nothing; Kind fields are only
// consulted when their corresponding bool is true.
type ClientOptionRequest struct {
	Blksize     int
	HaveBlksize bool
	Timeout     int
	HaveTimeout bool
	Tsize       int
	HaveTsize   bool
}

func (r ClientOptionRequest) toRequestOptions() ([]RequestOption, map[OptionKind]bool) {
	var opts []RequestOption
	requested := make(map[OptionKind]bool)
	if r.HaveBlksize {
		opts = append(opts, RequestOption{Name: Blksize, Value: optionValueString(r.Blksize)})
		requested[Blksize] = true
	}
	if r.HaveTimeout {
		opts = append(opts, RequestOption{Name: Timeout, Value: optionValueString(r.Timeout)})
		requested[Timeout] = true
	}
	if r.HaveTsize {
		opts = append(opts, RequestOption{Name: Tsize, Value: optionValueString(r.Tsize)})
		requested[Tsize] = true
	}
	return opts, requested
}

// Get performs a client-initiated read (RRQ): it fetches remoteFile from
// host:port in mode, writing the transferred bytes to dst. dst is
// wrapped so the transfer engine can drive it exactly like a local
// FileBuffer. log may be nil to disable packet tracing.
func Get(network, host string, port int, remoteFile, mode string, dst io.Writer, opts ClientOptionRequest, log *tracelog.Logger) error {
	server, err := resolveServer(network, host, port)
	if err != nil {
		return err
	}
	conn, err := Dial(network, server.String())
	if err != nil {
		return err
	}
	defer conn.Close()

	buf := NewFileBuffer()
	buf.WithRequest(Wrq, mode, nopReadWriteCloser{Writer: dst})

	reqOpts, requested := opts.toRequestOptions()
	req := &ReadWriteRequest{Opcode: Rrq, Filename: remoteFile, Mode: mode, Options: reqOpts}
	wire, err := EncodePacket(req)
	if err != nil {
		return err
	}
	if log != nil {
		local, _ := netip.ParseAddrPort(conn.LocalAddr().String())
		log.TraceRequest("RRQ", local, remoteFile, mode, traceOptsFrom(reqOpts))
	}

	s := NewTransferSession(conn, buf).SetLogger(log)
	if err := s.ClientRead(wire, requested); err != nil {
		buf.Close()
		return err
	}
	return buf.Close()
}

// Put performs a client-initiated write (WRQ): it sends src to host:port
// as remoteFile in mode. log may be nil to disable packet tracing.
func Put(network, host string, port int, remoteFile, mode string, src io.Reader, opts ClientOptionRequest, log *tracelog.Logger) error {
	server, err := resolveServer(network, host, port)
	if err != nil {
		return err
	}
	conn, err := Dial(network, server.String())
	if err != nil {
		return err
	}
	defer conn.Close()

	buf := NewFileBuffer()
	buf.WithRequest(Rrq, mode, nopReadWriteCloser{Reader: src})

	reqOpts, requested := opts.toRequestOptions()
	req := &ReadWriteRequest{Opcode: Wrq, Filename: remoteFile, Mode: mode, Options: reqOpts}
	wire, err := EncodePacket(req)
	if err != nil {
		return err
	}
	if log != nil {
		local, _ := netip.ParseAddrPort(conn.LocalAddr().String())
		log.TraceRequest("WRQ", local, remoteFile, mode, traceOptsFrom(reqOpts))
	}

	s := NewTransferSession(conn, buf).SetLogger(log)
	if err := s.ClientWrite(wire, requested); err != nil {
		buf.Close()
		return err
	}
	return buf.Close()
}

// nopReadWriteCloser adapts a bare io.Reader or io.Writer (standard
// input/output, typically) to the io.ReadWriteCloser FileBuffer expects,
// with Close a no-op: the client driver owns the lifetime of os.Stdin /
// os.Stdout, not the transfer engine. Only one of Reader/Writer is ever
// set by a given caller, matching the single direction FileBuffer
// actually exercises for Rrq versus Wrq.
type nopReadWriteCloser struct {
	io.Reader
	io.Writer
}

func (nopReadWriteCloser) Close() error { return nil }

// resolveServer resolves host and port to a
// UDP address, accepting both IPv4 literals and resolvable hostnames
// per spec §6.
func resolveServer(network, host string, port int) (netip.AddrPort, error) {
	addr, err := net.ResolveUDPAddr(network, fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addr.AddrPort(), nil
}
