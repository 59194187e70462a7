package tftp

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/tftp-go/tftpd/internal/tracelog"
)

// maxRetries is the fixed cap on consecutive timeouts with no progress
// before a session gives up, per spec §4.4.
const maxRetries = 5

// ErrRetriesExhausted is the underlying cause wrapped into the ERROR(0)
// packet a session sends when maxRetries consecutive timeouts occur.
var ErrRetriesExhausted = errors.New("tftp: retransmission limit exceeded")

// ErrOutOfOrder is returned when a DATA block number is neither the
// expected next block nor a duplicate of the last one.
var ErrOutOfOrder = errors.New("tftp: out-of-order data block")

// errTimeoutSentinel distinguishes a clean per-attempt timeout (caller
// should retransmit) from a hard transport error.
var errTimeoutSentinel = errors.New("tftp: receive timeout")

// TransferSession drives one direction of one file transfer end to end:
// the stop-and-wait DATA/ACK loop, block-number bookkeeping, option
// handshake, and TID protection. It is component D, the transfer engine.
// One instance serves exactly one transfer and is discarded afterward.
type TransferSession struct {
	conn *Conn
	buf  *FileBuffer

	blksize int
	timeout time.Duration

	rxbuf []byte

	// log receives the fixed-format per-packet trace line (spec §6) for
	// every DATA/ACK/OACK/ERROR this session sends or receives. nil
	// disables tracing.
	log *tracelog.Logger
}

// SetLogger attaches l as the session's packet tracer and returns s, so
// it can be chained onto NewTransferSession.
func (s *TransferSession) SetLogger(l *tracelog.Logger) *TransferSession {
	s.log = l
	return s
}

func (s *TransferSession) traceOut(p Packet) {
	if s.log == nil {
		return
	}
	local, _ := netip.ParseAddrPort(s.conn.LocalAddr().String())
	peer, _ := s.conn.Peer()
	s.traceAt(p, local, peer.Port())
}

func (s *TransferSession) traceIn(p Packet) {
	if s.log == nil {
		return
	}
	peer, _ := s.conn.Peer()
	local, _ := netip.ParseAddrPort(s.conn.LocalAddr().String())
	s.traceAt(p, peer, local.Port())
	s.log.Dump(p)
}

func (s *TransferSession) traceAt(p Packet, src netip.AddrPort, dstPort uint16) {
	switch v := p.(type) {
	case *DataPacket:
		s.log.TraceData(src, dstPort, v.BlockNumber)
	case *AckPacket:
		s.log.TraceAck(src, v.BlockNumber)
	case *OAckPacket:
		s.log.TraceOAck(src, traceOptsFrom(v.Options))
	case *ErrorPacket:
		s.log.TraceError(src, dstPort, uint16(v.ErrorCode), v.Message)
	}
}

func traceOptsFrom(opts []RequestOption) []tracelog.TraceOpt {
	out := make([]tracelog.TraceOpt, len(opts))
	for i, o := range opts {
		out[i] = tracelog.TraceOpt{Name: o.Name.String(), Value: o.Value}
	}
	return out
}

// NewTransferSession builds an engine instance bound to conn and buf. The
// session starts with the default blksize and timeout; ApplyOptions
// replaces them once options are negotiated.
func NewTransferSession(conn *Conn, buf *FileBuffer) *TransferSession {
	return &TransferSession{
		conn:    conn,
		buf:     buf,
		blksize: DefaultBlksize,
		timeout: DefaultTimeoutSeconds * time.Second,
		// sized for the largest legal blksize regardless of what's
		// negotiated, so no reallocation is needed mid-session.
		rxbuf: make([]byte, 65464+64),
	}
}

// ApplyOptions fixes the session's effective blksize and timeout from a
// negotiated option table. Per spec §3, these are then constant for the
// session's lifetime.
func (s *TransferSession) ApplyOptions(opts *OptionTable) {
	s.blksize = opts.Effective(Blksize)
	s.timeout = time.Duration(opts.Effective(Timeout)) * time.Second
}

func (s *TransferSession) sendErrorTo(addr netip.AddrPort, code ErrorCode, msg string) {
	b, err := EncodePacket(newError(code, msg))
	if err != nil {
		return
	}
	_ = s.conn.SendTo(b, addr)
}

func (s *TransferSession) sendError(code ErrorCode, msg string) error {
	b, err := EncodePacket(newError(code, msg))
	if err != nil {
		return err
	}
	return s.conn.Send(b)
}

// recv waits up to s.timeout for a packet from the remembered peer,
// discovering the peer on first use if one is not yet set, and replying
// ERROR 5 to -- then ignoring -- any datagram from anyone else (spec
// §4.4 TID discipline).
func (s *TransferSession) recv() ([]byte, error) {
	deadline := time.Now().Add(s.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errTimeoutSentinel
		}
		n, addr, err := s.conn.RecvTimeout(s.rxbuf, remaining)
		if err != nil {
			if isTimeout(err) {
				return nil, errTimeoutSentinel
			}
			return nil, err
		}
		if peer, have := s.conn.Peer(); have {
			if addr != peer {
				s.sendErrorTo(addr, UnknownTID, "unknown transfer ID")
				continue
			}
		} else {
			s.conn.SetPeer(addr)
		}
		return s.rxbuf[:n], nil
	}
}

// sendAndAwait sends payload then waits for a reply, retransmitting
// payload after each timeout and giving up on the maxRetries-th
// consecutive timeout (so payload goes out maxRetries times in all).
func (s *TransferSession) sendAndAwait(payload []byte) ([]byte, error) {
	if err := s.conn.Send(payload); err != nil {
		return nil, err
	}
	for attempt := 0; ; {
		reply, err := s.recv()
		if err == nil {
			return reply, nil
		}
		if err != errTimeoutSentinel {
			return nil, err
		}
		attempt++
		if attempt >= maxRetries {
			_ = s.sendError(Undefined, "retransmission limit exceeded")
			return nil, ErrRetriesExhausted
		}
		if err := s.conn.Send(payload); err != nil {
			return nil, err
		}
	}
}

// awaitData sends trigger, then waits for a DATA packet, retransmitting
// trigger on each timeout and silently discarding any ACK that arrives
// meanwhile (the peer's own handshake acknowledgement, directed at the
// OACK rather than at us). Used by the reader role on both sides (the
// client after its ACK 0 to an OACK, the server after its OACK or plain
// ACK 0) and by awaitNextData for every later block.
func (s *TransferSession) awaitData(trigger []byte) (*DataPacket, error) {
	if err := s.conn.Send(trigger); err != nil {
		return nil, err
	}
	for attempt := 0; ; {
		raw, err := s.recv()
		if err != nil {
			if err != errTimeoutSentinel {
				return nil, err
			}
			attempt++
			if attempt >= maxRetries {
				_ = s.sendError(Undefined, "retransmission limit exceeded")
				return nil, ErrRetriesExhausted
			}
			if err := s.conn.Send(trigger); err != nil {
				return nil, err
			}
			continue
		}

		p, err := DecodePacket(raw)
		if err != nil {
			continue // malformed stray datagram, ignore
		}
		switch v := p.(type) {
		case *DataPacket:
			s.traceIn(v)
			return v, nil
		case *ErrorPacket:
			s.traceIn(v)
			return nil, v
		default:
			// e.g. the peer's own ACK 0 to our OACK: not meant for us.
			continue
		}
	}
}

// buildOAck renders an OptionTable's accepted options as an OACK packet
// in first-requested order.
func buildOAck(opts *OptionTable) *OAckPacket {
	return &OAckPacket{Opcode: OAck, Options: opts.IterAccepted()}
}

func decodeAck(b []byte) (*AckPacket, error) {
	p, err := DecodePacket(b)
	if err != nil {
		return nil, err
	}
	switch v := p.(type) {
	case *AckPacket:
		return v, nil
	case *ErrorPacket:
		return nil, v
	default:
		return nil, fmt.Errorf("tftp: expected ACK, got %s", v.opcode())
	}
}

// decodeAckTraced is decodeAck plus a trace line for the decoded packet;
// used at the steady-state loop sites where s is in scope.
func (s *TransferSession) decodeAckTraced(b []byte) (*AckPacket, error) {
	ack, err := decodeAck(b)
	if ack != nil {
		s.traceIn(ack)
	} else if ep, ok := err.(*ErrorPacket); ok {
		s.traceIn(ep)
	}
	return ack, err
}

func (s *TransferSession) expectAck(b []byte, want uint16) (*AckPacket, error) {
	ack, err := decodeAck(b)
	if err != nil {
		if ep, ok := err.(*ErrorPacket); ok {
			return nil, ep
		}
		return nil, err
	}
	if ack.BlockNumber != want {
		_ = s.sendError(IllegalOperation, "unexpected ack block number")
		return nil, fmt.Errorf("tftp: expected ack %d, got %d", want, ack.BlockNumber)
	}
	return ack, nil
}

// ClientRead drives a client-initiated read (GET): it sends requestWire
// (an encoded RRQ), negotiates options if offered, and runs the reader
// loop to completion. requestedOpts names the option kinds the client
// itself asked for, so an OACK naming anything else is ignored (spec
// §4.2/§9).
func (s *TransferSession) ClientRead(requestWire []byte, requestedOpts map[OptionKind]bool) error {
	reply, err := s.sendAndAwait(requestWire)
	if err != nil {
		return err
	}
	p, err := DecodePacket(reply)
	if err != nil {
		return err
	}
	s.traceIn(p)

	switch v := p.(type) {
	case *ErrorPacket:
		return v
	case *OAckPacket:
		accepted := optionTableFromOAck(v.Options, requestedOpts)
		s.ApplyOptions(accepted)
		ack0 := &AckPacket{Opcode: Ack, BlockNumber: 0}
		ack0Wire, err := EncodePacket(ack0)
		if err != nil {
			return err
		}
		s.traceOut(ack0)
		first, err := s.awaitData(ack0Wire)
		if err != nil {
			return err
		}
		return s.readLoop(first)
	case *DataPacket:
		if v.BlockNumber != 1 {
			_ = s.sendError(Undefined, "expected first data block")
			return ErrOutOfOrder
		}
		return s.readLoop(v)
	default:
		_ = s.sendError(IllegalOperation, "unexpected reply to read request")
		return fmt.Errorf("tftp: unexpected reply opcode %s", p.opcode())
	}
}

// ClientWrite drives a client-initiated write (PUT): it sends
// requestWire (an encoded WRQ), negotiates options if offered, and runs
// the writer loop to completion.
func (s *TransferSession) ClientWrite(requestWire []byte, requestedOpts map[OptionKind]bool) error {
	reply, err := s.sendAndAwait(requestWire)
	if err != nil {
		return err
	}
	p, err := DecodePacket(reply)
	if err != nil {
		return err
	}
	s.traceIn(p)

	switch v := p.(type) {
	case *ErrorPacket:
		return v
	case *OAckPacket:
		accepted := optionTableFromOAck(v.Options, requestedOpts)
		s.ApplyOptions(accepted)
		// the writer acknowledges the OACK but does not wait on it
		// before sending data (spec §4.4 step 3).
		ack0 := &AckPacket{Opcode: Ack, BlockNumber: 0}
		ack0Wire, err := EncodePacket(ack0)
		if err != nil {
			return err
		}
		s.traceOut(ack0)
		if err := s.conn.Send(ack0Wire); err != nil {
			return err
		}
		return s.writeLoop(1)
	case *AckPacket:
		if v.BlockNumber != 0 {
			_ = s.sendError(Undefined, "expected ack 0")
			return fmt.Errorf("tftp: expected ack 0, got %d", v.BlockNumber)
		}
		return s.writeLoop(1)
	default:
		_ = s.sendError(IllegalOperation, "unexpected reply to write request")
		return fmt.Errorf("tftp: unexpected reply opcode %s", p.opcode())
	}
}

// ServeRead drives the server side of an RRQ: the server is the writer.
// accepted holds whatever subset of the client's requested options the
// server chose to honor; an empty table sends DATA 1 immediately with no
// handshake, exactly as a plain RFC 1350 exchange would.
func (s *TransferSession) ServeRead(accepted *OptionTable) error {
	if len(accepted.IterAccepted()) > 0 {
		s.ApplyOptions(accepted)
		oack := buildOAck(accepted)
		oackWire, err := EncodePacket(oack)
		if err != nil {
			return err
		}
		s.traceOut(oack)
		reply, err := s.sendAndAwait(oackWire)
		if err != nil {
			return err
		}
		ack, err := s.expectAck(reply, 0)
		if err != nil {
			return err
		}
		s.traceIn(ack)
	}
	return s.writeLoop(1)
}

// ServeWrite drives the server side of a WRQ: the server is the reader.
// It must explicitly permit the client to start sending -- with a plain
// ACK 0 if no options were accepted, or an OACK otherwise -- before DATA
// 1 can arrive.
func (s *TransferSession) ServeWrite(accepted *OptionTable) error {
	var trigger []byte
	var err error
	if len(accepted.IterAccepted()) > 0 {
		s.ApplyOptions(accepted)
		oack := buildOAck(accepted)
		trigger, err = EncodePacket(oack)
		if err == nil {
			s.traceOut(oack)
		}
	} else {
		ack0 := &AckPacket{Opcode: Ack, BlockNumber: 0}
		trigger, err = EncodePacket(ack0)
		if err == nil {
			s.traceOut(ack0)
		}
	}
	if err != nil {
		return err
	}
	first, err := s.awaitData(trigger)
	if err != nil {
		return err
	}
	if first.BlockNumber != 1 {
		_ = s.sendError(Undefined, "expected first data block")
		return ErrOutOfOrder
	}
	return s.readLoop(first)
}

// writeLoop sends DATA blocks starting at startBlock, awaiting and
// retransmitting until a short block's ACK closes the transfer.
func (s *TransferSession) writeLoop(startBlock uint16) error {
	block := startBlock
	for {
		payload, err := s.buf.ReadBlock(s.blksize)
		if err != nil {
			_ = s.sendError(Undefined, err.Error())
			return err
		}
		terminal := len(payload) < s.blksize

		dp := &DataPacket{Opcode: Data, BlockNumber: block, Payload: payload}
		wire, err := EncodePacket(dp)
		if err != nil {
			return err
		}
		s.traceOut(dp)

		reply, err := s.sendAndAwait(wire)
		if err != nil {
			return err
		}

		for {
			ack, err := s.decodeAckTraced(reply)
			if err != nil {
				if ep, ok := err.(*ErrorPacket); ok {
					return ep
				}
				return err
			}
			if ack.BlockNumber == block {
				break
			}
			// a stray ack for an earlier block (spec §4.4, "MAY
			// ignore") is dropped; a genuine timeout still falls back
			// to the normal retransmit path.
			reply, err = s.recv()
			if err != nil {
				if err == errTimeoutSentinel {
					reply, err = s.sendAndAwait(wire)
					if err != nil {
						return err
					}
					continue
				}
				return err
			}
		}

		if terminal {
			return nil
		}
		block++
	}
}

// readLoop appends and acknowledges DATA blocks starting with first
// (already known to carry block number 1), until a short block is
// acknowledged.
func (s *TransferSession) readLoop(first *DataPacket) error {
	block := first.BlockNumber
	data := first

	for {
		if err := s.buf.Append(data.Payload); err != nil {
			_ = s.sendError(DiskFull, err.Error())
			return err
		}
		terminal := len(data.Payload) < s.blksize

		ap := &AckPacket{Opcode: Ack, BlockNumber: block}
		ackWire, err := EncodePacket(ap)
		if err != nil {
			return err
		}
		s.traceOut(ap)
		if terminal {
			// fire-and-forget: the transfer is complete from this
			// side regardless of whether the peer's retransmitted
			// DATA ever reaches us again (spec §4.4 step 3).
			return s.conn.Send(ackWire)
		}

		want := block + 1
		next, err := s.awaitNextData(ackWire, want)
		if err != nil {
			return err
		}
		block = want
		data = next
	}
}

// awaitNextData sends ackWire (acknowledging the previous block),
// retransmitting it on timeout, until either the expected next block
// arrives or a duplicate of the previous block arrives (which is
// re-acked without being re-appended, per spec §8's duplicate-ACK
// property). An out-of-order block terminates the session.
func (s *TransferSession) awaitNextData(ackWire []byte, want uint16) (*DataPacket, error) {
	last := ackWire
	for {
		data, err := s.awaitData(last)
		if err != nil {
			return nil, err
		}
		switch data.BlockNumber {
		case want:
			return data, nil
		case want - 1:
			// the next awaitData call sends dup before waiting again.
			dup, err := EncodePacket(&AckPacket{Opcode: Ack, BlockNumber: data.BlockNumber})
			if err != nil {
				return nil, err
			}
			last = dup
			continue
		default:
			_ = s.sendError(Undefined, "out of order data block")
			return nil, ErrOutOfOrder
		}
	}
}
