package tftp

import (
	"bytes"
	"testing"
)

func TestReadWriteRequestMarshal(t *testing.T) {
	tests := []struct {
		name     string
		req      ReadWriteRequest
		expected []byte
	}{
		{
			name: "simple read request",
			req: ReadWriteRequest{
				Opcode:   Rrq,
				Filename: "testfile.txt",
				Mode:     "octet",
			},
			expected: []byte{0, 1, 't', 'e', 's', 't', 'f', 'i', 'l', 'e', '.', 't', 'x', 't', 0, 'o', 'c', 't', 'e', 't', 0},
		},
		{
			name: "write request with options",
			req: ReadWriteRequest{
				Opcode:   Wrq,
				Filename: "outfile.bin",
				Mode:     "octet",
				Options: []RequestOption{
					{Name: Blksize, Value: "1024"},
					{Name: Timeout, Value: "5"},
				},
			},
			expected: []byte{0, 2, 'o', 'u', 't', 'f', 'i', 'l', 'e', '.', 'b', 'i', 'n', 0, 'o', 'c', 't', 'e', 't', 0,
				'b', 'l', 'k', 's', 'i', 'z', 'e', 0, '1', '0', '2', '4', 0, 't', 'i', 'm', 'e', 'o', 'u', 't', 0, '5', 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.req.marshal()
			if err != nil {
				t.Fatalf("marshal error: %v", err)
			}
			if !bytes.Equal(data, tt.expected) {
				t.Errorf("marshal failed:\nexpected %v\ngot      %v", tt.expected, data)
			}

			got, err := DecodePacket(data)
			if err != nil {
				t.Fatalf("decode error: %v", err)
			}
			req, ok := got.(*ReadWriteRequest)
			if !ok {
				t.Fatalf("decode returned %T, want *ReadWriteRequest", got)
			}
			if req.Filename != tt.req.Filename {
				t.Errorf("filename: got %q want %q", req.Filename, tt.req.Filename)
			}
			if req.Mode != tt.req.Mode {
				t.Errorf("mode: got %q want %q", req.Mode, tt.req.Mode)
			}
			if len(req.Options) != len(tt.req.Options) {
				t.Fatalf("options count: got %d want %d", len(req.Options), len(tt.req.Options))
			}
			for i, opt := range tt.req.Options {
				if req.Options[i] != opt {
					t.Errorf("option %d: got %+v want %+v", i, req.Options[i], opt)
				}
			}
		})
	}
}

func TestReadWriteRequestMalformed(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
	}{
		{"too short", []byte{0, 1}},
		{"missing mode terminator", []byte{0, 1, 'a', 0, 'o', 'c', 't', 'e', 't'}},
		{"only filename", []byte{0, 1, 'a', 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePacket(tt.b); err == nil {
				t.Errorf("expected decode error for %v", tt.b)
			}
		})
	}
}

func TestReadWriteRequestDuplicateOption(t *testing.T) {
	b := []byte{0, 1, 'a', 0, 'o', 'c', 't', 'e', 't', 0}
	b = append(b, []byte("blksize\x00512\x00blksize\x001024\x00")...)
	if _, err := DecodePacket(b); err == nil {
		t.Errorf("expected ErrDuplicateOption, got nil")
	}
}

func TestReadWriteRequestUnknownOptionIgnored(t *testing.T) {
	b := []byte{0, 1, 'a', 0, 'o', 'c', 't', 'e', 't', 0}
	b = append(b, []byte("multicast\x00foo\x00")...)
	p, err := DecodePacket(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	req := p.(*ReadWriteRequest)
	if len(req.Options) != 0 {
		t.Errorf("expected unknown option to be dropped, got %+v", req.Options)
	}
}

func TestDataPacketRoundTrip(t *testing.T) {
	testData := "tftp data packet test data"
	tests := []struct {
		name     string
		packet   DataPacket
		wireLen  int
	}{
		{
			name:    "empty data packet",
			packet:  DataPacket{Opcode: Data, BlockNumber: 42, Payload: []byte{}},
			wireLen: 4,
		},
		{
			name:    "data packet with content",
			packet:  DataPacket{Opcode: Data, BlockNumber: 42, Payload: []byte(testData)},
			wireLen: 4 + len(testData),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.packet.marshal()
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if len(data) != tt.wireLen {
				t.Errorf("wire length: got %d want %d", len(data), tt.wireLen)
			}

			got, err := DecodePacket(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			dp := got.(*DataPacket)
			if dp.BlockNumber != tt.packet.BlockNumber {
				t.Errorf("block number: got %d want %d", dp.BlockNumber, tt.packet.BlockNumber)
			}
			if !bytes.Equal(dp.Payload, tt.packet.Payload) {
				t.Errorf("payload: got %v want %v", dp.Payload, tt.packet.Payload)
			}
		})
	}
}

func TestErrorPacketRoundTrip(t *testing.T) {
	p := &ErrorPacket{Opcode: Error, ErrorCode: FileNotFound, Message: "File not found"}
	expected := []byte{0, 5, 0, 1, 'F', 'i', 'l', 'e', ' ', 'n', 'o', 't', ' ', 'f', 'o', 'u', 'n', 'd', 0}

	data, err := p.marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(data, expected) {
		t.Errorf("marshal: got %v want %v", data, expected)
	}

	got, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ep := got.(*ErrorPacket)
	if ep.ErrorCode != p.ErrorCode {
		t.Errorf("error code: got %d want %d", ep.ErrorCode, p.ErrorCode)
	}
	if ep.Message != p.Message {
		t.Errorf("message: got %q want %q", ep.Message, p.Message)
	}
}

func TestErrorPacketOutOfRangeCodeMapsToUndefined(t *testing.T) {
	b := []byte{0, 5, 0, 99, 'x', 0}
	got, err := DecodePacket(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ep := got.(*ErrorPacket)
	if ep.ErrorCode != Undefined {
		t.Errorf("error code: got %d want Undefined", ep.ErrorCode)
	}
}

func TestAckPacketRoundTrip(t *testing.T) {
	p := &AckPacket{Opcode: Ack, BlockNumber: 42}
	expected := []byte{0, 4, 0, 42}

	data, err := p.marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(data, expected) {
		t.Errorf("marshal: got %v want %v", data, expected)
	}

	got, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ap := got.(*AckPacket)
	if ap.BlockNumber != p.BlockNumber {
		t.Errorf("block number: got %d want %d", ap.BlockNumber, p.BlockNumber)
	}
}

func TestOAckPacketRoundTrip(t *testing.T) {
	p := &OAckPacket{
		Opcode: OAck,
		Options: []RequestOption{
			{Name: Blksize, Value: "1024"},
			{Name: Timeout, Value: "5"},
		},
	}

	data, err := p.marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	oa := got.(*OAckPacket)
	if len(oa.Options) != len(p.Options) {
		t.Fatalf("options count: got %d want %d", len(oa.Options), len(p.Options))
	}
	for i, opt := range p.Options {
		if oa.Options[i] != opt {
			t.Errorf("option %d: got %+v want %+v", i, oa.Options[i], opt)
		}
	}
}

func TestDecodePacketUnknownOpcode(t *testing.T) {
	if _, err := DecodePacket([]byte{0, 99}); err != ErrMalformedOpcode {
		t.Errorf("got %v, want ErrMalformedOpcode", err)
	}
}

func TestEncodePacketNil(t *testing.T) {
	if _, err := EncodePacket(nil); err == nil {
		t.Errorf("expected error encoding a nil packet")
	}
}
