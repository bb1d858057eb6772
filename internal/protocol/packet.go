package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// HeaderSize is the fixed size of a packet header on the wire.
const HeaderSize = 16

// MaxPayloadSize is the largest payload a single packet can carry,
// bounded by the 16-bit size field.
const MaxPayloadSize = 1<<16 - 1

// Header is the fixed-size packet header. Multi-byte fields are host order
// in memory; the codec converts to network byte order at the wire boundary.
//
// Wire layout (16 bytes):
//
//	[0]     type
//	[1]     id
//	[2]     role
//	[3]     reserved
//	[4:6]   size (big endian)
//	[6:8]   reserved
//	[8:12]  timestamp seconds (big endian)
//	[12:16] timestamp nanoseconds (big endian)
type Header struct {
	Type          Type
	ID            uint8
	Role          uint8
	Size          uint16
	TimestampSec  uint32
	TimestampNsec uint32
}

var startTime = time.Now()

// Stamp sets the header timestamp from the monotonic clock.
func (h *Header) Stamp() {
	d := time.Since(startTime)
	h.TimestampSec = uint32(d / time.Second)
	h.TimestampNsec = uint32(d % time.Second)
}

func (h *Header) marshal(buf *[HeaderSize]byte) {
	buf[0] = byte(h.Type)
	buf[1] = h.ID
	buf[2] = h.Role
	buf[3] = 0
	binary.BigEndian.PutUint16(buf[4:6], h.Size)
	buf[6], buf[7] = 0, 0
	binary.BigEndian.PutUint32(buf[8:12], h.TimestampSec)
	binary.BigEndian.PutUint32(buf[12:16], h.TimestampNsec)
}

func (h *Header) unmarshal(buf *[HeaderSize]byte) {
	h.Type = Type(buf[0])
	h.ID = buf[1]
	h.Role = buf[2]
	h.Size = binary.BigEndian.Uint16(buf[4:6])
	h.TimestampSec = binary.BigEndian.Uint32(buf[8:12])
	h.TimestampNsec = binary.BigEndian.Uint32(buf[12:16])
}

// WritePacket writes one framed packet to w: the 16-byte header followed by
// the payload when there is one. hdr.Size must equal len(payload).
func WritePacket(w io.Writer, hdr *Header, payload []byte) error {
	if int(hdr.Size) != len(payload) {
		return fmt.Errorf("write packet: header size %d does not match payload %d", hdr.Size, len(payload))
	}

	var buf [HeaderSize]byte
	hdr.marshal(&buf)

	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("writing packet header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("writing packet payload: %w", err)
		}
	}
	return nil
}

// ReadPacket reads one framed packet from r. The returned payload is nil
// when the packet carries none; ownership of the slice passes to the caller.
//
// A connection closed before the first header byte returns io.EOF unwrapped
// so the caller can distinguish a clean close from a truncated frame.
func ReadPacket(r io.Reader) (Header, []byte, error) {
	return ReadPacketBuf(r, nil)
}

// ReadPacketBuf is ReadPacket with a caller-supplied payload buffer. The
// returned payload aliases buf when buf has the capacity, so it is only
// valid until the caller reuses buf; a payload too large for buf is
// allocated fresh.
func ReadPacketBuf(r io.Reader, buf []byte) (Header, []byte, error) {
	var hbuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hbuf[:]); err != nil {
		if err == io.EOF {
			return Header{}, nil, io.EOF
		}
		return Header{}, nil, fmt.Errorf("reading packet header: %w", err)
	}

	var hdr Header
	hdr.unmarshal(&hbuf)

	if hdr.Size == 0 {
		return hdr, nil, nil
	}

	var payload []byte
	if cap(buf) >= int(hdr.Size) {
		payload = buf[:hdr.Size]
	} else {
		payload = make([]byte, hdr.Size)
	}
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, fmt.Errorf("reading packet payload: %w", err)
	}
	return hdr, payload, nil
}
