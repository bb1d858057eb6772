package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePacket_WireLayout(t *testing.T) {
	hdr := Header{
		Type:          TypeInvited,
		ID:            7,
		Role:          2,
		Size:          5,
		TimestampSec:  0x01020304,
		TimestampNsec: 0x0A0B0C0D,
	}

	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, &hdr, []byte("alice")))

	raw := buf.Bytes()
	require.Len(t, raw, HeaderSize+5)

	assert.Equal(t, byte(TypeInvited), raw[0])
	assert.Equal(t, byte(7), raw[1])
	assert.Equal(t, byte(2), raw[2])
	assert.Equal(t, byte(0), raw[3], "reserved byte")
	assert.Equal(t, []byte{0x00, 0x05}, raw[4:6], "size is big endian")
	assert.Equal(t, []byte{0x00, 0x00}, raw[6:8], "pad bytes")
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, raw[8:12])
	assert.Equal(t, []byte{0x0A, 0x0B, 0x0C, 0x0D}, raw[12:16])
	assert.Equal(t, "alice", string(raw[16:]))
}

func TestWritePacket_SizeMismatch(t *testing.T) {
	var buf bytes.Buffer
	hdr := Header{Type: TypeAck, Size: 3}
	assert.Error(t, WritePacket(&buf, &hdr, []byte("toolong")))
	assert.Zero(t, buf.Len(), "nothing written on a malformed packet")
}

func TestReadPacket_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		hdr     Header
		payload []byte
	}{
		{
			name:    "with payload",
			hdr:     Header{Type: TypeLogin, Size: 5},
			payload: []byte("alice"),
		},
		{
			name: "no payload",
			hdr:  Header{Type: TypeResign, ID: 3},
		},
		{
			name:    "max id and role",
			hdr:     Header{Type: TypeEnded, ID: 255, Role: 2, Size: 1},
			payload: []byte("x"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WritePacket(&buf, &tt.hdr, tt.payload))

			got, payload, err := ReadPacket(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.hdr, got)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestReadPacket_CleanEOF(t *testing.T) {
	_, _, err := ReadPacket(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err, "EOF before the first byte is the clean-close signal")
}

func TestReadPacket_TruncatedHeader(t *testing.T) {
	_, _, err := ReadPacket(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err, "a torn header is a protocol error, not a clean close")
}

func TestReadPacket_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	hdr := Header{Type: TypeMove, Size: 4}
	require.NoError(t, WritePacket(&buf, &hdr, []byte("1234")))

	torn := buf.Bytes()[:HeaderSize+2]
	_, _, err := ReadPacket(bytes.NewReader(torn))
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestReadPacketBuf_ReusesBuffer(t *testing.T) {
	var buf bytes.Buffer
	hdr := Header{Type: TypeUsers, Size: 3}
	require.NoError(t, WritePacket(&buf, &hdr, []byte("abc")))

	scratch := make([]byte, 0, 64)
	_, payload, err := ReadPacketBuf(&buf, scratch)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(payload))
	assert.Same(t, &scratch[:1][0], &payload[0], "payload should alias the scratch buffer")
}

func TestStamp_Monotonic(t *testing.T) {
	var a, b Header
	a.Stamp()
	b.Stamp()

	before := uint64(a.TimestampSec)*1e9 + uint64(a.TimestampNsec)
	after := uint64(b.TimestampSec)*1e9 + uint64(b.TimestampNsec)
	assert.LessOrEqual(t, before, after)
}

func FuzzReadPacket(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{1, 2, 3})
	f.Add(make([]byte, HeaderSize))

	var valid bytes.Buffer
	hdr := Header{Type: TypeLogin, Size: 5}
	if err := WritePacket(&valid, &hdr, []byte("alice")); err != nil {
		f.Fatal(err)
	}
	f.Add(valid.Bytes())

	// A header promising more payload than the stream carries.
	torn := append([]byte(nil), valid.Bytes()...)
	torn[5] = 0xFF
	f.Add(torn)

	f.Fuzz(func(t *testing.T, data []byte) {
		hdr, payload, err := ReadPacket(bytes.NewReader(data))
		if err != nil {
			return
		}
		if int(hdr.Size) != len(payload) {
			t.Fatalf("decoded size %d but payload is %d bytes", hdr.Size, len(payload))
		}
	})
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "LOGIN", TypeLogin.String())
	assert.Equal(t, "ENDED", TypeEnded.String())
	assert.Equal(t, "UNKNOWN", Type(200).String())
}
