package arena

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arenad/arenad/internal/player"
	"github.com/arenad/arenad/internal/protocol"
)

// fakeConn is an in-memory net.Conn half for unit tests: writes are captured
// for later decoding, reads always report EOF.
type fakeConn struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	closed     bool
	readClosed bool
}

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

func (c *fakeConn) Read(p []byte) (int, error) { return 0, net.ErrClosed }

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.buf.Write(p)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) CloseRead() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readClosed = true
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr                { return fakeAddr("local") }
func (c *fakeConn) RemoteAddr() net.Addr               { return fakeAddr("remote") }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) isReadClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readClosed
}

// sent is one decoded outbound packet.
type sent struct {
	Type    protocol.Type
	ID      uint8
	Role    uint8
	Payload string
}

// takePackets decodes and drains everything written to the conn so far.
func (c *fakeConn) takePackets(t *testing.T) []sent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []sent
	for c.buf.Len() > 0 {
		hdr, payload, err := protocol.ReadPacket(&c.buf)
		require.NoError(t, err)
		out = append(out, sent{Type: hdr.Type, ID: hdr.ID, Role: hdr.Role, Payload: string(payload)})
	}
	return out
}

// loggedInPair builds a registry with two sessions logged in as alice and bob.
func loggedInPair(t *testing.T) (*Registry, *Session, *fakeConn, *Session, *fakeConn) {
	t.Helper()
	r := NewRegistry(4, player.NewRegistry())

	ca, cb := &fakeConn{}, &fakeConn{}
	a, err := r.Register(ca)
	require.NoError(t, err)
	b, err := r.Register(cb)
	require.NoError(t, err)

	require.NoError(t, a.Login(r.players.Register("alice")))
	require.NoError(t, b.Login(r.players.Register("bob")))
	return r, a, ca, b, cb
}
