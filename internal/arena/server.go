package arena

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arenad/arenad/internal/config"
	"github.com/arenad/arenad/internal/player"
	"github.com/arenad/arenad/internal/protocol"
)

// Server accepts client connections and runs one service loop per
// connection until the context is cancelled, then shuts down without
// leaking connections, goroutines or in-flight games: the listener closes,
// every live session's read half is shut down, and the server waits on the
// registry's empty barrier before returning.
type Server struct {
	cfg      config.Server
	port     int
	players  *player.Registry
	clients  *Registry
	handler  *Handler
	readPool *BytePool

	listener net.Listener
	mu       sync.Mutex
}

// NewServer creates a match server listening on port when run.
func NewServer(cfg config.Server, port int) *Server {
	players := player.NewRegistry()
	clients := NewRegistry(cfg.MaxClients, players)
	return &Server{
		cfg:      cfg,
		port:     port,
		players:  players,
		clients:  clients,
		handler:  NewHandler(clients, players),
		readPool: NewBytePool(defaultReadBufSize),
	}
}

// Clients returns the live-session registry.
func (s *Server) Clients() *Registry { return s.clients }

// Players returns the persistent player registry.
func (s *Server) Players() *player.Registry { return s.players }

// Addr returns the address the server is listening on, nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run binds the listening socket and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections on a ready listener until ctx is cancelled,
// then performs the graceful shutdown choreography. Split from Run so
// tests can serve on an arbitrary listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("server listening", "address", ln.Addr(), "max_clients", s.cfg.MaxClients)

	var g errgroup.Group
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("accept failed", "err", err)
			continue
		}
		g.Go(func() error {
			s.serveConn(conn)
			return nil
		})
	}

	// Listener is closed: force EOF on every service loop and wait for
	// the registry to drain before letting the goroutines join.
	s.clients.ShutdownAll()
	s.clients.WaitForEmpty()
	_ = g.Wait()

	slog.Info("server stopped", "players_seen", s.players.Len())
	return nil
}

// serveConn registers the connection and runs its service loop: decode a
// request, dispatch it, repeat until EOF or a protocol error. On the way
// out a logged-in session is logged out first, so its peers receive the
// same notifications the client's own revoke/decline/resign requests would
// have produced.
func (s *Server) serveConn(conn net.Conn) {
	sess, err := s.clients.Register(conn)
	if err != nil {
		// Registry full: close without sending anything.
		slog.Warn("connection refused", "remote", conn.RemoteAddr(), "err", err)
		conn.Close()
		return
	}
	slog.Info("client connected", "session", sess.ID(), "remote", conn.RemoteAddr())

	defer func() {
		if err := sess.Logout(); err != nil && !errors.Is(err, ErrNotLoggedIn) {
			slog.Warn("logout on disconnect failed", "session", sess.ID(), "err", err)
		}
		s.clients.Unregister(sess)
		conn.Close()
		slog.Info("client disconnected", "session", sess.ID())
	}()

	buf := s.readPool.Get(defaultReadBufSize)
	defer s.readPool.Put(buf)

	for {
		hdr, payload, err := protocol.ReadPacketBuf(conn, buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("connection read failed", "session", sess.ID(), "err", err)
			}
			return
		}
		slog.Debug("request received",
			"session", sess.ID(), "type", hdr.Type, "id", hdr.ID, "role", hdr.Role, "size", hdr.Size)
		s.handler.Handle(sess, hdr, payload)
	}
}
