package arena

import (
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/arenad/arenad/internal/player"
)

// DefaultMaxClients is the registry capacity when the configuration does
// not say otherwise.
const DefaultMaxClients = 64

var (
	// ErrRegistryFull reports that a new connection cannot be registered;
	// the acceptor closes such connections without sending anything.
	ErrRegistryFull = errors.New("client registry full")
	// ErrDraining rejects registrations that race with ShutdownAll.
	ErrDraining = errors.New("client registry shutting down")
)

// Registry is the bounded set of live sessions. It assigns session IDs,
// owns the username-to-session index that makes logins unique, and provides
// the empty barrier that the shutdown choreography waits on.
type Registry struct {
	players *player.Registry

	mu       sync.Mutex
	empty    *sync.Cond // broadcast when the live count drops to zero
	sessions map[*Session]struct{}
	names    map[string]*Session
	nextID   uint64
	max      int
	draining bool
}

// NewRegistry creates a registry holding at most max live sessions, with
// game results posted to players.
func NewRegistry(max int, players *player.Registry) *Registry {
	if max <= 0 {
		max = DefaultMaxClients
	}
	r := &Registry{
		players:  players,
		sessions: make(map[*Session]struct{}, max),
		names:    make(map[string]*Session),
		max:      max,
	}
	r.empty = sync.NewCond(&r.mu)
	return r
}

// Register creates a session for conn and inserts it. It fails with
// ErrRegistryFull at capacity.
func (r *Registry) Register(conn net.Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.draining {
		return nil, ErrDraining
	}
	if len(r.sessions) >= r.max {
		return nil, ErrRegistryFull
	}
	r.nextID++
	s := &Session{id: r.nextID, conn: conn, registry: r}
	r.sessions[s] = struct{}{}
	slog.Debug("session registered", "session", s.id, "live", len(r.sessions))
	return s, nil
}

// Unregister removes s from the registry, releasing the empty barrier when
// it was the last live session.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s]; !ok {
		return
	}
	delete(r.sessions, s)
	// The name binding is normally gone by now (Logout precedes
	// Unregister); clear it here if a session dies without logging out.
	for name, bound := range r.names {
		if bound == s {
			delete(r.names, name)
		}
	}
	slog.Debug("session unregistered", "session", s.id, "live", len(r.sessions))
	if len(r.sessions) == 0 {
		r.empty.Broadcast()
	}
}

// Lookup returns the live session logged in under name, nil if there is
// none.
func (r *Registry) Lookup(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names[name]
}

// AllPlayers returns a snapshot of every currently logged-in player, taken
// atomically, safe to use after the registry lock is released.
func (r *Registry) AllPlayers() []*player.Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*player.Player, 0, len(r.names))
	for _, s := range r.names {
		if p := s.Player(); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ShutdownAll shuts down the read half of every live connection so the
// service loops observe EOF and wind themselves down; it does not
// unregister anything.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.draining = true
	for s := range r.sessions {
		s.closeRead()
	}
	slog.Info("shutdown signalled to all sessions", "live", len(r.sessions))
}

// WaitForEmpty blocks until no live sessions remain. It may be called
// concurrently; every waiter is released on the transition to empty.
func (r *Registry) WaitForEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.sessions) > 0 {
		r.empty.Wait()
	}
}

// bind atomically checks and establishes the session→player login binding.
func (r *Registry) bind(s *Session, p *player.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[p.Name()]; taken {
		return ErrNameInUse
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		return ErrLoggedIn
	}
	s.player = p
	r.names[p.Name()] = s
	slog.Info("player logged in", "session", s.id, "player", p.Name(), "rating", p.Rating())
	return nil
}

// releaseName drops the login binding for name if it still points at s.
func (r *Registry) releaseName(name string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[name] == s {
		delete(r.names, name)
		slog.Info("player logged out", "session", s.id, "player", name)
	}
}
