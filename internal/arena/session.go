package arena

import (
	"errors"
	"log/slog"
	"net"
	"slices"
	"sync"

	"github.com/arenad/arenad/internal/game"
	"github.com/arenad/arenad/internal/player"
	"github.com/arenad/arenad/internal/protocol"
)

const (
	// invListBlock is the growth increment of the sparse invitation list.
	invListBlock = 10
	// MaxInvitations bounds the per-session invitation list. An operation
	// that would grow the list past this fails.
	MaxInvitations = 256
)

var (
	ErrLoggedIn          = errors.New("session already logged in")
	ErrNotLoggedIn       = errors.New("session not logged in")
	ErrNameInUse         = errors.New("player already logged in on another session")
	ErrUnknownInvitation = errors.New("no invitation with that id")
	ErrNotSource         = errors.New("session is not the source of the invitation")
	ErrNotTarget         = errors.New("session is not the target of the invitation")
	ErrListFull          = errors.New("invitation list full")
	ErrNoGame            = errors.New("invitation has no game in progress")
)

// Session is the server-side state of one client connection: the logged-in
// player, the sparse positionally-indexed invitation list, and the outbound
// half of the connection.
//
// Locking: mu guards the player slot and the invitation list. Operations
// touching two sessions take both mutexes in ascending session-ID order.
// mu is never held across a send; sendMu serializes outbound frames on this
// connection and is held only around one encode/write pair.
type Session struct {
	id       uint64
	conn     net.Conn
	registry *Registry

	sendMu sync.Mutex

	mu      sync.Mutex
	player  *player.Player
	invites []*Invitation
}

// ID returns the session's registry-assigned identity, used for lock
// ordering and logging.
func (s *Session) ID() uint64 { return s.id }

// Player returns the logged-in player, nil while logged out.
func (s *Session) Player() *player.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// lockPair acquires both session mutexes in ascending ID order.
func lockPair(a, b *Session) {
	if a.id < b.id {
		a.mu.Lock()
		b.mu.Lock()
	} else {
		b.mu.Lock()
		a.mu.Lock()
	}
}

func unlockPair(a, b *Session) {
	a.mu.Unlock()
	b.mu.Unlock()
}

// Login binds the session to p. It fails if the session is already logged
// in or another live session is logged in under the same name; the check
// and the bind are atomic under the registry lock.
func (s *Session) Login(p *player.Player) error {
	return s.registry.bind(s, p)
}

// Logout unbinds the session from its player and winds down every live
// invitation exactly as if the client had issued the operations itself:
// open invitations are revoked (as source) or declined (as target), and
// invitations with a game in progress are resigned, with the usual peer
// notifications.
func (s *Session) Logout() error {
	s.mu.Lock()
	p := s.player
	if p == nil {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	s.player = nil
	invs := slices.Clone(s.invites)
	s.mu.Unlock()

	s.registry.releaseName(p.Name(), s)

	for id, inv := range invs {
		if inv == nil {
			continue
		}
		var err error
		if inv.Source() == s {
			err = s.RevokeInvitation(uint8(id))
		} else {
			err = s.DeclineInvitation(uint8(id))
		}
		if err != nil {
			if err := s.ResignGame(uint8(id)); err != nil {
				// Slot already cleared by a concurrent peer operation.
				slog.Debug("logout: invitation already settled", "session", s.id, "invitation", id, "err", err)
			}
		}
	}
	return nil
}

// SendPacket stamps hdr and writes one framed packet on the connection.
// Concurrent senders on the same session never interleave frames.
func (s *Session) SendPacket(hdr *protocol.Header, payload []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	hdr.Stamp()
	return protocol.WritePacket(s.conn, hdr, payload)
}

// SendAck sends an ACK with an optional payload.
func (s *Session) SendAck(payload []byte) error {
	return s.SendPacket(&protocol.Header{Type: protocol.TypeAck, Size: uint16(len(payload))}, payload)
}

// SendNack sends a NACK.
func (s *Session) SendNack() error {
	return s.SendPacket(&protocol.Header{Type: protocol.TypeNack}, nil)
}

// notify sends an asynchronous notification packet, logging rather than
// propagating failures: a dead peer connection is cleaned up by that peer's
// own service loop.
func (s *Session) notify(t protocol.Type, id int, role game.Role, payload []byte) {
	if id < 0 {
		return
	}
	hdr := protocol.Header{Type: t, ID: uint8(id), Role: uint8(role), Size: uint16(len(payload))}
	if err := s.SendPacket(&hdr, payload); err != nil {
		slog.Debug("notification dropped", "session", s.id, "type", t, "err", err)
	}
}

// AddInvitation inserts inv at the lowest free index of the session's
// invitation list and returns that index.
func (s *Session) AddInvitation(inv *Invitation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(inv)
}

// RemoveInvitation clears the slot holding inv and returns the index it
// occupied, -1 if it is not in the list.
func (s *Session) RemoveInvitation(inv *Invitation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(inv)
}

func (s *Session) addLocked(inv *Invitation) (int, error) {
	for i, slot := range s.invites {
		if slot == nil {
			s.invites[i] = inv
			return i, nil
		}
	}
	i := len(s.invites)
	if i >= MaxInvitations {
		return -1, ErrListFull
	}
	// The wire id is a u8, so the list must never grow past an addressable
	// index; the last block is short.
	grow := min(invListBlock, MaxInvitations-i)
	s.invites = append(s.invites, make([]*Invitation, grow)...)
	s.invites[i] = inv
	return i, nil
}

func (s *Session) removeLocked(inv *Invitation) int {
	for i, slot := range s.invites {
		if slot == inv {
			s.invites[i] = nil
			return i
		}
	}
	return -1
}

func (s *Session) indexOfLocked(inv *Invitation) int {
	for i, slot := range s.invites {
		if slot == inv {
			return i
		}
	}
	return -1
}

// indexOf returns the session's local index for inv, -1 if absent.
func (s *Session) indexOf(inv *Invitation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOfLocked(inv)
}

// invitationAt returns the invitation at the session's local index id,
// nil when the index is out of range or the slot is free.
func (s *Session) invitationAt(id int) *Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.invites) {
		return nil
	}
	return s.invites[id]
}

// MakeInvitation creates an OPEN invitation from this session to target,
// inserts it in both sessions' lists, and sends INVITED to the target
// carrying the target's local index, the target's role and the source's
// username. It returns the source's local index.
func (s *Session) MakeInvitation(target *Session, sourceRole, targetRole game.Role) (int, error) {
	inv, err := newInvitation(s, target, sourceRole, targetRole)
	if err != nil {
		return -1, err
	}

	lockPair(s, target)
	if s.player == nil || target.player == nil {
		unlockPair(s, target)
		return -1, ErrNotLoggedIn
	}
	sourceName := s.player.Name()
	sid, err := s.addLocked(inv)
	if err != nil {
		unlockPair(s, target)
		return -1, err
	}
	tid, err := target.addLocked(inv)
	if err != nil {
		s.removeLocked(inv)
		unlockPair(s, target)
		return -1, err
	}
	unlockPair(s, target)

	slog.Debug("invitation created",
		"source", s.id, "source_id", sid, "target", target.id, "target_id", tid)
	target.notify(protocol.TypeInvited, tid, targetRole, []byte(sourceName))
	return sid, nil
}

// RevokeInvitation revokes the OPEN invitation at the caller's local index
// id; the caller must be its source. The invitation is removed from both
// lists before REVOKED is sent to the target with the target's local index.
func (s *Session) RevokeInvitation(id uint8) error {
	inv := s.invitationAt(int(id))
	if inv == nil {
		return ErrUnknownInvitation
	}
	if inv.Source() != s {
		return ErrNotSource
	}
	peer := inv.Target()

	lockPair(s, peer)
	if s.indexOfLocked(inv) != int(id) || inv.State() != InvOpen {
		unlockPair(s, peer)
		return ErrInvitationState
	}
	if err := inv.close(game.RoleNone); err != nil {
		unlockPair(s, peer)
		return err
	}
	s.invites[id] = nil
	tid := peer.removeLocked(inv)
	unlockPair(s, peer)

	slog.Debug("invitation revoked", "source", s.id, "id", id)
	peer.notify(protocol.TypeRevoked, tid, game.RoleNone, nil)
	return nil
}

// DeclineInvitation declines the OPEN invitation at the caller's local
// index id; the caller must be its target. The invitation is removed from
// both lists before DECLINED is sent to the source with the source's local
// index.
func (s *Session) DeclineInvitation(id uint8) error {
	inv := s.invitationAt(int(id))
	if inv == nil {
		return ErrUnknownInvitation
	}
	if inv.Target() != s {
		return ErrNotTarget
	}
	peer := inv.Source()

	lockPair(s, peer)
	if s.indexOfLocked(inv) != int(id) || inv.State() != InvOpen {
		unlockPair(s, peer)
		return ErrInvitationState
	}
	if err := inv.close(game.RoleNone); err != nil {
		unlockPair(s, peer)
		return err
	}
	s.invites[id] = nil
	sid := peer.removeLocked(inv)
	unlockPair(s, peer)

	slog.Debug("invitation declined", "target", s.id, "id", id)
	peer.notify(protocol.TypeDeclined, sid, game.RoleNone, nil)
	return nil
}

// AcceptInvitation accepts the OPEN invitation at the caller's local index
// id; the caller must be its target. A game is created and ACCEPTED is sent
// to the source with the source's local index, carrying the rendered
// initial state iff the source moves first. The returned string is the
// rendered initial state iff the accepting caller moves first, for use as
// the ACK payload, so whichever party moves first learns the initial state
// from the packet it receives.
func (s *Session) AcceptInvitation(id uint8) (string, error) {
	inv := s.invitationAt(int(id))
	if inv == nil {
		return "", ErrUnknownInvitation
	}
	if inv.Target() != s {
		return "", ErrNotTarget
	}
	peer := inv.Source()

	lockPair(s, peer)
	if s.indexOfLocked(inv) != int(id) {
		unlockPair(s, peer)
		return "", ErrInvitationState
	}
	sid := peer.indexOfLocked(inv)
	if sid < 0 {
		unlockPair(s, peer)
		return "", ErrInvitationState
	}
	if err := inv.accept(); err != nil {
		unlockPair(s, peer)
		return "", err
	}
	state := inv.Game().State()
	unlockPair(s, peer)

	slog.Debug("invitation accepted", "target", s.id, "id", id, "source_id", sid)
	if inv.SourceRole() == game.RoleFirst {
		peer.notify(protocol.TypeAccepted, sid, game.RoleNone, []byte(state))
		return "", nil
	}
	peer.notify(protocol.TypeAccepted, sid, game.RoleNone, nil)
	return state, nil
}

// MakeMove parses and applies moveStr to the game of the ACCEPTED
// invitation at the caller's local index id, in the caller's role, and
// sends MOVED with the new rendered state to the opponent. When the move
// terminates the game, the invitation is removed from both lists, ENDED is
// sent to both parties with the winner's role (RoleNone for a draw), and
// the result is posted to the player registry.
func (s *Session) MakeMove(id uint8, moveStr string) error {
	inv := s.invitationAt(int(id))
	if inv == nil {
		return ErrUnknownInvitation
	}
	role := inv.roleOf(s)
	peer := inv.peerOf(s)
	g := inv.Game()
	if g == nil {
		return ErrNoGame
	}

	mv, err := g.ParseMove(role, moveStr)
	if err != nil {
		return err
	}
	if err := g.ApplyMove(mv); err != nil {
		return err
	}
	state := g.State()
	slog.Debug("move applied", "session", s.id, "id", id, "move", mv.String())

	if !g.Over() {
		peer.notify(protocol.TypeMoved, peer.indexOf(inv), game.RoleNone, []byte(state))
		return nil
	}

	myID, peerID, ok := s.settle(inv, peer)
	if !ok {
		// A concurrent resignation settled the invitation first; the
		// peers have already been notified of the termination.
		return nil
	}
	winner := g.Winner()
	peer.notify(protocol.TypeMoved, peerID, game.RoleNone, []byte(state))
	s.notify(protocol.TypeEnded, myID, winner, nil)
	peer.notify(protocol.TypeEnded, peerID, winner, nil)
	s.postResult(inv, winner)
	return nil
}

// ResignGame resigns the game of the ACCEPTED invitation at the caller's
// local index id in the caller's role; the opponent wins. RESIGNED is sent
// to the opponent, then ENDED to both parties with the winner's role, the
// invitation is removed from both lists, and the result is posted.
func (s *Session) ResignGame(id uint8) error {
	inv := s.invitationAt(int(id))
	if inv == nil {
		return ErrUnknownInvitation
	}
	role := inv.roleOf(s)
	peer := inv.peerOf(s)
	g := inv.Game()
	if g == nil {
		return ErrNoGame
	}

	lockPair(s, peer)
	if s.indexOfLocked(inv) != int(id) {
		unlockPair(s, peer)
		return ErrInvitationState
	}
	if err := inv.close(role); err != nil {
		unlockPair(s, peer)
		return err
	}
	myID := int(id)
	s.invites[id] = nil
	peerID := peer.removeLocked(inv)
	unlockPair(s, peer)

	winner := g.Winner()
	slog.Debug("game resigned", "session", s.id, "id", id, "winner", winner)
	peer.notify(protocol.TypeResigned, peerID, game.RoleNone, nil)
	s.notify(protocol.TypeEnded, myID, winner, nil)
	peer.notify(protocol.TypeEnded, peerID, winner, nil)
	s.postResult(inv, winner)
	return nil
}

// settle closes a finished invitation and removes it from both
// participants' lists, returning the indices it occupied on the caller's
// and the peer's side. Removal precedes the end-of-game notifications so
// no peer observes a dangling index. ok is false when another operation
// already closed the invitation; the loser of that race must not notify
// or post the result again.
func (s *Session) settle(inv *Invitation, peer *Session) (myID, peerID int, ok bool) {
	lockPair(s, peer)
	if err := inv.close(game.RoleNone); err != nil {
		unlockPair(s, peer)
		return -1, -1, false
	}
	myID = s.removeLocked(inv)
	peerID = peer.removeLocked(inv)
	unlockPair(s, peer)
	return myID, peerID, true
}

// postResult posts a terminated game's outcome to the player registry.
func (s *Session) postResult(inv *Invitation, winner game.Role) {
	outcome := player.OutcomeDraw
	switch winner {
	case inv.SourceRole():
		outcome = player.OutcomeFirstWon
	case inv.TargetRole():
		outcome = player.OutcomeSecondWon
	}
	s.registry.players.PostResult(inv.sourcePlayer, inv.targetPlayer, outcome)

	slog.Info("game result posted",
		"source", inv.sourcePlayer.Name(), "target", inv.targetPlayer.Name(),
		"winner", winner,
		"source_rating", inv.sourcePlayer.Rating(), "target_rating", inv.targetPlayer.Rating())
}

// closeRead shuts down the read half of the connection so the session's
// service loop observes EOF, leaving the write half usable for the logout
// cascade's notifications.
func (s *Session) closeRead() {
	type closeReader interface{ CloseRead() error }
	if cr, ok := s.conn.(closeReader); ok {
		if err := cr.CloseRead(); err != nil {
			slog.Debug("read-half shutdown failed", "session", s.id, "err", err)
		}
		return
	}
	s.conn.Close()
}
