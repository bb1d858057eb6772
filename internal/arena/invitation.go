package arena

import (
	"errors"
	"sync"

	"github.com/arenad/arenad/internal/game"
	"github.com/arenad/arenad/internal/player"
)

// InvitationState is the state machine of a match offer. The only
// transitions are OPEN→ACCEPTED, OPEN→CLOSED and ACCEPTED→CLOSED;
// CLOSED is terminal.
type InvitationState int

const (
	InvOpen InvitationState = iota
	InvAccepted
	InvClosed
)

func (s InvitationState) String() string {
	switch s {
	case InvOpen:
		return "OPEN"
	case InvAccepted:
		return "ACCEPTED"
	case InvClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrInvitationState = errors.New("invitation not in required state")
	ErrGameInProgress  = errors.New("game in progress")
	ErrSameSession     = errors.New("source and target are the same session")
	ErrBadRoles        = errors.New("invalid role assignment")
)

// Invitation links exactly two distinct sessions, source and target, each
// with its own game role, and holds the game while the invitation is
// accepted. Each live invitation appears in both participants' invitation
// lists, generally at different local indices.
//
// The participant sessions, roles and player references are fixed at
// creation; the mutex guards state and game.
type Invitation struct {
	source     *Session
	target     *Session
	sourceRole game.Role
	targetRole game.Role

	// Player references are captured at creation so a game result can
	// still be posted after a participant's session has logged out.
	sourcePlayer *player.Player
	targetPlayer *player.Player

	mu    sync.Mutex
	state InvitationState
	game  *game.Game
}

// newInvitation creates an OPEN invitation between two logged-in sessions.
// The callers' roles must differ and both must be playing roles.
func newInvitation(source, target *Session, sourceRole, targetRole game.Role) (*Invitation, error) {
	if source == target {
		return nil, ErrSameSession
	}
	if sourceRole == targetRole ||
		(sourceRole != game.RoleFirst && sourceRole != game.RoleSecond) ||
		(targetRole != game.RoleFirst && targetRole != game.RoleSecond) {
		return nil, ErrBadRoles
	}
	sp, tp := source.Player(), target.Player()
	if sp == nil || tp == nil {
		return nil, ErrNotLoggedIn
	}
	return &Invitation{
		source:       source,
		target:       target,
		sourceRole:   sourceRole,
		targetRole:   targetRole,
		sourcePlayer: sp,
		targetPlayer: tp,
		state:        InvOpen,
	}, nil
}

// Source returns the inviting session.
func (inv *Invitation) Source() *Session { return inv.source }

// Target returns the invited session.
func (inv *Invitation) Target() *Session { return inv.target }

// SourceRole returns the game role of the inviting session.
func (inv *Invitation) SourceRole() game.Role { return inv.sourceRole }

// TargetRole returns the game role of the invited session.
func (inv *Invitation) TargetRole() game.Role { return inv.targetRole }

// State returns the current invitation state.
func (inv *Invitation) State() InvitationState {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

// Game returns the game held by the invitation, nil unless it has been
// accepted.
func (inv *Invitation) Game() *game.Game {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.game
}

// roleOf returns the role s plays under this invitation, RoleNone if s is
// not a participant.
func (inv *Invitation) roleOf(s *Session) game.Role {
	switch s {
	case inv.source:
		return inv.sourceRole
	case inv.target:
		return inv.targetRole
	default:
		return game.RoleNone
	}
}

// peerOf returns the participant opposite s, nil if s is not a participant.
func (inv *Invitation) peerOf(s *Session) *Session {
	switch s {
	case inv.source:
		return inv.target
	case inv.target:
		return inv.source
	default:
		return nil
	}
}

// playerOf returns the player reference captured for s's side.
func (inv *Invitation) playerOf(s *Session) *player.Player {
	switch s {
	case inv.source:
		return inv.sourcePlayer
	case inv.target:
		return inv.targetPlayer
	default:
		return nil
	}
}

// accept transitions OPEN→ACCEPTED and creates the game.
func (inv *Invitation) accept() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state != InvOpen {
		return ErrInvitationState
	}
	inv.state = InvAccepted
	inv.game = game.New()
	return nil
}

// close transitions OPEN→CLOSED or ACCEPTED→CLOSED. When a game is in
// progress it is resigned by role; passing RoleNone closes the invitation
// only if no game is in progress.
func (inv *Invitation) close(role game.Role) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state != InvOpen && inv.state != InvAccepted {
		return ErrInvitationState
	}
	if inv.game != nil && !inv.game.Over() {
		if role == game.RoleNone {
			return ErrGameInProgress
		}
		if err := inv.game.Resign(role); err != nil {
			return err
		}
	}
	inv.state = InvClosed
	return nil
}
