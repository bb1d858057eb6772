package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenad/arenad/internal/game"
	"github.com/arenad/arenad/internal/player"
)

func TestNewInvitation_Validation(t *testing.T) {
	_, a, _, b, _ := loggedInPair(t)

	tests := []struct {
		name       string
		source     *Session
		target     *Session
		sourceRole game.Role
		targetRole game.Role
		wantErr    error
	}{
		{name: "same session", source: a, target: a, sourceRole: game.RoleFirst, targetRole: game.RoleSecond, wantErr: ErrSameSession},
		{name: "equal roles", source: a, target: b, sourceRole: game.RoleFirst, targetRole: game.RoleFirst, wantErr: ErrBadRoles},
		{name: "none role", source: a, target: b, sourceRole: game.RoleNone, targetRole: game.RoleFirst, wantErr: ErrBadRoles},
		{name: "out of range role", source: a, target: b, sourceRole: game.Role(7), targetRole: game.RoleFirst, wantErr: ErrBadRoles},
		{name: "valid", source: a, target: b, sourceRole: game.RoleSecond, targetRole: game.RoleFirst},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := newInvitation(tt.source, tt.target, tt.sourceRole, tt.targetRole)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, InvOpen, inv.State())
			assert.Same(t, tt.source, inv.Source())
			assert.Same(t, tt.target, inv.Target())
			assert.Nil(t, inv.Game(), "no game before acceptance")
		})
	}
}

func TestNewInvitation_RequiresLogin(t *testing.T) {
	r := NewRegistry(4, player.NewRegistry())
	a, err := r.Register(&fakeConn{})
	require.NoError(t, err)
	b, err := r.Register(&fakeConn{})
	require.NoError(t, err)
	require.NoError(t, a.Login(r.players.Register("alice")))

	_, err = newInvitation(a, b, game.RoleFirst, game.RoleSecond)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestInvitation_AcceptThenClose(t *testing.T) {
	_, a, _, b, _ := loggedInPair(t)
	inv, err := newInvitation(a, b, game.RoleFirst, game.RoleSecond)
	require.NoError(t, err)

	require.NoError(t, inv.accept())
	assert.Equal(t, InvAccepted, inv.State())
	require.NotNil(t, inv.Game())

	assert.ErrorIs(t, inv.accept(), ErrInvitationState, "acceptance is one-shot")

	assert.ErrorIs(t, inv.close(game.RoleNone), ErrGameInProgress,
		"a live game cannot be discarded without a resigning role")

	require.NoError(t, inv.close(game.RoleSecond))
	assert.Equal(t, InvClosed, inv.State())
	assert.Equal(t, game.RoleFirst, inv.Game().Winner())

	assert.ErrorIs(t, inv.close(game.RoleSecond), ErrInvitationState, "CLOSED is terminal")
	assert.ErrorIs(t, inv.accept(), ErrInvitationState)
}

func TestInvitation_CloseOpen(t *testing.T) {
	_, a, _, b, _ := loggedInPair(t)
	inv, err := newInvitation(a, b, game.RoleFirst, game.RoleSecond)
	require.NoError(t, err)

	require.NoError(t, inv.close(game.RoleNone))
	assert.Equal(t, InvClosed, inv.State())
	assert.Nil(t, inv.Game())
}

func TestInvitation_Participants(t *testing.T) {
	_, a, _, b, _ := loggedInPair(t)
	inv, err := newInvitation(a, b, game.RoleSecond, game.RoleFirst)
	require.NoError(t, err)

	assert.Equal(t, game.RoleSecond, inv.roleOf(a))
	assert.Equal(t, game.RoleFirst, inv.roleOf(b))
	assert.Same(t, b, inv.peerOf(a))
	assert.Same(t, a, inv.peerOf(b))
	assert.Equal(t, "alice", inv.playerOf(a).Name())
	assert.Equal(t, "bob", inv.playerOf(b).Name())

	var stranger Session
	assert.Equal(t, game.RoleNone, inv.roleOf(&stranger))
	assert.Nil(t, inv.peerOf(&stranger))
	assert.Nil(t, inv.playerOf(&stranger))
}
