package arena

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/arenad/arenad/internal/game"
	"github.com/arenad/arenad/internal/player"
	"github.com/arenad/arenad/internal/protocol"
)

// Handler dispatches decoded request packets to session operations. One
// handler serves every connection.
//
// Uniform failure mode: a well-formed request that is invalid in the
// current state earns the initiator a single NACK and touches nobody else.
// Successful requests earn a single ACK carrying whatever payload the
// operation produced.
type Handler struct {
	clients *Registry
	players *player.Registry
}

// NewHandler creates a packet handler over the two registries.
func NewHandler(clients *Registry, players *player.Registry) *Handler {
	return &Handler{clients: clients, players: players}
}

// Handle processes one request from s. Until a LOGIN succeeds every other
// request is NACKed; a second LOGIN is NACKed too.
func (h *Handler) Handle(s *Session, hdr protocol.Header, payload []byte) {
	if s.Player() == nil && hdr.Type != protocol.TypeLogin {
		slog.Debug("request before login", "session", s.ID(), "type", hdr.Type)
		s.reply(ErrNotLoggedIn)
		return
	}

	switch hdr.Type {
	case protocol.TypeLogin:
		h.handleLogin(s, payload)
	case protocol.TypeUsers:
		h.handleUsers(s)
	case protocol.TypeInvite:
		h.handleInvite(s, hdr.Role, payload)
	case protocol.TypeRevoke:
		s.reply(s.RevokeInvitation(hdr.ID))
	case protocol.TypeDecline:
		s.reply(s.DeclineInvitation(hdr.ID))
	case protocol.TypeAccept:
		h.handleAccept(s, hdr.ID)
	case protocol.TypeMove:
		s.reply(s.MakeMove(hdr.ID, string(payload)))
	case protocol.TypeResign:
		s.reply(s.ResignGame(hdr.ID))
	default:
		slog.Warn("unknown packet type", "session", s.ID(), "type", uint8(hdr.Type))
		s.reply(fmt.Errorf("unknown packet type %d", uint8(hdr.Type)))
	}
}

// reply answers the initiator with exactly one response packet: ACK when
// the operation succeeded, NACK otherwise.
func (s *Session) reply(err error) {
	if err == nil {
		if serr := s.SendAck(nil); serr != nil {
			slog.Debug("ack dropped", "session", s.id, "err", serr)
		}
		return
	}
	slog.Debug("request failed", "session", s.id, "err", err)
	if serr := s.SendNack(); serr != nil {
		slog.Debug("nack dropped", "session", s.id, "err", serr)
	}
}

func (h *Handler) handleLogin(s *Session, payload []byte) {
	if s.Player() != nil {
		s.reply(ErrLoggedIn)
		return
	}
	name := string(payload)
	if name == "" || strings.ContainsAny(name, "\t\n\x00") {
		s.reply(fmt.Errorf("unusable username %q", name))
		return
	}
	p := h.players.Register(name)
	if err := s.Login(p); err != nil {
		s.reply(err)
		return
	}
	s.reply(nil)
}

func (h *Handler) handleUsers(s *Session) {
	var b strings.Builder
	for _, p := range h.clients.AllPlayers() {
		fmt.Fprintf(&b, "%s\t%d\n", p.Name(), p.Rating())
	}
	if err := s.SendAck([]byte(b.String())); err != nil {
		slog.Debug("users listing dropped", "session", s.ID(), "err", err)
	}
}

func (h *Handler) handleInvite(s *Session, role uint8, payload []byte) {
	targetRole := game.Role(role)
	if targetRole != game.RoleFirst && targetRole != game.RoleSecond {
		s.reply(ErrBadRoles)
		return
	}
	target := h.clients.Lookup(string(payload))
	if target == nil {
		s.reply(fmt.Errorf("no logged-in player %q", payload))
		return
	}
	sid, err := s.MakeInvitation(target, targetRole.Opponent(), targetRole)
	if err != nil {
		s.reply(err)
		return
	}
	// The ACK's id field carries the source's local invitation id.
	hdr := protocol.Header{Type: protocol.TypeAck, ID: uint8(sid)}
	if err := s.SendPacket(&hdr, nil); err != nil {
		slog.Debug("invite ack dropped", "session", s.ID(), "err", err)
	}
}

func (h *Handler) handleAccept(s *Session, id uint8) {
	state, err := s.AcceptInvitation(id)
	if err != nil {
		s.reply(err)
		return
	}
	hdr := protocol.Header{Type: protocol.TypeAck, ID: id, Size: uint16(len(state))}
	if err := s.SendPacket(&hdr, []byte(state)); err != nil {
		slog.Debug("accept ack dropped", "session", s.ID(), "err", err)
	}
}
