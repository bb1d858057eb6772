package player

import (
	"math"
	"sync"
)

// Game outcomes accepted by PostResult.
const (
	OutcomeDraw      = 0
	OutcomeFirstWon  = 1
	OutcomeSecondWon = 2
)

// eloK is the rating-adjustment coefficient.
const eloK = 32

// Registry is the canonical username-to-player map. Registration is
// idempotent and records are never evicted, so a returning user keeps the
// rating earned earlier in the server's lifetime.
type Registry struct {
	mu      sync.Mutex
	players map[string]*Player
}

// NewRegistry creates an empty player registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// Register returns the player recorded under name, creating it with the
// initial rating on first sight.
func (r *Registry) Register(name string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[name]; ok {
		return p
	}
	p := newPlayer(name)
	r.players[name] = p
	return p
}

// Len returns the number of registered players.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// PostResult re-rates both players of a finished game. outcome is
// OutcomeDraw, OutcomeFirstWon or OutcomeSecondWon, where "first" and
// "second" name p1 and p2 respectively.
//
// The Elo update uses K=32 with both expected scores computed from the
// pre-game ratings, each delta truncated toward zero, so the two deltas
// always sum to zero. Both ratings are updated while both player locks are
// held, so no concurrent read observes a non-conservative intermediate.
func (r *Registry) PostResult(p1, p2 *Player, outcome int) {
	if p1 == nil || p2 == nil || p1 == p2 {
		return
	}

	var s1, s2 float64
	switch outcome {
	case OutcomeDraw:
		s1, s2 = 0.5, 0.5
	case OutcomeFirstWon:
		s1, s2 = 1, 0
	case OutcomeSecondWon:
		s1, s2 = 0, 1
	default:
		return
	}

	// Fixed lock order by name; registered names are unique.
	lo, hi := p1, p2
	if lo.name > hi.name {
		lo, hi = hi, lo
	}
	lo.mu.Lock()
	defer lo.mu.Unlock()
	hi.mu.Lock()
	defer hi.mu.Unlock()

	r1, r2 := p1.rating, p2.rating
	e1 := 1 / (1 + math.Pow(10, float64(r2-r1)/400))
	e2 := 1 - e1 // s2-e2 is then the exact negation of s1-e1

	p1.rating = r1 + int(eloK*(s1-e1))
	p2.rating = r2 + int(eloK*(s2-e2))
}
