// Package player holds the persistent per-user state of the server: one
// record per username with a skill rating, kept for the whole server
// lifetime by the Registry regardless of whether the user is connected.
package player

import "sync"

// InitialRating is the rating assigned to a newly registered player.
const InitialRating = 1500

// Player is a registered user. The name is immutable; the rating changes as
// game results are posted through the Registry.
type Player struct {
	name string

	mu     sync.Mutex
	rating int
}

func newPlayer(name string) *Player {
	return &Player{name: name, rating: InitialRating}
}

// Name returns the player's username.
func (p *Player) Name() string {
	return p.name
}

// Rating returns the player's current rating.
func (p *Player) Rating() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rating
}
