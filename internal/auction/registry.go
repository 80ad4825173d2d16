package auction

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the live engines for in-progress games.
type Registry struct {
	mu    sync.Mutex
	games map[uuid.UUID]*Game
}

func NewRegistry() *Registry {
	return &Registry{
		games: make(map[uuid.UUID]*Game),
	}
}

func (r *Registry) Add(g *Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.ID] = g
}

func (r *Registry) Get(id uuid.UUID) (*Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, exists := r.games[id]
	return g, exists
}

func (r *Registry) Delete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games, id)
}
