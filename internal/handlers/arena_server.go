// internal/handlers/arena_server.go
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pokebid/pokebid/internal/auction"
	"github.com/pokebid/pokebid/internal/cache"
	"github.com/pokebid/pokebid/internal/database"
	"github.com/pokebid/pokebid/internal/models"
	"github.com/pokebid/pokebid/internal/pokeapi"
)

// ArenaServer owns the live auction engines and the per-game WebSocket hubs
// that fan engine events out to connected players.
type ArenaServer struct {
	Registry *auction.Registry
	Pokeapi  *pokeapi.Client
	Logger   *logrus.Logger

	mu   sync.Mutex
	hubs map[uuid.UUID]*gameHub
}

func NewArenaServer(logger *logrus.Logger) *ArenaServer {
	return &ArenaServer{
		Registry: auction.NewRegistry(),
		Pokeapi:  pokeapi.NewClient(),
		Logger:   logger,
		hubs:     make(map[uuid.UUID]*gameHub),
	}
}

// gameHub tracks the open connections for one game, keyed by player ID.
type gameHub struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*websocket.Conn
}

func (s *ArenaServer) hub(gameID uuid.UUID) *gameHub {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[gameID]
	if !ok {
		h = &gameHub{conns: make(map[uuid.UUID]*websocket.Conn)}
		s.hubs[gameID] = h
	}
	return h
}

func (s *ArenaServer) dropHub(gameID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hubs, gameID)
}

func (h *gameHub) register(playerID uuid.UUID, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.conns[playerID]; ok && prev != c {
		prev.Close(websocket.StatusPolicyViolation, "superseded by a newer connection")
	}
	h.conns[playerID] = c
}

func (h *gameHub) unregister(playerID uuid.UUID, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[playerID] == c {
		delete(h.conns, playerID)
	}
}

func (h *gameHub) snapshotConns() map[uuid.UUID]*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[uuid.UUID]*websocket.Conn, len(h.conns))
	for id, c := range h.conns {
		out[id] = c
	}
	return out
}

// StartEngine builds and registers an engine for a game that just moved to
// in_progress: the roster is loaded in join order, balances are seeded, and
// the engine's outputs are wired to the game's hub and the historian queue.
func (s *ArenaServer) StartEngine(ctx context.Context, g *models.Game) (*auction.Game, error) {
	players, err := database.ListPlayers(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	if err := database.SeedBalances(ctx, g.ID, auction.StartingBalance); err != nil {
		return nil, err
	}

	eng := auction.NewGame(g.ID, players, auction.PGStore{})
	eng.BroadcastFn = s.createBroadcastFunc(g.ID)
	eng.BroadcastToPlayerFn = s.createBroadcastToPlayerFunc(g.ID)
	eng.ResolveArtworkFn = func(ctx context.Context, pokemonID int) (string, int, error) {
		p, err := s.Pokeapi.GetByID(ctx, pokemonID)
		if err != nil {
			return "", 0, err
		}
		return p.Artwork(), pokeapi.GenerationOf(pokemonID), nil
	}
	eng.LogActionFn = func(rec cache.AuctionActionRecord) {
		if err := cache.PublishAuctionAction(context.Background(), rec); err != nil {
			s.Logger.Warnf("failed to publish auction action for game %s: %v", g.ID, err)
		}
	}

	s.Registry.Add(eng)
	if err := eng.Start(ctx); err != nil {
		s.Registry.Delete(g.ID)
		return nil, err
	}
	return eng, nil
}

// createBroadcastFunc fans an engine event out to every connection in the
// game's hub. The engine lock is held by the caller, so the writes happen on
// a separate goroutine.
func (s *ArenaServer) createBroadcastFunc(gameID uuid.UUID) func(ev auction.Event) {
	return func(ev auction.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.Logger.Errorf("failed to marshal event (%s) for game %s: %v", ev.Type, gameID, err)
			return
		}
		conns := s.hub(gameID).snapshotConns()
		go func() {
			for playerID, c := range conns {
				writeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := c.Write(writeCtx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.Logger.Warnf("failed to write event to player %s in game %s: %v", playerID, gameID, err)
				}
			}
		}()
	}
}

func (s *ArenaServer) createBroadcastToPlayerFunc(gameID uuid.UUID) func(playerID uuid.UUID, ev auction.Event) {
	return func(playerID uuid.UUID, ev auction.Event) {
		h := s.hub(gameID)
		h.mu.Lock()
		c := h.conns[playerID]
		h.mu.Unlock()
		if c == nil {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			s.Logger.Errorf("failed to marshal private event (%s) for player %s: %v", ev.Type, playerID, err)
			return
		}
		go func() {
			writeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := c.Write(writeCtx, websocket.MessageText, data); err != nil {
				s.Logger.Warnf("failed to write private event to player %s in game %s: %v", playerID, gameID, err)
			}
		}()
	}
}
