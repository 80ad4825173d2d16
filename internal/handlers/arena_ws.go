// internal/handlers/arena_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pokebid/pokebid/internal/auction"
	"github.com/pokebid/pokebid/internal/database"
	"github.com/pokebid/pokebid/internal/pokeapi"
)

// ArenaMessage is the shape of incoming WebSocket messages during the
// auction phase.
type ArenaMessage struct {
	Type string `json:"type"`

	// Pokemon names or numbers the species for a nominate message.
	Pokemon string `json:"pokemon,omitempty"`

	// Amount carries the bid for a bid message.
	Amount int `json:"amount,omitempty"`
}

// ArenaWSHandler upgrades the connection for a live game, authenticates the
// user, verifies their seat, registers the connection in the game's hub,
// sends the current state snapshot, and runs the read loop.
// Route: /game/ws/{game_id}
func ArenaWSHandler(logger *logrus.Logger, s *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/game/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing game_id in path (/game/ws/{game_id})", http.StatusBadRequest)
			return
		}
		gameID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "invalid game_id format", http.StatusBadRequest)
			return
		}

		eng, ok := s.Registry.Get(gameID)
		if !ok {
			http.Error(w, "game not found or not started", http.StatusNotFound)
			return
		}
		if eng.GameOver {
			http.Error(w, "game has already ended", http.StatusGone)
			return
		}

		userID, err := authenticateRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		player, err := database.GetPlayerByUser(r.Context(), gameID, userID)
		if err != nil {
			http.Error(w, "you are not a player in this game", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"auction"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for game %s: %v", gameID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "internal server error during handler exit")

		if c.Subprotocol() != "auction" {
			c.Close(BadSubprotocolError, "client must use the 'auction' subprotocol")
			return
		}
		logger.Infof("WebSocket connection established for player %s in game %s", player.ID, gameID)

		hub := s.hub(gameID)
		hub.register(player.ID, c)
		defer hub.unregister(player.ID, c)

		// Reconnect support: the full game state goes out before any
		// incremental events.
		sendWsMessage(c, map[string]interface{}{
			"type":  "snapshot",
			"state": eng.SnapshotState(),
		})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readArenaMessages(ctx, c, s, eng, player.ID, logger)
		logger.Infof("Player %s WebSocket read loop exited for game %s", player.ID, gameID)
	}
}

// readArenaMessages reads client messages until the connection closes, routing
// each action to the engine and reporting rejections back to the sender.
func readArenaMessages(ctx context.Context, c *websocket.Conn, s *ArenaServer, eng *auction.Game, playerID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for player %s in game %s", playerID, eng.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for player %s in game %s", playerID, eng.ID)
			} else {
				logger.Warnf("Error reading from WebSocket for player %s in game %s: %v", playerID, eng.ID, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg ArenaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON from player %s in game %s: %v", playerID, eng.ID, err)
			sendWsError(c, "invalid JSON format")
			continue
		}

		logger.Debugf("Received action '%s' from player %s in game %s", msg.Type, playerID, eng.ID)

		switch msg.Type {
		case "nominate":
			handleNominate(ctx, c, s, eng, playerID, msg.Pokemon)

		case "bid":
			if err := eng.PlaceBid(ctx, playerID, msg.Amount); err != nil {
				sendWsError(c, rejectionMessage(err))
			}

		case "pass":
			if err := eng.PassTurn(ctx, playerID); err != nil {
				sendWsError(c, rejectionMessage(err))
			}

		case "ping":
			sendWsMessage(c, map[string]string{"type": "pong"})

		default:
			sendWsError(c, fmt.Sprintf("unknown action type: %s", msg.Type))
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleNominate resolves the species against the catalog before handing the
// nomination to the engine. Resolution happens outside the engine lock so a
// slow catalog lookup never stalls the auction.
func handleNominate(ctx context.Context, c *websocket.Conn, s *ArenaServer, eng *auction.Game, playerID uuid.UUID, nameOrID string) {
	if strings.TrimSpace(nameOrID) == "" {
		sendWsError(c, "nominate requires a pokemon name or number")
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	p, err := s.Pokeapi.GetPokemon(lookupCtx, nameOrID)
	cancel()
	if errors.Is(err, pokeapi.ErrNotFound) {
		sendWsError(c, fmt.Sprintf("unknown pokemon: %s", nameOrID))
		return
	}
	if err != nil {
		s.Logger.Warnf("catalog lookup failed for %q: %v", nameOrID, err)
		sendWsError(c, "catalog lookup failed, try again")
		return
	}

	_, err = eng.Nominate(ctx, playerID, auction.Species{
		PokemonID: p.ID,
		Name:      p.Name,
		Image:     p.Artwork(),
	})
	if err != nil {
		sendWsError(c, rejectionMessage(err))
	}
}

// rejectionMessage maps engine validation errors to client-facing text.
// Unexpected errors get a generic message so internals stay internal.
func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, auction.ErrNotYourTurn),
		errors.Is(err, auction.ErrNotNominator),
		errors.Is(err, auction.ErrBidTooLow),
		errors.Is(err, auction.ErrLotInProgress),
		errors.Is(err, auction.ErrNoActiveLot),
		errors.Is(err, auction.ErrLotClosed),
		errors.Is(err, auction.ErrUnknownPlayer),
		errors.Is(err, auction.ErrGameOver),
		errors.Is(err, auction.ErrNotEnoughFunds):
		return err.Error()
	default:
		return "action failed"
	}
}

// sendWsMessage marshals a message and writes it with a timeout.
func sendWsMessage(c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("attempted to send WebSocket message on nil connection")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			log.Printf("error writing WebSocket message: %v", err)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(c *websocket.Conn, errorMsg string) {
	sendWsMessage(c, map[string]interface{}{
		"type":    string(auction.EventError),
		"message": errorMsg,
	})
}
