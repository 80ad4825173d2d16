// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pokebid/pokebid/internal/database"
	"github.com/pokebid/pokebid/internal/models"
)

const (
	defaultMaxPlayers = 6
	maxMaxPlayers     = 10
)

// CreateGameHandler creates a lobby in the waiting state. The creator becomes
// host and is seated as the first player, so join order starts with them.
func CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticateRequest(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	var req struct {
		Name       string `json:"name"`
		MaxPlayers int    `json:"max_players"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.MaxPlayers <= 0 {
		req.MaxPlayers = defaultMaxPlayers
	}
	if req.MaxPlayers < 2 || req.MaxPlayers > maxMaxPlayers {
		http.Error(w, "max_players must be between 2 and 10", http.StatusBadRequest)
		return
	}

	g := &models.Game{
		Name:       req.Name,
		MaxPlayers: req.MaxPlayers,
		HostID:     userID,
		Status:     models.GameStatusWaiting,
	}
	if err := database.InsertGame(r.Context(), g); err != nil {
		http.Error(w, "error creating game", http.StatusInternalServerError)
		return
	}

	host := &models.Player{GameID: g.ID, UserID: userID}
	if err := database.AddPlayer(r.Context(), host, g.MaxPlayers); err != nil {
		http.Error(w, "error seating host", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, g)
}

// JoinGameHandler seats the requesting user in a waiting game, looked up by
// its join code. Joining twice or joining a full game is rejected.
func JoinGameHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticateRequest(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	g, err := database.GetGameByCode(r.Context(), strings.ToUpper(strings.TrimSpace(req.Code)))
	if err != nil {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	if g.Status != models.GameStatusWaiting {
		http.Error(w, "game has already started", http.StatusConflict)
		return
	}

	player := &models.Player{GameID: g.ID, UserID: userID}
	err = database.AddPlayer(r.Context(), player, g.MaxPlayers)
	switch {
	case errors.Is(err, database.ErrGameFull):
		http.Error(w, "game is full", http.StatusConflict)
		return
	case errors.Is(err, database.ErrAlreadyJoined):
		http.Error(w, "already joined", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "error joining game", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"game":      g,
		"player_id": player.ID,
	})
}

// ListGamesHandler returns joinable games, newest first.
func ListGamesHandler(w http.ResponseWriter, r *http.Request) {
	games, err := database.ListOpenGames(r.Context())
	if err != nil {
		http.Error(w, "error listing games", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// playerView is a roster entry with the player's live balance.
type playerView struct {
	*models.Player
	Balance int `json:"balance"`
}

// GetGameHandler returns a game with its roster and balances.
// Route: GET /game/{game_id}
func GetGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID, err := parseGameID(r.URL.Path, "/game/")
	if err != nil {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}

	g, err := database.GetGame(r.Context(), gameID)
	if err != nil {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	players, err := database.ListPlayers(r.Context(), gameID)
	if err != nil {
		http.Error(w, "error listing players", http.StatusInternalServerError)
		return
	}

	roster := make([]playerView, 0, len(players))
	for _, p := range players {
		balance, err := database.GetBalance(r.Context(), p.ID)
		if err != nil {
			balance = 0
		}
		roster = append(roster, playerView{Player: p, Balance: balance})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"game":    g,
		"players": roster,
	})
}

// StartGameHandler moves a waiting game to in_progress and spins up its
// auction engine. Host only; at least two seated players required.
// Route: POST /game/start/{game_id}
func StartGameHandler(s *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticateRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		gameID, err := parseGameID(r.URL.Path, "/game/start/")
		if err != nil {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		g, err := database.GetGame(r.Context(), gameID)
		if err != nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		if g.HostID != userID {
			http.Error(w, "only the host can start the game", http.StatusForbidden)
			return
		}
		if g.Status != models.GameStatusWaiting {
			http.Error(w, "game has already started", http.StatusConflict)
			return
		}

		players, err := database.ListPlayers(r.Context(), gameID)
		if err != nil {
			http.Error(w, "error listing players", http.StatusInternalServerError)
			return
		}
		if len(players) < 2 {
			http.Error(w, "need at least 2 players to start", http.StatusConflict)
			return
		}

		if err := database.UpdateGameStatus(r.Context(), gameID, models.GameStatusInProgress); err != nil {
			http.Error(w, "error starting game", http.StatusInternalServerError)
			return
		}

		eng, err := s.StartEngine(r.Context(), g)
		if err != nil {
			s.Logger.Errorf("failed to start engine for game %s: %v", gameID, err)
			http.Error(w, "error starting game", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, eng.SnapshotState())
	}
}

// EndGameHandler closes a game. Host only. A live lot settles at its
// standing price before the game completes.
// Route: POST /game/end/{game_id}
func EndGameHandler(s *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticateRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		gameID, err := parseGameID(r.URL.Path, "/game/end/")
		if err != nil {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		g, err := database.GetGame(r.Context(), gameID)
		if err != nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		if g.HostID != userID {
			http.Error(w, "only the host can end the game", http.StatusForbidden)
			return
		}

		eng, ok := s.Registry.Get(gameID)
		if !ok {
			// No live engine; close the row directly.
			if err := database.UpdateGameStatus(r.Context(), gameID, models.GameStatusCompleted); err != nil {
				http.Error(w, "error ending game", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := eng.End(r.Context()); err != nil {
			http.Error(w, "error ending game", http.StatusInternalServerError)
			return
		}
		s.Registry.Delete(gameID)
		s.dropHub(gameID)
		w.WriteHeader(http.StatusOK)
	}
}

// parseGameID extracts the trailing UUID from paths like /game/start/{id}.
func parseGameID(path, prefix string) (uuid.UUID, error) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return uuid.Nil, errors.New("missing game id")
	}
	return uuid.Parse(rest)
}
