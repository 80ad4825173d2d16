// internal/handlers/collection.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pokebid/pokebid/internal/database"
)

// CollectionHandler returns a player's won Pokémon, newest first.
// Route: GET /collection/{player_id}
func CollectionHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := authenticateRequest(r); err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/collection/")
	idStr = strings.TrimSuffix(idStr, "/")
	playerID, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}

	items, err := database.ListCollection(r.Context(), playerID)
	if err != nil {
		http.Error(w, "error listing collection", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// BalanceHandler returns a player's current balance.
// Route: GET /balance/{player_id}
func BalanceHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := authenticateRequest(r); err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/balance/")
	idStr = strings.TrimSuffix(idStr, "/")
	playerID, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}

	balance, err := database.GetBalance(r.Context(), playerID)
	if err != nil {
		http.Error(w, "player not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"player_id": playerID,
		"balance":   balance,
	})
}
