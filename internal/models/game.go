// internal/models/game.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Game lifecycle statuses. A game is created 'waiting', flips to
// 'in_progress' when the host starts it, and ends 'completed'. The historian
// marks long-idle games 'abandoned'.
const (
	GameStatusWaiting    = "waiting"
	GameStatusInProgress = "in_progress"
	GameStatusCompleted  = "completed"
	GameStatusAbandoned  = "abandoned"
)

// Game represents a row in the games table. CurrentNominatorID references
// the player (not the user) whose turn it is to nominate the next lot.
type Game struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Code               string    `json:"code"`
	MaxPlayers         int       `json:"max_players"`
	HostID             uuid.UUID `json:"host_id"`
	Status             string    `json:"status"`
	CurrentNominatorID uuid.UUID `json:"current_nominator_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Player is a user's membership in one game. Membership is unique per
// (game, user); join order (JoinedAt ascending) defines turn order.
type Player struct {
	ID       uuid.UUID `json:"id"`
	GameID   uuid.UUID `json:"game_id"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// PlayerBalance is a player's remaining auction currency. Seeded at game
// start; only settlement decrements it.
type PlayerBalance struct {
	PlayerID uuid.UUID `json:"player_id"`
	Balance  int       `json:"balance"`
}
