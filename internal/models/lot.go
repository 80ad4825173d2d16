// internal/models/lot.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Auction statuses for a nominated lot. 'expired' marks a lot that closed
// without a successful settlement (e.g. winner balance insufficient).
const (
	AuctionStatusActive    = "active"
	AuctionStatusCompleted = "completed"
	AuctionStatusExpired   = "expired"
)

// Lot is a nominated Pokémon under auction: a row in nominated_pokemon.
// The nominator opens the lot as its initial highest bidder at the starting
// price; CurrentTurnPlayerID rotates through the game's join order.
type Lot struct {
	ID           uuid.UUID `json:"id"`
	GameID       uuid.UUID `json:"game_id"`
	PokemonID    int       `json:"pokemon_id"`
	PokemonName  string    `json:"pokemon_name"`
	PokemonImage string    `json:"pokemon_image"`

	CurrentPrice        int       `json:"current_price"`
	CurrentBidderID     uuid.UUID `json:"current_bidder_id,omitempty"`
	CurrentTurnPlayerID uuid.UUID `json:"current_turn_player_id,omitempty"`
	LastBidAt           time.Time `json:"last_bid_at"`
	TimePerTurn         int       `json:"time_per_turn"` // seconds

	Status        string `json:"status"`         // active | completed
	AuctionStatus string `json:"auction_status"` // active | completed | expired

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CollectionItem records a Pokémon a player has won, at the price they paid.
// At most one entry exists per (player, species).
type CollectionItem struct {
	ID               uuid.UUID `json:"id"`
	PlayerID         uuid.UUID `json:"player_id"`
	PokemonID        int       `json:"pokemon_id"`
	PokemonName      string    `json:"pokemon_name"`
	PokemonImage     string    `json:"pokemon_image"`
	AcquisitionPrice int       `json:"acquisition_price"`
	AcquiredAt       time.Time `json:"acquired_at"`
}
