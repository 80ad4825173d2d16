// internal/auction/events.go
package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/pokebid/pokebid/internal/models"
)

// EventType is an enum-like type for broadcasting auction actions.
type EventType string

const (
	EventGameStarted     EventType = "game_started"
	EventNominatorUpdate EventType = "nominator_update"  // whose turn to nominate
	EventLotNominated    EventType = "lot_nominated"     // new lot opened
	EventBidPlaced       EventType = "bid_placed"        // price/bidder/turn updated
	EventTurnPassed      EventType = "turn_passed"       // turn advanced, price unchanged
	EventTurnUpdate      EventType = "turn_update"       // whose turn to bid + deadline
	EventAuctionSettled  EventType = "auction_settled"   // winner debited and credited
	EventAuctionExpired  EventType = "auction_expired"   // closed without settlement
	EventGameEnded       EventType = "game_ended"
	EventError           EventType = "error" // per-player rejection notice
)

// EventPlayer identifies a player within an event payload.
type EventPlayer struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username,omitempty"`
}

// Event is the wire shape fanned out to every connected player in a game.
type Event struct {
	Type   EventType    `json:"type"`
	GameID uuid.UUID    `json:"game_id"`
	Player *EventPlayer `json:"player,omitempty"`
	Lot    *models.Lot  `json:"lot,omitempty"`

	// Deadline is when the current turn expires, for turn-bearing events.
	// Clients render the countdown from this; the server clock is
	// authoritative.
	Deadline *time.Time `json:"deadline,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`
}
