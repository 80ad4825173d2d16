// internal/auction/auction.go
package auction

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pokebid/pokebid/internal/cache"
	"github.com/pokebid/pokebid/internal/models"
)

// Auction economy constants. Every player starts with the same bankroll and
// every lot opens at the same price with the nominator as initial bidder.
const (
	StartingBalance    = 1000
	StartingPrice      = 50
	DefaultTurnSeconds = 30
)

// Validation errors surfaced to the acting player. None of these mutate state.
var (
	ErrNotYourTurn    = errors.New("it is not your turn")
	ErrNotNominator   = errors.New("it is not your turn to nominate")
	ErrBidTooLow      = errors.New("bid must strictly exceed the current price")
	ErrLotClosed      = errors.New("this auction has already closed")
	ErrLotInProgress  = errors.New("another lot is already under auction")
	ErrNoActiveLot    = errors.New("no lot is under auction")
	ErrUnknownPlayer  = errors.New("you are not a player in this game")
	ErrGameOver       = errors.New("the game has ended")
	ErrNotEnoughFunds = errors.New("insufficient balance for this bid")
)

// Species carries the resolved catalog data a nomination needs.
type Species struct {
	PokemonID int
	Name      string
	Image     string
}

// Game is the authoritative turn/auction coordinator for one in-progress
// game. All state transitions happen under Mu; the store mirror and event
// broadcast follow each accepted transition.
//
// Turn model: Players is the join-order rotation. NominatorIndex tracks
// whose turn it is to open the next lot. While a lot is live,
// Lot.CurrentTurnPlayerID rotates through the same order, starting with the
// player after the nominator (the nominator opens as initial bidder and is
// skipped for the first bidding turn).
//
// End of auction: the lot settles once every player other than the current
// highest bidder has passed, or timed out, since the last accepted bid. A
// new bid clears the pass record, so an auction runs until a full round of
// passes confirms the standing price.
type Game struct {
	ID      uuid.UUID // == games.id
	Players []*models.Player

	NominatorIndex int
	Lot            *models.Lot
	TurnDuration   time.Duration

	// TurnID increments on every turn transition; timer callbacks carry the
	// TurnID they were scheduled for and are discarded when stale.
	TurnID    int
	turnTimer *time.Timer

	// passed records who has passed (or timed out) since the last bid.
	passed map[uuid.UUID]bool

	// debitedLot remembers a completed settlement debit so a retried
	// settlement never charges the winner twice.
	debitedLot     uuid.UUID
	debitedBalance int

	Started  bool
	GameOver bool

	actionIndex int
	Mu          sync.Mutex

	Store Store

	// BroadcastFn fans an event out to every connected player. If nil, no
	// broadcast is done.
	BroadcastFn func(ev Event)

	// BroadcastToPlayerFn sends an event to a single specific player.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev Event)

	// ResolveArtworkFn, when set, re-resolves a higher-resolution image and
	// generation label at settlement time. Best-effort: failures are
	// swallowed and the stored image is used instead.
	ResolveArtworkFn func(ctx context.Context, pokemonID int) (image string, generation int, err error)

	// LogActionFn publishes an action record for the historian. If nil,
	// actions are not logged.
	LogActionFn func(rec cache.AuctionActionRecord)
}

// NewGame builds an engine for a started game. players must be in join order.
func NewGame(gameID uuid.UUID, players []*models.Player, store Store) *Game {
	return &Game{
		ID:             gameID,
		Players:        players,
		NominatorIndex: 0,
		TurnDuration:   DefaultTurnSeconds * time.Second,
		passed:         make(map[uuid.UUID]bool),
		Store:          store,
	}
}

// Start marks the game live, assigns the first joined player as nominator,
// and announces the game to connected players.
func (g *Game) Start(ctx context.Context) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Started || g.GameOver {
		return nil
	}
	if len(g.Players) < 2 {
		return errors.New("cannot start with fewer than 2 players")
	}
	g.Started = true
	g.NominatorIndex = 0

	nominator := g.Players[0]
	if err := g.Store.SetCurrentNominator(ctx, g.ID, nominator.ID); err != nil {
		log.Printf("game %s: failed to persist initial nominator: %v", g.ID, err)
	}

	g.fireEvent(Event{Type: EventGameStarted, GameID: g.ID})
	g.fireNominatorUpdateLocked()
	g.logAction(uuid.Nil, "game_start", nil)
	return nil
}

// currentNominatorLocked returns the player whose turn it is to nominate.
// Assumes lock is held.
func (g *Game) currentNominatorLocked() *models.Player {
	if len(g.Players) == 0 {
		return nil
	}
	if g.NominatorIndex < 0 || g.NominatorIndex >= len(g.Players) {
		// Rotation index no longer matches the roster; restart at the top.
		g.NominatorIndex = 0
	}
	return g.Players[g.NominatorIndex]
}

// playerByID finds a player in the rotation. Assumes lock is held.
func (g *Game) playerByID(playerID uuid.UUID) (*models.Player, int) {
	for i, p := range g.Players {
		if p.ID == playerID {
			return p, i
		}
	}
	return nil, -1
}

// nextAfter returns the player following index i in join order.
// Assumes lock is held.
func (g *Game) nextAfter(i int) *models.Player {
	return g.Players[(i+1)%len(g.Players)]
}

// Nominate opens a new lot. Only the current nominator may nominate, and only
// while no other lot is live. The nominator becomes the initial highest
// bidder at the starting price, and the first bidding turn goes to the next
// player in join order (skip-self rule). The nominator rotation then
// advances.
func (g *Game) Nominate(ctx context.Context, playerID uuid.UUID, sp Species) (*models.Lot, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.GameOver || !g.Started {
		return nil, ErrGameOver
	}
	player, idx := g.playerByID(playerID)
	if player == nil {
		return nil, ErrUnknownPlayer
	}
	nominator := g.currentNominatorLocked()
	if nominator == nil || nominator.ID != playerID {
		return nil, ErrNotNominator
	}
	if g.Lot != nil {
		return nil, ErrLotInProgress
	}

	now := time.Now().UTC()
	lot := &models.Lot{
		ID:                  uuid.New(),
		GameID:              g.ID,
		PokemonID:           sp.PokemonID,
		PokemonName:         sp.Name,
		PokemonImage:        sp.Image,
		CurrentPrice:        StartingPrice,
		CurrentBidderID:     playerID,
		CurrentTurnPlayerID: g.nextAfter(idx).ID,
		LastBidAt:           now,
		TimePerTurn:         int(g.TurnDuration / time.Second),
		Status:              models.AuctionStatusActive,
		AuctionStatus:       models.AuctionStatusActive,
	}

	if err := g.Store.InsertLot(ctx, lot); err != nil {
		return nil, err
	}

	g.Lot = lot
	g.passed = make(map[uuid.UUID]bool)
	g.TurnID++
	g.scheduleTurnTimerLocked()

	// Rotate the nominator for the next lot.
	g.NominatorIndex = (idx + 1) % len(g.Players)
	next := g.Players[g.NominatorIndex]
	if err := g.Store.SetCurrentNominator(ctx, g.ID, next.ID); err != nil {
		log.Printf("game %s: failed to persist nominator rotation: %v", g.ID, err)
	}

	g.fireEvent(Event{
		Type:     EventLotNominated,
		GameID:   g.ID,
		Player:   &EventPlayer{ID: player.ID, Username: player.Username},
		Lot:      lot,
		Deadline: g.turnDeadlineLocked(),
	})
	g.fireNominatorUpdateLocked()
	g.logAction(playerID, string(EventLotNominated), map[string]interface{}{
		"lotId": lot.ID, "pokemonId": sp.PokemonID, "pokemonName": sp.Name,
	})
	return lot, nil
}

// PlaceBid accepts a bid from the current turn holder. The amount must
// strictly exceed the current price and fit within the bidder's balance.
// On success the price, highest bidder, and turn holder advance together and
// the turn clock resets.
func (g *Game) PlaceBid(ctx context.Context, playerID uuid.UUID, amount int) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.GameOver {
		return ErrGameOver
	}
	if g.Lot == nil {
		return ErrNoActiveLot
	}
	player, idx := g.playerByID(playerID)
	if player == nil {
		return ErrUnknownPlayer
	}
	if g.Lot.CurrentTurnPlayerID != playerID {
		return ErrNotYourTurn
	}
	if amount <= g.Lot.CurrentPrice {
		return ErrBidTooLow
	}

	balance, err := g.Store.GetBalance(ctx, playerID)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrNotEnoughFunds
	}

	now := time.Now().UTC()
	nextTurn := g.nextAfter(idx)

	if err := g.Store.UpdateLotBid(ctx, g.Lot.ID, amount, playerID, nextTurn.ID, now); err != nil {
		return err
	}

	g.Lot.CurrentPrice = amount
	g.Lot.CurrentBidderID = playerID
	g.Lot.CurrentTurnPlayerID = nextTurn.ID
	g.Lot.LastBidAt = now

	// A fresh bid reopens the round: previous passes no longer count toward
	// closing the auction.
	g.passed = make(map[uuid.UUID]bool)
	g.TurnID++
	g.scheduleTurnTimerLocked()

	g.fireEvent(Event{
		Type:     EventBidPlaced,
		GameID:   g.ID,
		Player:   &EventPlayer{ID: player.ID, Username: player.Username},
		Lot:      g.Lot,
		Deadline: g.turnDeadlineLocked(),
		Payload:  map[string]interface{}{"amount": amount},
	})
	g.logAction(playerID, string(EventBidPlaced), map[string]interface{}{
		"lotId": g.Lot.ID, "amount": amount,
	})
	return nil
}

// PassTurn records a pass by the current turn holder. Price and bidder stay
// unchanged; the turn advances and the clock resets. When every player other
// than the current highest bidder has passed since the last bid, the lot
// settles.
func (g *Game) PassTurn(ctx context.Context, playerID uuid.UUID) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.GameOver {
		return ErrGameOver
	}
	if g.Lot == nil {
		return ErrNoActiveLot
	}
	player, _ := g.playerByID(playerID)
	if player == nil {
		return ErrUnknownPlayer
	}
	if g.Lot.CurrentTurnPlayerID != playerID {
		return ErrNotYourTurn
	}

	g.logAction(playerID, string(EventTurnPassed), map[string]interface{}{"lotId": g.Lot.ID})
	g.recordPassLocked(ctx, player, false)
	return nil
}

// recordPassLocked applies a pass (voluntary or timeout) by player and either
// settles the lot or advances the turn. Assumes lock is held.
func (g *Game) recordPassLocked(ctx context.Context, player *models.Player, timedOut bool) {
	g.passed[player.ID] = true

	g.fireEvent(Event{
		Type:    EventTurnPassed,
		GameID:  g.ID,
		Player:  &EventPlayer{ID: player.ID, Username: player.Username},
		Lot:     g.Lot,
		Payload: map[string]interface{}{"timedOut": timedOut},
	})

	if g.passRoundCompleteLocked() {
		g.settleLocked(ctx)
		return
	}

	_, idx := g.playerByID(player.ID)
	now := time.Now().UTC()
	nextTurn := g.nextAfter(idx)

	if err := g.Store.UpdateLotTurn(ctx, g.Lot.ID, nextTurn.ID, now); err != nil {
		log.Printf("game %s: failed to persist turn advance: %v", g.ID, err)
	}

	g.Lot.CurrentTurnPlayerID = nextTurn.ID
	g.Lot.LastBidAt = now
	g.TurnID++
	g.scheduleTurnTimerLocked()

	g.fireEvent(Event{
		Type:     EventTurnUpdate,
		GameID:   g.ID,
		Player:   &EventPlayer{ID: nextTurn.ID, Username: nextTurn.Username},
		Lot:      g.Lot,
		Deadline: g.turnDeadlineLocked(),
	})
}

// passRoundCompleteLocked reports whether everyone who is not the current
// highest bidder has passed since the last bid. Assumes lock is held.
func (g *Game) passRoundCompleteLocked() bool {
	for _, p := range g.Players {
		if p.ID == g.Lot.CurrentBidderID {
			continue
		}
		if !g.passed[p.ID] {
			return false
		}
	}
	return true
}

// scheduleTurnTimerLocked (re)arms the turn expiry timer for the current
// TurnID. Assumes lock is held.
func (g *Game) scheduleTurnTimerLocked() {
	if g.TurnDuration <= 0 {
		return
	}
	if g.turnTimer != nil {
		g.turnTimer.Stop()
	}
	turnID := g.TurnID
	g.turnTimer = time.AfterFunc(g.TurnDuration, func() {
		// Run in a fresh goroutine so the timer callback never blocks on Mu.
		go g.handleTurnTimeout(turnID)
	})
}

// handleTurnTimeout treats an expired turn as a pass by the turn holder.
// Stale callbacks (the turn already advanced) are discarded via the TurnID
// check, so one expiry produces exactly one pass.
func (g *Game) handleTurnTimeout(turnID int) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.GameOver || g.Lot == nil || turnID != g.TurnID {
		return
	}
	holder, _ := g.playerByID(g.Lot.CurrentTurnPlayerID)
	if holder == nil {
		log.Printf("game %s: turn holder %s missing from roster at expiry", g.ID, g.Lot.CurrentTurnPlayerID)
		return
	}

	log.Printf("game %s: turn expired for player %s on lot %s", g.ID, holder.ID, g.Lot.ID)
	g.logAction(holder.ID, "turn_timeout", map[string]interface{}{"lotId": g.Lot.ID})
	g.recordPassLocked(context.Background(), holder, true)
}

// settleLocked runs the terminal settlement sequence for the live lot:
// best-effort artwork re-resolution, atomic winner debit, idempotent
// collection credit, and the lot's one-way transition to completed. A failed
// debit expires the lot instead; any other failure leaves the lot live so the
// next turn expiry retries. Assumes lock is held.
func (g *Game) settleLocked(ctx context.Context) {
	lot := g.Lot
	if lot == nil {
		return
	}

	winner, _ := g.playerByID(lot.CurrentBidderID)
	if winner == nil {
		log.Printf("game %s: lot %s has no resolvable winner; expiring", g.ID, lot.ID)
		g.expireLocked(ctx)
		return
	}

	image := lot.PokemonImage
	generation := 0
	if g.ResolveArtworkFn != nil {
		if hiRes, gen, err := g.ResolveArtworkFn(ctx, lot.PokemonID); err == nil {
			if hiRes != "" {
				image = hiRes
			}
			generation = gen
		}
	}

	newBalance := g.debitedBalance
	if g.debitedLot != lot.ID {
		var err error
		newBalance, err = g.Store.DebitBalance(ctx, winner.ID, lot.CurrentPrice)
		if errors.Is(err, ErrInsufficientBalance) {
			// The winner cannot cover the price. The lot closes unsettled
			// rather than driving a balance negative.
			log.Printf("game %s: winner %s cannot cover %d for lot %s; expiring",
				g.ID, winner.ID, lot.CurrentPrice, lot.ID)
			g.expireLocked(ctx)
			return
		}
		if err != nil {
			log.Printf("game %s: settlement debit failed for lot %s: %v", g.ID, lot.ID, err)
			g.retrySettlementLocked(ctx)
			return
		}
		g.debitedLot = lot.ID
		g.debitedBalance = newBalance
	}

	item := &models.CollectionItem{
		PlayerID:         winner.ID,
		PokemonID:        lot.PokemonID,
		PokemonName:      lot.PokemonName,
		PokemonImage:     image,
		AcquisitionPrice: lot.CurrentPrice,
	}
	if _, err := g.Store.InsertCollectionItem(ctx, item); err != nil {
		// The insert is idempotent, so the retry reruns the whole sequence.
		log.Printf("game %s: collection insert failed for lot %s: %v", g.ID, lot.ID, err)
		g.retrySettlementLocked(ctx)
		return
	}

	ok, err := g.Store.CompleteLot(ctx, lot.ID, models.AuctionStatusCompleted)
	if err != nil {
		log.Printf("game %s: failed to complete lot %s: %v", g.ID, lot.ID, err)
		g.retrySettlementLocked(ctx)
		return
	}
	if !ok {
		log.Printf("game %s: lot %s was already completed elsewhere", g.ID, lot.ID)
	}

	lot.Status = models.AuctionStatusCompleted
	lot.AuctionStatus = models.AuctionStatusCompleted
	lot.PokemonImage = image

	g.stopTurnTimerLocked()
	g.Lot = nil
	g.passed = make(map[uuid.UUID]bool)
	g.debitedLot = uuid.Nil

	payload := map[string]interface{}{
		"price": lot.CurrentPrice,
	}
	if generation > 0 {
		payload["generation"] = generation
	}
	g.fireEvent(Event{
		Type:    EventAuctionSettled,
		GameID:  g.ID,
		Player:  &EventPlayer{ID: winner.ID, Username: winner.Username},
		Lot:     lot,
		Payload: payload,
	})
	// The winner alone gets their updated balance.
	g.fireEventToPlayer(winner.ID, Event{
		Type:    EventAuctionSettled,
		GameID:  g.ID,
		Lot:     lot,
		Payload: map[string]interface{}{"newBalance": newBalance},
	})
	g.fireNominatorUpdateLocked()
	g.logAction(winner.ID, string(EventAuctionSettled), map[string]interface{}{
		"lotId": lot.ID, "price": lot.CurrentPrice, "newBalance": newBalance,
	})
}

// retrySettlementLocked keeps a lot live after a settlement failure and arms
// a fresh turn timer so settlement is reattempted on the next expiry.
// Assumes lock is held.
func (g *Game) retrySettlementLocked(ctx context.Context) {
	now := time.Now().UTC()
	g.Lot.LastBidAt = now
	if err := g.Store.UpdateLotTurn(ctx, g.Lot.ID, g.Lot.CurrentTurnPlayerID, now); err != nil {
		log.Printf("game %s: failed to persist settlement retry clock: %v", g.ID, err)
	}
	g.TurnID++
	g.scheduleTurnTimerLocked()

	g.fireEvent(Event{
		Type:    EventError,
		GameID:  g.ID,
		Lot:     g.Lot,
		Payload: map[string]interface{}{"message": "settlement failed; retrying"},
	})
}

// expireLocked closes a lot without settlement. Assumes lock is held.
func (g *Game) expireLocked(ctx context.Context) {
	lot := g.Lot
	if _, err := g.Store.CompleteLot(ctx, lot.ID, models.AuctionStatusExpired); err != nil {
		log.Printf("game %s: failed to expire lot %s: %v", g.ID, lot.ID, err)
	}
	lot.Status = models.AuctionStatusCompleted
	lot.AuctionStatus = models.AuctionStatusExpired

	g.stopTurnTimerLocked()
	g.Lot = nil
	g.passed = make(map[uuid.UUID]bool)

	g.fireEvent(Event{Type: EventAuctionExpired, GameID: g.ID, Lot: lot})
	g.fireNominatorUpdateLocked()
	g.logAction(uuid.Nil, string(EventAuctionExpired), map[string]interface{}{"lotId": lot.ID})
}

// End closes the game. Any live lot settles first at its standing price.
func (g *Game) End(ctx context.Context) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.GameOver {
		return nil
	}
	if g.Lot != nil {
		g.settleLocked(ctx)
	}
	g.GameOver = true
	g.stopTurnTimerLocked()

	if err := g.Store.UpdateGameStatus(ctx, g.ID, models.GameStatusCompleted); err != nil {
		return err
	}
	g.fireEvent(Event{Type: EventGameEnded, GameID: g.ID})
	g.logAction(uuid.Nil, string(EventGameEnded), nil)
	return nil
}

func (g *Game) stopTurnTimerLocked() {
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}
}

// turnDeadlineLocked computes when the current turn expires. Assumes lock is
// held and a lot is live.
func (g *Game) turnDeadlineLocked() *time.Time {
	if g.Lot == nil || g.TurnDuration <= 0 {
		return nil
	}
	d := g.Lot.LastBidAt.Add(g.TurnDuration)
	return &d
}

// fireNominatorUpdateLocked announces the current nominator. Assumes lock is
// held.
func (g *Game) fireNominatorUpdateLocked() {
	nominator := g.currentNominatorLocked()
	if nominator == nil {
		return
	}
	g.fireEvent(Event{
		Type:   EventNominatorUpdate,
		GameID: g.ID,
		Player: &EventPlayer{ID: nominator.ID, Username: nominator.Username},
	})
}

func (g *Game) fireEvent(ev Event) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	}
}

func (g *Game) fireEventToPlayer(playerID uuid.UUID, ev Event) {
	if g.BroadcastToPlayerFn != nil {
		g.BroadcastToPlayerFn(playerID, ev)
	}
}

// Snapshot is the state sent to a player on (re)connect: the live lot, whose
// turn it is, the nominator rotation, and the turn deadline.
type Snapshot struct {
	GameID        uuid.UUID        `json:"gameId"`
	Players       []*models.Player `json:"players"`
	NominatorID   uuid.UUID        `json:"nominatorId"`
	Lot           *models.Lot      `json:"lot,omitempty"`
	TurnDeadline  *time.Time       `json:"turnDeadline,omitempty"`
	Started       bool             `json:"started"`
	GameOver      bool             `json:"gameOver"`
	PassedPlayers []uuid.UUID      `json:"passedPlayers,omitempty"`
}

// SnapshotState captures the current game state under the lock.
func (g *Game) SnapshotState() Snapshot {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	snap := Snapshot{
		GameID:   g.ID,
		Players:  g.Players,
		Started:  g.Started,
		GameOver: g.GameOver,
	}
	if nom := g.currentNominatorLocked(); nom != nil {
		snap.NominatorID = nom.ID
	}
	if g.Lot != nil {
		lot := *g.Lot
		snap.Lot = &lot
		snap.TurnDeadline = g.turnDeadlineLocked()
		for id := range g.passed {
			snap.PassedPlayers = append(snap.PassedPlayers, id)
		}
	}
	return snap
}

// logAction publishes an action record for the historian queue.
func (g *Game) logAction(actor uuid.UUID, actionType string, payload map[string]interface{}) {
	if g.LogActionFn == nil {
		return
	}
	g.actionIndex++
	g.LogActionFn(cache.AuctionActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		ActorPlayerID: actor,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	})
}
