// internal/auction/auction_test.go
package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokebid/pokebid/internal/models"
)

// fakeStore is an in-memory Store with the same atomicity semantics as the
// postgres implementation: conditional debit, idempotent collection insert,
// one-way lot completion.
type fakeStore struct {
	mu          sync.Mutex
	nominator   map[uuid.UUID]uuid.UUID
	balances    map[uuid.UUID]int
	lots        map[uuid.UUID]*models.Lot
	collections map[uuid.UUID]map[int]*models.CollectionItem
	gameStatus  map[uuid.UUID]string

	failDebit    bool
	failComplete bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nominator:   make(map[uuid.UUID]uuid.UUID),
		balances:    make(map[uuid.UUID]int),
		lots:        make(map[uuid.UUID]*models.Lot),
		collections: make(map[uuid.UUID]map[int]*models.CollectionItem),
		gameStatus:  make(map[uuid.UUID]string),
	}
}

func (s *fakeStore) SetCurrentNominator(_ context.Context, gameID, playerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nominator[gameID] = playerID
	return nil
}

func (s *fakeStore) InsertLot(_ context.Context, lot *models.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *lot
	s.lots[lot.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateLotBid(_ context.Context, lotID uuid.UUID, price int, bidderID, turnPlayerID uuid.UUID, lastBidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot := s.lots[lotID]
	if lot == nil || lot.Status != models.AuctionStatusActive {
		return nil
	}
	lot.CurrentPrice = price
	lot.CurrentBidderID = bidderID
	lot.CurrentTurnPlayerID = turnPlayerID
	lot.LastBidAt = lastBidAt
	return nil
}

func (s *fakeStore) UpdateLotTurn(_ context.Context, lotID, turnPlayerID uuid.UUID, lastBidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot := s.lots[lotID]
	if lot == nil || lot.Status != models.AuctionStatusActive {
		return nil
	}
	lot.CurrentTurnPlayerID = turnPlayerID
	lot.LastBidAt = lastBidAt
	return nil
}

func (s *fakeStore) GetBalance(_ context.Context, playerID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[playerID], nil
}

func (s *fakeStore) DebitBalance(_ context.Context, playerID uuid.UUID, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDebit {
		return 0, assert.AnError
	}
	bal := s.balances[playerID]
	if bal < amount {
		return 0, ErrInsufficientBalance
	}
	s.balances[playerID] = bal - amount
	return bal - amount, nil
}

func (s *fakeStore) InsertCollectionItem(_ context.Context, item *models.CollectionItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPokemon := s.collections[item.PlayerID]
	if byPokemon == nil {
		byPokemon = make(map[int]*models.CollectionItem)
		s.collections[item.PlayerID] = byPokemon
	}
	if _, exists := byPokemon[item.PokemonID]; exists {
		return false, nil
	}
	cp := *item
	byPokemon[item.PokemonID] = &cp
	return true, nil
}

func (s *fakeStore) CompleteLot(_ context.Context, lotID uuid.UUID, auctionStatus string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failComplete {
		return false, assert.AnError
	}
	lot := s.lots[lotID]
	if lot == nil || lot.Status != models.AuctionStatusActive {
		return false, nil
	}
	lot.Status = models.AuctionStatusCompleted
	lot.AuctionStatus = auctionStatus
	return true, nil
}

func (s *fakeStore) UpdateGameStatus(_ context.Context, gameID uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameStatus[gameID] = status
	return nil
}

// eventSink collects broadcast events instead of sending them over WS.
type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (es *eventSink) broadcastFn(ev Event) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.events = append(es.events, ev)
}

func (es *eventSink) byType(t EventType) []Event {
	es.mu.Lock()
	defer es.mu.Unlock()
	var out []Event
	for _, ev := range es.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// setupTestGame builds a started game with numPlayers players, each holding
// the standard starting balance, backed by a fakeStore.
func setupTestGame(t *testing.T, numPlayers int) (*Game, []*models.Player, *fakeStore, *eventSink) {
	t.Helper()

	store := newFakeStore()
	gameID := uuid.New()
	players := make([]*models.Player, numPlayers)
	for i := 0; i < numPlayers; i++ {
		players[i] = &models.Player{
			ID:       uuid.New(),
			GameID:   gameID,
			UserID:   uuid.New(),
			Username: string(rune('A' + i)),
		}
		store.balances[players[i].ID] = StartingBalance
	}

	g := NewGame(gameID, players, store)
	g.TurnDuration = 0 // no timers unless a test arms them

	sink := &eventSink{}
	g.BroadcastFn = sink.broadcastFn

	require.NoError(t, g.Start(context.Background()))
	return g, players, store, sink
}

func nominate(t *testing.T, g *Game, playerID uuid.UUID) *models.Lot {
	t.Helper()
	lot, err := g.Nominate(context.Background(), playerID, Species{
		PokemonID: 25,
		Name:      "pikachu",
		Image:     "https://img.example/25.png",
	})
	require.NoError(t, err)
	return lot
}

func TestNominateOpensLotWithNominatorAsInitialBidder(t *testing.T) {
	g, players, _, sink := setupTestGame(t, 3)

	lot := nominate(t, g, players[0].ID)

	assert.Equal(t, StartingPrice, lot.CurrentPrice)
	assert.Equal(t, players[0].ID, lot.CurrentBidderID, "nominator opens as highest bidder")
	assert.Equal(t, players[1].ID, lot.CurrentTurnPlayerID, "first bidding turn skips the nominator")
	assert.Len(t, sink.byType(EventLotNominated), 1)
}

func TestNominateRejectsNonNominator(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 3)

	_, err := g.Nominate(context.Background(), players[1].ID, Species{PokemonID: 1, Name: "bulbasaur"})
	assert.ErrorIs(t, err, ErrNotNominator)
}

func TestNominateRejectsSecondLot(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 2)

	nominate(t, g, players[0].ID)

	// The rotation has advanced to player B, but a lot is already live.
	_, err := g.Nominate(context.Background(), players[1].ID, Species{PokemonID: 4, Name: "charmander"})
	assert.ErrorIs(t, err, ErrLotInProgress)
}

func TestNominatorRotatesAfterNomination(t *testing.T) {
	g, players, store, _ := setupTestGame(t, 3)

	nominate(t, g, players[0].ID)

	assert.Equal(t, 1, g.NominatorIndex)
	assert.Equal(t, players[1].ID, store.nominator[g.ID], "rotation persisted")
}

func TestPlaceBidMustStrictlyExceedPrice(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 2)
	nominate(t, g, players[0].ID)

	err := g.PlaceBid(context.Background(), players[1].ID, StartingPrice)
	assert.ErrorIs(t, err, ErrBidTooLow)

	err = g.PlaceBid(context.Background(), players[1].ID, StartingPrice-10)
	assert.ErrorIs(t, err, ErrBidTooLow)

	err = g.PlaceBid(context.Background(), players[1].ID, StartingPrice+1)
	assert.NoError(t, err)
}

func TestPlaceBidRejectsOutOfTurn(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 3)
	nominate(t, g, players[0].ID)

	// Turn belongs to players[1]; players[2] may not act yet.
	err := g.PlaceBid(context.Background(), players[2].ID, 100)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestPlaceBidRejectsBeyondBalance(t *testing.T) {
	g, players, store, _ := setupTestGame(t, 2)
	store.balances[players[1].ID] = 60
	nominate(t, g, players[0].ID)

	err := g.PlaceBid(context.Background(), players[1].ID, 61)
	assert.ErrorIs(t, err, ErrNotEnoughFunds)

	// Bidding the full balance is allowed.
	err = g.PlaceBid(context.Background(), players[1].ID, 60)
	assert.NoError(t, err)
}

func TestBidResetsPassRound(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 3)
	nominate(t, g, players[0].ID)

	// B passes, C bids. B's pass no longer counts toward closing.
	require.NoError(t, g.PassTurn(context.Background(), players[1].ID))
	require.NoError(t, g.PlaceBid(context.Background(), players[2].ID, 75))

	assert.Empty(t, g.passed)
	assert.Equal(t, players[0].ID, g.Lot.CurrentTurnPlayerID, "turn wraps to A after C's bid")
}

func TestTwoPlayerAuctionSettlement(t *testing.T) {
	g, players, store, sink := setupTestGame(t, 2)
	ctx := context.Background()

	// A nominates at 50, B bids 75, A passes. Everyone but the highest
	// bidder has now passed, so the lot settles to B at 75.
	nominate(t, g, players[0].ID)
	require.NoError(t, g.PlaceBid(ctx, players[1].ID, 75))
	require.NoError(t, g.PassTurn(ctx, players[0].ID))

	assert.Nil(t, g.Lot, "lot closed after settlement")
	assert.Equal(t, StartingBalance-75, store.balances[players[1].ID])
	assert.Equal(t, StartingBalance, store.balances[players[0].ID], "loser pays nothing")

	items := store.collections[players[1].ID]
	require.Len(t, items, 1)
	assert.Equal(t, 75, items[25].AcquisitionPrice)

	settled := sink.byType(EventAuctionSettled)
	require.Len(t, settled, 1)
	assert.Equal(t, players[1].ID, settled[0].Player.ID)
}

func TestUncontestedLotGoesToNominatorAtStartingPrice(t *testing.T) {
	g, players, store, _ := setupTestGame(t, 3)
	ctx := context.Background()

	nominate(t, g, players[0].ID)
	require.NoError(t, g.PassTurn(ctx, players[1].ID))
	require.NoError(t, g.PassTurn(ctx, players[2].ID))

	assert.Nil(t, g.Lot)
	assert.Equal(t, StartingBalance-StartingPrice, store.balances[players[0].ID])
	require.Len(t, store.collections[players[0].ID], 1)
}

func TestPassOnlyForfeitsCurrentRound(t *testing.T) {
	g, players, store, _ := setupTestGame(t, 3)
	ctx := context.Background()

	nominate(t, g, players[0].ID)

	// B passes, C bids 80, turn wraps to A who passes, then back to B who
	// may bid again despite the earlier pass.
	require.NoError(t, g.PassTurn(ctx, players[1].ID))
	require.NoError(t, g.PlaceBid(ctx, players[2].ID, 80))
	require.NoError(t, g.PassTurn(ctx, players[0].ID))
	require.NoError(t, g.PlaceBid(ctx, players[1].ID, 100))

	// A and C fold; B wins at 100.
	require.NoError(t, g.PassTurn(ctx, players[2].ID))
	require.NoError(t, g.PassTurn(ctx, players[0].ID))

	assert.Nil(t, g.Lot)
	assert.Equal(t, StartingBalance-100, store.balances[players[1].ID])
}

func TestTurnTimeoutCountsAsPass(t *testing.T) {
	g, players, store, sink := setupTestGame(t, 2)
	g.TurnDuration = 50 * time.Millisecond

	nominate(t, g, players[0].ID)

	// B never acts; the timer passes on B's behalf and the lot settles to
	// the nominator at the starting price.
	assert.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		return g.Lot == nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StartingBalance-StartingPrice, store.balances[players[0].ID])

	passed := sink.byType(EventTurnPassed)
	require.NotEmpty(t, passed)
	assert.Equal(t, true, passed[0].Payload["timedOut"])
}

func TestStaleTimerCallbackIsDiscarded(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 3)
	nominate(t, g, players[0].ID)

	staleTurnID := g.TurnID
	require.NoError(t, g.PassTurn(context.Background(), players[1].ID))

	// Replay the expired callback for the turn that already advanced.
	g.handleTurnTimeout(staleTurnID)

	g.Mu.Lock()
	defer g.Mu.Unlock()
	assert.Equal(t, players[2].ID, g.Lot.CurrentTurnPlayerID, "stale expiry must not advance the turn again")
	assert.False(t, g.passed[players[2].ID])
}

func TestInsufficientBalanceAtSettlementExpiresLot(t *testing.T) {
	g, players, store, sink := setupTestGame(t, 2)
	ctx := context.Background()

	nominate(t, g, players[0].ID)
	require.NoError(t, g.PlaceBid(ctx, players[1].ID, 200))

	// B's balance drains between bid acceptance and settlement (e.g. a
	// concurrent settlement in another lot of a prior game state).
	store.mu.Lock()
	store.balances[players[1].ID] = 100
	store.mu.Unlock()

	require.NoError(t, g.PassTurn(ctx, players[0].ID))

	assert.Nil(t, g.Lot)
	assert.Equal(t, 100, store.balances[players[1].ID], "no partial debit")
	assert.Empty(t, store.collections[players[1].ID])
	assert.Len(t, sink.byType(EventAuctionExpired), 1)
}

func TestSettlementRetriesAfterTransientDebitFailure(t *testing.T) {
	g, players, store, _ := setupTestGame(t, 2)
	g.TurnDuration = 50 * time.Millisecond
	ctx := context.Background()

	nominate(t, g, players[0].ID)
	require.NoError(t, g.PlaceBid(ctx, players[1].ID, 75))

	store.mu.Lock()
	store.failDebit = true
	store.mu.Unlock()

	require.NoError(t, g.PassTurn(ctx, players[0].ID))

	g.Mu.Lock()
	assert.NotNil(t, g.Lot, "lot stays live after a transient store failure")
	g.Mu.Unlock()

	store.mu.Lock()
	store.failDebit = false
	store.mu.Unlock()

	// The rearmed turn timer drives the retry.
	assert.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		return g.Lot == nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StartingBalance-75, store.balances[players[1].ID])
}

func TestRetrySettlementDoesNotDebitTwice(t *testing.T) {
	g, players, store, _ := setupTestGame(t, 2)
	g.TurnDuration = 50 * time.Millisecond
	ctx := context.Background()

	nominate(t, g, players[0].ID)
	require.NoError(t, g.PlaceBid(ctx, players[1].ID, 75))

	// The debit lands but the lot's completed transition fails transiently.
	store.mu.Lock()
	store.failComplete = true
	store.mu.Unlock()

	require.NoError(t, g.PassTurn(ctx, players[0].ID))

	g.Mu.Lock()
	assert.NotNil(t, g.Lot, "lot stays live pending retry")
	g.Mu.Unlock()
	assert.Equal(t, StartingBalance-75, store.balances[players[1].ID], "debit applied once")

	store.mu.Lock()
	store.failComplete = false
	store.mu.Unlock()

	assert.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		return g.Lot == nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StartingBalance-75, store.balances[players[1].ID], "retry must not charge again")
	require.Len(t, store.collections[players[1].ID], 1)
}

func TestCollectionInsertIsIdempotent(t *testing.T) {
	store := newFakeStore()
	playerID := uuid.New()

	item := &models.CollectionItem{PlayerID: playerID, PokemonID: 7, PokemonName: "squirtle", AcquisitionPrice: 90}
	inserted, err := store.InsertCollectionItem(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertCollectionItem(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate insert is a no-op")
}

func TestEndSettlesLiveLotAndClosesGame(t *testing.T) {
	g, players, store, sink := setupTestGame(t, 2)
	ctx := context.Background()

	nominate(t, g, players[0].ID)
	require.NoError(t, g.PlaceBid(ctx, players[1].ID, 120))

	require.NoError(t, g.End(ctx))

	assert.True(t, g.GameOver)
	assert.Equal(t, models.GameStatusCompleted, store.gameStatus[g.ID])
	assert.Equal(t, StartingBalance-120, store.balances[players[1].ID], "live lot settles at standing price")
	assert.Len(t, sink.byType(EventGameEnded), 1)

	// Further actions are rejected.
	_, err := g.Nominate(ctx, players[0].ID, Species{PokemonID: 1, Name: "bulbasaur"})
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestNominatorIndexResetsWhenOutOfRange(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 3)

	g.Mu.Lock()
	g.NominatorIndex = 99
	nom := g.currentNominatorLocked()
	g.Mu.Unlock()

	assert.Equal(t, players[0].ID, nom.ID, "rotation restarts at the first joined player")
}

func TestSnapshotReflectsLiveLot(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 2)

	snap := g.SnapshotState()
	assert.Nil(t, snap.Lot)
	assert.Equal(t, players[0].ID, snap.NominatorID)

	nominate(t, g, players[0].ID)
	require.NoError(t, g.PassTurn(context.Background(), players[1].ID))

	// Two players, B passed: the lot already settled to A, so reopen one.
	snap = g.SnapshotState()
	assert.Nil(t, snap.Lot)

	lot := nominate(t, g, players[1].ID)
	snap = g.SnapshotState()
	require.NotNil(t, snap.Lot)
	assert.Equal(t, lot.ID, snap.Lot.ID)
	assert.True(t, snap.Started)
}

func TestArtworkResolutionUpgradesImageBestEffort(t *testing.T) {
	g, players, store, _ := setupTestGame(t, 2)
	ctx := context.Background()

	g.ResolveArtworkFn = func(ctx context.Context, pokemonID int) (string, int, error) {
		return "https://img.example/official/25.png", 1, nil
	}

	nominate(t, g, players[0].ID)
	require.NoError(t, g.PassTurn(ctx, players[1].ID))

	items := store.collections[players[0].ID]
	require.Len(t, items, 1)
	assert.Equal(t, "https://img.example/official/25.png", items[25].PokemonImage)
}
