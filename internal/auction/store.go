// internal/auction/store.go
package auction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pokebid/pokebid/internal/database"
	"github.com/pokebid/pokebid/internal/models"
)

// ErrInsufficientBalance is surfaced by Store.DebitBalance when the debit
// would drive the balance negative.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Store is the persistence surface the engine mirrors its state through.
// The engine's in-memory state is authoritative while it lives; the store
// makes turn state visible to readers and survives restarts.
type Store interface {
	SetCurrentNominator(ctx context.Context, gameID, playerID uuid.UUID) error
	InsertLot(ctx context.Context, lot *models.Lot) error
	UpdateLotBid(ctx context.Context, lotID uuid.UUID, price int, bidderID, turnPlayerID uuid.UUID, lastBidAt time.Time) error
	UpdateLotTurn(ctx context.Context, lotID, turnPlayerID uuid.UUID, lastBidAt time.Time) error
	GetBalance(ctx context.Context, playerID uuid.UUID) (int, error)
	DebitBalance(ctx context.Context, playerID uuid.UUID, amount int) (int, error)
	InsertCollectionItem(ctx context.Context, item *models.CollectionItem) (bool, error)
	CompleteLot(ctx context.Context, lotID uuid.UUID, auctionStatus string) (bool, error)
	UpdateGameStatus(ctx context.Context, gameID uuid.UUID, status string) error
}

// PGStore implements Store over the shared pgx pool.
type PGStore struct{}

func (PGStore) SetCurrentNominator(ctx context.Context, gameID, playerID uuid.UUID) error {
	return database.SetCurrentNominator(ctx, gameID, playerID)
}

func (PGStore) InsertLot(ctx context.Context, lot *models.Lot) error {
	return database.InsertLot(ctx, lot)
}

func (PGStore) UpdateLotBid(ctx context.Context, lotID uuid.UUID, price int, bidderID, turnPlayerID uuid.UUID, lastBidAt time.Time) error {
	return database.UpdateLotBid(ctx, lotID, price, bidderID, turnPlayerID, lastBidAt)
}

func (PGStore) UpdateLotTurn(ctx context.Context, lotID, turnPlayerID uuid.UUID, lastBidAt time.Time) error {
	return database.UpdateLotTurn(ctx, lotID, turnPlayerID, lastBidAt)
}

func (PGStore) GetBalance(ctx context.Context, playerID uuid.UUID) (int, error) {
	return database.GetBalance(ctx, playerID)
}

func (PGStore) DebitBalance(ctx context.Context, playerID uuid.UUID, amount int) (int, error) {
	n, err := database.DebitBalance(ctx, playerID, amount)
	if errors.Is(err, database.ErrInsufficientBalance) {
		return 0, ErrInsufficientBalance
	}
	return n, err
}

func (PGStore) InsertCollectionItem(ctx context.Context, item *models.CollectionItem) (bool, error) {
	return database.InsertCollectionItem(ctx, item)
}

func (PGStore) CompleteLot(ctx context.Context, lotID uuid.UUID, auctionStatus string) (bool, error) {
	return database.CompleteLot(ctx, lotID, auctionStatus)
}

func (PGStore) UpdateGameStatus(ctx context.Context, gameID uuid.UUID, status string) error {
	return database.UpdateGameStatus(ctx, gameID, status)
}
