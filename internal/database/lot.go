// internal/database/lot.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pokebid/pokebid/internal/models"
)

// InsertLot creates a nominated_pokemon row for a freshly nominated lot.
func InsertLot(ctx context.Context, lot *models.Lot) error {
	if lot.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate lot id: %w", err)
		}
		lot.ID = id
	}

	q := `
	INSERT INTO nominated_pokemon (
		id, game_id, pokemon_id, pokemon_name, pokemon_image,
		current_price, current_bidder_id, current_turn_player_id,
		last_bid_at, time_per_turn, status, auction_status
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			lot.ID, lot.GameID, lot.PokemonID, lot.PokemonName, lot.PokemonImage,
			lot.CurrentPrice, lot.CurrentBidderID, lot.CurrentTurnPlayerID,
			lot.LastBidAt, lot.TimePerTurn, lot.Status, lot.AuctionStatus,
		)
		return err
	})
}

// UpdateLotBid records an accepted bid: price, highest bidder, next turn
// holder, and the turn clock reset, in one statement.
func UpdateLotBid(ctx context.Context, lotID uuid.UUID, price int, bidderID, turnPlayerID uuid.UUID, lastBidAt time.Time) error {
	q := `
	UPDATE nominated_pokemon
	SET current_price=$2, current_bidder_id=$3, current_turn_player_id=$4,
	    last_bid_at=$5, updated_at=NOW()
	WHERE id=$1 AND status='active'
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, lotID, price, bidderID, turnPlayerID, lastBidAt)
		return err
	})
}

// UpdateLotTurn records a pass (or timeout): only the turn holder and clock
// change; price and bidder stay put.
func UpdateLotTurn(ctx context.Context, lotID, turnPlayerID uuid.UUID, lastBidAt time.Time) error {
	q := `
	UPDATE nominated_pokemon
	SET current_turn_player_id=$2, last_bid_at=$3, updated_at=NOW()
	WHERE id=$1 AND status='active'
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, lotID, turnPlayerID, lastBidAt)
		return err
	})
}

// CompleteLot transitions an active lot to completed exactly once. The
// conditional WHERE makes concurrent settlement attempts race safely: only
// the first caller sees ok=true.
func CompleteLot(ctx context.Context, lotID uuid.UUID, auctionStatus string) (bool, error) {
	var ok bool
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
		UPDATE nominated_pokemon
		SET status='completed', auction_status=$2, updated_at=NOW()
		WHERE id=$1 AND status='active'
		`, lotID, auctionStatus)
		if err != nil {
			return err
		}
		ok = tag.RowsAffected() == 1
		return nil
	})
	return ok, err
}

// GetLot fetches a lot by ID.
func GetLot(ctx context.Context, lotID uuid.UUID) (*models.Lot, error) {
	return scanLot(DB.QueryRow(ctx, lotSelect+` WHERE id=$1`, lotID))
}

// ListActiveLots returns a game's lots still under auction.
func ListActiveLots(ctx context.Context, gameID uuid.UUID) ([]*models.Lot, error) {
	rows, err := DB.Query(ctx, lotSelect+` WHERE game_id=$1 AND status='active' ORDER BY created_at ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

// ListStaleActiveLots finds active lots whose turn clock has been silent for
// longer than cutoff. The sweeper uses this to recover auctions whose
// in-memory engine was lost (e.g. across a restart).
func ListStaleActiveLots(ctx context.Context, cutoff time.Time) ([]*models.Lot, error) {
	rows, err := DB.Query(ctx, lotSelect+` WHERE status='active' AND last_bid_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

const lotSelect = `
	SELECT id, game_id, pokemon_id, pokemon_name, pokemon_image,
	       current_price,
	       COALESCE(current_bidder_id, '00000000-0000-0000-0000-000000000000'),
	       COALESCE(current_turn_player_id, '00000000-0000-0000-0000-000000000000'),
	       last_bid_at, time_per_turn, status, auction_status,
	       created_at, updated_at
	FROM nominated_pokemon`

func scanLot(row pgx.Row) (*models.Lot, error) {
	var l models.Lot
	err := row.Scan(
		&l.ID, &l.GameID, &l.PokemonID, &l.PokemonName, &l.PokemonImage,
		&l.CurrentPrice, &l.CurrentBidderID, &l.CurrentTurnPlayerID,
		&l.LastBidAt, &l.TimePerTurn, &l.Status, &l.AuctionStatus,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLots(rows pgx.Rows) ([]*models.Lot, error) {
	var lots []*models.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}
