// internal/database/player.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pokebid/pokebid/internal/models"
)

// ErrInsufficientBalance is returned when an atomic debit would drive a
// player's balance negative. The debit does not happen in that case.
var ErrInsufficientBalance = errors.New("insufficient balance")

// AddPlayer inserts a membership row for (game, user), enforcing the game's
// max player count inside the same transaction.
func AddPlayer(ctx context.Context, player *models.Player, maxPlayers int) error {
	if player.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate player id: %w", err)
		}
		player.ID = id
	}

	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// Lock the game row so concurrent joins serialize on the count check.
		var gid uuid.UUID
		if err := tx.QueryRow(ctx,
			`SELECT id FROM games WHERE id=$1 FOR UPDATE`,
			player.GameID).Scan(&gid); err != nil {
			return err
		}
		var count int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM players WHERE game_id=$1`,
			player.GameID).Scan(&count); err != nil {
			return err
		}
		if count >= maxPlayers {
			return ErrGameFull
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO players (id, game_id, user_id) VALUES ($1, $2, $3)`,
			player.ID, player.GameID, player.UserID)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyJoined
		}
		return err
	}
	return nil
}

// ListPlayers returns a game's players in join order, which is the turn order
// for both nomination and bidding.
func ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	rows, err := DB.Query(ctx, `
	SELECT p.id, p.game_id, p.user_id, u.username, p.joined_at
	FROM players p
	JOIN users u ON u.id = p.user_id
	WHERE p.game_id=$1
	ORDER BY p.joined_at ASC
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.GameID, &p.UserID, &p.Username, &p.JoinedAt); err != nil {
			return nil, err
		}
		players = append(players, &p)
	}
	return players, rows.Err()
}

// GetPlayerByUser resolves a user's player row within one game.
func GetPlayerByUser(ctx context.Context, gameID, userID uuid.UUID) (*models.Player, error) {
	var p models.Player
	err := DB.QueryRow(ctx, `
	SELECT p.id, p.game_id, p.user_id, u.username, p.joined_at
	FROM players p
	JOIN users u ON u.id = p.user_id
	WHERE p.game_id=$1 AND p.user_id=$2
	`, gameID, userID).Scan(&p.ID, &p.GameID, &p.UserID, &p.Username, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SeedBalances inserts the starting balance for every player of a game in one
// transaction. Re-running it does not reset balances that already exist.
func SeedBalances(ctx context.Context, gameID uuid.UUID, amount int) error {
	q := `
	INSERT INTO player_balances (player_id, balance)
	SELECT id, $2 FROM players WHERE game_id=$1
	ON CONFLICT (player_id) DO NOTHING
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, gameID, amount)
		return err
	})
}

// GetBalance reads a player's current balance.
func GetBalance(ctx context.Context, playerID uuid.UUID) (int, error) {
	var balance int
	err := DB.QueryRow(ctx,
		`SELECT balance FROM player_balances WHERE player_id=$1`,
		playerID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// DebitBalance atomically decrements a player's balance, refusing to go
// negative. This is the settlement debit: a single conditional UPDATE, not a
// read-check-then-write. Returns the new balance.
func DebitBalance(ctx context.Context, playerID uuid.UUID, amount int) (int, error) {
	var newBalance int
	err := DB.QueryRow(ctx, `
	UPDATE player_balances
	SET balance = balance - $2, updated_at = NOW()
	WHERE player_id = $1 AND balance >= $2
	RETURNING balance
	`, playerID, amount).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	return newBalance, nil
}
