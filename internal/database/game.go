// internal/database/game.go
package database

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pokebid/pokebid/internal/models"
)

// codeAlphabet omits easily-confused characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// codeLength is the join code length.
const codeLength = 6

// ErrGameFull is returned by AddPlayer when the game is at max capacity.
var ErrGameFull = errors.New("game is full")

// ErrAlreadyJoined is returned by AddPlayer on a duplicate (game, user) membership.
var ErrAlreadyJoined = errors.New("user already joined this game")

// GenerateGameCode produces a random join code from the unambiguous alphabet.
func GenerateGameCode() (string, error) {
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate game code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// InsertGame creates a new game row with a fresh join code, retrying a few
// times if the generated code collides with an existing game.
func InsertGame(ctx context.Context, game *models.Game) error {
	if game.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate game id: %w", err)
		}
		game.ID = id
	}

	q := `
	INSERT INTO games (id, name, code, max_players, host_id, status)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	for attempt := 0; attempt < 5; attempt++ {
		code, err := GenerateGameCode()
		if err != nil {
			return err
		}
		game.Code = code
		game.Status = models.GameStatusWaiting

		err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
			_, execErr := tx.Exec(ctx, q,
				game.ID, game.Name, game.Code, game.MaxPlayers, game.HostID, game.Status)
			return execErr
		})
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "games_code_key" {
			continue // code collision, regenerate
		}
		return fmt.Errorf("failed to insert game: %w", err)
	}
	return fmt.Errorf("failed to generate a unique game code")
}

// GetGame fetches a game by ID.
func GetGame(ctx context.Context, gameID uuid.UUID) (*models.Game, error) {
	return scanGame(DB.QueryRow(ctx, `
	SELECT id, name, code, max_players, host_id, status,
	       COALESCE(current_nominator_id, '00000000-0000-0000-0000-000000000000'),
	       created_at, updated_at
	FROM games WHERE id=$1
	`, gameID))
}

// GetGameByCode looks up a joinable game by its join code.
func GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	return scanGame(DB.QueryRow(ctx, `
	SELECT id, name, code, max_players, host_id, status,
	       COALESCE(current_nominator_id, '00000000-0000-0000-0000-000000000000'),
	       created_at, updated_at
	FROM games WHERE code=$1
	`, code))
}

// ListOpenGames returns games still waiting for players, newest first.
func ListOpenGames(ctx context.Context) ([]*models.Game, error) {
	rows, err := DB.Query(ctx, `
	SELECT id, name, code, max_players, host_id, status,
	       COALESCE(current_nominator_id, '00000000-0000-0000-0000-000000000000'),
	       created_at, updated_at
	FROM games
	WHERE status=$1
	ORDER BY created_at DESC
	`, models.GameStatusWaiting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// UpdateGameStatus transitions a game's lifecycle status.
func UpdateGameStatus(ctx context.Context, gameID uuid.UUID, status string) error {
	q := `UPDATE games SET status=$1, updated_at=NOW() WHERE id=$2`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, status, gameID)
		return err
	})
}

// SetCurrentNominator persists the player whose turn it is to nominate.
func SetCurrentNominator(ctx context.Context, gameID, playerID uuid.UUID) error {
	q := `UPDATE games SET current_nominator_id=$1, updated_at=NOW() WHERE id=$2`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, playerID, gameID)
		return err
	})
}

func scanGame(row pgx.Row) (*models.Game, error) {
	var g models.Game
	err := row.Scan(
		&g.ID, &g.Name, &g.Code, &g.MaxPlayers, &g.HostID, &g.Status,
		&g.CurrentNominatorID, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}
