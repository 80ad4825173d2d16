// internal/database/collection.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pokebid/pokebid/internal/models"
)

// InsertCollectionItem credits a won Pokémon to a player. The unique
// (player_id, pokemon_id) constraint plus ON CONFLICT DO NOTHING makes the
// insert idempotent, so a retried settlement cannot duplicate the entry.
// Returns false when the entry already existed.
func InsertCollectionItem(ctx context.Context, item *models.CollectionItem) (bool, error) {
	if item.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return false, fmt.Errorf("failed to generate collection item id: %w", err)
		}
		item.ID = id
	}

	q := `
	INSERT INTO player_collections (
		id, player_id, pokemon_id, pokemon_name, pokemon_image, acquisition_price
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (player_id, pokemon_id) DO NOTHING
	`
	var inserted bool
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q,
			item.ID, item.PlayerID, item.PokemonID,
			item.PokemonName, item.PokemonImage, item.AcquisitionPrice)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() == 1
		return nil
	})
	return inserted, err
}

// ListCollection returns everything a player has won, newest first.
func ListCollection(ctx context.Context, playerID uuid.UUID) ([]*models.CollectionItem, error) {
	rows, err := DB.Query(ctx, `
	SELECT id, player_id, pokemon_id, pokemon_name, pokemon_image,
	       acquisition_price, acquired_at
	FROM player_collections
	WHERE player_id=$1
	ORDER BY acquired_at DESC
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.CollectionItem
	for rows.Next() {
		var it models.CollectionItem
		if err := rows.Scan(&it.ID, &it.PlayerID, &it.PokemonID, &it.PokemonName,
			&it.PokemonImage, &it.AcquisitionPrice, &it.AcquiredAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}
