package persist

import (
	"context"
	"fmt"
)

// TileFailure records one tile that could not be loaded.
type TileFailure struct {
	MapID  uint32
	TileX  int
	TileY  int
	Reason string
}

type FailureRepo struct {
	db *DB
}

func NewFailureRepo(db *DB) *FailureRepo {
	return &FailureRepo{db: db}
}

// WriteBatch stores a batch of failures in a single transaction.
func (r *FailureRepo) WriteBatch(ctx context.Context, failures []TileFailure) error {
	if len(failures) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failure log begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range failures {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tile_load_failures (map_id, tile_x, tile_y, reason)
			 VALUES ($1, $2, $3, $4)`,
			int32(f.MapID), int16(f.TileX), int16(f.TileY), f.Reason,
		); err != nil {
			return fmt.Errorf("failure log insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Resolve marks the open failures of one map as handled, typically after
// its files were regenerated.
func (r *FailureRepo) Resolve(ctx context.Context, mapID uint32) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE tile_load_failures SET resolved = TRUE WHERE map_id = $1 AND resolved = FALSE`,
		int32(mapID),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
