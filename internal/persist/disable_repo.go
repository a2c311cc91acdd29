package persist

import (
	"context"
	"fmt"
)

// DisableRow is one per-map query disable mask.
type DisableRow struct {
	MapID uint32
	Flags uint32
	Note  string
}

type DisableRepo struct {
	db *DB
}

func NewDisableRepo(db *DB) *DisableRepo {
	return &DisableRepo{db: db}
}

// LoadAll returns every stored mask keyed by map id.
func (r *DisableRepo) LoadAll(ctx context.Context) (map[uint32]uint32, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT map_id, flags FROM vmap_disables`)
	if err != nil {
		return nil, fmt.Errorf("query vmap_disables: %w", err)
	}
	defer rows.Close()

	out := make(map[uint32]uint32)
	for rows.Next() {
		var mapID, flags int32
		if err := rows.Scan(&mapID, &flags); err != nil {
			return nil, fmt.Errorf("scan vmap_disables: %w", err)
		}
		out[uint32(mapID)] = uint32(flags)
	}
	return out, rows.Err()
}

// Set stores the mask of one map, replacing any previous row.
func (r *DisableRepo) Set(ctx context.Context, row DisableRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO vmap_disables (map_id, flags, note, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (map_id) DO UPDATE
		 SET flags = EXCLUDED.flags, note = EXCLUDED.note, updated_at = now()`,
		int32(row.MapID), int32(row.Flags), row.Note,
	)
	return err
}

// Delete removes the mask of one map.
func (r *DisableRepo) Delete(ctx context.Context, mapID uint32) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM vmap_disables WHERE map_id = $1`, int32(mapID))
	return err
}
