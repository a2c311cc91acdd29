package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/l1jgo/vmap/internal/config"
	"github.com/l1jgo/vmap/internal/data"
	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/persist"
	"github.com/l1jgo/vmap/internal/vmap"
)

// app is the state shared by every command.
type app struct {
	cfg  *config.Config
	log  *zap.Logger
	mgr  *vmap.Manager
	maps *data.MapListTable
	db   *persist.DB // nil without a DSN
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, mgr: vmap.NewManager(log)}
	a.mgr.SetSettings(vmap.Settings{
		EnableLOS:        cfg.VMap.EnableLOS,
		EnableHeight:     cfg.VMap.EnableHeight,
		EnableMapLoading: cfg.VMap.EnableMapLoading,
	})

	maps, err := loadMapList(cfg.VMap.MapList)
	if err != nil {
		return nil, err
	}
	a.maps = maps
	disables := maps.Disables()

	if cfg.Database.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if a.db, err = openDB(ctx, cfg.Database, log); err != nil {
			return nil, err
		}
		stored, err := persist.NewDisableRepo(a.db).LoadAll(ctx)
		if err != nil {
			a.db.Close()
			return nil, err
		}
		// Database rows override the map list.
		for id, flags := range stored {
			disables[id] = flags
		}
		log.Debug("disables loaded from database", zap.Int("maps", len(stored)))
	}
	a.mgr.SetDisables(disables)
	return a, nil
}

func loadMapList(path string) (*data.MapListTable, error) {
	if path == "" {
		return data.ParseMapList(nil)
	}
	maps, err := data.LoadMapList(path)
	if errors.Is(err, fs.ErrNotExist) {
		return data.ParseMapList(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load map list: %w", err)
	}
	return maps, nil
}

func openDB(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*persist.DB, error) {
	db, err := persist.NewDB(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}

func (a *app) requireDB() error {
	if a.db == nil {
		return fmt.Errorf("database.dsn is not configured")
	}
	return nil
}

func (a *app) close() {
	a.mgr.UnloadAll()
	if a.db != nil {
		a.db.Close()
	}
}

// loadAround loads the tile under a world position. Missing tiles are not an
// error: queries simply see nothing there.
func (a *app) loadAround(mapID uint32, x, y float32) {
	tx, ty := geom.TileOf(x, y)
	if !geom.ValidTile(tx, ty) {
		return
	}
	_ = a.mgr.LoadTile(a.cfg.VMap.BasePath, mapID, tx, ty)
}

type preloadResult struct {
	loaded, failed int
}

// preload loads tiles with at most workers loads in flight. It stops early
// when ctx is cancelled.
func preload(ctx context.Context, mgr *vmap.Manager, basePath string, tiles []data.PreloadTile, workers int) (preloadResult, error) {
	var loaded, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for _, t := range tiles {
		if ctx.Err() != nil {
			break
		}
		t := t
		g.Go(func() error {
			if err := mgr.LoadTile(basePath, t.MapID, t.X, t.Y); err != nil {
				failed.Add(1)
				return nil // logged by the manager
			}
			loaded.Add(1)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return preloadResult{loaded: int(loaded.Load()), failed: int(failed.Load())}, err
}
