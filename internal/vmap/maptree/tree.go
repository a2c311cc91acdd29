// Package maptree is the tile index of one map: the tiles currently loaded,
// the model instances they placed, and the spatial queries over them.
package maptree

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/vmap/cache"
	"github.com/l1jgo/vmap/internal/vmap/format"
)

var (
	// ErrRetired is returned by LoadTile on a tree its owner has discarded.
	// The caller should fetch or create a fresh tree and retry.
	ErrRetired = errors.New("map tree retired")
	// ErrOutOfGrid rejects tile coordinates off the 64x64 grid.
	ErrOutOfGrid = errors.New("tile outside the map grid")
	// ErrNotInitialized is returned before InitMap has succeeded.
	ErrNotInitialized = errors.New("map tree not initialized")
)

// slotStripes bounds the number of tile locks; tiles hashing to the same
// stripe serialize their loads.
const slotStripes = 64

// Tree holds the loaded tiles of one map.
type Tree struct {
	mapID    uint32
	basePath string
	cache    *cache.Cache
	log      *zap.Logger

	// Set by InitMap, read-only afterwards.
	info   *format.MapFile
	listed map[tileKey]geom.AABB // tile bounds from the map file

	slots [slotStripes]sync.Mutex

	mu      sync.Mutex // serializes publication and retirement
	retired bool
	current atomic.Pointer[snapshot]
}

// New returns an empty tree. InitMap must be called before it is shared.
func New(mapID uint32, basePath string, c *cache.Cache, log *zap.Logger) *Tree {
	t := &Tree{
		mapID:    mapID,
		basePath: basePath,
		cache:    c,
		log:      log.With(zap.Uint32("map", mapID)),
	}
	t.current.Store(newSnapshot(nil, nil))
	return t
}

func (t *Tree) MapID() uint32 { return t.mapID }

func (t *Tree) BasePath() string { return t.basePath }

// InitMap reads the map file and, for maps that are not tiled, loads their
// global models.
func (t *Tree) InitMap() error {
	path := filepath.Join(t.basePath, format.MapFileName(t.mapID))
	mf, err := format.ReadMapFile(path)
	if err != nil {
		t.log.Error("could not read map tree", zap.String("path", path), zap.Error(err))
		return err
	}
	listed := make(map[tileKey]geom.AABB, len(mf.Tiles))
	for _, e := range mf.Tiles {
		listed[tileKey{e.X, e.Y}] = e.Bounds
	}

	var global *tile
	if len(mf.Global) > 0 {
		instances, err := t.acquireSpawns(mf.Global)
		if err != nil {
			return fmt.Errorf("map %d global models: %w", t.mapID, err)
		}
		global = newTile(tileKey{-1, -1}, instances)
	}

	t.info = mf
	t.listed = listed
	t.current.Store(newSnapshot(nil, global))
	t.log.Debug("map tree initialized",
		zap.Bool("tiled", mf.Tiled()),
		zap.Int("tiles", len(mf.Tiles)),
		zap.Int("global", len(mf.Global)),
	)
	return nil
}

func (t *Tree) slot(k tileKey) *sync.Mutex {
	return &t.slots[uint(k.x*geom.GridTiles+k.y)%slotStripes]
}

// LoadTile loads the models of tile (x, y). Loading a loaded tile is a
// no-op. On failure nothing stays referenced.
func (t *Tree) LoadTile(x, y int) error {
	if t.info == nil {
		return ErrNotInitialized
	}
	if !geom.ValidTile(x, y) {
		return fmt.Errorf("%w: %d,%d", ErrOutOfGrid, x, y)
	}
	key := tileKey{x, y}
	slot := t.slot(key)
	slot.Lock()
	defer slot.Unlock()

	if t.current.Load().byKey[key] != nil {
		return nil
	}
	tl, err := t.buildTile(key)
	if err != nil {
		return err
	}
	if err := t.publish(func(s *snapshot) *snapshot { return s.with(tl) }); err != nil {
		t.releaseTile(tl)
		return err
	}
	t.log.Debug("loaded tile", zap.Int("x", x), zap.Int("y", y), zap.Int("instances", len(tl.instances)))
	return nil
}

// buildTile reads the tile file and acquires every model it references.
// Tiles the map file does not list load empty.
func (t *Tree) buildTile(key tileKey) (*tile, error) {
	listed, ok := t.listed[key]
	if !t.info.Tiled() || !ok {
		return newTile(key, nil), nil
	}
	path := filepath.Join(t.basePath, format.TileFileName(t.mapID, key.x, key.y))
	tf, err := format.ReadTileFile(path)
	if err != nil {
		return nil, fmt.Errorf("map %d tile %d,%d: %w", t.mapID, key.x, key.y, err)
	}
	instances, err := t.acquireSpawns(tf.Spawns)
	if err != nil {
		return nil, fmt.Errorf("map %d tile %d,%d: %w", t.mapID, key.x, key.y, err)
	}
	tl := newTile(key, instances)
	if !tl.bounds.IsEmpty() && !tl.bounds.Overlaps(listed) {
		// The map file is stale or was built for other tiles.
		t.log.Warn("tile geometry outside its listed bounds",
			zap.Int("x", key.x),
			zap.Int("y", key.y),
			zap.Any("listed", listed),
			zap.Any("geometry", tl.bounds),
		)
	}
	return tl, nil
}

func (t *Tree) acquireSpawns(spawns []format.Spawn) ([]*Instance, error) {
	instances := make([]*Instance, 0, len(spawns))
	for _, sp := range spawns {
		h, err := t.cache.Acquire(t.basePath, sp.Name, modelFlags(sp))
		if err != nil {
			t.releaseInstances(instances)
			return nil, err
		}
		instances = append(instances, newInstance(sp, h))
	}
	return instances, nil
}

func (t *Tree) publish(update func(*snapshot) *snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retired {
		return ErrRetired
	}
	t.current.Store(update(t.current.Load()))
	return nil
}

// UnloadTile drops tile (x, y) and releases its models. Unknown tiles are
// ignored.
func (t *Tree) UnloadTile(x, y int) {
	key := tileKey{x, y}
	slot := t.slot(key)
	slot.Lock()
	defer slot.Unlock()

	t.mu.Lock()
	cur := t.current.Load()
	tl := cur.byKey[key]
	if tl != nil {
		t.current.Store(cur.without(key))
	}
	t.mu.Unlock()

	if tl == nil {
		return
	}
	t.releaseTile(tl)
	t.log.Debug("unloaded tile", zap.Int("x", x), zap.Int("y", y))
}

// UnloadAll drops every loaded tile.
func (t *Tree) UnloadAll() {
	for _, tl := range t.current.Load().tiles {
		t.UnloadTile(tl.key.x, tl.key.y)
	}
}

// Retire marks the tree dead if it has no loaded tiles, releasing its global
// models. It reports whether the tree was retired.
func (t *Tree) Retire() bool {
	t.mu.Lock()
	if t.retired {
		t.mu.Unlock()
		return true
	}
	cur := t.current.Load()
	if len(cur.tiles) > 0 {
		t.mu.Unlock()
		return false
	}
	t.retired = true
	t.current.Store(newSnapshot(nil, nil))
	t.mu.Unlock()

	if cur.global != nil {
		t.releaseTile(cur.global)
	}
	return true
}

func (t *Tree) releaseTile(tl *tile) {
	t.releaseInstances(tl.instances)
}

func (t *Tree) releaseInstances(instances []*Instance) {
	for _, inst := range instances {
		if err := t.cache.Release(inst.handle.Name()); err != nil {
			t.log.Error("could not release model", zap.String("model", inst.Name), zap.Error(err))
		}
	}
}

// NumLoadedTiles counts loaded tiles, empty ones included.
func (t *Tree) NumLoadedTiles() int {
	return len(t.current.Load().tiles)
}

// TileCoord names a loaded tile.
type TileCoord struct {
	X, Y int
}

// LoadedTiles lists the loaded tiles in (x, y) order.
func (t *Tree) LoadedTiles() []TileCoord {
	tiles := t.current.Load().tiles
	out := make([]TileCoord, len(tiles))
	for i, tl := range tiles {
		out[i] = TileCoord{tl.key.x, tl.key.y}
	}
	return out
}

// IsTileLoaded reports whether tile (x, y) is loaded.
func (t *Tree) IsTileLoaded(x, y int) bool {
	return t.current.Load().byKey[tileKey{x, y}] != nil
}

// NumInstances counts the placed models currently referenced, global ones
// included.
func (t *Tree) NumInstances() int {
	s := t.current.Load()
	n := 0
	if s.global != nil {
		n += len(s.global.instances)
	}
	for _, tl := range s.tiles {
		n += len(tl.instances)
	}
	return n
}

// CanLoadMap checks that the map file exists with a valid header and, for
// tiled maps, that the tile file does too. It loads nothing.
func CanLoadMap(basePath string, mapID uint32, x, y int) error {
	flags, err := format.ReadMapHeader(filepath.Join(basePath, format.MapFileName(mapID)))
	if err != nil {
		return err
	}
	if flags&format.MapFlagTiled == 0 {
		return nil
	}
	return format.CheckTileFile(filepath.Join(basePath, format.TileFileName(mapID, x, y)))
}
