// Package vmap is the spatial query manager: it owns one tile index per map
// and answers line of sight, ray hit, height, area and liquid queries in
// world coordinates.
package vmap

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/vmap/cache"
	"github.com/l1jgo/vmap/internal/vmap/maptree"
)

// ErrLoadingDisabled is returned by LoadTile while map loading is switched
// off.
var ErrLoadingDisabled = errors.New("map loading disabled")

// InvalidHeight is returned by GetHeight when no surface was found.
const InvalidHeight float32 = -200000

// LoadResult is the outcome of LoadMapTile.
type LoadResult int

const (
	LoadOK LoadResult = iota
	LoadError
	LoadIgnored
)

func (r LoadResult) String() string {
	switch r {
	case LoadOK:
		return "ok"
	case LoadError:
		return "error"
	case LoadIgnored:
		return "ignored"
	}
	return "unknown"
}

// Manager is safe for concurrent use. Queries never block on tile loading.
type Manager struct {
	log   *zap.Logger
	cache *cache.Cache

	mu    sync.RWMutex
	trees map[uint32]*maptree.Tree

	settings atomic.Pointer[Settings]
	disables atomic.Pointer[Disables]
}

// NewManager returns a manager with every query kind enabled and no per-map
// disables.
func NewManager(log *zap.Logger) *Manager {
	m := &Manager{
		log:   log,
		cache: cache.New(log),
		trees: make(map[uint32]*maptree.Tree),
	}
	m.SetSettings(DefaultSettings())
	m.SetDisables(nil)
	return m
}

// Cache exposes the shared model cache for inspection.
func (m *Manager) Cache() *cache.Cache { return m.cache }

func (m *Manager) tree(mapID uint32) *maptree.Tree {
	m.mu.RLock()
	t := m.trees[mapID]
	m.mu.RUnlock()
	return t
}

// treeFor returns the tree of mapID, creating and initializing it on first
// use. Initialization runs outside the manager lock.
func (m *Manager) treeFor(basePath string, mapID uint32) (*maptree.Tree, error) {
	if t := m.tree(mapID); t != nil {
		return t, nil
	}
	fresh := maptree.New(mapID, basePath, m.cache, m.log)
	if err := fresh.InitMap(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	t, ok := m.trees[mapID]
	if !ok {
		m.trees[mapID] = fresh
	}
	m.mu.Unlock()

	if ok {
		// Lost the race; drop the duplicate and its global models.
		fresh.Retire()
		return t, nil
	}
	return fresh, nil
}

// LoadMapTile loads tile (x, y) of mapID from basePath. It is ignored while
// map loading is disabled.
func (m *Manager) LoadMapTile(basePath string, mapID uint32, x, y int) LoadResult {
	err := m.LoadTile(basePath, mapID, x, y)
	switch {
	case err == nil:
		return LoadOK
	case errors.Is(err, ErrLoadingDisabled):
		return LoadIgnored
	}
	return LoadError
}

// LoadTile is LoadMapTile returning the failure cause.
func (m *Manager) LoadTile(basePath string, mapID uint32, x, y int) error {
	if !m.Settings().EnableMapLoading {
		return ErrLoadingDisabled
	}
	for {
		t, err := m.treeFor(basePath, mapID)
		if err != nil {
			m.log.Error("could not load map",
				zap.Uint32("map", mapID), zap.Int("x", x), zap.Int("y", y), zap.Error(err))
			return err
		}
		err = t.LoadTile(x, y)
		if errors.Is(err, maptree.ErrRetired) {
			continue
		}
		if err != nil {
			m.log.Error("could not load tile",
				zap.Uint32("map", mapID), zap.Int("x", x), zap.Int("y", y), zap.Error(err))
			m.dropIfEmpty(mapID, t)
		}
		return err
	}
}

// UnloadMapTile unloads one tile. The map is dropped with its last tile.
func (m *Manager) UnloadMapTile(mapID uint32, x, y int) {
	t := m.tree(mapID)
	if t == nil {
		return
	}
	t.UnloadTile(x, y)
	m.dropIfEmpty(mapID, t)
}

// UnloadMap unloads every tile of mapID and drops the map.
func (m *Manager) UnloadMap(mapID uint32) {
	t := m.tree(mapID)
	if t == nil {
		return
	}
	t.UnloadAll()
	m.dropIfEmpty(mapID, t)
}

// UnloadAll unloads every map.
func (m *Manager) UnloadAll() {
	for _, id := range m.LoadedMaps() {
		m.UnloadMap(id)
	}
}

func (m *Manager) dropIfEmpty(mapID uint32, t *maptree.Tree) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trees[mapID] == t && t.Retire() {
		delete(m.trees, mapID)
		m.log.Debug("map unloaded", zap.Uint32("map", mapID))
	}
}

// NumLoadedMaps counts maps with at least one loaded tile.
func (m *Manager) NumLoadedMaps() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trees)
}

// LoadedMaps lists the loaded map ids in ascending order.
func (m *Manager) LoadedMaps() []uint32 {
	m.mu.RLock()
	ids := make([]uint32, 0, len(m.trees))
	for id := range m.trees {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LoadedTiles lists the loaded tiles of mapID.
func (m *Manager) LoadedTiles(mapID uint32) []maptree.TileCoord {
	t := m.tree(mapID)
	if t == nil {
		return nil
	}
	return t.LoadedTiles()
}

// NumLoadedTiles counts the loaded tiles of mapID.
func (m *Manager) NumLoadedTiles(mapID uint32) int {
	t := m.tree(mapID)
	if t == nil {
		return 0
	}
	return t.NumLoadedTiles()
}

// ExistsMap reports whether tile (x, y) of mapID could be loaded from
// basePath. It loads nothing.
func (m *Manager) ExistsMap(basePath string, mapID uint32, x, y int) bool {
	return maptree.CanLoadMap(basePath, mapID, x, y) == nil
}

// IsInLineOfSight reports whether nothing blocks the segment between two
// world positions. Disabled or unloaded maps see everything.
func (m *Manager) IsInLineOfSight(mapID uint32, x1, y1, z1, x2, y2, z2 float32) bool {
	if !m.Settings().EnableLOS || m.IsDisabled(mapID, DisableLOS) {
		return true
	}
	t := m.tree(mapID)
	if t == nil {
		return true
	}
	p1, p2 := geom.ToInternal(x1, y1, z1), geom.ToInternal(x2, y2, z2)
	if p1 == p2 {
		return true
	}
	return t.IsInLineOfSight(p1, p2)
}

// GetObjectHitPos casts from the first position towards the second and
// returns the first hit moved back towards the start by pushback. It
// returns the target and false when nothing was hit.
func (m *Manager) GetObjectHitPos(mapID uint32, x1, y1, z1, x2, y2, z2, pushback float32) (geom.Vec3, bool) {
	target := geom.Vec3{x2, y2, z2}
	if !m.Settings().EnableLOS || m.IsDisabled(mapID, DisableLOS) {
		return target, false
	}
	t := m.tree(mapID)
	if t == nil {
		return target, false
	}
	pos, hit := t.GetObjectHitPos(geom.ToInternal(x1, y1, z1), geom.ToInternal(x2, y2, z2), pushback)
	if !hit {
		return target, false
	}
	return geom.ToWorld(pos), true
}

// GetHeight returns the height of the first surface at most maxSearchDist
// below the position, or InvalidHeight.
func (m *Manager) GetHeight(mapID uint32, x, y, z, maxSearchDist float32) float32 {
	if !m.Settings().EnableHeight || m.IsDisabled(mapID, DisableHeight) {
		return InvalidHeight
	}
	t := m.tree(mapID)
	if t == nil {
		return InvalidHeight
	}
	h := t.GetHeight(geom.ToInternal(x, y, z), maxSearchDist)
	if !geom.IsFinite(h) {
		return InvalidHeight
	}
	return h
}

// AreaInfo identifies the model group a position stands in.
type AreaInfo struct {
	Flags   uint32
	AdtID   uint32
	RootID  int32
	GroupID int32
	// Z is the ground height when found, the query height otherwise.
	Z float32
}

// GetAreaInfo locates the group under the position.
func (m *Manager) GetAreaInfo(mapID uint32, x, y, z float32) (AreaInfo, bool) {
	miss := AreaInfo{Z: z}
	if m.IsDisabled(mapID, DisableAreaFlag) {
		return miss, false
	}
	t := m.tree(mapID)
	if t == nil {
		return miss, false
	}
	loc, ok := t.GetLocationInfo(geom.ToInternal(x, y, z))
	if !ok {
		return miss, false
	}
	return AreaInfo{
		Flags:   loc.MogpFlags,
		AdtID:   loc.Instance.AdtID,
		RootID:  loc.RootID,
		GroupID: loc.GroupID,
		Z:       loc.GroundZ,
	}, true
}

// LiquidInfo describes the liquid over a position.
type LiquidInfo struct {
	Level float32
	Floor float32
	Type  uint32
}

// GetLiquidLevel returns the liquid surface over the position. A non-zero
// reqMask requires the located group's liquid type to intersect it.
func (m *Manager) GetLiquidLevel(mapID uint32, x, y, z float32, reqMask uint32) (LiquidInfo, bool) {
	if m.IsDisabled(mapID, DisableLiquidStatus) {
		return LiquidInfo{}, false
	}
	t := m.tree(mapID)
	if t == nil {
		return LiquidInfo{}, false
	}
	p := geom.ToInternal(x, y, z)
	loc, ok := t.GetLocationInfo(p)
	if !ok {
		return LiquidInfo{}, false
	}
	level, liquidType, ok := t.GetLiquidLevel(p, loc)
	if !ok {
		return LiquidInfo{}, false
	}
	if reqMask != 0 && liquidType&reqMask == 0 {
		return LiquidInfo{}, false
	}
	return LiquidInfo{Level: level, Floor: loc.GroundZ, Type: liquidType}, true
}
