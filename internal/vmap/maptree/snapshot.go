package maptree

import (
	"sort"

	"github.com/l1jgo/vmap/internal/geom"
)

const leafSize = 4

type tileKey struct {
	x, y int
}

func (k tileKey) less(o tileKey) bool {
	if k.x != o.x {
		return k.x < o.x
	}
	return k.y < o.y
}

// tile is the set of instances one tile file contributed. Tiles are never
// mutated after they are published.
type tile struct {
	key       tileKey
	instances []*Instance // every handle the tile holds, in file order
	bounds    geom.AABB

	// tree indexes the instances with geometry; items are positions in solid.
	tree  *geom.Tree
	solid []*Instance
}

func newTile(key tileKey, instances []*Instance) *tile {
	t := &tile{key: key, instances: instances, bounds: geom.EmptyAABB()}
	var boxes []geom.AABB
	for _, inst := range instances {
		if inst.Bounds.IsEmpty() {
			continue
		}
		t.solid = append(t.solid, inst)
		boxes = append(boxes, inst.Bounds)
		t.bounds = t.bounds.Union(inst.Bounds)
	}
	t.tree = geom.BuildTree(boxes, leafSize)
	return t
}

func (t *tile) instanceBounds(i int) geom.AABB {
	return t.solid[i].Bounds
}

// snapshot is an immutable view of the loaded tiles. Queries read the
// current snapshot without locking; loads and unloads publish a new one.
type snapshot struct {
	tiles  []*tile // sorted by key
	byKey  map[tileKey]*tile
	global *tile

	// tree indexes the tiles holding geometry; items are positions in solid.
	tree  *geom.Tree
	solid []*tile
}

func newSnapshot(tiles []*tile, global *tile) *snapshot {
	s := &snapshot{tiles: tiles, byKey: make(map[tileKey]*tile, len(tiles)), global: global}
	var boxes []geom.AABB
	for _, t := range tiles {
		s.byKey[t.key] = t
		if len(t.solid) > 0 {
			s.solid = append(s.solid, t)
			boxes = append(boxes, t.bounds)
		}
	}
	s.tree = geom.BuildTree(boxes, leafSize)
	return s
}

func (s *snapshot) with(t *tile) *snapshot {
	i := sort.Search(len(s.tiles), func(i int) bool { return !s.tiles[i].key.less(t.key) })
	tiles := make([]*tile, 0, len(s.tiles)+1)
	tiles = append(tiles, s.tiles[:i]...)
	tiles = append(tiles, t)
	tiles = append(tiles, s.tiles[i:]...)
	return newSnapshot(tiles, s.global)
}

func (s *snapshot) without(key tileKey) *snapshot {
	tiles := make([]*tile, 0, len(s.tiles))
	for _, t := range s.tiles {
		if t.key != key {
			tiles = append(tiles, t)
		}
	}
	return newSnapshot(tiles, s.global)
}

func (s *snapshot) tileBounds(i int) geom.AABB {
	return s.solid[i].bounds
}
