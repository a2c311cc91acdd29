// Package vmaptest writes small but real map, tile and model files for
// tests of the collision engine.
package vmaptest

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/vmap/format"
)

// Floor returns a horizontal rectangle at height z, wound counter-clockwise
// seen from above so its normal points up.
func Floor(groupID int32, minX, minY, maxX, maxY, z float32, liquid uint32) format.Group {
	return format.Group{
		GroupID: groupID,
		Vertices: []geom.Vec3{
			{minX, minY, z}, {maxX, minY, z}, {maxX, maxY, z}, {minX, maxY, z},
		},
		Triangles: []format.Triangle{
			{A: 0, B: 1, C: 2, Liquid: liquid},
			{A: 0, B: 2, C: 3, Liquid: liquid},
		},
	}
}

// Box returns a closed box with outward-facing triangles.
func Box(groupID int32, lo, hi geom.Vec3) format.Group {
	b := geom.AABB{Min: lo, Max: hi}
	g := format.Group{GroupID: groupID}
	for i := 0; i < 8; i++ {
		g.Vertices = append(g.Vertices, b.Corner(i))
	}
	// Corner bits: 1 = +x, 2 = +y, 4 = +z.
	faces := [][4]uint32{
		{0, 2, 3, 1}, // bottom, normal -z
		{4, 5, 7, 6}, // top, normal +z
		{0, 1, 5, 4}, // -y
		{2, 6, 7, 3}, // +y
		{0, 4, 6, 2}, // -x
		{1, 3, 7, 5}, // +x
	}
	for _, f := range faces {
		g.Triangles = append(g.Triangles,
			format.Triangle{A: f[0], B: f[1], C: f[2]},
			format.Triangle{A: f[0], B: f[2], C: f[3]},
		)
	}
	return g
}

// Pool is one group with a solid floor and a liquid surface over it.
func Pool(groupID int32, minX, minY, maxX, maxY, floorZ, waterZ float32, liquid uint32) format.Group {
	g := Floor(groupID, minX, minY, maxX, maxY, floorZ, 0)
	water := Floor(groupID, minX, minY, maxX, maxY, waterZ, liquid)
	n := uint32(len(g.Vertices))
	g.Vertices = append(g.Vertices, water.Vertices...)
	for _, t := range water.Triangles {
		g.Triangles = append(g.Triangles, format.Triangle{A: t.A + n, B: t.B + n, C: t.C + n, Liquid: t.Liquid})
	}
	return g
}

// TileFloor is a single-group model covering one full tile at local z 0.
func TileFloor() *format.ModelFile {
	return &format.ModelFile{
		RootID: 1,
		Groups: []format.Group{Floor(100, 0, 0, geom.TileSize, geom.TileSize, 0, 0)},
	}
}

// World accumulates files under a temp directory.
type World struct {
	Dir   string
	t     testing.TB
	tiles map[uint32][]format.TileEntry
}

func NewWorld(t testing.TB) *World {
	t.Helper()
	return &World{Dir: t.TempDir() + string(os.PathSeparator), t: t, tiles: make(map[uint32][]format.TileEntry)}
}

func (w *World) write(name string, data []byte) {
	w.t.Helper()
	if err := os.WriteFile(filepath.Join(w.Dir, name), data, 0o644); err != nil {
		w.t.Fatalf("write %s: %v", name, err)
	}
}

// Model writes name.vmo.
func (w *World) Model(name string, m *format.ModelFile) {
	w.t.Helper()
	w.write(format.ModelFileName(name), m.Encode())
}

// Tile writes a tile file and records it for the map file.
func (w *World) Tile(mapID uint32, x, y int, spawns ...format.Spawn) {
	w.t.Helper()
	w.write(format.TileFileName(mapID, x, y), (&format.TileFile{Spawns: spawns}).Encode())
	w.tiles[mapID] = append(w.tiles[mapID], format.TileEntry{X: x, Y: y, Bounds: geom.TileBounds(x, y)})
}

// Map writes the map file listing every tile recorded for mapID.
func (w *World) Map(mapID uint32) {
	w.t.Helper()
	tiles := w.tiles[mapID]
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].X != tiles[j].X {
			return tiles[i].X < tiles[j].X
		}
		return tiles[i].Y < tiles[j].Y
	})
	w.write(format.MapFileName(mapID), (&format.MapFile{Flags: format.MapFlagTiled, Tiles: tiles}).Encode())
}

// GlobalMap writes an untiled map file whose geometry is the given spawns.
func (w *World) GlobalMap(mapID uint32, spawns ...format.Spawn) {
	w.t.Helper()
	w.write(format.MapFileName(mapID), (&format.MapFile{Global: spawns}).Encode())
}

// Raw writes arbitrary bytes, for corrupt-file tests.
func (w *World) Raw(name string, data []byte) {
	w.t.Helper()
	w.write(name, data)
}

// TileSpawn places model name at the south-west corner of a tile, lifted
// to height z, in internal coordinates.
func TileSpawn(id uint32, name string, tileX, tileY int, z float32) format.Spawn {
	return format.Spawn{
		ID:       id,
		Name:     name,
		Position: geom.Vec3{float32(tileX) * geom.TileSize, float32(tileY) * geom.TileSize, z},
		Scale:    1,
	}
}

// WorldSpawn places model name at a world position.
func WorldSpawn(id uint32, name string, x, y, z float32) format.Spawn {
	return format.Spawn{
		ID:       id,
		Name:     name,
		Position: geom.ToInternal(x, y, z),
		Scale:    1,
	}
}
