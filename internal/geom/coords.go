package geom

import "math"

const (
	// TileSize is the edge length of one map grid cell.
	TileSize = 533.33333
	// GridTiles is the number of tiles along each map axis.
	GridTiles = 64
	// Mid is the world offset of the internal origin.
	Mid = 0.5 * GridTiles * TileSize
)

// ToInternal converts world coordinates to the engine's centered system.
// The transform is its own inverse, see ToWorld.
func ToInternal(x, y, z float32) Vec3 {
	return Vec3{Mid - x, Mid - y, z}
}

// ToWorld converts an internal position back to world coordinates.
func ToWorld(p Vec3) Vec3 {
	return Vec3{Mid - p[0], Mid - p[1], p[2]}
}

// TileOf returns the grid tile holding the world position (x, y).
func TileOf(x, y float32) (tileX, tileY int) {
	p := ToInternal(x, y, 0)
	return int(math.Floor(float64(p[0] / TileSize))), int(math.Floor(float64(p[1] / TileSize)))
}

// TileBounds returns the internal footprint of a tile, open in z.
func TileBounds(tileX, tileY int) AABB {
	return AABB{
		Min: Vec3{float32(tileX) * TileSize, float32(tileY) * TileSize, -Inf},
		Max: Vec3{float32(tileX+1) * TileSize, float32(tileY+1) * TileSize, Inf},
	}
}

// TileCenter returns the world x/y of a tile's center.
func TileCenter(tileX, tileY int) (x, y float32) {
	c := ToWorld(Vec3{(float32(tileX) + 0.5) * TileSize, (float32(tileY) + 0.5) * TileSize, 0})
	return c[0], c[1]
}

// ValidTile reports whether the tile lies on the 64x64 grid.
func ValidTile(tileX, tileY int) bool {
	return tileX >= 0 && tileX < GridTiles && tileY >= 0 && tileY < GridTiles
}
