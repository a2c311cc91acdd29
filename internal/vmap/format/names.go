package format

import "fmt"

const (
	Version = 1

	MapMagic   = "VMAPTREE"
	TileMagic  = "VMAPTILE"
	ModelMagic = "VMAPMODL"

	MapExt   = ".vmtree"
	TileExt  = ".vmtile"
	ModelExt = ".vmo"
)

// MapFileName returns "NNN.vmtree" for a map id.
func MapFileName(mapID uint32) string {
	return fmt.Sprintf("%03d%s", mapID, MapExt)
}

// TileFileName returns "NNN_XX_YY.vmtile" for a map tile.
func TileFileName(mapID uint32, tileX, tileY int) string {
	return fmt.Sprintf("%03d_%02d_%02d%s", mapID, tileX, tileY, TileExt)
}

// ModelFileName returns the file a model name is stored in.
func ModelFileName(name string) string {
	return name + ModelExt
}
