package data

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/vmap"
)

// TilePos is one tile of a map's grid.
type TilePos struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// TileRange is an inclusive rectangle of tiles.
type TileRange struct {
	MinX int `yaml:"min_x"`
	MinY int `yaml:"min_y"`
	MaxX int `yaml:"max_x"`
	MaxY int `yaml:"max_y"`
}

// MapInfo holds the collision settings of one map, loaded from map_list.yaml.
type MapInfo struct {
	MapID   uint32     `yaml:"map_id"`
	Name    string     `yaml:"name,omitempty"`
	Disable []string   `yaml:"disable,omitempty"` // area, height, los, liquid
	Preload []TilePos  `yaml:"preload,omitempty"`
	Range   *TileRange `yaml:"preload_range,omitempty"`

	flags uint32
}

// DisableFlags returns the parsed disable mask.
func (m *MapInfo) DisableFlags() uint32 { return m.flags }

// PreloadTile names one tile to load at startup.
type PreloadTile struct {
	MapID uint32
	X, Y  int
}

var disableNames = map[string]uint32{
	"area":   vmap.DisableAreaFlag,
	"height": vmap.DisableHeight,
	"los":    vmap.DisableLOS,
	"liquid": vmap.DisableLiquidStatus,
}

// MapListTable provides per-map collision settings.
type MapListTable struct {
	maps  map[uint32]*MapInfo
	order []uint32
}

type mapListFile struct {
	Maps []MapInfo `yaml:"maps"`
}

// LoadMapList loads map_list.yaml.
func LoadMapList(path string) (*MapListTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map list %s: %w", path, err)
	}
	return ParseMapList(raw)
}

func ParseMapList(raw []byte) (*MapListTable, error) {
	var file mapListFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse map list: %w", err)
	}

	table := &MapListTable{maps: make(map[uint32]*MapInfo, len(file.Maps))}
	for i := range file.Maps {
		info := &file.Maps[i]
		if _, dup := table.maps[info.MapID]; dup {
			return nil, fmt.Errorf("map %d listed twice", info.MapID)
		}
		for _, name := range info.Disable {
			flag, ok := disableNames[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("map %d: unknown disable %q", info.MapID, name)
			}
			info.flags |= flag
		}
		for _, p := range info.Preload {
			if !geom.ValidTile(p.X, p.Y) {
				return nil, fmt.Errorf("map %d: preload tile %d,%d outside the grid", info.MapID, p.X, p.Y)
			}
		}
		if r := info.Range; r != nil {
			if !geom.ValidTile(r.MinX, r.MinY) || !geom.ValidTile(r.MaxX, r.MaxY) || r.MinX > r.MaxX || r.MinY > r.MaxY {
				return nil, fmt.Errorf("map %d: bad preload range %+v", info.MapID, *r)
			}
		}
		table.maps[info.MapID] = info
		table.order = append(table.order, info.MapID)
	}
	sort.Slice(table.order, func(i, j int) bool { return table.order[i] < table.order[j] })
	return table, nil
}

func (t *MapListTable) Count() int {
	return len(t.maps)
}

// Get returns the entry of mapID, nil when unlisted.
func (t *MapListTable) Get(mapID uint32) *MapInfo {
	return t.maps[mapID]
}

// Name returns the listed name of mapID, or its number.
func (t *MapListTable) Name(mapID uint32) string {
	if info := t.maps[mapID]; info != nil && info.Name != "" {
		return info.Name
	}
	return fmt.Sprintf("map %d", mapID)
}

// Disables returns the disable mask of every map that has one.
func (t *MapListTable) Disables() vmap.Disables {
	out := make(vmap.Disables)
	for id, info := range t.maps {
		if info.flags != 0 {
			out[id] = info.flags
		}
	}
	return out
}

// PreloadTiles lists every tile to load at startup, ordered by map then
// tile and without duplicates.
func (t *MapListTable) PreloadTiles() []PreloadTile {
	var out []PreloadTile
	for _, id := range t.order {
		info := t.maps[id]
		seen := make(map[TilePos]bool)
		add := func(p TilePos) {
			if !seen[p] {
				seen[p] = true
				out = append(out, PreloadTile{MapID: id, X: p.X, Y: p.Y})
			}
		}
		for _, p := range info.Preload {
			add(p)
		}
		if r := info.Range; r != nil {
			for x := r.MinX; x <= r.MaxX; x++ {
				for y := r.MinY; y <= r.MaxY; y++ {
					add(TilePos{x, y})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MapID != b.MapID {
			return a.MapID < b.MapID
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return out
}
