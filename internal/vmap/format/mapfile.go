package format

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/l1jgo/vmap/internal/geom"
)

// MapFlagTiled marks maps whose geometry is split into per-tile files.
const MapFlagTiled uint32 = 1 << 0

// TileEntry names one tile that has geometry, with its internal bounds.
type TileEntry struct {
	X, Y   int
	Bounds geom.AABB
}

// MapFile is the map-level routing structure: which tiles exist. Maps that
// are not tiled carry their geometry as global spawns instead.
type MapFile struct {
	Flags  uint32
	Tiles  []TileEntry
	Global []Spawn
}

func (m *MapFile) Tiled() bool {
	return m.Flags&MapFlagTiled != 0
}

// ReadMapFile decodes a .vmtree file.
func ReadMapFile(path string) (*MapFile, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, err
	}
	m, err := DecodeMapFile(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

func DecodeMapFile(raw []byte) (*MapFile, error) {
	r := NewReader(raw)
	if err := r.ReadHeader(MapMagic, Version); err != nil {
		return nil, err
	}
	m := &MapFile{Flags: r.ReadUint32()}
	n := r.ReadCount(8 + 24)
	m.Tiles = make([]TileEntry, 0, n)
	for i := 0; i < n; i++ {
		e := TileEntry{X: int(r.ReadUint32()), Y: int(r.ReadUint32())}
		e.Bounds.Min = r.ReadVec3()
		e.Bounds.Max = r.ReadVec3()
		if r.Err() != nil {
			return nil, r.Err()
		}
		if !geom.ValidTile(e.X, e.Y) {
			return nil, fmt.Errorf("%w: tile %d,%d outside the grid", ErrCorrupt, e.X, e.Y)
		}
		m.Tiles = append(m.Tiles, e)
	}
	spawns, err := readSpawns(r)
	if err != nil {
		return nil, err
	}
	m.Global = spawns
	return m, nil
}

// ReadMapHeader checks a map file's header and returns its flags without
// decoding the tile list.
func ReadMapHeader(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		return 0, fmt.Errorf("open %s: %w: %w", path, ErrCorrupt, err)
	}
	defer f.Close()
	buf := make([]byte, len(MapMagic)+8)
	if _, err := io.ReadFull(f, buf); err != nil {
		return 0, fmt.Errorf("read %s: %w: %w", path, ErrCorrupt, err)
	}
	r := NewReader(buf)
	if err := r.ReadHeader(MapMagic, Version); err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return r.ReadUint32(), nil
}

// Encode returns the file image.
func (m *MapFile) Encode() []byte {
	w := NewWriter()
	w.WriteHeader(MapMagic, Version)
	w.WriteUint32(m.Flags)
	w.WriteUint32(uint32(len(m.Tiles)))
	for _, e := range m.Tiles {
		w.WriteUint32(uint32(e.X))
		w.WriteUint32(uint32(e.Y))
		w.WriteVec3(e.Bounds.Min)
		w.WriteVec3(e.Bounds.Max)
	}
	writeSpawns(w, m.Global)
	return w.Bytes()
}
