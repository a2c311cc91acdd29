package format

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/l1jgo/vmap/internal/geom"
)

// Spawn flags.
const (
	SpawnFlagM2    uint32 = 1 << 0 // doodad rather than a world model
	SpawnFlagNoLOS uint32 = 1 << 2 // never blocks line of sight or hit tests
)

// Spawn places one model inside a tile.
type Spawn struct {
	Flags    uint32
	AdtID    uint32
	ID       uint32
	Position geom.Vec3
	Rotation geom.Vec3 // degrees
	Scale    float32
	Name     string
}

// TileFile lists the model placements of one tile.
type TileFile struct {
	Spawns []Spawn
}

// ReadTileFile decodes a .vmtile file.
func ReadTileFile(path string) (*TileFile, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, err
	}
	t, err := DecodeTileFile(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return t, nil
}

func DecodeTileFile(raw []byte) (*TileFile, error) {
	r := NewReader(raw)
	if err := r.ReadHeader(TileMagic, Version); err != nil {
		return nil, err
	}
	spawns, err := readSpawns(r)
	if err != nil {
		return nil, err
	}
	return &TileFile{Spawns: spawns}, nil
}

func (t *TileFile) Encode() []byte {
	w := NewWriter()
	w.WriteHeader(TileMagic, Version)
	writeSpawns(w, t.Spawns)
	return w.Bytes()
}

// CheckTileFile verifies a tile file exists and carries a valid header.
func CheckTileFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("open %s: %w: %w", path, ErrCorrupt, err)
	}
	defer f.Close()
	buf := make([]byte, len(TileMagic)+4)
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("read %s: %w: %w", path, ErrCorrupt, err)
	}
	if err := NewReader(buf).ReadHeader(TileMagic, Version); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func readSpawns(r *Reader) ([]Spawn, error) {
	// Smallest spawn: 12 bytes of ids, 28 of transform, 4 of name length.
	n := r.ReadCount(44)
	spawns := make([]Spawn, 0, n)
	for i := 0; i < n; i++ {
		s := Spawn{
			Flags:    r.ReadUint32(),
			AdtID:    r.ReadUint32(),
			ID:       r.ReadUint32(),
			Position: r.ReadVec3(),
			Rotation: r.ReadVec3(),
			Scale:    r.ReadFloat32(),
			Name:     r.ReadString(),
		}
		if r.Err() != nil {
			return nil, r.Err()
		}
		if s.Name == "" {
			return nil, fmt.Errorf("%w: spawn %d has no model name", ErrCorrupt, s.ID)
		}
		spawns = append(spawns, s)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return spawns, nil
}

func writeSpawns(w *Writer, spawns []Spawn) {
	w.WriteUint32(uint32(len(spawns)))
	for _, s := range spawns {
		w.WriteUint32(s.Flags)
		w.WriteUint32(s.AdtID)
		w.WriteUint32(s.ID)
		w.WriteVec3(s.Position)
		w.WriteVec3(s.Rotation)
		w.WriteFloat32(s.Scale)
		w.WriteString(s.Name)
	}
}
