package format

import (
	"fmt"

	"github.com/l1jgo/vmap/internal/geom"
)

// Triangle indexes three group vertices. Liquid is the liquid type mask of
// a liquid surface triangle, 0 for solid geometry.
type Triangle struct {
	A, B, C uint32
	Liquid  uint32
}

// Group is one sub-mesh of a model (a WMO group, or the whole doodad).
type Group struct {
	MogpFlags uint32
	GroupID   int32
	Vertices  []geom.Vec3
	Triangles []Triangle
}

// ModelFile is the decoded content of a .vmo file.
type ModelFile struct {
	RootID int32
	Groups []Group
}

// ReadModelFile decodes a .vmo file.
func ReadModelFile(path string) (*ModelFile, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, err
	}
	m, err := DecodeModelFile(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

func DecodeModelFile(raw []byte) (*ModelFile, error) {
	r := NewReader(raw)
	if err := r.ReadHeader(ModelMagic, Version); err != nil {
		return nil, err
	}
	m := &ModelFile{RootID: r.ReadInt32()}
	n := r.ReadCount(16)
	m.Groups = make([]Group, 0, n)
	for i := 0; i < n; i++ {
		g := Group{
			MogpFlags: r.ReadUint32(),
			GroupID:   r.ReadInt32(),
		}
		nv := r.ReadCount(12)
		g.Vertices = make([]geom.Vec3, nv)
		for j := range g.Vertices {
			g.Vertices[j] = r.ReadVec3()
		}
		nt := r.ReadCount(16)
		g.Triangles = make([]Triangle, nt)
		for j := range g.Triangles {
			g.Triangles[j] = Triangle{A: r.ReadUint32(), B: r.ReadUint32(), C: r.ReadUint32(), Liquid: r.ReadUint32()}
		}
		if r.Err() != nil {
			return nil, r.Err()
		}
		for j, tri := range g.Triangles {
			if tri.A >= uint32(nv) || tri.B >= uint32(nv) || tri.C >= uint32(nv) {
				return nil, fmt.Errorf("%w: group %d triangle %d indexes past %d vertices", ErrCorrupt, i, j, nv)
			}
		}
		m.Groups = append(m.Groups, g)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return m, nil
}

func (m *ModelFile) Encode() []byte {
	w := NewWriter()
	w.WriteHeader(ModelMagic, Version)
	w.WriteInt32(m.RootID)
	w.WriteUint32(uint32(len(m.Groups)))
	for _, g := range m.Groups {
		w.WriteUint32(g.MogpFlags)
		w.WriteInt32(g.GroupID)
		w.WriteUint32(uint32(len(g.Vertices)))
		for _, v := range g.Vertices {
			w.WriteVec3(v)
		}
		w.WriteUint32(uint32(len(g.Triangles)))
		for _, t := range g.Triangles {
			w.WriteUint32(t.A)
			w.WriteUint32(t.B)
			w.WriteUint32(t.C)
			w.WriteUint32(t.Liquid)
		}
	}
	return w.Bytes()
}
