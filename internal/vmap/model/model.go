// Package model is the mesh store: the parsed, immutable triangle data of
// one model file and the ray and point primitives evaluated against it in
// model space.
package model

import (
	"fmt"

	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/vmap/format"
)

// FlagM2 marks a doodad model. Doodads carry no area data.
const FlagM2 uint32 = 1 << 0

// Triangle is a face of a group with its precomputed normal.
type Triangle struct {
	A, B, C uint32
	Liquid  uint32
	Normal  geom.Vec3
}

// Group is one sub-mesh with its own bounds and triangle tree.
type Group struct {
	MogpFlags  uint32
	GroupID    int32
	LiquidType uint32
	Bounds     geom.AABB

	vertices  []geom.Vec3
	triangles []Triangle
	tree      *geom.Tree
	hasSolid  bool
}

// Model is immutable after Load and safe for concurrent readers.
type Model struct {
	Name   string
	Flags  uint32
	RootID int32
	Groups []*Group
	Bounds geom.AABB

	numTriangles int
}

// Load parses a model file. No model is returned on error.
func Load(path, name string, flags uint32) (*Model, error) {
	mf, err := format.ReadModelFile(path)
	if err != nil {
		return nil, err
	}
	return New(name, flags, mf), nil
}

// New builds a model from decoded file content.
func New(name string, flags uint32, mf *format.ModelFile) *Model {
	m := &Model{
		Name:   name,
		Flags:  flags,
		RootID: mf.RootID,
		Groups: make([]*Group, 0, len(mf.Groups)),
		Bounds: geom.EmptyAABB(),
	}
	for _, fg := range mf.Groups {
		g := newGroup(fg)
		m.Groups = append(m.Groups, g)
		m.Bounds = m.Bounds.Union(g.Bounds)
		m.numTriangles += len(g.triangles)
	}
	return m
}

func newGroup(fg format.Group) *Group {
	g := &Group{
		MogpFlags: fg.MogpFlags,
		GroupID:   fg.GroupID,
		Bounds:    geom.EmptyAABB(),
		vertices:  fg.Vertices,
		triangles: make([]Triangle, len(fg.Triangles)),
	}
	boxes := make([]geom.AABB, len(fg.Triangles))
	for i, ft := range fg.Triangles {
		a, b, c := g.vertices[ft.A], g.vertices[ft.B], g.vertices[ft.C]
		g.triangles[i] = Triangle{A: ft.A, B: ft.B, C: ft.C, Liquid: ft.Liquid, Normal: geom.TriangleNormal(a, b, c)}
		boxes[i] = geom.TriangleBounds(a, b, c)
		g.Bounds = g.Bounds.Union(boxes[i])
		g.LiquidType |= ft.Liquid
		if ft.Liquid == 0 {
			g.hasSolid = true
		}
	}
	g.tree = geom.BuildTree(boxes, 0)
	return g
}

// IsM2 reports whether the model was loaded as a doodad.
func (m *Model) IsM2() bool {
	return m.Flags&FlagM2 != 0
}

// NumTriangles returns the triangle count over all groups.
func (m *Model) NumTriangles() int {
	return m.numTriangles
}

func (m *Model) String() string {
	return fmt.Sprintf("%s(%d groups, %d triangles)", m.Name, len(m.Groups), m.numTriangles)
}

func (g *Group) corners(t *Triangle) (geom.Vec3, geom.Vec3, geom.Vec3) {
	return g.vertices[t.A], g.vertices[t.B], g.vertices[t.C]
}
