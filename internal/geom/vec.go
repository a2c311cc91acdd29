// Package geom holds the vector math shared by the collision engine:
// bounding boxes, rays, triangle tests, placement transforms and the
// world/internal coordinate convention.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Vec3 = mgl32.Vec3
type Mat3 = mgl32.Mat3

// Inf is float32 +infinity, used as an unbounded search distance.
var Inf = float32(math.Inf(1))

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// AABB is an axis-aligned bounding box. The zero value is a degenerate box at
// the origin; use EmptyAABB to start an accumulation.
type AABB struct {
	Min, Max Vec3
}

func EmptyAABB() AABB {
	return AABB{
		Min: Vec3{Inf, Inf, Inf},
		Max: Vec3{-Inf, -Inf, -Inf},
	}
}

func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Extend grows the box to include p.
func (b AABB) Extend(p Vec3) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

// Union returns the smallest box containing both b and o.
func (b AABB) Union(o AABB) AABB {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Overlaps reports whether the boxes share a point. Empty boxes overlap
// nothing.
func (b AABB) Overlaps(o AABB) bool {
	for i := 0; i < 3; i++ {
		if b.Min[i] > o.Max[i] || o.Min[i] > b.Max[i] {
			return false
		}
	}
	return !b.IsEmpty() && !o.IsEmpty()
}

func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Corner returns corner i (0..7); bit 0 picks x, bit 1 y, bit 2 z.
func (b AABB) Corner(i int) Vec3 {
	c := b.Min
	if i&1 != 0 {
		c[0] = b.Max[0]
	}
	if i&2 != 0 {
		c[1] = b.Max[1]
	}
	if i&4 != 0 {
		c[2] = b.Max[2]
	}
	return c
}

func (b AABB) Contains(p Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// ContainsXY ignores the vertical axis.
func (b AABB) ContainsXY(p Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1]
}

// Below reports whether some part of the box lies in the column under p,
// i.e. p is inside the box footprint and not below its floor.
func (b AABB) Below(p Vec3) bool {
	return b.ContainsXY(p) && p[2] >= b.Min[2]
}

// IntersectRay runs the slab test and returns the entry distance along r.
// A ray starting inside the box enters at 0.
func (b AABB) IntersectRay(r Ray, maxDist float32) (float32, bool) {
	tmin, tmax := float32(0), maxDist
	for i := 0; i < 3; i++ {
		if r.Dir[i] == 0 {
			if r.Origin[i] < b.Min[i] || r.Origin[i] > b.Max[i] {
				return 0, false
			}
			continue
		}
		t1 := (b.Min[i] - r.Origin[i]) * r.invDir[i]
		t2 := (b.Max[i] - r.Origin[i]) * r.invDir[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// Ray is a half-line with a unit direction.
type Ray struct {
	Origin Vec3
	Dir    Vec3
	invDir Vec3
}

// NewRay normalizes dir. A zero direction yields a ray that hits nothing
// except boxes containing its origin.
func NewRay(origin, dir Vec3) Ray {
	if l := dir.Len(); l > 0 {
		dir = dir.Mul(1 / l)
	}
	r := Ray{Origin: origin, Dir: dir}
	for i := 0; i < 3; i++ {
		if dir[i] != 0 {
			r.invDir[i] = 1 / dir[i]
		}
	}
	return r
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float32) Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}
