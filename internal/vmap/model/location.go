package model

import "github.com/l1jgo/vmap/internal/geom"

// floorRayLift starts floor rays slightly above the query point so a point
// resting on a floor still finds it.
const floorRayLift = 0.1

var down = geom.Vec3{0, 0, -1}

// Location is the group a point stands in and the distance down to its floor.
type Location struct {
	Group      int
	GroundDist float32
}

// IntersectPoint finds the group grounding p: the point must lie in the
// group footprint and a downward ray must hit an upward-facing solid
// triangle. Among several candidates the closest floor below wins, ties go
// to the lower group index.
func (m *Model) IntersectPoint(p geom.Vec3) (Location, bool) {
	best := Location{Group: -1, GroundDist: geom.Inf}
	for gi, g := range m.Groups {
		dist, ok := g.floorBelow(p, best.GroundDist)
		if !ok {
			continue
		}
		if dist < best.GroundDist {
			best = Location{Group: gi, GroundDist: dist}
		}
	}
	return best, best.Group >= 0
}

// ContainsPoint reports whether some group of the model grounds p.
func (m *Model) ContainsPoint(p geom.Vec3) bool {
	_, ok := m.IntersectPoint(p)
	return ok
}

func (g *Group) floorBelow(p geom.Vec3, maxDist float32) (float32, bool) {
	if !g.hasSolid || !g.Bounds.ContainsXY(p) || p[2]+floorRayLift < g.Bounds.Min[2] {
		return 0, false
	}
	start := p.Add(geom.Vec3{0, 0, floorRayLift})
	r := geom.NewRay(start, down)
	h, ok := g.intersectRay(r, maxDist+floorRayLift, RayOptions{})
	if !ok || h.Normal[2] <= 0 {
		return 0, false
	}
	return max(h.Distance-floorRayLift, 0), true
}

// LiquidLevel returns the height of group gi's liquid surface above the
// column through p, taking the highest liquid triangle over that column.
func (m *Model) LiquidLevel(gi int, p geom.Vec3) (float32, bool) {
	if gi < 0 || gi >= len(m.Groups) {
		return 0, false
	}
	g := m.Groups[gi]
	if g.LiquidType == 0 || !g.Bounds.ContainsXY(p) {
		return 0, false
	}
	top := geom.Vec3{p[0], p[1], g.Bounds.Max[2] + 1}
	r := geom.NewRay(top, down)
	best := geom.Inf
	g.tree.IntersectRay(r, geom.Inf, func(i int, limit float32) (float32, bool) {
		t := &g.triangles[i]
		if t.Liquid == 0 {
			return limit, false
		}
		a, b, c := g.corners(t)
		if dist, ok := geom.IntersectTriangle(r, a, b, c); ok && dist < best {
			best = dist
		}
		return limit, false
	})
	if !geom.IsFinite(best) {
		return 0, false
	}
	return top[2] - best, true
}
