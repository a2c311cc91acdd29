package model

import "github.com/l1jgo/vmap/internal/geom"

// RayOptions selects which triangles a ray can hit.
type RayOptions struct {
	// StopAtFirst returns the first hit found rather than the closest.
	StopAtFirst bool
	// Liquid makes liquid surfaces solid for this ray.
	Liquid bool
}

// Hit describes the closest intersection along a ray.
type Hit struct {
	Distance float32
	Liquid   uint32
	Normal   geom.Vec3
	Group    int
	Triangle int
}

// before orders hits by distance, then by insertion order.
func (h Hit) before(o Hit) bool {
	if h.Distance != o.Distance {
		return h.Distance < o.Distance
	}
	if h.Group != o.Group {
		return h.Group < o.Group
	}
	return h.Triangle < o.Triangle
}

// IntersectRay finds the closest triangle hit within [0, maxDist] in model
// space. The result does not depend on tree traversal order.
func (m *Model) IntersectRay(r geom.Ray, maxDist float32, opts RayOptions) (Hit, bool) {
	best := Hit{Distance: maxDist}
	found := false
	if _, ok := m.Bounds.IntersectRay(r, maxDist); !ok {
		return best, false
	}
	for gi, g := range m.Groups {
		h, ok := g.intersectRay(r, best.Distance, opts)
		if !ok {
			continue
		}
		h.Group = gi
		if !found || h.before(best) {
			best = h
			found = true
		}
		if opts.StopAtFirst {
			break
		}
	}
	return best, found
}

func (g *Group) intersectRay(r geom.Ray, maxDist float32, opts RayOptions) (Hit, bool) {
	if !opts.Liquid && !g.hasSolid {
		return Hit{}, false
	}
	best := Hit{Distance: maxDist}
	found := false
	g.tree.IntersectRay(r, maxDist, func(i int, limit float32) (float32, bool) {
		t := &g.triangles[i]
		if t.Liquid != 0 && !opts.Liquid {
			return limit, false
		}
		a, b, c := g.corners(t)
		dist, ok := geom.IntersectTriangle(r, a, b, c)
		if !ok || dist > best.Distance {
			return limit, false
		}
		h := Hit{Distance: dist, Liquid: t.Liquid, Normal: t.Normal, Triangle: i}
		if !found || h.before(best) {
			best = h
			found = true
		}
		// Keep visiting boxes that start exactly at the hit so ties
		// resolve by triangle order.
		return dist, opts.StopAtFirst
	})
	return best, found
}
