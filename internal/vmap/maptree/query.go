package maptree

import (
	"github.com/l1jgo/vmap/internal/geom"
)

// All positions below are internal coordinates.

// intersectionTime returns the distance to the first LOS-blocking surface
// along r within maxDist. With stopAtFirst any hit ends the search.
func (t *Tree) intersectionTime(r geom.Ray, maxDist float32, stopAtFirst bool) (float32, bool) {
	s := t.current.Load()
	dist, hit := maxDist, false
	visitTile := func(tl *tile) bool {
		tl.tree.IntersectRay(r, dist, func(i int, limit float32) (float32, bool) {
			inst := tl.solid[i]
			if !inst.blocksLOS() {
				return limit, false
			}
			d, ok := inst.intersectRay(r, limit, stopAtFirst)
			if !ok || d > limit {
				return limit, false
			}
			dist, hit = d, true
			return d, stopAtFirst
		})
		return hit && stopAtFirst
	}
	if s.global != nil && visitTile(s.global) {
		return dist, true
	}
	s.tree.IntersectRay(r, dist, func(i int, limit float32) (float32, bool) {
		if visitTile(s.solid[i]) {
			return dist, true
		}
		return dist, false
	})
	return dist, hit
}

// IsInLineOfSight reports whether the segment p1 to p2 is unobstructed.
func (t *Tree) IsInLineOfSight(p1, p2 geom.Vec3) bool {
	d := p2.Sub(p1).Len()
	if !geom.IsFinite(d) {
		return false
	}
	if d == 0 {
		return true
	}
	_, hit := t.intersectionTime(geom.NewRay(p1, p2.Sub(p1)), d, true)
	return !hit
}

// GetObjectHitPos casts from p1 towards p2 and returns the first hit pulled
// back towards p1 by pushback, clamped at p1. A negative pushback counts as
// zero, so the result never passes the hit. Without a hit it returns p2 and
// false.
func (t *Tree) GetObjectHitPos(p1, p2 geom.Vec3, pushback float32) (geom.Vec3, bool) {
	d := p2.Sub(p1).Len()
	if d == 0 || !geom.IsFinite(d) {
		return p2, false
	}
	r := geom.NewRay(p1, p2.Sub(p1))
	dist, hit := t.intersectionTime(r, d, false)
	if !hit {
		return p2, false
	}
	if !(pushback > 0) {
		pushback = 0
	}
	return r.At(max(dist-pushback, 0)), true
}

// GetHeight returns the height of the first surface below p within
// maxSearchDist, or +Inf when there is none.
func (t *Tree) GetHeight(p geom.Vec3, maxSearchDist float32) float32 {
	if !(maxSearchDist > 0) {
		return geom.Inf
	}
	dist, hit := t.intersectionTime(geom.NewRay(p, geom.Vec3{0, 0, -1}), maxSearchDist, false)
	if !hit {
		return geom.Inf
	}
	return p[2] - dist
}

// LocationInfo identifies the floor a point stands on.
type LocationInfo struct {
	Instance *Instance
	Group    int // group index within the instance's model
	GroundZ  float32

	RootID    int32
	GroupID   int32
	MogpFlags uint32
}

// GetLocationInfo finds the instance group grounding p. When several floors
// lie below p the highest wins; equal heights go to the earlier tile and
// then the earlier instance.
func (t *Tree) GetLocationInfo(p geom.Vec3) (LocationInfo, bool) {
	s := t.current.Load()
	q := lifted(p)

	var (
		best     LocationInfo
		found    bool
		bestTile = -1
		bestInst = -1
	)
	consider := func(tileOrder, instOrder int, inst *Instance, group int, z float32) {
		if found {
			if z < best.GroundZ {
				return
			}
			if z == best.GroundZ && (tileOrder > bestTile || tileOrder == bestTile && instOrder > bestInst) {
				return
			}
		}
		best = LocationInfo{Instance: inst, Group: group, GroundZ: z}
		bestTile, bestInst, found = tileOrder, instOrder, true
	}
	visitTile := func(tileOrder int, tl *tile) {
		tl.tree.Visit(tl.instanceBounds, func(b geom.AABB) bool { return b.Below(q) }, func(i int) bool {
			inst := tl.solid[i]
			if group, z, ok := inst.location(p); ok {
				consider(tileOrder, i, inst, group, z)
			}
			return true
		})
	}
	if s.global != nil {
		visitTile(-1, s.global)
	}
	s.tree.Visit(s.tileBounds, func(b geom.AABB) bool { return b.Below(q) }, func(i int) bool {
		visitTile(i, s.solid[i])
		return true
	})
	if !found {
		return LocationInfo{}, false
	}
	rootID, groupID, flags, ok := best.Instance.groupInfo(best.Group)
	if !ok {
		return LocationInfo{}, false
	}
	best.RootID, best.GroupID, best.MogpFlags = rootID, groupID, flags
	return best, true
}

// GetLiquidLevel returns the liquid surface height and type of the located
// group over p. It fails when that group holds no liquid or its tile has
// been unloaded since the location query.
func (t *Tree) GetLiquidLevel(p geom.Vec3, loc LocationInfo) (level float32, liquidType uint32, ok bool) {
	if loc.Instance == nil {
		return 0, 0, false
	}
	return loc.Instance.liquidLevel(loc.Group, p)
}
