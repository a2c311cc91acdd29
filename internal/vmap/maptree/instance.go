package maptree

import (
	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/vmap/cache"
	"github.com/l1jgo/vmap/internal/vmap/format"
	"github.com/l1jgo/vmap/internal/vmap/model"
)

// Instance is one placed copy of a shared model.
type Instance struct {
	ID     uint32
	AdtID  uint32
	Flags  uint32
	Name   string
	Bounds geom.AABB // internal coordinates

	place  geom.Placement
	handle *cache.Handle
}

func newInstance(sp format.Spawn, h *cache.Handle) *Instance {
	scale := sp.Scale
	if scale <= 0 {
		scale = 1
	}
	inst := &Instance{
		ID:     sp.ID,
		AdtID:  sp.AdtID,
		Flags:  sp.Flags,
		Name:   sp.Name,
		place:  geom.NewPlacement(sp.Position, sp.Rotation, scale),
		handle: h,
	}
	inst.Bounds = geom.EmptyAABB()
	if b := h.Model().Bounds; !b.IsEmpty() {
		inst.Bounds = inst.place.BoundsToWorld(b)
	}
	return inst
}

// lifted raises a point query by the same margin the model floor rays use, so a
// point resting on a floor still selects it.
func lifted(p geom.Vec3) geom.Vec3 {
	return geom.Vec3{p[0], p[1], p[2] + 0.1}
}

func modelFlags(sp format.Spawn) uint32 {
	if sp.Flags&format.SpawnFlagM2 != 0 {
		return model.FlagM2
	}
	return 0
}

// blocksLOS reports whether the instance takes part in ray queries.
func (i *Instance) blocksLOS() bool {
	return i.Flags&format.SpawnFlagNoLOS == 0
}

// acquire pins the model for the duration of a query. It fails once the
// owning tile has been unloaded and the model dropped.
func (i *Instance) acquire() (*model.Model, bool) {
	if !i.handle.Retain() {
		return nil, false
	}
	return i.handle.Model(), true
}

func (i *Instance) release() {
	i.handle.Release()
}

func (i *Instance) intersectRay(r geom.Ray, maxDist float32, stopAtFirst bool) (float32, bool) {
	if _, ok := i.Bounds.IntersectRay(r, maxDist); !ok {
		return 0, false
	}
	m, ok := i.acquire()
	if !ok {
		return 0, false
	}
	defer i.release()

	scale := i.place.Scale()
	h, ok := m.IntersectRay(i.place.RayToModel(r), maxDist/scale, model.RayOptions{StopAtFirst: stopAtFirst})
	if !ok {
		return 0, false
	}
	return h.Distance * scale, true
}

// location reports the group grounding p and the internal height of that
// floor. Doodads never ground a location.
func (i *Instance) location(p geom.Vec3) (group int, groundZ float32, ok bool) {
	if !i.Bounds.Below(lifted(p)) {
		return 0, 0, false
	}
	m, ok := i.acquire()
	if !ok {
		return 0, 0, false
	}
	defer i.release()
	if m.IsM2() {
		return 0, 0, false
	}

	loc, ok := m.IntersectPoint(i.place.ToModel(p))
	if !ok {
		return 0, 0, false
	}
	return loc.Group, p[2] - loc.GroundDist*i.place.Scale(), true
}

// liquidLevel returns the internal height of group gi's liquid over p.
func (i *Instance) liquidLevel(gi int, p geom.Vec3) (level float32, liquid uint32, ok bool) {
	m, ok := i.acquire()
	if !ok {
		return 0, 0, false
	}
	defer i.release()

	if gi < 0 || gi >= len(m.Groups) {
		return 0, 0, false
	}
	pm := i.place.ToModel(p)
	lm, ok := m.LiquidLevel(gi, pm)
	if !ok {
		return 0, 0, false
	}
	surface := i.place.ToWorld(geom.Vec3{pm[0], pm[1], lm})
	return surface[2], m.Groups[gi].LiquidType, true
}

// groupInfo returns the identifiers reported by area queries.
func (i *Instance) groupInfo(gi int) (rootID, groupID int32, mogpFlags uint32, ok bool) {
	m, ok := i.acquire()
	if !ok {
		return 0, 0, 0, false
	}
	defer i.release()

	if gi < 0 || gi >= len(m.Groups) {
		return 0, 0, 0, false
	}
	g := m.Groups[gi]
	return m.RootID, g.GroupID, g.MogpFlags, true
}
