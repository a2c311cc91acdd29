package handler

import (
	"github.com/l1jgo/vmap/internal/net/packet"
	"github.com/l1jgo/vmap/internal/vmap"
)

// Every query starts with [reqID u32][mapID u32] followed by world
// coordinates as float32.

// HandleLOS processes C_LOS: [x1 y1 z1 x2 y2 z2]. Replies S_LOS [visible].
func HandleLOS(sess Session, r *packet.Reader, deps *Deps) {
	reqID, mapID := r.ReadDU(), r.ReadDU()
	x1, y1, z1 := r.ReadF(), r.ReadF(), r.ReadF()
	x2, y2, z2 := r.ReadF(), r.ReadF(), r.ReadF()
	if malformed(sess, r, reqID, deps) {
		return
	}

	w := packet.NewWriterWithOpcode(packet.S_LOS)
	w.WriteDU(reqID)
	w.WriteBool(deps.VMap.IsInLineOfSight(mapID, x1, y1, z1, x2, y2, z2))
	sess.Send(w.Bytes())
}

// HandleHitPos processes C_HITPOS: [x1 y1 z1 x2 y2 z2 pushback].
// Replies S_HITPOS [hit][x y z].
func HandleHitPos(sess Session, r *packet.Reader, deps *Deps) {
	reqID, mapID := r.ReadDU(), r.ReadDU()
	x1, y1, z1 := r.ReadF(), r.ReadF(), r.ReadF()
	x2, y2, z2 := r.ReadF(), r.ReadF(), r.ReadF()
	pushback := r.ReadF()
	if malformed(sess, r, reqID, deps) {
		return
	}

	pos, hit := deps.VMap.GetObjectHitPos(mapID, x1, y1, z1, x2, y2, z2, pushback)
	w := packet.NewWriterWithOpcode(packet.S_HITPOS)
	w.WriteDU(reqID)
	w.WriteBool(hit)
	w.WriteF(pos[0])
	w.WriteF(pos[1])
	w.WriteF(pos[2])
	sess.Send(w.Bytes())
}

// HandleHeight processes C_HEIGHT: [x y z maxDist]. A maxDist of zero or less
// uses the configured default. Replies S_HEIGHT [found][height].
func HandleHeight(sess Session, r *packet.Reader, deps *Deps) {
	reqID, mapID := r.ReadDU(), r.ReadDU()
	x, y, z := r.ReadF(), r.ReadF(), r.ReadF()
	maxDist := r.ReadF()
	if malformed(sess, r, reqID, deps) {
		return
	}
	if maxDist <= 0 {
		maxDist = deps.Config.VMap.MaxSearchDist
	}

	h := deps.VMap.GetHeight(mapID, x, y, z, maxDist)
	w := packet.NewWriterWithOpcode(packet.S_HEIGHT)
	w.WriteDU(reqID)
	w.WriteBool(h != vmap.InvalidHeight)
	w.WriteF(h)
	sess.Send(w.Bytes())
}

// HandleArea processes C_AREA: [x y z].
// Replies S_AREA [found][flags adtID rootID groupID z].
func HandleArea(sess Session, r *packet.Reader, deps *Deps) {
	reqID, mapID := r.ReadDU(), r.ReadDU()
	x, y, z := r.ReadF(), r.ReadF(), r.ReadF()
	if malformed(sess, r, reqID, deps) {
		return
	}

	info, ok := deps.VMap.GetAreaInfo(mapID, x, y, z)
	w := packet.NewWriterWithOpcode(packet.S_AREA)
	w.WriteDU(reqID)
	w.WriteBool(ok)
	w.WriteDU(info.Flags)
	w.WriteDU(info.AdtID)
	w.WriteD(info.RootID)
	w.WriteD(info.GroupID)
	w.WriteF(info.Z)
	sess.Send(w.Bytes())
}

// HandleLiquid processes C_LIQUID: [x y z mask].
// Replies S_LIQUID [found][level floor type].
func HandleLiquid(sess Session, r *packet.Reader, deps *Deps) {
	reqID, mapID := r.ReadDU(), r.ReadDU()
	x, y, z := r.ReadF(), r.ReadF(), r.ReadF()
	mask := r.ReadDU()
	if malformed(sess, r, reqID, deps) {
		return
	}

	info, ok := deps.VMap.GetLiquidLevel(mapID, x, y, z, mask)
	w := packet.NewWriterWithOpcode(packet.S_LIQUID)
	w.WriteDU(reqID)
	w.WriteBool(ok)
	w.WriteF(info.Level)
	w.WriteF(info.Floor)
	w.WriteDU(info.Type)
	sess.Send(w.Bytes())
}
