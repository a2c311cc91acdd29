package handler

import (
	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/net/packet"
	"github.com/l1jgo/vmap/internal/stream"
)

// HandleWatch processes C_WATCH: [reqID][mapID][x y][radius int8].
// Each session owns at most one observer; a second C_WATCH moves it.
// Replies S_WATCH [observer id u64].
func HandleWatch(sess Session, r *packet.Reader, deps *Deps) {
	reqID, mapID := r.ReadDU(), r.ReadDU()
	x, y := r.ReadF(), r.ReadF()
	radius := int(int8(r.ReadC()))
	if malformed(sess, r, reqID, deps) {
		return
	}
	if deps.Streamer == nil {
		sendError(sess, reqID, "streaming disabled")
		return
	}

	id, ok := deps.watches[sess.SessionID()]
	if ok {
		if o, live := deps.Streamer.Observer(id); live && o.Radius == radius {
			deps.Streamer.MoveObserver(id, mapID, x, y)
		} else {
			deps.Streamer.RemoveObserver(id)
			ok = false
		}
	}
	if !ok {
		id = deps.Streamer.AddObserver(stream.Observer{MapID: mapID, X: x, Y: y, Radius: radius})
		deps.watches[sess.SessionID()] = id
		deps.Log.Debug("observer added",
			zap.Uint64("session", sess.SessionID()),
			zap.Uint64("observer", uint64(id)),
		)
	}

	w := packet.NewWriterWithOpcode(packet.S_WATCH)
	w.WriteDU(reqID)
	w.WriteQ(uint64(id))
	sess.Send(w.Bytes())
}

// HandleUnwatch processes C_UNWATCH: [reqID]. Replies S_WATCH with id 0.
func HandleUnwatch(sess Session, r *packet.Reader, deps *Deps) {
	reqID := r.ReadDU()
	if malformed(sess, r, reqID, deps) {
		return
	}
	dropWatch(sess.SessionID(), deps)

	w := packet.NewWriterWithOpcode(packet.S_WATCH)
	w.WriteDU(reqID)
	w.WriteQ(0)
	sess.Send(w.Bytes())
}

// HandleStats processes C_STATS: [reqID].
// Replies S_STATS [maps tiles models observers loading failed].
func HandleStats(sess Session, r *packet.Reader, deps *Deps) {
	reqID := r.ReadDU()
	if malformed(sess, r, reqID, deps) {
		return
	}

	tiles := 0
	maps := deps.VMap.LoadedMaps()
	for _, id := range maps {
		tiles += deps.VMap.NumLoadedTiles(id)
	}
	var st stream.Stats
	if deps.Streamer != nil {
		st = deps.Streamer.Stats()
	}

	w := packet.NewWriterWithOpcode(packet.S_STATS)
	w.WriteDU(reqID)
	w.WriteDU(uint32(len(maps)))
	w.WriteDU(uint32(tiles))
	w.WriteDU(uint32(deps.VMap.Cache().Len()))
	w.WriteDU(uint32(st.Observers))
	w.WriteDU(uint32(st.Loading))
	w.WriteDU(uint32(st.Failed))
	sess.Send(w.Bytes())
}

// HandleDisconnect releases the session's observer.
func HandleDisconnect(sessionID uint64, deps *Deps) {
	dropWatch(sessionID, deps)
}

func dropWatch(sessionID uint64, deps *Deps) {
	id, ok := deps.watches[sessionID]
	if !ok {
		return
	}
	delete(deps.watches, sessionID)
	if deps.Streamer != nil {
		deps.Streamer.RemoveObserver(id)
	}
}
