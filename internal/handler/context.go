package handler

import (
	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/config"
	"github.com/l1jgo/vmap/internal/net/packet"
	"github.com/l1jgo/vmap/internal/stream"
	"github.com/l1jgo/vmap/internal/vmap"
)

// Session is the part of a connection the handlers use.
type Session interface {
	SessionID() uint64
	Send(data []byte)
	SetState(st packet.SessionState)
	// CloseAfterFlush ends the connection once the replies sent so far
	// reach the client.
	CloseAfterFlush()
}

// Deps holds shared dependencies injected into all packet handlers.
// Handlers run on the tick goroutine only.
type Deps struct {
	VMap     *vmap.Manager
	Streamer *stream.Streamer // nil disables C_WATCH
	Config   *config.Config
	Log      *zap.Logger

	watches map[uint64]stream.ObserverID // session id -> observer
}

func NewDeps(mgr *vmap.Manager, s *stream.Streamer, cfg *config.Config, log *zap.Logger) *Deps {
	return &Deps{
		VMap:     mgr,
		Streamer: s,
		Config:   cfg,
		Log:      log,
		watches:  make(map[uint64]stream.ObserverID),
	}
}

// Watches returns the number of sessions with an observer.
func (d *Deps) Watches() int { return len(d.watches) }

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	handshake := []packet.SessionState{packet.StateHandshake}
	ready := []packet.SessionState{packet.StateReady}

	reg.Register(packet.C_HELLO, handshake, func(sess any, r *packet.Reader) {
		HandleHello(sess.(Session), r, deps)
	})

	reg.Register(packet.C_LOS, ready, func(sess any, r *packet.Reader) {
		HandleLOS(sess.(Session), r, deps)
	})
	reg.Register(packet.C_HITPOS, ready, func(sess any, r *packet.Reader) {
		HandleHitPos(sess.(Session), r, deps)
	})
	reg.Register(packet.C_HEIGHT, ready, func(sess any, r *packet.Reader) {
		HandleHeight(sess.(Session), r, deps)
	})
	reg.Register(packet.C_AREA, ready, func(sess any, r *packet.Reader) {
		HandleArea(sess.(Session), r, deps)
	})
	reg.Register(packet.C_LIQUID, ready, func(sess any, r *packet.Reader) {
		HandleLiquid(sess.(Session), r, deps)
	})

	reg.Register(packet.C_WATCH, ready, func(sess any, r *packet.Reader) {
		HandleWatch(sess.(Session), r, deps)
	})
	reg.Register(packet.C_UNWATCH, ready, func(sess any, r *packet.Reader) {
		HandleUnwatch(sess.(Session), r, deps)
	})
	reg.Register(packet.C_STATS, ready, func(sess any, r *packet.Reader) {
		HandleStats(sess.(Session), r, deps)
	})
}

// sendError answers reqID with S_ERROR.
func sendError(sess Session, reqID uint32, msg string) {
	w := packet.NewWriterWithOpcode(packet.S_ERROR)
	w.WriteDU(reqID)
	w.WriteS(msg)
	sess.Send(w.Bytes())
}

// malformed reports a truncated request. It returns true when the request
// must be dropped.
func malformed(sess Session, r *packet.Reader, reqID uint32, deps *Deps) bool {
	if !r.Overrun() {
		return false
	}
	deps.Log.Debug("truncated request",
		zap.Uint64("session", sess.SessionID()),
		zap.Uint8("opcode", r.Opcode()),
	)
	sendError(sess, reqID, "malformed request")
	return true
}
