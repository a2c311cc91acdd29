package handler

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/net/packet"
)

// Capability bits in S_HELLO, mirroring the global query switches.
const (
	capLOS     byte = 1 << 0
	capHeight  byte = 1 << 1
	capLoading byte = 1 << 2
	capWatch   byte = 1 << 3
)

// HandleHello processes C_HELLO: [reqID][version u32][client name].
// A matching version moves the session to Ready; any other is refused with
// S_ERROR and the connection closed once the error is written.
func HandleHello(sess Session, r *packet.Reader, deps *Deps) {
	reqID := r.ReadDU()
	version := r.ReadDU()
	name := r.ReadS()
	if malformed(sess, r, reqID, deps) {
		sess.CloseAfterFlush()
		return
	}
	if version != packet.ProtocolVersion {
		deps.Log.Info("client refused",
			zap.Uint64("session", sess.SessionID()),
			zap.Uint32("version", version),
		)
		sendError(sess, reqID, fmt.Sprintf("protocol version %d not supported, want %d", version, packet.ProtocolVersion))
		sess.CloseAfterFlush()
		return
	}

	if n, ok := sess.(interface{ SetClientName(string) }); ok {
		n.SetClientName(name)
	}
	deps.Log.Info("client ready", zap.Uint64("session", sess.SessionID()), zap.String("client", name))

	settings := deps.VMap.Settings()
	var caps byte
	if settings.EnableLOS {
		caps |= capLOS
	}
	if settings.EnableHeight {
		caps |= capHeight
	}
	if settings.EnableMapLoading {
		caps |= capLoading
	}
	if deps.Streamer != nil {
		caps |= capWatch
	}

	w := packet.NewWriterWithOpcode(packet.S_HELLO)
	w.WriteDU(reqID)
	w.WriteDU(packet.ProtocolVersion)
	w.WriteC(caps)
	sess.Send(w.Bytes())
	sess.SetState(packet.StateReady)
}
