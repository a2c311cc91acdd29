package handler

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/vmap/internal/config"
	"github.com/l1jgo/vmap/internal/core/event"
	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/net/packet"
	"github.com/l1jgo/vmap/internal/stream"
	"github.com/l1jgo/vmap/internal/vmap"
	"github.com/l1jgo/vmap/internal/vmap/vmaptest"
)

type fakeSession struct {
	id     uint64
	state  packet.SessionState
	name   string
	sent   [][]byte
	closed bool
}

func (f *fakeSession) SessionID() uint64               { return f.id }
func (f *fakeSession) Send(data []byte)                { f.sent = append(f.sent, data) }
func (f *fakeSession) SetState(st packet.SessionState) { f.state = st }
func (f *fakeSession) CloseAfterFlush()                { f.closed = true }
func (f *fakeSession) SetClientName(name string)       { f.name = name }

// last returns a reader over the most recent reply.
func (f *fakeSession) last(t *testing.T) *packet.Reader {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no reply sent")
	}
	return packet.NewReader(f.sent[len(f.sent)-1])
}

type fixture struct {
	reg  *packet.Registry
	deps *Deps
	mgr  *vmap.Manager
	cx   float32
	cy   float32
}

// newFixture loads a floor at z 10 on tile 32,32 of map 0.
func newFixture(t *testing.T, withStreamer bool) *fixture {
	t.Helper()
	w := vmaptest.NewWorld(t)
	w.Model("floor", vmaptest.TileFloor())
	w.Tile(0, 32, 32, vmaptest.TileSpawn(1, "floor", 32, 32, 10))
	w.Map(0)

	log := zaptest.NewLogger(t)
	cfg := config.Defaults()
	cfg.VMap.BasePath = w.Dir
	mgr := vmap.NewManager(log)
	if err := mgr.LoadTile(w.Dir, 0, 32, 32); err != nil {
		t.Fatal(err)
	}

	var s *stream.Streamer
	if withStreamer {
		s = stream.New(mgr, event.NewBus(), w.Dir, cfg.Stream, log)
		t.Cleanup(s.Close)
	}
	deps := NewDeps(mgr, s, cfg, log)
	reg := packet.NewRegistry(log)
	RegisterAll(reg, deps)

	cx, cy := geom.TileCenter(32, 32)
	return &fixture{reg: reg, deps: deps, mgr: mgr, cx: cx, cy: cy}
}

func (fx *fixture) dispatch(t *testing.T, sess *fakeSession, w *packet.Writer) {
	t.Helper()
	if err := fx.reg.Dispatch(sess, sess.state, w.Bytes()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func ready(id uint64) *fakeSession {
	return &fakeSession{id: id, state: packet.StateReady}
}

func request(op byte, reqID, mapID uint32, nums ...float32) *packet.Writer {
	w := packet.NewWriterWithOpcode(op)
	w.WriteDU(reqID)
	w.WriteDU(mapID)
	for _, n := range nums {
		w.WriteF(n)
	}
	return w
}

func TestHello(t *testing.T) {
	fx := newFixture(t, true)
	sess := &fakeSession{id: 1, state: packet.StateHandshake}

	w := packet.NewWriterWithOpcode(packet.C_HELLO)
	w.WriteDU(7)
	w.WriteDU(packet.ProtocolVersion)
	w.WriteS("worldserver")
	fx.dispatch(t, sess, w)

	r := sess.last(t)
	if r.Opcode() != packet.S_HELLO || r.ReadDU() != 7 || r.ReadDU() != packet.ProtocolVersion {
		t.Fatalf("reply = % x", sess.sent[0])
	}
	if caps := r.ReadC(); caps&capLOS == 0 || caps&capWatch == 0 {
		t.Fatalf("caps = %08b", caps)
	}
	if sess.state != packet.StateReady || sess.name != "worldserver" {
		t.Fatalf("state = %v, name = %q", sess.state, sess.name)
	}
}

func TestHelloWrongVersion(t *testing.T) {
	fx := newFixture(t, false)
	sess := &fakeSession{id: 1, state: packet.StateHandshake}

	w := packet.NewWriterWithOpcode(packet.C_HELLO)
	w.WriteDU(1)
	w.WriteDU(packet.ProtocolVersion + 1)
	w.WriteS("old")
	fx.dispatch(t, sess, w)

	if sess.last(t).Opcode() != packet.S_ERROR || !sess.closed {
		t.Fatal("mismatched version accepted")
	}
	if sess.state != packet.StateHandshake {
		t.Fatalf("state = %v", sess.state)
	}
}

func TestQueryBeforeHelloRejected(t *testing.T) {
	fx := newFixture(t, false)
	sess := &fakeSession{id: 1, state: packet.StateHandshake}
	err := fx.reg.Dispatch(sess, sess.state, request(packet.C_LOS, 1, 0, 0, 0, 0, 1, 1, 1).Bytes())
	if err == nil {
		t.Fatal("query accepted during handshake")
	}
	if len(sess.sent) != 0 {
		t.Fatal("reply sent during handshake")
	}
}

func TestQueries(t *testing.T) {
	fx := newFixture(t, false)
	sess := ready(1)
	cx, cy := fx.cx, fx.cy

	fx.dispatch(t, sess, request(packet.C_LOS, 1, 0, cx, cy, 20, cx+10, cy, 20))
	r := sess.last(t)
	if r.Opcode() != packet.S_LOS || r.ReadDU() != 1 || r.ReadC() != 1 {
		t.Fatal("clear line reported blocked")
	}
	fx.dispatch(t, sess, request(packet.C_LOS, 2, 0, cx, cy, 20, cx, cy, 0))
	r = sess.last(t)
	if r.ReadDU() != 2 || r.ReadC() != 0 {
		t.Fatal("line through the floor reported clear")
	}

	fx.dispatch(t, sess, request(packet.C_HEIGHT, 3, 0, cx, cy, 50, 0))
	r = sess.last(t)
	if r.Opcode() != packet.S_HEIGHT || r.ReadDU() != 3 || r.ReadC() != 1 {
		t.Fatal("height not found")
	}
	if h := r.ReadF(); h < 9.99 || h > 10.01 {
		t.Fatalf("height = %v, want 10", h)
	}

	fx.dispatch(t, sess, request(packet.C_HEIGHT, 4, 0, cx, cy, 50, 5))
	r = sess.last(t)
	if r.ReadDU() != 4 || r.ReadC() != 0 || r.ReadF() != vmap.InvalidHeight {
		t.Fatal("height found beyond the search distance")
	}

	fx.dispatch(t, sess, request(packet.C_HITPOS, 5, 0, cx, cy, 20, cx, cy, 0, 0))
	r = sess.last(t)
	if r.Opcode() != packet.S_HITPOS || r.ReadDU() != 5 || r.ReadC() != 1 {
		t.Fatal("ray missed the floor")
	}
	r.ReadF()
	r.ReadF()
	if z := r.ReadF(); z < 9.99 || z > 10.01 {
		t.Fatalf("hit z = %v, want 10", z)
	}

	fx.dispatch(t, sess, request(packet.C_AREA, 6, 0, cx, cy, 12))
	r = sess.last(t)
	if r.Opcode() != packet.S_AREA || r.ReadDU() != 6 || r.ReadC() != 1 {
		t.Fatal("area not found")
	}
	r.ReadDU() // flags
	r.ReadDU() // adt id
	r.ReadD()  // root id
	r.ReadD()  // group id
	if z := r.ReadF(); z < 9.99 || z > 10.01 {
		t.Fatalf("area z = %v, want 10", z)
	}
	if len(sess.sent) != 6 {
		t.Fatalf("replies = %d, want 6", len(sess.sent))
	}
}

func TestUnknownMapAnswersNegative(t *testing.T) {
	fx := newFixture(t, false)
	sess := ready(1)

	fx.dispatch(t, sess, request(packet.C_LOS, 1, 99, 0, 0, 0, 10, 10, 10))
	if r := sess.last(t); r.ReadDU() != 1 || r.ReadC() != 1 {
		t.Fatal("unloaded map should not block sight")
	}
	w := request(packet.C_LIQUID, 2, 99, 0, 0, 0)
	w.WriteDU(0)
	fx.dispatch(t, sess, w)
	if r := sess.last(t); r.Opcode() != packet.S_LIQUID || r.ReadDU() != 2 || r.ReadC() != 0 {
		t.Fatal("liquid found on an unloaded map")
	}
}

func TestTruncatedRequest(t *testing.T) {
	fx := newFixture(t, false)
	sess := ready(1)

	fx.dispatch(t, sess, request(packet.C_HEIGHT, 9, 0, fx.cx))
	r := sess.last(t)
	if r.Opcode() != packet.S_ERROR || r.ReadDU() != 9 {
		t.Fatalf("reply = % x", sess.sent[0])
	}
	if msg := r.ReadS(); msg != "malformed request" {
		t.Fatalf("message = %q", msg)
	}
}

func watchRequest(reqID uint32, x, y float32, radius int8) *packet.Writer {
	w := request(packet.C_WATCH, reqID, 0, x, y)
	w.WriteC(byte(radius))
	return w
}

func TestWatchLifecycle(t *testing.T) {
	fx := newFixture(t, true)
	s := fx.deps.Streamer
	sess := ready(1)

	fx.dispatch(t, sess, watchRequest(1, fx.cx, fx.cy, 0))
	r := sess.last(t)
	if r.Opcode() != packet.S_WATCH || r.ReadDU() != 1 {
		t.Fatal("bad watch reply")
	}
	first := stream.ObserverID(r.ReadQ())
	if o, ok := s.Observer(first); !ok || o.Radius != 0 {
		t.Fatalf("observer = %+v %v", o, ok)
	}

	// Same radius moves the observer in place.
	fx.dispatch(t, sess, watchRequest(2, fx.cx+100, fx.cy, 0))
	r = sess.last(t)
	r.ReadDU()
	if id := stream.ObserverID(r.ReadQ()); id != first {
		t.Fatalf("moved observer id = %v, want %v", id, first)
	}
	if o, _ := s.Observer(first); o.X != fx.cx+100 {
		t.Fatalf("observer x = %v", o.X)
	}

	// A new radius replaces it.
	fx.dispatch(t, sess, watchRequest(3, fx.cx, fx.cy, -1))
	r = sess.last(t)
	r.ReadDU()
	second := stream.ObserverID(r.ReadQ())
	if second == first {
		t.Fatal("radius change kept the old observer")
	}
	if _, ok := s.Observer(first); ok {
		t.Fatal("old observer still live")
	}
	if s.Stats().Observers != 1 || fx.deps.Watches() != 1 {
		t.Fatalf("observers = %d, watches = %d", s.Stats().Observers, fx.deps.Watches())
	}

	fx.dispatch(t, sess, request(packet.C_UNWATCH, 4, 0))
	if s.Stats().Observers != 0 || fx.deps.Watches() != 0 {
		t.Fatal("unwatch left an observer")
	}
}

func TestDisconnectDropsObserver(t *testing.T) {
	fx := newFixture(t, true)
	a, b := ready(1), ready(2)
	fx.dispatch(t, a, watchRequest(1, fx.cx, fx.cy, 0))
	fx.dispatch(t, b, watchRequest(1, fx.cx, fx.cy, 0))

	HandleDisconnect(a.id, fx.deps)
	HandleDisconnect(a.id, fx.deps)
	if fx.deps.Streamer.Stats().Observers != 1 || fx.deps.Watches() != 1 {
		t.Fatalf("observers = %d", fx.deps.Streamer.Stats().Observers)
	}
}

func TestWatchWithoutStreamer(t *testing.T) {
	fx := newFixture(t, false)
	sess := ready(1)
	fx.dispatch(t, sess, watchRequest(1, fx.cx, fx.cy, 0))
	if sess.last(t).Opcode() != packet.S_ERROR {
		t.Fatal("watch accepted without a streamer")
	}
}

func TestStats(t *testing.T) {
	fx := newFixture(t, true)
	sess := ready(1)
	fx.dispatch(t, sess, watchRequest(1, fx.cx, fx.cy, 0))
	w := packet.NewWriterWithOpcode(packet.C_STATS)
	w.WriteDU(2)
	fx.dispatch(t, sess, w)

	r := sess.last(t)
	if r.Opcode() != packet.S_STATS || r.ReadDU() != 2 {
		t.Fatal("bad stats reply")
	}
	maps, tiles, models, observers := r.ReadDU(), r.ReadDU(), r.ReadDU(), r.ReadDU()
	if maps != 1 || tiles != 1 || models != 1 || observers != 1 {
		t.Fatalf("stats = %d %d %d %d", maps, tiles, models, observers)
	}
}
