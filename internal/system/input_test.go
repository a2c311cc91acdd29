package system

import (
	"context"
	"errors"
	"io"
	gonet "net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/config"
	coresys "github.com/l1jgo/vmap/internal/core/system"
	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/handler"
	"github.com/l1jgo/vmap/internal/net"
	"github.com/l1jgo/vmap/internal/net/packet"
	"github.com/l1jgo/vmap/internal/vmap"
	"github.com/l1jgo/vmap/internal/vmap/vmaptest"
)

// queryClient speaks the frame protocol over a real TCP connection.
type queryClient struct {
	t    *testing.T
	conn gonet.Conn
}

func (c *queryClient) send(w *packet.Writer) {
	c.t.Helper()
	if err := net.WriteFrame(c.conn, w.Bytes()); err != nil {
		c.t.Fatal(err)
	}
}

func (c *queryClient) recv() *packet.Reader {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	payload, err := net.ReadFrame(c.conn)
	if err != nil {
		c.t.Fatal(err)
	}
	return packet.NewReader(payload)
}

func TestQueryServerEndToEnd(t *testing.T) {
	// Session goroutines may log after the test returns.
	log := zap.NewNop()

	w := vmaptest.NewWorld(t)
	w.Model("floor", vmaptest.TileFloor())
	w.Tile(0, 32, 32, vmaptest.TileSpawn(1, "floor", 32, 32, 10))
	w.Map(0)
	mgr := vmap.NewManager(log)
	if err := mgr.LoadTile(w.Dir, 0, 32, 32); err != nil {
		t.Fatal(err)
	}

	srv, err := net.NewServer("127.0.0.1:0", 16, 16, 0, log)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Shutdown()
	go srv.AcceptLoop()

	cfg := config.Defaults()
	deps := handler.NewDeps(mgr, nil, cfg, log)
	reg := packet.NewRegistry(log)
	handler.RegisterAll(reg, deps)

	store := net.NewSessionStore()
	gone := make(chan uint64, 1)
	runner := coresys.NewRunner()
	runner.Register(NewInputSystem(srv, reg, store, 8, func(id uint64) { gone <- id }, log))
	runner.Register(NewOutputSystem(store))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(ctx, 5*time.Millisecond)
	}()
	defer func() {
		cancel()
		<-done
		store.CloseAll()
	}()

	conn, err := gonet.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	c := &queryClient{t: t, conn: conn}

	hello := packet.NewWriterWithOpcode(packet.C_HELLO)
	hello.WriteDU(1)
	hello.WriteDU(packet.ProtocolVersion)
	hello.WriteS("test")
	c.send(hello)
	if r := c.recv(); r.Opcode() != packet.S_HELLO || r.ReadDU() != 1 {
		t.Fatal("bad hello reply")
	}

	cx, cy := geom.TileCenter(32, 32)
	q := packet.NewWriterWithOpcode(packet.C_HEIGHT)
	q.WriteDU(2)
	q.WriteDU(0)
	q.WriteF(cx)
	q.WriteF(cy)
	q.WriteF(40)
	q.WriteF(0)
	c.send(q)
	r := c.recv()
	if r.Opcode() != packet.S_HEIGHT || r.ReadDU() != 2 || r.ReadC() != 1 {
		t.Fatal("height not found over the wire")
	}
	if h := r.ReadF(); h < 9.99 || h > 10.01 {
		t.Fatalf("height = %v, want 10", h)
	}

	conn.Close()
	select {
	case <-gone:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect not noticed")
	}
}

func TestQueryServerRefusesWrongVersion(t *testing.T) {
	log := zap.NewNop()
	mgr := vmap.NewManager(log)

	srv, err := net.NewServer("127.0.0.1:0", 16, 16, 0, log)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Shutdown()
	go srv.AcceptLoop()

	deps := handler.NewDeps(mgr, nil, config.Defaults(), log)
	reg := packet.NewRegistry(log)
	handler.RegisterAll(reg, deps)

	store := net.NewSessionStore()
	runner := coresys.NewRunner()
	runner.Register(NewInputSystem(srv, reg, store, 8, nil, log))
	runner.Register(NewOutputSystem(store))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(ctx, 5*time.Millisecond)
	}()
	defer func() {
		cancel()
		<-done
		store.CloseAll()
	}()

	conn, err := gonet.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	c := &queryClient{t: t, conn: conn}

	hello := packet.NewWriterWithOpcode(packet.C_HELLO)
	hello.WriteDU(7)
	hello.WriteDU(packet.ProtocolVersion + 1)
	hello.WriteS("old")
	c.send(hello)

	r := c.recv()
	if r.Opcode() != packet.S_ERROR || r.ReadDU() != 7 || r.ReadS() == "" {
		t.Fatal("version mismatch not answered with S_ERROR")
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := net.ReadFrame(conn); !errors.Is(err, io.EOF) {
		t.Fatalf("after refusal read = %v, want EOF", err)
	}
}
