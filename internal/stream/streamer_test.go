package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/vmap/internal/config"
	"github.com/l1jgo/vmap/internal/core/event"
	"github.com/l1jgo/vmap/internal/core/system"
	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/vmap"
	"github.com/l1jgo/vmap/internal/vmap/vmaptest"
)

type fakeLoader struct {
	mu       sync.Mutex
	loaded   map[TileRef]bool
	fail     map[TileRef]error
	loads    int
	unloads  int
	disabled bool
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{loaded: make(map[TileRef]bool), fail: make(map[TileRef]error)}
}

func (f *fakeLoader) LoadTile(_ string, mapID uint32, x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disabled {
		return vmap.ErrLoadingDisabled
	}
	ref := TileRef{mapID, x, y}
	if err := f.fail[ref]; err != nil {
		return err
	}
	f.loads++
	f.loaded[ref] = true
	return nil
}

func (f *fakeLoader) UnloadMapTile(mapID uint32, x, y int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloads++
	delete(f.loaded, TileRef{mapID, x, y})
}

func (f *fakeLoader) numLoaded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loaded)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testStreamConfig = config.StreamConfig{
	TickRate:    time.Millisecond,
	Radius:      1,
	UnloadDelay: 10 * time.Second,
	RetryDelay:  time.Minute,
	Workers:     2,
}

func newTestStreamer(t *testing.T, l Loader) (*Streamer, *event.Bus, *fakeClock) {
	bus := event.NewBus()
	s := New(l, bus, "unused", testStreamConfig, zaptest.NewLogger(t))
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s.now = clock.Now
	return s, bus, clock
}

// settle plans and waits until no more loads start.
func settle(t *testing.T, s *Streamer) {
	t.Helper()
	for i := 0; i < 32; i++ {
		s.Plan()
		s.Settle()
		if s.Stats().Loading == 0 && !s.hasStartable() {
			return
		}
	}
	t.Fatal("streamer did not settle")
}

// hasStartable reports whether a wanted tile has no entry yet.
func (s *Streamer) hasStartable() bool {
	for ref := range s.wanted() {
		if s.resident[ref] == nil {
			return true
		}
	}
	return false
}

type recorder struct {
	loaded   []event.TileLoaded
	unloaded []event.TileUnloaded
	failed   []event.TileLoadFailed
}

func record(bus *event.Bus) *recorder {
	r := &recorder{}
	event.Subscribe(bus, func(e event.TileLoaded) { r.loaded = append(r.loaded, e) })
	event.Subscribe(bus, func(e event.TileUnloaded) { r.unloaded = append(r.unloaded, e) })
	event.Subscribe(bus, func(e event.TileLoadFailed) { r.failed = append(r.failed, e) })
	return r
}

func deliver(bus *event.Bus) {
	bus.SwapBuffers()
	bus.DispatchAll()
}

func TestObserverLoadsSurroundingTiles(t *testing.T) {
	l := newFakeLoader()
	s, bus, _ := newTestStreamer(t, l)
	rec := record(bus)

	x, y := geom.TileCenter(32, 32)
	s.AddObserver(Observer{MapID: 0, X: x, Y: y, Radius: -1})
	settle(t, s)

	if got := l.numLoaded(); got != 9 {
		t.Fatalf("loaded %d tiles, want 9", got)
	}
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if !s.IsLoaded(0, 32+dx, 32+dy) {
				t.Fatalf("tile %d,%d not loaded", 32+dx, 32+dy)
			}
		}
	}
	deliver(bus)
	if len(rec.loaded) != 9 {
		t.Fatalf("got %d TileLoaded events, want 9", len(rec.loaded))
	}
	st := s.Stats()
	if st.Observers != 1 || st.Loaded != 9 || st.Loads != 9 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRadiusClampedToGrid(t *testing.T) {
	l := newFakeLoader()
	s, _, _ := newTestStreamer(t, l)

	x, y := geom.TileCenter(0, 0)
	s.AddObserver(Observer{MapID: 1, X: x, Y: y, Radius: 1})
	settle(t, s)

	want := []TileRef{{1, 0, 0}, {1, 0, 1}, {1, 1, 0}, {1, 1, 1}}
	got := s.Resident()
	if len(got) != len(want) {
		t.Fatalf("resident = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("resident = %v, want %v", got, want)
		}
	}
}

func TestUnloadAfterDelay(t *testing.T) {
	l := newFakeLoader()
	s, bus, clock := newTestStreamer(t, l)
	rec := record(bus)

	x, y := geom.TileCenter(32, 32)
	id := s.AddObserver(Observer{MapID: 0, X: x, Y: y, Radius: 0})
	settle(t, s)
	if !s.IsLoaded(0, 32, 32) {
		t.Fatal("tile 32,32 not loaded")
	}

	nx, ny := geom.TileCenter(40, 40)
	if !s.MoveObserver(id, 0, nx, ny) {
		t.Fatal("move failed")
	}
	settle(t, s)
	if !s.IsLoaded(0, 32, 32) {
		t.Fatal("tile 32,32 unloaded before the delay")
	}

	clock.Advance(testStreamConfig.UnloadDelay)
	s.Plan()
	if s.IsLoaded(0, 32, 32) {
		t.Fatal("tile 32,32 still loaded after the delay")
	}
	if !s.IsLoaded(0, 40, 40) {
		t.Fatal("tile 40,40 must stay loaded")
	}
	deliver(bus)
	if len(rec.unloaded) != 1 || rec.unloaded[0] != (event.TileUnloaded{MapID: 0, X: 32, Y: 32}) {
		t.Fatalf("unloaded events = %v", rec.unloaded)
	}
	if l.numLoaded() != 1 {
		t.Fatalf("loader holds %d tiles, want 1", l.numLoaded())
	}
}

func TestReturningObserverKeepsTile(t *testing.T) {
	l := newFakeLoader()
	s, _, clock := newTestStreamer(t, l)

	x, y := geom.TileCenter(20, 20)
	id := s.AddObserver(Observer{MapID: 0, X: x, Y: y, Radius: 0})
	settle(t, s)

	nx, ny := geom.TileCenter(21, 20)
	s.MoveObserver(id, 0, nx, ny)
	settle(t, s)
	clock.Advance(testStreamConfig.UnloadDelay / 2)
	s.MoveObserver(id, 0, x, y)
	settle(t, s)
	clock.Advance(testStreamConfig.UnloadDelay / 2)
	s.Plan()

	if !s.IsLoaded(0, 20, 20) {
		t.Fatal("tile 20,20 unloaded although observed again")
	}
	if l.loads != 2 {
		t.Fatalf("loads = %d, want 2", l.loads)
	}
}

func TestFailedLoadRetriesAfterDelay(t *testing.T) {
	l := newFakeLoader()
	boom := errors.New("boom")
	l.fail[TileRef{0, 5, 5}] = boom
	s, bus, clock := newTestStreamer(t, l)
	rec := record(bus)

	s.Pin(0, 5, 5)
	settle(t, s)
	deliver(bus)
	if len(rec.failed) != 1 || !errors.Is(rec.failed[0].Err, boom) {
		t.Fatalf("failed events = %v", rec.failed)
	}
	if st := s.Stats(); st.Failed != 1 || st.Failures != 1 {
		t.Fatalf("stats = %+v", st)
	}

	settle(t, s)
	if st := s.Stats(); st.Failures != 1 {
		t.Fatalf("retried before the delay: %+v", st)
	}

	l.mu.Lock()
	delete(l.fail, TileRef{0, 5, 5})
	l.mu.Unlock()
	clock.Advance(testStreamConfig.RetryDelay)
	settle(t, s)
	if !s.IsLoaded(0, 5, 5) {
		t.Fatal("tile not loaded after retry")
	}
}

func TestLoadingDisabledIsSilent(t *testing.T) {
	l := newFakeLoader()
	l.disabled = true
	s, bus, _ := newTestStreamer(t, l)
	rec := record(bus)

	s.Pin(0, 1, 1)
	s.Plan()
	s.Settle()
	deliver(bus)
	if len(rec.failed) != 0 || len(rec.loaded) != 0 {
		t.Fatalf("unexpected events: %+v", rec)
	}
	if st := s.Stats(); st.Failed != 0 || st.Loaded != 0 || st.Loading != 0 {
		t.Fatalf("stats = %+v", st)
	}

	l.mu.Lock()
	l.disabled = false
	l.mu.Unlock()
	settle(t, s)
	if !s.IsLoaded(0, 1, 1) {
		t.Fatal("tile not loaded once loading was enabled")
	}
}

func TestPinnedTilesOutliveObservers(t *testing.T) {
	l := newFakeLoader()
	s, _, clock := newTestStreamer(t, l)

	s.Pin(0, 30, 30)
	settle(t, s)
	clock.Advance(time.Hour)
	s.Plan()
	if !s.IsLoaded(0, 30, 30) {
		t.Fatal("pinned tile unloaded")
	}

	s.Unpin(0, 30, 30)
	clock.Advance(testStreamConfig.UnloadDelay)
	s.Plan()
	if s.IsLoaded(0, 30, 30) {
		t.Fatal("unpinned tile still loaded")
	}
}

// gatedLoader blocks loads of the gated tiles until release is closed.
type gatedLoader struct {
	*fakeLoader
	gated   map[TileRef]bool
	release chan struct{}
}

func (g *gatedLoader) LoadTile(base string, mapID uint32, x, y int) error {
	if g.gated[TileRef{mapID, x, y}] {
		<-g.release
	}
	return g.fakeLoader.LoadTile(base, mapID, x, y)
}

func TestBusyWorkersStillRefreshResidentTiles(t *testing.T) {
	l := &gatedLoader{
		fakeLoader: newFakeLoader(),
		gated:      map[TileRef]bool{{0, 1, 1}: true, {0, 1, 2}: true, {0, 2, 2}: true},
		release:    make(chan struct{}),
	}
	s, _, clock := newTestStreamer(t, l)

	s.Pin(0, 50, 50)
	settle(t, s)

	// Two gated loads fill the pool, so 2,2 cannot start and sorts
	// before the resident 50,50.
	s.Pin(0, 1, 1)
	s.Pin(0, 1, 2)
	s.Pin(0, 2, 2)
	released := false
	defer func() {
		if !released {
			close(l.release)
		}
		s.Settle()
	}()
	for i := 0; i < 20; i++ {
		clock.Advance(time.Second)
		s.Plan()
		s.Collect()
	}
	if st := s.Stats(); st.Loading != 2 {
		t.Fatalf("stats = %+v, want 2 loading", st)
	}

	s.Unpin(0, 50, 50)
	s.Plan()
	if !s.IsLoaded(0, 50, 50) {
		t.Fatal("tile unloaded as soon as it stopped being wanted")
	}
	clock.Advance(testStreamConfig.UnloadDelay)
	s.Plan()
	if s.IsLoaded(0, 50, 50) {
		t.Fatal("tile still loaded after the delay")
	}

	close(l.release)
	released = true
	settle(t, s)
	for _, ref := range []TileRef{{0, 1, 1}, {0, 1, 2}, {0, 2, 2}} {
		if !s.IsLoaded(ref.MapID, ref.X, ref.Y) {
			t.Fatalf("tile %v not loaded", ref)
		}
	}
}

func TestRemovedObserverIDIsStale(t *testing.T) {
	l := newFakeLoader()
	s, _, _ := newTestStreamer(t, l)

	id := s.AddObserver(Observer{MapID: 0, Radius: 0})
	if !s.RemoveObserver(id) {
		t.Fatal("remove failed")
	}
	if s.RemoveObserver(id) {
		t.Fatal("double remove succeeded")
	}
	if s.MoveObserver(id, 0, 1, 1) {
		t.Fatal("moved a removed observer")
	}
	if s.Stats().Observers != 0 {
		t.Fatalf("observers = %d, want 0", s.Stats().Observers)
	}
	if n := s.FlushRemoved(); n != 1 {
		t.Fatalf("flushed %d, want 1", n)
	}

	next := s.AddObserver(Observer{MapID: 0, Radius: 0})
	if next.Index() != id.Index() || next.Generation() != id.Generation()+1 {
		t.Fatalf("reused id = %x, old %x", next, id)
	}
	if _, ok := s.Observer(id); ok {
		t.Fatal("stale id resolves")
	}
	if _, ok := s.Observer(next); !ok {
		t.Fatal("new id does not resolve")
	}
}

func TestCloseUnloadsEverything(t *testing.T) {
	l := newFakeLoader()
	s, _, _ := newTestStreamer(t, l)

	x, y := geom.TileCenter(10, 10)
	s.AddObserver(Observer{MapID: 0, X: x, Y: y, Radius: 1})
	settle(t, s)
	s.Close()
	if l.numLoaded() != 0 {
		t.Fatalf("loader holds %d tiles after close", l.numLoaded())
	}
	if st := s.Stats(); st.Loaded != 0 || st.Unloads != 9 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRunnerDrivesManager(t *testing.T) {
	w := vmaptest.NewWorld(t)
	w.Model("floor", vmaptest.TileFloor())
	w.Tile(0, 32, 32, vmaptest.TileSpawn(1, "floor", 32, 32, 10))
	w.Map(0)

	m := vmap.NewManager(zaptest.NewLogger(t))
	bus := event.NewBus()
	s := New(m, bus, w.Dir, testStreamConfig, zaptest.NewLogger(t))
	rec := record(bus)

	r := system.NewRunner()
	Register(r, s)
	r.Register(dispatch{bus})

	x, y := geom.TileCenter(32, 32)
	s.AddObserver(Observer{MapID: 0, X: x, Y: y, Radius: 0})
	r.Tick(time.Millisecond)
	s.Settle()
	r.Tick(time.Millisecond)
	r.Tick(time.Millisecond)

	if len(rec.loaded) != 1 {
		t.Fatalf("loaded events = %v", rec.loaded)
	}
	if h := m.GetHeight(0, x, y, 100, 200); h < 9.99 || h > 10.01 {
		t.Fatalf("height = %v, want 10", h)
	}

	s.Close()
	if m.NumLoadedMaps() != 0 {
		t.Fatalf("maps still loaded after close: %v", m.LoadedMaps())
	}
}

// dispatch delivers events at the start of every tick.
type dispatch struct{ bus *event.Bus }

func (d dispatch) Phase() system.Phase    { return system.PhasePreUpdate }
func (d dispatch) Update(_ time.Duration) { deliver(d.bus) }
