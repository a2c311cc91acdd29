// Package stream keeps the collision tiles around observers loaded. Planning
// runs on the tick goroutine; tile loads run on a bounded worker group and
// report back at the next tick.
package stream

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/l1jgo/vmap/internal/config"
	"github.com/l1jgo/vmap/internal/core/event"
	"github.com/l1jgo/vmap/internal/geom"
	"github.com/l1jgo/vmap/internal/vmap"
)

// Loader is the part of the query manager the streamer drives.
type Loader interface {
	LoadTile(basePath string, mapID uint32, x, y int) error
	UnloadMapTile(mapID uint32, x, y int)
}

// TileRef names one tile of one map.
type TileRef struct {
	MapID uint32
	X, Y  int
}

type tileState int

const (
	tileLoading tileState = iota
	tileLoaded
	tileFailed
)

type residentTile struct {
	state      tileState
	lastWanted time.Time
	retryAt    time.Time
}

type loadResult struct {
	ref  TileRef
	err  error
	took time.Duration
}

// Stats summarizes the streamer.
type Stats struct {
	Observers int
	Loaded    int
	Loading   int
	Failed    int
	Loads     uint64
	Unloads   uint64
	Failures  uint64
}

// Streamer is not safe for concurrent use; drive it from the tick goroutine.
type Streamer struct {
	loader   Loader
	bus      *event.Bus
	log      *zap.Logger
	basePath string
	cfg      config.StreamConfig
	now      func() time.Time

	observers *observerSet
	resident  map[TileRef]*residentTile
	pinned    map[TileRef]bool

	workers errgroup.Group
	mu      sync.Mutex // guards done
	done    []loadResult

	loads, unloads, failures uint64
}

func New(loader Loader, bus *event.Bus, basePath string, cfg config.StreamConfig, log *zap.Logger) *Streamer {
	s := &Streamer{
		loader:    loader,
		bus:       bus,
		log:       log,
		basePath:  basePath,
		cfg:       cfg,
		now:       time.Now,
		observers: newObserverSet(),
		resident:  make(map[TileRef]*residentTile),
		pinned:    make(map[TileRef]bool),
	}
	s.workers.SetLimit(max(cfg.Workers, 1))
	return s
}

// AddObserver registers an observer and returns its id.
func (s *Streamer) AddObserver(o Observer) ObserverID {
	return s.observers.add(o)
}

// MoveObserver updates an observer's position. It reports false for
// unknown or removed ids.
func (s *Streamer) MoveObserver(id ObserverID, mapID uint32, x, y float32) bool {
	o, ok := s.observers.get(id)
	if !ok {
		return false
	}
	o.MapID, o.X, o.Y = mapID, x, y
	return true
}

// RemoveObserver stops an observer from keeping tiles loaded. The id is
// recycled during the cleanup phase.
func (s *Streamer) RemoveObserver(id ObserverID) bool {
	return s.observers.markRemoved(id)
}

// Observer returns a copy of a live observer.
func (s *Streamer) Observer(id ObserverID) (Observer, bool) {
	o, ok := s.observers.get(id)
	if !ok {
		return Observer{}, false
	}
	return *o, true
}

// Pin keeps a tile wanted regardless of observers, for preloaded areas.
func (s *Streamer) Pin(mapID uint32, x, y int) {
	s.pinned[TileRef{mapID, x, y}] = true
}

func (s *Streamer) Unpin(mapID uint32, x, y int) {
	delete(s.pinned, TileRef{mapID, x, y})
}

// wanted returns every tile some observer or pin needs.
func (s *Streamer) wanted() map[TileRef]bool {
	want := make(map[TileRef]bool, len(s.pinned)+9*s.observers.len())
	for ref := range s.pinned {
		want[ref] = true
	}
	s.observers.each(func(_ ObserverID, o *Observer) {
		r := o.Radius
		if r < 0 {
			r = s.cfg.Radius
		}
		cx, cy := geom.TileOf(o.X, o.Y)
		for x := cx - r; x <= cx+r; x++ {
			for y := cy - r; y <= cy+r; y++ {
				if geom.ValidTile(x, y) {
					want[TileRef{o.MapID, x, y}] = true
				}
			}
		}
	})
	return want
}

// Plan starts loads for wanted tiles and unloads tiles that have not been
// wanted for the unload delay.
func (s *Streamer) Plan() {
	now := s.now()
	want := s.wanted()

	// Deterministic load order keeps worker scheduling reproducible.
	refs := make([]TileRef, 0, len(want))
	for ref := range want {
		refs = append(refs, ref)
	}
	sortRefs(refs)

	busy := false
	for _, ref := range refs {
		rt := s.resident[ref]
		if rt != nil {
			rt.lastWanted = now
			if rt.state != tileFailed || now.Before(rt.retryAt) {
				continue
			}
		}
		// Once the pool is full keep walking so every resident tile
		// still has its lastWanted refreshed.
		if busy || !s.startLoad(ref) {
			busy = true
			continue
		}
		if rt == nil {
			rt = &residentTile{}
			s.resident[ref] = rt
		}
		rt.state = tileLoading
		rt.lastWanted = now
	}

	for ref, rt := range s.resident {
		if want[ref] || now.Sub(rt.lastWanted) < s.cfg.UnloadDelay {
			continue
		}
		switch rt.state {
		case tileLoaded:
			s.loader.UnloadMapTile(ref.MapID, ref.X, ref.Y)
			s.unloads++
			event.Emit(s.bus, event.TileUnloaded{MapID: ref.MapID, X: ref.X, Y: ref.Y})
			delete(s.resident, ref)
		case tileFailed:
			delete(s.resident, ref)
		}
	}
}

func (s *Streamer) startLoad(ref TileRef) bool {
	return s.workers.TryGo(func() error {
		start := s.now()
		err := s.loader.LoadTile(s.basePath, ref.MapID, ref.X, ref.Y)
		res := loadResult{ref: ref, err: err, took: s.now().Sub(start)}
		s.mu.Lock()
		s.done = append(s.done, res)
		s.mu.Unlock()
		return nil
	})
}

// Collect applies finished loads and emits their events.
func (s *Streamer) Collect() {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()

	now := s.now()
	for _, res := range done {
		rt := s.resident[res.ref]
		if rt == nil {
			// Resident entries are only deleted once loaded or failed.
			s.log.DPanic("load finished for untracked tile", zap.Any("tile", res.ref))
			continue
		}
		ref := res.ref
		switch {
		case res.err == nil:
			rt.state = tileLoaded
			s.loads++
			event.Emit(s.bus, event.TileLoaded{MapID: ref.MapID, X: ref.X, Y: ref.Y, Took: res.took})
		case errors.Is(res.err, vmap.ErrLoadingDisabled):
			delete(s.resident, ref)
		default:
			rt.state = tileFailed
			rt.retryAt = now.Add(s.cfg.RetryDelay)
			s.failures++
			event.Emit(s.bus, event.TileLoadFailed{MapID: ref.MapID, X: ref.X, Y: ref.Y, Err: res.err})
		}
	}
}

// FlushRemoved recycles the ids of removed observers.
func (s *Streamer) FlushRemoved() int {
	return s.observers.flush()
}

// Settle waits for in-flight loads and applies their results.
func (s *Streamer) Settle() {
	_ = s.workers.Wait()
	s.Collect()
}

// Close waits for in-flight loads and unloads every tile the streamer loaded.
func (s *Streamer) Close() {
	s.Settle()
	for ref, rt := range s.resident {
		if rt.state == tileLoaded {
			s.loader.UnloadMapTile(ref.MapID, ref.X, ref.Y)
			s.unloads++
		}
		delete(s.resident, ref)
	}
}

// IsLoaded reports whether the streamer holds the tile loaded.
func (s *Streamer) IsLoaded(mapID uint32, x, y int) bool {
	rt := s.resident[TileRef{mapID, x, y}]
	return rt != nil && rt.state == tileLoaded
}

// Resident lists the loaded tiles in map, x, y order.
func (s *Streamer) Resident() []TileRef {
	var out []TileRef
	for ref, rt := range s.resident {
		if rt.state == tileLoaded {
			out = append(out, ref)
		}
	}
	sortRefs(out)
	return out
}

func (s *Streamer) Stats() Stats {
	st := Stats{
		Observers: s.observers.len(),
		Loads:     s.loads,
		Unloads:   s.unloads,
		Failures:  s.failures,
	}
	for _, rt := range s.resident {
		switch rt.state {
		case tileLoaded:
			st.Loaded++
		case tileLoading:
			st.Loading++
		case tileFailed:
			st.Failed++
		}
	}
	return st
}

func sortRefs(refs []TileRef) {
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.MapID != b.MapID {
			return a.MapID < b.MapID
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
}
