// Package cache shares parsed models between every tile that places them.
// A model file is parsed at most once while any tile references it and is
// evicted exactly when its last reference is released.
package cache

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/l1jgo/vmap/internal/vmap/format"
	"github.com/l1jgo/vmap/internal/vmap/model"
)

// ErrNotLoaded is returned when releasing a model that is not cached. It
// always points at a lifecycle bug in the caller.
var ErrNotLoaded = errors.New("model not loaded")

// Handle is a counted reference to a cached model. Tiles hold one
// reference per placement for their lifetime; queries take a short extra
// reference with Retain while they read the mesh.
type Handle struct {
	name  string
	model *model.Model
	refs  atomic.Int32
	cache *Cache
}

func (h *Handle) Name() string        { return h.name }
func (h *Handle) Model() *model.Model { return h.model }

// Refs returns the current reference count.
func (h *Handle) Refs() int {
	return int(h.refs.Load())
}

// Retain adds a reference. It fails once the count has reached zero: the
// handle is being evicted and must not be used.
func (h *Handle) Retain() bool {
	for {
		n := h.refs.Load()
		if n <= 0 {
			return false
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops one reference taken by Acquire or Retain.
func (h *Handle) Release() {
	h.cache.drop(h)
}

// Stats is a point-in-time view of the cache. Loads counts entries
// created, Evictions entries destroyed.
type Stats struct {
	Loaded    int
	Loads     uint64
	Evictions uint64
}

// Cache maps model names to shared handles.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Handle
	loading singleflight.Group
	log     *zap.Logger

	loads     atomic.Uint64
	evictions atomic.Uint64
}

func New(log *zap.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*Handle),
		log:     log,
	}
}

func (c *Cache) lookup(name string) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h := c.entries[name]; h != nil && h.Retain() {
		return h
	}
	return nil
}

// Acquire returns a referenced handle for name, loading basePath/name.vmo
// on first use. flags only apply when the model is created.
func (c *Cache) Acquire(basePath, name string, flags uint32) (*Handle, error) {
	if h := c.lookup(name); h != nil {
		return h, nil
	}
	v, err, _ := c.loading.Do(name, func() (any, error) {
		path := filepath.Join(basePath, format.ModelFileName(name))
		m, err := model.Load(path, name, flags)
		if err != nil {
			return nil, err
		}
		c.log.Debug("loaded model", zap.String("file", path), zap.Int("triangles", m.NumTriangles()))
		return m, nil
	})
	if err != nil {
		c.log.Error("could not load model", zap.String("base", basePath), zap.String("model", name), zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another caller of the same load may have published first.
	if h := c.entries[name]; h != nil && h.Retain() {
		return h, nil
	}
	h := &Handle{name: name, model: v.(*model.Model), cache: c}
	h.refs.Store(1)
	c.entries[name] = h
	c.loads.Add(1)
	return h, nil
}

// Release drops one reference to name.
func (c *Cache) Release(name string) error {
	c.mu.Lock()
	h := c.entries[name]
	c.mu.Unlock()
	if h == nil {
		c.log.DPanic("release of model that is not loaded", zap.String("model", name))
		return ErrNotLoaded
	}
	h.Release()
	return nil
}

func (c *Cache) drop(h *Handle) {
	n := h.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		c.log.DPanic("model reference count underflow", zap.String("model", h.name), zap.Int32("refs", n))
		return
	}
	c.mu.Lock()
	if c.entries[h.name] == h {
		delete(c.entries, h.name)
	}
	c.mu.Unlock()
	c.evictions.Add(1)
	c.log.Debug("unloaded model", zap.String("model", h.name))
}

// RefCount returns the live reference count for name.
func (c *Cache) RefCount(name string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.entries[name]
	if h == nil {
		return 0, false
	}
	return h.Refs(), true
}

// Len returns the number of cached models.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	return Stats{
		Loaded:    c.Len(),
		Loads:     c.loads.Load(),
		Evictions: c.evictions.Load(),
	}
}
