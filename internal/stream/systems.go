package stream

import (
	"time"

	"github.com/l1jgo/vmap/internal/core/system"
)

// CollectSystem applies finished tile loads at the start of each tick.
type CollectSystem struct {
	s *Streamer
}

func NewCollectSystem(s *Streamer) *CollectSystem { return &CollectSystem{s: s} }

func (c *CollectSystem) Phase() system.Phase { return system.PhaseInput }

func (c *CollectSystem) Update(_ time.Duration) { c.s.Collect() }

// PlanSystem starts and retires tile loads from observer positions.
type PlanSystem struct {
	s *Streamer
}

func NewPlanSystem(s *Streamer) *PlanSystem { return &PlanSystem{s: s} }

func (p *PlanSystem) Phase() system.Phase { return system.PhaseUpdate }

func (p *PlanSystem) Update(_ time.Duration) { p.s.Plan() }

// CleanupSystem recycles removed observer ids at the end of each tick.
type CleanupSystem struct {
	s *Streamer
}

func NewCleanupSystem(s *Streamer) *CleanupSystem { return &CleanupSystem{s: s} }

func (c *CleanupSystem) Phase() system.Phase { return system.PhaseCleanup }

func (c *CleanupSystem) Update(_ time.Duration) { c.s.FlushRemoved() }

// Register adds the streamer's systems to r.
func Register(r *system.Runner, s *Streamer) {
	r.Register(NewCollectSystem(s))
	r.Register(NewPlanSystem(s))
	r.Register(NewCleanupSystem(s))
}
