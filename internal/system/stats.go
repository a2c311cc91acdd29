package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/vmap/internal/core/system"
	"github.com/l1jgo/vmap/internal/stream"
	"github.com/l1jgo/vmap/internal/vmap"
)

// StatsSystem logs manager, cache and streamer counters every interval
// ticks. Phase 3 (PostUpdate).
type StatsSystem struct {
	mgr      *vmap.Manager
	streamer *stream.Streamer
	log      *zap.Logger
	elapsed  int
	interval int
	last     stream.Stats
}

func NewStatsSystem(mgr *vmap.Manager, streamer *stream.Streamer, log *zap.Logger, intervalTicks int) *StatsSystem {
	return &StatsSystem{
		mgr:      mgr,
		streamer: streamer,
		log:      log,
		interval: max(intervalTicks, 1),
	}
}

func (s *StatsSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *StatsSystem) Update(_ time.Duration) {
	s.elapsed++
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0
	s.report()
}

func (s *StatsSystem) report() {
	st := s.streamer.Stats()
	if st == s.last {
		return // quiet while idle
	}
	s.last = st
	cs := s.mgr.Cache().Stats()
	s.log.Info("vmap stats",
		zap.Int("maps", s.mgr.NumLoadedMaps()),
		zap.Int("observers", st.Observers),
		zap.Int("tiles", st.Loaded),
		zap.Int("loading", st.Loading),
		zap.Int("failed", st.Failed),
		zap.Int("models", cs.Loaded),
		zap.Uint64("model_loads", cs.Loads),
		zap.Uint64("model_evictions", cs.Evictions),
	)
}
