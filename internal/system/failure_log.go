package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/core/event"
	coresys "github.com/l1jgo/vmap/internal/core/system"
	"github.com/l1jgo/vmap/internal/persist"
)

// FailureWriter stores tile load failures; *persist.FailureRepo implements it.
type FailureWriter interface {
	WriteBatch(ctx context.Context, failures []persist.TileFailure) error
}

// maxPendingFailures caps the buffer while the database is unreachable.
const maxPendingFailures = 1024

// FailureLogSystem batches TileLoadFailed events into the failure log every
// interval ticks. Phase 5 (Persist).
type FailureLogSystem struct {
	repo      FailureWriter
	log       *zap.Logger
	pending   []persist.TileFailure
	dropped   int
	tickCount int
	interval  int // flush every N ticks
}

func NewFailureLogSystem(bus *event.Bus, repo FailureWriter, log *zap.Logger, intervalTicks int) *FailureLogSystem {
	s := &FailureLogSystem{
		repo:     repo,
		log:      log,
		interval: max(intervalTicks, 1),
	}
	event.Subscribe(bus, s.onFailed)
	return s
}

func (s *FailureLogSystem) onFailed(e event.TileLoadFailed) {
	if len(s.pending) >= maxPendingFailures {
		s.dropped++
		return
	}
	reason := "unknown"
	if e.Err != nil {
		reason = e.Err.Error()
	}
	s.pending = append(s.pending, persist.TileFailure{MapID: e.MapID, TileX: e.X, TileY: e.Y, Reason: reason})
}

func (s *FailureLogSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *FailureLogSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Flush()
}

// Flush writes the buffered failures now. Called on shutdown so nothing is
// lost between intervals. Failed batches stay buffered for the next flush.
func (s *FailureLogSystem) Flush() {
	if s.dropped > 0 {
		s.log.Warn("failure log buffer full, failures dropped", zap.Int("dropped", s.dropped))
		s.dropped = 0
	}
	if len(s.pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.WriteBatch(ctx, s.pending); err != nil {
		s.log.Error("failure log write failed", zap.Int("count", len(s.pending)), zap.Error(err))
		return
	}
	s.log.Info("failure log written", zap.Int("count", len(s.pending)))
	s.pending = s.pending[:0]
}

// Pending counts buffered failures.
func (s *FailureLogSystem) Pending() int { return len(s.pending) }
