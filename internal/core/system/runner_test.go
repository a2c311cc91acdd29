package system

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recorder struct {
	phase Phase
	name  string
	log   *[]string
}

func (r recorder) Phase() Phase { return r.phase }

func (r recorder) Update(time.Duration) { *r.log = append(*r.log, r.name) }

func TestTickRunsInPhaseOrder(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recorder{PhaseCleanup, "cleanup", &log})
	r.Register(recorder{PhaseUpdate, "plan", &log})
	r.Register(recorder{PhaseInput, "collect", &log})
	r.Register(recorder{PhaseUpdate, "plan2", &log})

	r.Tick(time.Millisecond)
	want := []string{"collect", "plan", "plan2", "cleanup"}
	if len(log) != len(want) {
		t.Fatalf("got %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("got %v, want %v", log, want)
		}
	}
	if r.Ticks() != 1 {
		t.Fatalf("ticks = %d", r.Ticks())
	}
}

func TestRunStopsWithContext(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recorder{PhaseUpdate, "tick", &log})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx, time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v", err)
	}
	if len(log) == 0 || uint64(len(log)) != r.Ticks() {
		t.Fatalf("expected ticks, got %d log entries and %d ticks", len(log), r.Ticks())
	}
}
