package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain query packets, collect finished tile loads
	PhasePreUpdate               // 1: deliver last tick's events
	PhaseUpdate                  // 2: plan tile loads and unloads
	PhasePostUpdate              // 3: statistics
	PhaseOutput                  // 4: flush replies to sessions
	PhasePersist                 // 5: flush failure log
	PhaseCleanup                 // 6: destroy removed observers
)

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
