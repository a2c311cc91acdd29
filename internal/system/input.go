package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/vmap/internal/core/system"
	"github.com/l1jgo/vmap/internal/net"
	"github.com/l1jgo/vmap/internal/net/packet"
)

// InputSystem drains request queues from all sessions and dispatches them
// through the packet registry. Phase 0 (Input).
type InputSystem struct {
	netServer    *net.Server
	registry     *packet.Registry
	store        *net.SessionStore
	maxPerTick   int
	onDisconnect func(sessionID uint64)
	log          *zap.Logger
}

func NewInputSystem(
	netServer *net.Server,
	registry *packet.Registry,
	store *net.SessionStore,
	maxPerTick int,
	onDisconnect func(sessionID uint64),
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		netServer:    netServer,
		registry:     registry,
		store:        store,
		maxPerTick:   max(maxPerTick, 1),
		onDisconnect: onDisconnect,
		log:          log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions
	for {
		select {
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	// Drain requests from each session (up to maxPerTick per session)
	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			// A closed session gets no more replies; drop what it left.
			s.drain(sess)
			s.disconnect(sess)
			s.netServer.NotifyDead(id)
			s.store.Remove(id)
			continue
		}

		s.dispatch(sess)
	}

	// Flush early: query replies produced here can be written while the
	// rest of the tick runs. OutputSystem flushes whatever later phases add.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

func (s *InputSystem) dispatch(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				s.log.Debug("dispatch failed",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}

func (s *InputSystem) drain(sess *net.Session) {
	for {
		select {
		case <-sess.InQueue:
		default:
			return
		}
	}
}

func (s *InputSystem) disconnect(sess *net.Session) {
	s.log.Info("client disconnected",
		zap.Uint64("session", sess.ID),
		zap.String("ip", sess.IP),
		zap.String("client", sess.ClientName),
	)
	if s.onDisconnect != nil {
		s.onDisconnect(sess.ID)
	}
}

// SessionCount returns the current number of active sessions.
func (s *InputSystem) SessionCount() int {
	return s.store.Len()
}
