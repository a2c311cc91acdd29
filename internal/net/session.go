package net

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/net/packet"
)

// writeTimeout bounds a single frame write to a slow client.
const writeTimeout = 10 * time.Second

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; handlers run only on the tick loop.
type Session struct {
	ID   uint64
	conn net.Conn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // tick loop reads requests from here
	OutQueue chan []byte // writer goroutine reads from here

	IP         string
	ClientName string // from C_HELLO

	outBuf [][]byte // buffered replies, flushed by OutputSystem (tick loop only)

	closeCh     chan struct{}
	closeOnce   sync.Once
	closed      atomic.Bool
	closing     atomic.Bool // CloseAfterFlush called
	closeQueued bool        // end marker handed to the writer (tick loop only)

	// Per-second packet rate limiter (readLoop goroutine only, no lock needed)
	pktPerSec  int   // max packets/sec (0 = unlimited)
	pktCount   int   // packets received this second
	pktResetAt int64 // unix second of last counter reset

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, inSize, outSize, pktPerSec int, log *zap.Logger) *Session {
	s := &Session{
		ID:        id,
		conn:      conn,
		InQueue:   make(chan []byte, inSize),
		OutQueue:  make(chan []byte, outSize),
		IP:        conn.RemoteAddr().String(),
		closeCh:   make(chan struct{}),
		pktPerSec: pktPerSec,
		log:       log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

// SessionID returns ID; it lets handlers address sessions through an
// interface.
func (s *Session) SessionID() uint64 { return s.ID }

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

func (s *Session) SetClientName(name string) {
	s.ClientName = name
}

// Start launches the reader and writer goroutines. The client speaks first.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a reply. It is not written to TCP until FlushOutput is called.
// Called only from the tick loop goroutine; no lock needed on outBuf.
func (s *Session) Send(data []byte) {
	if s.closed.Load() || s.closing.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow client")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]

	if s.closing.Load() && !s.closeQueued {
		// nil marks the end of output; the writer closes once it gets there.
		select {
		case s.OutQueue <- nil:
			s.closeQueued = true
		default:
			s.Close()
		}
	}
}

// CloseAfterFlush refuses further replies and closes the session once the
// writer has sent everything buffered so far.
func (s *Session) CloseAfterFlush() {
	if s.closed.Load() {
		return
	}
	s.closing.Store(true)
	s.SetState(packet.StateDisconnecting)
}

// Close shuts down the session at once. Replies already handed to the writer
// may be lost; use CloseAfterFlush to deliver them first.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop runs in its own goroutine. It reads frames from the TCP connection
// and pushes them onto InQueue for the tick loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		payload, err := ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}

		// Per-second packet rate limiter
		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("packet rate exceeded, disconnecting", zap.Int("pps", s.pktCount))
				return
			}
		}

		// Block until InQueue has space or the session closes; a slow tick
		// only stalls this client.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine. It reads replies from OutQueue and
// writes them as frames to the TCP connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if data == nil {
				return
			}
			if !s.writeOnePacket(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

// writeOnePacket writes a single reply. It reports false on failure.
func (s *Session) writeOnePacket(data []byte) bool {
	if len(data) > 0 {
		s.log.Debug("TX",
			zap.String("op", fmt.Sprintf("0x%02X", data[0])),
			zap.Int("len", len(data)),
		)
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := WriteFrame(s.conn, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
