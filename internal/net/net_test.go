package net

import (
	"bytes"
	"encoding/binary"
	gonet "net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/net/packet"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte{packet.C_STATS, 1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if n := binary.LittleEndian.Uint16(buf.Bytes()); n != 7 {
		t.Fatalf("length header = %d, want 7", n)
	}
	payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, []byte{packet.C_STATS, 1, 0, 0, 0}) {
		t.Fatalf("payload = % x", payload)
	}
}

func TestFrameRejectsBadLengths(t *testing.T) {
	if err := WriteFrame(&bytes.Buffer{}, nil); err == nil {
		t.Fatal("empty payload written")
	}
	if err := WriteFrame(&bytes.Buffer{}, make([]byte, MaxPayload+1)); err == nil {
		t.Fatal("oversized payload written")
	}
	for _, header := range [][]byte{{0, 0}, {2, 0}, {1, 0}} {
		if _, err := ReadFrame(bytes.NewReader(header)); err == nil {
			t.Fatalf("header % x accepted", header)
		}
	}
	if _, err := ReadFrame(bytes.NewReader([]byte{9, 0, 1})); err == nil {
		t.Fatal("short payload accepted")
	}
}

func waitClosed(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !s.IsClosed() {
		if time.Now().After(deadline) {
			t.Fatal("session still open")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionQueuesAndFlushes(t *testing.T) {
	server, client := gonet.Pipe()
	defer client.Close()
	s := NewSession(server, 1, 4, 4, 0, zap.NewNop())
	s.Start()
	defer s.Close()

	if err := WriteFrame(client, []byte{packet.C_HELLO, 9}); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-s.InQueue:
		if !bytes.Equal(got, []byte{packet.C_HELLO, 9}) {
			t.Fatalf("queued = % x", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request not queued")
	}

	s.Send([]byte{packet.S_HELLO, 9})
	s.FlushOutput()
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := ReadFrame(client)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(reply, []byte{packet.S_HELLO, 9}) {
		t.Fatalf("reply = % x", reply)
	}
	if s.State() != packet.StateHandshake {
		t.Fatalf("state = %v", s.State())
	}
}

func TestSessionCloseAfterFlushDeliversReplies(t *testing.T) {
	server, client := gonet.Pipe()
	defer client.Close()
	s := NewSession(server, 1, 4, 4, 0, zap.NewNop())
	s.Start()

	s.Send([]byte{packet.S_ERROR, 1})
	s.CloseAfterFlush()
	s.Send([]byte{packet.S_STATS, 2})
	if s.IsClosed() {
		t.Fatal("closed before the reply was written")
	}
	if s.State() != packet.StateDisconnecting {
		t.Fatalf("state = %v", s.State())
	}
	s.FlushOutput()

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := ReadFrame(client)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(reply, []byte{packet.S_ERROR, 1}) {
		t.Fatalf("reply = % x", reply)
	}
	if _, err := ReadFrame(client); err == nil {
		t.Fatal("reply sent after CloseAfterFlush")
	}
	waitClosed(t, s)
}

func TestSessionRateLimit(t *testing.T) {
	server, client := gonet.Pipe()
	defer client.Close()
	s := NewSession(server, 1, 8, 4, 2, zap.NewNop())
	s.Start()

	go func() {
		for i := 0; i < 3; i++ {
			if WriteFrame(client, []byte{packet.C_STATS}) != nil {
				return
			}
		}
	}()
	waitClosed(t, s)
	if s.State() != packet.StateDisconnecting {
		t.Fatalf("state = %v", s.State())
	}
}

func TestSessionOutputBackpressure(t *testing.T) {
	server, client := gonet.Pipe()
	defer client.Close()
	// Nothing reads the client end, so the writer stalls on the first reply.
	s := NewSession(server, 1, 1, 1, 0, zap.NewNop())
	s.Start()

	for i := 0; i < 4; i++ {
		s.Send([]byte{packet.S_STATS, byte(i)})
	}
	s.FlushOutput()
	waitClosed(t, s)
	s.Send([]byte{packet.S_STATS})
	if len(s.outBuf) != 0 {
		t.Fatal("send buffered on a closed session")
	}
}

func TestSessionStore(t *testing.T) {
	st := NewSessionStore()
	a, _ := gonet.Pipe()
	b, _ := gonet.Pipe()
	sa := NewSession(a, 1, 1, 1, 0, zap.NewNop())
	sb := NewSession(b, 2, 1, 1, 0, zap.NewNop())
	st.Add(sa)
	st.Add(sb)
	if st.Len() != 2 || st.Get(2) != sb {
		t.Fatalf("store = %d", st.Len())
	}
	st.Remove(1)
	if st.Get(1) != nil || st.Len() != 1 {
		t.Fatal("session not removed")
	}
	st.CloseAll()
	if !sb.IsClosed() {
		t.Fatal("CloseAll left a session open")
	}
}
