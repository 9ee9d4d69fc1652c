package transport

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// pipePort joins an io.Pipe for reads with a buffer for writes
type pipePort struct {
	r *io.PipeReader

	mu      sync.Mutex
	written bytes.Buffer
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *pipePort) Close() error { return p.r.Close() }

func (p *pipePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written.Bytes()...)
}

func waitForLen(t *testing.T, q *ByteQueue, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for q.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("queue has %d bytes, want %d", q.Len(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSerialReadLoop(t *testing.T) {
	r, w := io.Pipe()
	port := &pipePort{r: r}
	s := newSerial("test", port, slog.Default())

	go func() {
		w.Write([]byte{0x45, 0x01})
		w.Write([]byte{0x02})
	}()

	waitForLen(t, s.Received(), 3)
	if got := s.Received().Drain(); !bytes.Equal(got, []byte{0x45, 0x01, 0x02}) {
		t.Errorf("received % X", got)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestSerialWrite(t *testing.T) {
	r, _ := io.Pipe()
	port := &pipePort{r: r}
	s := newSerial("test", port, slog.Default())

	frame := []byte{0x45, 0x01, 0x00, 0x00, 0x5A}
	if err := s.Write(frame); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := port.Written(); !bytes.Equal(got, frame) {
		t.Errorf("written % X, want % X", got, frame)
	}

	s.Close()
	if err := s.Write(frame); err == nil {
		t.Error("Write() after Close: expected error")
	}
}
