package transport

import (
	"errors"
	"sync"
)

// ErrClosed is returned by writes to a closed loopback
var ErrClosed = errors.New("link closed")

// Loopback is an in-memory link. It records every frame and, when echo is
// on, feeds it back into the receive queue.
type Loopback struct {
	mu     sync.Mutex
	frames [][]byte
	echo   bool
	fail   error
	closed bool
	queue  *ByteQueue
}

// NewLoopback creates an open loopback link
func NewLoopback(echo bool) *Loopback {
	return &Loopback{echo: echo, queue: NewByteQueue()}
}

// Write records a copy of frame
func (l *Loopback) Write(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.fail != nil {
		return l.fail
	}
	l.frames = append(l.frames, append([]byte(nil), frame...))
	if l.echo {
		l.queue.Push(frame...)
	}
	return nil
}

// FailWith makes subsequent writes return err; nil restores normal operation
func (l *Loopback) FailWith(err error) {
	l.mu.Lock()
	l.fail = err
	l.mu.Unlock()
}

// Frames returns the frames written so far
func (l *Loopback) Frames() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.frames))
	copy(out, l.frames)
	return out
}

// ClearFrames forgets recorded frames
func (l *Loopback) ClearFrames() {
	l.mu.Lock()
	l.frames = nil
	l.mu.Unlock()
}

// Info describes the link
func (l *Loopback) Info() string {
	if l.echo {
		return "Loopback (echo on)"
	}
	return "Loopback (echo off)"
}

// Received returns the echo queue
func (l *Loopback) Received() *ByteQueue {
	return l.queue
}

// Close marks the link closed
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}
