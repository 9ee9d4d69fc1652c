package transport

import "sync"

// ByteQueue is an unbounded FIFO of received bytes. Any number of goroutines
// may Push; one consumer calls Drain. Push never blocks on the consumer.
type ByteQueue struct {
	mu  sync.Mutex
	buf []byte
}

// NewByteQueue returns an empty queue
func NewByteQueue() *ByteQueue {
	return &ByteQueue{}
}

// Push appends bytes in order
func (q *ByteQueue) Push(data ...byte) {
	if len(data) == 0 {
		return
	}
	q.mu.Lock()
	q.buf = append(q.buf, data...)
	q.mu.Unlock()
}

// Drain removes and returns everything queued so far, or nil if empty
func (q *ByteQueue) Drain() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	return out
}

// Len reports the number of queued bytes
func (q *ByteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
