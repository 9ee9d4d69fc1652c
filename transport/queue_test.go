package transport

import (
	"reflect"
	"sync"
	"testing"
)

func TestByteQueueDrain(t *testing.T) {
	q := NewByteQueue()
	if got := q.Drain(); got != nil {
		t.Fatalf("Drain() on empty queue = %v, want nil", got)
	}

	q.Push(0x01, 0x02)
	q.Push()
	q.Push(0x03)
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}

	want := []byte{0x01, 0x02, 0x03}
	if got := q.Drain(); !reflect.DeepEqual(got, want) {
		t.Errorf("Drain() = % X, want % X", got, want)
	}
	if got := q.Drain(); got != nil {
		t.Errorf("second Drain() = % X, want nil", got)
	}
}

func TestByteQueueProducerOrder(t *testing.T) {
	const producers = 4
	const perProducer = 500

	q := NewByteQueue()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				// high nibble tags the producer, low nibble is a rolling sequence
				q.Push(id<<4 | byte(i%16))
			}
		}(byte(p))
	}

	var got []byte
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
loop:
	for {
		select {
		case <-done:
			got = append(got, q.Drain()...)
			break loop
		default:
			got = append(got, q.Drain()...)
		}
	}

	if len(got) != producers*perProducer {
		t.Fatalf("drained %d bytes, want %d", len(got), producers*perProducer)
	}
	next := make([]int, producers)
	for _, b := range got {
		id := int(b >> 4)
		if want := byte(next[id] % 16); b&0x0F != want {
			t.Fatalf("producer %d: got sequence %d, want %d", id, b&0x0F, want)
		}
		next[id]++
	}
}
