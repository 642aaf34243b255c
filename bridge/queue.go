package bridge

import (
	"sync"
	"time"
)

// packetQueue is the unbounded multi-producer single-consumer FIFO of
// fixed-size downlink packets. popWait gives the timed dequeue the
// paced reader needs; close wakes a blocked waiter.
type packetQueue struct {
	mu      sync.Mutex
	packets [][]byte
	closed  bool
	notify  chan struct{}
}

func newPacketQueue() *packetQueue {
	return &packetQueue{notify: make(chan struct{}, 1)}
}

// push appends a packet and returns the new queue length. Packets
// pushed after close are discarded.
func (q *packetQueue) push(p []byte) int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.packets = append(q.packets, p)
	n := len(q.packets)
	q.mu.Unlock()
	q.signal()
	return n
}

func (q *packetQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.packets) == 0 {
		return nil, false
	}
	p := q.packets[0]
	q.packets[0] = nil
	q.packets = q.packets[1:]
	return p, true
}

// popWait dequeues the head packet, waiting up to d for one to arrive.
// Returns false on timeout or close.
func (q *packetQueue) popWait(d time.Duration) ([]byte, bool) {
	if p, ok := q.pop(); ok {
		return p, true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if p, ok := q.pop(); ok {
				return p, true
			}
			if q.isClosed() {
				return nil, false
			}
		case <-timer.C:
			return nil, false
		}
	}
}

func (q *packetQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}

// clear drops all queued packets and returns how many were dropped.
func (q *packetQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.packets)
	q.packets = nil
	return n
}

func (q *packetQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.packets = nil
	q.mu.Unlock()
	q.signal()
}

func (q *packetQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *packetQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
