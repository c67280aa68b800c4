// Package ringchan provides a bounded channel with overwrite-oldest semantics.
package ringchan

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by ForceSend after Close
var ErrClosed = errors.New("ringchan: send on closed channel")

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: when the buffer is full the oldest element is
// discarded and counted as overwritten. BLE notification callbacks push into
// it from host-stack goroutines; a single consumer drains it.
//
//	rc := ringchan.New[[]byte](256)
//	rc.ForceSend(payload)          // producer, never blocks
//	for p := range rc.C() { ... }  // consumer
type RingChannel[T any] struct {
	ch        chan T
	metrics   Metrics
	closeOnce sync.Once
	closed    atomic.Bool
	sendMu    sync.Mutex
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// ForceSend inserts v immediately, discarding the oldest element if needed.
// overwritten reports whether an element was discarded to make room.
// Sends after Close are discarded and return ErrClosed.
func (rc *RingChannel[T]) ForceSend(v T) (overwritten bool, err error) {
	rc.sendMu.Lock()
	defer rc.sendMu.Unlock()
	if rc.closed.Load() {
		rc.metrics.addError()
		return false, ErrClosed
	}

	for {
		select {
		case rc.ch <- v:
			rc.metrics.addWritten(1)
			return overwritten, nil
		default:
		}
		select {
		case <-rc.ch:
			rc.metrics.addOverwritten(1)
			overwritten = true
		default:
		}
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. It is safe to call more than once,
// and later sends are dropped instead of panicking.
func (rc *RingChannel[T]) Close() {
	rc.closeOnce.Do(func() {
		rc.sendMu.Lock()
		defer rc.sendMu.Unlock()
		rc.closed.Store(true)
		close(rc.ch)
	})
}

// GetMetrics returns a snapshot of current metrics values.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
		Errors:      atomic.LoadInt64(&rc.metrics.Errors),
	}
}

// Metrics provides lock-free counters for RingChannel.
// Errors counts sends attempted after Close.
type Metrics struct {
	Written     int64
	Overwritten int64
	Errors      int64
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}

func (m *Metrics) addError() {
	atomic.AddInt64(&m.Errors, 1)
}
