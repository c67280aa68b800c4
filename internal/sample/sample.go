// Package sample holds the raw voltage samples carried by RX notifications:
// framing them out of payloads, buffering them up to a cap and decoding them.
package sample

import "sync"

// DefaultSize is the width in bytes of one sample on the wire
const DefaultSize = 3

// Sample is one raw chunk copied out of a notification payload
type Sample []byte

// Split cuts payload into consecutive size-byte samples.
// Payloads whose length is not a multiple of size are rejected whole and
// yield nil; an empty payload yields no samples. The returned samples do not
// alias payload.
func Split(payload []byte, size int) []Sample {
	if size <= 0 || len(payload) == 0 || len(payload)%size != 0 {
		return nil
	}

	backing := make([]byte, len(payload))
	copy(backing, payload)

	out := make([]Sample, 0, len(payload)/size)
	for off := 0; off < len(backing); off += size {
		out = append(out, Sample(backing[off:off+size:off+size]))
	}
	return out
}

// Buffer is an ordered, append-only sample store capped at a fixed length.
// It is safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	cap     int
	samples []Sample
	dropped int
}

// NewBuffer creates an empty buffer holding at most capacity samples
func NewBuffer(capacity int) *Buffer {
	return &Buffer{cap: capacity, samples: make([]Sample, 0, capacity)}
}

// Append adds samples in order while the buffer holds fewer than its cap.
// Samples arriving at a full buffer are discarded. Returns how many were kept.
func (b *Buffer) Append(samples ...Sample) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := 0
	for _, s := range samples {
		if len(b.samples) >= b.cap {
			b.dropped += len(samples) - kept
			break
		}
		b.samples = append(b.samples, s)
		kept++
	}
	return kept
}

// Len returns the number of buffered samples
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Cap returns the maximum number of samples the buffer holds
func (b *Buffer) Cap() int {
	return b.cap
}

// Dropped returns how many samples were discarded because the buffer was full
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Swap hands the buffered samples to the caller and leaves the buffer empty.
// Appends racing with Swap land either in the returned slice or in the new
// empty buffer, never in both.
func (b *Buffer) Swap() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.samples
	b.samples = make([]Sample, 0, b.cap)
	return out
}
