// Package acquisition turns a stream of RX notification payloads into one
// batch of samples: payloads are framed into samples and buffered until a
// poll tick observes the threshold, then the buffer is handed off once.
package acquisition

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/internal/sample"
)

// Defaults used when Options fields are zero
const (
	DefaultThreshold    = 1000
	DefaultCap          = 2000
	DefaultPollInterval = time.Second
)

// State is the acquisition lifecycle stage
type State int32

const (
	// Polling accepts payloads and checks the threshold on every tick
	Polling State = iota
	// Draining has swapped the buffer out and is handing samples to the caller
	Draining
	// Terminated ignores all further payloads
	Terminated
)

func (s State) String() string {
	switch s {
	case Polling:
		return "polling"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures an Acquirer
type Options struct {
	Threshold  int
	Cap        int
	SampleSize int
}

// TickCallback is invoked after every poll tick with the buffered sample count
type TickCallback func(buffered, threshold int)

// Acquirer owns the sample buffer for a single acquisition run
type Acquirer struct {
	opts   Options
	buf    *sample.Buffer
	state  atomic.Int32
	logger *logrus.Logger
	onTick TickCallback

	payloads  atomic.Int64
	malformed atomic.Int64
	ignored   atomic.Int64
}

// New validates opts and creates an Acquirer in the Polling state
func New(opts Options, logger *logrus.Logger) (*Acquirer, error) {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Cap == 0 {
		opts.Cap = DefaultCap
	}
	if opts.SampleSize == 0 {
		opts.SampleSize = sample.DefaultSize
	}
	if opts.SampleSize < 0 {
		return nil, fmt.Errorf("sample size must be positive, got %d", opts.SampleSize)
	}
	if opts.Threshold < 0 || opts.Cap < 0 {
		return nil, fmt.Errorf("threshold and cap must be positive, got %d and %d", opts.Threshold, opts.Cap)
	}
	if opts.Threshold > opts.Cap {
		return nil, fmt.Errorf("threshold %d exceeds sample cap %d", opts.Threshold, opts.Cap)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Acquirer{
		opts:   opts,
		buf:    sample.NewBuffer(opts.Cap),
		logger: logger,
	}, nil
}

// OnTick registers a callback invoked after each poll tick that did not trigger the drain
func (a *Acquirer) OnTick(cb TickCallback) {
	a.onTick = cb
}

// Options returns the effective options
func (a *Acquirer) Options() Options {
	return a.opts
}

// State reports the current lifecycle stage
func (a *Acquirer) State() State {
	return State(a.state.Load())
}

// Buffered returns the number of samples currently held
func (a *Acquirer) Buffered() int {
	return a.buf.Len()
}

// Stats returns counters accumulated over the run
func (a *Acquirer) Stats() Stats {
	return Stats{
		Payloads:  a.payloads.Load(),
		Malformed: a.malformed.Load(),
		Ignored:   a.ignored.Load(),
		Dropped:   int64(a.buf.Dropped()),
	}
}

// Stats counts what happened to incoming payloads
type Stats struct {
	Payloads  int64 // payloads received while polling
	Malformed int64 // payloads whose length is not a multiple of the sample size
	Ignored   int64 // payloads received after the drain
	Dropped   int64 // samples discarded at the cap
}

// Ingest frames one payload into samples and buffers them.
// It returns how many samples were kept. Payloads arriving after the drain
// and payloads of the wrong length are discarded.
func (a *Acquirer) Ingest(payload []byte) int {
	if a.State() != Polling {
		a.ignored.Add(1)
		return 0
	}
	a.payloads.Add(1)

	samples := sample.Split(payload, a.opts.SampleSize)
	if samples == nil {
		if len(payload) > 0 {
			a.malformed.Add(1)
			a.logger.WithFields(logrus.Fields{
				"length":      len(payload),
				"sample_size": a.opts.SampleSize,
			}).Debug("Discarding payload with partial sample")
		}
		return 0
	}
	return a.buf.Append(samples...)
}

// Run consumes payloads until a tick observes at least Threshold buffered
// samples, then swaps the buffer out and returns its contents. Payloads
// already queued when a tick fires are folded in before the check.
//
// Run returns the cancellation cause when ctx ends first; nothing is handed
// off in that case.
func (a *Acquirer) Run(ctx context.Context, payloads <-chan []byte, ticks <-chan time.Time) ([]sample.Sample, error) {
	defer a.state.Store(int32(Terminated))

	for {
		select {
		case <-ctx.Done():
			a.logger.WithField("buffered", a.buf.Len()).Debug("Acquisition cancelled")
			return nil, context.Cause(ctx)

		case p, ok := <-payloads:
			if !ok {
				payloads = nil
				continue
			}
			a.Ingest(p)

		case <-ticks:
			a.drainQueued(payloads)
			n := a.buf.Len()
			a.logger.WithFields(logrus.Fields{
				"buffered":  n,
				"threshold": a.opts.Threshold,
			}).Debug("Poll tick")

			if n >= a.opts.Threshold {
				a.state.Store(int32(Draining))
				samples := a.buf.Swap()
				a.logger.WithFields(logrus.Fields{
					"samples": len(samples),
					"dropped": a.buf.Dropped(),
				}).Info("Sample threshold reached")
				return samples, nil
			}
			if a.onTick != nil {
				a.onTick(n, a.opts.Threshold)
			}
		}
	}
}

// drainQueued ingests whatever is already waiting on payloads without blocking
func (a *Acquirer) drainQueued(payloads <-chan []byte) {
	if payloads == nil {
		return
	}
	for {
		select {
		case p, ok := <-payloads:
			if !ok {
				return
			}
			a.Ingest(p)
		default:
			return
		}
	}
}

// Decode converts the drained samples to integers. The first undecodable
// sample aborts the conversion.
func Decode(samples []sample.Sample) ([]int64, error) {
	return sample.DecodeAll(samples)
}
