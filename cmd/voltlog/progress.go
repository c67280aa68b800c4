package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a single-line progress message with elapsed time.
//
// Usage:
//
//	p := NewProgressPrinter(os.Stdout, "Collecting samples", "Waiting", "Done")
//	p.Start()
//	defer p.Stop()
//
// The caller must call Stop to terminate the internal goroutine. A
// ProgressPrinter is single-use: Start may be called at most once.
type ProgressPrinter struct {
	out        io.Writer
	prefix     string
	phase      atomic.Value        // current phase name
	stopPhases map[string]struct{} // phases that trigger Stop when set via Callback
	startTime  time.Time
	ticker     atomic.Pointer[time.Ticker]
	stopChan   chan struct{}
	done       chan struct{} // closed when goroutine exits
	started    atomic.Bool
	countUp    bool          // false for countdown
	duration   time.Duration // for countdown mode
}

// NewProgressPrinter creates a progress printer that counts up (shows elapsed time).
func NewProgressPrinter(out io.Writer, prefix string, phase string, stopPhases ...string) *ProgressPrinter {
	p := newProgressPrinter(out, prefix, phase, stopPhases)
	p.countUp = true
	return p
}

// NewCountdownProgressPrinter creates a progress printer that counts down from duration.
func NewCountdownProgressPrinter(out io.Writer, prefix string, phase string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	p := newProgressPrinter(out, prefix, phase, stopPhases)
	p.duration = duration
	return p
}

func newProgressPrinter(out io.Writer, prefix, phase string, stopPhases []string) *ProgressPrinter {
	if out == nil {
		out = io.Discard
	}
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &ProgressPrinter{
		out:        out,
		prefix:     prefix,
		stopPhases: stopSet,
	}
	p.phase.Store(phase)
	return p
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, p.phase.Load().(string))
	go p.loop(ticker)
}

func (p *ProgressPrinter) loop(ticker *time.Ticker) {
	defer close(p.done)

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			phase := p.phase.Load().(string)
			if _, stop := p.stopPhases[phase]; stop {
				return
			}
			p.printProgress(phase, p.seconds(time.Since(p.startTime)))
		}
	}
}

// seconds converts elapsed time to the number shown next to the phase
func (p *ProgressPrinter) seconds(elapsed time.Duration) int {
	if p.countUp {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// round to the nearest second
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) printProgress(phase string, seconds int) {
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// Callback returns a phase setter. Setting a stop phase calls Stop.
// Safe to call from multiple goroutines.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// Stop stops the progress display and clears the line.
// Safe to call multiple times; only the first call has an effect.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Fprint(p.out, clearLineSequence)
}

// lazyProgress starts a ProgressPrinter on the first phase that is not
// ignored, so nothing is drawn while other output is being printed.
type lazyProgress struct {
	mu       sync.Mutex
	out      io.Writer
	prefix   string
	ignore   map[string]struct{}
	stops    []string
	printer  *ProgressPrinter
	disabled bool
}

func newLazyProgress(out io.Writer, enabled bool, prefix string, ignore []string, stops ...string) *lazyProgress {
	set := make(map[string]struct{}, len(ignore))
	for _, p := range ignore {
		set[p] = struct{}{}
	}
	return &lazyProgress{out: out, prefix: prefix, ignore: set, stops: stops, disabled: !enabled}
}

func (l *lazyProgress) Callback(phase string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disabled {
		return
	}
	if _, skip := l.ignore[phase]; skip {
		return
	}
	if l.printer == nil {
		for _, s := range l.stops {
			if s == phase {
				return
			}
		}
		l.printer = NewProgressPrinter(l.out, l.prefix, phase, l.stops...)
		l.printer.Start()
		return
	}
	l.printer.Callback()(phase)
}

func (l *lazyProgress) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.printer != nil {
		l.printer.Stop()
	}
}
