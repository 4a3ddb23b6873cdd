package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultReapInterval is how often the reaper sweeps.
const DefaultReapInterval = 5 * time.Minute

// Sweeper removes expired entries and returns how many it removed.
type Sweeper interface {
	Sweep() int
}

// SweeperFunc adapts a function to Sweeper.
type SweeperFunc func() int

// Sweep calls f.
func (f SweeperFunc) Sweep() int { return f() }

// SweepReport is the outcome of one pass over all sweepers.
type SweepReport struct {
	Removed map[string]int `json:"removed"`
	Failed  []string       `json:"failed,omitempty"`
	At      time.Time      `json:"at"`
}

type namedSweeper struct {
	name string
	s    Sweeper
}

// Reaper periodically sweeps the registered stores. A panicking sweeper is
// logged and skipped; it neither stops the other sweepers nor later ticks.
type Reaper struct {
	sweepers []namedSweeper
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	started  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewReaper creates a reaper. A non-positive interval uses
// DefaultReapInterval.
func NewReaper(interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Register adds a sweeper. Sweepers run in registration order. Register must
// be called before Start.
func (r *Reaper) Register(name string, s Sweeper) *Reaper {
	r.sweepers = append(r.sweepers, namedSweeper{name: name, s: s})
	return r
}

// Names returns the registered sweeper names in sweep order.
func (r *Reaper) Names() []string {
	names := make([]string, len(r.sweepers))
	for i, ns := range r.sweepers {
		names[i] = ns.name
	}
	return names
}

// Interval returns the sweep interval.
func (r *Reaper) Interval() time.Duration {
	return r.interval
}

// Start launches the background goroutine. It stops when ctx is cancelled
// or Stop is called. Calling Start more than once has no effect.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.SweepOnce()
			}
		}
	}()
}

// Stop stops the background goroutine and waits for it to exit.
// Safe to call multiple times, and before Start.
func (r *Reaper) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// SweepOnce runs every sweeper once, in order.
func (r *Reaper) SweepOnce() SweepReport {
	report := SweepReport{
		Removed: make(map[string]int, len(r.sweepers)),
		At:      r.now().UTC(),
	}
	for _, ns := range r.sweepers {
		n, err := runSweep(ns.s)
		if err != nil {
			r.logger.Error("sweep failed", "store", ns.name, "error", err)
			report.Failed = append(report.Failed, ns.name)
			continue
		}
		report.Removed[ns.name] = n
		if n > 0 {
			r.logger.Debug("swept expired entries", "store", ns.name, "count", n)
		}
	}
	return report
}

func runSweep(s Sweeper) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return s.Sweep(), nil
}
