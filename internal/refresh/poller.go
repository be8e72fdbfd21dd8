// Package refresh runs a task periodically on behalf of long-lived views such as the HTTP
// server's queue-depth gauges or the CLI's watch mode.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mailflowAdmin/internal/observability/logging"
	"mailflowAdmin/internal/observability/metrics"
)

// Task is one refresh. It must honour ctx.
type Task func(ctx context.Context) error

// Poller runs a Task on a fixed interval and on demand. At most one run is in flight; ticks
// and triggers that arrive during a run are coalesced into a single follow-up run.
type Poller struct {
	// name identifies the poller in logs and metrics.
	name string

	// interval is the time between scheduled runs.
	interval time.Duration

	// task is the refresh to run.
	task Task

	// runs counts completed runs.
	runs atomic.Int64

	// trigger requests an immediate run; its single slot coalesces requests.
	trigger chan struct{}

	// shutdown is closed by Stop.
	shutdown chan struct{}

	// done is closed when the run loop has exited.
	done chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool

	logger logging.Logger
}

// NewPoller creates a Poller. The interval must be positive; callers treat a zero interval as
// "refresh disabled" and do not create a poller at all.
func NewPoller(name string, interval time.Duration, task Task) (*Poller, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("refresh %s: interval must be positive, got %s", name, interval)
	}
	if task == nil {
		return nil, fmt.Errorf("refresh %s: task is required", name)
	}
	return &Poller{
		name:     name,
		interval: interval,
		task:     task,
		trigger:  make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logging.WithField("component", "refresh").WithField("poller", name),
	}, nil
}

// Start runs the task once immediately and then on every interval until Stop is called or
// ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("refresh %s: already started", p.name)
	}
	p.started = true

	p.logger.WithField("interval", p.interval.String()).Info("Starting poller")
	go p.loop(ctx)
	return nil
}

// Trigger requests a run as soon as the current one, if any, finishes. It never blocks.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the in-flight run, if any, and waits for the loop to exit or ctx to expire.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	if !p.stopped {
		p.stopped = true
		close(p.shutdown)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		p.logger.Info("Poller stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Timeout waiting for poller to stop")
		return fmt.Errorf("refresh %s: timeout waiting for poller to stop: %w", p.name, ctx.Err())
	}
}

// Runs returns the number of completed runs.
func (p *Poller) Runs() int64 {
	return p.runs.Load()
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.shutdown:
			cancel()
		case <-runCtx.Done():
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.run(runCtx)
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			p.run(runCtx)
		case <-p.trigger:
			p.run(runCtx)
		}
	}
}

func (p *Poller) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := p.task(ctx)
	p.runs.Add(1)

	switch {
	case err == nil:
		metrics.ObserveOperation("refresh_"+p.name, "success")
		p.logger.WithField("duration", time.Since(start).String()).Debug("Refresh completed")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		metrics.ObserveOperation("refresh_"+p.name, "cancelled")
		p.logger.Debug("Refresh cancelled")
	default:
		metrics.ObserveOperation("refresh_"+p.name, "failure")
		p.logger.WithError(err).Error("Refresh failed")
	}
}
