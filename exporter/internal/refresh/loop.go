package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/prtg"
)

// stopAttempts is the number of slices the stop timeout is split into.
const stopAttempts = 3

// State is the lifecycle state of a Loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Fetcher produces one complete snapshot per call.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (*prtg.Snapshot, error)
}

// Publisher makes a snapshot visible to readers.
type Publisher interface {
	Publish(snap *prtg.Snapshot)
}

// Cycle describes the outcome of one refresh cycle.
type Cycle struct {
	Started  time.Time
	Duration time.Duration
	Sensors  int
	Channels int
	Err      error
}

// Observer is notified after every cycle, on the loop goroutine. ctx is the
// loop's own context.
type Observer interface {
	ObserveCycle(ctx context.Context, c Cycle)
}

// Loop repeatedly fetches a snapshot, publishes it and sleeps for the pause.
// A failed cycle is logged and leaves the previous snapshot visible.
//
// All exported methods are safe for concurrent use.
type Loop struct {
	fetcher   Fetcher
	publisher Publisher
	pause     time.Duration
	observers []Observer

	mu     sync.Mutex
	state  State
	run    *run
	stopMu sync.Mutex
}

// run is one execution of the loop goroutine. Its address doubles as the
// run token stored in the loop context.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type runKey struct{}

// New returns an idle Loop.
func New(f Fetcher, p Publisher, pause time.Duration, observers ...Observer) *Loop {
	return &Loop{
		fetcher:   f,
		publisher: p,
		pause:     pause,
		observers: observers,
	}
}

// Start launches the loop goroutine. It is a no-op while a previous run is
// still alive. The loop stops when ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.run != nil {
		return
	}

	r := &run{done: make(chan struct{})}
	runCtx, cancel := context.WithCancel(context.WithValue(ctx, runKey{}, r))
	r.cancel = cancel
	l.run = r
	l.state = StateRunning

	slog.Info("refresh: loop starting", "pause", l.pause)
	go l.loop(runCtx, r)
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stop asks the loop to stop, interrupting its sleep and any in-flight
// requests, and waits up to timeout for it to exit. The wait is split into
// three attempts, each re-issuing the interrupt. It returns true when the
// loop has terminated or was not running.
//
// When ctx belongs to the loop itself (an Observer calling Stop), Stop only
// signals and returns false, since waiting would deadlock. A timeout <= 0
// waits until the loop exits or ctx is done.
func (l *Loop) Stop(ctx context.Context, timeout time.Duration) bool {
	if own, _ := ctx.Value(runKey{}).(*run); own != nil {
		l.mu.Lock()
		if l.run == own {
			l.state = StateStopping
			own.cancel()
			l.mu.Unlock()
			return false
		}
		// A context from another loop's run; stop this one normally.
		l.mu.Unlock()
	}

	l.stopMu.Lock()
	defer l.stopMu.Unlock()

	l.mu.Lock()
	r := l.run
	if r == nil {
		l.mu.Unlock()
		return true
	}
	l.state = StateStopping
	r.cancel()
	l.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-r.done:
			return true
		case <-ctx.Done():
			return l.stopFailed(timeout)
		}
	}

	slice := timeout / stopAttempts
	if slice <= 0 {
		slice = timeout
	}
	for i := 0; i < stopAttempts; i++ {
		t := time.NewTimer(slice)
		select {
		case <-r.done:
			t.Stop()
			slog.Info("refresh: loop stopped")
			return true
		case <-ctx.Done():
			t.Stop()
			return l.stopFailed(timeout)
		case <-t.C:
		}
		r.cancel()
	}

	select {
	case <-r.done:
		return true
	default:
		return l.stopFailed(timeout)
	}
}

func (l *Loop) stopFailed(timeout time.Duration) bool {
	slog.Error("refresh: loop FAILED to stop", "timeout", timeout)
	return false
}

// RunOnce performs a single fetch-and-publish cycle on the caller's
// goroutine and notifies observers.
func (l *Loop) RunOnce(ctx context.Context) error {
	c := l.cycle(ctx)
	return c.Err
}

func (l *Loop) loop(ctx context.Context, r *run) {
	defer func() {
		l.mu.Lock()
		if l.run == r {
			l.run = nil
			l.state = StateIdle
		}
		l.mu.Unlock()
		close(r.done)
	}()

	for ctx.Err() == nil {
		if c := l.cycle(ctx); c.Err != nil && ctx.Err() == nil {
			slog.Warn("refresh: cycle failed, keeping previous snapshot",
				"err", c.Err, "elapsed", c.Duration)
		}
		if !l.sleep(ctx) {
			return
		}
	}
}

// cycle fetches and publishes one snapshot. A panic in the fetcher is
// reported as the cycle error so the loop survives it.
func (l *Loop) cycle(ctx context.Context) (c Cycle) {
	c.Started = time.Now()
	defer func() {
		if p := recover(); p != nil {
			c.Err = fmt.Errorf("refresh: fetch panicked: %v", p)
		}
		c.Duration = time.Since(c.Started)
		if ctx.Err() != nil && c.Err != nil {
			// Interrupted by Stop; not a failure worth reporting.
			return
		}
		for _, o := range l.observers {
			o.ObserveCycle(ctx, c)
		}
	}()

	snap, err := l.fetcher.FetchSnapshot(ctx)
	if err != nil {
		c.Err = err
		return c
	}
	if err := ctx.Err(); err != nil {
		c.Err = err
		return c
	}
	l.publisher.Publish(snap)
	c.Sensors = len(snap.Sensors)
	c.Channels = snap.ChannelCount()
	slog.Debug("refresh: snapshot published",
		"generation", snap.Generation, "sensors", c.Sensors, "channels", c.Channels)
	return c
}

// sleep waits for the pause. It returns false when interrupted.
func (l *Loop) sleep(ctx context.Context) bool {
	t := time.NewTimer(l.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
