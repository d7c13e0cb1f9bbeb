package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/config"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/prtg"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/refresh"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/store"
)

// runner owns the refresh loop and rebuilds it when the PRTG or refresh
// settings change. The store and observers survive restarts.
type runner struct {
	ctx       context.Context
	store     *store.Store
	observers []refresh.Observer

	mu   sync.Mutex
	loop *refresh.Loop
	cfg  *config.Config
}

func newRunner(ctx context.Context, st *store.Store, observers ...refresh.Observer) *runner {
	return &runner{ctx: ctx, store: st, observers: observers}
}

// start builds a loop from cfg and starts it.
func (r *runner) start(cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked(cfg)
}

func (r *runner) startLocked(cfg *config.Config) error {
	f, err := prtg.NewFetcher(cfg.PRTG)
	if err != nil {
		return err
	}
	r.loop = refresh.New(f, r.store, cfg.Refresh.Pause, r.observers...)
	r.cfg = cfg
	r.loop.Start(r.ctx)
	return nil
}

// reload restarts the loop when cfg changes how PRTG is polled. It reports
// whether a restart happened.
func (r *runner) reload(cfg *config.Config) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg != nil && r.cfg.PRTG == cfg.PRTG && r.cfg.Refresh == cfg.Refresh {
		r.cfg = cfg
		return false, nil
	}
	if r.loop != nil && !r.loop.Stop(r.ctx, r.cfg.Refresh.StopTimeout) {
		// The old loop is still unwinding; it exits on its own once its
		// in-flight request returns.
		slog.Error("refresh loop did not stop before restart")
	}
	if err := r.startLocked(cfg); err != nil {
		return false, err
	}
	return true, nil
}

// stop stops the current loop within the configured stop timeout.
func (r *runner) stop(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loop == nil {
		return true
	}
	return r.loop.Stop(ctx, r.cfg.Refresh.StopTimeout)
}

// state returns the lifecycle state of the current loop.
func (r *runner) state() refresh.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loop == nil {
		return refresh.StateIdle
	}
	return r.loop.State()
}
