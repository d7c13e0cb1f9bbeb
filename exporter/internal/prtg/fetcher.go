package prtg

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/config"
)

// Fetcher runs one complete fetch: all sensor pages, then their channels.
type Fetcher struct {
	client      *Client
	pages       *Paginator
	parallelism int
	now         func() time.Time
}

// NewFetcher builds a Client and Paginator from cfg.
func NewFetcher(cfg config.PRTGConfig) (*Fetcher, error) {
	client, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &Fetcher{
		client:      client,
		pages:       NewPaginator(client, cfg.InitialCount, cfg.PageSize, cfg.SensorLimit),
		parallelism: cfg.ChannelParallelism,
		now:         time.Now,
	}, nil
}

// FetchSnapshot reads every sensor with its channels. The returned snapshot
// is not yet published and has no generation.
func (f *Fetcher) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	started := f.now()

	sensors, err := f.pages.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("prtg: fetch sensors: %w", err)
	}
	if err := AttachChannels(ctx, f.client, sensors, f.parallelism); err != nil {
		return nil, err
	}

	snap := &Snapshot{FetchedAt: f.now().UTC(), Sensors: sensors}
	slog.Debug("prtg: fetch complete",
		"sensors", len(sensors),
		"channels", snap.ChannelCount(),
		"elapsed", f.now().Sub(started),
	)
	return snap, nil
}
