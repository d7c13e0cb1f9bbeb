package collector

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/config"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/convert"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/enrich"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/prtg"
)

// Reader is the read side of the snapshot store.
type Reader interface {
	Read(ctx context.Context) (*prtg.Snapshot, bool)
}

// settings is the part of the collector that changes on config reload.
type settings struct {
	pipeline     *enrich.Pipeline
	builder      *Builder
	blockTimeout time.Duration
}

// Collector exposes the current snapshot as Prometheus gauges. It is an
// unchecked collector: the set of families depends on the data.
type Collector struct {
	store    Reader
	settings atomic.Pointer[settings]

	mu    sync.Mutex
	descs map[string]*prometheus.Desc
}

// New returns a Collector reading from store, configured from cfg.
func New(store Reader, cfg *config.Config) (*Collector, error) {
	c := &Collector{store: store, descs: make(map[string]*prometheus.Desc)}
	if err := c.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Reconfigure swaps labels, converters and the scrape timeout. Scrapes in
// progress finish with the previous settings.
func (c *Collector) Reconfigure(cfg *config.Config) error {
	converters, err := convert.Lookup(cfg.Converters)
	if err != nil {
		return err
	}
	c.settings.Store(&settings{
		pipeline:     enrich.FromConfig(cfg.Labels),
		builder:      NewBuilder(converters),
		blockTimeout: cfg.Scrape.BlockTimeout,
	})

	c.mu.Lock()
	c.descs = make(map[string]*prometheus.Desc)
	c.mu.Unlock()
	return nil
}

// Describe sends nothing, which makes the collector unchecked.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.settings.Load()
	ctx := context.Background()
	if s.blockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.blockTimeout)
		defer cancel()
	}

	for _, f := range c.families(ctx, s) {
		for _, smp := range f.Samples {
			desc := c.desc(f, smp.LabelNames)
			m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, smp.Value, smp.LabelValues...)
			if err != nil {
				m = prometheus.NewInvalidMetric(desc, err)
			}
			ch <- m
		}
	}
}

// Families returns the current samples grouped into families sorted by
// name. It returns nil when no snapshot is available.
func (c *Collector) Families(ctx context.Context) []Family {
	return c.families(ctx, c.settings.Load())
}

func (c *Collector) families(ctx context.Context, s *settings) []Family {
	snap, ok := c.store.Read(ctx)
	if !ok {
		return nil
	}
	return s.builder.Families(s.pipeline.Enrich(snap.Clone()))
}

// desc returns the cached descriptor for a family and label set.
func (c *Collector) desc(f Family, labelNames []string) *prometheus.Desc {
	key := f.Name + "\xff" + strings.Join(labelNames, "\xff")

	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.descs[key]; ok {
		return d
	}
	d := prometheus.NewDesc(f.Name, f.Help, labelNames, nil)
	c.descs[key] = d
	return d
}
