package prtg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// PageFetcher returns count sensors starting at offset start.
type PageFetcher interface {
	Sensors(ctx context.Context, start, count int) ([]Sensor, error)
}

// FetchAll reads the sensor table page by page.
//
// The first batch asks for initial sensors; each following batch asks for
// pageSize. Fetching stops when a batch comes back short or when limit
// sensors have been read (limit <= 0 means no limit). Batches larger than
// pageSize are split into concurrent sub-requests and concatenated in
// request order. A sensor returned twice keeps its first occurrence. An
// empty table yields an empty, non-nil slice.
func FetchAll(ctx context.Context, f PageFetcher, initial, pageSize, limit int) ([]Sensor, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("prtg: page size must be positive, got %d", pageSize)
	}
	if initial <= 0 {
		initial = pageSize
	}

	all := make([]Sensor, 0, capped(initial, 0, limit))
	seen := make(map[int64]struct{})
	offset := 0
	want := capped(initial, 0, limit)
	for want > 0 {
		batch, err := fetchBatch(ctx, f, offset, want, pageSize)
		if err != nil {
			return nil, err
		}
		offset += len(batch)
		all = appendUnique(all, seen, batch)
		if len(batch) < want {
			break
		}
		want = capped(pageSize, offset, limit)
	}
	return all, nil
}

// appendUnique appends the sensors of batch whose objid has not been seen.
// The table can shift between pages, so one sensor may come back twice.
func appendUnique(all []Sensor, seen map[int64]struct{}, batch []Sensor) []Sensor {
	for _, s := range batch {
		if s.ObjID != nil {
			if _, dup := seen[*s.ObjID]; dup {
				slog.Debug("prtg: duplicate sensor dropped", "sensor", s.ID())
				continue
			}
			seen[*s.ObjID] = struct{}{}
		}
		all = append(all, s)
	}
	return all
}

// capped trims n so that total+n does not exceed limit.
func capped(n, total, limit int) int {
	if limit > 0 && total+n > limit {
		n = limit - total
	}
	if n < 0 {
		return 0
	}
	return n
}

// fetchBatch requests count sensors from start in sub-requests of at most
// pageSize, all in flight at once.
func fetchBatch(ctx context.Context, f PageFetcher, start, count, pageSize int) ([]Sensor, error) {
	n := (count + pageSize - 1) / pageSize
	pages := make([][]Sensor, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		size := min(pageSize, count-i*pageSize)
		wg.Add(1)
		go func(i, from, size int) {
			defer wg.Done()
			pages[i], errs[i] = f.Sensors(ctx, from, size)
		}(i, start+i*pageSize, size)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var out []Sensor
	for _, p := range pages {
		out = append(out, p...)
	}
	return out, nil
}

// Paginator wraps FetchAll and remembers how many sensors the last complete
// fetch returned, using it as the first batch size of the next one so a
// stable installation is read in a single concurrent batch.
type Paginator struct {
	fetcher  PageFetcher
	pageSize int
	limit    int
	hint     atomic.Int64
}

// NewPaginator returns a Paginator starting with an initial batch of initial.
func NewPaginator(f PageFetcher, initial, pageSize, limit int) *Paginator {
	p := &Paginator{fetcher: f, pageSize: pageSize, limit: limit}
	p.hint.Store(int64(initial))
	return p
}

// FetchAll reads every sensor and updates the batch size hint.
func (p *Paginator) FetchAll(ctx context.Context) ([]Sensor, error) {
	sensors, err := FetchAll(ctx, p.fetcher, int(p.hint.Load()), p.pageSize, p.limit)
	if err != nil {
		return nil, err
	}
	p.hint.Store(int64(max(len(sensors), p.pageSize)))
	return sensors, nil
}

// Hint returns the first batch size the next FetchAll will use.
func (p *Paginator) Hint() int {
	return int(p.hint.Load())
}
