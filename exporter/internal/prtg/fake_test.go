package prtg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

// table is an in-memory sensor table that records every page request.
type table struct {
	mu       sync.Mutex
	sensors  []Sensor
	requests [][2]int // start, count
	failAt   int      // start offset that fails, -1 for none
}

func newTable(n int) *table {
	t := &table{failAt: -1}
	for i := 0; i < n; i++ {
		t.sensors = append(t.sensors, sensor(int64(1000+i), "ping"))
	}
	return t
}

func (t *table) Sensors(_ context.Context, start, count int) ([]Sensor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, [2]int{start, count})
	if start == t.failAt {
		return nil, fmt.Errorf("%w: boom at %d", ErrNetwork, start)
	}
	if start >= len(t.sensors) {
		return []Sensor{}, nil
	}
	end := min(start+count, len(t.sensors))
	return append([]Sensor(nil), t.sensors[start:end]...), nil
}

func (t *table) calls() [][2]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][2]int(nil), t.requests...)
}

func sensor(id int64, tags string) Sensor {
	return Sensor{
		ObjID:        &id,
		Device:       strp("dev-" + strconv.FormatInt(id, 10)),
		Name:         strp("sensor-" + strconv.FormatInt(id, 10)),
		Group:        strp("group"),
		Tags:         strp(tags),
		LastValueRaw: Some(float64(id)),
	}
}

func strp(s string) *string { return &s }

// channelSource serves channels per sensor id and tracks concurrency.
type channelSource struct {
	mu       sync.Mutex
	channels map[int64][]Channel
	fail     map[int64]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	gate     chan struct{} // when non-nil, every call waits on it
}

func (c *channelSource) Channels(ctx context.Context, id int64) ([]Channel, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[id] {
		return nil, fmt.Errorf("%w: channels %d", ErrNetwork, id)
	}
	return c.channels[id], nil
}

// prtgServer is a fake PRTG table API backed by a table.
type prtgServer struct {
	t        *testing.T
	sensors  []map[string]any
	channels map[string][]map[string]any
	queries  chan map[string]string
}

func (p *prtgServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/table.json" {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	flat := make(map[string]string, len(q))
	for k := range q {
		flat[k] = q.Get(k)
	}
	if p.queries != nil {
		select {
		case p.queries <- flat:
		default:
		}
	}

	switch q.Get("content") {
	case "sensors":
		start, _ := strconv.Atoi(q.Get("start"))
		count, _ := strconv.Atoi(q.Get("count"))
		rows := []map[string]any{}
		if start < len(p.sensors) {
			rows = p.sensors[start:min(start+count, len(p.sensors))]
		}
		writeJSON(p.t, w, map[string]any{"sensors": rows})
	case "channels":
		rows, ok := p.channels[q.Get("id")]
		if !ok {
			http.Error(w, "unknown sensor", http.StatusBadRequest)
			return
		}
		writeJSON(p.t, w, map[string]any{"channels": rows})
	default:
		http.Error(w, "bad content", http.StatusBadRequest)
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func startPRTG(t *testing.T, p *prtgServer) *httptest.Server {
	t.Helper()
	p.t = t
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return srv
}
