package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/collector"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/config"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/prtg"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/status"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/store"
)

// staleCycles is how many refresh pauses may pass without a successful
// cycle before the snapshot is reported as stale.
const staleCycles = 3

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store   *store.Store
	tracker *status.Tracker
	mux     *http.ServeMux
	now     func() time.Time
	limits  atomic.Pointer[limits]
}

// limits are the config-derived thresholds used by the diagnostics.
type limits struct {
	staleAfter  time.Duration
	sensorLimit int
}

// New creates a Handler wired to the snapshot store and status tracker and
// registers all routes.
func New(st *store.Store, tr *status.Tracker, cfg *config.Config) *Handler {
	h := &Handler{
		store:   st,
		tracker: tr,
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	h.Reconfigure(cfg)

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/v1/sensors/", h.sensor) // subtree, extracts {id}

	return h
}

// Reconfigure updates the thresholds derived from cfg.
func (h *Handler) Reconfigure(cfg *config.Config) {
	h.limits.Store(&limits{
		staleAfter:  staleCycles * (cfg.Refresh.Pause + cfg.PRTG.Timeout),
		sensorLimit: cfg.PRTG.SensorLimit,
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.Health())
}

// Health builds the GET /api/v1/health payload. The WebSocket hub streams
// the same document.
func (h *Handler) Health() HealthResponse {
	st := h.tracker.Status()
	resp := HealthResponse{Status: st}
	snap, ok := h.store.Latest()
	if ok {
		resp.Ready = true
		resp.Generation = snap.Generation
		resp.FetchedAt = snap.FetchedAt.UTC().Format(time.RFC3339)
	}
	lim := h.limits.Load()
	resp.Diagnostics = computeDiagnostics(diagnosticInput{
		status:      st,
		snapshot:    snap,
		now:         h.now(),
		staleAfter:  lim.staleAfter,
		sensorLimit: lim.sensorLimit,
	})
	return resp
}

// snapshot returns GET /api/v1/snapshot, a per-type summary of the current
// snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := SnapshotResponse{
		Types:       []TypeSummary{},
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	}
	snap, ok := h.store.Latest()
	if !ok {
		jsonResp(w, http.StatusOK, resp)
		return
	}

	resp.Generation = snap.Generation
	resp.FetchedAt = snap.FetchedAt.UTC().Format(time.RFC3339)
	resp.Sensors = len(snap.Sensors)
	resp.Channels = snap.ChannelCount()

	byType := make(map[string]*TypeSummary)
	for i := range snap.Sensors {
		s := &snap.Sensors[i]
		typ, err := s.Type()
		if err != nil {
			resp.Untyped++
			continue
		}
		ts, ok := byType[typ]
		if !ok {
			family, _ := collector.MetricName(typ)
			ts = &TypeSummary{Type: typ, Family: family}
			byType[typ] = ts
		}
		ts.Sensors++
		ts.Channels += len(s.Channels)
	}
	for _, ts := range byType {
		resp.Types = append(resp.Types, *ts)
	}
	sort.Slice(resp.Types, func(i, j int) bool { return resp.Types[i].Type < resp.Types[j].Type })

	jsonResp(w, http.StatusOK, resp)
}

// sensor returns GET /api/v1/sensors/{id}.
func (h *Handler) sensor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/sensors/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid sensor id")
		return
	}

	snap, ok := h.store.Latest()
	if !ok {
		jsonErr(w, http.StatusNotFound, "sensor not found")
		return
	}
	for i := range snap.Sensors {
		s := &snap.Sensors[i]
		if s.ObjID != nil && *s.ObjID == id {
			jsonResp(w, http.StatusOK, toSensorResponse(s))
			return
		}
	}
	jsonErr(w, http.StatusNotFound, "sensor not found")
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toSensorResponse(s *prtg.Sensor) SensorResponse {
	out := SensorResponse{
		ID:        *s.ObjID,
		Device:    deref(s.Device),
		Name:      deref(s.Name),
		Group:     deref(s.Group),
		Tags:      deref(s.Tags),
		LastValue: deref(s.LastValue),
		Value:     value(s.LastValueRaw),
		Channels:  make([]ChannelResponse, 0, len(s.Channels)),
	}
	for _, ch := range s.Channels {
		out.Channels = append(out.Channels, ChannelResponse{
			ID:    ch.ObjID,
			Name:  deref(ch.Name),
			Value: value(ch.LastValueRaw),
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func value(n prtg.Number) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}
