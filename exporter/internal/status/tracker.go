package status

import (
	"context"
	"sync"
	"time"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/refresh"
)

// uptimeWindow is the number of recent cycle outcomes tracked for uptime %.
const uptimeWindow = 20

// State constants reported in Status.State.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateCritical = "critical"
	StateUnknown  = "unknown"
)

// Uptime thresholds, in percent.
const (
	ThresholdHealthy  = 85.0
	ThresholdDegraded = 60.0
)

// Status is a point-in-time view of refresh health.
type Status struct {
	State     string  `json:"state"`
	UptimePct float64 `json:"uptime_pct"`

	// Cycles and Failures count every cycle since the tracker was created.
	Cycles   uint64 `json:"cycles"`
	Failures uint64 `json:"failures"`

	LastCycleAt     *time.Time `json:"last_cycle_at,omitempty"`
	LastDurationSec float64    `json:"last_duration_seconds"`
	LastSuccessAt   *time.Time `json:"last_success_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`

	// Sensors and Channels describe the last successful cycle.
	Sensors  int `json:"sensors"`
	Channels int `json:"channels"`
}

// Tracker records refresh cycle outcomes. It implements refresh.Observer.
//
// All exported methods are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	history []bool // outcomes, newest last
	status  Status
}

// NewTracker returns a Tracker in the unknown state.
func NewTracker() *Tracker {
	return &Tracker{status: Status{State: StateUnknown, UptimePct: 100}}
}

// ObserveCycle implements refresh.Observer.
func (t *Tracker) ObserveCycle(_ context.Context, c refresh.Cycle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	success := c.Err == nil
	if len(t.history) >= uptimeWindow {
		t.history = t.history[1:]
	}
	t.history = append(t.history, success)

	st := &t.status
	st.Cycles++
	end := c.Started.Add(c.Duration).UTC()
	st.LastCycleAt = &end
	st.LastDurationSec = c.Duration.Seconds()
	if success {
		st.LastSuccessAt = &end
		st.LastError = ""
		st.Sensors = c.Sensors
		st.Channels = c.Channels
	} else {
		st.Failures++
		st.LastError = c.Err.Error()
	}
	st.UptimePct = t.uptimePct()
	st.State = classify(success, st.UptimePct)
}

// Status returns a copy of the current status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Tracker) uptimePct() float64 {
	if len(t.history) == 0 {
		return 100
	}
	var ok int
	for _, s := range t.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(t.history)) * 100
}

// classify maps the last outcome and uptime to a state.
func classify(lastOK bool, uptime float64) string {
	switch {
	case lastOK && uptime >= ThresholdHealthy:
		return StateHealthy
	case lastOK || uptime >= ThresholdDegraded:
		return StateDegraded
	default:
		return StateCritical
	}
}
