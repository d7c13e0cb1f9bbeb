package api

import (
	"fmt"
	"time"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/prtg"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/status"
)

// Hint levels.
const (
	levelOK       = "ok"
	levelInfo     = "info"
	levelWarning  = "warning"
	levelCritical = "critical"
)

// DiagnosticHint is one human-readable insight about refresh health.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

type diagnosticInput struct {
	status      status.Status
	snapshot    *prtg.Snapshot // nil before the first publish
	now         time.Time
	staleAfter  time.Duration
	sensorLimit int
}

// computeDiagnostics derives hints from the tracker status and the current
// snapshot, most severe first.
func computeDiagnostics(in diagnosticInput) []DiagnosticHint {
	var hints []DiagnosticHint
	st := in.status

	if st.Cycles == 0 {
		return append(hints, DiagnosticHint{
			Key:   "warming_up",
			Level: levelInfo,
			Title: "Warming up",
			Detail: "The first refresh cycle has not finished yet. " +
				"Scrapes return no PRTG samples until it does.",
		})
	}

	if st.LastError != "" {
		level := levelWarning
		if in.snapshot == nil {
			level = levelCritical
		}
		hints = append(hints, DiagnosticHint{
			Key:   "refresh_failed",
			Level: level,
			Title: "Refresh failing",
			Detail: fmt.Sprintf(
				"The last refresh cycle failed with: %q. "+
					"Scrapes keep serving the previous snapshot until a cycle succeeds. "+
					"Check that PRTG is reachable and the passhash is valid.",
				st.LastError,
			),
		})
	}

	if in.snapshot != nil && st.LastSuccessAt != nil && in.staleAfter > 0 {
		age := in.now.Sub(*st.LastSuccessAt)
		if age > in.staleAfter {
			v := age.Seconds()
			hints = append(hints, DiagnosticHint{
				Key:   "stale_snapshot",
				Level: levelWarning,
				Title: "Stale snapshot",
				Detail: fmt.Sprintf(
					"The served snapshot is %s old. Values exported on /metrics do not "+
						"reflect the current state of PRTG.",
					age.Round(time.Second),
				),
				Value: &v,
			})
		}
	}

	if st.UptimePct < 100 {
		v := st.UptimePct
		level := levelInfo
		switch {
		case st.UptimePct < status.ThresholdDegraded:
			level = levelCritical
		case st.UptimePct < status.ThresholdHealthy:
			level = levelWarning
		}
		hints = append(hints, DiagnosticHint{
			Key:   "uptime",
			Level: level,
			Title: fmt.Sprintf("%.0f%% refresh success", st.UptimePct),
			Detail: fmt.Sprintf(
				"%.0f%% of the recent refresh cycles succeeded (last 20 tracked).",
				st.UptimePct,
			),
			Value: &v,
		})
	}

	if in.snapshot != nil && len(in.snapshot.Sensors) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "no_sensors",
			Level: levelWarning,
			Title: "No sensors",
			Detail: "PRTG returned an empty sensor table. " +
				"Check that the API user can see the sensors you expect.",
		})
	}

	if in.snapshot != nil && in.sensorLimit > 0 && len(in.snapshot.Sensors) >= in.sensorLimit {
		v := float64(in.sensorLimit)
		hints = append(hints, DiagnosticHint{
			Key:   "sensor_limit",
			Level: levelInfo,
			Title: "Sensor limit reached",
			Detail: fmt.Sprintf(
				"The snapshot holds %d sensors, the configured prtg.sensor_limit. "+
					"Sensors past the limit are not exported.",
				len(in.snapshot.Sensors),
			),
			Value: &v,
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "healthy",
			Level:  levelOK,
			Title:  "All clear",
			Detail: "Recent refresh cycles succeeded and the snapshot is current.",
		})
	}
	return sortHints(hints)
}

// sortHints orders hints critical first, keeping insertion order per level.
func sortHints(hints []DiagnosticHint) []DiagnosticHint {
	rank := map[string]int{levelCritical: 0, levelWarning: 1, levelInfo: 2, levelOK: 3}
	out := make([]DiagnosticHint, 0, len(hints))
	for r := 0; r <= 3; r++ {
		for _, h := range hints {
			if rank[h.Level] == r {
				out = append(out, h)
			}
		}
	}
	return out
}
