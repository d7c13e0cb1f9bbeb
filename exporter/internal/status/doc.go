// Package status derives the exporter's health from recent refresh cycles.
//
// Tracker keeps the outcomes of the last 20 cycles. Uptime is the share of
// successful cycles in that window. State thresholds: Healthy when the last
// cycle succeeded and uptime ≥85, Degraded when the last cycle succeeded or
// uptime ≥60, Critical otherwise, Unknown before the first cycle.
package status
