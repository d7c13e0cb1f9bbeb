// Package api implements the JSON status API of prtg-exporter.
//
// New(store, tracker, cfg) returns a Handler that serves:
//
//	GET /api/v1/health        refresh state, uptime, snapshot size, hints
//	GET /api/v1/snapshot      sensor and channel counts per sensor type
//	GET /api/v1/sensors/{id}  one sensor of the current snapshot; 404 if absent
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. JSON types are defined in types.go.
package api
