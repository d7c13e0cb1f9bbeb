// Package ws implements the WebSocket status stream of prtg-exporter.
//
// Hub manages a set of connected clients and pushes the exporter status to
// all of them on a fixed interval and after every refresh cycle.
//
// New(source, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker. It blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// status immediately on connect, then streams updates.
// Hub.ObserveCycle makes the hub a refresh.Observer.
//
// Message format sent to clients:
//
//	{
//	  "event": "status",
//	  "data":  { /* same schema as GET /api/v1/health */ }
//	}
//
// Clients whose send buffer is full are disconnected. The upgrader accepts
// all origins. The endpoint is mounted at /ws/stream.
package ws
