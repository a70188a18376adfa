// Package api provides the HTTP REST API and WebSocket server for TapFlow Core.
//
// It exposes flow management and execution, sensor and drift history
// queries, execution history, and real-time execution events to hub
// integrations and admin tooling.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// All routes except /health and /metrics require an HS256 Bearer token.
// The WebSocket endpoint authenticates with a one-shot ticket from
// POST /auth/ws-ticket, since browsers cannot attach headers to an
// upgrade request.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
