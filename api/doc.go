// Package api provides the REST admin interface for the chess session
// broker.
//
// The API is read-only: rooms are created and played over the WebSocket
// transport, while this surface exposes health, occupancy statistics, and
// room snapshots to operators and the MCP endpoint.
//
// Endpoints:
//
//	GET /api/health        - liveness and uptime
//	GET /api/stats         - room/participant counts
//	GET /api/rooms         - list active rooms (?limit=N)
//	GET /api/rooms/{code}  - inspect one room by join code
//
// Responses are JSON. Errors use {"error": "<message>"} with a matching
// HTTP status code.
package api
