// Package mcp provides a Model Context Protocol endpoint for inspecting the
// chess session broker.
//
// The mcp package implements:
//   - MCP server exposing read-only inspection tools
//   - HTTP proxying to the broker's admin API
//   - Text rendering of room and server state for AI agents
//
// MCP Tools:
//
// The package exposes the following tools for AI agents:
//   - server_info: Get room, participant, and pairing counts
//   - list_rooms: List active rooms with occupancy and age
//   - room_state: Inspect one room's occupants and turn holder
//
// Architecture:
//
// The MCP server does not touch the registry directly. Every tool call is
// translated into an HTTP request against the admin API, so the MCP surface
// sees exactly what an operator with curl would see. Gameplay itself is not
// reachable from MCP; matches run over the WebSocket endpoint only.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.NewStreamableHTTPServer(client.GetMCPServer())
package mcp
