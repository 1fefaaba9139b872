// Package websocket provides the WebSocket transport for the chess session
// broker.
//
// The package implements:
//   - One Conn per accepted client session
//   - Envelope decoding and registry command dispatch
//   - Addressed outbound delivery through a per-connection buffered outbox
//   - Connection lifecycle management with ping/pong keepalives
//
// Message Protocol:
//
// Every frame in either direction shares the envelope
// {event: <string>, msg: <string | structured>}. Inbound frames carry the
// inner payload as a JSON string; outbound frames embed structured payloads
// directly. See the game/protocol package for the full event set.
//
// Connection Lifecycle:
//
//  1. Client connects and is assigned a fresh participant id
//  2. Server pushes the Start event carrying that id
//  3. Client issues GetCode / ConnectWith / OppReady / Move / Promote
//  4. Registry answers and relays through each connection's outbox
//  5. Disconnection withdraws the participant from its room
//
// Concurrency:
//
// Each connection runs an independent read and write pump. Cross-connection
// delivery goes through the registry's addressed send into this package's
// buffered outboxes, so one slow client can never stall another connection
// or the registry itself.
package websocket
