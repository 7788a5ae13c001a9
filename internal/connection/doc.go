// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single WebSocket connection to the odds feed
//   - Runs the disconnected → connecting → connected state machine
//   - Reconnects with exponential backoff (1s floor, 30s ceiling)
//   - Sends a protocol-level ping every 30s and tracks the last pong
//   - Decodes inbound messages and dispatches them to registered handlers
package connection
