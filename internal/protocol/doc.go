// Package protocol defines the message shapes exchanged with the odds feed
// over the /ws/odds WebSocket and the codec that validates them.
//
// Client→server: subscribe, unsubscribe, ping.
// Server→client: connected, snapshot, update, pong, status, error.
//
// There is no schema negotiation; any message whose type is not one of the
// known literals is a decode failure.
package protocol
