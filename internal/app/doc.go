// Package app wires the feed connection, odds state, view projection,
// movement tracking, and optional history recording into one
// application core.
//
// The app owns the selection (sport, game, market). Selection changes
// cascade: picking a sport clears the game and market, picking a game
// clears the market. Only a complete selection subscribes to the feed;
// an incomplete one unsubscribes and empties the odds state. Incoming
// snapshots and updates are dropped unless they match the current
// selection, which also covers stale data arriving after a reconnect
// re-subscribe.
package app
