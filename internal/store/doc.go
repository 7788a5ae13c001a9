// Package store implements the State Store component: the authoritative
// in-memory odds snapshot for the active (sport, game, market) subscription.
//
// The snapshot is single-writer/multi-reader. All mutations are atomic with
// respect to readers: readers receive deep copies, so a half-applied update
// can never be observed. After every mutation the store notifies its
// registered listeners; derived views recompute on notification.
package store
