// Package metadata provides the REST client for the odds backend's
// discovery endpoints.
//
// Endpoints:
//   - GET /sports           — available sports and sportsbooks
//   - GET /games/{sport}    — games currently tracked for a sport
//   - GET /markets/{sport}  — market types, optionally filtered by game
//   - GET /status           — backend health summary
//
// These are request-response lookups made before and between live
// subscriptions; the streaming odds themselves arrive over the
// WebSocket feed handled by internal/connection.
package metadata
