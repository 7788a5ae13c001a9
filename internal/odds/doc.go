// Package odds defines the shared data types for the odds sync core.
//
// Conventions:
//   - Odds: American format as signed integer strings ("-110", "+150");
//     a nil Odds pointer means the outcome is suspended/unavailable
//   - Lines: decimal strings ("5.5", "-3.5") as delivered by the feed
//   - Timestamps: ISO 8601 strings from the server, untouched
package odds
