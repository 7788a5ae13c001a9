// Package view derives the display rows from an odds snapshot.
//
// Projection is a pure function of the snapshot: rows are grouped by outcome
// key, paired across complementary outcomes (both sides of a spread, both
// halves of a total), annotated with the best-priced sportsbook, and sorted
// deterministically so repeated projection of identical input yields an
// identical ordering.
package view
