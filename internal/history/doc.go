// Package history implements the optional odds history recorder.
//
// Every odds cell applied to the live state is appended to the
// odds_ticks table in PostgreSQL, batched with pgx.Batch and flushed on
// a size or interval trigger. Rows are append-only; replays are absorbed
// by ON CONFLICT DO NOTHING.
package history
