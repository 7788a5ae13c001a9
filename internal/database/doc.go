// Package database provides the PostgreSQL connection pool used by the
// optional odds history recorder.
package database
