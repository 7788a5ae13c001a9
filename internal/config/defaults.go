package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedURL            = "ws://localhost:8000/ws/odds"
	DefaultMetadataBaseURL    = "http://localhost:8000/api"
	DefaultMetadataTimeout    = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultHistoryBatchSize   = 500
	DefaultHistoryFlush       = 1 * time.Second
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

func (c *Config) applyDefaults() {
	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.HandshakeTimeout == 0 {
		c.Feed.HandshakeTimeout = DefaultHandshakeTimeout
	}

	// Metadata defaults
	if c.Metadata.BaseURL == "" {
		c.Metadata.BaseURL = DefaultMetadataBaseURL
	}
	if c.Metadata.Timeout == 0 {
		c.Metadata.Timeout = DefaultMetadataTimeout
	}
	if c.Metadata.MaxRetries == 0 {
		c.Metadata.MaxRetries = DefaultMaxRetries
	}

	// History defaults
	if c.History.BatchSize == 0 {
		c.History.BatchSize = DefaultHistoryBatchSize
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = DefaultHistoryFlush
	}
	applyDBDefaults(&c.History.Postgres)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
