package config

import "time"

// Config is the root configuration for an oddsview instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Metadata MetadataConfig `yaml:"metadata"`
	Watch    WatchConfig    `yaml:"watch"`
	History  HistoryConfig  `yaml:"history"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this client instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds the odds feed WebSocket settings.
type FeedConfig struct {
	// URL of the /ws/odds endpoint (ws:// or wss:// matching the
	// deployment's page scheme).
	URL string `yaml:"url"`

	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
}

// MetadataConfig holds the REST metadata fetcher settings.
type MetadataConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// WatchConfig selects the tuple to subscribe to on startup. Game and market
// may be left empty and chosen later through the selection API.
type WatchConfig struct {
	Sport  string `yaml:"sport"`
	GameID string `yaml:"game_id"`
	Market string `yaml:"market"`
}

// HistoryConfig holds the optional odds history recorder settings.
// The recorder is disabled unless Enabled is set.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Postgres      DBConfig      `yaml:"postgres"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
