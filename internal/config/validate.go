package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		return fmt.Errorf("feed.url must use ws:// or wss:// scheme, got %q", c.Feed.URL)
	}
	if c.Feed.ReconnectBaseDelay <= 0 {
		return errors.New("feed.reconnect_base_delay must be > 0")
	}
	if c.Feed.ReconnectMaxDelay < c.Feed.ReconnectBaseDelay {
		return fmt.Errorf("feed.reconnect_max_delay (%v) cannot be less than reconnect_base_delay (%v)",
			c.Feed.ReconnectMaxDelay, c.Feed.ReconnectBaseDelay)
	}
	if c.Feed.PingInterval <= 0 {
		return errors.New("feed.ping_interval must be > 0")
	}

	if c.Metadata.BaseURL == "" {
		return errors.New("metadata.base_url is required")
	}

	if c.History.Enabled {
		if err := c.History.Postgres.validate("history.postgres"); err != nil {
			return err
		}
		if c.History.BatchSize < 1 {
			return errors.New("history.batch_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
