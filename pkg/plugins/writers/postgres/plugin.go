// Package postgres provides a plugin wrapper for the PostgreSQL writer.
package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ArionMiles/finanzas/internal/plugins"
	"github.com/ArionMiles/finanzas/pkg/api"
	pgwriter "github.com/ArionMiles/finanzas/pkg/writer/postgres"
)

// Plugin implements the WriterPlugin interface for PostgreSQL.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "postgres"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Write transactions to PostgreSQL, skipping already stored emails"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
// PostgreSQL writer doesn't require OAuth scopes.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"dsn": map[string]any{
				"type":        "string",
				"description": "Full connection string; overrides the individual fields",
			},
			"host": map[string]any{
				"type":        "string",
				"description": "PostgreSQL host address",
				"default":     "localhost",
			},
			"port": map[string]any{
				"type":        "integer",
				"description": "PostgreSQL port",
				"default":     5432,
			},
			"database": map[string]any{
				"type":        "string",
				"description": "Database name",
				"default":     "finanzas",
			},
			"user": map[string]any{
				"type":        "string",
				"description": "Database user",
			},
			"password": map[string]any{
				"type":        "string",
				"description": "Database password",
			},
			"sslmode": map[string]any{
				"type":        "string",
				"description": "SSL mode (disable, require, verify-ca, verify-full)",
				"default":     "disable",
				"enum":        []string{"disable", "require", "verify-ca", "verify-full"},
			},
			"batchSize": map[string]any{
				"type":        "integer",
				"description": "Number of transactions to buffer before writing (default: 10)",
				"default":     10,
			},
			"flushInterval": map[string]any{
				"type":        "integer",
				"description": "Interval in seconds between automatic flushes (default: 30)",
				"default":     30,
			},
			"maxPoolSize": map[string]any{
				"type":        "integer",
				"description": "Maximum number of connections in the pool (default: 10)",
				"default":     10,
			},
		},
	}
}

// Config represents the PostgreSQL writer configuration.
type Config struct {
	DSN           string `json:"dsn,omitempty"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	Database      string `json:"database,omitempty"`
	User          string `json:"user,omitempty"`
	Password      string `json:"password,omitempty"`
	SSLMode       string `json:"sslmode,omitempty"`
	BatchSize     int    `json:"batchSize,omitempty"`
	FlushInterval int    `json:"flushInterval,omitempty"` // in seconds
	MaxPoolSize   int    `json:"maxPoolSize,omitempty"`
}

// Validate checks that either a DSN or the connection fields are present.
func (c Config) Validate() error {
	if c.DSN != "" {
		return nil
	}
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	if c.User == "" {
		return errors.New("user is required")
	}
	return nil
}

// WriterConfig converts the plugin configuration into the writer's.
func (c Config) WriterConfig() pgwriter.Config {
	return pgwriter.Config{
		DSN:           c.DSN,
		Host:          c.Host,
		Port:          c.Port,
		Database:      c.Database,
		User:          c.User,
		Password:      c.Password,
		SSLMode:       c.SSLMode,
		BatchSize:     c.BatchSize,
		FlushInterval: time.Duration(c.FlushInterval) * time.Second,
		MaxPoolSize:   c.MaxPoolSize,
	}
}

// NewWriter creates a new PostgreSQL writer instance. httpClient is ignored.
func (p *Plugin) NewWriter(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := plugins.DecodeConfig(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling postgres config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return pgwriter.New(cfg.WriterConfig(), logger)
}
