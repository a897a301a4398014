// Package gmail provides a plugin wrapper for the Gmail reader.
package gmail

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/ArionMiles/finanzas/internal/plugins"
	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/extractor"
	gmailreader "github.com/ArionMiles/finanzas/pkg/reader/gmail"
)

// Plugin implements the ReaderPlugin interface for Gmail.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "gmail"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read Bancolombia and Nubank notifications from Gmail"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{
		gmailapi.GmailReadonlyScope,
		gmailapi.GmailModifyScope,
	}
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"senders": map[string]any{
				"type":        "object",
				"description": "Sender addresses or domains per bank (bancolombia, nubank); defaults to the known notification senders",
				"additionalProperties": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"labels": map[string]any{
				"type":                 "object",
				"description":          "Merchant to category overrides",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"interval": map[string]any{
				"type":        "integer",
				"description": "Seconds between mailbox polls (default: 300)",
				"default":     int(gmailreader.DefaultInterval / time.Second),
			},
			"window": map[string]any{
				"type":        "string",
				"description": "Gmail newer_than window (default: 90d)",
				"default":     gmailreader.DefaultWindow,
			},
			"maxResults": map[string]any{
				"type":        "integer",
				"description": "Messages listed per poll (default: 250)",
				"default":     gmailreader.DefaultMaxResults,
			},
			"batchSize": map[string]any{
				"type":        "integer",
				"description": "Messages fetched concurrently (default: 5)",
				"default":     gmailreader.DefaultBatchSize,
			},
			"batchDelayMs": map[string]any{
				"type":        "integer",
				"description": "Milliseconds between fetch batches (default: 500)",
				"default":     int(gmailreader.DefaultBatchDelay / time.Millisecond),
			},
			"markAsRead": map[string]any{
				"type":        "boolean",
				"description": "Mark messages as read once their transaction is written",
				"default":     false,
			},
		},
	}
}

// Config represents the Gmail reader configuration.
type Config struct {
	Senders      extractor.SenderTable `json:"senders,omitempty"`
	Labels       api.Labels            `json:"labels,omitempty"`
	Interval     int                   `json:"interval,omitempty"` // in seconds
	Window       string                `json:"window,omitempty"`
	MaxResults   int64                 `json:"maxResults,omitempty"`
	BatchSize    int                   `json:"batchSize,omitempty"`
	BatchDelayMs int                   `json:"batchDelayMs,omitempty"`
	MarkAsRead   bool                  `json:"markAsRead,omitempty"`
}

// ReaderConfig converts the plugin configuration into the reader's.
func (c Config) ReaderConfig() (gmailreader.Config, error) {
	for bank := range c.Senders {
		switch bank {
		case api.BankBancolombia, api.BankNubank:
		default:
			return gmailreader.Config{}, fmt.Errorf("senders: unsupported bank %q", bank)
		}
	}
	return gmailreader.Config{
		Senders:    c.Senders,
		Labels:     c.Labels,
		Interval:   time.Duration(c.Interval) * time.Second,
		Window:     c.Window,
		MaxResults: c.MaxResults,
		BatchSize:  c.BatchSize,
		BatchDelay: time.Duration(c.BatchDelayMs) * time.Millisecond,
		MarkAsRead: c.MarkAsRead,
	}, nil
}

// NewReader creates a new Gmail reader instance.
func (p *Plugin) NewReader(httpClient *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	if httpClient == nil {
		return nil, errors.New("gmail reader requires an authenticated http client")
	}

	var cfg Config
	if err := plugins.DecodeConfig(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling gmail config: %w", err)
	}

	readerCfg, err := cfg.ReaderConfig()
	if err != nil {
		return nil, err
	}

	return gmailreader.New(httpClient, readerCfg, logger)
}
