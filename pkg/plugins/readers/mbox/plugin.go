// Package mbox provides a plugin wrapper for the mbox reader.
package mbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/finanzas/internal/plugins"
	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/extractor"
	mboxreader "github.com/ArionMiles/finanzas/pkg/reader/mbox"
)

// Plugin implements the ReaderPlugin interface for mbox files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "mbox"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read bank notifications from a local mbox export (e.g. Google Takeout)"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the mbox file",
			},
			"senders": map[string]any{
				"type":        "object",
				"description": "Sender addresses or domains per bank; defaults to the known notification senders",
			},
			"labels": map[string]any{
				"type":        "object",
				"description": "Merchant to category overrides",
			},
		},
		"required": []string{"path"},
	}
}

// Config represents the mbox reader configuration.
type Config struct {
	Path    string                `json:"path"`
	Senders extractor.SenderTable `json:"senders,omitempty"`
	Labels  api.Labels            `json:"labels,omitempty"`
}

// NewReader creates a new mbox reader instance. httpClient is ignored.
func (p *Plugin) NewReader(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := plugins.DecodeConfig(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling mbox config: %w", err)
	}
	if cfg.Path == "" {
		return nil, errors.New("path is required")
	}

	return mboxreader.New(mboxreader.Config{
		Path:    cfg.Path,
		Senders: cfg.Senders,
		Labels:  cfg.Labels,
	}, logger)
}
