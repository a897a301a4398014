// Package config loads finanzas configuration from a .env file, an optional
// JSON file and the environment, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ArionMiles/finanzas/pkg/logging"
)

// Defaults applied by Load.
const (
	DefaultReader           = "gmail"
	DefaultWriter           = "sheets"
	DefaultClientSecretFile = "data/client_secret.json"
	DefaultTokenFile        = "data/token.json"
)

const (
	readerConfigKey = "FINANZAS_READER_CONFIG"
	writerConfigKey = "FINANZAS_WRITER_CONFIG"
)

// envPrefixes are the environment variables Load looks at.
var envPrefixes = []string{"FINANZAS_", "POSTGRES_", "LOG_"}

// Config holds the application configuration.
type Config struct {
	// ReaderPlugin is the name of the reader plugin to use.
	// Environment variable: FINANZAS_READER
	ReaderPlugin string `koanf:"FINANZAS_READER"`

	// WriterPlugin is the name of the writer plugin to use.
	// Environment variable: FINANZAS_WRITER
	WriterPlugin string `koanf:"FINANZAS_WRITER"`

	// ReaderConfig is the JSON configuration for the reader plugin.
	// Environment variable: FINANZAS_READER_CONFIG (a JSON string; an object in the config file)
	ReaderConfig json.RawMessage `koanf:"-"`

	// WriterConfig is the JSON configuration for the writer plugin.
	// Environment variable: FINANZAS_WRITER_CONFIG
	WriterConfig json.RawMessage `koanf:"-"`

	// ClientSecretFile is the Google OAuth client credentials file.
	// Environment variable: FINANZAS_CLIENT_SECRET
	ClientSecretFile string `koanf:"FINANZAS_CLIENT_SECRET"`

	// TokenFile caches the OAuth token obtained by the setup command.
	// Environment variable: FINANZAS_TOKEN_FILE
	TokenFile string `koanf:"FINANZAS_TOKEN_FILE"`

	LogLevel string `koanf:"LOG_LEVEL"`
	LogJSON  bool   `koanf:"LOG_JSON"`

	// Postgres is used by the summary command.
	Postgres PostgresConfig `koanf:",squash"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	DSN      string `koanf:"POSTGRES_DSN"`
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// Configured reports whether enough is set to attempt a connection.
func (p PostgresConfig) Configured() bool {
	return p.DSN != "" || p.Host != ""
}

// Options controls where Load looks for configuration.
type Options struct {
	// EnvFiles are tried in order; the first that loads wins. Missing files are skipped.
	EnvFiles []string
	// File is an optional JSON config file. An empty path skips it.
	File string
}

// DefaultOptions looks for .env in the working directory and no config file.
func DefaultOptions() Options {
	return Options{EnvFiles: []string{".env"}}
}

// Load reads configuration and fills in defaults.
func Load(opts Options) (Config, error) {
	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err == nil {
			break
		}
	}

	k := koanf.New(".")

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), kjson.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", opts.File, err)
		}
	}

	if err := k.Load(env.Provider("", ".", filterEnv), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	var err error
	if cfg.ReaderConfig, err = rawJSON(k, readerConfigKey); err != nil {
		return Config{}, err
	}
	if cfg.WriterConfig, err = rawJSON(k, writerConfigKey); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// filterEnv keeps only the variables finanzas reads.
func filterEnv(key string) string {
	for _, prefix := range envPrefixes {
		if strings.HasPrefix(key, prefix) {
			return key
		}
	}
	return ""
}

// rawJSON returns a plugin config given either as a JSON string (environment)
// or as a nested object (config file).
func rawJSON(k *koanf.Koanf, key string) (json.RawMessage, error) {
	v := k.Get(key)
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		val = strings.TrimSpace(val)
		if val == "" {
			return nil, nil
		}
		if !json.Valid([]byte(val)) {
			return nil, fmt.Errorf("%s is not valid JSON", key)
		}
		return json.RawMessage(val), nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", key, err)
		}
		return data, nil
	}
}

func (c *Config) applyDefaults() {
	if c.ReaderPlugin == "" {
		c.ReaderPlugin = DefaultReader
	}
	if c.WriterPlugin == "" {
		c.WriterPlugin = DefaultWriter
	}
	if c.ClientSecretFile == "" {
		c.ClientSecretFile = DefaultClientSecretFile
	}
	if c.TokenFile == "" {
		c.TokenFile = DefaultTokenFile
	}
}

// Validate checks the configuration needed to run the daemon.
func (c Config) Validate() error {
	var errs []error
	if c.ReaderPlugin == "" {
		errs = append(errs, errors.New("FINANZAS_READER is required"))
	}
	if c.WriterPlugin == "" {
		errs = append(errs, errors.New("FINANZAS_WRITER is required"))
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of DEBUG, INFO, WARN, ERROR", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Logging returns the logging configuration.
func (c Config) Logging() logging.Config {
	level, _ := logging.ParseLevel(c.LogLevel)
	return logging.Config{Level: level, JSON: c.LogJSON, Output: os.Stderr}
}
