package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Defaults used when neither config.toml nor the environment says otherwise.
const (
	DefaultAPIURL         = "http://localhost:4000/api/v1"
	DefaultSocketURL      = "ws://localhost:4001"
	DefaultHTTPTimeoutSec = 15
)

// Config represents the global ~/.provision-chat/config.toml.
type Config struct {
	APIURL         string `toml:"api_url"`
	SocketURL      string `toml:"socket_url"`
	DefaultSession string `toml:"default_session"`
	HTTPTimeoutSec int    `toml:"http_timeout_seconds"`
}

// Load reads config from the given path, then applies environment overrides
// (PROVISION_API_URL, PROVISION_SOCKET_URL, PROVISION_HTTP_TIMEOUT). A .env
// file in the working directory is honored if present. A missing config file
// is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	// Best effort: absence of .env just means plain environment.
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:         DefaultAPIURL,
		SocketURL:      DefaultSocketURL,
		HTTPTimeoutSec: DefaultHTTPTimeoutSec,
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("PROVISION_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("PROVISION_SOCKET_URL"); v != "" {
		cfg.SocketURL = v
	}
	if v := os.Getenv("PROVISION_HTTP_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.HTTPTimeoutSec = secs
		}
	}
	if cfg.HTTPTimeoutSec <= 0 {
		cfg.HTTPTimeoutSec = DefaultHTTPTimeoutSec
	}

	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
