package config

import (
	"github.com/mattjoyce/hookd/internal/registry"
)

// Registration source kinds.
const (
	SourceConfig = "config" // handlers: list in the YAML files
	SourceSQLite = "sqlite" // handler_registration table in state.path
)

// Config represents the complete hookd configuration.
type Config struct {
	Service  ServiceConfig           `yaml:"service"`
	State    StateConfig             `yaml:"state"`
	Source   string                  `yaml:"source"`
	API      APIConfig               `yaml:"api,omitempty"`
	Include  []string                `yaml:"include,omitempty"`
	Handlers []registry.Registration `yaml:"handlers,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP trigger settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings. APIKey grants every
// scope; Tokens grant only the scopes they list.
type APIAuthConfig struct {
	APIKey string       `yaml:"api_key"`
	Tokens []TokenEntry `yaml:"tokens,omitempty"`
}

// TokenEntry is a scoped API bearer token.
type TokenEntry struct {
	Name   string   `yaml:"name,omitempty"`
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// ChecksumManifest is the content of a .checksums file.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "hookd",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		Source: SourceConfig,
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
