// Package config handles companion configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from the --config flag) is checked first.
// Then: ./config.yaml, ~/.config/companion/config.yaml, /etc/companion/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "companion", "config.yaml"))
	}

	paths = append(paths, "/etc/companion/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all companion configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	LLM      LLMConfig      `yaml:"llm"`
	Episodes EpisodesConfig `yaml:"episodes"`
	Sessions SessionsConfig `yaml:"sessions"`
	DataDir  string         `yaml:"data_dir"`
	LogLevel string         `yaml:"log_level"`
	// LogFile, when set, receives a JSON copy of every log line.
	LogFile string `yaml:"log_file"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig selects the model backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // ollama, openai, anthropic
	Model    string `yaml:"model"`
	// RouterModel classifies intents. Defaults to Model.
	RouterModel string `yaml:"router_model"`
	// RouterProvider hosts RouterModel when it differs from Provider.
	RouterProvider string `yaml:"router_provider"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
}

// EpisodesConfig tunes episode linking and lifecycle.
type EpisodesConfig struct {
	LinkingWindowHours   int `yaml:"linking_window_hours"`
	CandidateWindowHours int `yaml:"candidate_window_hours"`
	MaxDurationHours     int `yaml:"max_duration_hours"`
	// CloseIntervalMinutes is how often serve sweeps stale episodes.
	// Zero disables the sweep.
	CloseIntervalMinutes int `yaml:"close_interval_minutes"`
}

// SessionsConfig bounds the in-memory conversation cache.
type SessionsConfig struct {
	Max        int `yaml:"max"`
	TTLMinutes int `yaml:"ttl_minutes"`
}

// LinkingWindow returns the episode linking window as a duration.
func (e EpisodesConfig) LinkingWindow() time.Duration {
	return time.Duration(e.LinkingWindowHours) * time.Hour
}

// CandidateWindow returns how far back candidates are fetched.
func (e EpisodesConfig) CandidateWindow() time.Duration {
	return time.Duration(e.CandidateWindowHours) * time.Hour
}

// MaxDuration returns the idle time after which an episode is closed.
func (e EpisodesConfig) MaxDuration() time.Duration {
	return time.Duration(e.MaxDurationHours) * time.Hour
}

// CloseInterval returns the stale-episode sweep period.
func (e EpisodesConfig) CloseInterval() time.Duration {
	return time.Duration(e.CloseIntervalMinutes) * time.Minute
}

// TTL returns the session idle timeout.
func (s SessionsConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// RouterModelName returns the model used for intent routing.
func (l LLMConfig) RouterModelName() string {
	if l.RouterModel != "" {
		return l.RouterModel
	}
	return l.Model
}

// DatabasePath returns the SQLite file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "companion.db")
}

// Load reads configuration from a YAML file. Unset keys keep their
// Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2",
			BaseURL:  "http://localhost:11434",
		},
		Episodes: EpisodesConfig{
			LinkingWindowHours:   12,
			CandidateWindowHours: 24,
			MaxDurationHours:     72,
			CloseIntervalMinutes: 60,
		},
		Sessions: SessionsConfig{
			Max:        256,
			TTLMinutes: 60,
		},
		DataDir:  "data",
		LogLevel: "info",
	}
}

// Validate checks value ranges and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	switch c.LLM.Provider {
	case "ollama", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q not one of ollama, openai, anthropic", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.Episodes.LinkingWindowHours <= 0 {
		errs = append(errs, errors.New("episodes.linking_window_hours must be positive"))
	}
	if c.Episodes.CandidateWindowHours < c.Episodes.LinkingWindowHours {
		errs = append(errs, errors.New("episodes.candidate_window_hours must be at least linking_window_hours"))
	}
	if c.Episodes.MaxDurationHours <= 0 {
		errs = append(errs, errors.New("episodes.max_duration_hours must be positive"))
	}
	if c.Episodes.CloseIntervalMinutes < 0 {
		errs = append(errs, errors.New("episodes.close_interval_minutes must not be negative"))
	}
	if c.Sessions.Max <= 0 {
		errs = append(errs, errors.New("sessions.max must be positive"))
	}
	if c.Sessions.TTLMinutes <= 0 {
		errs = append(errs, errors.New("sessions.ttl_minutes must be positive"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
