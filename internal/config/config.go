// Package config manages the console's persisted settings: a
// netmig-config JSON file discovered in $HOME or the working directory,
// with NETMIG_* environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"netmig/internal/observability"
)

// Keys understood by the config file, Set, and the NETMIG_* environment.
const (
	KeyEngineURL      = "engine_url"
	KeyToken          = "token"
	KeyStream         = "stream"
	KeyPollInterval   = "poll_interval_seconds"
	KeyMaxWait        = "max_wait_seconds"
	KeyFleetWorkers   = "fleet_workers"
	KeyRequestTimeout = "request_timeout_seconds"
	KeyObservability  = "observability_config"
)

const (
	defaultEngineURL      = "http://127.0.0.1:8080"
	defaultPollSeconds    = 2
	defaultMaxWaitSeconds = 600
	defaultFleetWorkers   = 4
	defaultTimeoutSeconds = 30
)

// Keys lists every known configuration key, in display order.
func Keys() []string {
	return []string{
		KeyEngineURL,
		KeyToken,
		KeyStream,
		KeyPollInterval,
		KeyMaxWait,
		KeyFleetWorkers,
		KeyRequestTimeout,
		KeyObservability,
	}
}

// Manager handles configuration discovery, retrieval, and persistence.
type Manager struct {
	v *viper.Viper
}

// NewManager loads configuration from netmig-config.json ($HOME first,
// then the working directory). A missing file is not an error; defaults
// and environment overrides still apply.
func NewManager() (*Manager, error) {
	v := viper.New()
	v.SetConfigName("netmig-config")
	v.SetConfigType("json")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NETMIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyEngineURL, defaultEngineURL)
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyStream, true)
	v.SetDefault(KeyPollInterval, defaultPollSeconds)
	v.SetDefault(KeyMaxWait, defaultMaxWaitSeconds)
	v.SetDefault(KeyFleetWorkers, defaultFleetWorkers)
	v.SetDefault(KeyRequestTimeout, defaultTimeoutSeconds)
	v.SetDefault(KeyObservability, "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return &Manager{v: v}, nil
}

// Source reports where the settings came from.
func (m *Manager) Source() string {
	if path := m.v.ConfigFileUsed(); path != "" {
		return path
	}
	return "defaults"
}

// EngineURL returns the job engine base URL.
func (m *Manager) EngineURL() string {
	return m.v.GetString(KeyEngineURL)
}

// Token returns the engine API token.
func (m *Manager) Token() string {
	return m.v.GetString(KeyToken)
}

// StreamEnabled reports whether watchers should follow the SSE stream.
// When false, watchers poll instead.
func (m *Manager) StreamEnabled() bool {
	return m.v.GetBool(KeyStream)
}

// PollInterval returns the poll-mode fetch interval.
func (m *Manager) PollInterval() time.Duration {
	return m.seconds(KeyPollInterval, defaultPollSeconds)
}

// MaxWait returns how long a poll-mode watch runs before giving up.
func (m *Manager) MaxWait() time.Duration {
	return m.seconds(KeyMaxWait, defaultMaxWaitSeconds)
}

// FleetWorkers returns the parallelism cap for batch controller audits.
func (m *Manager) FleetWorkers() int {
	if n := m.v.GetInt(KeyFleetWorkers); n > 0 {
		return n
	}
	return defaultFleetWorkers
}

// RequestTimeout returns the per-request timeout for engine calls.
func (m *Manager) RequestTimeout() time.Duration {
	return m.seconds(KeyRequestTimeout, defaultTimeoutSeconds)
}

// ObservabilityPath returns the observability YAML path, empty for the
// default location.
func (m *Manager) ObservabilityPath() string {
	return m.v.GetString(KeyObservability)
}

func (m *Manager) seconds(key string, fallback int) time.Duration {
	n := m.v.GetInt(key)
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// Set parses and stores one setting, then persists the file.
func (m *Manager) Set(key, raw string) error {
	switch key {
	case KeyEngineURL, KeyToken, KeyObservability:
		m.v.Set(key, raw)
	case KeyStream:
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", key, raw)
		}
		m.v.Set(key, enabled)
	case KeyPollInterval, KeyMaxWait, KeyFleetWorkers, KeyRequestTimeout:
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s expects a positive integer, got %q", key, raw)
		}
		m.v.Set(key, n)
	default:
		return fmt.Errorf("unknown config key %q (known keys: %s)", key, strings.Join(Keys(), ", "))
	}

	return m.save()
}

// save writes the full settings back to the file they were loaded from,
// or to $HOME/netmig-config.json when none was found.
func (m *Manager) save() error {
	path := m.v.ConfigFileUsed()
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, "netmig-config.json")
	}

	if err := m.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Entry is one key/value row for display.
type Entry struct {
	Key   string
	Value string
}

// Entries returns every setting in display order, with the token masked.
func (m *Manager) Entries() []Entry {
	token := m.Token()
	if token != "" {
		token = observability.SanitizeToken(token)
	}

	return []Entry{
		{KeyEngineURL, m.EngineURL()},
		{KeyToken, token},
		{KeyStream, strconv.FormatBool(m.StreamEnabled())},
		{KeyPollInterval, strconv.Itoa(int(m.PollInterval() / time.Second))},
		{KeyMaxWait, strconv.Itoa(int(m.MaxWait() / time.Second))},
		{KeyFleetWorkers, strconv.Itoa(m.FleetWorkers())},
		{KeyRequestTimeout, strconv.Itoa(int(m.RequestTimeout() / time.Second))},
		{KeyObservability, m.ObservabilityPath()},
	}
}
