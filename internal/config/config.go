// Package config provides configuration management for the input stream tools.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Transports
const (
	TransportTCP = "tcp"
	TransportWS  = "ws"
)

// Config represents the application configuration
type Config struct {
	Host    HostConfig    `toml:"host"`
	Crypto  CryptoConfig  `toml:"crypto"`
	Stream  StreamConfig  `toml:"stream"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

// HostConfig describes the streaming host
type HostConfig struct {
	// Address is the host name or IP of the streaming host
	Address string `toml:"address"`

	// Port is the input stream port (default: 35043)
	Port int `toml:"port"`

	// Transport is "tcp" or "ws"
	Transport string `toml:"transport"`

	// WSPath is the WebSocket endpoint path when Transport is "ws"
	WSPath string `toml:"ws_path"`

	// Generation is the host's negotiated major version
	Generation int `toml:"generation"`

	// ConnectTimeoutMS bounds connection setup
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`

	// SendBuffer sets the socket send buffer size when positive
	SendBuffer int `toml:"send_buffer"`
}

// CryptoConfig holds the session key and IV as hex strings
type CryptoConfig struct {
	Key string `toml:"key"`
	IV  string `toml:"iv"`
}

// StreamConfig tunes the client-side queue
type StreamConfig struct {
	QueueCapacity int `toml:"queue_capacity"`
}

// LogConfig selects the log level
type LogConfig struct {
	Level string `toml:"level"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host: HostConfig{
			Address:          "127.0.0.1",
			Port:             35043,
			Transport:        TransportTCP,
			WSPath:           "/input",
			Generation:       7,
			ConnectTimeoutMS: 5000,
		},
		Crypto: CryptoConfig{
			Key: "00000000000000000000000000000000",
			IV:  "00000000000000000000000000000000",
		},
		Stream: StreamConfig{
			QueueCapacity: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
		},
	}
}

// ConnectTimeout returns the connect timeout as a duration
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Host.ConnectTimeoutMS) * time.Millisecond
}

// KeyBytes decodes the session key
func (c *Config) KeyBytes() ([]byte, error) {
	return hex.DecodeString(c.Crypto.Key)
}

// IVBytes decodes the session IV
func (c *Config) IVBytes() ([]byte, error) {
	return hex.DecodeString(c.Crypto.IV)
}

// Validate checks the configuration for values the stream cannot use.
func (c *Config) Validate() error {
	if c.Host.Address == "" {
		return fmt.Errorf("%w: host.address is required", ErrInvalidConfig)
	}
	if c.Host.Port < 1 || c.Host.Port > 65535 {
		return fmt.Errorf("%w: host.port %d out of range", ErrInvalidConfig, c.Host.Port)
	}
	switch c.Host.Transport {
	case TransportTCP, TransportWS:
	default:
		return fmt.Errorf("%w: host.transport must be %q or %q, got %q",
			ErrInvalidConfig, TransportTCP, TransportWS, c.Host.Transport)
	}
	if c.Host.ConnectTimeoutMS < 0 {
		return fmt.Errorf("%w: host.connect_timeout_ms must not be negative", ErrInvalidConfig)
	}

	key, err := c.KeyBytes()
	if err != nil {
		return fmt.Errorf("%w: crypto.key: %v", ErrInvalidConfig, err)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: crypto.key must be 16, 24 or 32 bytes, got %d", ErrInvalidConfig, len(key))
	}
	iv, err := c.IVBytes()
	if err != nil {
		return fmt.Errorf("%w: crypto.iv: %v", ErrInvalidConfig, err)
	}
	if len(iv) != 16 {
		return fmt.Errorf("%w: crypto.iv must be 16 bytes, got %d", ErrInvalidConfig, len(iv))
	}

	if c.Stream.QueueCapacity < 1 {
		return fmt.Errorf("%w: stream.queue_capacity must be positive", ErrInvalidConfig)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("%w: metrics.listen_addr is required when metrics are enabled", ErrInvalidConfig)
	}
	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
}

// NewManager creates a configuration manager for path. An empty path selects
// the per-user default location.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}, nil
}

// DefaultPath returns the per-user configuration file path
func DefaultPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "inputlink")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "inputlink")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "inputlink")
	}

	return filepath.Join(configDir, "config.toml"), nil
}

// Path returns the file the manager reads and writes
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the configuration from disk over the defaults and validates it.
// A missing file leaves the defaults in place.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(m.configPath, cfg)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", m.configPath, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), m.configPath)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config = cfg
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m.config); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.configPath, buf.Bytes(), 0600)
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Set replaces the configuration
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config
	m.mu.Unlock()
}
