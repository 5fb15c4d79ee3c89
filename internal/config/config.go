// Package config loads and validates portwarden configuration. Settings
// come from defaults, an optional YAML file, and PORTWARDEN_* environment
// variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mfolkes/portwarden/internal/scanning"
	"github.com/mfolkes/portwarden/internal/store"
)

// Config represents the complete portwarden configuration
type Config struct {
	// Daemon configuration
	Daemon DaemonConfig `yaml:"daemon" json:"daemon"`

	// Database configuration
	Database store.Config `yaml:"database" json:"database"`

	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// Monitor configuration
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// Notification configuration
	Notifications NotificationsConfig `yaml:"notifications" json:"notifications"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DaemonConfig holds daemon-specific settings
type DaemonConfig struct {
	// PID file location
	PIDFile string `yaml:"pid_file" json:"pid_file"`

	// Working directory
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// Enable daemon mode (fork to background)
	Daemonize bool `yaml:"daemonize" json:"daemonize"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ScanningConfig holds scan settings shared by every scan the daemon runs
type ScanningConfig struct {
	// Per-probe connect and read timeout
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`

	// Maximum concurrent probes within one scan
	MaxConcurrentProbes int `yaml:"max_concurrent_probes" json:"max_concurrent_probes"`

	// Ports to scan: "default", "22,80,443", "1-1000", or a mix
	Ports string `yaml:"ports" json:"ports"`
}

// MonitorConfig holds the periodic cycle settings
type MonitorConfig struct {
	// Interval between monitoring cycles
	Interval time.Duration `yaml:"interval" json:"interval"`

	// StopTimeout bounds the wait for an in-flight cycle on shutdown
	StopTimeout time.Duration `yaml:"stop_timeout" json:"stop_timeout"`
}

// NotificationsConfig holds notification sink settings
type NotificationsConfig struct {
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	// Enable Telegram notifications
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Bot API token
	Token string `yaml:"token" json:"token"`

	// Destination chat ID
	ChatID string `yaml:"chat_id" json:"chat_id"`
}

// APIConfig holds API server settings
type APIConfig struct {
	// Enable API server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// Enable TLS
	TLS TLSConfig `yaml:"tls" json:"tls"`

	// API key for authentication (empty disables auth)
	APIKey string `yaml:"api_key" json:"api_key"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`

	// Request timeout
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Maximum request size
	MaxRequestSize int64 `yaml:"max_request_size" json:"max_request_size"`
}

// TLSConfig holds TLS settings
type TLSConfig struct {
	// Enable TLS
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Certificate file path
	CertFile string `yaml:"cert_file" json:"cert_file"`

	// Private key file path
	KeyFile string `yaml:"key_file" json:"key_file"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	// Enable CORS
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Allowed origins
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	// Allowed methods
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`

	// Allowed headers
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Enable request logging for API
	RequestLogging bool `yaml:"request_logging" json:"request_logging"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			PIDFile:         "/var/run/portwarden.pid",
			WorkDir:         "/var/lib/portwarden",
			Daemonize:       false,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: store.DefaultConfig(),
		Scanning: ScanningConfig{
			ProbeTimeout:        2 * time.Second,
			MaxConcurrentProbes: 50,
			Ports:               "default",
		},
		Monitor: MonitorConfig{
			Interval:    300 * time.Second,
			StopTimeout: 30 * time.Second,
		},
		Notifications: NotificationsConfig{
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		API: APIConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1",
			Port:       8080,
			TLS: TLSConfig{
				Enabled: false,
			},
			APIKey: "",
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
			},
			RequestTimeout: 30 * time.Second,
			MaxRequestSize: 1024 * 1024, // 1MB
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			Output:         "stdout",
			RequestLogging: true,
		},
	}
}

// Load loads configuration from a file, overlaying defaults and applying
// PORTWARDEN_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil, fmt.Errorf("failed to read config file: %w", readErr)
			}
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// applyEnvOverrides applies PORTWARDEN_* environment variables on top of
// file and default values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORTWARDEN_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("PORTWARDEN_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("PORTWARDEN_DB_NAME"); v != "" {
		c.Database.Database = v
	}
	if v := os.Getenv("PORTWARDEN_DB_USER"); v != "" {
		c.Database.Username = v
	}
	if v := os.Getenv("PORTWARDEN_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("PORTWARDEN_TELEGRAM_TOKEN"); v != "" {
		c.Notifications.Telegram.Token = v
		c.Notifications.Telegram.Enabled = true
	}
	if v := os.Getenv("PORTWARDEN_TELEGRAM_CHAT_ID"); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv("PORTWARDEN_API_KEY"); v != "" {
		c.API.APIKey = v
	}
	if v := os.Getenv("PORTWARDEN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PORTWARDEN_MONITOR_INTERVAL"); v != "" {
		if interval, err := time.ParseDuration(v); err == nil {
			c.Monitor.Interval = interval
		}
	}
	if v := os.Getenv("PORTWARDEN_PORTS"); v != "" {
		c.Scanning.Ports = v
	}
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	if c.Scanning.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.Scanning.MaxConcurrentProbes <= 0 {
		return fmt.Errorf("max concurrent probes must be positive")
	}
	if _, err := scanning.ParsePorts(c.Scanning.Ports); err != nil {
		return fmt.Errorf("invalid port specification: %w", err)
	}

	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}

	if c.Notifications.Telegram.Enabled {
		if c.Notifications.Telegram.Token == "" {
			return fmt.Errorf("telegram token is required when telegram is enabled")
		}
		if c.Notifications.Telegram.ChatID == "" {
			return fmt.Errorf("telegram chat ID is required when telegram is enabled")
		}
	}

	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			return fmt.Errorf("API port must be between 1 and 65535")
		}
		if c.API.ListenAddr == "" {
			return fmt.Errorf("API listen address is required when API is enabled")
		}
	}

	if c.API.TLS.Enabled {
		if c.API.TLS.CertFile == "" {
			return fmt.Errorf("TLS certificate file is required when TLS is enabled")
		}
		if c.API.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key file is required when TLS is enabled")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// ScanConfig builds the scanning configuration used for every scan.
func (c *Config) ScanConfig() (scanning.ScanConfig, error) {
	ports, err := scanning.ParsePorts(c.Scanning.Ports)
	if err != nil {
		return scanning.ScanConfig{}, err
	}
	return scanning.ScanConfig{
		Timeout:             c.Scanning.ProbeTimeout,
		MaxConcurrentProbes: c.Scanning.MaxConcurrentProbes,
		Ports:               ports,
	}, nil
}

// GetDatabaseConfig returns the database configuration
func (c *Config) GetDatabaseConfig() store.Config {
	return c.Database
}

// IsDaemonMode returns true if running in daemon mode
func (c *Config) IsDaemonMode() bool {
	return c.Daemon.Daemonize
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}

// IsAPIEnabled returns true if API server is enabled
func (c *Config) IsAPIEnabled() bool {
	return c.API.Enabled
}
