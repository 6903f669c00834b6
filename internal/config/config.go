package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Process  ProcessConfig  `yaml:"process" json:"process"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string    `yaml:"host" json:"host"`
	Port            int       `yaml:"port" json:"port"`
	ShutdownTimeout string    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	TLS             TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig contains TLS/HTTPS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path           string `yaml:"path" json:"path"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig limits API requests per client IP
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
}

// StorageConfig contains storage paths
type StorageConfig struct {
	ConfigDir string `yaml:"config_dir" json:"config_dir"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
	LogDir    string `yaml:"log_dir" json:"log_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	AddSource  bool   `yaml:"add_source" json:"add_source"`
}

// ProcessConfig contains supervision settings shared by all servers
type ProcessConfig struct {
	StopTimeout string `yaml:"stop_timeout" json:"stop_timeout"`
	// OutputHistoryLines caps the console replay buffer; 0 keeps everything.
	OutputHistoryLines int              `yaml:"output_history_lines" json:"output_history_lines"`
	ConsoleLog         ConsoleLogConfig `yaml:"console_log" json:"console_log"`
}

// ConsoleLogConfig controls the per-server console log files
type ConsoleLogConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	MaxSize    int  `yaml:"max_size" json:"max_size"` // megabytes
	MaxBackups int  `yaml:"max_backups" json:"max_backups"`
	MaxAge     int  `yaml:"max_age" json:"max_age"` // days
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
		},
		Database: DatabaseConfig{
			Path:           "./data/serverhost.db",
			MaxConnections: 25,
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:5173"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
			},
		},
		Storage: StorageConfig{
			ConfigDir: "./configs",
			DataDir:   "./data",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Process: ProcessConfig{
			StopTimeout:        "10s",
			OutputHistoryLines: 5000,
			ConsoleLog: ConsoleLogConfig{
				Enabled:    true,
				MaxSize:    50,
				MaxBackups: 10,
				MaxAge:     14,
			},
		},
	}
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadFile(GetConfigPath())
}

// LoadFile is Load with an explicit config path. A missing file leaves the
// defaults in place.
func LoadFile(configPath string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalizeStoragePaths(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}

	if configDir := os.Getenv("CONFIG_DIR"); configDir != "" {
		c.Storage.ConfigDir = configDir
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}

	if logDir := os.Getenv("LOG_DIR"); logDir != "" {
		c.Storage.LogDir = logDir
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", c.Server.Port)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("TLS is enabled but cert_file or key_file is missing")
		}
	}

	if _, err := parsePositiveDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server shutdown_timeout: %w", err)
	}

	if _, err := parsePositiveDuration(c.Process.StopTimeout); err != nil {
		return fmt.Errorf("process stop_timeout: %w", err)
	}

	if c.Process.OutputHistoryLines < 0 {
		return fmt.Errorf("process output_history_lines must not be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	return nil
}

// StopTimeoutDuration returns the parsed process stop timeout.
func (p ProcessConfig) StopTimeoutDuration() time.Duration {
	d, err := parsePositiveDuration(p.StopTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ShutdownTimeoutDuration returns the parsed HTTP shutdown timeout.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, err := parsePositiveDuration(s.ShutdownTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func parsePositiveDuration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}

func resolveConfigPath() string {
	candidates := []string{"../configs/config.yaml", "./configs/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

// Save writes the configuration back to disk
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) normalizeStoragePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(rootDir, trimmed))
	}

	configDir := c.Storage.ConfigDir
	if strings.TrimSpace(configDir) == "" {
		configDir = baseDir
	}
	c.Storage.ConfigDir = resolvePath(configDir)

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = filepath.Join(rootDir, "data")
	}
	c.Storage.DataDir = resolvePath(c.Storage.DataDir)

	if strings.TrimSpace(c.Storage.LogDir) == "" {
		c.Storage.LogDir = filepath.Join(c.Storage.DataDir, "logs")
	}
	c.Storage.LogDir = resolvePath(c.Storage.LogDir)

	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = filepath.Join(c.Storage.DataDir, "serverhost.db")
	}
	c.Database.Path = resolvePath(c.Database.Path)
}
