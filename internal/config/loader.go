package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mdviewer/internal/storage"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load. They override the YAML file.
const (
	EnvConfigFile       = "MDVIEWER_CONFIG"
	EnvDataDir          = "MDVIEWER_DATA_DIR"
	EnvStorageDriver    = "MDVIEWER_STORAGE_DRIVER"
	EnvStoragePath      = "MDVIEWER_STORAGE_PATH"
	EnvLogLevel         = "MDVIEWER_LOG_LEVEL"
	EnvAPIPort          = "MDVIEWER_API_PORT"
	EnvPersistedKeys    = "MDVIEWER_PERSISTED_KEYS"
	EnvStreamNamespaces = "MDVIEWER_STREAM_NAMESPACES"
)

// DefaultConfigFile is read when EnvConfigFile is unset. A missing file is
// not an error.
const DefaultConfigFile = "mdviewer.yaml"

// Config is the host configuration.
type Config struct {
	DataDir  string        `yaml:"data_dir"`
	LogLevel string        `yaml:"log_level"`
	Storage  StorageConfig `yaml:"storage"`
	API      APIConfig     `yaml:"api"`

	// PersistedKeys overrides the store's persistence allow-list.
	PersistedKeys []string `yaml:"persisted_keys"`

	// StreamNamespaces are the event namespaces forwarded to WebSocket
	// clients.
	StreamNamespaces []string `yaml:"stream_namespaces"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Port int `yaml:"port"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DataDir:  "./data",
		LogLevel: "info",
		Storage:  StorageConfig{Driver: storage.DriverFile},
		API:      APIConfig{Port: 8080},
		StreamNamespaces: []string{
			"plugin", "plugins", "markdown", "ui", "notification",
		},
	}
}

// Loader reads the configuration from .env, a YAML file and the
// environment, in that order of increasing precedence.
type Loader struct {
	envFiles []string
	logger   *zap.Logger
}

// NewLoader creates a loader. With no envFiles it reads ".env".
func NewLoader(logger *zap.Logger, envFiles ...string) *Loader {
	return &Loader{envFiles: envFiles, logger: logger}
}

// Load builds the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := godotenv.Load(l.envFiles...); err != nil {
		l.logger.Debug("No .env file loaded", zap.Error(err))
	}

	cfg := Default()

	path := os.Getenv(EnvConfigFile)
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := l.loadFile(cfg, path, explicit); err != nil {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.logger.Info("Configuration loaded",
		zap.String("data_dir", cfg.DataDir),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("api_port", cfg.API.Port))
	return cfg, nil
}

func (l *Loader) loadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			l.logger.Debug("No config file", zap.String("path", path))
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	l.logger.Debug("Config file loaded", zap.String("path", path))
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvStorageDriver); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvAPIPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAPIPort, err)
		}
		cfg.API.Port = port
	}
	if v, ok := os.LookupEnv(EnvPersistedKeys); ok {
		cfg.PersistedKeys = splitList(v)
	}
	if v, ok := os.LookupEnv(EnvStreamNamespaces); ok {
		cfg.StreamNamespaces = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolvePaths fills in the storage path from the data directory.
func (c *Config) resolvePaths() {
	if c.Storage.Path != "" {
		return
	}
	switch c.Storage.Driver {
	case storage.DriverSQLite:
		c.Storage.Path = filepath.Join(c.DataDir, "settings.db")
	case storage.DriverFile, "":
		c.Storage.Path = filepath.Join(c.DataDir, "settings.json")
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case storage.DriverFile, storage.DriverSQLite, storage.DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", c.API.Port)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
