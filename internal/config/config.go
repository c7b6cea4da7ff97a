package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cloudsync/todocal/internal/logging"
	"github.com/cloudsync/todocal/internal/tokenstore"
)

//go:embed config.example.yaml
var exampleConf []byte

// Config is the complete todocal configuration.
type Config struct {
	Google   GoogleConfig   `yaml:"google" toml:"google"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Calendar CalendarConfig `yaml:"calendar" toml:"calendar"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// GoogleConfig holds the OAuth client and identity provider settings.
type GoogleConfig struct {
	ClientID       string `yaml:"client_id" toml:"client_id"`
	ClientSecret   string `yaml:"client_secret" toml:"client_secret"`
	ListenAddr     string `yaml:"listen_addr" toml:"listen_addr"`
	LoadAttempts   int    `yaml:"load_attempts" toml:"load_attempts"`
	LoadIntervalMS int    `yaml:"load_interval_ms" toml:"load_interval_ms"`
}

// LoadInterval returns the identity provider polling interval.
func (g GoogleConfig) LoadInterval() time.Duration {
	return time.Duration(g.LoadIntervalMS) * time.Millisecond
}

// StorageConfig selects where the session is persisted.
type StorageConfig struct {
	Type          string       `yaml:"type" toml:"type"`
	Path          string       `yaml:"path" toml:"path"`
	EncryptionKey string       `yaml:"encryption_key" toml:"encryption_key"`
	Valkey        ValkeyConfig `yaml:"valkey" toml:"valkey"`
}

// ValkeyConfig configures the valkey storage backend.
type ValkeyConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	Password  string `yaml:"password" toml:"password"`
	DB        int    `yaml:"db" toml:"db"`
	KeyPrefix string `yaml:"key_prefix" toml:"key_prefix"`
}

// CalendarConfig tunes the calendar gateway.
type CalendarConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig configures the metrics server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &cfg
}

// DefaultPath is $XDG_CONFIG_HOME/todocal/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "todocal", "config.yaml")
}

// Load reads path on top of the defaults and applies the environment. An
// empty path means DefaultPath, which may be missing; an explicit path
// must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.decodeFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file extension %q (use .yaml or .toml)", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("GOOGLE_CLIENT_ID", &c.Google.ClientID)
	str("GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret)
	str("TODOCAL_LISTEN_ADDR", &c.Google.ListenAddr)
	num("TODOCAL_LOAD_ATTEMPTS", &c.Google.LoadAttempts)
	num("TODOCAL_LOAD_INTERVAL_MS", &c.Google.LoadIntervalMS)

	str("TODOCAL_STORAGE_TYPE", &c.Storage.Type)
	str("TODOCAL_STORAGE_PATH", &c.Storage.Path)
	str("TODOCAL_ENCRYPTION_KEY", &c.Storage.EncryptionKey)
	str("VALKEY_ADDR", &c.Storage.Valkey.Addr)
	str("VALKEY_PASSWORD", &c.Storage.Valkey.Password)
	num("VALKEY_DB", &c.Storage.Valkey.DB)
	str("VALKEY_KEY_PREFIX", &c.Storage.Valkey.KeyPrefix)

	if v, ok := lookup("TODOCAL_CALENDAR_RPS"); ok && v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TODOCAL_CALENDAR_RPS: %w", err))
		} else {
			c.Calendar.RequestsPerSecond = rps
		}
	}

	str("TODOCAL_LOG_LEVEL", &c.Log.Level)
	str("TODOCAL_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("METRICS_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("METRICS_ENABLED: %w", err))
		} else {
			c.Metrics.Enabled = enabled
		}
	}
	str("METRICS_ADDR", &c.Metrics.Addr)

	return errors.Join(errs...)
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.Google.ListenAddr == "" {
		c.Google.ListenAddr = "127.0.0.1:0"
	}
	if c.Google.LoadAttempts <= 0 {
		c.Google.LoadAttempts = 20
	}
	if c.Google.LoadIntervalMS <= 0 {
		c.Google.LoadIntervalMS = 250
	}
	if c.Storage.Type == "" {
		c.Storage.Type = tokenstore.BackendFile
	}
	if c.Storage.Valkey.KeyPrefix == "" {
		c.Storage.Valkey.KeyPrefix = "todocal:"
	}
	if c.Calendar.Burst <= 0 {
		c.Calendar.Burst = 1
	}
	if c.Log.Format == "" {
		c.Log.Format = logging.FormatText
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate reports every invalid setting. requireClient is false for
// commands that never contact Google.
func (c *Config) Validate(requireClient bool) error {
	var errs []error

	if requireClient && c.Google.ClientID == "" {
		errs = append(errs, errors.New("google.client_id is required (or set GOOGLE_CLIENT_ID)"))
	}

	switch c.Storage.Type {
	case tokenstore.BackendFile, tokenstore.BackendMemory, tokenstore.BackendBadger, tokenstore.BackendSQLite:
	case tokenstore.BackendValkey:
		if c.Storage.Valkey.Addr == "" {
			errs = append(errs, errors.New("storage.valkey.addr is required for the valkey backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type %q is not one of file, memory, badger, sqlite, valkey", c.Storage.Type))
	}

	if _, err := c.EncryptionKey(); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != logging.FormatText && c.Log.Format != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Calendar.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("calendar.requests_per_second must not be negative"))
	}

	return errors.Join(errs...)
}

// EncryptionKey decodes the storage encryption key. No key yields nil.
func (c *Config) EncryptionKey() ([]byte, error) {
	key, err := tokenstore.KeyFromBase64(c.Storage.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("storage.encryption_key: %w", err)
	}
	return key, nil
}

// Backend converts the storage settings for tokenstore.OpenBackend.
func (c *Config) Backend() tokenstore.BackendConfig {
	return tokenstore.BackendConfig{
		Type: c.Storage.Type,
		Path: c.Storage.Path,
		Valkey: tokenstore.ValkeyConfig{
			Addr:      c.Storage.Valkey.Addr,
			Password:  c.Storage.Valkey.Password,
			DB:        c.Storage.Valkey.DB,
			KeyPrefix: c.Storage.Valkey.KeyPrefix,
		},
	}
}

// WriteExample writes the annotated example configuration to path. It
// refuses to overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, exampleConf, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
