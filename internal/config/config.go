// Package config loads ragsearch configuration from defaults, YAML files and
// the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/ragsearch/internal/logging"
	"github.com/Aman-CERP/ragsearch/internal/registry"
	"github.com/Aman-CERP/ragsearch/internal/search"
	"github.com/Aman-CERP/ragsearch/internal/store"
	"github.com/Aman-CERP/ragsearch/internal/vector"
)

// ProjectConfigName is the per-project configuration file.
const ProjectConfigName = ".ragsearch.yaml"

// Config is the complete ragsearch configuration.
type Config struct {
	Version int                 `yaml:"version" json:"version"`
	Store   StoreConfig         `yaml:"store" json:"store"`
	Lexical store.LexicalConfig `yaml:"lexical" json:"lexical"`
	Vector  VectorConfig        `yaml:"vector" json:"vector"`
	Search  search.Config       `yaml:"search" json:"search"`
	Server  ServerConfig        `yaml:"server" json:"server"`
	Logging logging.Config      `yaml:"logging" json:"logging"`
}

// StoreConfig locates the database.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path" json:"path"`

	// DefaultModel is the embedding model searched when a query names none,
	// and the model that vectors attached directly to chunks are stored under.
	DefaultModel string `yaml:"default_model" json:"default_model"`
}

// VectorConfig configures the per-model vector indexes.
type VectorConfig struct {
	vector.Config `yaml:",inline"`

	// Workers bounds concurrent index builds. 0 uses GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`
}

// ServerConfig configures `ragsearch serve`.
type ServerConfig struct {
	// Transport is the MCP transport. Only "stdio" is supported.
	Transport string `yaml:"transport" json:"transport"`

	// MetricsAddr serves Prometheus metrics on /metrics when set.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	// Watch reloads the vector indexes when the database changes.
	Watch bool `yaml:"watch" json:"watch"`

	// WatchDebounce coalesces bursts of database writes into one reload.
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Path:         defaultDBPath(),
			DefaultModel: store.DefaultModelName,
		},
		Lexical: store.DefaultLexicalConfig(),
		Vector:  VectorConfig{Config: vector.DefaultConfig()},
		Search:  search.DefaultConfig(),
		Server: ServerConfig{
			Transport:     "stdio",
			WatchDebounce: 500 * time.Millisecond,
		},
		Logging: logging.DefaultConfig(),
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragsearch", "ragsearch.db")
	}
	return filepath.Join(home, ".ragsearch", "ragsearch.db")
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/ragsearch/config.yaml, or
// ~/.config/ragsearch/config.yaml when XDG_CONFIG_HOME is unset.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragsearch", "config.yaml")
}

// GetUserConfigDir returns the directory holding the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration for the project in dir. Later sources win:
//  1. Defaults
//  2. User config (~/.config/ragsearch/config.yaml)
//  3. Project config (.ragsearch.yaml in dir)
//  4. Environment (RAGSEARCH_*, DATABASE_URL)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if dir != "" {
		if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile builds the configuration from defaults, one explicit file and the
// environment. It backs the --config flag.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over c. Keys absent from the file keep their current
// values; unknown keys are rejected.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies RAGSEARCH_* variables. DATABASE_URL sets the
// database path when RAGSEARCH_DB_PATH is unset.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("RAGSEARCH_DB_PATH"); v != "" {
		c.Store.Path = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" {
		path, err := sqlitePathFromURL(v)
		if err != nil {
			return err
		}
		c.Store.Path = path
	}
	if v := os.Getenv("RAGSEARCH_DEFAULT_MODEL"); v != "" {
		c.Store.DefaultModel = v
	}
	if v := os.Getenv("RAGSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RAGSEARCH_LEXICAL_BACKEND"); v != "" {
		c.Lexical.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("RAGSEARCH_VECTOR_INDEX"); v != "" {
		c.Vector.Type = strings.ToLower(v)
	}
	if v := os.Getenv("RAGSEARCH_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}

	for name, dst := range map[string]*float64{
		"RAGSEARCH_TEXT_WEIGHT":   &c.Search.DefaultWeights.Text,
		"RAGSEARCH_VECTOR_WEIGHT": &c.Search.DefaultWeights.Vector,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", name, v)
		}
		*dst = f
	}
	return nil
}

// sqlitePathFromURL accepts sqlite://path, sqlite:path, file:path or a bare
// path. Other schemes name databases ragsearch cannot open.
func sqlitePathFromURL(raw string) (string, error) {
	for _, prefix := range []string{"sqlite://", "sqlite3://", "sqlite:", "file:"} {
		if strings.HasPrefix(raw, prefix) {
			path := strings.TrimPrefix(raw, prefix)
			if i := strings.IndexByte(path, '?'); i >= 0 {
				path = path[:i]
			}
			return path, nil
		}
	}
	if i := strings.Index(raw, "://"); i > 0 {
		return "", fmt.Errorf("DATABASE_URL scheme %q is not supported; use a SQLite path", raw[:i])
	}
	return raw, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	w := c.Search.DefaultWeights
	for name, v := range map[string]float64{"text": w.Text, "vector": w.Vector} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("search.weights.%s must be finite and >= 0, got %v", name, v)
		}
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) must be >= search.default_limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.OverFetch < 1 {
		return fmt.Errorf("search.over_fetch must be >= 1, got %d", c.Search.OverFetch)
	}
	if c.Search.TextTimeout < 0 || c.Search.VectorTimeout < 0 {
		return fmt.Errorf("search timeouts must not be negative")
	}

	switch c.Lexical.Backend {
	case store.BackendSQLite, store.BackendBleve:
	default:
		return fmt.Errorf("lexical.backend must be 'sqlite' or 'bleve', got %q", c.Lexical.Backend)
	}
	if c.Lexical.BodyWeight < 0 || c.Lexical.DescriptionWeight < 0 {
		return fmt.Errorf("lexical column weights must not be negative")
	}

	switch c.Vector.Type {
	case vector.TypeHNSW, vector.TypeIVF, vector.TypeFlat:
	default:
		return fmt.Errorf("vector.type must be 'hnsw', 'ivf' or 'flat', got %q", c.Vector.Type)
	}
	if c.Vector.Workers < 0 {
		return fmt.Errorf("vector.workers must not be negative, got %d", c.Vector.Workers)
	}

	if !strings.EqualFold(c.Server.Transport, "stdio") {
		return fmt.Errorf("server.transport must be 'stdio', got %q", c.Server.Transport)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn' or 'error', got %q", c.Logging.Level)
	}
	return nil
}

// StoreConfig returns the settings store.Open takes.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Path:         c.Store.Path,
		DefaultModel: c.Store.DefaultModel,
		Lexical:      c.Lexical,
	}
}

// RegistryConfig returns the settings registry.New takes.
func (c *Config) RegistryConfig() registry.Config {
	return registry.Config{
		Index:        c.Vector.Config,
		DefaultModel: c.Store.DefaultModel,
		Workers:      c.Vector.Workers,
	}
}

// WriteYAML writes the configuration to path, creating its directory.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir to the nearest directory holding a
// .git directory or a project config. It returns startDir when none is found.
func FindProjectRoot(startDir string) (string, error) {
	if startDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		startDir = wd
	}
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", startDir, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", abs, err)
	}

	for dir := abs; ; {
		if dirExists(filepath.Join(dir, ".git")) || fileExists(filepath.Join(dir, ProjectConfigName)) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
