package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/photo-dedup/internal/constants"
)

// ErrConfiguration marks invalid settings: resolution, threshold, backend or
// mixed-resolution clustering input.
var ErrConfiguration = errors.New("configuration error")

// Cache backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
)

// AppName names the per-user config and cache directories.
const AppName = "photo-dedup"

type Config struct {
	Scan     ScanConfig     `yaml:",inline"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	MariaDB  MariaDBConfig  `yaml:"mariadb"`
	Web      WebConfig      `yaml:"web"`

	// Source is the YAML file the config was read from, empty when none was found
	Source string `yaml:"-"`
}

type ScanConfig struct {
	GridSize       int      `yaml:"grid_size"`
	Threshold      int      `yaml:"threshold"`
	Workers        int      `yaml:"workers"`
	IgnorePrefixes []string `yaml:"ignore_prefixes"`
}

type CacheConfig struct {
	Backend string `yaml:"backend"` // sqlite, postgres or mariadb; empty picks one from the environment
	Path    string `yaml:"path"`    // SQLite file
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type MariaDBConfig struct {
	DSN          string `yaml:"dsn"` // e.g. dedup:dedup@tcp(mariadb:3306)/dedup
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			GridSize:  constants.DefaultGridSize,
			Threshold: constants.DefaultThreshold,
			Workers:   runtime.NumCPU(),
		},
		Cache: CacheConfig{
			Path: DefaultCachePath(),
		},
		Database: DatabaseConfig{
			MaxOpenConns: constants.DefaultMaxOpenConns,
			MaxIdleConns: constants.DefaultMaxIdleConns,
		},
		MariaDB: MariaDBConfig{
			MaxOpenConns: constants.DefaultMaxOpenConns,
			MaxIdleConns: constants.DefaultMaxIdleConns,
		},
		Web: WebConfig{
			Host: constants.DefaultWebHost,
			Port: constants.DefaultWebPort,
		},
	}
}

// DefaultCachePath returns the SQLite cache location under the user cache directory.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppName, "cache.db")
}

// DefaultConfigPath returns the YAML config location under the user config directory.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName, "config.yaml")
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envStrictInt parses an integer setting that must not be silently replaced.
func envStrictInt(key string, current int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return current, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrConfiguration, key, s)
	}
	return n, nil
}

func envString(key string, current string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return current
}

// envList splits a comma-separated variable, dropping blank entries.
func envList(key string, current []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return current
	}
	var out []string
	for item := range strings.SplitSeq(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load builds the configuration from defaults, the YAML file and the environment,
// in that order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("PHOTO_DEDUP_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path != "" {
		if err := cfg.loadFile(path, explicit); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.resolveBackend()

	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("%w: reading %s: %w", ErrConfiguration, path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parsing %s: %w", ErrConfiguration, path, err)
	}
	c.Source = path
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Scan.GridSize, err = envStrictInt("PHOTO_DEDUP_GRID_SIZE", c.Scan.GridSize); err != nil {
		return err
	}
	if c.Scan.Threshold, err = envStrictInt("PHOTO_DEDUP_THRESHOLD", c.Scan.Threshold); err != nil {
		return err
	}
	c.Scan.Workers = envInt("PHOTO_DEDUP_WORKERS", c.Scan.Workers)

	c.Cache.Backend = envString("PHOTO_DEDUP_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Path = envString("PHOTO_DEDUP_CACHE_PATH", c.Cache.Path)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.MariaDB.DSN = envString("MARIADB_DSN", c.MariaDB.DSN)
	c.MariaDB.MaxOpenConns = envInt("MARIADB_MAX_OPEN_CONNS", c.MariaDB.MaxOpenConns)
	c.MariaDB.MaxIdleConns = envInt("MARIADB_MAX_IDLE_CONNS", c.MariaDB.MaxIdleConns)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	c.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", c.Web.AllowedOrigins)
	return nil
}

// resolveBackend picks a backend when none was configured: a PostgreSQL URL
// wins over a MariaDB DSN, and SQLite is the fallback.
func (c *Config) resolveBackend() {
	if c.Cache.Backend != "" {
		c.Cache.Backend = strings.ToLower(c.Cache.Backend)
		return
	}
	switch {
	case c.Database.URL != "":
		c.Cache.Backend = BackendPostgres
	case c.MariaDB.DSN != "":
		c.Cache.Backend = BackendMariaDB
	default:
		c.Cache.Backend = BackendSQLite
	}
}

// Validate checks the scan settings and the selected backend.
func (c *Config) Validate() error {
	if err := ValidateScan(c.Scan.GridSize, c.Scan.Threshold); err != nil {
		return err
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrConfiguration, c.Scan.Workers)
	}

	switch c.Cache.Backend {
	case BackendSQLite:
		if c.Cache.Path == "" {
			return fmt.Errorf("%w: sqlite backend requires a cache path", ErrConfiguration)
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("%w: postgres backend requires DATABASE_URL", ErrConfiguration)
		}
	case BackendMariaDB:
		if c.MariaDB.DSN == "" {
			return fmt.Errorf("%w: mariadb backend requires MARIADB_DSN", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrConfiguration, c.Cache.Backend)
	}
	return nil
}

// ValidateScan checks a grid size and threshold pair.
func ValidateScan(gridSize, threshold int) error {
	if gridSize < constants.MinGridSize || gridSize > constants.MaxGridSize {
		return fmt.Errorf("%w: grid size must be between %d and %d, got %d",
			ErrConfiguration, constants.MinGridSize, constants.MaxGridSize, gridSize)
	}
	if threshold < 0 || threshold > gridSize*gridSize {
		return fmt.Errorf("%w: threshold must be between 0 and %d, got %d",
			ErrConfiguration, gridSize*gridSize, threshold)
	}
	return nil
}

// RedactDSN hides the password of a connection URL or DSN.
func RedactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	userinfo := dsn[:at]
	colon := strings.LastIndex(userinfo, ":")
	if colon < 0 || strings.HasPrefix(userinfo[colon+1:], "//") {
		return dsn
	}
	return userinfo[:colon+1] + "****" + dsn[at:]
}
