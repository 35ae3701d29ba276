package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloudeng.io/errors"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address used by `serve`.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone that decides which calendar day
	// "today" is. Exported events are floating dates and carry no zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DateLayout is the Go time layout used to parse and print dates on
	// the command line and in the HTTP API.
	DateLayout string `yaml:"date_layout" json:"date_layout"`

	// ExportDir is where exports land when no explicit output path is given.
	ExportDir string `yaml:"export_dir" json:"export_dir"`

	// OpenAfterExport asks the OS to open each exported file with its
	// default application.
	OpenAfterExport bool `yaml:"open_after_export" json:"open_after_export"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// TodayRefresh is a cron-style schedule that advances "today" in
	// long-running views (watch). Defaults to midnight.
	TodayRefresh string `yaml:"today_refresh" json:"today_refresh"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultDateLayout   = "2006-01-02"
	defaultExportDir    = "."
	defaultLogLevel     = "info"
	defaultTodayRefresh = "0 0 * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		Timezone:        "Local",
		DateLayout:      defaultDateLayout,
		ExportDir:       defaultExportDir,
		OpenAfterExport: false,
		LogLevel:        defaultLogLevel,
		TodayRefresh:    defaultTodayRefresh,
		BasicAuth:       nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.DateLayout == "" {
		c.DateLayout = defaultDateLayout
	}
	if c.ExportDir == "" {
		c.ExportDir = defaultExportDir
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.TodayRefresh == "" {
		c.TodayRefresh = defaultTodayRefresh
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	errs := &errors.M{}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs.Append(fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.TodayRefresh); err != nil {
		errs.Append(fmt.Errorf("today_refresh %q: %w", c.TodayRefresh, err))
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		errs.Append(errors.New("basic_auth: username and password must both be set"))
	}
	return errs.Err()
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ParseDate parses s with DateLayout in the configured timezone.
func (c *Config) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(c.DateLayout, s, c.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected layout %s: %w", s, c.DateLayout, err)
	}
	return t, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".dayscounter-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
