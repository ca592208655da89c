package authorflow

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for an AuthorFlow server.
type Config struct {
	Name string `yaml:"name"` // Shown in page titles (default "AuthorFlow")
	Addr string `yaml:"addr"` // Listen address (default ":3000")

	Database DatabaseConfig `yaml:"database"`

	AdminPassword string `yaml:"admin_password"` // Required: login password
	SessionSecret string `yaml:"session_secret"` // Required: session encryption secret
	CookieSecure  bool   `yaml:"cookie_secure"`  // Set true for HTTPS
	Owner         string `yaml:"owner"`          // Identity stamped on posts of this instance (default "owner")

	LogLevel      string        `yaml:"log_level"`       // debug, info, warn, error (default "info")
	StaticDir     string        `yaml:"static_dir"`      // Public assets and uploads (default "public")
	PostCacheTTL  time.Duration `yaml:"post_cache_ttl"`  // Snapshot cache TTL (default 1m)
	DueSoonWindow time.Duration `yaml:"due_soon_window"` // Horizon of the due-soon query (default 24h)

	Import ImportConfig `yaml:"import"`
}

// DatabaseConfig selects the content store backend.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // "sqlite" (default) or "postgres"
	DSN          string `yaml:"dsn"`    // SQLite path or Postgres URL (default "data/authorflow.db")
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// ImportConfig tunes the analytics import.
type ImportConfig struct {
	MaxFileBytes    int64  `yaml:"max_file_bytes"`   // Per uploaded CSV (default 10MB)
	AnalysisYear    int    `yaml:"analysis_year"`    // Year for TikTok dates without one; 0 = current year
	DefaultStrategy string `yaml:"default_strategy"` // update_only (default) or create_new
	Timezone        string `yaml:"timezone"`         // IANA zone posts are scheduled in (default "Local")
}

// Location resolves Timezone. Empty and "Local" select the server's zone.
func (c ImportConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("import.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "AuthorFlow"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = driverSQLite
	}
	if c.Database.DSN == "" && c.Database.Driver == driverSQLite {
		c.Database.DSN = "data/authorflow.db"
	}
	if c.Owner == "" {
		c.Owner = "owner"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StaticDir == "" {
		c.StaticDir = "public"
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = time.Minute
	}
	if c.DueSoonWindow == 0 {
		c.DueSoonWindow = 24 * time.Hour
	}
	if c.Import.MaxFileBytes == 0 {
		c.Import.MaxFileBytes = 10 << 20
	}
	if c.Import.DefaultStrategy == "" {
		c.Import.DefaultStrategy = "update_only"
	}
	if c.Import.Timezone == "" {
		c.Import.Timezone = "Local"
	}
}

// LoadConfig reads the YAML file at path (skipped when path is empty), then
// applies AUTHORFLOW_* environment overrides and defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.setDefaults()
	if _, err := cfg.Import.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("AUTHORFLOW_NAME", &c.Name)
	setString("AUTHORFLOW_ADDR", &c.Addr)
	setString("AUTHORFLOW_DB_DRIVER", &c.Database.Driver)
	setString("AUTHORFLOW_DB_DSN", &c.Database.DSN)
	setString("AUTHORFLOW_ADMIN_PASSWORD", &c.AdminPassword)
	setString("AUTHORFLOW_SESSION_SECRET", &c.SessionSecret)
	setString("AUTHORFLOW_OWNER", &c.Owner)
	setString("AUTHORFLOW_LOG_LEVEL", &c.LogLevel)
	setString("AUTHORFLOW_STATIC_DIR", &c.StaticDir)
	setString("AUTHORFLOW_TIMEZONE", &c.Import.Timezone)

	if v := os.Getenv("AUTHORFLOW_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTHORFLOW_COOKIE_SECURE: %w", err)
		}
		c.CookieSecure = b
	}
	if v := os.Getenv("AUTHORFLOW_ANALYSIS_YEAR"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTHORFLOW_ANALYSIS_YEAR: %w", err)
		}
		c.Import.AnalysisYear = year
	}
	return nil
}

// LoadEnvFiles loads .env and .env.local into the process environment when
// present. Variables already set win.
func LoadEnvFiles(log logrus.FieldLogger) {
	var loaded []string
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			log.WithError(err).Warnf("failed to load %s", file)
			continue
		}
		loaded = append(loaded, file)
	}
	if len(loaded) > 0 {
		log.Debugf("loaded env files: %s", strings.Join(loaded, ", "))
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithLogger replaces the logger built from Config.LogLevel.
func WithLogger(l *logrus.Logger) Option {
	return func(a *App) {
		a.Log = l
	}
}

// WithClock overrides time.Now for due-soon queries and TikTok year defaults.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}
