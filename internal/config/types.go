// internal/config/types.go
package config

import (
	"time"
)

// Config is one crawl configuration loaded from YAML. Durations are
// spelled as strings ("45s", "20m") and parsed during validation.
type Config struct {
	// Site selects the portal profile: 99acres, magicbricks or nobroker.
	Site string `yaml:"site" json:"site"`

	Search  SearchConfig  `yaml:"search" json:"search"`
	Limits  LimitsConfig  `yaml:"limits" json:"limits"`
	Browser BrowserConfig `yaml:"browser" json:"browser"`
	Pacing  PacingConfig  `yaml:"pacing" json:"pacing"`

	// Policies names the post-processing policies applied to every
	// extracted listing. nil means the site profile's default set; an
	// explicit empty list disables post-processing.
	Policies []string `yaml:"policies" json:"policies"`

	Output    OutputConfig    `yaml:"output" json:"output"`
	Dashboard DashboardConfig `yaml:"dashboard" json:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// SearchConfig describes where to look for listings.
type SearchConfig struct {
	// City is the slug used when building portal search URLs.
	City string `yaml:"city" json:"city"`

	// Localities restricts the crawl to the named localities, one crawl
	// run per locality. Ignored when URL is set.
	Localities []string `yaml:"localities" json:"localities"`

	// AllLocalities crawls the full built-in locality list for the city.
	AllLocalities bool `yaml:"all_localities" json:"all_localities"`

	// URL overrides the built search URL entirely.
	URL string `yaml:"url" json:"url"`
}

// LimitsConfig bounds a crawl run.
type LimitsConfig struct {
	// TargetListings stops the crawl once this many listings are saved.
	TargetListings int `yaml:"target_listings" json:"target_listings"`

	// MaxRounds bounds scroll, load-more and pagination advances per
	// locality.
	MaxRounds int `yaml:"max_rounds" json:"max_rounds"`

	// MaxDuration is the wall-clock budget for the whole run, e.g. "20m".
	MaxDuration string `yaml:"max_duration" json:"max_duration"`
}

// BrowserConfig holds Chrome session settings.
type BrowserConfig struct {
	Headless       bool `yaml:"headless" json:"headless"`
	ViewportWidth  int  `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int  `yaml:"viewport_height" json:"viewport_height"`

	// UserAgent pins one UA string. Empty rotates the built-in pool.
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// Proxy routes browser traffic, e.g. "http://host:3128".
	Proxy string `yaml:"proxy" json:"proxy"`

	// DisableImages skips image downloads to speed up page loads.
	DisableImages bool `yaml:"disable_images" json:"disable_images"`

	// NavTimeout bounds one page navigation, e.g. "45s".
	NavTimeout string `yaml:"nav_timeout" json:"nav_timeout"`

	// FromFile crawls a saved HTML snapshot instead of the live portal.
	// No Chrome is launched and pagination never adds content.
	FromFile string `yaml:"from_file" json:"from_file"`
}

// PacingConfig shapes how politely the crawl hits the portal.
type PacingConfig struct {
	// RatePerSecond is the starting fetch rate. The limiter adapts it
	// between MinRatePerSecond and MaxRatePerSecond as the portal
	// responds.
	RatePerSecond    float64 `yaml:"rate_per_second" json:"rate_per_second"`
	MinRatePerSecond float64 `yaml:"min_rate_per_second" json:"min_rate_per_second"`
	MaxRatePerSecond float64 `yaml:"max_rate_per_second" json:"max_rate_per_second"`
	Burst            int     `yaml:"burst" json:"burst"`

	CardDelayMin string `yaml:"card_delay_min" json:"card_delay_min"`
	CardDelayMax string `yaml:"card_delay_max" json:"card_delay_max"`
	PageDelayMin string `yaml:"page_delay_min" json:"page_delay_min"`
	PageDelayMax string `yaml:"page_delay_max" json:"page_delay_max"`

	// FlushEvery batches this many listings per sink write.
	FlushEvery int `yaml:"flush_every" json:"flush_every"`
}

// OutputConfig selects where extracted listings go.
type OutputConfig struct {
	// Directory receives the per-run report files.
	Directory string `yaml:"directory" json:"directory"`

	// Formats lists the file sinks to write: csv, json, excel.
	Formats []string `yaml:"formats" json:"formats"`

	// JSONLines writes newline-delimited JSON instead of one array.
	JSONLines bool `yaml:"json_lines" json:"json_lines"`

	// Database adds a database sink alongside the file sinks.
	Database *DatabaseConfig `yaml:"database" json:"database,omitempty"`
}

// DatabaseConfig points a crawl at a listings table.
type DatabaseConfig struct {
	// Driver is one of sqlite3, mysql, postgres, mongodb.
	Driver string `yaml:"driver" json:"driver"`

	// DSN is the connection string. For sqlite3 it is the file path.
	DSN string `yaml:"dsn" json:"dsn"`

	// Name is the database name, used by mongodb only.
	Name string `yaml:"name" json:"name"`

	// Table receives the listings (collection name for mongodb).
	Table string `yaml:"table" json:"table"`

	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// DashboardConfig configures the companion dashboard server.
type DashboardConfig struct {
	// Listen is the bind address, e.g. ":8080".
	Listen string `yaml:"listen" json:"listen"`

	// AuthToken protects write and export endpoints. Empty disables
	// authentication. Usually set via PROPERTYLENS_DASHBOARD_TOKEN.
	AuthToken string `yaml:"auth_token" json:"auth_token"`

	// DBPath is the SQLite file backing the dashboard store.
	DBPath string `yaml:"db_path" json:"db_path"`
}

// MetricsConfig configures the Prometheus endpoint for crawl runs.
type MetricsConfig struct {
	// Listen is the bind address. Empty disables the endpoint.
	Listen string `yaml:"listen" json:"listen"`
}

// LoggingConfig configures run logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// Directory receives per-run log files. Empty logs to stderr only.
	Directory string `yaml:"directory" json:"directory"`
}

// Default returns a fully populated configuration. YAML is decoded on
// top of it, so absent keys keep these values. Site is left empty and
// must come from the file.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			City: "gurgaon",
		},
		Limits: LimitsConfig{
			TargetListings: 50,
			MaxRounds:      40,
			MaxDuration:    "20m",
		},
		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			DisableImages:  true,
			NavTimeout:     "45s",
		},
		Pacing: PacingConfig{
			RatePerSecond:    0.5,
			MinRatePerSecond: 0.1,
			MaxRatePerSecond: 2,
			Burst:            1,
			CardDelayMin:     "200ms",
			CardDelayMax:     "500ms",
			PageDelayMin:     "2s",
			PageDelayMax:     "5s",
			FlushEvery:       10,
		},
		Output: OutputConfig{
			Directory: "output",
			Formats:   []string{"csv", "json"},
		},
		Dashboard: DashboardConfig{
			Listen: ":8080",
			DBPath: "propertylens.db",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Directory: "logs",
		},
	}
}

// dur assumes a string that already passed validation.
func dur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// MaxDuration returns the whole-run crawl budget, zero when unset. Runs
// spanning several localities share one deadline derived from it.
func (c *Config) MaxDuration() time.Duration {
	return dur(c.Limits.MaxDuration)
}

// NavTimeout returns the page navigation timeout, zero when unset.
func (c *Config) NavTimeout() time.Duration {
	return dur(c.Browser.NavTimeout)
}

// CardDelay returns the between-card delay bounds.
func (c *Config) CardDelay() (min, max time.Duration) {
	return dur(c.Pacing.CardDelayMin), dur(c.Pacing.CardDelayMax)
}

// PageDelay returns the between-round delay bounds.
func (c *Config) PageDelay() (min, max time.Duration) {
	return dur(c.Pacing.PageDelayMin), dur(c.Pacing.PageDelayMax)
}
