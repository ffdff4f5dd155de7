// internal/config/validation.go
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/propertylens/propertylens/pkg/types"
)

// ValidationError pinpoints one bad configuration value.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationResult aggregates everything wrong with a configuration.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []string          `json:"warnings"`
}

// Validate checks the configuration and returns one formatted error
// listing every problem found.
func (c *Config) Validate() error {
	result := c.ValidateWithDetails()
	if !result.Valid {
		return formatValidationError(result)
	}
	return nil
}

// ValidateWithDetails runs all checks and returns the raw findings,
// warnings included.
func (c *Config) ValidateWithDetails() *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   make([]ValidationError, 0),
		Warnings: make([]string, 0),
	}

	c.validateSite(result)
	c.validateSearch(result)
	c.validateLimits(result)
	c.validateBrowser(result)
	c.validatePacing(result)
	c.validateOutput(result)
	c.validateDashboard(result)
	c.validateLogging(result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (c *Config) validateSite(result *ValidationResult) {
	if c.Site == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "site",
			Message: "site is required",
		})
		return
	}
	if !types.Site(c.Site).IsValid() {
		names := make([]string, 0, len(types.ValidSites()))
		for _, s := range types.ValidSites() {
			names = append(names, s.String())
		}
		result.Errors = append(result.Errors, ValidationError{
			Field:   "site",
			Value:   c.Site,
			Message: fmt.Sprintf("unsupported portal, valid sites: %s", strings.Join(names, ", ")),
		})
	}
}

func (c *Config) validateSearch(result *ValidationResult) {
	if c.Search.URL != "" {
		u, err := url.Parse(c.Search.URL)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "search.url",
				Value:   c.Search.URL,
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		} else if u.Scheme != "http" && u.Scheme != "https" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "search.url",
				Value:   c.Search.URL,
				Message: "URL must start with http:// or https://",
			})
		}
		return
	}
	if c.Browser.FromFile != "" {
		return
	}
	if c.Search.City == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "search.city",
			Message: "city is required when no search URL is set",
		})
	}
	if len(c.Search.Localities) == 0 && !c.Search.AllLocalities {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "search.localities",
			Value:   "[]",
			Message: "name at least one locality or set all_localities: true",
		})
	}
	for i, loc := range c.Search.Localities {
		if loc == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("search.localities[%d]", i),
				Message: "locality must not be empty",
			})
		}
	}
}

func (c *Config) validateLimits(result *ValidationResult) {
	if c.Limits.TargetListings < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "limits.target_listings",
			Value:   fmt.Sprintf("%d", c.Limits.TargetListings),
			Message: "target cannot be negative",
		})
	}
	if c.Limits.MaxRounds < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "limits.max_rounds",
			Value:   fmt.Sprintf("%d", c.Limits.MaxRounds),
			Message: "round budget cannot be negative",
		})
	}
	checkDuration(result, "limits.max_duration", c.Limits.MaxDuration)

	if c.Limits.TargetListings > 500 {
		result.Warnings = append(result.Warnings,
			"targets above 500 listings take a long time at polite pacing")
	}
}

func (c *Config) validateBrowser(result *ValidationResult) {
	if c.Browser.ViewportWidth < 0 || c.Browser.ViewportHeight < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "browser.viewport_width",
			Value:   fmt.Sprintf("%dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight),
			Message: "viewport dimensions cannot be negative",
		})
	}
	checkDuration(result, "browser.nav_timeout", c.Browser.NavTimeout)

	if c.Browser.Proxy != "" {
		u, err := url.Parse(c.Browser.Proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "browser.proxy",
				Value:   c.Browser.Proxy,
				Message: `proxy must be a URL like "http://host:3128" or "socks5://host:1080"`,
			})
		}
	}
	if c.Browser.FromFile != "" && c.Search.URL != "" {
		result.Warnings = append(result.Warnings,
			"browser.from_file is set, search.url will be ignored")
	}
}

func (c *Config) validatePacing(result *ValidationResult) {
	p := c.Pacing
	if p.RatePerSecond < 0 || p.MinRatePerSecond < 0 || p.MaxRatePerSecond < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "pacing",
			Message: "rates cannot be negative",
		})
	}
	if p.MinRatePerSecond > 0 && p.MaxRatePerSecond > 0 && p.MinRatePerSecond > p.MaxRatePerSecond {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "pacing.min_rate_per_second",
			Value:   fmt.Sprintf("%g > %g", p.MinRatePerSecond, p.MaxRatePerSecond),
			Message: "minimum rate exceeds maximum rate",
		})
	}
	if p.Burst < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "pacing.burst",
			Value:   fmt.Sprintf("%d", p.Burst),
			Message: "burst cannot be negative",
		})
	}
	if p.FlushEvery < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "pacing.flush_every",
			Value:   fmt.Sprintf("%d", p.FlushEvery),
			Message: "flush batch size cannot be negative",
		})
	}

	cardMin := checkDuration(result, "pacing.card_delay_min", p.CardDelayMin)
	cardMax := checkDuration(result, "pacing.card_delay_max", p.CardDelayMax)
	if cardMin > 0 && cardMax > 0 && cardMin > cardMax {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "pacing.card_delay_min",
			Value:   fmt.Sprintf("%s > %s", p.CardDelayMin, p.CardDelayMax),
			Message: "minimum delay exceeds maximum delay",
		})
	}
	pageMin := checkDuration(result, "pacing.page_delay_min", p.PageDelayMin)
	pageMax := checkDuration(result, "pacing.page_delay_max", p.PageDelayMax)
	if pageMin > 0 && pageMax > 0 && pageMin > pageMax {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "pacing.page_delay_min",
			Value:   fmt.Sprintf("%s > %s", p.PageDelayMin, p.PageDelayMax),
			Message: "minimum delay exceeds maximum delay",
		})
	}

	if p.RatePerSecond > 2 {
		result.Warnings = append(result.Warnings,
			"rates above 2 requests/second risk portal blocks")
	}
}

func (c *Config) validateOutput(result *ValidationResult) {
	validFormats := []string{"csv", "json", "excel"}
	for i, f := range c.Output.Formats {
		if !contains(validFormats, f) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("output.formats[%d]", i),
				Value:   f,
				Message: fmt.Sprintf("unknown format, valid formats: %s", strings.Join(validFormats, ", ")),
			})
		}
	}
	if len(c.Output.Formats) == 0 && c.Output.Database == nil {
		result.Warnings = append(result.Warnings,
			"no output formats or database configured, listings will only be counted")
	}

	db := c.Output.Database
	if db == nil {
		return
	}
	validDrivers := []string{"sqlite3", "mysql", "postgres", "mongodb"}
	if !contains(validDrivers, db.Driver) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "output.database.driver",
			Value:   db.Driver,
			Message: fmt.Sprintf("unknown driver, valid drivers: %s", strings.Join(validDrivers, ", ")),
		})
	}
	if db.DSN == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "output.database.dsn",
			Message: "dsn is required when a database sink is configured",
		})
	}
	if db.Driver == "mongodb" && db.Name == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "output.database.name",
			Message: "database name is required for mongodb",
		})
	}
	if db.BatchSize < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "output.database.batch_size",
			Value:   fmt.Sprintf("%d", db.BatchSize),
			Message: "batch size cannot be negative",
		})
	}
}

func (c *Config) validateDashboard(result *ValidationResult) {
	checkListenAddr(result, "dashboard.listen", c.Dashboard.Listen)
	checkListenAddr(result, "metrics.listen", c.Metrics.Listen)

	if c.Dashboard.AuthToken == "" {
		result.Warnings = append(result.Warnings,
			"dashboard.auth_token is empty, write endpoints will accept any caller")
	}
}

func (c *Config) validateLogging(result *ValidationResult) {
	if c.Logging.Level == "" {
		return
	}
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("unknown level, valid levels: %s", strings.Join(validLevels, ", ")),
		})
	}
}

// checkDuration flags unparseable or negative duration strings. Empty
// strings are allowed and fall back to defaults.
func checkDuration(result *ValidationResult, field, value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   field,
			Value:   value,
			Message: `invalid duration, use forms like "45s" or "20m"`,
		})
		return 0
	}
	if d < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   field,
			Value:   value,
			Message: "duration cannot be negative",
		})
		return 0
	}
	return d
}

// checkListenAddr accepts ":8080" or "host:8080" forms. Empty disables
// the listener and is fine.
func checkListenAddr(result *ValidationResult, field, value string) {
	if value == "" {
		return
	}
	if _, _, err := net.SplitHostPort(value); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   field,
			Value:   value,
			Message: `listen address must look like ":8080" or "127.0.0.1:8080"`,
		})
	}
}

// formatValidationError flattens the findings into one readable error.
func formatValidationError(result *ValidationResult) error {
	var msg strings.Builder
	msg.WriteString("configuration validation failed:\n")
	for i, err := range result.Errors {
		msg.WriteString(fmt.Sprintf("  %d. %s", i+1, err.Message))
		if err.Field != "" {
			msg.WriteString(fmt.Sprintf(" (field: %s)", err.Field))
		}
		if err.Value != "" {
			msg.WriteString(fmt.Sprintf(" (value: %s)", err.Value))
		}
		msg.WriteString("\n")
	}
	if len(result.Warnings) > 0 {
		msg.WriteString("warnings:\n")
		for i, warning := range result.Warnings {
			msg.WriteString(fmt.Sprintf("  %d. %s\n", i+1, warning))
		}
	}
	return fmt.Errorf("%s", strings.TrimRight(msg.String(), "\n"))
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
