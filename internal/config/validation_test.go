// internal/config/validation_test.go
package config

import (
	"strings"
	"testing"
)

func validBase() *Config {
	cfg := Default()
	cfg.Site = "99acres"
	cfg.Search.Localities = []string{"Sector 57"}
	return cfg
}

func hasFieldError(result *ValidationResult, field string) bool {
	for _, e := range result.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateFindsProblems(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"missing site", func(c *Config) { c.Site = "" }, "site"},
		{"unknown site", func(c *Config) { c.Site = "zillow" }, "site"},
		{"no localities", func(c *Config) {
			c.Search.Localities = nil
			c.Search.AllLocalities = false
		}, "search.localities"},
		{"empty locality entry", func(c *Config) { c.Search.Localities = []string{""} }, "search.localities[0]"},
		{"bad search url scheme", func(c *Config) { c.Search.URL = "ftp://listings.example.com" }, "search.url"},
		{"negative target", func(c *Config) { c.Limits.TargetListings = -1 }, "limits.target_listings"},
		{"negative rounds", func(c *Config) { c.Limits.MaxRounds = -3 }, "limits.max_rounds"},
		{"unparseable duration", func(c *Config) { c.Limits.MaxDuration = "soon" }, "limits.max_duration"},
		{"negative duration", func(c *Config) { c.Pacing.CardDelayMin = "-5s" }, "pacing.card_delay_min"},
		{"inverted delay bounds", func(c *Config) {
			c.Pacing.CardDelayMin = "2s"
			c.Pacing.CardDelayMax = "1s"
		}, "pacing.card_delay_min"},
		{"inverted rate bounds", func(c *Config) {
			c.Pacing.MinRatePerSecond = 3
			c.Pacing.MaxRatePerSecond = 1
		}, "pacing.min_rate_per_second"},
		{"negative burst", func(c *Config) { c.Pacing.Burst = -1 }, "pacing.burst"},
		{"unknown format", func(c *Config) { c.Output.Formats = []string{"parquet"} }, "output.formats[0]"},
		{"database without dsn", func(c *Config) {
			c.Output.Database = &DatabaseConfig{Driver: "sqlite3"}
		}, "output.database.dsn"},
		{"unknown driver", func(c *Config) {
			c.Output.Database = &DatabaseConfig{Driver: "oracle", DSN: "x"}
		}, "output.database.driver"},
		{"mongodb without name", func(c *Config) {
			c.Output.Database = &DatabaseConfig{Driver: "mongodb", DSN: "mongodb://localhost:27017"}
		}, "output.database.name"},
		{"listen without colon", func(c *Config) { c.Dashboard.Listen = "8080" }, "dashboard.listen"},
		{"bad metrics listen", func(c *Config) { c.Metrics.Listen = "localhost" }, "metrics.listen"},
		{"bad proxy", func(c *Config) { c.Browser.Proxy = "not a proxy" }, "browser.proxy"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)

			result := cfg.ValidateWithDetails()
			if result.Valid {
				t.Fatal("config should be invalid")
			}
			if !hasFieldError(result, tt.wantField) {
				t.Errorf("no error for field %q, got %+v", tt.wantField, result.Errors)
			}
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should return an error")
			}
		})
	}
}

func TestValidateWarningsDoNotFail(t *testing.T) {
	findWarning := func(result *ValidationResult, substr string) bool {
		for _, w := range result.Warnings {
			if strings.Contains(w, substr) {
				return true
			}
		}
		return false
	}

	t.Run("empty auth token", func(t *testing.T) {
		cfg := validBase()
		result := cfg.ValidateWithDetails()
		if !result.Valid {
			t.Fatalf("base config should be valid: %+v", result.Errors)
		}
		if !findWarning(result, "auth_token") {
			t.Errorf("expected an auth_token warning, got %v", result.Warnings)
		}
	})

	t.Run("aggressive rate", func(t *testing.T) {
		cfg := validBase()
		cfg.Pacing.RatePerSecond = 2.5
		result := cfg.ValidateWithDetails()
		if !result.Valid {
			t.Fatalf("config should be valid: %+v", result.Errors)
		}
		if !findWarning(result, "requests/second") {
			t.Errorf("expected a pacing warning, got %v", result.Warnings)
		}
	})

	t.Run("no sinks at all", func(t *testing.T) {
		cfg := validBase()
		cfg.Output.Formats = nil
		cfg.Output.Database = nil
		result := cfg.ValidateWithDetails()
		if !result.Valid {
			t.Fatalf("config should be valid: %+v", result.Errors)
		}
		if !findWarning(result, "only be counted") {
			t.Errorf("expected a no-sink warning, got %v", result.Warnings)
		}
	})
}

func TestValidateFormatsEveryProblem(t *testing.T) {
	cfg := validBase()
	cfg.Site = ""
	cfg.Limits.MaxDuration = "whenever"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	msg := err.Error()
	for _, want := range []string{"configuration validation failed", "1.", "2.", "(field: site)", "(field: limits.max_duration)"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q:\n%s", want, msg)
		}
	}
}

func TestTemplates(t *testing.T) {
	for _, site := range []string{"99acres", "magicbricks", "nobroker"} {
		t.Run(site, func(t *testing.T) {
			cfg, err := Template(site)
			if err != nil {
				t.Fatalf("Template: %v", err)
			}
			if cfg.Site != site {
				t.Errorf("Site = %q", cfg.Site)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("template should validate cleanly: %v", err)
			}
			if len(cfg.Policies) == 0 {
				t.Error("template should document the default policies")
			}
			if len(cfg.Search.Localities) == 0 {
				t.Error("template should suggest localities")
			}
		})
	}

	t.Run("default site", func(t *testing.T) {
		cfg, err := Template("")
		if err != nil {
			t.Fatalf("Template: %v", err)
		}
		if cfg.Site != "99acres" {
			t.Errorf("Site = %q, want the 99acres starter", cfg.Site)
		}
	})

	t.Run("nobroker carries cleanup policies", func(t *testing.T) {
		cfg, _ := Template("nobroker")
		if len(cfg.Policies) != 4 || cfg.Policies[0] != "drop-studio" {
			t.Errorf("Policies = %v", cfg.Policies)
		}
	})

	t.Run("unknown site", func(t *testing.T) {
		if _, err := Template("zillow"); err == nil {
			t.Error("expected an error for an unsupported site")
		}
	})
}
