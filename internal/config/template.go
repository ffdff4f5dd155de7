// internal/config/template.go
package config

import (
	"fmt"
	"strings"

	"github.com/propertylens/propertylens/pkg/types"
)

// Template returns a starter configuration for the given portal. The
// policy list mirrors the portal profile's defaults so the emitted file
// documents what actually runs.
func Template(site string) (*Config, error) {
	switch strings.ToLower(strings.TrimSpace(site)) {
	case "", string(types.SiteNinetyNineAcres):
		return templateNinetyNineAcres(), nil
	case string(types.SiteMagicBricks):
		return templateMagicBricks(), nil
	case string(types.SiteNoBroker):
		return templateNoBroker(), nil
	default:
		return nil, fmt.Errorf("no template for site %q, try 99acres, magicbricks or nobroker", site)
	}
}

func templateNinetyNineAcres() *Config {
	cfg := Default()
	cfg.Site = string(types.SiteNinetyNineAcres)
	cfg.Search.Localities = []string{"Sector 57", "Sector 62", "DLF Phase 2"}
	cfg.Policies = []string{"normalize-price", "titlecase-places"}
	cfg.Output.Formats = []string{"csv", "json", "excel"}
	cfg.Output.Database = &DatabaseConfig{
		Driver:    "sqlite3",
		DSN:       "propertylens.db",
		Table:     "listings",
		BatchSize: 50,
	}
	cfg.Dashboard.AuthToken = "${PROPERTYLENS_DASHBOARD_TOKEN}"
	return cfg
}

func templateMagicBricks() *Config {
	cfg := Default()
	cfg.Site = string(types.SiteMagicBricks)
	cfg.Search.Localities = []string{"Sector 57", "Sohna Road", "Golf Course Road"}
	cfg.Policies = []string{"normalize-price", "titlecase-places"}
	cfg.Output.Formats = []string{"csv", "json", "excel"}
	cfg.Output.Database = &DatabaseConfig{
		Driver:    "sqlite3",
		DSN:       "propertylens.db",
		Table:     "listings",
		BatchSize: 50,
	}
	cfg.Dashboard.AuthToken = "${PROPERTYLENS_DASHBOARD_TOKEN}"
	return cfg
}

func templateNoBroker() *Config {
	// NoBroker search pages mix studio listings into family-home
	// results, hence the extra cleanup policies.
	cfg := Default()
	cfg.Site = string(types.SiteNoBroker)
	cfg.Search.Localities = []string{"Sector 57", "DLF Phase 2", "Sushant Lok 1"}
	cfg.Policies = []string{"drop-studio", "clean-building-name", "normalize-price", "titlecase-places"}
	cfg.Output.Formats = []string{"csv", "json", "excel"}
	cfg.Output.Database = &DatabaseConfig{
		Driver:    "sqlite3",
		DSN:       "propertylens.db",
		Table:     "listings",
		BatchSize: 50,
	}
	cfg.Dashboard.AuthToken = "${PROPERTYLENS_DASHBOARD_TOKEN}"
	return cfg
}
