// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/propertylens/propertylens/pkg/types"
)

// LoadEnv loads a .env file into the process environment so ${VAR}
// references in configs resolve. A missing file is not an error, and
// variables already set in the environment keep precedence.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads, expands and validates a crawl configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromBytes parses YAML into a Config. Environment references like
// ${PROPERTYLENS_DASHBOARD_TOKEN} are expanded first, defaults fill
// absent keys, unknown keys are rejected, and the result is validated.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("config is empty")
		}
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	cfg.normalize()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader behaves like LoadFromBytes for an arbitrary source.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return LoadFromBytes(data)
}

// SiteID returns the configured portal as a typed identifier.
func (c *Config) SiteID() types.Site {
	return types.Site(c.Site)
}

// normalize canonicalizes identifier casing and trims stray space.
func (c *Config) normalize() {
	c.Site = strings.ToLower(strings.TrimSpace(c.Site))
	c.Search.City = strings.ToLower(strings.TrimSpace(c.Search.City))
	for i, loc := range c.Search.Localities {
		c.Search.Localities[i] = strings.TrimSpace(loc)
	}
	for i, f := range c.Output.Formats {
		c.Output.Formats[i] = strings.ToLower(strings.TrimSpace(f))
	}
	if c.Output.Database != nil {
		c.Output.Database.Driver = strings.ToLower(strings.TrimSpace(c.Output.Database.Driver))
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

// applyEnvOverrides lets deployment secrets win over file values.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("PROPERTYLENS_DASHBOARD_TOKEN"); v != "" {
		c.Dashboard.AuthToken = v
	}
	if v := os.Getenv("PROPERTYLENS_DB_DSN"); v != "" && c.Output.Database != nil {
		c.Output.Database.DSN = v
	}
}

// SaveToFile validates and writes the configuration as YAML, creating
// parent directories as needed.
func (c *Config) SaveToFile(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// SaveToWriter writes the configuration as YAML.
func (c *Config) SaveToWriter(w io.Writer) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
