package storage

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCentralSite = "central"
	// EnvDSNPrefix is the fallback naming convention: site "plant-a" resolves
	// through CORROWATCH_DSN_PLANT_A.
	EnvDSNPrefix = "CORROWATCH_DSN_"
	// EnvDriverPrefix optionally pins the driver for a fallback DSN.
	EnvDriverPrefix = "CORROWATCH_DRIVER_"
)

// SiteConfig is one explicit entry of the sites file.
type SiteConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Config is the sites file:
//
//	central: central
//	sites:
//	  central: { driver: postgres, dsn: "postgres://..." }
//	  plant-a: { driver: sqlite, dsn: "file:plant-a.db" }
type Config struct {
	Central string                `yaml:"central"`
	Sites   map[string]SiteConfig `yaml:"sites"`
}

func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read sites config: %w", err)
	}
	return ParseConfig(raw)
}

func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse sites config: %w", err)
	}
	return cfg.normalize(), nil
}

func (c Config) normalize() Config {
	out := Config{Central: NormalizeSiteID(c.Central), Sites: map[string]SiteConfig{}}
	if out.Central == "" {
		out.Central = DefaultCentralSite
	}
	for id, sc := range c.Sites {
		id = NormalizeSiteID(id)
		if id == "" {
			continue
		}
		sc.Driver = strings.ToLower(strings.TrimSpace(sc.Driver))
		sc.DSN = strings.TrimSpace(sc.DSN)
		out.Sites[id] = sc
	}
	return out
}

// PlantIDs lists explicitly configured sites other than central.
func (c Config) PlantIDs() []string {
	out := make([]string, 0, len(c.Sites))
	for id := range c.Sites {
		if id != c.Central {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func NormalizeSiteID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// EnvName maps a site id onto an environment variable name under prefix.
func EnvName(prefix, siteID string) string {
	return prefix + strings.Trim(nonAlnum.ReplaceAllString(strings.ToUpper(siteID), "_"), "_")
}
