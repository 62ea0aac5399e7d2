package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command needs. mode is "enrich" or "locate".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Census.RateLimit <= 0 {
		errs = append(errs, "census.rate_limit must be > 0")
	}
	if c.Census.FallbackState != "" && !isFIPS(c.Census.FallbackState) {
		errs = append(errs, fmt.Sprintf("census.fallback_state %q is not a 2-digit FIPS code", c.Census.FallbackState))
	}

	switch mode {
	case "locate":
	case "enrich":
		if c.Input.Path == "" {
			errs = append(errs, "input.path is required")
		}
		if c.Census.Year < 2009 {
			errs = append(errs, "census.year must be 2009 or later (first ACS5 release)")
		}
		if c.Tiger.Year == 0 {
			errs = append(errs, "tiger.year is required")
		}
		if c.Disaggregate.Enabled && c.Disaggregate.Trials < 1 {
			errs = append(errs, "disaggregate.trials must be >= 1")
		}
		if c.Disaggregate.Workers < 1 || c.Disaggregate.Workers > 64 {
			errs = append(errs, "disaggregate.workers must be between 1 and 64")
		}
		if c.Cache.Enabled && c.Cache.Path == "" {
			errs = append(errs, "cache.path is required when the cache is enabled")
		}
		if c.Cache.TTLDays < 0 {
			errs = append(errs, "cache.ttl_days must be >= 0")
		}
		switch strings.ToLower(c.Output.Driver) {
		case "", "geojson":
		case "postgres", "postgis":
			if c.Output.DatabaseURL == "" {
				errs = append(errs, "output.database_url is required for the postgres driver")
			}
		default:
			errs = append(errs, fmt.Sprintf("output.driver %q is not one of geojson, postgres", c.Output.Driver))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func isFIPS(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}
