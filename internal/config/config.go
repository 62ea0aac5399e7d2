package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Census       CensusConfig       `yaml:"census" mapstructure:"census"`
	Tiger        TigerConfig        `yaml:"tiger" mapstructure:"tiger"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Columns      ColumnsConfig      `yaml:"columns" mapstructure:"columns"`
	Disaggregate DisaggregateConfig `yaml:"disaggregate" mapstructure:"disaggregate"`
	Join         JoinConfig         `yaml:"join" mapstructure:"join"`
	Input        InputConfig        `yaml:"input" mapstructure:"input"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// CensusConfig configures the Geocoder and ACS5 clients.
type CensusConfig struct {
	APIKey        string   `yaml:"api_key" mapstructure:"api_key"`
	Year          int      `yaml:"year" mapstructure:"year"`
	Variables     []string `yaml:"variables" mapstructure:"variables"`
	GeocoderURL   string   `yaml:"geocoder_url" mapstructure:"geocoder_url"`
	ACSURL        string   `yaml:"acs_url" mapstructure:"acs_url"`
	BlocksLayer   string   `yaml:"blocks_layer" mapstructure:"blocks_layer"`
	RateLimit     float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	FallbackState string   `yaml:"fallback_state" mapstructure:"fallback_state"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TigerConfig configures tract boundary downloads.
type TigerConfig struct {
	Year    int    `yaml:"year" mapstructure:"year"`
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CacheConfig configures the local ACS table cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	TTLDays int    `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// ColumnsConfig points at an optional code -> name mapping file. KeepCounts
// leaves the income bracket counts in place and adds <bracket>_perc shares.
type ColumnsConfig struct {
	MappingFile string `yaml:"mapping_file" mapstructure:"mapping_file"`
	KeepCounts  bool   `yaml:"keep_counts" mapstructure:"keep_counts"`
}

// DisaggregateConfig configures the ownership and income draws.
type DisaggregateConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Trials       int    `yaml:"trials" mapstructure:"trials"`
	Seed         uint64 `yaml:"seed" mapstructure:"seed"`
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	DropExcluded bool   `yaml:"drop_excluded" mapstructure:"drop_excluded"`
}

// JoinConfig configures the spatial join.
type JoinConfig struct {
	KeepUnmatched bool `yaml:"keep_unmatched" mapstructure:"keep_unmatched"`
}

// InputConfig describes the source dataset.
type InputConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	SRID int    `yaml:"srid" mapstructure:"srid"`
}

// OutputConfig selects the sink and the optional run report.
type OutputConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Table       string `yaml:"table" mapstructure:"table"`
	Replace     bool   `yaml:"replace" mapstructure:"replace"`
	ReportPath  string `yaml:"report_path" mapstructure:"report_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and CENSUS_* environment
// variables, in increasing precedence.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CENSUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key gets a default so AutomaticEnv can override it on Unmarshal.
	v.SetDefault("census.api_key", "")
	v.SetDefault("census.year", 2020)
	v.SetDefault("census.variables", []string{})
	v.SetDefault("census.geocoder_url", "https://geocoding.geo.census.gov/geocoder/geographies/coordinates")
	v.SetDefault("census.acs_url", "https://api.census.gov/data")
	v.SetDefault("census.blocks_layer", "2020 Census Blocks")
	v.SetDefault("census.rate_limit", 10.0)
	v.SetDefault("census.fallback_state", "")
	v.SetDefault("census.timeout_secs", 60)
	v.SetDefault("tiger.year", 2020)
	v.SetDefault("tiger.temp_dir", "/tmp/census-enrich/tiger")
	v.SetDefault("tiger.base_url", "https://www2.census.gov/geo/tiger")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "census-cache.db")
	v.SetDefault("cache.ttl_days", 30)
	v.SetDefault("columns.mapping_file", "")
	v.SetDefault("columns.keep_counts", false)
	v.SetDefault("disaggregate.enabled", true)
	v.SetDefault("disaggregate.trials", 1)
	v.SetDefault("disaggregate.seed", 0)
	v.SetDefault("disaggregate.workers", 1)
	v.SetDefault("disaggregate.drop_excluded", false)
	v.SetDefault("join.keep_unmatched", false)
	v.SetDefault("input.path", "")
	v.SetDefault("input.srid", 4326)
	v.SetDefault("output.driver", "geojson")
	v.SetDefault("output.path", "")
	v.SetDefault("output.database_url", "")
	v.SetDefault("output.schema", "public")
	v.SetDefault("output.table", "enriched_buildings")
	v.SetDefault("output.replace", false)
	v.SetDefault("output.report_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
