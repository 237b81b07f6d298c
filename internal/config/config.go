package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/parkscout/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Dedup    DedupConfig    `yaml:"dedup" mapstructure:"dedup"`
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Places   PlacesConfig   `yaml:"places" mapstructure:"places"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	County   CountyConfig   `yaml:"county" mapstructure:"county"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// DedupConfig configures the consolidation pipeline thresholds.
type DedupConfig struct {
	ProximityMeters            float64 `yaml:"proximity_meters" mapstructure:"proximity_meters"`
	NameSimilarityThreshold    float64 `yaml:"name_similarity_threshold" mapstructure:"name_similarity_threshold"`
	AddressSimilarityThreshold float64 `yaml:"address_similarity_threshold" mapstructure:"address_similarity_threshold"`
	NearExactNameThreshold     float64 `yaml:"near_exact_name_threshold" mapstructure:"near_exact_name_threshold"`
}

// OverpassConfig configures the OpenStreetMap Overpass API client.
type OverpassConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMin float64 `yaml:"requests_per_min" mapstructure:"requests_per_min"`
}

// PlacesConfig configures the Google Places API client.
type PlacesConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	DailyQuota     int     `yaml:"daily_quota" mapstructure:"daily_quota"`
}

// IngestConfig configures the ingestion connectors.
type IngestConfig struct {
	StateConfigDir string  `yaml:"state_config_dir" mapstructure:"state_config_dir"`
	GridSpacingKm  float64 `yaml:"grid_spacing_km" mapstructure:"grid_spacing_km"`
	SearchRadiusM  int     `yaml:"search_radius_m" mapstructure:"search_radius_m"`
	DetailWorkers  int     `yaml:"detail_workers" mapstructure:"detail_workers"`
	MaxDetailFetch int     `yaml:"max_detail_fetch" mapstructure:"max_detail_fetch"`
}

// ExportConfig configures lead export output.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// CountyConfig configures TIGER county boundary loading.
type CountyConfig struct {
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// ServerConfig configures the HTTP status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the configuration for the given run mode. Modes map
// to subcommands: "ingest-osm", "ingest-places", "process", "export",
// "county", "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	needsDB := func() {
		if c.Store.Driver == "sqlite" {
			return
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "ingest-osm":
		needsDB()
		if c.Overpass.BaseURL == "" {
			problems = append(problems, "overpass.base_url is required")
		}
	case "ingest-places":
		needsDB()
		if c.Places.Key == "" {
			problems = append(problems, "places.key is required")
		}
		if c.Ingest.GridSpacingKm <= 0 {
			problems = append(problems, "ingest.grid_spacing_km must be > 0")
		}
		if c.Ingest.DetailWorkers < 1 || c.Ingest.DetailWorkers > 32 {
			problems = append(problems, "ingest.detail_workers must be between 1 and 32")
		}
	case "process":
		needsDB()
		if c.Dedup.ProximityMeters <= 0 {
			problems = append(problems, "dedup.proximity_meters must be > 0")
		}
		for name, v := range map[string]float64{
			"dedup.name_similarity_threshold":    c.Dedup.NameSimilarityThreshold,
			"dedup.address_similarity_threshold": c.Dedup.AddressSimilarityThreshold,
			"dedup.near_exact_name_threshold":    c.Dedup.NearExactNameThreshold,
		} {
			if v < 0 || v > 100 {
				problems = append(problems, name+" must be between 0 and 100")
			}
		}
	case "export":
		needsDB()
		if c.Export.OutputDir == "" {
			problems = append(problems, "export.output_dir is required")
		}
	case "county":
		// County geometry requires PostGIS; sqlite cannot serve this mode.
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "serve":
		needsDB()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PARKSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("dedup.proximity_meters", 500)
	v.SetDefault("dedup.name_similarity_threshold", 85)
	v.SetDefault("dedup.address_similarity_threshold", 80)
	v.SetDefault("dedup.near_exact_name_threshold", 95)
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 180)
	v.SetDefault("overpass.requests_per_min", 6)
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.requests_per_sec", 10)
	v.SetDefault("places.daily_quota", 5000)
	v.SetDefault("ingest.state_config_dir", "states")
	v.SetDefault("ingest.grid_spacing_km", 40)
	v.SetDefault("ingest.search_radius_m", 30000)
	v.SetDefault("ingest.detail_workers", 4)
	v.SetDefault("ingest.max_detail_fetch", 0)
	v.SetDefault("export.output_dir", "exports")
	v.SetDefault("county.batch_size", 200)

	// Read config file (optional)
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
