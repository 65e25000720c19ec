package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Geocoder   GeocoderConfig   `yaml:"geocoder" mapstructure:"geocoder"`
	Sampler    SamplerConfig    `yaml:"sampler" mapstructure:"sampler"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Categories CategoriesConfig `yaml:"categories" mapstructure:"categories"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// GeocoderConfig configures the geocoding provider client.
type GeocoderConfig struct {
	APIKey        string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Region        string  `yaml:"region" mapstructure:"region"`
	Language      string  `yaml:"language" mapstructure:"language"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Mode          string  `yaml:"mode" mapstructure:"mode"`
	SerialDelayMS int     `yaml:"serial_delay_ms" mapstructure:"serial_delay_ms"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SamplerConfig configures the raster sampling service client. Project is
// the default sampling project for serve mode; the run command takes it as a
// positional argument instead.
type SamplerConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Project     string `yaml:"project" mapstructure:"project"`
	Asset       string `yaml:"asset" mapstructure:"asset"`
	Band        string `yaml:"band" mapstructure:"band"`
	Scale       int    `yaml:"scale" mapstructure:"scale"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// InputConfig configures input table parsing.
type InputConfig struct {
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
	Encoding  string `yaml:"encoding" mapstructure:"encoding"`
	Sheet     int    `yaml:"sheet" mapstructure:"sheet"`
}

// OutputConfig configures the result CSV.
type OutputConfig struct {
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
}

// CategoriesConfig points at an optional label override file.
type CategoriesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the upload server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	UploadDir       string   `yaml:"upload_dir" mapstructure:"upload_dir"`
	MaxUploads      int      `yaml:"max_uploads" mapstructure:"max_uploads"`
	RequiredColumns []string `yaml:"required_columns" mapstructure:"required_columns"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The key also arrives as GOOGLE_API_KEY in deployments that predate
	// the HAND_ prefix.
	_ = v.BindEnv("geocoder.api_key", "HAND_GEOCODER_API_KEY", "GOOGLE_API_KEY")

	// Defaults
	v.SetDefault("geocoder.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocoder.region", "br")
	v.SetDefault("geocoder.language", "pt-BR")
	v.SetDefault("geocoder.rate_per_sec", 1.0)
	v.SetDefault("geocoder.mode", "concurrent")
	v.SetDefault("geocoder.serial_delay_ms", 1000)
	v.SetDefault("geocoder.timeout_secs", 10)
	v.SetDefault("sampler.base_url", "https://handsampler.irc-risk.dev")
	v.SetDefault("sampler.project", "ee-irc")
	v.SetDefault("sampler.asset", "projects/ee-irc/assets/handCategorizado")
	v.SetDefault("sampler.band", "b1")
	v.SetDefault("sampler.scale", 30)
	v.SetDefault("sampler.timeout_secs", 120)
	v.SetDefault("input.delimiter", "")
	v.SetDefault("input.encoding", "")
	v.SetDefault("input.sheet", 0)
	v.SetDefault("output.delimiter", ";")
	v.SetDefault("categories.file", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "hand.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upload_dir", "/tmp/hand_processing")
	v.SetDefault("server.max_uploads", 2)
	v.SetDefault("server.required_columns", []string{"ADDRESS", "TIV"})
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks that everything a command mode needs is present. All
// problems are reported at once so an operator fixes the environment in one
// pass.
func (c *Config) Validate(mode string) error {
	if mode != "run" && mode != "serve" {
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var problems []string

	if c.Geocoder.APIKey == "" {
		problems = append(problems, "geocoder.api_key is required (HAND_GEOCODER_API_KEY or GOOGLE_API_KEY)")
	}
	if c.Geocoder.RatePerSec <= 0 {
		problems = append(problems, "geocoder.rate_per_sec must be > 0")
	}
	switch c.Geocoder.Mode {
	case "concurrent", "serial":
	default:
		problems = append(problems, fmt.Sprintf("geocoder.mode must be concurrent or serial, got %q", c.Geocoder.Mode))
	}
	if c.Sampler.Asset == "" {
		problems = append(problems, "sampler.asset is required")
	}

	if mode == "serve" {
		if c.Sampler.Project == "" {
			problems = append(problems, "sampler.project is required in serve mode")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.MaxUploads < 1 || c.Server.MaxUploads > 16 {
			problems = append(problems, "server.max_uploads must be between 1 and 16")
		}
		if len(c.Server.RequiredColumns) == 0 {
			problems = append(problems, "server.required_columns must not be empty")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
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
