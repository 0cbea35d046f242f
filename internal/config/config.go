package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	AuthMode string `mapstructure:"AUTH_MODE"`
	// AuthSigningKey is the HS256 secret for bearer tokens; required when
	// AUTH_MODE is "jwt".
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`

	// VocabSource selects where reference vocabularies load from:
	// "csv" reads Athena-style TSV files from VocabDir, "postgres"
	// queries the concept and drug_strength tables over DATABASE_URL.
	VocabSource string `mapstructure:"VOCAB_SOURCE"`
	VocabDir    string `mapstructure:"VOCAB_DIR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	VocabSchema string `mapstructure:"VOCAB_SCHEMA"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// KeepOnlyValidUnits drops strength rows whose unit concepts are no
	// longer valid at load time.
	KeepOnlyValidUnits bool `mapstructure:"KEEP_ONLY_VALID_UNITS"`

	UploadBodyLimit string `mapstructure:"UPLOAD_BODY_LIMIT"`

	// VocabBaseURL is the index page the vocab fetch command scrapes for
	// downloadable reference files.
	VocabBaseURL string `mapstructure:"VOCAB_BASE_URL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("VOCAB_SOURCE", "csv")
	v.SetDefault("VOCAB_DIR", "data")
	v.SetDefault("VOCAB_SCHEMA", "vocab")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("KEEP_ONLY_VALID_UNITS", false)
	v.SetDefault("UPLOAD_BODY_LIMIT", "20M")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("VOCAB_SOURCE")
	v.BindEnv("VOCAB_DIR")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("VOCAB_SCHEMA")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("KEEP_ONLY_VALID_UNITS")
	v.BindEnv("UPLOAD_BODY_LIMIT")
	v.BindEnv("VOCAB_BASE_URL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: requests are not authenticated; set ENV=production and AUTH_SIGNING_KEY for production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is
// explicitly set, it is returned; otherwise development runs open and
// everything else requires bearer tokens.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Validate checks that the configuration is safe to run. Uploads carry
// patient-level data, so outside development a signing key is mandatory.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
	case "jwt":
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY must be set when AUTH_MODE is \"jwt\" (current ENV=%q); refusing to start without authentication", c.Env)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	switch c.VocabSource {
	case "csv":
		if c.VocabDir == "" {
			return fmt.Errorf("VOCAB_DIR is required when VOCAB_SOURCE is \"csv\"")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when VOCAB_SOURCE is \"postgres\"")
		}
	default:
		return fmt.Errorf("VOCAB_SOURCE must be \"csv\" or \"postgres\", got %q", c.VocabSource)
	}

	return nil
}
