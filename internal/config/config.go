// Package config loads service configuration from defaults, an optional
// config.json, a .env file and the process environment, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	HTTPAddr         string   `mapstructure:"http_addr"`
	CORSAllowOrigins []string `mapstructure:"cors_allow_origins"`

	LLMProvider   string `mapstructure:"llm_provider"`
	GeminiAPIKey  string `mapstructure:"google_generative_ai_api_key"`
	GeminiModel   string `mapstructure:"gemini_model"`
	LocalLLMURL   string `mapstructure:"local_llm_url"`
	LocalLLMModel string `mapstructure:"local_llm_model"`

	GenerationRPS   float64 `mapstructure:"generation_rps"`
	GenerationBurst int     `mapstructure:"generation_burst"`

	Storage     string `mapstructure:"storage"`
	DatabaseURL string `mapstructure:"database_url"`

	JWTSecret string `mapstructure:"auth_jwt_secret"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var keys = []string{
	"http_addr", "cors_allow_origins",
	"llm_provider", "google_generative_ai_api_key", "gemini_model", "local_llm_url", "local_llm_model",
	"generation_rps", "generation_burst",
	"storage", "database_url",
	"auth_jwt_secret",
	"log_level", "log_format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("cors_allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("llm_provider", "gemini")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("local_llm_url", "http://localhost:1234/v1/chat/completions")
	v.SetDefault("local_llm_model", "gemma-3-12b-it:2")
	v.SetDefault("generation_rps", 2.0)
	v.SetDefault("generation_burst", 5)
	v.SetDefault("storage", "postgres")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads the configuration. configDir is searched for config.json; an
// empty configDir means the working directory.
func Load(configDir string) (*Config, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configDir == "" {
		configDir = "."
	}
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(configDir)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.CORSAllowOrigins = splitList(cfg.CORSAllowOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// splitList accepts both a JSON list and a comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks option values that cannot be defaulted. A missing Gemini
// key is not an error here; generation requests report it instead.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "gemini", "local":
	default:
		return fmt.Errorf("llm_provider must be gemini or local, got %q", c.LLMProvider)
	}
	switch c.Storage {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when storage is postgres")
		}
	default:
		return fmt.Errorf("storage must be postgres or memory, got %q", c.Storage)
	}
	if len(c.CORSAllowOrigins) == 0 {
		return errors.New("cors_allow_origins must list at least one origin")
	}
	if c.GenerationRPS <= 0 || c.GenerationBurst <= 0 {
		return errors.New("generation_rps and generation_burst must be positive")
	}
	return nil
}
