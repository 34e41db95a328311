// Package config handles configuration loading for tesouro-quant.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TESOUROQUANT_API_PORT.
const EnvPrefix = "TESOUROQUANT"

// Config represents the complete application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"       yaml:"llm"`
	Pricing   PricingConfig   `mapstructure:"pricing"   yaml:"pricing"`
	Curve     CurveConfig     `mapstructure:"curve"     yaml:"curve"`
	Portfolio PortfolioConfig `mapstructure:"portfolio" yaml:"portfolio"`
	Data      DataConfig      `mapstructure:"data"      yaml:"data"`
	Sources   SourcesConfig   `mapstructure:"sources"   yaml:"sources"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// LLMConfig holds assistant provider configuration.
type LLMConfig struct {
	Primary       string  `mapstructure:"primary"        yaml:"primary"` // "gemini" or "ollama"
	GeminiKey     string  `mapstructure:"gemini_key"     yaml:"gemini_key"     json:"-"`
	OllamaURL     string  `mapstructure:"ollama_url"     yaml:"ollama_url"`
	Model         string  `mapstructure:"model"          yaml:"model"`
	FallbackModel string  `mapstructure:"fallback_model" yaml:"fallback_model"`
	Temperature   float64 `mapstructure:"temperature"    yaml:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"     yaml:"max_tokens"`
}

// PricingConfig holds risk engine assumptions.
type PricingConfig struct {
	// SyntheticCouponRate is the annual coupon assumed for bonds paying
	// semi-annual interest, since quotes do not carry the real coupon.
	SyntheticCouponRate float64 `mapstructure:"synthetic_coupon_rate" yaml:"synthetic_coupon_rate"`
}

// CurveConfig holds term structure grid settings.
type CurveConfig struct {
	MaxTenor    float64 `mapstructure:"max_tenor"    yaml:"max_tenor"` // years
	Step        float64 `mapstructure:"step"         yaml:"step"`      // years
	MinVertices int     `mapstructure:"min_vertices" yaml:"min_vertices"`
}

// PortfolioConfig holds the modified-duration thresholds for risk levels.
type PortfolioConfig struct {
	LowRiskBelow    float64 `mapstructure:"low_risk_below"    yaml:"low_risk_below"`    // years
	MediumRiskBelow float64 `mapstructure:"medium_risk_below" yaml:"medium_risk_below"` // years
}

// DataConfig holds snapshot storage locations.
type DataConfig struct {
	Dir       string `mapstructure:"dir"        yaml:"dir"`
	HistoryDB string `mapstructure:"history_db" yaml:"history_db"`
}

// SourcesConfig holds upstream endpoints and fetch policy.
type SourcesConfig struct {
	TesouroCSVURL     string   `mapstructure:"tesouro_csv_url"     yaml:"tesouro_csv_url"`
	Investidor10URL   string   `mapstructure:"investidor10_url"    yaml:"investidor10_url"`
	SGSURL            string   `mapstructure:"sgs_url"             yaml:"sgs_url"` // with %d for the series code
	FocusURL          string   `mapstructure:"focus_url"           yaml:"focus_url"`
	NewsFeeds         []string `mapstructure:"news_feeds"          yaml:"news_feeds"`
	TimeoutSec        int      `mapstructure:"timeout_sec"         yaml:"timeout_sec"`
	CacheTTL          int      `mapstructure:"cache_ttl"           yaml:"cache_ttl"` // seconds
	RequestsPerSecond float64  `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// Timeout returns the per-request timeout.
func (s SourcesConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// CacheDuration returns the payload cache TTL.
func (s SourcesConfig) CacheDuration() time.Duration {
	return time.Duration(s.CacheTTL) * time.Second
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.tesouroquant/config.yaml (home directory)
//  3. /etc/tesouroquant/config.yaml (system)
//
// Environment variables override config file values.
// Format: TESOUROQUANT_<SECTION>_<KEY>, e.g., TESOUROQUANT_LLM_GEMINI_KEY
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".tesouroquant"))
	v.AddConfigPath("/etc/tesouroquant")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engines cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Pricing.SyntheticCouponRate < 0:
		return fmt.Errorf("pricing.synthetic_coupon_rate must be >= 0, got %v", c.Pricing.SyntheticCouponRate)
	case c.Curve.MaxTenor <= 0:
		return fmt.Errorf("curve.max_tenor must be > 0, got %v", c.Curve.MaxTenor)
	case c.Curve.Step <= 0 || c.Curve.Step > c.Curve.MaxTenor:
		return fmt.Errorf("curve.step must be in (0, max_tenor], got %v", c.Curve.Step)
	case c.Portfolio.LowRiskBelow > c.Portfolio.MediumRiskBelow:
		return fmt.Errorf("portfolio.low_risk_below (%v) exceeds medium_risk_below (%v)",
			c.Portfolio.LowRiskBelow, c.Portfolio.MediumRiskBelow)
	}
	return nil
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.primary", "gemini")
	v.SetDefault("llm.ollama_url", "http://localhost:11434")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.fallback_model", "llama3.1")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)

	// Pricing defaults
	v.SetDefault("pricing.synthetic_coupon_rate", 0.06)

	// Curve defaults
	v.SetDefault("curve.max_tenor", 40.0)
	v.SetDefault("curve.step", 0.25)
	v.SetDefault("curve.min_vertices", 3)

	// Portfolio defaults
	v.SetDefault("portfolio.low_risk_below", 2.0)
	v.SetDefault("portfolio.medium_risk_below", 6.0)

	// Data defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.history_db", "data/historico.db")

	// Source defaults
	v.SetDefault("sources.tesouro_csv_url", "https://www.tesourotransparente.gov.br/ckan/dataset/df56aa42-484a-4a59-8184-7676580c81e3/resource/796d2059-14e9-44e3-80c9-2d9e30b405c1/download/precotaxatesourodireto.csv")
	v.SetDefault("sources.investidor10_url", "https://investidor10.com.br/tesouro-direto/")
	v.SetDefault("sources.sgs_url", "https://api.bcb.gov.br/dados/serie/bcdata.sgs.%d/dados")
	v.SetDefault("sources.focus_url", "https://olinda.bcb.gov.br/olinda/servico/Expectativas/versao/v1/odata/ExpectativasMercadoAnuais")
	v.SetDefault("sources.news_feeds", []string{
		"https://www.bcb.gov.br/api/feed/sitebcb/sitefeeds/noticias",
		"https://www.bcb.gov.br/api/feed/sitebcb/sitefeeds/notasImprensa",
	})
	v.SetDefault("sources.timeout_sec", 60)
	v.SetDefault("sources.cache_ttl", 900) // 15 minutes
	v.SetDefault("sources.requests_per_second", 2.0)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
// GEMINI_API_KEY is the variable the genai SDK itself reads.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && cfg.LLM.GeminiKey == "" {
		cfg.LLM.GeminiKey = key
	}
	if key := os.Getenv(EnvPrefix + "_LLM_GEMINI_KEY"); key != "" {
		cfg.LLM.GeminiKey = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
