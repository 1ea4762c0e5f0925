// Package config loads stemma settings from defaults, a YAML file, a .env
// file and STEMMA_* environment variables, in that order.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/JuniperStemma/core/distance"
	"github.com/FocuswithJustin/JuniperStemma/core/stemma"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STEMMA_"

// Config is the complete runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Aligner  AlignerConfig  `yaml:"aligner"`
	Distance DistanceConfig `yaml:"distance"`
	Tree     TreeConfig     `yaml:"tree"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the REST API.
type ServerConfig struct {
	Port              int      `yaml:"port" validate:"min=1,max=65535"`
	RateLimitRequests int      `yaml:"rate_limit_requests" validate:"gte=0"` // per minute, 0 disables
	RateLimitBurst    int      `yaml:"rate_limit_burst" validate:"gte=0"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	ArtifactsDir      string   `yaml:"artifacts_dir"` // empty keeps rendered trees in a temp dir
	MaxUploadBytes    int64    `yaml:"max_upload_bytes" validate:"gt=0"`
}

// StoreConfig selects the manuscript store.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite memory"`
	Path   string `yaml:"path" validate:"required_if=Driver sqlite"`
}

// AlignerConfig selects and tunes the alignment oracle.
type AlignerConfig struct {
	Kind         string        `yaml:"kind" validate:"oneof=builtin collatex"`
	CollateXURL  string        `yaml:"collatex_url" validate:"required_if=Kind collatex"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
	Workers      int           `yaml:"workers" validate:"gte=1"`
	CacheSize    int           `yaml:"cache_size" validate:"gte=0"`
	Segmentation bool          `yaml:"segmentation"`
	NearMatch    bool          `yaml:"near_match"`
}

// DistanceConfig controls matrix construction.
type DistanceConfig struct {
	Strategy         string `yaml:"strategy" validate:"oneof=alignment text"`
	distance.Options `yaml:",inline"`
}

// TreeConfig holds tree defaults.
type TreeConfig struct {
	Method string `yaml:"method" validate:"oneof=single complete average weighted centroid median ward"`
	Format string `yaml:"format" validate:"oneof=base64 png svg newick"`
	DPI    int    `yaml:"dpi" validate:"min=10,max=1200"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			RateLimitRequests: 120,
			RateLimitBurst:    20,
			MaxUploadBytes:    10 << 20,
		},
		Store: StoreConfig{Driver: "sqlite", Path: "stemma.db"},
		Aligner: AlignerConfig{
			Kind:      "builtin",
			Timeout:   30 * time.Second,
			Workers:   runtime.GOMAXPROCS(0),
			CacheSize: 1024,
			NearMatch: true,
		},
		Distance: DistanceConfig{Strategy: string(distance.StrategyAlignment)},
		Tree: TreeConfig{
			Method: stemma.DefaultMethod,
			Format: string(stemma.ModeBase64),
			DPI:    stemma.DefaultDPI,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load builds a configuration. path may be empty; a missing .env is ignored.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

func (c *Config) applyEnv(getenv func(string) string) {
	e := env{getenv}
	c.Server.Port = e.int("PORT", c.Server.Port)
	c.Server.RateLimitRequests = e.int("RATE_LIMIT_REQUESTS", c.Server.RateLimitRequests)
	c.Server.RateLimitBurst = e.int("RATE_LIMIT_BURST", c.Server.RateLimitBurst)
	c.Server.AllowedOrigins = e.list("ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.ArtifactsDir = e.str("ARTIFACTS_DIR", c.Server.ArtifactsDir)

	c.Store.Driver = e.str("STORE_DRIVER", c.Store.Driver)
	c.Store.Path = e.str("DB", c.Store.Path)

	c.Aligner.Kind = e.str("ALIGNER", c.Aligner.Kind)
	c.Aligner.CollateXURL = e.str("COLLATEX_URL", c.Aligner.CollateXURL)
	c.Aligner.Timeout = e.duration("ALIGNER_TIMEOUT", c.Aligner.Timeout)
	c.Aligner.Workers = e.int("WORKERS", c.Aligner.Workers)
	c.Aligner.CacheSize = e.int("CACHE_SIZE", c.Aligner.CacheSize)

	c.Distance.Strategy = e.str("STRATEGY", c.Distance.Strategy)
	c.Distance.Jitter = e.float("JITTER", c.Distance.Jitter)
	c.Distance.Seed = uint64(e.int("SEED", int(c.Distance.Seed)))

	c.Tree.Method = e.str("TREE_METHOD", c.Tree.Method)
	c.Tree.Format = e.str("TREE_FORMAT", c.Tree.Format)
	c.Tree.DPI = e.int("TREE_DPI", c.Tree.DPI)

	c.Logging.Level = e.str("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = e.str("LOG_FORMAT", c.Logging.Format)
}

var validate = validator.New()

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if u := c.Aligner.CollateXURL; u != "" {
		if err := validate.Var(u, "url"); err != nil {
			return fmt.Errorf("invalid configuration: aligner.collatex_url %q is not a URL", u)
		}
	}
	return nil
}

// StrategyValue returns the parsed distance strategy.
func (c *Config) StrategyValue() distance.Strategy {
	s, err := distance.ParseStrategy(c.Distance.Strategy)
	if err != nil {
		return distance.StrategyAlignment
	}
	return s
}

type env struct {
	getenv func(string) string
}

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(EnvPrefix + key)); v != "" {
		return v
	}
	return def
}

func (e env) int(key string, def int) int {
	if v := e.str(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (e env) float(key string, def float64) float64 {
	if v := e.str(key, ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (e env) duration(key string, def time.Duration) time.Duration {
	if v := e.str(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func (e env) list(key string, def []string) []string {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
