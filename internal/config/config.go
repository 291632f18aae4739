// Package config loads the CLI configuration from a file, the environment and defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no path is given and it exists in the working directory.
const DefaultFile = "deepresearch.yaml"

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config is the full CLI configuration.
type Config struct {
	Run     RunSection     `yaml:"run" json:"run"`
	LLM     LLMSection     `yaml:"llm" json:"llm"`
	Search  SearchSection  `yaml:"search" json:"search"`
	Store   StoreSection   `yaml:"store" json:"store"`
	Retry   RetrySection   `yaml:"retry" json:"retry"`
	FanOut  FanOutSection  `yaml:"fanout" json:"fanout"`
	Output  OutputSection  `yaml:"output" json:"output"`
	Log     LogSection     `yaml:"log" json:"log"`
	Metrics MetricsSection `yaml:"metrics" json:"metrics"`
}

// RunSection holds the per-run research parameters.
type RunSection struct {
	MaxQueries             int  `yaml:"max_queries" json:"max_queries" hcl:"max_queries,optional"`
	SearchDepth            int  `yaml:"search_depth" json:"search_depth" hcl:"search_depth,optional"`
	NumReflections         int  `yaml:"num_reflections" json:"num_reflections" hcl:"num_reflections,optional"`
	MaxRowsFromEachSection int  `yaml:"max_rows_from_each_section" json:"max_rows_from_each_section" hcl:"max_rows_from_each_section,optional"`
	LegacyReflectionGate   bool `yaml:"legacy_reflection_gate" json:"legacy_reflection_gate" hcl:"legacy_reflection_gate,optional"`
}

type LLMSection struct {
	Provider    string  `yaml:"provider" json:"provider" hcl:"provider,optional"`
	Model       string  `yaml:"model" json:"model" hcl:"model,optional"`
	BaseURL     string  `yaml:"base_url" json:"base_url" hcl:"base_url,optional"`
	APIKey      string  `yaml:"api_key" json:"api_key" hcl:"api_key,optional"`
	Temperature float64 `yaml:"temperature" json:"temperature" hcl:"temperature,optional"`
}

type SearchSection struct {
	Provider string `yaml:"provider" json:"provider" hcl:"provider,optional"`
	APIKey   string `yaml:"api_key" json:"api_key" hcl:"api_key,optional"`
	BaseURL  string `yaml:"base_url" json:"base_url" hcl:"base_url,optional"`
}

type StoreSection struct {
	Backend       string `yaml:"backend" json:"backend" hcl:"backend,optional"`
	Path          string `yaml:"path" json:"path" hcl:"path,optional"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr" hcl:"redis_addr,optional"`
	RedisPassword string `yaml:"redis_password" json:"redis_password" hcl:"redis_password,optional"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db" hcl:"redis_db,optional"`
	RedisPrefix   string `yaml:"redis_prefix" json:"redis_prefix" hcl:"redis_prefix,optional"`
	TTL           string `yaml:"ttl" json:"ttl" hcl:"ttl,optional"`
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key" hcl:"encryption_key,optional"`
}

type RetrySection struct {
	MaxAttempts int    `yaml:"max_attempts" json:"max_attempts" hcl:"max_attempts,optional"`
	BaseDelay   string `yaml:"base_delay" json:"base_delay" hcl:"base_delay,optional"`
}

type FanOutSection struct {
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" hcl:"max_concurrency,optional"`
}

type OutputSection struct {
	Dir string `yaml:"dir" json:"dir" hcl:"dir,optional"`
}

type LogSection struct {
	Level  string `yaml:"level" json:"level" hcl:"level,optional"`
	Format string `yaml:"format" json:"format" hcl:"format,optional"`
}

type MetricsSection struct {
	Addr string `yaml:"addr" json:"addr" hcl:"addr,optional"`
}

// hclFile mirrors Config with optional blocks.
type hclFile struct {
	Run     *RunSection     `hcl:"run,block"`
	LLM     *LLMSection     `hcl:"llm,block"`
	Search  *SearchSection  `hcl:"search,block"`
	Store   *StoreSection   `hcl:"store,block"`
	Retry   *RetrySection   `hcl:"retry,block"`
	FanOut  *FanOutSection  `hcl:"fanout,block"`
	Output  *OutputSection  `hcl:"output,block"`
	Log     *LogSection     `hcl:"log,block"`
	Metrics *MetricsSection `hcl:"metrics,block"`
}

// LookupEnv matches os.LookupEnv.
type LookupEnv func(string) (string, bool)

// Load reads path (or DefaultFile if path is empty and it exists), applies
// environment overrides and fills the defaults.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, env LookupEnv) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case ".hcl":
		return decodeHCL(path, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

func decodeHCL(path string, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL config %s: %w", path, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL config %s: %w", path, diags)
	}

	if parsed.Run != nil {
		cfg.Run = *parsed.Run
	}
	if parsed.LLM != nil {
		cfg.LLM = *parsed.LLM
	}
	if parsed.Search != nil {
		cfg.Search = *parsed.Search
	}
	if parsed.Store != nil {
		cfg.Store = *parsed.Store
	}
	if parsed.Retry != nil {
		cfg.Retry = *parsed.Retry
	}
	if parsed.FanOut != nil {
		cfg.FanOut = *parsed.FanOut
	}
	if parsed.Output != nil {
		cfg.Output = *parsed.Output
	}
	if parsed.Log != nil {
		cfg.Log = *parsed.Log
	}
	if parsed.Metrics != nil {
		cfg.Metrics = *parsed.Metrics
	}
	return nil
}

func applyEnv(cfg *Config, env LookupEnv) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("DEEPRESEARCH_LLM_PROVIDER", &cfg.LLM.Provider)
	str("DEEPRESEARCH_LLM_MODEL", &cfg.LLM.Model)
	str("DEEPRESEARCH_LLM_BASE_URL", &cfg.LLM.BaseURL)
	str("OPENAI_API_KEY", &cfg.LLM.APIKey)
	str("TAVILY_API_KEY", &cfg.Search.APIKey)
	str("DEEPRESEARCH_STORE", &cfg.Store.Backend)
	str("DEEPRESEARCH_STORE_PATH", &cfg.Store.Path)
	str("DEEPRESEARCH_REDIS_ADDR", &cfg.Store.RedisAddr)
	str("DEEPRESEARCH_REDIS_PASSWORD", &cfg.Store.RedisPassword)
	str("DEEPRESEARCH_ENCRYPTION_KEY", &cfg.Store.EncryptionKey)
	str("DEEPRESEARCH_OUTPUT_DIR", &cfg.Output.Dir)
	str("DEEPRESEARCH_LOG_LEVEL", &cfg.Log.Level)
	str("DEEPRESEARCH_LOG_FORMAT", &cfg.Log.Format)
	str("DEEPRESEARCH_METRICS_ADDR", &cfg.Metrics.Addr)

	if v, ok := env("DEEPRESEARCH_MAX_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEEPRESEARCH_MAX_CONCURRENCY: %w", err)
		}
		cfg.FanOut.MaxConcurrency = n
	}
	return nil
}

// applyDefaults fills zero values. Zero always means "use the default".
func (c *Config) applyDefaults() {
	if c.Run.MaxQueries == 0 {
		c.Run.MaxQueries = 2
	}
	if c.Run.SearchDepth == 0 {
		c.Run.SearchDepth = 1
	}
	if c.Run.NumReflections == 0 {
		c.Run.NumReflections = 2
	}
	if c.Run.MaxRowsFromEachSection == 0 {
		c.Run.MaxRowsFromEachSection = 5
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.5
	}
	if c.Search.Provider == "" {
		c.Search.Provider = "tavily"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = StoreFile
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(".deepresearch", "runs")
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == "" {
		c.Retry.BaseDelay = "2s"
	}
	if c.FanOut.MaxConcurrency == 0 {
		c.FanOut.MaxConcurrency = 4
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "output_files"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate rejects values that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.MaxQueries < 0 || c.Run.SearchDepth < 0 || c.Run.NumReflections < 0 || c.Run.MaxRowsFromEachSection < 0 {
		errs = append(errs, errors.New("run parameters cannot be negative"))
	}
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	switch c.Store.Backend {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("retry.max_attempts cannot be negative"))
	}
	if _, err := c.Retry.Delay(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Store.Expiry(); err != nil {
		errs = append(errs, err)
	}
	if c.FanOut.MaxConcurrency < 0 {
		errs = append(errs, errors.New("fanout.max_concurrency cannot be negative"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Delay parses BaseDelay.
func (r RetrySection) Delay() (time.Duration, error) {
	if r.BaseDelay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.BaseDelay)
	if err != nil {
		return 0, fmt.Errorf("retry.base_delay: %w", err)
	}
	return d, nil
}

// Expiry parses TTL. Zero means checkpoints never expire.
func (s StoreSection) Expiry() (time.Duration, error) {
	if s.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.TTL)
	if err != nil {
		return 0, fmt.Errorf("store.ttl: %w", err)
	}
	return d, nil
}
