package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "CODERAG"

// ConfigName is the config file looked up in the working directory
// (coderag.yaml, coderag.yml or coderag.json)
const ConfigName = "coderag"

// ErrInvalidConfig is returned when loaded values cannot be used
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete runtime configuration
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	LogLevel  string          `mapstructure:"log_level"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Rerank    RerankConfig    `mapstructure:"rerank"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
}

// VectorConfig selects the vector store backend
type VectorConfig struct {
	Backend          string        `mapstructure:"backend"`
	SQLitePath       string        `mapstructure:"sqlite_path"`
	QdrantURL        string        `mapstructure:"qdrant_url"`
	QdrantCollection string        `mapstructure:"qdrant_collection"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	OpenAIKey  string        `mapstructure:"openai_key"`
	JinaKey    string        `mapstructure:"jina_key"`
	Dimension  int           `mapstructure:"dimension"`
	CacheSize  int           `mapstructure:"cache_size"`
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	// LocalFallback embeds locally when the remote provider fails
	LocalFallback bool `mapstructure:"local_fallback"`
}

// RerankConfig configures the remote rerank service
type RerankConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMConfig configures answer generation
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
}

// SearchConfig tunes retrieval
type SearchConfig struct {
	DefaultLimit  int           `mapstructure:"default_limit"`
	VectorTimeout time.Duration `mapstructure:"vector_timeout"`
	CacheSize     int           `mapstructure:"cache_size"`
}

// Options controls where Load looks for configuration
type Options struct {
	// Dir is searched for .env and coderag.{yaml,yml,json}
	Dir string
	// File overrides the config file lookup
	File string
	// Flags may carry command-line overrides; see flagKeys
	Flags *pflag.FlagSet
}

var defaults = map[string]interface{}{
	"data_dir":  ".coderag",
	"log_level": "info",

	"vector.backend":           "memory",
	"vector.sqlite_path":       "",
	"vector.qdrant_url":        "",
	"vector.qdrant_collection": "coderag",
	"vector.timeout":           30 * time.Second,

	"embedding.provider":       "auto",
	"embedding.model":          "",
	"embedding.base_url":       "",
	"embedding.openai_key":     "",
	"embedding.jina_key":       "",
	"embedding.dimension":      0,
	"embedding.cache_size":     10000,
	"embedding.batch_size":     100,
	"embedding.batch_delay":    200 * time.Millisecond,
	"embedding.local_fallback": true,

	"rerank.url":     "",
	"rerank.api_key": "",
	"rerank.model":   "",
	"rerank.timeout": 10 * time.Second,

	"llm.provider":    "auto",
	"llm.base_url":    "",
	"llm.model":       "",
	"llm.api_key":     "",
	"llm.timeout":     60 * time.Second,
	"llm.max_tokens":  1024,
	"llm.temperature": 0.1,

	"search.default_limit":  10,
	"search.vector_timeout": 5 * time.Second,
	"search.cache_size":     256,
}

// wellKnownEnv maps keys to provider variables read after the CODERAG_ name
var wellKnownEnv = map[string][]string{
	"embedding.openai_key": {"OPENAI_API_KEY"},
	"embedding.jina_key":   {"JINA_API_KEY"},
	"rerank.api_key":       {"JINA_API_KEY"},
	"llm.api_key":          {"OPENAI_API_KEY"},
	"llm.base_url":         {"OPENAI_BASE_URL"},
	"vector.qdrant_url":    {"QDRANT_URL"},
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"data-dir":           "data_dir",
	"log-level":          "log_level",
	"vector-backend":     "vector.backend",
	"embedding-provider": "embedding.provider",
	"llm-provider":       "llm.provider",
	"llm-model":          "llm.model",
}

// Load reads configuration from defaults, the config file, .env, the
// environment and flags, later sources winning
func Load(opts Options) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	// .env never overrides variables already set
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper) error {
	for key, names := range wellKnownEnv {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envName}, names...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks values that have no safe fallback
func (c *Config) Validate() error {
	switch strings.ToLower(c.Vector.Backend) {
	case "memory", "sqlite":
	case "qdrant":
		if c.Vector.QdrantURL == "" {
			return fmt.Errorf("%w: vector.qdrant_url is required for the qdrant backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown vector backend %q", ErrInvalidConfig, c.Vector.Backend)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("%w: search.default_limit must be positive", ErrInvalidConfig)
	}
	return nil
}

// KeywordSourcePath is the persisted keyword source file
func (c *Config) KeywordSourcePath() string {
	return filepath.Join(c.DataDir, "keyword.json")
}

// SnapshotPath is the memory backend's vector snapshot
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, "vectors.json")
}

// SQLitePath is the sqlite backend's database file
func (c *Config) SQLitePath() string {
	if c.Vector.SQLitePath != "" {
		return c.Vector.SQLitePath
	}
	return filepath.Join(c.DataDir, "vectors.db")
}

// QdrantStatePath records the active qdrant collection
func (c *Config) QdrantStatePath() string {
	return filepath.Join(c.DataDir, "qdrant-state.json")
}

// SlogLevel parses LogLevel, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
