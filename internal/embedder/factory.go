package embedder

import (
	"fmt"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider   string // auto, openai, jina, local, none
	Model      string
	BaseURL    string
	OpenAIKey  string
	JinaKey    string
	Dimension  int
	CacheSize  int
	BatchSize  int
	BatchDelay time.Duration
	Retry      RetryConfig
}

func (c Config) batchOptions() batchOptions {
	opts := batchOptions{
		size:  c.BatchSize,
		delay: c.BatchDelay,
		retry: c.Retry,
	}
	if opts.size <= 0 || opts.size > MaxBatchSize {
		opts.size = DefaultBatchSize
	}
	if opts.delay < 0 {
		opts.delay = 0
	}
	if opts.retry.MaxRetries <= 0 {
		opts.retry = DefaultRetryConfig()
	}
	return opts
}

// New creates the embedder selected by cfg. It returns ErrNoProviderEnabled
// when the selection resolves to none; callers run keyword-only then.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch provider := Detect(cfg); provider {
	case ProviderJina:
		return NewJinaProvider(cfg, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderLocal:
		return NewLocalProvider(), nil
	case ProviderNone:
		return nil, ErrNoProviderEnabled
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// Detect returns the provider that New would construct.
// Priority for "auto" (or empty): OpenAI key, then Jina key, then none.
// The local provider is only used when selected explicitly.
func Detect(cfg Config) string {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider != "" && provider != ProviderAuto {
		return provider
	}

	if cfg.OpenAIKey != "" {
		return ProviderOpenAI
	}
	if cfg.JinaKey != "" {
		return ProviderJina
	}

	return ProviderNone
}
