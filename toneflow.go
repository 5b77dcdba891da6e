// Package toneflow provides a top-level convenience entry point for creating
// a tone transformation service with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/toneflow"
//
//	svc, err := toneflow.New(toneflow.WithGroqAPIKey("gsk_..."))
//	svc, err := toneflow.New(toneflow.WithProvider(myProvider), toneflow.WithStore(myStore))
//
// Without an explicit store the service uses an in-process memory cache;
// production deployments should wire a gorm/redis/mongo store instead
// (see cmd/toneflow).
package toneflow

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/toneflow/cache"
	"github.com/BaSui01/toneflow/providers"
	"github.com/BaSui01/toneflow/providers/groq"
	"github.com/BaSui01/toneflow/tone"
	"github.com/BaSui01/toneflow/types"
)

// Option configures the service created by [New].
type Option func(*builder)

type builder struct {
	provider providers.Provider
	store    cache.Store
	logger   *zap.Logger
	opts     tone.Options
	apiKey   string
	model    string
}

// New creates a [tone.Service] with minimal configuration.
// At minimum an upstream must be available: either [WithProvider], or
// [WithGroqAPIKey], or a GROQ_API_KEY environment variable.
func New(opts ...Option) (*tone.Service, error) {
	b := &builder{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.provider == nil {
		apiKey := b.apiKey
		if apiKey == "" {
			apiKey = os.Getenv("GROQ_API_KEY")
		}
		if apiKey == "" {
			return nil, types.NewError(types.ErrInvalidRequest, "no upstream configured: set WithProvider, WithGroqAPIKey, or GROQ_API_KEY")
		}
		b.provider = groq.NewGroqProvider(providers.GroqConfig{
			APIKey: apiKey,
			Model:  b.model,
		}, b.logger)
	}

	if b.store == nil {
		b.store = cache.NewMemoryStore()
	}

	b.opts.Model = b.model
	return tone.NewService(b.store, b.provider, b.opts, b.logger), nil
}

// WithProvider sets a pre-built upstream provider.
func WithProvider(p providers.Provider) Option {
	return func(b *builder) { b.provider = p }
}

// WithGroqAPIKey creates a Groq provider with the given key.
func WithGroqAPIKey(key string) Option {
	return func(b *builder) { b.apiKey = key }
}

// WithStore sets the cache store backing the service.
func WithStore(s cache.Store) Option {
	return func(b *builder) { b.store = s }
}

// WithModel overrides the upstream model name.
func WithModel(model string) Option {
	return func(b *builder) { b.model = model }
}

// WithTTL overrides the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(b *builder) { b.opts.TTL = ttl }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}
