package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medicech/tesouro-quant/internal/config"
	"github.com/medicech/tesouro-quant/internal/logging"
)

// Router sends requests to the primary provider and falls back through the
// remaining providers in order when it fails.
type Router struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	primary    string
	fallbacks  []string
	defaults   ChatOptions
	maxRetries int
	retryDelay time.Duration
	log        logrus.FieldLogger
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithFallbacks sets the fallback provider chain.
func WithFallbacks(providers ...string) RouterOption {
	return func(r *Router) { r.fallbacks = providers }
}

// WithMaxRetries sets the maximum number of retry attempts per provider.
func WithMaxRetries(n int) RouterOption {
	return func(r *Router) { r.maxRetries = n }
}

// WithRetryDelay sets the base delay between retries.
func WithRetryDelay(d time.Duration) RouterOption {
	return func(r *Router) { r.retryDelay = d }
}

// WithDefaults sets the options applied when a request leaves them unset.
func WithDefaults(opts ChatOptions) RouterOption {
	return func(r *Router) { r.defaults = opts }
}

// WithLogger sets the router's logger.
func WithLogger(log logrus.FieldLogger) RouterOption {
	return func(r *Router) { r.log = logging.OrDiscard(log) }
}

// NewRouter creates a new LLM router with the given primary provider.
func NewRouter(primary string, opts ...RouterOption) *Router {
	r := &Router{
		providers:  make(map[string]Provider),
		primary:    primary,
		maxRetries: 2,
		retryDelay: time.Second,
		log:        logging.OrDiscard(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProvider adds a provider to the router.
func (r *Router) RegisterProvider(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// GetProvider returns a registered provider by name.
func (r *Router) GetProvider(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Primary returns the primary provider.
func (r *Router) Primary() (Provider, error) {
	p, ok := r.GetProvider(r.primary)
	if !ok {
		return nil, fmt.Errorf("%w: primary provider %q not registered", ErrNoProviders, r.primary)
	}
	return p, nil
}

// Name identifies the router by its primary provider.
func (r *Router) Name() string {
	return "router/" + r.primary
}

// Ping checks the primary provider's health.
func (r *Router) Ping(ctx context.Context) error {
	p, err := r.Primary()
	if err != nil {
		return err
	}
	return p.Ping(ctx)
}

// Chat routes a chat request through the provider chain with fallback.
// A fallback provider keeps its own default model unless opts names one.
func (r *Router) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	chain := r.providerChain()
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}
	opts = r.withDefaults(opts)

	var lastErr error
	tried := 0
	for _, name := range chain {
		provider, ok := r.GetProvider(name)
		if !ok {
			continue
		}
		tried++

		resp, err := r.chatWithRetry(ctx, provider, messages, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		r.log.WithError(err).WithField("provider", name).Warn("llm provider failed, trying next")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrContextLength) {
			return nil, err
		}
	}
	if tried == 0 {
		return nil, ErrNoProviders
	}
	return nil, fmt.Errorf("llm/router: all providers failed, last error: %w", lastErr)
}

// HealthCheck pings all registered providers and returns their status.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	providers := make(map[string]Provider, len(r.providers))
	for k, v := range r.providers {
		providers[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(providers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, provider := range providers {
		wg.Add(1)
		go func(n string, p Provider) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			err := p.Ping(pingCtx)
			mu.Lock()
			results[n] = err
			mu.Unlock()
		}(name, provider)
	}
	wg.Wait()
	return results
}

func (r *Router) providerChain() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.providers) == 0 {
		return nil
	}
	chain := []string{r.primary}
	for _, fb := range r.fallbacks {
		if fb != r.primary {
			chain = append(chain, fb)
		}
	}
	return chain
}

func (r *Router) withDefaults(opts *ChatOptions) *ChatOptions {
	merged := r.defaults
	merged.Model = ""
	if opts == nil {
		return &merged
	}
	merged.Model = opts.Model
	if opts.Temperature > 0 {
		merged.Temperature = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		merged.MaxTokens = opts.MaxTokens
	}
	if opts.TopP > 0 {
		merged.TopP = opts.TopP
	}
	if len(opts.Stop) > 0 {
		merged.Stop = opts.Stop
	}
	return &merged
}

func (r *Router) chatWithRetry(ctx context.Context, provider Provider, messages []Message, opts *ChatOptions) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := provider.Chat(ctx, messages, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if isNonRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// isNonRetryable reports errors that a retry against the same provider cannot fix.
func isNonRetryable(err error) bool {
	return errors.Is(err, ErrNoAPIKey) ||
		errors.Is(err, ErrInvalidModel) ||
		errors.Is(err, ErrContextLength)
}

// NewRouterFromConfig builds a router from the assistant configuration.
// Gemini is registered when a key is set and Ollama when a URL is set; the
// one that is not primary becomes the fallback.
func NewRouterFromConfig(ctx context.Context, cfg config.LLMConfig, log logrus.FieldLogger) (*Router, error) {
	router := NewRouter(cfg.Primary,
		WithMaxRetries(2),
		WithRetryDelay(time.Second),
		WithDefaults(ChatOptions{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}),
		WithLogger(log),
	)

	var registered []string
	if cfg.GeminiKey != "" {
		model := cfg.Model
		if cfg.Primary != ProviderGemini || model == "" {
			model = DefaultGeminiModel
		}
		p, err := NewGeminiProvider(ctx, cfg.GeminiKey, WithGeminiModel(model))
		if err != nil {
			router.log.WithError(err).Warn("gemini provider unavailable")
		} else {
			router.RegisterProvider(p)
			registered = append(registered, ProviderGemini)
		}
	}
	if cfg.OllamaURL != "" {
		model := cfg.FallbackModel
		if cfg.Primary == ProviderOllama && cfg.Model != "" {
			model = cfg.Model
		}
		router.RegisterProvider(NewOllamaProvider(cfg.OllamaURL, WithOllamaModel(model)))
		registered = append(registered, ProviderOllama)
	}

	if len(registered) == 0 {
		return nil, ErrNoProviders
	}
	if _, ok := router.GetProvider(router.primary); !ok {
		router.log.WithField("primary", router.primary).Warnf("primary provider not available, using %s", registered[0])
		router.primary = registered[0]
	}
	for _, name := range registered {
		if name != router.primary {
			router.fallbacks = append(router.fallbacks, name)
		}
	}
	return router, nil
}
