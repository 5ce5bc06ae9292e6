// Package gateway adapts the hosted payment gateway: it bootstraps the
// checkout client exactly once, requests server-issued payment intents, and
// presents the gateway's modal surface, normalising its terminal outcome.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bridal-dreams/storefront/internal/backend"
)

// DefaultLoadTimeout bounds the gateway bootstrap, mirroring the checkout
// script's 10 second ceiling.
const DefaultLoadTimeout = 10 * time.Second

// ConfigFetcher resolves the gateway client identification from the backend.
type ConfigFetcher interface {
	GetPaymentConfig(ctx context.Context) (backend.PaymentConfig, error)
}

// LoaderConfig wires the bootstrap dependencies.
type LoaderConfig struct {
	Fetcher ConfigFetcher
	Timeout time.Duration
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

// Loader performs the one-time gateway client bootstrap. Load never returns
// an error: it reports false when the bootstrap does not complete within the
// bounded timeout. Concurrent callers share a single in-flight fetch and a
// successful result is memoized for the process lifetime; failures are not,
// so a later attempt can retry.
type Loader struct {
	fetcher ConfigFetcher
	timeout time.Duration
	logger  func(ctx context.Context, event string, fields map[string]any)

	group singleflight.Group

	mu     sync.Mutex
	loaded bool
	config backend.PaymentConfig
}

// NewLoader constructs a Loader.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("gateway: config fetcher is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Loader{
		fetcher: cfg.Fetcher,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Load reports whether the gateway client is ready.
func (l *Loader) Load(ctx context.Context) bool {
	if l == nil {
		return false
	}

	l.mu.Lock()
	if l.loaded {
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()

	result := l.group.DoChan("load", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		return l.fetcher.GetPaymentConfig(fetchCtx)
	})

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case res := <-result:
		if res.Err != nil {
			l.logger(ctx, "gateway.load_failed", map[string]any{
				"error": res.Err.Error(),
			})
			return false
		}
		config, ok := res.Val.(backend.PaymentConfig)
		if !ok {
			return false
		}
		l.mu.Lock()
		l.loaded = true
		l.config = config
		l.mu.Unlock()
		l.logger(ctx, "gateway.loaded", map[string]any{
			"keyId": config.KeyID,
		})
		return true
	case <-timer.C:
		l.logger(ctx, "gateway.load_timeout", map[string]any{
			"timeout": l.timeout.String(),
		})
		return false
	case <-ctx.Done():
		return false
	}
}

// Config returns the memoized gateway configuration once Load has succeeded.
func (l *Loader) Config() (backend.PaymentConfig, bool) {
	if l == nil {
		return backend.PaymentConfig{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config, l.loaded
}
