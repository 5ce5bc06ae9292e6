// Package config loads runtime configuration from the process environment,
// optionally seeded from a local .env file.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultBackendTimeout = 10 * time.Second

	defaultGatewayName        = "Bridal Dreams"
	defaultGatewayCurrency    = "INR"
	defaultGatewayLoadTimeout = 10 * time.Second

	defaultCurrency              = "INR"
	defaultTaxRate               = "0.10"
	defaultShippingFee           = "7.99"
	defaultFreeShippingThreshold = "2000"

	defaultMaxQuantityPerItem = 10
	defaultSessionTTL         = 24 * time.Hour
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Gateway  GatewayConfig
	Pricing  PricingConfig
	Checkout CheckoutConfig
	Features FeatureFlags
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BackendConfig points at the remote commerce API.
type BackendConfig struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string
}

// GatewayConfig configures the hosted payment gateway integration.
type GatewayConfig struct {
	DisplayName string
	Currency    string
	LoadTimeout time.Duration
}

// PricingConfig holds the totals calculator parameters as decimal strings.
type PricingConfig struct {
	Currency              string
	TaxRate               decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// CheckoutConfig bounds cart and session behaviour.
type CheckoutConfig struct {
	MaxQuantityPerItem int
	SessionTTL         time.Duration
}

// FeatureFlags toggles optional behaviour.
type FeatureFlags struct {
	DemoFallback bool
}

type options struct {
	envFile string
	lookup  func(string) (string, bool)
}

// Option customises configuration loading.
type Option func(*options)

// WithEnvFile overrides the .env file path consulted before the process env.
func WithEnvFile(path string) Option {
	return func(o *options) {
		o.envFile = path
	}
}

// WithLookup overrides the environment lookup, used by tests.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(o *options) {
		o.lookup = lookup
	}
}

// Load reads, validates, and returns the configuration.
func Load(opts ...Option) (Config, error) {
	o := options{envFile: defaultEnvFile, lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	fileValues, err := readEnvFile(o.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if value, ok := o.lookup(key); ok {
			return value, true
		}
		value, ok := fileValues[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringValue(lookup, "PORT", defaultPort),
			ReadTimeout:  durationValue(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationValue(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationValue(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Backend: BackendConfig{
			BaseURL:   stringValue(lookup, "BACKEND_BASE_URL", ""),
			Timeout:   durationValue(lookup, "BACKEND_TIMEOUT", defaultBackendTimeout),
			AuthToken: stringValue(lookup, "BACKEND_AUTH_TOKEN", ""),
		},
		Gateway: GatewayConfig{
			DisplayName: stringValue(lookup, "GATEWAY_DISPLAY_NAME", defaultGatewayName),
			Currency:    strings.ToUpper(stringValue(lookup, "GATEWAY_CURRENCY", defaultGatewayCurrency)),
			LoadTimeout: durationValue(lookup, "GATEWAY_LOAD_TIMEOUT", defaultGatewayLoadTimeout),
		},
		Checkout: CheckoutConfig{
			MaxQuantityPerItem: intValue(lookup, "CHECKOUT_MAX_QUANTITY", defaultMaxQuantityPerItem),
			SessionTTL:         durationValue(lookup, "CART_SESSION_TTL", defaultSessionTTL),
		},
		Features: FeatureFlags{
			DemoFallback: boolValue(lookup, "FEATURE_DEMO_FALLBACK", false),
		},
	}

	pricing, err := loadPricing(lookup)
	if err != nil {
		return Config{}, err
	}
	cfg.Pricing = pricing

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadPricing(lookup func(string) (string, bool)) (PricingConfig, error) {
	parse := func(key, fallback string) (decimal.Decimal, error) {
		raw := stringValue(lookup, key, fallback)
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("config: %s must be a decimal number: %w", key, err)
		}
		if value.IsNegative() {
			return decimal.Zero, fmt.Errorf("config: %s must be non-negative", key)
		}
		return value, nil
	}

	taxRate, err := parse("PRICING_TAX_RATE", defaultTaxRate)
	if err != nil {
		return PricingConfig{}, err
	}
	fee, err := parse("PRICING_SHIPPING_FEE", defaultShippingFee)
	if err != nil {
		return PricingConfig{}, err
	}
	threshold, err := parse("PRICING_FREE_SHIPPING_THRESHOLD", defaultFreeShippingThreshold)
	if err != nil {
		return PricingConfig{}, err
	}

	return PricingConfig{
		Currency:              strings.ToUpper(stringValue(lookup, "PRICING_CURRENCY", defaultCurrency)),
		TaxRate:               taxRate,
		ShippingFee:           fee,
		FreeShippingThreshold: threshold,
	}, nil
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return errors.New("config: BACKEND_BASE_URL is required")
	}
	if cfg.Backend.Timeout <= 0 {
		return errors.New("config: BACKEND_TIMEOUT must be positive")
	}
	if cfg.Gateway.LoadTimeout <= 0 {
		return errors.New("config: GATEWAY_LOAD_TIMEOUT must be positive")
	}
	if cfg.Checkout.MaxQuantityPerItem <= 0 {
		return errors.New("config: CHECKOUT_MAX_QUANTITY must be positive")
	}
	if len(cfg.Pricing.Currency) != 3 {
		return errors.New("config: PRICING_CURRENCY must be a 3-letter ISO code")
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	values := make(map[string]string)
	if strings.TrimSpace(path) == "" {
		return values, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("config: open env file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file: %w", err)
	}
	return values, nil
}

func stringValue(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationValue(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	raw := stringValue(lookup, key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func intValue(lookup func(string) (string, bool), key string, fallback int) int {
	raw := stringValue(lookup, key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func boolValue(lookup func(string) (string, bool), key string, fallback bool) bool {
	raw := stringValue(lookup, key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
