package stripe

import (
	"strings"
	"time"

	"github.com/mihaimyh/gotier/pkg/billing"
	"github.com/mihaimyh/gotier/pkg/billing/internal"
	"github.com/mihaimyh/gotier/pkg/gotier"
)

const (
	providerName             = "stripe"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	webhookBodyLimit         = 256 * 1024
	subscriptionStatusActive = "active"

	defaultBreakerThreshold = 5
	defaultBreakerReset     = 30 * time.Second
)

// Config holds Stripe credentials and the prices sold for each paid tier
type Config struct {
	APIKey        string
	WebhookSecret string

	// Prices maps the paid tiers to Stripe price ids
	Prices gotier.PriceConfig

	// BaseURL is the public origin used to build the embedded checkout return URL
	BaseURL string

	Logger  gotier.Logger
	Metrics billing.Metrics

	// BreakerThreshold consecutive upstream failures open the circuit for
	// BreakerReset. Defaults are 5 and 30s.
	BreakerThreshold int
	BreakerReset     time.Duration

	// API overrides the Stripe client (tests)
	API API
}

// Provider is the Stripe checkout gateway, webhook ingress and
// cancellation client.
type Provider struct {
	api           API
	prices        gotier.PriceConfig
	baseURL       string
	webhookSecret string
	rateLimiter   *internal.RateLimiter
	logger        gotier.Logger
	metrics       billing.Metrics
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" && config.API == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	logger := config.Logger
	if logger == nil {
		logger = &gotier.NoopLogger{}
	}

	api := config.API
	if api == nil {
		api = newClientAPI(apiKey)
	}
	threshold := config.BreakerThreshold
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	reset := config.BreakerReset
	if reset <= 0 {
		reset = defaultBreakerReset
	}
	api = newBreakerAPI(api, internal.NewCircuitBreaker(threshold, reset, breakerStateLogger(logger)))

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		api:           api,
		prices:        config.Prices,
		baseURL:       strings.TrimRight(strings.TrimSpace(config.BaseURL), "/"),
		webhookSecret: strings.TrimSpace(config.WebhookSecret),
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// Prices returns the configured tier prices
func (p *Provider) Prices() gotier.PriceConfig {
	return p.prices
}

// record reports the outcome and latency of a Stripe API call
func (p *Provider) record(endpoint string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordAPICall(providerName, endpoint, status)
	p.metrics.RecordAPICallDuration(providerName, endpoint, time.Since(start))
}
