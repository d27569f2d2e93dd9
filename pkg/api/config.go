package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mihaimyh/gotier/pkg/billing"
	"github.com/mihaimyh/gotier/pkg/gotier"
)

// Billing is the processor surface the interactive API calls
type Billing interface {
	CreateSession(ctx context.Context, req billing.CheckoutRequest) (string, error)
	SessionStatus(ctx context.Context, sessionID string) (*billing.SessionStatus, error)
	CancelSubscriptions(ctx context.Context, customerID string) ([]string, error)
}

// Authenticator wraps handlers that need a signed-in caller
type Authenticator interface {
	Required(next http.Handler) http.Handler
}

// Config holds configuration for the API handler
type Config struct {
	// Store is the identity store (required)
	Store gotier.Store

	// Billing is the payment processor gateway (required)
	Billing Billing

	// Auth guards the user-facing routes (required)
	Auth Authenticator

	// Prices maps session line items to tiers for the PATCH session path
	Prices gotier.PriceConfig

	// CheckoutLimiter bounds checkout creation per user
	// If nil, a process-local limiter with the default limit is used
	CheckoutLimiter gotier.RateLimiter

	// AllowedOrigins are the scheme://host values accepted on checkout creation
	AllowedOrigins []string

	// Webhook is the processor webhook handler, mounted when set
	Webhook http.Handler

	// AuthRoutes is the sign-in router, mounted at /auth when set
	AuthRoutes http.Handler

	Logger  gotier.Logger
	Metrics gotier.Metrics
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.Billing == nil {
		return fmt.Errorf("billing is required")
	}
	if c.Auth == nil {
		return fmt.Errorf("auth is required")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin is required")
	}
	return nil
}

// NewHandler creates a new API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.CheckoutLimiter == nil {
		config.CheckoutLimiter = gotier.NewMemoryRateLimiter(gotier.DefaultCheckoutRateLimit())
	}
	if config.Logger == nil {
		config.Logger = &gotier.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &gotier.NoopMetrics{}
	}

	origins, err := normalizeOrigins(config.AllowedOrigins)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Handler{config: config, origins: origins}, nil
}
