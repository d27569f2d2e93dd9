// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

var (
	// ErrParsingConfig wraps every environment parsing failure
	ErrParsingConfig = errors.New("failed to parse configuration")

	// ErrInvalidConfig wraps values that parse but cannot be used
	ErrInvalidConfig = errors.New("invalid configuration")
)

var dotenvOnce sync.Once

// Config is the full server configuration
type Config struct {
	HTTP     HTTP     `envPrefix:"HTTP_"`
	App      App      `envPrefix:"APP_"`
	Stripe   Stripe   `envPrefix:"STRIPE_"`
	Database Database `envPrefix:"DATABASE_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	Auth     Auth
	Checkout Checkout `envPrefix:"CHECKOUT_"`
	Log      Log      `envPrefix:"LOG_"`
	Metrics  Metrics  `envPrefix:"METRICS_"`
}

type HTTP struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type App struct {
	// BaseURL is the public origin, used for return and callback URLs
	BaseURL        string   `env:"BASE_URL,required"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

type Stripe struct {
	SecretKey      string `env:"SECRET_KEY"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`
	BasicPriceID   string `env:"SUBSCRIPTION_ID_BASIC"`
	PremiumPriceID string `env:"SUBSCRIPTION_ID_PREMIUM"`
}

// Database selects the Postgres store when URL is set
type Database struct {
	URL      string `env:"URL"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
	MinConns int32  `env:"MIN_CONNS" envDefault:"2"`
}

// Redis selects the shared rate limiter when URL is set
type Redis struct {
	URL string `env:"URL"`
}

type Auth struct {
	GitHubClientID     string        `env:"GITHUB_ID"`
	GitHubClientSecret string        `env:"GITHUB_SECRET"`
	Secret             string        `env:"AUTH_SECRET,required"`
	SessionTTL         time.Duration `env:"AUTH_SESSION_TTL" envDefault:"720h"`
}

type Checkout struct {
	RateLimit  int           `env:"RATE_LIMIT" envDefault:"5"`
	RateWindow time.Duration `env:"RATE_WINDOW" envDefault:"60s"`
}

type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

type Metrics struct {
	Namespace string `env:"NAMESPACE" envDefault:"gotier"`
}

// Load reads .env once, ignoring a missing file, then parses the process
// environment.
func Load() (*Config, error) {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})
	return parse(env.Options{})
}

// FromMap parses the given variables instead of the process environment
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.App.BaseURL = strings.TrimRight(strings.TrimSpace(c.App.BaseURL), "/")
	base, err := url.Parse(c.App.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("%w: APP_BASE_URL must be an absolute URL", ErrInvalidConfig)
	}

	origins := c.App.AllowedOrigins[:0]
	for _, o := range c.App.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{c.App.BaseURL}
	}
	c.App.AllowedOrigins = origins

	if c.Checkout.RateLimit <= 0 || c.Checkout.RateWindow <= 0 {
		return fmt.Errorf("%w: checkout rate limit and window must be positive", ErrInvalidConfig)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("%w: AUTH_SESSION_TTL must be positive", ErrInvalidConfig)
	}
	return nil
}

// Prices returns the tier price mapping
func (c *Config) Prices() gotier.PriceConfig {
	return gotier.PriceConfig{
		BasicPriceID:   c.Stripe.BasicPriceID,
		PremiumPriceID: c.Stripe.PremiumPriceID,
	}
}

// CheckoutLimit returns the per-user checkout window
func (c *Config) CheckoutLimit() gotier.RateLimitConfig {
	return gotier.RateLimitConfig{Limit: c.Checkout.RateLimit, Window: c.Checkout.RateWindow}
}

// GitHubCallbackURL is the OAuth redirect target under the auth routes
func (c *Config) GitHubCallbackURL() string {
	return c.App.BaseURL + "/auth/github/callback"
}

// SecureCookies reports whether cookies should carry the Secure flag
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.App.BaseURL, "https://")
}
