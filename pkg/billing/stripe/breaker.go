package stripe

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gotier/pkg/billing/internal"
	"github.com/mihaimyh/gotier/pkg/gotier"
)

// breakerAPI guards an API with a circuit breaker. Only transport failures
// and 5xx/429 responses count towards opening it.
type breakerAPI struct {
	next    API
	breaker *internal.CircuitBreaker
}

func newBreakerAPI(next API, breaker *internal.CircuitBreaker) *breakerAPI {
	return &breakerAPI{next: next, breaker: breaker}
}

func (b *breakerAPI) CreateCheckoutSession(
	ctx context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	var session *stripe.CheckoutSession
	err := b.breaker.Execute(func() (err error) {
		session, err = b.next.CreateCheckoutSession(ctx, params)
		return err
	}, isUpstreamFailure)
	return session, err
}

func (b *breakerAPI) RetrieveCheckoutSession(
	ctx context.Context, id string, params *stripe.CheckoutSessionRetrieveParams,
) (*stripe.CheckoutSession, error) {
	var session *stripe.CheckoutSession
	err := b.breaker.Execute(func() (err error) {
		session, err = b.next.RetrieveCheckoutSession(ctx, id, params)
		return err
	}, isUpstreamFailure)
	return session, err
}

func (b *breakerAPI) ListActiveSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	var subs []*stripe.Subscription
	err := b.breaker.Execute(func() (err error) {
		subs, err = b.next.ListActiveSubscriptions(ctx, customerID)
		return err
	}, isUpstreamFailure)
	return subs, err
}

func (b *breakerAPI) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	var sub *stripe.Subscription
	err := b.breaker.Execute(func() (err error) {
		sub, err = b.next.CancelAtPeriodEnd(ctx, subscriptionID)
		return err
	}, isUpstreamFailure)
	return sub, err
}

// isUpstreamFailure reports whether err says Stripe itself is unhealthy.
// Request errors such as a missing session leave the breaker alone, and so
// does the caller giving up.
func isUpstreamFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return true
}

func breakerStateLogger(logger gotier.Logger) func(internal.BreakerState) {
	return func(state internal.BreakerState) {
		if state == internal.StateOpen {
			logger.Warn("stripe circuit breaker opened", gotier.F("provider", providerName))
			return
		}
		logger.Info("stripe circuit breaker state changed",
			gotier.F("provider", providerName),
			gotier.F("state", string(state)),
		)
	}
}
