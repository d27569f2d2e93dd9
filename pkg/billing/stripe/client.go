package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v83"
)

// API is the subset of the Stripe API the provider uses
type API interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, id string, params *stripe.CheckoutSessionRetrieveParams) (*stripe.CheckoutSession, error)
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// clientAPI implements API on top of stripe.Client
type clientAPI struct {
	client *stripe.Client
}

func newClientAPI(apiKey string) *clientAPI {
	return &clientAPI{client: stripe.NewClient(apiKey)}
}

func (c *clientAPI) CreateCheckoutSession(
	ctx context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	return c.client.V1CheckoutSessions.Create(ctx, params)
}

func (c *clientAPI) RetrieveCheckoutSession(
	ctx context.Context, id string, params *stripe.CheckoutSessionRetrieveParams,
) (*stripe.CheckoutSession, error) {
	return c.client.V1CheckoutSessions.Retrieve(ctx, id, params)
}

func (c *clientAPI) ListActiveSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(customerID)
	params.Status = stripe.String(subscriptionStatusActive)

	var subs []*stripe.Subscription
	for sub, err := range c.client.V1Subscriptions.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (c *clientAPI) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	return c.client.V1Subscriptions.Update(ctx, subscriptionID, params)
}
