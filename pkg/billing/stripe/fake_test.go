package stripe

import (
	"context"
	"errors"
	"sync"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

const (
	testStripeAPIKey        = "sk_test_1234567890"
	testStripeWebhookSecret = "whsec_test_secret"
	testUserID              = "test-user-123"
	testEmail               = "ada@example.com"
	testCustomerID          = "cus_test_123"
	testPriceIDBasic        = "price_basic_monthly"
	testPriceIDPremium      = "price_premium_monthly"
	testBaseURL             = "https://app.example.com"
)

var testPrices = gotier.PriceConfig{BasicPriceID: testPriceIDBasic, PremiumPriceID: testPriceIDPremium}

// fakeAPI records calls and serves canned Stripe objects
type fakeAPI struct {
	mu sync.Mutex

	created     []*stripe.CheckoutSessionCreateParams
	createErr   error
	sessions    map[string]*stripe.CheckoutSession
	retrieved   []*stripe.CheckoutSessionRetrieveParams
	retrieveErr error

	subscriptions []*stripe.Subscription
	listErr       error
	cancelErrs    map[string]error
	cancelled     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		sessions:   make(map[string]*stripe.CheckoutSession),
		cancelErrs: make(map[string]error),
	}
}

func (f *fakeAPI) CreateCheckoutSession(
	_ context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, params)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &stripe.CheckoutSession{ID: "cs_test_new", ClientSecret: "cs_test_new_secret"}, nil
}

func (f *fakeAPI) RetrieveCheckoutSession(
	_ context.Context, id string, params *stripe.CheckoutSessionRetrieveParams,
) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieved = append(f.retrieved, params)
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	session, ok := f.sessions[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: 404, Msg: "No such checkout.session"}
	}
	return session, nil
}

func (f *fakeAPI) ListActiveSubscriptions(_ context.Context, customerID string) ([]*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*stripe.Subscription
	for _, sub := range f.subscriptions {
		if sub.Customer != nil && sub.Customer.ID == customerID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeAPI) CancelAtPeriodEnd(_ context.Context, subscriptionID string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.cancelErrs[subscriptionID]; err != nil {
		return nil, err
	}
	f.cancelled = append(f.cancelled, subscriptionID)
	return &stripe.Subscription{ID: subscriptionID, CancelAtPeriodEnd: true}, nil
}

var errStripeDown = errors.New("stripe unavailable")

func newTestProvider(api *fakeAPI) *Provider {
	p, err := NewProvider(Config{
		APIKey:        testStripeAPIKey,
		WebhookSecret: testStripeWebhookSecret,
		Prices:        testPrices,
		BaseURL:       testBaseURL + "/",
		API:           api,
	})
	if err != nil {
		panic(err)
	}
	return p
}
