package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gotier/pkg/billing"
	"github.com/mihaimyh/gotier/pkg/gotier"
)

func TestCreateSession_Params(t *testing.T) {
	tests := []struct {
		name         string
		req          billing.CheckoutRequest
		wantPrice    string
		wantCustomer string
		wantEmail    string
	}{
		{
			name:      "new customer uses email",
			req:       billing.CheckoutRequest{Level: gotier.AccessBasic, UserID: testUserID, Email: testEmail},
			wantPrice: testPriceIDBasic,
			wantEmail: testEmail,
		},
		{
			name:         "existing customer is reused",
			req:          billing.CheckoutRequest{Level: gotier.AccessPremium, UserID: testUserID, Email: testEmail, CustomerID: testCustomerID},
			wantPrice:    testPriceIDPremium,
			wantCustomer: testCustomerID,
		},
		{
			name:      "malformed customer id falls back to email",
			req:       billing.CheckoutRequest{Level: gotier.AccessPremium, UserID: testUserID, Email: testEmail, CustomerID: "bogus"},
			wantPrice: testPriceIDPremium,
			wantEmail: testEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			p := newTestProvider(api)

			secret, err := p.CreateSession(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}
			if secret != "cs_test_new_secret" {
				t.Errorf("client secret = %q", secret)
			}
			if len(api.created) != 1 {
				t.Fatalf("expected one create call, got %d", len(api.created))
			}

			params := api.created[0]
			if got := stripe.StringValue(params.Mode); got != "subscription" {
				t.Errorf("mode = %q", got)
			}
			if got := stripe.StringValue(params.UIMode); got != "embedded" {
				t.Errorf("ui_mode = %q", got)
			}
			if len(params.LineItems) != 1 || stripe.StringValue(params.LineItems[0].Price) != tt.wantPrice {
				t.Errorf("unexpected line items %+v", params.LineItems)
			}
			if stripe.Int64Value(params.LineItems[0].Quantity) != 1 {
				t.Error("quantity should be 1")
			}
			wantReturn := testBaseURL + "/checkout/return?session_id={CHECKOUT_SESSION_ID}"
			if got := stripe.StringValue(params.ReturnURL); got != wantReturn {
				t.Errorf("return_url = %q, want %q", got, wantReturn)
			}
			if got := stripe.StringValue(params.ClientReferenceID); got != testUserID {
				t.Errorf("client_reference_id = %q", got)
			}
			if params.Metadata["user_id"] != testUserID || params.Metadata["access_level"] != string(tt.req.Level) {
				t.Errorf("metadata = %v", params.Metadata)
			}
			if got := stripe.StringValue(params.Customer); got != tt.wantCustomer {
				t.Errorf("customer = %q, want %q", got, tt.wantCustomer)
			}
			if got := stripe.StringValue(params.CustomerEmail); got != tt.wantEmail {
				t.Errorf("customer_email = %q, want %q", got, tt.wantEmail)
			}
		})
	}
}

func TestCreateSession_InvalidTier(t *testing.T) {
	api := newFakeAPI()
	p := newTestProvider(api)

	for _, level := range []gotier.AccessLevel{gotier.AccessFree, "gold"} {
		_, err := p.CreateSession(context.Background(), billing.CheckoutRequest{Level: level, UserID: testUserID})
		if !errors.Is(err, billing.ErrInvalidTier) {
			t.Errorf("level %q: expected ErrInvalidTier, got %v", level, err)
		}
	}
	if len(api.created) != 0 {
		t.Error("no session should be created for an invalid tier")
	}
}

func TestCreateSession_UpstreamError(t *testing.T) {
	api := newFakeAPI()
	api.createErr = errStripeDown
	p := newTestProvider(api)

	_, err := p.CreateSession(context.Background(), billing.CheckoutRequest{Level: gotier.AccessBasic, UserID: testUserID})
	if !errors.Is(err, gotier.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestSessionStatus(t *testing.T) {
	api := newFakeAPI()
	api.sessions["cs_test_1"] = &stripe.CheckoutSession{
		ID:            "cs_test_1",
		Status:        stripe.CheckoutSessionStatusComplete,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
			Email: testEmail,
			Name:  "Ada Lovelace",
		},
		Customer:     &stripe.Customer{ID: testCustomerID},
		Subscription: &stripe.Subscription{ID: "sub_1"},
		AmountTotal:  2999,
		Currency:     stripe.CurrencyUSD,
		Created:      1700000000,
		ExpiresAt:    1700086400,
		Metadata:     map[string]string{"user_id": testUserID},
		LineItems: &stripe.LineItemList{Data: []*stripe.LineItem{
			{
				ID:          "li_1",
				Description: "Premium Plan",
				Quantity:    1,
				AmountTotal: 2999,
				Price:       &stripe.Price{ID: testPriceIDPremium, UnitAmount: 2999, Currency: stripe.CurrencyUSD},
			},
		}},
	}
	p := newTestProvider(api)

	status, err := p.SessionStatus(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("SessionStatus failed: %v", err)
	}
	if status.Status != "complete" || status.PaymentStatus != "paid" {
		t.Errorf("status = %q/%q", status.Status, status.PaymentStatus)
	}
	if status.CustomerEmail != testEmail || status.CustomerName != "Ada Lovelace" || status.CustomerID != testCustomerID {
		t.Errorf("unexpected customer fields %+v", status)
	}
	if status.SubscriptionID != "sub_1" || status.AmountTotal != 2999 || status.Currency != "usd" {
		t.Errorf("unexpected totals %+v", status)
	}
	if len(status.LineItems) != 1 || status.LineItems[0].Price == nil || status.LineItems[0].Price.ID != testPriceIDPremium {
		t.Errorf("unexpected line items %+v", status.LineItems)
	}
	if status.Metadata["user_id"] != testUserID {
		t.Errorf("metadata = %v", status.Metadata)
	}

	expand := api.retrieved[0].Expand
	if len(expand) != 3 {
		t.Errorf("expected three expansions, got %v", expand)
	}
}

func TestSessionStatus_NotFound(t *testing.T) {
	p := newTestProvider(newFakeAPI())

	if _, err := p.SessionStatus(context.Background(), "cs_missing"); !errors.Is(err, billing.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := p.SessionStatus(context.Background(), ""); !errors.Is(err, billing.ErrSessionNotFound) {
		t.Errorf("empty id: expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStatus_UpstreamError(t *testing.T) {
	api := newFakeAPI()
	api.retrieveErr = errStripeDown
	p := newTestProvider(api)

	if _, err := p.SessionStatus(context.Background(), "cs_test_1"); !errors.Is(err, gotier.ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestFetchCompletedSession(t *testing.T) {
	api := newFakeAPI()
	api.sessions["cs_test_2"] = &stripe.CheckoutSession{
		ID:       "cs_test_2",
		Customer: &stripe.Customer{ID: testCustomerID, Email: "old@example.com", Name: "Ada"},
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
			Email: testEmail,
		},
		LineItems: &stripe.LineItemList{Data: []*stripe.LineItem{
			{Price: &stripe.Price{ID: testPriceIDBasic}},
			{Price: nil},
			{Price: &stripe.Price{ID: testPriceIDPremium}},
		}},
	}
	p := newTestProvider(api)

	details, err := p.FetchCompletedSession(context.Background(), "cs_test_2")
	if err != nil {
		t.Fatalf("FetchCompletedSession failed: %v", err)
	}
	if details.CustomerID != testCustomerID || details.Email != testEmail || details.Name != "Ada" {
		t.Errorf("unexpected details %+v", details)
	}
	if len(details.PriceIDs) != 2 || details.PriceIDs[0] != testPriceIDBasic || details.PriceIDs[1] != testPriceIDPremium {
		t.Errorf("price ids = %v", details.PriceIDs)
	}
}
