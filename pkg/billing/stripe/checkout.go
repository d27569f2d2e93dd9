package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gotier/pkg/billing"
	"github.com/mihaimyh/gotier/pkg/gotier"
)

const (
	endpointCreateSession   = "checkout_sessions.create"
	endpointRetrieveSession = "checkout_sessions.retrieve"

	checkoutUIModeEmbedded = "embedded"
	returnPath             = "/checkout/return?session_id={CHECKOUT_SESSION_ID}"
)

// CreateSession creates an embedded subscription checkout for req.Level and
// returns the client secret the browser mounts.
func (p *Provider) CreateSession(ctx context.Context, req billing.CheckoutRequest) (string, error) {
	priceID, ok := p.prices.PriceFor(req.Level)
	if !ok {
		p.metrics.RecordCheckoutSession(providerName, string(req.Level), "invalid_tier")
		return "", fmt.Errorf("%w: %q", billing.ErrInvalidTier, req.Level)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:   stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		UIMode: stripe.String(checkoutUIModeEmbedded),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ReturnURL:         stripe.String(p.baseURL + returnPath),
		ClientReferenceID: stripe.String(req.UserID),
		Metadata: map[string]string{
			"user_id":      req.UserID,
			"access_level": string(req.Level),
		},
	}

	// Reuse the existing customer so Stripe does not create a duplicate
	if gotier.IsValidCustomerID(req.CustomerID) {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	start := time.Now()
	session, err := p.api.CreateCheckoutSession(ctx, params)
	p.record(endpointCreateSession, start, err)
	if err != nil {
		p.metrics.RecordCheckoutSession(providerName, string(req.Level), "error")
		return "", fmt.Errorf("%w: create checkout session: %v", gotier.ErrUpstream, err)
	}

	p.metrics.RecordCheckoutSession(providerName, string(req.Level), "success")
	p.logger.Info("checkout session created",
		gotier.F("session_id", session.ID),
		gotier.F("user_id", req.UserID),
		gotier.F("access_level", req.Level),
	)
	return session.ClientSecret, nil
}

// SessionStatus returns the read-only view of a checkout session
func (p *Provider) SessionStatus(ctx context.Context, sessionID string) (*billing.SessionStatus, error) {
	session, err := p.retrieve(ctx, sessionID, "line_items", "subscription", "customer")
	if err != nil {
		return nil, err
	}

	status := &billing.SessionStatus{
		Status:        string(session.Status),
		PaymentStatus: string(session.PaymentStatus),
		CustomerEmail: session.CustomerEmail,
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
		Created:       session.Created,
		ExpiresAt:     session.ExpiresAt,
		Metadata:      session.Metadata,
		LineItems:     []billing.LineItem{},
	}
	if session.CustomerDetails != nil {
		if session.CustomerDetails.Email != "" {
			status.CustomerEmail = session.CustomerDetails.Email
		}
		status.CustomerName = session.CustomerDetails.Name
	}
	if session.Customer != nil {
		status.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		status.SubscriptionID = session.Subscription.ID
	}
	if session.LineItems != nil {
		for _, item := range session.LineItems.Data {
			if item == nil {
				continue
			}
			li := billing.LineItem{
				ID:          item.ID,
				Description: item.Description,
				Quantity:    item.Quantity,
				AmountTotal: item.AmountTotal,
			}
			if item.Price != nil {
				li.Price = &billing.SessionPrice{
					ID:         item.Price.ID,
					UnitAmount: item.Price.UnitAmount,
					Currency:   string(item.Price.Currency),
				}
			}
			status.LineItems = append(status.LineItems, li)
		}
	}
	return status, nil
}

// FetchCompletedSession re-reads a session with its line items and customer
// expanded. It implements gotier.SessionFetcher.
func (p *Provider) FetchCompletedSession(ctx context.Context, sessionID string) (*gotier.CheckoutDetails, error) {
	session, err := p.retrieve(ctx, sessionID, "line_items", "customer")
	if err != nil {
		return nil, err
	}

	details := &gotier.CheckoutDetails{SessionID: session.ID}
	if session.Customer != nil {
		details.CustomerID = session.Customer.ID
		details.Email = session.Customer.Email
		details.Name = session.Customer.Name
	}
	if session.CustomerDetails != nil {
		if session.CustomerDetails.Email != "" {
			details.Email = session.CustomerDetails.Email
		}
		if session.CustomerDetails.Name != "" {
			details.Name = session.CustomerDetails.Name
		}
	}
	if details.Email == "" {
		details.Email = session.CustomerEmail
	}
	details.PriceIDs = sessionPriceIDs(session)
	return details, nil
}

func (p *Provider) retrieve(ctx context.Context, sessionID string, expand ...string) (*stripe.CheckoutSession, error) {
	if sessionID == "" {
		return nil, billing.ErrSessionNotFound
	}

	params := &stripe.CheckoutSessionRetrieveParams{}
	for _, field := range expand {
		params.AddExpand(field)
	}

	start := time.Now()
	session, err := p.api.RetrieveCheckoutSession(ctx, sessionID, params)
	p.record(endpointRetrieveSession, start, err)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", billing.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("%w: retrieve checkout session: %v", gotier.ErrUpstream, err)
	}
	return session, nil
}

func sessionPriceIDs(session *stripe.CheckoutSession) []string {
	if session.LineItems == nil {
		return nil
	}
	ids := make([]string, 0, len(session.LineItems.Data))
	for _, item := range session.LineItems.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			ids = append(ids, item.Price.ID)
		}
	}
	return ids
}
