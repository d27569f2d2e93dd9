package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/gotier/pkg/billing"
	"github.com/mihaimyh/gotier/pkg/billing/internal"
	"github.com/mihaimyh/gotier/pkg/gotier"
)

// Applier consumes decoded processor events
type Applier interface {
	Apply(ctx context.Context, ev gotier.Event) error
}

// WebhookHandler returns the HTTP handler for Stripe webhooks. Verified
// deliveries are always acknowledged with 200 so Stripe does not retry
// events the service has already logged as failed.
func (p *Provider) WebhookHandler(applier Applier) http.Handler {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.handleWebhook(w, r, applier)
	})
	return p.rateLimiter.Middleware(handler)
}

func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request, applier Applier) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if p.webhookSecret == "" {
		p.metrics.RecordWebhookError(providerName, "not_configured")
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, webhookBodyLimit, p.logger)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	event, err := p.verify(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		p.metrics.RecordWebhookError(providerName, "invalid_signature")
		p.logger.Warn("webhook signature rejected", gotier.F("error", err))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	eventType := string(event.Type)
	status := "success"

	ev, ok, err := decodeEvent(event)
	switch {
	case err != nil:
		status = "error"
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		p.logger.Error("webhook decode failed",
			gotier.F("event_id", event.ID),
			gotier.F("event_type", eventType),
			gotier.F("error", err),
		)
	case !ok:
		status = "ignored"
		p.logger.Debug("webhook event ignored",
			gotier.F("event_id", event.ID),
			gotier.F("event_type", eventType),
		)
	default:
		if err := applier.Apply(r.Context(), ev); err != nil {
			status = "error"
			p.metrics.RecordWebhookError(providerName, "apply_failed")
			p.logger.Error("webhook apply failed",
				gotier.F("event_id", event.ID),
				gotier.F("event_type", eventType),
				gotier.F("error", err),
			)
		}
	}

	p.metrics.RecordWebhookEvent(providerName, eventType, status)
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))

	if err := internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true}); err != nil {
		p.logger.Warn("webhook response write failed", gotier.F("error", err))
	}
}

func (p *Provider) verify(body []byte, signature string) (stripe.Event, error) {
	if signature == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing Stripe-Signature header", billing.ErrInvalidWebhookSignature)
	}
	event, err := webhook.ConstructEventWithOptions(body, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookSignature, err)
	}
	return event, nil
}

// decodeEvent maps a verified Stripe event onto a gotier event. The bool is
// false for event types the service does not act on.
func decodeEvent(event stripe.Event) (gotier.Event, bool, error) {
	if event.Data == nil {
		return nil, false, fmt.Errorf("%w: event %s has no data", billing.ErrInvalidWebhookPayload, event.ID)
	}
	raw := event.Data.Raw

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := unmarshal(raw, &session); err != nil {
			return nil, false, err
		}
		ev := gotier.CheckoutCompleted{SessionID: session.ID, Email: session.CustomerEmail}
		if session.Customer != nil {
			ev.CustomerID = session.Customer.ID
		}
		if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
			ev.Email = session.CustomerDetails.Email
		}
		return ev, true, nil

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := unmarshal(raw, &sub); err != nil {
			return nil, false, err
		}
		ev := gotier.SubscriptionUpdated{
			SubscriptionID: sub.ID,
			Status:         string(sub.Status),
			PriceIDs:       subscriptionPriceIDs(&sub),
		}
		if sub.Customer != nil {
			ev.CustomerID = sub.Customer.ID
		}
		return ev, true, nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := unmarshal(raw, &sub); err != nil {
			return nil, false, err
		}
		ev := gotier.SubscriptionDeleted{SubscriptionID: sub.ID}
		if sub.Customer != nil {
			ev.CustomerID = sub.Customer.ID
		}
		return ev, true, nil

	case "customer.created", "customer.updated", "customer.deleted":
		var customer stripe.Customer
		if err := unmarshal(raw, &customer); err != nil {
			return nil, false, err
		}
		switch event.Type {
		case "customer.created":
			return gotier.CustomerCreated{CustomerID: customer.ID, Email: customer.Email, Name: customer.Name}, true, nil
		case "customer.updated":
			return gotier.CustomerUpdated{CustomerID: customer.ID, Email: customer.Email, Name: customer.Name}, true, nil
		default:
			return gotier.CustomerDeleted{CustomerID: customer.ID}, true, nil
		}
	}
	return nil, false, nil
}

func unmarshal(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	return nil
}

func subscriptionPriceIDs(sub *stripe.Subscription) []string {
	if sub.Items == nil {
		return nil
	}
	ids := make([]string, 0, len(sub.Items.Data))
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			ids = append(ids, item.Price.ID)
		}
	}
	return ids
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
