package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

const (
	endpointListSubscriptions  = "subscriptions.list"
	endpointCancelSubscription = "subscriptions.update"
)

// CancelSubscriptions schedules every active subscription of customerID to
// end at the close of its current period and returns the ids it changed.
// A failure on one subscription is logged and does not stop the others.
func (p *Provider) CancelSubscriptions(ctx context.Context, customerID string) ([]string, error) {
	if !gotier.IsValidCustomerID(customerID) {
		return nil, fmt.Errorf("%w: %q", gotier.ErrInvalidCustomerID, customerID)
	}

	start := time.Now()
	subs, err := p.api.ListActiveSubscriptions(ctx, customerID)
	p.record(endpointListSubscriptions, start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: list subscriptions: %v", gotier.ErrUpstream, err)
	}

	cancelled := make([]string, 0, len(subs))
	for _, sub := range subs {
		if sub == nil || sub.Status != subscriptionStatusActive {
			continue
		}

		start = time.Now()
		_, err := p.api.CancelAtPeriodEnd(ctx, sub.ID)
		p.record(endpointCancelSubscription, start, err)
		if err != nil {
			p.logger.Warn("subscription cancel failed",
				gotier.F("customer_id", customerID),
				gotier.F("subscription_id", sub.ID),
				gotier.F("error", err),
			)
			continue
		}
		cancelled = append(cancelled, sub.ID)
	}

	p.logger.Info("subscriptions cancelled at period end",
		gotier.F("customer_id", customerID),
		gotier.F("count", len(cancelled)),
	)
	return cancelled, nil
}
