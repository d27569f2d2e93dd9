package billing

import "github.com/mihaimyh/gotier/pkg/gotier"

// CheckoutRequest describes a subscription checkout for a signed-in user
type CheckoutRequest struct {
	Level      gotier.AccessLevel
	UserID     string
	Email      string
	CustomerID string
}

// CheckoutSession is what the browser needs to mount embedded checkout
type CheckoutSession struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
}

// SessionPrice is the price attached to a session line item
type SessionPrice struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
}

// LineItem is a purchased line of a checkout session
type LineItem struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Quantity    int64         `json:"quantity"`
	AmountTotal int64         `json:"amount_total"`
	Price       *SessionPrice `json:"price,omitempty"`
}

// SessionStatus is the read-only view of a checkout session shown on the
// return page.
type SessionStatus struct {
	Status         string            `json:"status"`
	PaymentStatus  string            `json:"payment_status"`
	CustomerEmail  string            `json:"customer_email"`
	CustomerName   string            `json:"customer_name"`
	CustomerID     string            `json:"customer_id"`
	SubscriptionID string            `json:"subscription_id"`
	AmountTotal    int64             `json:"amount_total"`
	Currency       string            `json:"currency"`
	LineItems      []LineItem        `json:"line_items"`
	Created        int64             `json:"created"`
	ExpiresAt      int64             `json:"expires_at"`
	Metadata       map[string]string `json:"metadata"`
}
