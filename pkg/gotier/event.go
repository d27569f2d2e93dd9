package gotier

// EventKind names a reconciliation event variant
type EventKind string

const (
	KindCheckoutCompleted   EventKind = "checkout-completed"
	KindSubscriptionUpdated EventKind = "subscription-updated"
	KindSubscriptionDeleted EventKind = "subscription-deleted"
	KindCustomerCreated     EventKind = "customer-created"
	KindCustomerUpdated     EventKind = "customer-updated"
	KindCustomerDeleted     EventKind = "customer-deleted"
)

// Event is one of the six processor notifications the reconciler understands.
// The set is closed: only types in this package implement it.
type Event interface {
	Kind() EventKind
	isEvent()
}

// CheckoutCompleted signals a finished checkout session. The reconciler
// re-fetches the session, so only identifiers are carried.
type CheckoutCompleted struct {
	SessionID  string
	CustomerID string
	Email      string
}

// SubscriptionUpdated carries the subscription status and its price ids
type SubscriptionUpdated struct {
	SubscriptionID string
	CustomerID     string
	Status         string
	PriceIDs       []string
}

type SubscriptionDeleted struct {
	SubscriptionID string
	CustomerID     string
}

type CustomerCreated struct {
	CustomerID string
	Email      string
	Name       string
}

type CustomerUpdated struct {
	CustomerID string
	Email      string
	Name       string
}

type CustomerDeleted struct {
	CustomerID string
}

func (CheckoutCompleted) Kind() EventKind   { return KindCheckoutCompleted }
func (SubscriptionUpdated) Kind() EventKind { return KindSubscriptionUpdated }
func (SubscriptionDeleted) Kind() EventKind { return KindSubscriptionDeleted }
func (CustomerCreated) Kind() EventKind     { return KindCustomerCreated }
func (CustomerUpdated) Kind() EventKind     { return KindCustomerUpdated }
func (CustomerDeleted) Kind() EventKind     { return KindCustomerDeleted }

func (CheckoutCompleted) isEvent()   {}
func (SubscriptionUpdated) isEvent() {}
func (SubscriptionDeleted) isEvent() {}
func (CustomerCreated) isEvent()     {}
func (CustomerUpdated) isEvent()     {}
func (CustomerDeleted) isEvent()     {}
