package gotier

import (
	"context"
	"errors"
	"fmt"
)

const (
	outcomeApplied  = "applied"
	outcomeSkipped  = "skipped"
	outcomeNotFound = "not_found"
	outcomeError    = "error"

	subscriptionStatusActive = "active"
)

// CheckoutDetails is the expanded view of a completed checkout session
type CheckoutDetails struct {
	SessionID  string
	CustomerID string
	Email      string
	Name       string
	PriceIDs   []string
}

// SessionFetcher re-reads a checkout session from the processor with its
// line items and customer expanded.
type SessionFetcher interface {
	FetchCompletedSession(ctx context.Context, sessionID string) (*CheckoutDetails, error)
}

// ReconcilerConfig holds the collaborators of a Reconciler
type ReconcilerConfig struct {
	// Store is the identity store (required)
	Store Store

	// Sessions re-fetches checkout sessions (required for checkout-completed)
	Sessions SessionFetcher

	// Prices maps processor price ids to paid tiers
	Prices PriceConfig

	// Logger is optional; defaults to NoopLogger
	Logger Logger

	// Metrics is optional; defaults to NoopMetrics
	Metrics Metrics
}

// Reconciler applies processor events to the identity store. It is the
// authoritative writer of access levels.
type Reconciler struct {
	store    Store
	sessions SessionFetcher
	prices   PriceConfig
	logger   Logger
	metrics  Metrics
}

// NewReconciler creates a reconciler with the given configuration
func NewReconciler(config ReconcilerConfig) (*Reconciler, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config.Sessions == nil {
		return nil, fmt.Errorf("session fetcher is required")
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	return &Reconciler{
		store:    config.Store,
		sessions: config.Sessions,
		prices:   config.Prices,
		logger:   config.Logger,
		metrics:  config.Metrics,
	}, nil
}

// Apply resolves the user an event refers to and applies the matching
// mutation. Unknown users are a logged no-op, not an error. Applying the
// same event twice yields the same end state.
func (r *Reconciler) Apply(ctx context.Context, ev Event) error {
	var (
		outcome string
		err     error
	)

	switch e := ev.(type) {
	case CheckoutCompleted:
		outcome, err = r.checkoutCompleted(ctx, e)
	case SubscriptionUpdated:
		outcome, err = r.subscriptionUpdated(ctx, e)
	case SubscriptionDeleted:
		outcome, err = r.subscriptionDeleted(ctx, e)
	case CustomerCreated:
		outcome, err = r.customerCreated(ctx, e)
	case CustomerUpdated:
		outcome, err = r.customerUpdated(ctx, e)
	case CustomerDeleted:
		outcome, err = r.customerDeleted(ctx, e)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedEvent, ev)
	}

	if err != nil {
		outcome = outcomeError
	}
	r.metrics.RecordEvent(ev.Kind(), outcome)
	return err
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, e CheckoutCompleted) (string, error) {
	details, err := r.sessions.FetchCompletedSession(ctx, e.SessionID)
	if err != nil {
		return outcomeError, fmt.Errorf("failed to fetch checkout session %s: %w", e.SessionID, err)
	}

	customerID := details.CustomerID
	if customerID == "" {
		customerID = e.CustomerID
	}
	email := details.Email
	if email == "" {
		email = e.Email
	}

	level := r.resolveTier(KindCheckoutCompleted, details.PriceIDs)

	res, err := r.resolve(ctx, KindCheckoutCompleted, customerID, email)
	if err != nil {
		return outcomeError, err
	}
	if !res.Resolved() {
		r.logger.Warn("No user found for completed checkout",
			F("event", KindCheckoutCompleted),
			F("session_id", e.SessionID),
			F("customer_id", customerID),
		)
		return outcomeNotFound, nil
	}

	return r.setLevel(ctx, KindCheckoutCompleted, res.User, level)
}

func (r *Reconciler) subscriptionUpdated(ctx context.Context, e SubscriptionUpdated) (string, error) {
	if e.Status != subscriptionStatusActive {
		r.logger.Debug("Ignoring inactive subscription update",
			F("event", KindSubscriptionUpdated),
			F("subscription_id", e.SubscriptionID),
			F("status", e.Status),
		)
		return outcomeSkipped, nil
	}

	level := r.resolveTier(KindSubscriptionUpdated, e.PriceIDs)

	res, err := r.resolve(ctx, KindSubscriptionUpdated, e.CustomerID, "")
	if err != nil {
		return outcomeError, err
	}
	if !res.Resolved() {
		r.logger.Warn("No user found for subscription update",
			F("event", KindSubscriptionUpdated),
			F("customer_id", e.CustomerID),
		)
		return outcomeNotFound, nil
	}

	return r.setLevel(ctx, KindSubscriptionUpdated, res.User, level)
}

func (r *Reconciler) subscriptionDeleted(ctx context.Context, e SubscriptionDeleted) (string, error) {
	res, err := r.resolve(ctx, KindSubscriptionDeleted, e.CustomerID, "")
	if err != nil {
		return outcomeError, err
	}
	if !res.Resolved() {
		r.logger.Warn("No user found for subscription deletion",
			F("event", KindSubscriptionDeleted),
			F("customer_id", e.CustomerID),
		)
		return outcomeNotFound, nil
	}

	return r.setLevel(ctx, KindSubscriptionDeleted, res.User, AccessFree)
}

func (r *Reconciler) customerCreated(ctx context.Context, e CustomerCreated) (string, error) {
	if !IsValidCustomerID(e.CustomerID) {
		return outcomeError, fmt.Errorf("%w: %q", ErrInvalidCustomerID, e.CustomerID)
	}

	if e.Email == "" {
		r.logger.Debug("Customer created without email, skipping user creation",
			F("event", KindCustomerCreated),
			F("customer_id", e.CustomerID),
		)
		return outcomeSkipped, nil
	}

	u, err := r.store.FindByEmail(ctx, e.Email)
	switch {
	case err == nil:
		return r.linkExisting(ctx, u, e.CustomerID)
	case !errors.Is(err, ErrNotFound):
		return outcomeError, fmt.Errorf("failed to find user by email: %w", err)
	}

	if _, err := r.store.FindByExternalCustomerID(ctx, e.CustomerID); err == nil {
		return outcomeSkipped, nil
	} else if !errors.Is(err, ErrNotFound) {
		return outcomeError, fmt.Errorf("failed to find user by customer id: %w", err)
	}

	u, err = r.store.Create(ctx, NewUser{
		Name:             e.Name,
		Email:            e.Email,
		AccessLevel:      AccessFree,
		StripeCustomerID: e.CustomerID,
	})
	if errors.Is(err, ErrConflict) {
		// A concurrent delivery won the insert.
		res, rerr := r.resolve(ctx, KindCustomerCreated, e.CustomerID, e.Email)
		if rerr != nil {
			return outcomeError, rerr
		}
		if res.Resolved() {
			return outcomeSkipped, nil
		}
		return outcomeError, fmt.Errorf("failed to create user for customer %s: %w", e.CustomerID, err)
	}
	if err != nil {
		return outcomeError, fmt.Errorf("failed to create user for customer %s: %w", e.CustomerID, err)
	}

	r.logger.Info("Created user for new customer",
		F("event", KindCustomerCreated),
		F("customer_id", e.CustomerID),
		F("user_id", u.ID),
	)
	return outcomeApplied, nil
}

func (r *Reconciler) linkExisting(ctx context.Context, u *User, customerID string) (string, error) {
	if u.StripeCustomerID == customerID {
		r.metrics.RecordResolution(Found)
		return outcomeSkipped, nil
	}
	if u.StripeCustomerID != "" {
		// The existing link keeps receiving that customer's subscription events.
		r.logger.Warn("User already linked to a different customer, not relinking",
			F("event", KindCustomerCreated),
			F("user_id", u.ID),
			F("linked_customer_id", u.StripeCustomerID),
			F("customer_id", customerID),
		)
		return outcomeSkipped, nil
	}
	if err := r.store.LinkExternalCustomerID(ctx, u.ID, customerID); err != nil {
		return outcomeError, fmt.Errorf("failed to link customer id: %w", err)
	}
	r.metrics.RecordResolution(FoundAndLinked)
	r.logger.Info("Linked existing user to customer",
		F("event", KindCustomerCreated),
		F("user_id", u.ID),
		F("customer_id", customerID),
	)
	return outcomeApplied, nil
}

func (r *Reconciler) customerUpdated(ctx context.Context, e CustomerUpdated) (string, error) {
	res, err := r.resolve(ctx, KindCustomerUpdated, e.CustomerID, e.Email)
	if err != nil {
		return outcomeError, err
	}
	if !res.Resolved() {
		r.logger.Warn("No user found for customer update",
			F("event", KindCustomerUpdated),
			F("customer_id", e.CustomerID),
		)
		return outcomeNotFound, nil
	}

	u := res.User
	var update UserUpdate
	if e.Name != "" && e.Name != u.Name {
		name := e.Name
		update.Name = &name
	}
	if e.Email != "" && e.Email != u.Email {
		if u.Email == "" {
			email := e.Email
			update.Email = &email
		} else {
			r.logger.Warn("Customer email differs from login email, keeping login email",
				F("event", KindCustomerUpdated),
				F("user_id", u.ID),
				F("customer_id", e.CustomerID),
			)
		}
	}

	if update.IsEmpty() {
		return outcomeSkipped, nil
	}
	if _, err := r.store.UpdateFields(ctx, u.ID, update); err != nil {
		return outcomeError, fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	return outcomeApplied, nil
}

func (r *Reconciler) customerDeleted(ctx context.Context, e CustomerDeleted) (string, error) {
	res, err := r.resolve(ctx, KindCustomerDeleted, e.CustomerID, "")
	if err != nil {
		return outcomeError, err
	}
	if !res.Resolved() {
		r.logger.Warn("No user found for customer deletion",
			F("event", KindCustomerDeleted),
			F("customer_id", e.CustomerID),
		)
		return outcomeNotFound, nil
	}

	u := res.User
	if err := r.store.ClearExternalCustomerID(ctx, u.ID); err != nil {
		return outcomeError, fmt.Errorf("failed to clear customer id for user %s: %w", u.ID, err)
	}
	if u.AccessLevel != AccessFree {
		r.metrics.RecordTierChange(u.AccessLevel, AccessFree)
	}
	r.logger.Info("Unlinked deleted customer",
		F("event", KindCustomerDeleted),
		F("user_id", u.ID),
		F("customer_id", e.CustomerID),
	)
	return outcomeApplied, nil
}

func (r *Reconciler) resolve(ctx context.Context, kind EventKind, customerID, email string) (Resolution, error) {
	res, err := ResolveUser(ctx, r.store, customerID, email)
	if err != nil {
		return res, fmt.Errorf("failed to resolve user for %s: %w", kind, err)
	}
	r.metrics.RecordResolution(res.Kind)
	if res.Kind == FoundAndLinked {
		r.logger.Info("Linked user to customer by email",
			F("event", kind),
			F("user_id", res.User.ID),
			F("customer_id", customerID),
			F("resolution", res.Kind),
		)
	}
	return res, nil
}

func (r *Reconciler) resolveTier(kind EventKind, priceIDs []string) AccessLevel {
	level, err := ResolveTier(priceIDs, r.prices)
	if err != nil {
		r.logger.Error("Price ids not configured, defaulting to free",
			F("event", kind),
			F("error", err),
		)
	}
	return level
}

func (r *Reconciler) setLevel(ctx context.Context, kind EventKind, u *User, level AccessLevel) (string, error) {
	if err := r.store.SetAccessLevel(ctx, u.ID, level); err != nil {
		return outcomeError, fmt.Errorf("failed to set access level for user %s: %w", u.ID, err)
	}
	if u.AccessLevel != level {
		r.metrics.RecordTierChange(u.AccessLevel, level)
		r.logger.Info("Access level changed",
			F("event", kind),
			F("user_id", u.ID),
			F("from", u.AccessLevel),
			F("to", level),
		)
	}
	return outcomeApplied, nil
}
