package gotier

import (
	"context"
	"time"
)

// InstrumentedStore wraps a Store and records the latency and status of every call
type InstrumentedStore struct {
	store   Store
	metrics Metrics
}

// NewInstrumentedStore wraps store. A nil metrics falls back to NoopMetrics.
func NewInstrumentedStore(store Store, metrics Metrics) *InstrumentedStore {
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &InstrumentedStore{store: store, metrics: metrics}
}

func (s *InstrumentedStore) record(op string, start time.Time, err error) {
	s.metrics.RecordStorageOperation(op, time.Since(start), err)
}

func (s *InstrumentedStore) FindByID(ctx context.Context, id string) (*User, error) {
	start := time.Now()
	u, err := s.store.FindByID(ctx, id)
	s.record("find_by_id", start, err)
	return u, err
}

func (s *InstrumentedStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	start := time.Now()
	u, err := s.store.FindByEmail(ctx, email)
	s.record("find_by_email", start, err)
	return u, err
}

func (s *InstrumentedStore) FindByExternalCustomerID(ctx context.Context, customerID string) (*User, error) {
	start := time.Now()
	u, err := s.store.FindByExternalCustomerID(ctx, customerID)
	s.record("find_by_customer_id", start, err)
	return u, err
}

func (s *InstrumentedStore) Create(ctx context.Context, nu NewUser) (*User, error) {
	start := time.Now()
	u, err := s.store.Create(ctx, nu)
	s.record("create", start, err)
	return u, err
}

func (s *InstrumentedStore) LinkExternalCustomerID(ctx context.Context, userID, customerID string) error {
	start := time.Now()
	err := s.store.LinkExternalCustomerID(ctx, userID, customerID)
	s.record("link_customer_id", start, err)
	return err
}

func (s *InstrumentedStore) ClearExternalCustomerID(ctx context.Context, userID string) error {
	start := time.Now()
	err := s.store.ClearExternalCustomerID(ctx, userID)
	s.record("clear_customer_id", start, err)
	return err
}

func (s *InstrumentedStore) SetAccessLevel(ctx context.Context, userID string, level AccessLevel) error {
	start := time.Now()
	err := s.store.SetAccessLevel(ctx, userID, level)
	s.record("set_access_level", start, err)
	return err
}

func (s *InstrumentedStore) UpdateFields(ctx context.Context, userID string, update UserUpdate) (*User, error) {
	start := time.Now()
	u, err := s.store.UpdateFields(ctx, userID, update)
	s.record("update_fields", start, err)
	return u, err
}
