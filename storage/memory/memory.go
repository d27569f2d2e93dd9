// Package memory provides an in-memory implementation of the gotier.Store interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

// Storage implements gotier.Store using in-memory maps.
// Unique constraints on email and customer id are enforced like the SQL schema does.
type Storage struct {
	mu         sync.RWMutex
	users      map[string]*gotier.User
	byEmail    map[string]string
	byCustomer map[string]string
	now        func() time.Time
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		users:      make(map[string]*gotier.User),
		byEmail:    make(map[string]string),
		byCustomer: make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Len returns the number of stored users
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// FindByID implements gotier.Store
func (s *Storage) FindByID(_ context.Context, id string) (*gotier.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

// FindByEmail implements gotier.Store
func (s *Storage) FindByEmail(_ context.Context, email string) (*gotier.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok || email == "" {
		return nil, gotier.ErrNotFound
	}
	return s.get(id)
}

// FindByExternalCustomerID implements gotier.Store
func (s *Storage) FindByExternalCustomerID(_ context.Context, customerID string) (*gotier.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCustomer[customerID]
	if !ok || customerID == "" {
		return nil, gotier.ErrNotFound
	}
	return s.get(id)
}

// Create implements gotier.Store
func (s *Storage) Create(_ context.Context, nu gotier.NewUser) (*gotier.User, error) {
	level := nu.AccessLevel
	if level == "" {
		level = gotier.AccessFree
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", gotier.ErrInvalidAccessLevel, level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[nu.Email]; nu.Email != "" && taken {
		return nil, fmt.Errorf("%w: email already registered", gotier.ErrConflict)
	}
	if _, taken := s.byCustomer[nu.StripeCustomerID]; nu.StripeCustomerID != "" && taken {
		return nil, fmt.Errorf("%w: customer id already linked", gotier.ErrConflict)
	}

	now := s.now()
	u := &gotier.User{
		ID:               uuid.NewString(),
		Name:             nu.Name,
		Email:            nu.Email,
		EmailVerified:    nu.EmailVerified,
		Image:            nu.Image,
		AccessLevel:      level,
		StripeCustomerID: nu.StripeCustomerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.users[u.ID] = u
	if u.Email != "" {
		s.byEmail[u.Email] = u.ID
	}
	if u.StripeCustomerID != "" {
		s.byCustomer[u.StripeCustomerID] = u.ID
	}

	userCopy := *u
	return &userCopy, nil
}

// LinkExternalCustomerID implements gotier.Store
func (s *Storage) LinkExternalCustomerID(_ context.Context, userID, customerID string) error {
	if !gotier.IsValidCustomerID(customerID) {
		return fmt.Errorf("%w: %q", gotier.ErrInvalidCustomerID, customerID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return gotier.ErrNotFound
	}
	if owner, taken := s.byCustomer[customerID]; taken && owner != userID {
		return fmt.Errorf("%w: customer id already linked", gotier.ErrConflict)
	}

	if u.StripeCustomerID != "" {
		delete(s.byCustomer, u.StripeCustomerID)
	}
	u.StripeCustomerID = customerID
	u.UpdatedAt = s.now()
	s.byCustomer[customerID] = userID
	return nil
}

// ClearExternalCustomerID implements gotier.Store
func (s *Storage) ClearExternalCustomerID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return gotier.ErrNotFound
	}
	if u.StripeCustomerID != "" {
		delete(s.byCustomer, u.StripeCustomerID)
	}
	u.StripeCustomerID = ""
	u.AccessLevel = gotier.AccessFree
	u.UpdatedAt = s.now()
	return nil
}

// SetAccessLevel implements gotier.Store
func (s *Storage) SetAccessLevel(_ context.Context, userID string, level gotier.AccessLevel) error {
	if !level.Valid() {
		return fmt.Errorf("%w: %q", gotier.ErrInvalidAccessLevel, level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return gotier.ErrNotFound
	}
	u.AccessLevel = level
	u.UpdatedAt = s.now()
	return nil
}

// UpdateFields implements gotier.Store
func (s *Storage) UpdateFields(_ context.Context, userID string, update gotier.UserUpdate) (*gotier.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, gotier.ErrNotFound
	}

	if update.Email != nil && u.Email == "" && *update.Email != "" {
		if _, taken := s.byEmail[*update.Email]; taken {
			return nil, fmt.Errorf("%w: email already registered", gotier.ErrConflict)
		}
		u.Email = *update.Email
		s.byEmail[u.Email] = u.ID
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Image != nil {
		u.Image = *update.Image
	}
	u.UpdatedAt = s.now()

	userCopy := *u
	return &userCopy, nil
}

// get returns a copy of the user. Caller holds the lock.
func (s *Storage) get(id string) (*gotier.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, gotier.ErrNotFound
	}
	userCopy := *u
	return &userCopy, nil
}
