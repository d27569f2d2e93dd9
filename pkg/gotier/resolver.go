package gotier

import (
	"context"
	"errors"
	"fmt"
)

// ResolutionKind tells how ResolveUser located a user
type ResolutionKind string

const (
	// Found means the user was already linked to the customer id
	Found ResolutionKind = "found"
	// FoundAndLinked means the user was found by email and the customer id was just linked
	FoundAndLinked ResolutionKind = "found_and_linked"
	// NotFound means no user matched
	NotFound ResolutionKind = "not_found"
)

// Resolution is the result of ResolveUser. User is nil when Kind is NotFound.
type Resolution struct {
	Kind ResolutionKind
	User *User
}

// Resolved reports whether a user was located
func (r Resolution) Resolved() bool {
	return r.Kind != NotFound && r.User != nil
}

// ResolveUser locates the user owning customerID.
//
// The customer id is authoritative. When it matches nothing and an email is
// given, the row with that email is linked to customerID and re-read, so the
// returned user reflects the linked state. Pass an empty email to resolve by
// id only.
func ResolveUser(ctx context.Context, store Store, customerID, email string) (Resolution, error) {
	if customerID != "" {
		u, err := store.FindByExternalCustomerID(ctx, customerID)
		switch {
		case err == nil:
			return Resolution{Kind: Found, User: u}, nil
		case !errors.Is(err, ErrNotFound):
			return Resolution{Kind: NotFound}, fmt.Errorf("failed to find user by customer id: %w", err)
		}
	}

	if email == "" || customerID == "" {
		return Resolution{Kind: NotFound}, nil
	}

	u, err := store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Resolution{Kind: NotFound}, nil
	}
	if err != nil {
		return Resolution{Kind: NotFound}, fmt.Errorf("failed to find user by email: %w", err)
	}

	if err := store.LinkExternalCustomerID(ctx, u.ID, customerID); err != nil {
		return Resolution{Kind: NotFound}, fmt.Errorf("failed to link customer id: %w", err)
	}

	linked, err := store.FindByExternalCustomerID(ctx, customerID)
	if err != nil {
		return Resolution{Kind: NotFound}, fmt.Errorf("failed to re-read linked user: %w", err)
	}
	return Resolution{Kind: FoundAndLinked, User: linked}, nil
}

// EnsureUser returns the user with the profile's email, creating a free row
// on first sign-in. A concurrent create that loses the unique race re-reads
// the winner.
func EnsureUser(ctx context.Context, store Store, p Profile) (*User, bool, error) {
	if p.Email == "" {
		return nil, false, ErrAuthRequired
	}

	u, err := store.FindByEmail(ctx, p.Email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("failed to find user by email: %w", err)
	}

	nu := NewUser{
		Name:        p.Name,
		Email:       p.Email,
		Image:       p.Image,
		AccessLevel: AccessFree,
	}
	if p.EmailVerified {
		now := timeNow()
		nu.EmailVerified = &now
	}

	created, err := store.Create(ctx, nu)
	if errors.Is(err, ErrConflict) {
		u, err = store.FindByEmail(ctx, p.Email)
		if err != nil {
			return nil, false, fmt.Errorf("failed to re-read user after conflict: %w", err)
		}
		return u, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	return created, true, nil
}
