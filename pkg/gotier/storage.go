package gotier

import "context"

// Store is the identity store consumed by the reconciler and the API.
// Lookups that find nothing return an error wrapping ErrNotFound.
// Every write refreshes UpdatedAt.
type Store interface {
	// FindByID retrieves a user by its opaque id
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmail retrieves a user by email
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByExternalCustomerID retrieves a user by processor customer id
	FindByExternalCustomerID(ctx context.Context, customerID string) (*User, error)

	// Create inserts a new user with a generated id.
	// Returns ErrConflict if the email or customer id is already taken.
	Create(ctx context.Context, u NewUser) (*User, error)

	// LinkExternalCustomerID sets the processor customer id on a user
	LinkExternalCustomerID(ctx context.Context, userID, customerID string) error

	// ClearExternalCustomerID removes the customer id and resets the user to free
	ClearExternalCustomerID(ctx context.Context, userID string) error

	// SetAccessLevel sets the access level of a user
	SetAccessLevel(ctx context.Context, userID string, level AccessLevel) error

	// UpdateFields applies a partial update and returns the stored row.
	// A non-empty email is never overwritten.
	UpdateFields(ctx context.Context, userID string, update UserUpdate) (*User, error)
}
