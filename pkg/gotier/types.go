package gotier

import (
	"fmt"
	"strings"
	"time"
)

// AccessLevel is the subscription tier granted to a user
type AccessLevel string

const (
	AccessFree    AccessLevel = "free"
	AccessBasic   AccessLevel = "basic"
	AccessPremium AccessLevel = "premium"
)

const customerIDPrefix = "cus_"

var timeNow = func() time.Time { return time.Now().UTC() }

// AccessLevels returns all access levels in ascending order
func AccessLevels() []AccessLevel {
	return []AccessLevel{AccessFree, AccessBasic, AccessPremium}
}

// Valid reports whether l is one of the known access levels
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessFree, AccessBasic, AccessPremium:
		return true
	}
	return false
}

// Rank orders levels: free < basic < premium. Unknown levels rank below free.
func (l AccessLevel) Rank() int {
	switch l {
	case AccessFree:
		return 0
	case AccessBasic:
		return 1
	case AccessPremium:
		return 2
	}
	return -1
}

func (l AccessLevel) String() string {
	return string(l)
}

// ParseAccessLevel validates s as an access level
func ParseAccessLevel(s string) (AccessLevel, error) {
	l := AccessLevel(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccessLevel, s)
	}
	return l, nil
}

// IsValidCustomerID reports whether id looks like a Stripe customer id
// (prefixed with "cus_" and carrying at least one more character).
func IsValidCustomerID(id string) bool {
	return strings.HasPrefix(id, customerIDPrefix) && len(id) > len(customerIDPrefix)
}

// User is the single durable entity kept in sync with the payment processor
type User struct {
	ID               string      `json:"id"`
	Name             string      `json:"name,omitempty"`
	Email            string      `json:"email,omitempty"`
	EmailVerified    *time.Time  `json:"emailVerified,omitempty"`
	Image            string      `json:"image,omitempty"`
	AccessLevel      AccessLevel `json:"accessLevel"`
	StripeCustomerID string      `json:"stripeCustomerId,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// HasCustomerID reports whether the user is linked to a processor customer
func (u *User) HasCustomerID() bool {
	return u.StripeCustomerID != ""
}

// NewUser holds the fields accepted by Store.Create. Empty strings are stored as NULL.
type NewUser struct {
	Name             string
	Email            string
	EmailVerified    *time.Time
	Image            string
	AccessLevel      AccessLevel
	StripeCustomerID string
}

// UserUpdate is a partial update. Nil fields are left untouched.
// Email is only applied when the stored email is empty.
type UserUpdate struct {
	Name  *string
	Email *string
	Image *string
}

// IsEmpty reports whether the update carries no fields
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Image == nil
}

// Profile is the identity an auth provider hands over on sign-in
type Profile struct {
	Email         string
	Name          string
	Image         string
	EmailVerified bool
}
