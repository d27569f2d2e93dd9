package gotier

import "errors"

var (
	// ErrAuthRequired is returned when a request carries no valid session
	ErrAuthRequired = errors.New("authentication required")

	// ErrConfiguration is returned when processor price ids are missing
	ErrConfiguration = errors.New("configuration error")

	// ErrConflict is returned when a create violates a unique constraint
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a user row does not exist
	ErrNotFound = errors.New("user not found")

	// ErrUpstream is returned when the payment processor API fails
	ErrUpstream = errors.New("upstream error")

	// ErrInvalidAccessLevel is returned for values outside free, basic and premium
	ErrInvalidAccessLevel = errors.New("invalid access level")

	// ErrInvalidCustomerID is returned for malformed processor customer ids
	ErrInvalidCustomerID = errors.New("invalid customer id")

	// ErrUnsupportedEvent is returned by Reconciler.Apply for unknown event variants
	ErrUnsupportedEvent = errors.New("unsupported event")
)

// Stable machine-readable error codes surfaced to API clients
const (
	CodeAuthRequired       = "auth_required"
	CodeConfiguration      = "configuration_error"
	CodeConflict           = "conflict"
	CodeNotFound           = "not_found"
	CodeUpstream           = "upstream_error"
	CodeInvalidAccessLevel = "invalid_access_level"
	CodeInvalidCustomerID  = "invalid_customer_id"
	CodeInternal           = "internal_error"
)

// ErrorCode maps err to its stable code. Unknown errors map to CodeInternal.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRequired):
		return CodeAuthRequired
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUpstream):
		return CodeUpstream
	case errors.Is(err, ErrInvalidAccessLevel):
		return CodeInvalidAccessLevel
	case errors.Is(err, ErrInvalidCustomerID):
		return CodeInvalidCustomerID
	default:
		return CodeInternal
	}
}
