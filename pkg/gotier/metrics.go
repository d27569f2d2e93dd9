package gotier

import "time"

// Metrics defines the interface for tracking reconciliation and store activity.
type Metrics interface {
	// RecordEvent records an applied event. outcome is "applied", "skipped", "not_found" or "error".
	RecordEvent(kind EventKind, outcome string)

	// RecordResolution records how a user was resolved (found, found_and_linked, not_found).
	RecordResolution(kind ResolutionKind)

	// RecordTierChange records an access level transition.
	RecordTierChange(from, to AccessLevel)

	// RecordStorageOperation records the duration and status of a store call.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordRateLimited records a request denied by a rate limiter.
	RecordRateLimited(scope string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordEvent(EventKind, string)                       {}
func (n *NoopMetrics) RecordResolution(ResolutionKind)                     {}
func (n *NoopMetrics) RecordTierChange(AccessLevel, AccessLevel)           {}
func (n *NoopMetrics) RecordStorageOperation(string, time.Duration, error) {}
func (n *NoopMetrics) RecordRateLimited(string)                            {}
