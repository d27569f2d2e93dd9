package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when the processor is missing keys or prices
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrInvalidTier is returned when a checkout is requested for a tier that is not sold
	ErrInvalidTier = errors.New("invalid tier")

	// ErrSessionNotFound is returned when a checkout session does not exist
	ErrSessionNotFound = errors.New("checkout session not found")
)
