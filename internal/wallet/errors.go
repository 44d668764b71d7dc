package wallet

import "errors"

// Classification of webhook failures. Callers branch with errors.Is.
var (
	// ErrAuthentication means the signature was missing or did not match.
	ErrAuthentication = errors.New("webhook authentication failed")
	// ErrMalformedEvent means the payload cannot be turned into an effect.
	// Redelivering the same bytes will fail the same way.
	ErrMalformedEvent = errors.New("malformed payment event")
	// ErrConfiguration means a secret or credential is not set. Operators
	// must be alerted; the provider will keep retrying.
	ErrConfiguration = errors.New("payment gate not configured")
	// ErrUpstream wraps ledger and provider failures. Safe to retry.
	ErrUpstream = errors.New("payment upstream failure")
)
