package models

import "errors"

// Domain errors shared by the ledger, trading, alert and scheduler packages.
// Callers match them with errors.Is.
var (
	// ErrInsufficientFunds is returned when a balance check fails or when a
	// ledger mutation targets an inactive account. No state is mutated.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidStateTransition is returned when a transition is attempted
	// out of a terminal or otherwise wrong state. It usually means another
	// writer claimed the entity first.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrDuplicateActiveAlert is returned when a user already holds an
	// active alert for the same currency pair.
	ErrDuplicateActiveAlert = errors.New("active alert already exists for this currency pair")

	// ErrAlreadyTriggered is returned when triggering an alert that has
	// already fired.
	ErrAlreadyTriggered = errors.New("alert already triggered")

	// ErrRateUnavailable is returned when no exchange rate has ever been
	// fetched for a pair.
	ErrRateUnavailable = errors.New("exchange rate not available")

	// ErrStaleRate is returned when the cached exchange rate is older than
	// the freshness threshold.
	ErrStaleRate = errors.New("exchange rate data is stale")

	// ErrResourceNotFound is returned when a referenced entity does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)
