package domain

import "errors"

// Ledger and registry operations fail with exactly one of these error kinds.
// All of them are local and synchronous: the failing call returns immediately
// and leaves no partially-applied state behind. Callers match with errors.Is.
var (
	// ErrUnauthorized is returned when a capability predicate rejects the caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState is returned when a lifecycle transition guard is violated,
	// e.g. tokenizing an unverified property or minting against a deleted one.
	ErrInvalidState = errors.New("invalid state")

	// ErrInsufficientBalance is returned when a transfer, sell or distribution
	// exceeds the available funds.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConflictingAgreement is returned by the cross-component guard when a
	// collaborator reports an active sale listing or rental agreement, or when
	// a collaborator cannot be reached and the operation is rejected outright.
	ErrConflictingAgreement = errors.New("conflicting agreement")

	// ErrAlreadySet is returned when a one-time configuration is re-invoked.
	ErrAlreadySet = errors.New("already set")

	// ErrNotFound is returned for operations on a nonexistent property id.
	ErrNotFound = errors.New("not found")

	// ErrReentrancy is returned when a mutating entry point is re-entered for
	// the same property before the enclosing operation completed.
	ErrReentrancy = errors.New("reentrant call")

	// ErrArithmeticRange is returned when a scaled-integer computation would
	// overflow 256 bits. Operations fail rather than wrap.
	ErrArithmeticRange = errors.New("arithmetic range exceeded")
)
