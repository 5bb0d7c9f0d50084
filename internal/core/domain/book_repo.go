package domain

import "context"

type BookRepository interface {
	// Get returns the book for a property, or ErrNotFound if none was ever
	// created (the ledger creates books on tokenization).
	Get(ctx context.Context, propertyID uint64) (*Book, error)

	// Update persists the whole book in a single commit and applies the
	// holder-set delta to the account→property index in the same commit.
	Update(ctx context.Context, book *Book, delta Delta) error

	// Delete removes the book on property deletion, applying the delta of
	// the burn to the account index.
	Delete(ctx context.Context, propertyID uint64, delta Delta) error

	// HeldProperties returns the ids of every property in which the account
	// holds a positive balance. Enumeration only; no duplicates.
	HeldProperties(ctx context.Context, account string) ([]uint64, error)

	Close()
}
