package domain

import "context"

type TreasuryRepository interface {
	// Get returns the treasury, initializing an empty one on first use.
	Get(ctx context.Context) (*Treasury, error)
	// Update persists the whole treasury in a single commit.
	Update(ctx context.Context, treasury *Treasury) error
	Close()
}
