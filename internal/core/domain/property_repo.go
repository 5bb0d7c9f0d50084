package domain

import "context"

type PropertyRepository interface {
	// Add persists a new property and returns its assigned id. Ids are
	// monotonically increasing and never reused, even across deletions.
	Add(ctx context.Context, owner, name, location string) (*Property, error)
	Get(ctx context.Context, id uint64) (*Property, error)
	Update(ctx context.Context, property Property) error
	List(ctx context.Context, includeDeleted bool) ([]Property, error)
	ListByOwner(ctx context.Context, owner string) ([]Property, error)
	Close()
}
