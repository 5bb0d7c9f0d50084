package domain

import "context"

type EventRepository interface {
	Append(ctx context.Context, event LedgerEvent) error
	// ListByProperty returns events for a property, most recent first,
	// capped at limit (0 means no cap).
	ListByProperty(ctx context.Context, propertyID uint64, limit int) ([]LedgerEvent, error)
	Close()
}
