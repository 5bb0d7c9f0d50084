package ports

import "github.com/parcelhq/parceld/internal/core/domain"

type RepoManager interface {
	Properties() domain.PropertyRepository
	Books() domain.BookRepository
	Treasury() domain.TreasuryRepository
	Events() domain.EventRepository
	Close()
}
