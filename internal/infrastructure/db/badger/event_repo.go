package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const eventStoreDir = "events"

type eventRepository struct {
	store *badgerhold.Store
	seq   atomic.Uint64
}

type eventDTO struct {
	ID         string `badgerhold:"key"`
	Seq        uint64
	PropertyID uint64 `badgerhold:"index"`
	Type       string
	From       string
	To         string
	Amount     string
	CreatedAt  int64
}

func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	baseDir, logger, err := repoConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, eventStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %s", err)
	}

	repo := &eventRepository{store: store}
	if err := repo.restoreSeq(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return repo, nil
}

// restoreSeq seeds the append counter from the highest persisted sequence so
// ordering survives restarts.
func (r *eventRepository) restoreSeq() error {
	var dtos []eventDTO
	if err := r.store.Find(&dtos, &badgerhold.Query{}); err != nil {
		return fmt.Errorf("failed to scan event store: %s", err)
	}
	var max uint64
	for _, dto := range dtos {
		if dto.Seq > max {
			max = dto.Seq
		}
	}
	r.seq.Store(max)
	return nil
}

func (r *eventRepository) Append(ctx context.Context, event domain.LedgerEvent) error {
	dto := eventDTO{
		ID:         event.ID,
		Seq:        r.seq.Add(1),
		PropertyID: event.PropertyID,
		Type:       event.Type,
		From:       event.From,
		To:         event.To,
		Amount:     event.Amount,
		CreatedAt:  event.CreatedAt,
	}

	err := r.store.Insert(event.ID, dto)
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Insert(event.ID, dto)
			attempts++
		}
	}
	return err
}

func (r *eventRepository) ListByProperty(
	ctx context.Context, propertyID uint64, limit int,
) ([]domain.LedgerEvent, error) {
	var dtos []eventDTO
	err := r.store.Find(
		&dtos, badgerhold.Where("PropertyID").Eq(propertyID).Index("PropertyID"),
	)
	if err != nil {
		return nil, err
	}

	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Seq > dtos[j].Seq })
	if limit > 0 && len(dtos) > limit {
		dtos = dtos[:limit]
	}

	events := make([]domain.LedgerEvent, 0, len(dtos))
	for _, dto := range dtos {
		events = append(events, domain.LedgerEvent{
			ID:         dto.ID,
			PropertyID: dto.PropertyID,
			Type:       dto.Type,
			From:       dto.From,
			To:         dto.To,
			Amount:     dto.Amount,
			CreatedAt:  dto.CreatedAt,
		})
	}
	return events, nil
}

func (r *eventRepository) Close() {
	_ = r.store.Close()
}
