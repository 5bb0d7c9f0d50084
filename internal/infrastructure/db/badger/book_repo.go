package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const bookStoreDir = "books"

// bookRepository keeps the per-property holding books and the
// account→property index in one store, so a book write and its index
// maintenance commit in a single badger transaction.
type bookRepository struct {
	store *badgerhold.Store
}

type bookDTO struct {
	PropertyID  uint64 `badgerhold:"key"`
	TotalIssued string
	// Holders carries the holder-set order; Balances is keyed by account.
	// The position index is rebuilt on load.
	Holders  []string
	Balances map[string]string
}

type holdingIndexDTO struct {
	Account     string `badgerhold:"key"`
	PropertyIDs []uint64
}

func NewBookRepository(config ...interface{}) (domain.BookRepository, error) {
	baseDir, logger, err := repoConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, bookStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open book store: %s", err)
	}
	return &bookRepository{store: store}, nil
}

func (r *bookRepository) Get(ctx context.Context, propertyID uint64) (*domain.Book, error) {
	var dto bookDTO
	if err := r.store.Get(propertyID, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: book for property %d", domain.ErrNotFound, propertyID)
		}
		return nil, err
	}
	return dto.toBook()
}

func (r *bookRepository) Update(
	ctx context.Context, book *domain.Book, delta domain.Delta,
) error {
	dto, err := toBookDTO(book)
	if err != nil {
		return err
	}
	return r.commitWithRetry(func(tx *badger.Txn) error {
		if err := r.store.TxUpsert(tx, book.PropertyID, dto); err != nil {
			return err
		}
		return r.applyDelta(tx, book.PropertyID, delta)
	})
}

func (r *bookRepository) Delete(
	ctx context.Context, propertyID uint64, delta domain.Delta,
) error {
	return r.commitWithRetry(func(tx *badger.Txn) error {
		err := r.store.TxDelete(tx, propertyID, bookDTO{})
		if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		return r.applyDelta(tx, propertyID, delta)
	})
}

func (r *bookRepository) HeldProperties(ctx context.Context, account string) ([]uint64, error) {
	var dto holdingIndexDTO
	if err := r.store.Get(account, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dto.PropertyIDs, nil
}

func (r *bookRepository) Close() {
	_ = r.store.Close()
}

func (r *bookRepository) applyDelta(
	tx *badger.Txn, propertyID uint64, delta domain.Delta,
) error {
	for _, account := range delta.Added {
		var dto holdingIndexDTO
		err := r.store.TxGet(tx, account, &dto)
		if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		dto.Account = account

		found := false
		for _, id := range dto.PropertyIDs {
			if id == propertyID {
				found = true
				break
			}
		}
		if found {
			continue
		}
		dto.PropertyIDs = append(dto.PropertyIDs, propertyID)
		if err := r.store.TxUpsert(tx, account, dto); err != nil {
			return err
		}
	}

	for _, account := range delta.Removed {
		var dto holdingIndexDTO
		err := r.store.TxGet(tx, account, &dto)
		if err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return err
		}

		ids := dto.PropertyIDs[:0]
		for _, id := range dto.PropertyIDs {
			if id != propertyID {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			if err := r.store.TxDelete(tx, account, holdingIndexDTO{}); err != nil {
				return err
			}
			continue
		}
		dto.PropertyIDs = ids
		if err := r.store.TxUpsert(tx, account, dto); err != nil {
			return err
		}
	}
	return nil
}

func (r *bookRepository) commitWithRetry(commit func(tx *badger.Txn) error) error {
	err := r.store.Badger().Update(commit)
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Badger().Update(commit)
			attempts++
		}
	}
	return err
}

func toBookDTO(book *domain.Book) (bookDTO, error) {
	dto := bookDTO{
		PropertyID:  book.PropertyID,
		TotalIssued: book.TotalIssued.Dec(),
		Holders:     append([]string(nil), book.Holders...),
		Balances:    make(map[string]string, len(book.Balances)),
	}
	for account, balance := range book.Balances {
		dto.Balances[account] = balance.Dec()
	}
	return dto, nil
}

func (d bookDTO) toBook() (*domain.Book, error) {
	book := domain.NewBook(d.PropertyID)

	issued, err := parseAmount(d.TotalIssued)
	if err != nil {
		return nil, err
	}
	book.TotalIssued = issued

	book.Holders = append(book.Holders, d.Holders...)
	for pos, account := range d.Holders {
		book.Positions[account] = pos
		balance, err := parseAmount(d.Balances[account])
		if err != nil {
			return nil, err
		}
		book.Balances[account] = balance
	}

	if err := book.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("corrupted book for property %d: %s", d.PropertyID, err)
	}
	return book, nil
}
