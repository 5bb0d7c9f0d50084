package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const propertyStoreDir = "properties"

type propertyRepository struct {
	store *badgerhold.Store

	lock   sync.Mutex
	nextID uint64
}

type propertyDTO struct {
	ID        uint64 `badgerhold:"key"`
	Owner     string `badgerhold:"index"`
	Name      string
	Location  string
	Verified  bool
	Tokenized bool
	Deleted   bool
	CreatedAt int64
	UpdatedAt int64
}

func NewPropertyRepository(config ...interface{}) (domain.PropertyRepository, error) {
	baseDir, logger, err := repoConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, propertyStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open property store: %s", err)
	}

	repo := &propertyRepository{store: store}
	if err := repo.restoreNextID(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return repo, nil
}

// restoreNextID seeds the id counter from the highest persisted id, so ids
// stay monotone across restarts and are never reused after deletions.
func (r *propertyRepository) restoreNextID() error {
	var dtos []propertyDTO
	if err := r.store.Find(&dtos, &badgerhold.Query{}); err != nil {
		return fmt.Errorf("failed to scan property store: %s", err)
	}
	for _, dto := range dtos {
		if dto.ID > r.nextID {
			r.nextID = dto.ID
		}
	}
	return nil
}

func (r *propertyRepository) Add(
	ctx context.Context, owner, name, location string,
) (*domain.Property, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.nextID++
	property := domain.NewProperty(r.nextID, owner, name, location)

	if err := r.insertWithRetry(*property); err != nil {
		r.nextID--
		return nil, err
	}
	return property, nil
}

func (r *propertyRepository) Get(ctx context.Context, id uint64) (*domain.Property, error) {
	var dto propertyDTO
	if err := r.store.Get(id, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: property %d", domain.ErrNotFound, id)
		}
		return nil, err
	}
	property := dto.toProperty()
	return &property, nil
}

func (r *propertyRepository) Update(ctx context.Context, property domain.Property) error {
	err := r.store.Update(property.ID, toPropertyDTO(property))
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("%w: property %d", domain.ErrNotFound, property.ID)
	}
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Update(property.ID, toPropertyDTO(property))
			attempts++
		}
	}
	return err
}

func (r *propertyRepository) List(
	ctx context.Context, includeDeleted bool,
) ([]domain.Property, error) {
	var dtos []propertyDTO
	query := &badgerhold.Query{}
	if !includeDeleted {
		query = badgerhold.Where("Deleted").Eq(false)
	}
	if err := r.store.Find(&dtos, query.SortBy("ID")); err != nil {
		return nil, err
	}

	properties := make([]domain.Property, 0, len(dtos))
	for _, dto := range dtos {
		properties = append(properties, dto.toProperty())
	}
	return properties, nil
}

func (r *propertyRepository) ListByOwner(
	ctx context.Context, owner string,
) ([]domain.Property, error) {
	var dtos []propertyDTO
	err := r.store.Find(
		&dtos, badgerhold.Where("Owner").Eq(owner).Index("Owner").
			And("Deleted").Eq(false).SortBy("ID"),
	)
	if err != nil {
		return nil, err
	}

	properties := make([]domain.Property, 0, len(dtos))
	for _, dto := range dtos {
		properties = append(properties, dto.toProperty())
	}
	return properties, nil
}

func (r *propertyRepository) Close() {
	_ = r.store.Close()
}

func (r *propertyRepository) insertWithRetry(property domain.Property) error {
	err := r.store.Insert(property.ID, toPropertyDTO(property))
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Insert(property.ID, toPropertyDTO(property))
			attempts++
		}
	}
	return err
}

func toPropertyDTO(property domain.Property) propertyDTO {
	return propertyDTO{
		ID:        property.ID,
		Owner:     property.Owner,
		Name:      property.Name,
		Location:  property.Location,
		Verified:  property.Verified,
		Tokenized: property.Tokenized,
		Deleted:   property.Deleted,
		CreatedAt: property.CreatedAt,
		UpdatedAt: property.UpdatedAt,
	}
}

func (d propertyDTO) toProperty() domain.Property {
	return domain.Property{
		ID:        d.ID,
		Owner:     d.Owner,
		Name:      d.Name,
		Location:  d.Location,
		Verified:  d.Verified,
		Tokenized: d.Tokenized,
		Deleted:   d.Deleted,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
