package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/parcelhq/parceld/internal/core/domain"
)

type propertyRepository struct {
	db *sqlx.DB
}

type propertyRow struct {
	ID        uint64 `db:"id"`
	Owner     string `db:"owner"`
	Name      string `db:"name"`
	Location  string `db:"location"`
	Verified  bool   `db:"verified"`
	Tokenized bool   `db:"tokenized"`
	Deleted   bool   `db:"deleted"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func NewPropertyRepository(config ...interface{}) (domain.PropertyRepository, error) {
	db, err := sqlxFromConfig(config...)
	if err != nil {
		return nil, err
	}
	return &propertyRepository{db: db}, nil
}

func (r *propertyRepository) Add(
	ctx context.Context, owner, name, location string,
) (*domain.Property, error) {
	property := domain.NewProperty(0, owner, name, location)

	res, err := r.db.ExecContext(
		ctx,
		`INSERT INTO property (owner, name, location, verified, tokenized, deleted, created_at, updated_at)
		 VALUES (?, ?, ?, FALSE, FALSE, FALSE, ?, ?)`,
		owner, name, location, property.CreatedAt, property.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert property: %s", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	property.ID = uint64(id)
	return property, nil
}

func (r *propertyRepository) Get(ctx context.Context, id uint64) (*domain.Property, error) {
	var row propertyRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM property WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: property %d", domain.ErrNotFound, id)
		}
		return nil, err
	}
	property := row.toProperty()
	return &property, nil
}

func (r *propertyRepository) Update(ctx context.Context, property domain.Property) error {
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE property
		 SET owner = ?, name = ?, location = ?, verified = ?, tokenized = ?, deleted = ?, updated_at = ?
		 WHERE id = ?`,
		property.Owner, property.Name, property.Location,
		property.Verified, property.Tokenized, property.Deleted,
		property.UpdatedAt, property.ID,
	)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: property %d", domain.ErrNotFound, property.ID)
	}
	return nil
}

func (r *propertyRepository) List(
	ctx context.Context, includeDeleted bool,
) ([]domain.Property, error) {
	query := `SELECT * FROM property ORDER BY id`
	if !includeDeleted {
		query = `SELECT * FROM property WHERE deleted = FALSE ORDER BY id`
	}

	var rows []propertyRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return toProperties(rows), nil
}

func (r *propertyRepository) ListByOwner(
	ctx context.Context, owner string,
) ([]domain.Property, error) {
	var rows []propertyRow
	err := r.db.SelectContext(
		ctx, &rows,
		`SELECT * FROM property WHERE owner = ? AND deleted = FALSE ORDER BY id`, owner,
	)
	if err != nil {
		return nil, err
	}
	return toProperties(rows), nil
}

func (r *propertyRepository) Close() {}

func toProperties(rows []propertyRow) []domain.Property {
	properties := make([]domain.Property, 0, len(rows))
	for _, row := range rows {
		properties = append(properties, row.toProperty())
	}
	return properties
}

func (row propertyRow) toProperty() domain.Property {
	return domain.Property{
		ID:        row.ID,
		Owner:     row.Owner,
		Name:      row.Name,
		Location:  row.Location,
		Verified:  row.Verified,
		Tokenized: row.Tokenized,
		Deleted:   row.Deleted,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
