package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/parcelhq/parceld/internal/core/domain"
)

// bookRepository stores each book as a book row plus one holding row per
// holder. Writes replace the property's rows inside a single transaction;
// the account index is the idx_holding_account index, so the delta needs no
// separate bookkeeping here.
type bookRepository struct {
	db *sqlx.DB
}

type holdingRow struct {
	PropertyID uint64 `db:"property_id"`
	Account    string `db:"account"`
	Position   int    `db:"position"`
	Balance    string `db:"balance"`
}

func NewBookRepository(config ...interface{}) (domain.BookRepository, error) {
	db, err := sqlxFromConfig(config...)
	if err != nil {
		return nil, err
	}
	return &bookRepository{db: db}, nil
}

func (r *bookRepository) Get(ctx context.Context, propertyID uint64) (*domain.Book, error) {
	var totalIssued string
	err := r.db.GetContext(
		ctx, &totalIssued, `SELECT total_issued FROM book WHERE property_id = ?`, propertyID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: book for property %d", domain.ErrNotFound, propertyID)
		}
		return nil, err
	}

	var rows []holdingRow
	err = r.db.SelectContext(
		ctx, &rows,
		`SELECT * FROM holding WHERE property_id = ? ORDER BY position`, propertyID,
	)
	if err != nil {
		return nil, err
	}

	book := domain.NewBook(propertyID)
	issued, err := parseAmount(totalIssued)
	if err != nil {
		return nil, err
	}
	book.TotalIssued = issued
	for _, row := range rows {
		balance, err := parseAmount(row.Balance)
		if err != nil {
			return nil, err
		}
		book.Positions[row.Account] = len(book.Holders)
		book.Holders = append(book.Holders, row.Account)
		book.Balances[row.Account] = balance
	}

	if err := book.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("corrupted book for property %d: %s", propertyID, err)
	}
	return book, nil
}

func (r *bookRepository) Update(
	ctx context.Context, book *domain.Book, _ domain.Delta,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO book (property_id, total_issued) VALUES (?, ?)
		 ON CONFLICT(property_id) DO UPDATE SET total_issued = excluded.total_issued`,
		book.PropertyID, book.TotalIssued.Dec(),
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(
		ctx, `DELETE FROM holding WHERE property_id = ?`, book.PropertyID,
	); err != nil {
		return err
	}
	for pos, account := range book.Holders {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO holding (property_id, account, position, balance) VALUES (?, ?, ?, ?)`,
			book.PropertyID, account, pos, book.Balances[account].Dec(),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *bookRepository) Delete(
	ctx context.Context, propertyID uint64, _ domain.Delta,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx, `DELETE FROM holding WHERE property_id = ?`, propertyID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(
		ctx, `DELETE FROM book WHERE property_id = ?`, propertyID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *bookRepository) HeldProperties(ctx context.Context, account string) ([]uint64, error) {
	var ids []uint64
	err := r.db.SelectContext(
		ctx, &ids,
		`SELECT DISTINCT property_id FROM holding WHERE account = ? ORDER BY property_id`,
		account,
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *bookRepository) Close() {}
