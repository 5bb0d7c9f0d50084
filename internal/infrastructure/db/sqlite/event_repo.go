package sqlitedb

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/parcelhq/parceld/internal/core/domain"
)

type eventRepository struct {
	db *sqlx.DB
}

type eventRow struct {
	Seq         uint64 `db:"seq"`
	ID          string `db:"id"`
	PropertyID  uint64 `db:"property_id"`
	Type        string `db:"type"`
	FromAccount string `db:"from_account"`
	ToAccount   string `db:"to_account"`
	Amount      string `db:"amount"`
	CreatedAt   int64  `db:"created_at"`
}

func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	db, err := sqlxFromConfig(config...)
	if err != nil {
		return nil, err
	}
	return &eventRepository{db: db}, nil
}

func (r *eventRepository) Append(ctx context.Context, event domain.LedgerEvent) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO ledger_event (id, property_id, type, from_account, to_account, amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.PropertyID, event.Type,
		event.From, event.To, event.Amount, event.CreatedAt,
	)
	return err
}

func (r *eventRepository) ListByProperty(
	ctx context.Context, propertyID uint64, limit int,
) ([]domain.LedgerEvent, error) {
	query := `SELECT * FROM ledger_event WHERE property_id = ? ORDER BY seq DESC`
	args := []interface{}{propertyID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	events := make([]domain.LedgerEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, domain.LedgerEvent{
			ID:         row.ID,
			PropertyID: row.PropertyID,
			Type:       row.Type,
			From:       row.FromAccount,
			To:         row.ToAccount,
			Amount:     row.Amount,
			CreatedAt:  row.CreatedAt,
		})
	}
	return events, nil
}

func (r *eventRepository) Close() {}
