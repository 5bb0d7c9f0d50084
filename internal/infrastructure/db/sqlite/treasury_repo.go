package sqlitedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/parcelhq/parceld/internal/core/domain"
)

type treasuryRepository struct {
	db *sqlx.DB
}

type treasuryRow struct {
	ID          int    `db:"id"`
	TotalSupply string `db:"total_supply"`
	Reserve     string `db:"reserve"`
}

type balanceRow struct {
	Account string `db:"account"`
	Balance string `db:"balance"`
}

type custodialRow struct {
	PropertyID uint64 `db:"property_id"`
	Balance    string `db:"balance"`
}

func NewTreasuryRepository(config ...interface{}) (domain.TreasuryRepository, error) {
	db, err := sqlxFromConfig(config...)
	if err != nil {
		return nil, err
	}
	return &treasuryRepository{db: db}, nil
}

func (r *treasuryRepository) Get(ctx context.Context) (*domain.Treasury, error) {
	treasury := domain.NewTreasury()

	var row treasuryRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM treasury WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return treasury, nil
		}
		return nil, err
	}
	if treasury.TotalSupply, err = parseAmount(row.TotalSupply); err != nil {
		return nil, err
	}
	if treasury.Reserve, err = parseAmount(row.Reserve); err != nil {
		return nil, err
	}

	var units []balanceRow
	if err := r.db.SelectContext(ctx, &units, `SELECT * FROM unit_balance`); err != nil {
		return nil, err
	}
	for _, unit := range units {
		balance, err := parseAmount(unit.Balance)
		if err != nil {
			return nil, err
		}
		treasury.UnitBalances[unit.Account] = balance
	}

	var custodials []custodialRow
	if err := r.db.SelectContext(ctx, &custodials, `SELECT * FROM custodial_balance`); err != nil {
		return nil, err
	}
	for _, custodial := range custodials {
		balance, err := parseAmount(custodial.Balance)
		if err != nil {
			return nil, err
		}
		treasury.Custodial[custodial.PropertyID] = balance
	}

	var cash []balanceRow
	if err := r.db.SelectContext(ctx, &cash, `SELECT * FROM cash_balance`); err != nil {
		return nil, err
	}
	for _, entry := range cash {
		balance, err := parseAmount(entry.Balance)
		if err != nil {
			return nil, err
		}
		treasury.CashBalances[entry.Account] = balance
	}

	return treasury, nil
}

func (r *treasuryRepository) Update(ctx context.Context, treasury *domain.Treasury) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO treasury (id, total_supply, reserve) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET total_supply = excluded.total_supply, reserve = excluded.reserve`,
		treasury.TotalSupply.Dec(), treasury.Reserve.Dec(),
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM unit_balance`); err != nil {
		return err
	}
	for account, balance := range treasury.UnitBalances {
		_, err := tx.ExecContext(
			ctx, `INSERT INTO unit_balance (account, balance) VALUES (?, ?)`,
			account, balance.Dec(),
		)
		if err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM custodial_balance`); err != nil {
		return err
	}
	for propertyID, balance := range treasury.Custodial {
		_, err := tx.ExecContext(
			ctx, `INSERT INTO custodial_balance (property_id, balance) VALUES (?, ?)`,
			propertyID, balance.Dec(),
		)
		if err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cash_balance`); err != nil {
		return err
	}
	for account, balance := range treasury.CashBalances {
		_, err := tx.ExecContext(
			ctx, `INSERT INTO cash_balance (account, balance) VALUES (?, ?)`,
			account, balance.Dec(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *treasuryRepository) Close() {}
