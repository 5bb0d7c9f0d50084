package sqlitedb

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
)

// sqlxFromConfig unpacks the single *sqlx.DB every sqlite repository factory
// receives from the store factory.
func sqlxFromConfig(config ...interface{}) (*sqlx.DB, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config: expected a db connection")
	}
	db, ok := config[0].(*sqlx.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open sqlite repository: invalid config")
	}
	return db, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return uint256.NewInt(0), nil
	}
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %s", s, err)
	}
	return amount, nil
}
