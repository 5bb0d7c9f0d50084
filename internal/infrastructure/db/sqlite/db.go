package sqlitedb

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// OpenDb opens the sqlite database file with WAL and a busy timeout, which
// lets the single writer coexist with concurrent readers.
func OpenDb(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %s", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
