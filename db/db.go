package db

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the query interface the rest of the program consumes.  *sqlx.DB
// satisfies it; services take DB so tests can hand them an in-memory db.
type DB interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
	Beginx() (*sqlx.Tx, error)
}

// A Getter can run single-row queries.  Satisfied by DB and *sqlx.Tx, which
// lets validation helpers run inside or outside a transaction.
type Getter interface {
	Get(dest interface{}, query string, args ...interface{}) error
}

// With runs fn inside a transaction on conn.  If fn returns an error the
// transaction is rolled back and the error returned, otherwise it commits.
func With(conn DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := conn.Beginx()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Connect opens the sqlite database at uri.
func Connect(uri string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", uri, err)
	}
	// referential integrity is still enforced in code (history rows are
	// deleted ahead of their draft in one tx), but turn it on anyway
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, err
	}
	return conn, nil
}
