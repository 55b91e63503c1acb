package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// Querier is the subset of *sql.DB and *sql.Tx that repositories use, so
// the same query code runs inside or outside a snapshot.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type snapshotKey struct{}

// snapshotOptions gives both passes of a paged fetch the same view: InnoDB
// REPEATABLE READ pins the read view at the first consistent read.
var snapshotOptions = &sql.TxOptions{
	Isolation: sql.LevelRepeatableRead,
	ReadOnly:  true,
}

// WithSnapshot runs fn inside a read-only REPEATABLE READ transaction. The
// transaction travels in the context passed to fn; repositories pick it up
// through Conn. Nested calls reuse the outer transaction, as do calls made
// inside WithTx.
func WithSnapshot(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(snapshotKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	// Reads inside a write transaction already share its view.
	if _, ok := ctx.Value(writeTxKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, snapshotOptions)
	if err != nil {
		return fmt.Errorf("beginning read snapshot: %w", err)
	}

	if err := fn(context.WithValue(ctx, snapshotKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	// Nothing was written; commit only releases the read view.
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("closing read snapshot: %w", err)
	}
	return nil
}

// Conn returns the transaction carried by ctx, or db when there is none. A
// write transaction from WithTx wins over a read snapshot.
func Conn(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := ctx.Value(writeTxKey{}).(*sql.Tx); ok {
		return tx
	}
	if tx, ok := ctx.Value(snapshotKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// erDupEntry is ER_DUP_ENTRY, the MariaDB error number for unique key violations.
const erDupEntry = 1062

// IsDuplicateEntry reports whether err is a unique key violation.
func IsDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == erDupEntry
}

// InClause returns "?,?,?" with one placeholder per id and the ids as
// query arguments.
func InClause[T any](ids []T) (string, []any) {
	if len(ids) == 0 {
		return "", nil
	}
	placeholders := make([]byte, 0, len(ids)*2-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	return string(placeholders), args
}
