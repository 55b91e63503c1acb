package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
)

type writeTxKey struct{}

// WithTx runs fn inside a read-write transaction that is committed when fn
// returns nil and rolled back otherwise. Like WithSnapshot, the transaction
// travels in the context and repositories reach it through Conn. Nested
// calls join the outer transaction.
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(writeTxKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, writeTxKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rolling back transaction", slog.Any("error", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// undoLog collects compensating actions for in-process stores, which have
// no transactions of their own.
type undoLog struct {
	mu  sync.Mutex
	fns []func()
}

type undoKey struct{}

// WithUndo is the in-memory counterpart of WithTx. Stores register the
// inverse of each change with RecordUndo; if fn fails the inverses run
// newest first. Nested calls join the outer log.
func WithUndo(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	log := &undoLog{}
	err := fn(context.WithValue(ctx, undoKey{}, log))
	if err == nil {
		return nil
	}

	log.mu.Lock()
	fns := log.fns
	log.fns = nil
	log.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
	return err
}

// RecordUndo registers undo to run if the enclosing WithUndo fails. Outside
// WithUndo it does nothing. undo runs after fn has returned, so it may take
// the store's locks.
func RecordUndo(ctx context.Context, undo func()) {
	log, ok := ctx.Value(undoKey{}).(*undoLog)
	if !ok {
		return
	}
	log.mu.Lock()
	log.fns = append(log.fns, undo)
	log.mu.Unlock()
}
