package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// WithTransaction function:
//     Begin transaction từ pool với options
//     Defer rollback - tự động rollback nếu:
//         fn return error
//         có panic
//         context bị cancel (client bỏ request)
//     Commit nếu không có error

// TxFunc là function type được execute trong transaction
type TxFunc func(pgx.Tx) error

// Options cho một transaction
type Options struct {
	IsoLevel pgx.TxIsoLevel
	// StatementTimeout > 0 => SET LOCAL statement_timeout, giới hạn thời gian giữ lock
	StatementTimeout time.Duration
}

// Serializable là option mặc định cho batch mutation
func Serializable(statementTimeout time.Duration) Options {
	return Options{IsoLevel: pgx.Serializable, StatementTimeout: statementTimeout}
}

// WithTransaction wraps một function trong transaction read committed
func WithTransaction(ctx context.Context, pool *pgxpool.Pool, fn TxFunc) error {
	return WithTransactionOptions(ctx, pool, Options{IsoLevel: pgx.ReadCommitted}, fn)
}

// WithTransactionOptions wraps fn trong transaction với isolation level cho trước.
// Auto rollback nếu có error hoặc panic, auto commit nếu success.
func WithTransactionOptions(ctx context.Context, pool *pgxpool.Pool, opts Options, fn TxFunc) (err error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: opts.IsoLevel, AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(tx)
			panic(p)
		}
		if err != nil {
			rollback(tx)
		}
	}()

	if opts.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", opts.StatementTimeout.Milliseconds())
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set statement timeout: %w", err)
		}
	}

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rollback dùng context riêng: ctx của request có thể đã bị cancel
func rollback(tx pgx.Tx) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		log.Error().Err(err).Msg("transaction rollback failed")
	}
}
