// Package store is the persistence layer: accounts, balances, instruments,
// orders, pending orders, contracts and transaction audit rows on DuckDB.
//
// Concurrency control is optimistic. Every state transition is a conditional
// UPDATE guarded on the current status; zero rows affected means another
// writer won the race and is reported to callers as claimed=false, not as an
// error.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-exchange/internal/logger"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
	"go.uber.org/zap"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx so entity methods can run
// standalone or inside an engine transaction.
type Queryer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

type Store struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewStore opens the database at path. Use ":memory:" for tests.
func NewStore(path string, log *logger.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStorageFailed, err, "failed to open database at %s", path)
	}

	return &Store{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates sequences and tables. Idempotent.
func (s *Store) Initialize() error {
	statements := []string{
		`CREATE SEQUENCE IF NOT EXISTS order_number_seq`,
		`CREATE SEQUENCE IF NOT EXISTS contract_number_seq`,
		`CREATE SEQUENCE IF NOT EXISTS transaction_number_seq`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS balances (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			asset TEXT NOT NULL,
			amount DOUBLE NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (account_id, asset)
		)`,
		`CREATE TABLE IF NOT EXISTS instruments (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			product_type TEXT NOT NULL,
			base_asset TEXT NOT NULL,
			quote_asset TEXT NOT NULL,
			max_leverage INTEGER NOT NULL,
			is_tradeable BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			order_number TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			order_type TEXT NOT NULL,
			status TEXT NOT NULL,
			amount_base DOUBLE NOT NULL,
			limit_price DOUBLE,
			stop_price DOUBLE,
			leverage INTEGER NOT NULL,
			product_type TEXT NOT NULL,
			filled_amount DOUBLE NOT NULL,
			average_fill_price DOUBLE,
			reject_reason TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pending_orders (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			order_number TEXT NOT NULL,
			symbol TEXT NOT NULL,
			order_type TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity DOUBLE NOT NULL,
			trigger_price DOUBLE NOT NULL,
			limit_price DOUBLE,
			leverage INTEGER NOT NULL,
			product_type TEXT NOT NULL,
			status TEXT NOT NULL,
			executed_at TIMESTAMP,
			executed_price DOUBLE,
			failure_reason TEXT,
			expires_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contracts (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			contract_number TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			status TEXT NOT NULL,
			lot_size DOUBLE NOT NULL,
			entry_price DOUBLE NOT NULL,
			margin_used DOUBLE NOT NULL,
			leverage INTEGER NOT NULL,
			commission DOUBLE NOT NULL,
			liquidation_price DOUBLE,
			tp_price DOUBLE,
			sl_price DOUBLE,
			close_price DOUBLE,
			pnl DOUBLE,
			pair_id TEXT,
			created_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			transaction_number TEXT NOT NULL,
			account_id TEXT NOT NULL,
			tx_type TEXT NOT NULL,
			asset TEXT NOT NULL,
			amount DOUBLE NOT NULL,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(errors.ErrCodeStorageFailed, "failed to initialize schema", err)
		}
	}

	return nil
}

// BeginTx starts a transaction bound to ctx; cancelling the context rolls
// the transaction back.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to begin transaction", err)
	}

	return tx, nil
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to commit transaction", err)
	}

	return nil
}

// DB exposes the raw handle for read-only queries outside transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) nextNumber(q Queryer, sequence, prefix string) (string, error) {
	var n int64
	if err := q.QueryRow(fmt.Sprintf("SELECT nextval('%s')", sequence)).Scan(&n); err != nil {
		return "", errors.Wrapf(errors.ErrCodeStorageFailed, err, "failed to advance sequence %s", sequence)
	}

	return fmt.Sprintf("%s-%06d", prefix, n), nil
}

// NextOrderNumber allocates the next human-readable order number.
func (s *Store) NextOrderNumber(q Queryer) (string, error) {
	return s.nextNumber(q, "order_number_seq", "ORD")
}

// NextContractNumber allocates the next human-readable contract number.
func (s *Store) NextContractNumber(q Queryer) (string, error) {
	return s.nextNumber(q, "contract_number_seq", "CTR")
}

// NextTransactionNumber allocates the next human-readable transaction number.
func (s *Store) NextTransactionNumber(q Queryer) (string, error) {
	return s.nextNumber(q, "transaction_number_seq", "TXN")
}
