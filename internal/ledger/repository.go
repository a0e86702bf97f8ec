package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbook/internal/platform/db"
)

//go:embed schema.sql
var schemaSQL string

// ErrDuplicate indicates a unique constraint violation in the database.
var ErrDuplicate = errors.New("ledger: duplicate record")

// PostgresRepository persists the ledger in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository using the provided pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the ledger tables when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	return nil
}

// Load reads every transaction, account and lock in insertion order.
func (r *PostgresRepository) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if snap.Transactions, err = loadTransactions(ctx, tx); err != nil {
			return err
		}
		if snap.Accounts, err = loadAccounts(ctx, tx); err != nil {
			return err
		}
		snap.Locks, err = loadLocks(ctx, tx)
		return err
	})
	return snap, err
}

func loadTransactions(ctx context.Context, tx pgx.Tx) ([]Transaction, error) {
	rows, err := tx.Query(ctx, `SELECT id, to_char(txn_date, 'YYYY-MM-DD'), txn_type, source, branch, market,
		account_code, description, amount::text, method, proof_url
		FROM cashbook_transactions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var (
			t      Transaction
			amount string
		)
		if err := rows.Scan(&t.ID, &t.Date, &t.Type, &t.Source, &t.Branch, &t.Market,
			&t.AccountCode, &t.Description, &amount, &t.Method, &t.ProofURL); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("ledger: transaction %s amount: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func loadAccounts(ctx context.Context, tx pgx.Tx) ([]Account, error) {
	rows, err := tx.Query(ctx, `SELECT id, code, name, category, acc_type, branch, market, status, note
		FROM cashbook_accounts ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Category, &a.Type, &a.Branch, &a.Market, &a.Status, &a.Note); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func loadLocks(ctx context.Context, tx pgx.Tx) ([]LockKey, error) {
	rows, err := tx.Query(ctx, `SELECT month, account_code, branch FROM cashbook_period_locks ORDER BY month, account_code, branch`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LockKey
	for rows.Next() {
		var k LockKey
		if err := rows.Scan(&k.Month, &k.AccountCode, &k.Branch); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

const insertTransactionSQL = `INSERT INTO cashbook_transactions
	(id, txn_date, txn_type, source, branch, market, account_code, description, amount, method, proof_url)
	VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11)`

// InsertTransactions writes the batch atomically and keeps the provided ids.
func (r *PostgresRepository) InsertTransactions(ctx context.Context, txns []Transaction) ([]string, error) {
	ids := make([]string, len(txns))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, t := range txns {
			ids[i] = t.ID
			batch.Queue(insertTransactionSQL, t.ID, t.Date, string(t.Type), t.Source, string(t.Branch), string(t.Market),
				t.AccountCode, t.Description, t.Amount.String(), t.Method, t.ProofURL)
		}
		return sendBatch(ctx, tx, batch)
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return ids, nil
}

// UpdateTransaction overwrites the stored row.
func (r *PostgresRepository) UpdateTransaction(ctx context.Context, t Transaction) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cashbook_transactions SET txn_date=$2::date, txn_type=$3, source=$4, branch=$5,
		market=$6, account_code=$7, description=$8, amount=$9::numeric, method=$10, proof_url=$11 WHERE id=$1`,
		t.ID, t.Date, string(t.Type), t.Source, string(t.Branch), string(t.Market),
		t.AccountCode, t.Description, t.Amount.String(), t.Method, t.ProofURL)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "transaction", ID: t.ID}
	}
	return nil
}

// DeleteTransaction removes the row.
func (r *PostgresRepository) DeleteTransaction(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cashbook_transactions WHERE id=$1`, id)
	return err
}

const insertAccountSQL = `INSERT INTO cashbook_accounts
	(id, code, name, category, acc_type, branch, market, status, note)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// InsertAccounts writes the batch atomically and keeps the provided ids.
func (r *PostgresRepository) InsertAccounts(ctx context.Context, accounts []Account) ([]string, error) {
	ids := make([]string, len(accounts))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, a := range accounts {
			ids[i] = a.ID
			batch.Queue(insertAccountSQL, a.ID, a.Code, a.Name, a.Category, string(a.Type),
				string(a.Branch), string(a.Market), string(a.Status), a.Note)
		}
		return sendBatch(ctx, tx, batch)
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return ids, nil
}

// UpdateAccount overwrites the stored row.
func (r *PostgresRepository) UpdateAccount(ctx context.Context, a Account) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cashbook_accounts SET code=$2, name=$3, category=$4, acc_type=$5,
		branch=$6, market=$7, status=$8, note=$9 WHERE id=$1`,
		a.ID, a.Code, a.Name, a.Category, string(a.Type), string(a.Branch), string(a.Market), string(a.Status), a.Note)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "account", ID: a.ID}
	}
	return nil
}

// DeleteAccount removes the row.
func (r *PostgresRepository) DeleteAccount(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cashbook_accounts WHERE id=$1`, id)
	return err
}

// SaveLock records a closed triple; an existing lock is left untouched.
func (r *PostgresRepository) SaveLock(ctx context.Context, key LockKey) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO cashbook_period_locks (month, account_code, branch)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, string(key.Month), key.AccountCode, string(key.Branch))
	return err
}

// DeleteLock reopens a triple.
func (r *PostgresRepository) DeleteLock(ctx context.Context, key LockKey) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cashbook_period_locks WHERE month=$1 AND account_code=$2 AND branch=$3`,
		string(key.Month), key.AccountCode, string(key.Branch))
	return err
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
