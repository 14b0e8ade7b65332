// Package sqlite is the file-backed durable record store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.RecordStore = (*Store)(nil)

// Open creates the database directory if needed, applies migrations and
// returns a ready store.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection serializes writes in-process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Name() string { return "sqlite" }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const transactionColumns = `id, amount, type, description, occurred_at, category, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx                          core.Transaction
		amount, txType              string
		occurred, created, modified int64
	)
	if err := row.Scan(&tx.ID, &amount, &txType, &tx.Description, &occurred, &tx.Category, &created, &modified); err != nil {
		return core.Transaction{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	tx.Amount = d
	tx.Type = core.TransactionType(txType)
	tx.Date = time.Unix(0, occurred)
	tx.CreatedAt = time.Unix(0, created)
	tx.UpdatedAt = time.Unix(0, modified)
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions ORDER BY occurred_at DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return getTransaction(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTransaction(ctx context.Context, q querier, id string) (core.Transaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	now := s.now()
	tx.ID = uuid.NewString()
	tx.CreatedAt, tx.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Amount.String(), string(tx.Type), tx.Description,
		tx.Date.UnixNano(), tx.Category, now.UnixNano(), now.UnixNano())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite", "id", tx.ID, "category", tx.Category, "amount", tx.Amount.String())
	return tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback()

	current, err := getTransaction(ctx, dbtx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	updated := patch.Apply(current).Normalize()
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, err
	}
	updated.UpdatedAt = s.now()

	_, err = dbtx.ExecContext(ctx,
		`UPDATE transactions SET amount = ?, type = ?, description = ?, occurred_at = ?, category = ?, updated_at = ? WHERE id = ?`,
		updated.Amount.String(), string(updated.Type), updated.Description,
		updated.Date.UnixNano(), updated.Category, updated.UpdatedAt.UnixNano(), id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}
	if err := dbtx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return requireAffected(res, "transaction", id)
}

const budgetColumns = `id, category, month, amount, created_at, updated_at`

func scanBudget(row rowScanner) (core.Budget, error) {
	var (
		b                 core.Budget
		amount            string
		created, modified int64
	)
	if err := row.Scan(&b.ID, &b.Category, &b.Month, &amount, &created, &modified); err != nil {
		return core.Budget{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Budget{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	b.Amount = d
	b.CreatedAt = time.Unix(0, created)
	b.UpdatedAt = time.Unix(0, modified)
	return b, nil
}

func (s *Store) ListBudgets(ctx context.Context, month string) ([]core.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets`
	var args []any
	if month = strings.TrimSpace(month); month != "" {
		query += ` WHERE month = ?`
		args = append(args, month)
	}
	query += ` ORDER BY category, month`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := []core.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	return getBudget(ctx, s.db, id)
}

func getBudget(ctx context.Context, q querier, id string) (core.Budget, error) {
	b, err := scanBudget(q.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget %s: %w", id, err)
	}
	return b, nil
}

// UpsertBudget relies on the UNIQUE(category, month) constraint so the
// insert-or-update happens in a single statement.
func (s *Store) UpsertBudget(ctx context.Context, category, month string, amount decimal.Decimal) (core.Budget, bool, error) {
	b := core.Budget{Category: category, Month: month, Amount: amount}.Normalize()
	if err := b.Validate(); err != nil {
		return core.Budget{}, false, err
	}
	now := s.now().UnixNano()
	newID := uuid.NewString()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (category, month) DO UPDATE SET
			amount = excluded.amount,
			updated_at = excluded.updated_at
		RETURNING `+budgetColumns,
		newID, b.Category, b.Month, b.Amount.String(), now, now)
	saved, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("upsert budget %s/%s: %w", b.Category, b.Month, err)
	}
	return saved, saved.ID == newID, nil
}

func (s *Store) UpdateBudget(ctx context.Context, id string, patch core.BudgetPatch) (core.Budget, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Budget{}, fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback()

	current, err := getBudget(ctx, dbtx, id)
	if err != nil {
		return core.Budget{}, err
	}
	updated := patch.Apply(current).Normalize()
	if err := updated.Validate(); err != nil {
		return core.Budget{}, err
	}
	updated.UpdatedAt = s.now()

	_, err = dbtx.ExecContext(ctx,
		`UPDATE budgets SET category = ?, month = ?, amount = ?, updated_at = ? WHERE id = ?`,
		updated.Category, updated.Month, updated.Amount.String(), updated.UpdatedAt.UnixNano(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Budget{}, fmt.Errorf("budget %s/%s: %w", updated.Category, updated.Month, store.ErrConflict)
		}
		return core.Budget{}, fmt.Errorf("update budget %s: %w", id, err)
	}
	if err := dbtx.Commit(); err != nil {
		return core.Budget{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	return requireAffected(res, "budget", id)
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
