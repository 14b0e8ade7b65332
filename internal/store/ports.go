package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps connectivity failures of a durable store.
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict is returned when an update would create a second budget for
	// the same (category, month).
	ErrConflict = errors.New("budget already exists for category and month")
)

// TransactionStore persists transactions.
type TransactionStore interface {
	// ListTransactions returns every transaction, newest first.
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	// CreateTransaction assigns the id and timestamps and returns the stored record.
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
}

// BudgetStore persists budgets, at most one per (category, month).
type BudgetStore interface {
	// ListBudgets returns budgets sorted by category. An empty month means all months.
	ListBudgets(ctx context.Context, month string) ([]core.Budget, error)
	GetBudget(ctx context.Context, id string) (core.Budget, error)
	// UpsertBudget atomically creates the (category, month) budget or replaces
	// its amount. created reports which of the two happened.
	UpsertBudget(ctx context.Context, category, month string, amount decimal.Decimal) (b core.Budget, created bool, err error)
	UpdateBudget(ctx context.Context, id string, patch core.BudgetPatch) (core.Budget, error)
	DeleteBudget(ctx context.Context, id string) error
}

// RecordStore is the full persistence surface used by the service layer.
type RecordStore interface {
	TransactionStore
	BudgetStore
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Name identifies the implementation in logs and health checks.
	Name() string
	Close() error
}
