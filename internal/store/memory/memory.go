// Package memory is the ephemeral record store. It backs the service when no
// durable store is configured or reachable; contents vanish on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

type budgetKey struct {
	category string
	month    string
}

type Store struct {
	mu           sync.RWMutex
	transactions map[string]core.Transaction
	budgets      map[string]core.Budget
	byKey        map[budgetKey]string
	now          func() time.Time
}

var _ store.RecordStore = (*Store)(nil)

func New() *Store {
	return &Store{
		transactions: make(map[string]core.Transaction),
		budgets:      make(map[string]core.Budget),
		byKey:        make(map[budgetKey]string),
		now:          time.Now,
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// ListTransactions returns a snapshot, newest first.
func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.RLock()
	out := make([]core.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return tx, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	tx.ID = uuid.NewString()
	tx.CreatedAt, tx.UpdatedAt = now, now
	s.transactions[tx.ID] = tx
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	updated := patch.Apply(tx).Normalize()
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, err
	}
	updated.UpdatedAt = s.now()
	s.transactions[id] = updated
	return updated, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	delete(s.transactions, id)
	return nil
}

// ListBudgets returns budgets sorted by category, then month.
func (s *Store) ListBudgets(_ context.Context, month string) ([]core.Budget, error) {
	month = strings.TrimSpace(month)
	s.mu.RLock()
	out := make([]core.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		if month == "" || b.Month == month {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category == out[j].Category {
			return out[i].Month < out[j].Month
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *Store) GetBudget(_ context.Context, id string) (core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[id]
	if !ok {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, store.ErrNotFound)
	}
	return b, nil
}

// UpsertBudget looks up and writes under one lock, so concurrent callers can
// never create two budgets for the same key.
func (s *Store) UpsertBudget(_ context.Context, category, month string, amount decimal.Decimal) (core.Budget, bool, error) {
	b := core.Budget{Category: category, Month: month, Amount: amount}.Normalize()
	if err := b.Validate(); err != nil {
		return core.Budget{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	key := budgetKey{b.Category, b.Month}
	if id, ok := s.byKey[key]; ok {
		existing := s.budgets[id]
		existing.Amount = b.Amount
		existing.UpdatedAt = now
		s.budgets[id] = existing
		return existing, false, nil
	}

	b.ID = uuid.NewString()
	b.CreatedAt, b.UpdatedAt = now, now
	s.budgets[b.ID] = b
	s.byKey[key] = b.ID
	return b, true, nil
}

func (s *Store) UpdateBudget(_ context.Context, id string, patch core.BudgetPatch) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, store.ErrNotFound)
	}
	updated := patch.Apply(b).Normalize()
	if err := updated.Validate(); err != nil {
		return core.Budget{}, err
	}

	oldKey := budgetKey{b.Category, b.Month}
	newKey := budgetKey{updated.Category, updated.Month}
	if newKey != oldKey {
		if _, taken := s.byKey[newKey]; taken {
			return core.Budget{}, fmt.Errorf("budget %s/%s: %w", updated.Category, updated.Month, store.ErrConflict)
		}
		delete(s.byKey, oldKey)
		s.byKey[newKey] = id
	}
	updated.UpdatedAt = s.now()
	s.budgets[id] = updated
	return updated, nil
}

func (s *Store) DeleteBudget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok {
		return fmt.Errorf("budget %s: %w", id, store.ErrNotFound)
	}
	delete(s.byKey, budgetKey{b.Category, b.Month})
	delete(s.budgets, id)
	return nil
}
