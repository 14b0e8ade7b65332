package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"fintrack/internal/store"
	"fintrack/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "fintrack.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.RecordStore { return openTemp(t) })
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fintrack.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := s.UpsertBudget(ctx, "Food", "2024-05", decimal.RequireFromString("199.99")); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	s.Close()

	// second Open re-runs migrations, which must be a no-op
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	list, err := s.ListBudgets(ctx, "")
	if err != nil {
		t.Fatalf("ListBudgets: %v", err)
	}
	if len(list) != 1 || !list[0].Amount.Equal(decimal.RequireFromString("199.99")) {
		t.Fatalf("unexpected budgets after reopen: %+v", list)
	}
}

func TestPing(t *testing.T) {
	s := openTemp(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if s.Name() != "sqlite" {
		t.Fatalf("Name = %q", s.Name())
	}
}
