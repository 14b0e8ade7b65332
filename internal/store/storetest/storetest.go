// Package storetest holds behaviour checks shared by every store.RecordStore
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.RecordStore

// Run exercises the RecordStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("transactions CRUD", func(t *testing.T) { testTransactionCRUD(t, newStore(t)) })
	t.Run("transactions listed newest first", func(t *testing.T) { testTransactionOrder(t, newStore(t)) })
	t.Run("transaction defaults", func(t *testing.T) { testTransactionDefaults(t, newStore(t)) })
	t.Run("created date reads back unchanged", func(t *testing.T) { testCreatedDateStable(t, newStore(t)) })
	t.Run("budget upsert keeps one record", func(t *testing.T) { testBudgetUpsert(t, newStore(t)) })
	t.Run("concurrent upserts keep one record", func(t *testing.T) { testConcurrentUpsert(t, newStore(t)) })
	t.Run("budgets filtered and sorted", func(t *testing.T) { testBudgetList(t, newStore(t)) })
	t.Run("budget update and delete", func(t *testing.T) { testBudgetUpdateDelete(t, newStore(t)) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, newStore(t)) })
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func testTransactionCRUD(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	created, err := s.CreateTransaction(ctx, core.Transaction{
		Amount:      decimal.RequireFromString("-12.50"),
		Description: "lunch",
		Date:        date(2024, 5, 10),
		Category:    "Food",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := s.GetTransaction(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !got.Amount.Equal(created.Amount) || got.Description != "lunch" || got.Category != "Food" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if core.MonthKey(got.Date) != "2024-05" || got.Date.Day() != 10 {
		t.Fatalf("date drifted: %v", got.Date)
	}

	desc := "dinner"
	amount := decimal.RequireFromString("-20")
	updated, err := s.UpdateTransaction(ctx, created.ID, core.TransactionPatch{Description: &desc, Amount: &amount})
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if updated.Description != "dinner" || !updated.Amount.Equal(amount) || updated.Category != "Food" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	empty := ""
	if _, err := s.UpdateTransaction(ctx, created.ID, core.TransactionPatch{Description: &empty}); !errors.Is(err, core.ErrEmptyDescription) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := s.DeleteTransaction(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if _, err := s.GetTransaction(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func testTransactionOrder(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	for _, d := range []int{3, 1, 2} {
		_, err := s.CreateTransaction(ctx, core.Transaction{
			Amount:      decimal.NewFromInt(-1),
			Description: fmt.Sprintf("day %d", d),
			Date:        date(2024, 5, d),
		})
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}
	list, err := s.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d transactions", len(list))
	}
	for i, want := range []int{3, 2, 1} {
		if list[i].Date.Day() != want {
			t.Fatalf("position %d has day %d, want %d", i, list[i].Date.Day(), want)
		}
	}
}

func testTransactionDefaults(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	created, err := s.CreateTransaction(ctx, core.Transaction{
		Amount:      decimal.NewFromInt(-5),
		Description: "misc",
		Date:        date(2024, 5, 1),
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.Category != core.DefaultCategory {
		t.Errorf("category = %q, want %q", created.Category, core.DefaultCategory)
	}
	if created.Type != core.Expense {
		t.Errorf("type = %q, want expense", created.Type)
	}
}

func testCreatedDateStable(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	created, err := s.CreateTransaction(ctx, core.Transaction{
		Amount:      decimal.NewFromInt(-7),
		Description: "precise",
		Date:        time.Date(2024, 5, 10, 9, 30, 15, 123456789, time.Local),
		Category:    "Food",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	got, err := s.GetTransaction(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !got.Date.Equal(created.Date) {
		t.Fatalf("stored date %v differs from returned %v", got.Date, created.Date)
	}
}

func testBudgetUpsert(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	first, created, err := s.UpsertBudget(ctx, "Food", "2024-05", decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}

	second, created, err := s.UpsertBudget(ctx, " Food ", "2024-05", decimal.NewFromInt(250))
	if err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	if created {
		t.Error("second upsert should update")
	}
	if second.ID != first.ID {
		t.Errorf("upsert changed id: %s -> %s", first.ID, second.ID)
	}

	list, err := s.ListBudgets(ctx, "2024-05")
	if err != nil {
		t.Fatalf("ListBudgets: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d budgets, want exactly 1", len(list))
	}
	if !list[0].Amount.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("amount = %s, want latest 250", list[0].Amount)
	}

	if _, _, err := s.UpsertBudget(ctx, "Food", "2024-5", decimal.NewFromInt(1)); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	if _, _, err := s.UpsertBudget(ctx, "Food", "2024-05", decimal.Zero); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func testConcurrentUpsert(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, _, err := s.UpsertBudget(ctx, "Rent", "2024-05", decimal.NewFromInt(int64(100+i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent UpsertBudget: %v", err)
	}

	list, err := s.ListBudgets(ctx, "2024-05")
	if err != nil {
		t.Fatalf("ListBudgets: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d budgets after concurrent upserts, want 1", len(list))
	}
}

func testBudgetList(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	for _, b := range []struct{ cat, month string }{
		{"Utilities", "2024-05"},
		{"Food", "2024-05"},
		{"Food", "2024-06"},
	} {
		if _, _, err := s.UpsertBudget(ctx, b.cat, b.month, decimal.NewFromInt(10)); err != nil {
			t.Fatalf("UpsertBudget: %v", err)
		}
	}

	may, err := s.ListBudgets(ctx, "2024-05")
	if err != nil {
		t.Fatalf("ListBudgets: %v", err)
	}
	if len(may) != 2 || may[0].Category != "Food" || may[1].Category != "Utilities" {
		t.Fatalf("unexpected May budgets: %+v", may)
	}

	all, err := s.ListBudgets(ctx, "")
	if err != nil {
		t.Fatalf("ListBudgets: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d budgets, want 3", len(all))
	}
}

func testBudgetUpdateDelete(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	food, _, err := s.UpsertBudget(ctx, "Food", "2024-05", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	if _, _, err := s.UpsertBudget(ctx, "Fun", "2024-05", decimal.NewFromInt(50)); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}

	amount := decimal.NewFromInt(120)
	updated, err := s.UpdateBudget(ctx, food.ID, core.BudgetPatch{Amount: &amount})
	if err != nil {
		t.Fatalf("UpdateBudget: %v", err)
	}
	if !updated.Amount.Equal(amount) || updated.Category != "Food" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	fun := "Fun"
	if _, err := s.UpdateBudget(ctx, food.ID, core.BudgetPatch{Category: &fun}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict renaming onto an existing budget, got %v", err)
	}

	if err := s.DeleteBudget(ctx, food.ID); err != nil {
		t.Fatalf("DeleteBudget: %v", err)
	}
	if _, err := s.GetBudget(ctx, food.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// the key is free again after delete
	_, created, err := s.UpsertBudget(ctx, "Food", "2024-05", decimal.NewFromInt(1))
	if err != nil || !created {
		t.Fatalf("re-create after delete: created=%v err=%v", created, err)
	}
}

func testNotFound(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	missing := "000000000000000000000000"
	desc := "x"
	amount := decimal.NewFromInt(1)

	checks := map[string]error{}
	_, checks["get transaction"] = s.GetTransaction(ctx, missing)
	_, checks["update transaction"] = s.UpdateTransaction(ctx, missing, core.TransactionPatch{Description: &desc})
	checks["delete transaction"] = s.DeleteTransaction(ctx, missing)
	_, checks["get budget"] = s.GetBudget(ctx, missing)
	_, checks["update budget"] = s.UpdateBudget(ctx, missing, core.BudgetPatch{Amount: &amount})
	checks["delete budget"] = s.DeleteBudget(ctx, missing)

	for name, err := range checks {
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}
