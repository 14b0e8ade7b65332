package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/store"
	"fintrack/internal/store/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.RecordStore { return New() })
}

func TestListTransactionsReturnsSnapshot(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.CreateTransaction(ctx, core.Transaction{
		Amount:      decimal.NewFromInt(-1),
		Description: "a",
		Date:        time.Now(),
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	list, _ := s.ListTransactions(ctx)
	list[0].Description = "changed"

	again, _ := s.ListTransactions(ctx)
	if again[0].Description != "a" {
		t.Fatal("mutating a listed snapshot leaked into the store")
	}
}

func TestSameDateOrderedByCreation(t *testing.T) {
	s := New()
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()
	d := time.Date(2024, 5, 10, 0, 0, 0, 0, time.Local)
	for _, desc := range []string{"first", "second"} {
		if _, err := s.CreateTransaction(ctx, core.Transaction{Amount: decimal.NewFromInt(-1), Description: desc, Date: d}); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}
	list, _ := s.ListTransactions(ctx)
	if list[0].Description != "second" {
		t.Fatalf("expected latest created first, got %q", list[0].Description)
	}
}
