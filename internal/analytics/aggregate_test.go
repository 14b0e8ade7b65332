package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.Local)
}

func tx(amount, category string, date time.Time) core.Transaction {
	return core.Transaction{
		Amount:      dec(amount),
		Description: "test",
		Category:    category,
		Date:        date,
	}
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name                      string
		txs                       []core.Transaction
		income, expenses, balance string
	}{
		{"empty", nil, "0", "0", "0"},
		{
			name: "mixed",
			txs: []core.Transaction{
				tx("1000", "Salary", day(2024, 5, 1)),
				tx("-50.25", "Food", day(2024, 5, 2)),
				tx("-30", "Transport", day(2024, 5, 3)),
			},
			income: "1000", expenses: "80.25", balance: "919.75",
		},
		{
			name:   "zero counts as income",
			txs:    []core.Transaction{tx("0", "", day(2024, 5, 1))},
			income: "0", expenses: "0", balance: "0",
		},
		{
			name: "expenses only",
			txs: []core.Transaction{
				tx("-0.1", "Food", day(2024, 5, 1)),
				tx("-0.2", "Food", day(2024, 5, 1)),
			},
			income: "0", expenses: "0.3", balance: "-0.3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(tt.txs)
			if !got.Income.Equal(dec(tt.income)) {
				t.Errorf("income = %s, want %s", got.Income, tt.income)
			}
			if !got.Expenses.Equal(dec(tt.expenses)) {
				t.Errorf("expenses = %s, want %s", got.Expenses, tt.expenses)
			}
			if !got.Balance.Equal(dec(tt.balance)) {
				t.Errorf("balance = %s, want %s", got.Balance, tt.balance)
			}
			if !got.Balance.Equal(got.Income.Sub(got.Expenses)) {
				t.Errorf("balance %s != income - expenses", got.Balance)
			}
		})
	}
}

func TestComputeExpensesByCategory(t *testing.T) {
	txs := []core.Transaction{
		tx("-20", "Food", day(2024, 5, 1)),
		tx("500", "Food", day(2024, 5, 1)),
		tx("-15", "", day(2024, 5, 2)),
		tx("-5", "Transport", day(2024, 5, 3)),
		tx("-30", "Food", day(2024, 5, 4)),
		tx("-1", "  ", day(2024, 5, 4)),
	}
	got := ComputeExpensesByCategory(txs)

	want := []CategoryAmount{
		{Category: "Food", Amount: dec("50")},
		{Category: core.DefaultCategory, Amount: dec("16")},
		{Category: "Transport", Amount: dec("5")},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d categories, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Category != want[i].Category || !got[i].Amount.Equal(want[i].Amount) {
			t.Errorf("category %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if !got.Sum().Equal(ComputeTotals(txs).Expenses) {
		t.Errorf("sum %s != total expenses %s", got.Sum(), ComputeTotals(txs).Expenses)
	}
	if !got.Get("").Equal(dec("16")) {
		t.Errorf("Get on blank category should read the default bucket")
	}
	if !got.Get("Rent").IsZero() {
		t.Errorf("missing category should be zero")
	}
}

func TestComputeExpensesByCategory_DoesNotMutateInput(t *testing.T) {
	txs := []core.Transaction{tx("-5", "", day(2024, 5, 1))}
	ComputeExpensesByCategory(txs)
	if txs[0].Category != "" {
		t.Fatalf("input mutated: %q", txs[0].Category)
	}
}

func TestCategoryTotals_TopIsStable(t *testing.T) {
	totals := CategoryTotals{
		{Category: "A", Amount: dec("10")},
		{Category: "B", Amount: dec("30")},
		{Category: "C", Amount: dec("10")},
		{Category: "D", Amount: dec("30")},
	}
	top := totals.Top(3)
	want := []string{"B", "D", "A"}
	for i, c := range want {
		if top[i].Category != c {
			t.Fatalf("Top(3) = %+v, want order %v", top, want)
		}
	}
	if totals[0].Category != "A" {
		t.Fatal("Top reordered its receiver")
	}
	if len(totals.Top(10)) != 4 {
		t.Fatal("Top should cap at length")
	}
}

func TestInMonth(t *testing.T) {
	txs := []core.Transaction{
		tx("-1", "", day(2024, 4, 30)),
		tx("-2", "", day(2024, 5, 1)),
		tx("-3", "", day(2024, 5, 31)),
		tx("-4", "", day(2024, 6, 1)),
	}
	got := InMonth(txs, "2024-05")
	if len(got) != 2 {
		t.Fatalf("got %d transactions in May, want 2", len(got))
	}
}
