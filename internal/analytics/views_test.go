package analytics

import (
	"testing"
	"time"

	"fintrack/internal/core"
)

func TestRecentTransactions(t *testing.T) {
	var txs []core.Transaction
	for d := 1; d <= 7; d++ {
		item := tx("-1", "Food", day(2024, 5, d))
		item.ID = string(rune('a' + d - 1))
		txs = append(txs, item)
	}

	got := RecentTransactions(txs, 5)
	if len(got) != 5 {
		t.Fatalf("got %d, want 5", len(got))
	}
	wantIDs := []string{"g", "f", "e", "d", "c"}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
	if txs[0].ID != "a" {
		t.Fatal("input slice reordered")
	}
	if len(RecentTransactions(txs[:2], 5)) != 2 {
		t.Fatal("short input should be returned whole")
	}
}

func TestComputeDashboard(t *testing.T) {
	txs := []core.Transaction{
		tx("1000", "Income", day(2024, 5, 1)),
		tx("-50.005", "Food", day(2024, 5, 2)),
		tx("-30", "", day(2024, 5, 3)),
	}
	d := ComputeDashboard(txs)
	if !d.Totals.Balance.Equal(dec("919.995")) {
		t.Errorf("balance = %s", d.Totals.Balance)
	}
	if len(d.Categories) != 2 {
		t.Fatalf("categories = %+v", d.Categories)
	}
	if !d.Categories[0].Amount.Equal(dec("50.01")) {
		t.Errorf("food rounded = %s, want 50.01", d.Categories[0].Amount)
	}
	if d.Categories[1].Category != core.DefaultCategory {
		t.Errorf("second category = %q", d.Categories[1].Category)
	}
	if len(d.Recent) != 3 || d.Recent[0].Category != core.DefaultCategory {
		t.Errorf("recent = %+v", d.Recent)
	}
}

func TestAvailableMonths(t *testing.T) {
	txs := []core.Transaction{
		tx("-1", "", day(2024, 3, 1)),
		tx("-1", "", day(2024, 5, 1)),
		tx("-1", "", day(2024, 5, 9)),
	}
	budgets := []core.Budget{{Category: "Food", Amount: dec("1"), Month: "2024-06"}}
	got := AvailableMonths(txs, budgets)
	want := []string{"2024-06", "2024-05", "2024-03"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMonthlyOverview(t *testing.T) {
	txs := []core.Transaction{
		tx("1000", "Income", day(2023, 11, 30)),
		tx("-20.004", "Food", day(2023, 12, 1)),
		tx("-30", "Food", day(2023, 12, 31)),
		tx("250.5", "Income", day(2024, 2, 14)),
		tx("-99", "Rent", day(2024, 2, 1)),
		tx("-5", "Food", day(2024, 3, 1)),
	}

	tests := []struct {
		name     string
		now      time.Time
		n        int
		months   []string
		labels   []string
		income   []string
		expenses []string
	}{
		{
			name:     "crosses year boundary",
			now:      day(2024, 2, 20),
			n:        4,
			months:   []string{"2023-11", "2023-12", "2024-01", "2024-02"},
			labels:   []string{"Nov 2023", "Dec 2023", "Jan 2024", "Feb 2024"},
			income:   []string{"1000", "0", "0", "250.5"},
			expenses: []string{"0", "50", "0", "99"},
		},
		{
			name:     "empty months are zero",
			now:      day(2024, 8, 1),
			n:        3,
			months:   []string{"2024-06", "2024-07", "2024-08"},
			labels:   []string{"Jun 2024", "Jul 2024", "Aug 2024"},
			income:   []string{"0", "0", "0"},
			expenses: []string{"0", "0", "0"},
		},
		{
			name:     "single month",
			now:      day(2023, 12, 5),
			n:        1,
			months:   []string{"2023-12"},
			labels:   []string{"Dec 2023"},
			income:   []string{"0"},
			expenses: []string{"50"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthlyOverview(txs, tt.now, tt.n)
			if len(got) != len(tt.months) {
				t.Fatalf("got %d months, want %d", len(got), len(tt.months))
			}
			for i, m := range got {
				if m.Month != tt.months[i] || m.Label != tt.labels[i] {
					t.Errorf("[%d] = %s %q, want %s %q", i, m.Month, m.Label, tt.months[i], tt.labels[i])
				}
				if !m.Income.Equal(dec(tt.income[i])) {
					t.Errorf("[%d] income = %s, want %s", i, m.Income, tt.income[i])
				}
				if !m.Expenses.Equal(dec(tt.expenses[i])) {
					t.Errorf("[%d] expenses = %s, want %s", i, m.Expenses, tt.expenses[i])
				}
			}
		})
	}

	if MonthlyOverview(txs, day(2024, 2, 1), 0) != nil {
		t.Error("non-positive n should return nil")
	}
}
