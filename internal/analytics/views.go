package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const (
	recentTransactionCount = 5
	// OverviewMonths is how many months the monthly overview covers by default.
	OverviewMonths = 6
)

// Dashboard is the overview shown on the landing page.
type Dashboard struct {
	Totals     Totals             `json:"totals"`
	Categories CategoryTotals     `json:"categories"`
	Recent     []core.Transaction `json:"recent"`
}

// ComputeDashboard builds the overview for a set of transactions. Category
// amounts are rounded to cents for charting.
func ComputeDashboard(transactions []core.Transaction) Dashboard {
	txs := normalize(transactions)
	return Dashboard{
		Totals:     ComputeTotals(txs),
		Categories: expensesByCategory(txs).Rounded(),
		Recent:     RecentTransactions(txs, recentTransactionCount),
	}
}

// RecentTransactions returns the n most recent transactions, newest first.
func RecentTransactions(transactions []core.Transaction, n int) []core.Transaction {
	sorted := SortByDateDesc(transactions)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// SortByDateDesc returns a copy ordered newest first. Equal dates keep their
// input order.
func SortByDateDesc(transactions []core.Transaction) []core.Transaction {
	sorted := make([]core.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	return sorted
}

// AvailableMonths lists every month that has a transaction or a budget,
// newest first.
func AvailableMonths(transactions []core.Transaction, budgets []core.Budget) []string {
	seen := make(map[string]struct{})
	for _, tx := range transactions {
		seen[core.MonthKey(tx.Date)] = struct{}{}
	}
	for _, b := range budgets {
		seen[b.Month] = struct{}{}
	}
	months := make([]string, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months
}

// MonthTotals is one bar pair of the monthly overview.
type MonthTotals struct {
	Month    string          `json:"month"`
	Label    string          `json:"label"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
}

// MonthlyOverview returns income and expenses, rounded to cents, for the n
// calendar months ending with the month of now, oldest first. Months without
// transactions report zeros.
func MonthlyOverview(transactions []core.Transaction, now time.Time, n int) []MonthTotals {
	if n <= 0 {
		return nil
	}
	months := make([]string, n)
	months[n-1] = core.MonthKey(now)
	for i := n - 2; i >= 0; i-- {
		// keys produced by MonthKey are always valid
		months[i], _ = core.PreviousMonth(months[i+1])
	}

	out := make([]MonthTotals, 0, n)
	for _, month := range months {
		totals := ComputeTotals(InMonth(transactions, month))
		out = append(out, MonthTotals{
			Month:    month,
			Label:    core.ShortMonthLabel(month),
			Income:   totals.Income.Round(2),
			Expenses: totals.Expenses.Round(2),
		})
	}
	return out
}
