// Package analytics turns snapshots of transactions and budgets into the
// derived views shown on the dashboard: totals, category breakdowns, budget
// usage and spending insights.
//
// Every function here is pure. Inputs are copied and normalized on the way in
// and never mutated, so callers can share snapshots between goroutines.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Totals summarises a set of transactions.
type Totals struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
}

// CategoryAmount is the absolute spend recorded against one category.
type CategoryAmount struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// CategoryTotals keeps categories in the order they were first seen.
type CategoryTotals []CategoryAmount

// Get returns the total for category, or zero when it has no expenses.
func (c CategoryTotals) Get(category string) decimal.Decimal {
	category = core.NormalizeCategory(category)
	for _, ca := range c {
		if ca.Category == category {
			return ca.Amount
		}
	}
	return decimal.Zero
}

// Sum adds up every category.
func (c CategoryTotals) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, ca := range c {
		total = total.Add(ca.Amount)
	}
	return total
}

// Top returns the n largest categories. Equal amounts keep first-seen order.
func (c CategoryTotals) Top(n int) CategoryTotals {
	ranked := make(CategoryTotals, len(c))
	copy(ranked, c)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Amount.GreaterThan(ranked[j].Amount)
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Rounded returns a copy with every amount rounded to cents, for charts.
func (c CategoryTotals) Rounded() CategoryTotals {
	out := make(CategoryTotals, len(c))
	for i, ca := range c {
		out[i] = CategoryAmount{Category: ca.Category, Amount: ca.Amount.Round(2)}
	}
	return out
}

// ComputeTotals sums income (amount >= 0) and expenses (amount < 0, taken as
// absolute values). Balance is always Income - Expenses.
func ComputeTotals(transactions []core.Transaction) Totals {
	income, expenses := decimal.Zero, decimal.Zero
	for _, tx := range transactions {
		if tx.IsExpense() {
			expenses = expenses.Add(tx.Amount.Abs())
		} else {
			income = income.Add(tx.Amount)
		}
	}
	return Totals{
		Income:   income,
		Expenses: expenses,
		Balance:  income.Sub(expenses),
	}
}

// ComputeExpensesByCategory groups expense transactions by normalized
// category. Income never contributes.
func ComputeExpensesByCategory(transactions []core.Transaction) CategoryTotals {
	return expensesByCategory(normalize(transactions))
}

func expensesByCategory(transactions []core.Transaction) CategoryTotals {
	var totals CategoryTotals
	index := make(map[string]int)
	for _, tx := range transactions {
		if !tx.IsExpense() {
			continue
		}
		i, ok := index[tx.Category]
		if !ok {
			i = len(totals)
			index[tx.Category] = i
			totals = append(totals, CategoryAmount{Category: tx.Category, Amount: decimal.Zero})
		}
		totals[i].Amount = totals[i].Amount.Add(tx.Amount.Abs())
	}
	return totals
}

// normalize copies the input and applies the category default once, so every
// downstream aggregation sees the same labels.
func normalize(transactions []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(transactions))
	for i, tx := range transactions {
		tx.Category = core.NormalizeCategory(tx.Category)
		out[i] = tx
	}
	return out
}

// InMonth filters transactions to those dated within month.
func InMonth(transactions []core.Transaction, month string) []core.Transaction {
	var out []core.Transaction
	for _, tx := range transactions {
		if core.MonthKey(tx.Date) == month {
			out = append(out, tx)
		}
	}
	return out
}

func budgetsInMonth(budgets []core.Budget, month string) []core.Budget {
	var out []core.Budget
	for _, b := range budgets {
		if b.Month == month {
			b.Category = core.NormalizeCategory(b.Category)
			out = append(out, b)
		}
	}
	return out
}
