package analytics

import (
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var hundred = decimal.NewFromInt(100)

// BudgetUsage compares one budget with the month's actual spending. The
// values are unrounded; use the *Rounded helpers for display only.
type BudgetUsage struct {
	BudgetID    string          `json:"budgetId"`
	Category    string          `json:"category"`
	Month       string          `json:"month"`
	Budgeted    decimal.Decimal `json:"budgeted"`
	Actual      decimal.Decimal `json:"actual"`
	Remaining   decimal.Decimal `json:"remaining"`
	PercentUsed decimal.Decimal `json:"percentUsed"`
}

// ActualRounded is Actual to two decimal places.
func (u BudgetUsage) ActualRounded() decimal.Decimal {
	return u.Actual.Round(2)
}

// PercentRounded is PercentUsed to one decimal place.
func (u BudgetUsage) PercentRounded() decimal.Decimal {
	return u.PercentUsed.Round(1)
}

// Exceeded reports whether spending reached or passed the budget.
func (u BudgetUsage) Exceeded() bool {
	return u.PercentUsed.GreaterThanOrEqual(hundred)
}

// NearLimit reports whether spending crossed the warning threshold without
// exceeding the budget.
func (u BudgetUsage) NearLimit() bool {
	return !u.Exceeded() && u.PercentUsed.GreaterThanOrEqual(budgetWarnThreshold)
}

// Overage is how far spending went past the budget, zero when under.
func (u BudgetUsage) Overage() decimal.Decimal {
	if over := u.Actual.Sub(u.Budgeted); over.IsPositive() {
		return over
	}
	return decimal.Zero
}

// ComputeBudgetUsage returns one row per budget of month, in budget order.
// Budgets for other months are ignored; no budgets is an empty result.
func ComputeBudgetUsage(budgets []core.Budget, transactions []core.Transaction, month string) []BudgetUsage {
	monthTxs := InMonth(normalize(transactions), month)
	return budgetUsage(budgetsInMonth(budgets, month), expensesByCategory(monthTxs))
}

func budgetUsage(monthBudgets []core.Budget, spent CategoryTotals) []BudgetUsage {
	rows := make([]BudgetUsage, 0, len(monthBudgets))
	for _, b := range monthBudgets {
		actual := spent.Get(b.Category)
		rows = append(rows, BudgetUsage{
			BudgetID:    b.ID,
			Category:    b.Category,
			Month:       b.Month,
			Budgeted:    b.Amount,
			Actual:      actual,
			Remaining:   b.Amount.Sub(actual),
			PercentUsed: percentOf(actual, b.Amount),
		})
	}
	return rows
}

// percentOf is part/whole*100, or zero when whole is not positive.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
