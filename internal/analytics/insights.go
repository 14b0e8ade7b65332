package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeveritySuccess Severity = "success"
)

// Insight is a rendered observation about spending.
type Insight struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

const (
	topCategoryCount     = 3
	budgetWarnPercent    = 80
	significantChangePct = 10
)

var (
	budgetWarnThreshold = decimal.NewFromInt(budgetWarnPercent)
	significantChange   = decimal.NewFromInt(significantChangePct)
)

// insightInput is the snapshot every rule reads from. Transactions are
// already normalized.
type insightInput struct {
	all          []core.Transaction
	month        string
	monthTxs     []core.Transaction
	monthBudgets []core.Budget
	spent        CategoryTotals
}

// rule produces zero or more insights. When a shortCircuit rule emits
// anything, evaluation stops there.
type rule struct {
	name         string
	shortCircuit bool
	eval         func(in *insightInput, produced []Insight) []Insight
}

var insightRules = []rule{
	{name: "no_data", shortCircuit: true, eval: noDataRule},
	{name: "no_data_for_month", shortCircuit: true, eval: noDataForMonthRule},
	{name: "top_categories", eval: topCategoriesRule},
	{name: "budget_threshold", eval: budgetThresholdRule},
	{name: "month_over_month", eval: monthOverMonthRule},
	{name: "day_of_week", eval: dayOfWeekRule},
	{name: "fallback", eval: fallbackRule},
}

// ComputeInsights evaluates the insight rules in order for month.
func ComputeInsights(transactions []core.Transaction, budgets []core.Budget, month string) []Insight {
	all := normalize(transactions)
	monthTxs := InMonth(all, month)
	in := &insightInput{
		all:          all,
		month:        month,
		monthTxs:     monthTxs,
		monthBudgets: budgetsInMonth(budgets, month),
		spent:        expensesByCategory(monthTxs),
	}

	var out []Insight
	for _, r := range insightRules {
		emitted := r.eval(in, out)
		out = append(out, emitted...)
		if r.shortCircuit && len(emitted) > 0 {
			break
		}
	}
	return out
}

func noDataRule(in *insightInput, _ []Insight) []Insight {
	if len(in.all) > 0 {
		return nil
	}
	return []Insight{{Severity: SeverityInfo, Message: "Add transactions to see spending insights."}}
}

func noDataForMonthRule(in *insightInput, _ []Insight) []Insight {
	if len(in.monthTxs) > 0 {
		return nil
	}
	return []Insight{{
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("No transactions found for %s.", core.MonthLabel(in.month)),
	}}
}

func topCategoriesRule(in *insightInput, _ []Insight) []Insight {
	top := in.spent.Top(topCategoryCount)
	if len(top) == 0 {
		return nil
	}
	parts := make([]string, len(top))
	for i, ca := range top {
		parts[i] = fmt.Sprintf("%s (%s)", ca.Category, core.FormatDollars(ca.Amount))
	}
	return []Insight{{
		Severity: SeverityInfo,
		Message: fmt.Sprintf("Your top spending categories for %s are: %s.",
			core.MonthLabel(in.month), strings.Join(parts, ", ")),
	}}
}

// budgetThresholdRule checks 100% before 80% so a budget fires at most once.
func budgetThresholdRule(in *insightInput, _ []Insight) []Insight {
	var out []Insight
	for _, u := range budgetUsage(in.monthBudgets, in.spent) {
		switch {
		case u.Exceeded():
			out = append(out, Insight{
				Severity: SeverityWarning,
				Message: fmt.Sprintf("You've exceeded your %s budget by %s.",
					u.Category, core.FormatDollars(u.Actual.Sub(u.Budgeted))),
			})
		case u.PercentUsed.GreaterThanOrEqual(budgetWarnThreshold):
			out = append(out, Insight{
				Severity: SeverityWarning,
				Message: fmt.Sprintf("You've used %s%% of your %s budget.",
					u.PercentUsed.StringFixed(1), u.Category),
			})
		}
	}
	return out
}

// monthOverMonthRule is skipped when the previous month has no expenses.
func monthOverMonthRule(in *insightInput, _ []Insight) []Insight {
	prevMonth, err := core.PreviousMonth(in.month)
	if err != nil {
		return nil
	}
	prevTxs := InMonth(in.all, prevMonth)
	hasExpense := false
	previous := decimal.Zero
	for _, tx := range prevTxs {
		if tx.IsExpense() {
			hasExpense = true
			previous = previous.Add(tx.Amount.Abs())
		}
	}
	if !hasExpense {
		return nil
	}

	change := percentOf(in.spent.Sum().Sub(previous), previous)
	if change.Abs().LessThan(significantChange) {
		return nil
	}
	severity, direction := SeveritySuccess, "decreased"
	if change.IsPositive() {
		severity, direction = SeverityWarning, "increased"
	}
	return []Insight{{
		Severity: severity,
		Message: fmt.Sprintf("Your spending %s by %s%% compared to last month.",
			direction, change.Abs().StringFixed(1)),
	}}
}

// dayOfWeekRule buckets by numeric weekday; ties go to the lowest index.
func dayOfWeekRule(in *insightInput, _ []Insight) []Insight {
	var buckets [7]decimal.Decimal
	seen := false
	for _, tx := range in.monthTxs {
		if !tx.IsExpense() {
			continue
		}
		day := tx.Date.In(time.Local).Weekday()
		buckets[day] = buckets[day].Add(tx.Amount.Abs())
		seen = true
	}
	if !seen {
		return nil
	}

	best := 0
	for day := 1; day < len(buckets); day++ {
		if buckets[day].GreaterThan(buckets[best]) {
			best = day
		}
	}
	return []Insight{{
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("You tend to spend the most on %s.", time.Weekday(best)),
	}}
}

func fallbackRule(_ *insightInput, produced []Insight) []Insight {
	if len(produced) > 0 {
		return nil
	}
	return []Insight{{Severity: SeverityInfo, Message: "Keep tracking your expenses to see more personalized insights."}}
}
