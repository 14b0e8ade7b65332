// Package memory keeps exported month reports in process. The worker uses it
// when no spreadsheet is configured, and tests use it to observe exports.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

// Report is the last export of one month.
type Report struct {
	Month      string
	Usage      []analytics.BudgetUsage
	Insights   []analytics.Insight
	ExportedAt time.Time
}

type Exporter struct {
	mu      sync.Mutex
	reports map[string]Report
	exports int
}

var _ sheets.ReportExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{reports: make(map[string]Report)}
}

// ExportMonth replaces the stored report for month.
func (e *Exporter) ExportMonth(_ context.Context, month string, usage []analytics.BudgetUsage, insights []analytics.Insight) error {
	if err := core.ValidateMonth(month); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports[month] = Report{
		Month:      month,
		Usage:      append([]analytics.BudgetUsage(nil), usage...),
		Insights:   append([]analytics.Insight(nil), insights...),
		ExportedAt: time.Now(),
	}
	e.exports++
	return nil
}

// Report returns the stored report for month.
func (e *Exporter) Report(month string) (Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.reports[month]
	return r, ok
}

// Months lists exported months in ascending order.
func (e *Exporter) Months() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	months := make([]string, 0, len(e.reports))
	for m := range e.reports {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}

// Exports counts ExportMonth calls that succeeded.
func (e *Exporter) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports
}
