// Package sheets defines the spreadsheet report port and its adapters.
package sheets

import (
	"context"

	"fintrack/internal/analytics"
)

// ReportExporter publishes a month's budget usage and insights to a
// spreadsheet-like destination, replacing what was there before.
type ReportExporter interface {
	ExportMonth(ctx context.Context, month string, usage []analytics.BudgetUsage, insights []analytics.Insight) error
}
