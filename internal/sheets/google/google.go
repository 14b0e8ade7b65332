package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/sheets"
)

// Config selects the spreadsheet and the service account used to write it.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// Exporter writes month reports to one sheet of a Google spreadsheet.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger
	now           func() time.Time
}

var _ sheets.ReportExporter = (*Exporter)(nil)

// New creates an Exporter authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewExporter(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewExporter wraps an existing Sheets service.
func NewExporter(svc *gsheet.Service, spreadsheetID, sheetName string, logger *applog.Logger) *Exporter {
	if sheetName == "" {
		sheetName = "Report"
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(applog.ComponentSheets),
		now:           time.Now,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		credentialsJSON = []byte(cfg.ServiceAccountJSON)
	case strings.TrimSpace(cfg.ServiceAccountFile) != "":
		b, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportMonth clears the report sheet and writes the month's rows from A1.
func (e *Exporter) ExportMonth(ctx context.Context, month string, usage []analytics.BudgetUsage, insights []analytics.Insight) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := core.ValidateMonth(month); err != nil {
		return err
	}

	rows := BuildReportRows(month, usage, insights, e.now())

	clearRange := fmt.Sprintf("%s!A:F", e.sheetName)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	writeRange := fmt.Sprintf("%s!A1", e.sheetName)
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", writeRange, err)
	}

	e.logger.InfoContext(ctx, "Exported month report",
		applog.FieldOperation, applog.OpExport,
		applog.FieldMonth, month,
		"rows", len(rows))
	return nil
}

// BuildReportRows lays out a month report as sheet rows: a title block, one
// row per budget and the insight lines.
func BuildReportRows(month string, usage []analytics.BudgetUsage, insights []analytics.Insight, generatedAt time.Time) [][]interface{} {
	rows := [][]interface{}{
		{"Month", core.MonthLabel(month)},
		{"Generated", generatedAt.Format(time.RFC3339)},
		{},
		{"Category", "Budgeted", "Actual", "Remaining", "% Used", "Status"},
	}
	if len(usage) == 0 {
		rows = append(rows, []interface{}{"No budgets set for this month"})
	}
	for _, u := range usage {
		rows = append(rows, []interface{}{
			u.Category,
			u.Budgeted.StringFixed(2),
			u.ActualRounded().StringFixed(2),
			u.Remaining.StringFixed(2),
			u.PercentRounded().StringFixed(1),
			usageStatus(u),
		})
	}

	rows = append(rows, []interface{}{}, []interface{}{"Insights"})
	for _, in := range insights {
		rows = append(rows, []interface{}{string(in.Severity), in.Message})
	}
	return rows
}

func usageStatus(u analytics.BudgetUsage) string {
	switch {
	case u.Exceeded():
		return "Over budget"
	case u.NearLimit():
		return "Near limit"
	default:
		return "On track"
	}
}
