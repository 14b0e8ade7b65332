// Package worker reacts to record changes: it recomputes the affected month,
// logs budget alerts and pushes the month report to the configured exporter.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
)

// ReportSource computes month reports from the record store.
type ReportSource interface {
	MonthReport(ctx context.Context, month string) (services.MonthReport, error)
	CurrentMonth() string
}

// ReportWorker turns change events and scheduled ticks into exported reports.
type ReportWorker struct {
	source   ReportSource
	exporter sheets.ReportExporter
	logger   *applog.Logger
	// fingerprint of the last exported report, per month
	exported *cache.LRU[string]
}

const (
	exportCacheSize = 24
	exportCacheTTL  = 6 * time.Hour
)

// NewReportWorker creates a worker; a nil exporter only logs.
func NewReportWorker(source ReportSource, exporter sheets.ReportExporter, logger *applog.Logger) *ReportWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ReportWorker{
		source:   source,
		exporter: exporter,
		logger:   logger.WithComponent(applog.ComponentWorker),
		exported: cache.New[string](exportCacheSize, exportCacheTTL),
	}
}

// ExportCache exposes the fingerprint cache so the caller can sweep it.
func (w *ReportWorker) ExportCache() cache.Cleaner {
	return w.exported
}

// HandleRecordChanged refreshes the month named by the event. Events with an
// unusable month are dropped rather than retried.
func (w *ReportWorker) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing record change",
		"kind", msg.Kind,
		"op", msg.Op,
		"id", msg.ID,
		applog.FieldMonth, msg.Month)

	if err := core.ValidateMonth(msg.Month); err != nil {
		w.logger.WarnContext(ctx, "Dropping record change with invalid month",
			"id", msg.ID,
			applog.FieldMonth, msg.Month)
		return nil
	}
	return w.refresh(ctx, msg.Month, false)
}

// RunDigest refreshes the current month. It is the scheduled job and always
// rewrites the sheet, even when the report is unchanged.
func (w *ReportWorker) RunDigest(ctx context.Context) error {
	month := w.source.CurrentMonth()
	w.logger.InfoContext(ctx, "Running scheduled digest", applog.FieldMonth, month)
	return w.refresh(ctx, month, true)
}

func (w *ReportWorker) refresh(ctx context.Context, month string, force bool) error {
	report, err := w.source.MonthReport(ctx, month)
	if err != nil {
		return fmt.Errorf("compute report for %s: %w", month, err)
	}

	for _, u := range report.Usage {
		switch {
		case u.Exceeded():
			w.logger.WarnContext(ctx, "Budget exceeded",
				applog.FieldCategory, u.Category,
				applog.FieldMonth, month,
				applog.FieldAmount, u.Overage().StringFixed(2),
				applog.FieldPercentUsed, u.PercentRounded().StringFixed(1))
		case u.NearLimit():
			w.logger.InfoContext(ctx, "Budget near limit",
				applog.FieldCategory, u.Category,
				applog.FieldMonth, month,
				applog.FieldPercentUsed, u.PercentRounded().StringFixed(1))
		}
	}

	if w.exporter == nil {
		w.logger.DebugContext(ctx, "No exporter configured, skipping export", applog.FieldMonth, month)
		return nil
	}

	sum, err := fingerprint(report)
	if err != nil {
		return fmt.Errorf("fingerprint report for %s: %w", month, err)
	}
	if last, ok := w.exported.Get(month); ok && last == sum && !force {
		w.logger.DebugContext(ctx, "Report unchanged, skipping export", applog.FieldMonth, month)
		return nil
	}
	if err := w.exporter.ExportMonth(ctx, month, report.Usage, report.Insights); err != nil {
		w.exported.Delete(month)
		return fmt.Errorf("export report for %s: %w", month, err)
	}
	w.exported.Set(month, sum)
	return nil
}

func fingerprint(report services.MonthReport) (string, error) {
	b, err := json.Marshal(struct {
		Usage    any `json:"u"`
		Insights any `json:"i"`
	}{report.Usage, report.Insights})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
