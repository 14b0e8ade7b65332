package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/analytics"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	sheetsmem "fintrack/internal/sheets/memory"
	"fintrack/internal/store/memory"
)

func discardLogger() *applog.Logger {
	return applog.New(applog.Config{Output: io.Discard})
}

func seededService(t *testing.T) *services.FinanceService {
	t.Helper()
	svc := services.NewFinanceService(memory.New(), nil, discardLogger())
	ctx := context.Background()
	if _, _, err := svc.UpsertBudget(ctx, "Food", "2024-05", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	if _, err := svc.CreateTransaction(ctx, core.Transaction{
		Amount:      decimal.NewFromInt(-120),
		Description: "feast",
		Date:        time.Date(2024, 5, 4, 12, 0, 0, 0, time.Local),
		Category:    "Food",
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	return svc
}

func TestHandleRecordChanged_ExportsMonth(t *testing.T) {
	var logs bytes.Buffer
	exporter := sheetsmem.New()
	w := NewReportWorker(seededService(t), exporter, applog.New(applog.Config{Output: &logs}))

	msg := amqp.NewRecordChangedMessage(amqp.KindTransaction, amqp.OpCreated, "tx-1", "2024-05")
	if err := w.HandleRecordChanged(context.Background(), msg); err != nil {
		t.Fatalf("HandleRecordChanged: %v", err)
	}

	r, ok := exporter.Report("2024-05")
	if !ok {
		t.Fatal("month report was not exported")
	}
	if len(r.Usage) != 1 || !r.Usage[0].Exceeded() {
		t.Fatalf("usage = %+v", r.Usage)
	}
	found := false
	for _, in := range r.Insights {
		if in.Message == "You've exceeded your Food budget by $20.00." && in.Severity == analytics.SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing over-budget insight: %+v", r.Insights)
	}
	if !strings.Contains(logs.String(), "Budget exceeded") {
		t.Fatalf("expected budget alert in logs: %s", logs.String())
	}
}

func TestHandleRecordChanged_UnchangedReportNotReexported(t *testing.T) {
	svc := seededService(t)
	exporter := sheetsmem.New()
	w := NewReportWorker(svc, exporter, discardLogger())
	ctx := context.Background()

	msg := amqp.NewRecordChangedMessage(amqp.KindBudget, amqp.OpUpdated, "b1", "2024-05")
	for i := 0; i < 3; i++ {
		if err := w.HandleRecordChanged(ctx, msg); err != nil {
			t.Fatalf("HandleRecordChanged: %v", err)
		}
	}
	if exporter.Exports() != 1 {
		t.Fatalf("exports = %d, want 1", exporter.Exports())
	}

	if _, err := svc.CreateTransaction(ctx, core.Transaction{
		Amount:      decimal.NewFromInt(-5),
		Description: "snack",
		Date:        time.Date(2024, 5, 6, 12, 0, 0, 0, time.Local),
		Category:    "Food",
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := w.HandleRecordChanged(ctx, msg); err != nil {
		t.Fatalf("HandleRecordChanged: %v", err)
	}
	if exporter.Exports() != 2 {
		t.Fatalf("exports = %d, want 2 after the month changed", exporter.Exports())
	}
}

func TestHandleRecordChanged_InvalidMonthDropped(t *testing.T) {
	exporter := sheetsmem.New()
	w := NewReportWorker(seededService(t), exporter, discardLogger())

	msg := amqp.NewRecordChangedMessage(amqp.KindBudget, amqp.OpDeleted, "b1", "")
	if err := w.HandleRecordChanged(context.Background(), msg); err != nil {
		t.Fatalf("invalid month should be dropped, got %v", err)
	}
	if exporter.Exports() != 0 {
		t.Fatal("nothing should be exported")
	}
}

type failingExporter struct{}

func (failingExporter) ExportMonth(context.Context, string, []analytics.BudgetUsage, []analytics.Insight) error {
	return errors.New("quota exceeded")
}

func TestHandleRecordChanged_ExportErrorRequeues(t *testing.T) {
	w := NewReportWorker(seededService(t), failingExporter{}, discardLogger())
	msg := amqp.NewRecordChangedMessage(amqp.KindTransaction, amqp.OpUpdated, "tx-1", "2024-05")
	if err := w.HandleRecordChanged(context.Background(), msg); err == nil {
		t.Fatal("export failure should be returned so the message is retried")
	}
}

func TestRunDigest_NoExporter(t *testing.T) {
	w := NewReportWorker(seededService(t), nil, discardLogger())
	if err := w.RunDigest(context.Background()); err != nil {
		t.Fatalf("RunDigest: %v", err)
	}
}

func TestRunDigest_CurrentMonth(t *testing.T) {
	svc := seededService(t)
	exporter := sheetsmem.New()
	w := NewReportWorker(svc, exporter, discardLogger())

	if err := w.RunDigest(context.Background()); err != nil {
		t.Fatalf("RunDigest: %v", err)
	}
	if _, ok := exporter.Report(svc.CurrentMonth()); !ok {
		t.Fatalf("digest should export %s, have %v", svc.CurrentMonth(), exporter.Months())
	}
}

func TestScheduler(t *testing.T) {
	var runs int32
	s, err := NewScheduler("* * * * * *", time.UTC, discardLogger(), func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if s.Next().IsZero() {
		t.Fatal("Next() should be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if atomic.LoadInt32(&runs) == 0 {
		t.Fatal("job never ran")
	}
}

func TestScheduler_InvalidSpec(t *testing.T) {
	if _, err := NewScheduler("daily", nil, nil, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}
