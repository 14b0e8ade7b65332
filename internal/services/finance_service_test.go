package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/analytics"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []*amqp.RecordChangedMessage
	err      error
	closed   bool
}

func (p *fakePublisher) PublishRecordChanged(_ context.Context, msg *amqp.RecordChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func (p *fakePublisher) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	for i, m := range p.messages {
		out[i] = string(m.Kind) + ":" + string(m.Op) + ":" + m.Month
	}
	return out
}

func newTestService(t *testing.T) (*FinanceService, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	logger := applog.New(applog.Config{Output: io.Discard})
	svc := NewFinanceService(memory.New(), pub, logger)
	svc.now = func() time.Time { return time.Date(2024, 5, 15, 12, 0, 0, 0, time.Local) }
	return svc, pub
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFinanceService_CreateTransactionPublishes(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	tx, err := svc.CreateTransaction(ctx, core.Transaction{
		Amount:      dec("-12.50"),
		Description: "  lunch ",
		Date:        time.Date(2024, 5, 3, 12, 0, 0, 0, time.Local),
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if tx.ID == "" || tx.Category != core.DefaultCategory || tx.Type != core.Expense || tx.Description != "lunch" {
		t.Fatalf("unexpected stored transaction: %+v", tx)
	}

	got := pub.ops()
	if len(got) != 1 || got[0] != "transaction:created:2024-05" {
		t.Fatalf("published = %v", got)
	}
}

func TestFinanceService_PublishFailureIsNotFatal(t *testing.T) {
	svc, pub := newTestService(t)
	pub.err = errors.New("circuit breaker is open")

	_, err := svc.CreateTransaction(context.Background(), core.Transaction{
		Amount:      dec("10"),
		Description: "refund",
		Date:        time.Now(),
	})
	if err != nil {
		t.Fatalf("publish failure must not fail the write: %v", err)
	}
}

func TestFinanceService_ValidationErrorsPassThrough(t *testing.T) {
	svc, pub := newTestService(t)
	_, err := svc.CreateTransaction(context.Background(), core.Transaction{Amount: dec("1"), Date: time.Now()})
	if !errors.Is(err, core.ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
	if len(pub.ops()) != 0 {
		t.Fatal("nothing should be published for a rejected write")
	}
}

func TestFinanceService_UpdateAcrossMonthsPublishesBoth(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	tx, err := svc.CreateTransaction(ctx, core.Transaction{
		Amount:      dec("-5"),
		Description: "coffee",
		Date:        time.Date(2024, 4, 30, 12, 0, 0, 0, time.Local),
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	newDate := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	if _, err := svc.UpdateTransaction(ctx, tx.ID, core.TransactionPatch{Date: &newDate}); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}

	got := strings.Join(pub.ops(), ",")
	want := "transaction:created:2024-04,transaction:updated:2024-05,transaction:updated:2024-04"
	if got != want {
		t.Fatalf("published = %s, want %s", got, want)
	}
}

func TestFinanceService_DeleteMissing(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.DeleteTransaction(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteBudget(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFinanceService_UpsertBudget(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.UpsertBudget(ctx, "Food", "2024-05", dec("200"))
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	second, created, err := svc.UpsertBudget(ctx, "Food", "2024-05", dec("250"))
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}
	if first.ID != second.ID || !second.Amount.Equal(dec("250")) {
		t.Fatalf("upsert should replace the amount in place: %+v", second)
	}

	budgets, err := svc.ListBudgets(ctx, "2024-05")
	if err != nil || len(budgets) != 1 {
		t.Fatalf("ListBudgets = %v, %v", budgets, err)
	}
	if got := strings.Join(pub.ops(), ","); got != "budget:created:2024-05,budget:updated:2024-05" {
		t.Fatalf("published = %s", got)
	}

	if _, _, err := svc.UpsertBudget(ctx, "Food", "2024-13", dec("1")); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	if _, err := svc.ListBudgets(ctx, "May"); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth for filter, got %v", err)
	}
}

func TestFinanceService_SeedSampleData(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.SeedSampleData(ctx)
	if err != nil {
		t.Fatalf("SeedSampleData: %v", err)
	}
	if res.Transactions != 5 || res.BudgetsCreated != 4 || res.Month != "2024-05" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = svc.SeedSampleData(ctx)
	if err != nil {
		t.Fatalf("second SeedSampleData: %v", err)
	}
	if res.BudgetsCreated != 0 || res.BudgetsUpdated != 4 {
		t.Fatalf("budgets should be upserted on reseed: %+v", res)
	}

	budgets, _ := svc.ListBudgets(ctx, "")
	txs, _ := svc.ListTransactions(ctx)
	if len(budgets) != 4 || len(txs) != 10 {
		t.Fatalf("budgets=%d transactions=%d", len(budgets), len(txs))
	}
}

func TestFinanceService_MonthReport(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SeedSampleData(ctx); err != nil {
		t.Fatalf("SeedSampleData: %v", err)
	}

	report, err := svc.MonthReport(ctx, "")
	if err != nil {
		t.Fatalf("MonthReport: %v", err)
	}
	if report.Month != "2024-05" || report.Label != "May 2024" {
		t.Fatalf("month = %s label = %s", report.Month, report.Label)
	}
	if !report.Totals.Income.Equal(dec("1000")) || !report.Totals.Expenses.Equal(dec("255")) || !report.Totals.Balance.Equal(dec("745")) {
		t.Fatalf("totals = %+v", report.Totals)
	}
	if len(report.Usage) != 4 {
		t.Fatalf("usage rows = %d", len(report.Usage))
	}

	want := "Your top spending categories for May 2024 are: Entertainment ($100.00), Utilities ($75.00), Food ($50.00)."
	if len(report.Insights) == 0 || report.Insights[0].Message != want {
		t.Fatalf("first insight = %+v", report.Insights)
	}
	last := report.Insights[len(report.Insights)-1]
	if last.Message != "You tend to spend the most on Wednesday." || last.Severity != analytics.SeverityInfo {
		t.Fatalf("last insight = %+v", last)
	}

	if _, err := svc.MonthReport(ctx, "2024/05"); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestFinanceService_AnalyticsViews(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	insights, err := svc.Insights(ctx, "2024-05")
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if len(insights) != 1 || insights[0].Message != "Add transactions to see spending insights." {
		t.Fatalf("empty store insights = %+v", insights)
	}

	if _, err := svc.SeedSampleData(ctx); err != nil {
		t.Fatalf("SeedSampleData: %v", err)
	}
	cats, err := svc.ExpensesByCategory(ctx, "2024-04")
	if err != nil || len(cats) != 0 {
		t.Fatalf("April categories = %v, %v", cats, err)
	}
	cats, err = svc.ExpensesByCategory(ctx, "")
	if err != nil || !cats.Sum().Equal(dec("255")) {
		t.Fatalf("all-time categories = %v, %v", cats, err)
	}

	usage, err := svc.BudgetUsage(ctx, "2024-05")
	if err != nil {
		t.Fatalf("BudgetUsage: %v", err)
	}
	for _, u := range usage {
		if u.Category == "Entertainment" && !u.PercentRounded().Equal(dec("66.7")) {
			t.Fatalf("Entertainment usage = %s", u.PercentRounded())
		}
	}

	months, err := svc.AvailableMonths(ctx)
	if err != nil || len(months) != 1 || months[0] != "2024-05" {
		t.Fatalf("AvailableMonths = %v, %v", months, err)
	}

	dash, err := svc.Dashboard(ctx)
	if err != nil || len(dash.Recent) != 5 {
		t.Fatalf("Dashboard recent = %d, %v", len(dash.Recent), err)
	}
}

func TestFinanceService_MonthlyOverview(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SeedSampleData(ctx); err != nil {
		t.Fatalf("SeedSampleData: %v", err)
	}

	overview, err := svc.MonthlyOverview(ctx, 3)
	if err != nil {
		t.Fatalf("MonthlyOverview: %v", err)
	}
	if len(overview) != 3 || overview[0].Month != "2024-03" || overview[2].Month != "2024-05" {
		t.Fatalf("overview = %+v", overview)
	}
	if !overview[0].Income.IsZero() || !overview[0].Expenses.IsZero() {
		t.Fatalf("March should be empty: %+v", overview[0])
	}
	if !overview[2].Income.Equal(dec("1000")) || !overview[2].Expenses.Equal(dec("255")) || overview[2].Label != "May 2024" {
		t.Fatalf("May = %+v", overview[2])
	}

	for _, n := range []int{0, -1, 25} {
		if _, err := svc.MonthlyOverview(ctx, n); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("MonthlyOverview(%d): expected ErrInvalidRange, got %v", n, err)
		}
	}
}

func TestFinanceService_DashboardSnapshot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SeedSampleData(ctx); err != nil {
		t.Fatalf("SeedSampleData: %v", err)
	}
	if _, err := svc.CreateTransaction(ctx, core.Transaction{
		Amount:      dec("-12"),
		Description: "old lunch",
		Date:        time.Date(2024, 4, 2, 12, 0, 0, 0, time.Local),
		Category:    "Food",
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	snap, err := svc.DashboardSnapshot(ctx, "")
	if err != nil {
		t.Fatalf("DashboardSnapshot: %v", err)
	}
	if snap.Report.Month != "2024-05" || !snap.Report.Totals.Expenses.Equal(dec("255")) {
		t.Fatalf("report = %+v", snap.Report)
	}
	if !snap.Overview.Totals.Expenses.Equal(dec("267")) {
		t.Fatalf("all-time expenses = %s", snap.Overview.Totals.Expenses)
	}
	if len(snap.Months) != 2 || snap.Months[0] != "2024-05" || snap.Months[1] != "2024-04" {
		t.Fatalf("months = %v", snap.Months)
	}
	if len(snap.Monthly) != analytics.OverviewMonths || snap.Monthly[len(snap.Monthly)-1].Month != "2024-05" {
		t.Fatalf("monthly = %+v", snap.Monthly)
	}
	if !snap.Monthly[len(snap.Monthly)-2].Expenses.Equal(dec("12")) {
		t.Fatalf("April expenses = %s", snap.Monthly[len(snap.Monthly)-2].Expenses)
	}
	if len(snap.Recent) != 5 {
		t.Fatalf("May transactions = %d, want 5", len(snap.Recent))
	}
	for _, tx := range snap.Recent {
		if tx.Month() != "2024-05" {
			t.Fatalf("transaction from %s listed for May", tx.Month())
		}
	}

	if _, err := svc.DashboardSnapshot(ctx, "2024-13"); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestFinanceService_Close(t *testing.T) {
	svc, pub := newTestService(t)
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !pub.closed {
		t.Fatal("publisher should be closed")
	}

	empty := &FinanceService{}
	if err := empty.Close(); err != nil {
		t.Fatalf("Close with nil components: %v", err)
	}
}
