package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/analytics"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/store"
)

// ErrInvalidRange is returned when a requested window is out of bounds.
var ErrInvalidRange = errors.New("invalid range")

const maxOverviewMonths = 24

// EventPublisher announces record changes to other processes.
type EventPublisher interface {
	PublishRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error
	Close() error
}

// FinanceService orchestrates record operations across the record store and
// the event bus, and feeds store snapshots to the analytics engine.
type FinanceService struct {
	store     store.RecordStore
	publisher EventPublisher
	logger    *applog.Logger
	now       func() time.Time
}

// NewFinanceService wires a store with an optional publisher (nil disables events).
func NewFinanceService(s store.RecordStore, publisher EventPublisher, logger *applog.Logger) *FinanceService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &FinanceService{
		store:     s,
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentFinance),
		now:       time.Now,
	}
}

// MonthReport bundles every analytics view for one month.
type MonthReport struct {
	Month      string                   `json:"month"`
	Label      string                   `json:"label"`
	Totals     analytics.Totals         `json:"totals"`
	Categories analytics.CategoryTotals `json:"categories"`
	Usage      []analytics.BudgetUsage  `json:"budgetUsage"`
	Insights   []analytics.Insight      `json:"insights"`
}

// DashboardSnapshot is everything the dashboard page shows, computed from
// the same store read.
type DashboardSnapshot struct {
	Report   MonthReport
	Overview analytics.Dashboard
	Months   []string
	Monthly  []analytics.MonthTotals
	// Recent lists the selected month's transactions, newest first.
	Recent []core.Transaction
}

// SeedResult counts what SeedSampleData wrote.
type SeedResult struct {
	Transactions   int    `json:"transactions"`
	BudgetsCreated int    `json:"budgetsCreated"`
	BudgetsUpdated int    `json:"budgetsUpdated"`
	Month          string `json:"month"`
}

// StoreName identifies the active record store.
func (s *FinanceService) StoreName() string {
	return s.store.Name()
}

// Ping checks the record store.
func (s *FinanceService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CurrentMonth is the month key of the service clock.
func (s *FinanceService) CurrentMonth() string {
	return core.MonthKey(s.now())
}

func (s *FinanceService) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *FinanceService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// CreateTransaction saves the transaction and announces it.
func (s *FinanceService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	saved, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Transaction created", applog.NewFields().
		WithTransaction(saved.ID, saved.Category, saved.Amount).
		WithOperation(applog.OpCreate).
		ToSlice()...)
	s.publish(ctx, amqp.KindTransaction, amqp.OpCreated, saved.ID, saved.Month())
	return saved, nil
}

func (s *FinanceService) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	before, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	updated, err := s.store.UpdateTransaction(ctx, id, patch)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.publish(ctx, amqp.KindTransaction, amqp.OpUpdated, id, updated.Month())
	if before.Month() != updated.Month() {
		// the old month lost a transaction too
		s.publish(ctx, amqp.KindTransaction, amqp.OpUpdated, id, before.Month())
	}
	return updated, nil
}

func (s *FinanceService) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.publish(ctx, amqp.KindTransaction, amqp.OpDeleted, id, tx.Month())
	return nil
}

func (s *FinanceService) ListBudgets(ctx context.Context, month string) ([]core.Budget, error) {
	if month != "" {
		if err := core.ValidateMonth(month); err != nil {
			return nil, err
		}
	}
	budgets, err := s.store.ListBudgets(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return budgets, nil
}

func (s *FinanceService) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	return s.store.GetBudget(ctx, id)
}

// UpsertBudget sets the budget for (category, month), creating it when absent.
func (s *FinanceService) UpsertBudget(ctx context.Context, category, month string, amount decimal.Decimal) (core.Budget, bool, error) {
	b, created, err := s.store.UpsertBudget(ctx, category, month, amount)
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("upsert budget: %w", err)
	}

	op := amqp.OpUpdated
	if created {
		op = amqp.OpCreated
	}
	s.logger.InfoContext(ctx, "Budget saved", applog.NewFields().
		WithBudget(b.ID, b.Category, b.Month, b.Amount).
		WithOperation(applog.OpUpsert).
		ToSlice()...)
	s.publish(ctx, amqp.KindBudget, op, b.ID, b.Month)
	return b, created, nil
}

func (s *FinanceService) UpdateBudget(ctx context.Context, id string, patch core.BudgetPatch) (core.Budget, error) {
	before, err := s.store.GetBudget(ctx, id)
	if err != nil {
		return core.Budget{}, err
	}
	b, err := s.store.UpdateBudget(ctx, id, patch)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	s.publish(ctx, amqp.KindBudget, amqp.OpUpdated, id, b.Month)
	if before.Month != b.Month {
		s.publish(ctx, amqp.KindBudget, amqp.OpUpdated, id, before.Month)
	}
	return b, nil
}

func (s *FinanceService) DeleteBudget(ctx context.Context, id string) error {
	b, err := s.store.GetBudget(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBudget(ctx, id); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	s.publish(ctx, amqp.KindBudget, amqp.OpDeleted, id, b.Month)
	return nil
}

// snapshot loads every transaction and budget concurrently. The analytics
// engine only ever sees these fresh slices.
func (s *FinanceService) snapshot(ctx context.Context) ([]core.Transaction, []core.Budget, error) {
	var (
		txs     []core.Transaction
		budgets []core.Budget
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.store.ListTransactions(gctx)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		budgets, err = s.store.ListBudgets(gctx, "")
		if err != nil {
			return fmt.Errorf("list budgets: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return txs, budgets, nil
}

// Dashboard returns totals, category breakdown and recent activity across all time.
func (s *FinanceService) Dashboard(ctx context.Context) (analytics.Dashboard, error) {
	txs, err := s.ListTransactions(ctx)
	if err != nil {
		return analytics.Dashboard{}, err
	}
	return analytics.ComputeDashboard(txs), nil
}

// ExpensesByCategory aggregates expenses, restricted to month unless it is empty.
func (s *FinanceService) ExpensesByCategory(ctx context.Context, month string) (analytics.CategoryTotals, error) {
	if month != "" {
		if err := core.ValidateMonth(month); err != nil {
			return nil, err
		}
	}
	txs, err := s.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	if month != "" {
		txs = analytics.InMonth(txs, month)
	}
	return analytics.ComputeExpensesByCategory(txs), nil
}

// BudgetUsage reports spending against each budget of month.
func (s *FinanceService) BudgetUsage(ctx context.Context, month string) ([]analytics.BudgetUsage, error) {
	month, err := s.resolveMonth(month)
	if err != nil {
		return nil, err
	}
	txs, budgets, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.ComputeBudgetUsage(budgets, txs, month), nil
}

// Insights runs the insight rules for month.
func (s *FinanceService) Insights(ctx context.Context, month string) ([]analytics.Insight, error) {
	month, err := s.resolveMonth(month)
	if err != nil {
		return nil, err
	}
	txs, budgets, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.ComputeInsights(txs, budgets, month), nil
}

// MonthReport computes every month-scoped view from a single snapshot.
func (s *FinanceService) MonthReport(ctx context.Context, month string) (MonthReport, error) {
	month, err := s.resolveMonth(month)
	if err != nil {
		return MonthReport{}, err
	}
	txs, budgets, err := s.snapshot(ctx)
	if err != nil {
		return MonthReport{}, err
	}
	report := buildMonthReport(txs, budgets, month)
	s.logger.DebugContext(ctx, "Month report computed",
		applog.FieldMonth, month,
		applog.FieldInsights, len(report.Insights))
	return report, nil
}

func buildMonthReport(txs []core.Transaction, budgets []core.Budget, month string) MonthReport {
	inMonth := analytics.InMonth(txs, month)
	return MonthReport{
		Month:      month,
		Label:      core.MonthLabel(month),
		Totals:     analytics.ComputeTotals(inMonth),
		Categories: analytics.ComputeExpensesByCategory(inMonth),
		Usage:      analytics.ComputeBudgetUsage(budgets, txs, month),
		Insights:   analytics.ComputeInsights(txs, budgets, month),
	}
}

// MonthlyOverview returns income and expenses for the last n months,
// ending with the current one.
func (s *FinanceService) MonthlyOverview(ctx context.Context, n int) ([]analytics.MonthTotals, error) {
	if n < 1 || n > maxOverviewMonths {
		return nil, fmt.Errorf("%w: months must be between 1 and %d", ErrInvalidRange, maxOverviewMonths)
	}
	txs, err := s.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.MonthlyOverview(txs, s.now(), n), nil
}

// DashboardSnapshot derives every view of the dashboard page from one read
// of the store.
func (s *FinanceService) DashboardSnapshot(ctx context.Context, month string) (DashboardSnapshot, error) {
	month, err := s.resolveMonth(month)
	if err != nil {
		return DashboardSnapshot{}, err
	}
	txs, budgets, err := s.snapshot(ctx)
	if err != nil {
		return DashboardSnapshot{}, err
	}
	return DashboardSnapshot{
		Report:   buildMonthReport(txs, budgets, month),
		Overview: analytics.ComputeDashboard(txs),
		Months:   analytics.AvailableMonths(txs, budgets),
		Monthly:  analytics.MonthlyOverview(txs, s.now(), analytics.OverviewMonths),
		Recent:   analytics.SortByDateDesc(analytics.InMonth(txs, month)),
	}, nil
}

// AvailableMonths lists months with any transaction or budget, newest first.
func (s *FinanceService) AvailableMonths(ctx context.Context) ([]string, error) {
	txs, budgets, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.AvailableMonths(txs, budgets), nil
}

type sampleTransaction struct {
	amount      int64
	description string
	category    string
}

var sampleTransactions = []sampleTransaction{
	{-50, "Grocery shopping", "Food"},
	{-30, "Gas station", "Transportation"},
	{-100, "Movie and dinner", "Entertainment"},
	{-75, "Electric bill", "Utilities"},
	{1000, "Salary", "Income"},
}

var sampleBudgets = []struct {
	category string
	amount   int64
}{
	{"Food", 200},
	{"Transportation", 100},
	{"Entertainment", 150},
	{"Utilities", 200},
}

// SeedSampleData adds a handful of transactions dated now and budgets for the
// current month. Budgets are upserted, so seeding twice keeps one per category.
func (s *FinanceService) SeedSampleData(ctx context.Context) (SeedResult, error) {
	now := s.now()
	result := SeedResult{Month: core.MonthKey(now)}

	for _, st := range sampleTransactions {
		_, err := s.CreateTransaction(ctx, core.Transaction{
			Amount:      decimal.NewFromInt(st.amount),
			Description: st.description,
			Date:        now,
			Category:    st.category,
		})
		if err != nil {
			return result, fmt.Errorf("seed transaction %q: %w", st.description, err)
		}
		result.Transactions++
	}

	for _, sb := range sampleBudgets {
		_, created, err := s.UpsertBudget(ctx, sb.category, result.Month, decimal.NewFromInt(sb.amount))
		if err != nil {
			return result, fmt.Errorf("seed budget %q: %w", sb.category, err)
		}
		if created {
			result.BudgetsCreated++
		} else {
			result.BudgetsUpdated++
		}
	}

	s.logger.InfoContext(ctx, "Sample data added",
		applog.FieldOperation, applog.OpSeed,
		applog.FieldMonth, result.Month,
		"transactions", result.Transactions,
		"budgets_created", result.BudgetsCreated)
	return result, nil
}

func (s *FinanceService) resolveMonth(month string) (string, error) {
	if month == "" {
		return s.CurrentMonth(), nil
	}
	if err := core.ValidateMonth(month); err != nil {
		return "", err
	}
	return month, nil
}

// publish is best effort: the record is already stored, so failures are
// logged and swallowed.
func (s *FinanceService) publish(ctx context.Context, kind amqp.RecordKind, op amqp.ChangeOp, id, month string) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewRecordChangedMessage(kind, op, id, month)
	if err := s.publisher.PublishRecordChanged(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish record change",
			applog.FieldError, err,
			"kind", kind,
			"op", op,
			"id", id)
	}
}

// Close closes both the store and the publisher.
func (s *FinanceService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close finance service: %v", errs)
	}
	return nil
}
