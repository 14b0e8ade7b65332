// This file implements parsing and validation of request bodies and query
// parameters for both the JSON API and the dashboard forms.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/services"
)

const maxBodyBytes = 1 << 20

var errInvalidDate = errors.New("invalid date")

// transactionRequest is the JSON body of POST and PUT /api/transactions.
// Pointer fields distinguish "absent" from "zero" for partial updates.
// Amount accepts both JSON numbers and numeric strings.
type transactionRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Type        *string          `json:"type"`
	Description *string          `json:"description"`
	Date        *string          `json:"date"`
	Category    *string          `json:"category"`
}

// budgetRequest is the JSON body of POST and PUT /api/budgets.
type budgetRequest struct {
	Category *string          `json:"category"`
	Amount   *decimal.Decimal `json:"amount"`
	Month    *string          `json:"month"`
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errMalformedBody)
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", errMalformedBody)
	}
	return nil
}

// toTransaction builds a new transaction. A missing date means now; a
// missing type is derived from the sign later by the store.
func (req transactionRequest) toTransaction(now time.Time) (core.Transaction, error) {
	if req.Amount == nil {
		return core.Transaction{}, fmt.Errorf("%w: amount is required", core.ErrInvalidAmount)
	}
	tx := core.Transaction{
		Amount:      *req.Amount,
		Description: deref(req.Description),
		Category:    deref(req.Category),
		Type:        core.TransactionType(strings.TrimSpace(deref(req.Type))),
		Date:        now,
	}
	if req.Date != nil && strings.TrimSpace(*req.Date) != "" {
		d, err := parseDate(*req.Date)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.Date = d
	}
	return tx, nil
}

func (req transactionRequest) toPatch() (core.TransactionPatch, error) {
	patch := core.TransactionPatch{
		Amount:      req.Amount,
		Description: req.Description,
		Category:    req.Category,
	}
	if req.Type != nil {
		tt := core.TransactionType(strings.TrimSpace(*req.Type))
		patch.Type = &tt
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			return core.TransactionPatch{}, err
		}
		patch.Date = &d
	}
	return patch, nil
}

// toUpsert returns the (category, month, amount) triple for an upsert.
func (req budgetRequest) toUpsert() (category, month string, amount decimal.Decimal, err error) {
	if req.Amount == nil {
		return "", "", decimal.Zero, fmt.Errorf("%w: amount is required", core.ErrInvalidAmount)
	}
	return strings.TrimSpace(deref(req.Category)), strings.TrimSpace(deref(req.Month)), *req.Amount, nil
}

func (req budgetRequest) toPatch() core.BudgetPatch {
	patch := core.BudgetPatch{Amount: req.Amount}
	if req.Category != nil {
		c := strings.TrimSpace(*req.Category)
		patch.Category = &c
	}
	if req.Month != nil {
		m := strings.TrimSpace(*req.Month)
		patch.Month = &m
	}
	return patch
}

// monthQuery returns the validated ?month= parameter, or "" when absent.
func monthQuery(query url.Values) (string, error) {
	month := strings.TrimSpace(query.Get("month"))
	if month == "" {
		return "", nil
	}
	if err := core.ValidateMonth(month); err != nil {
		return "", err
	}
	return month, nil
}

// monthsQuery reads ?months=, defaulting to the standard overview window.
func monthsQuery(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("months"))
	if v == "" {
		return analytics.OverviewMonths, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: months must be a whole number", services.ErrInvalidRange)
	}
	return n, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, core.ErrMissingDate
	}
	t, err := core.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errInvalidDate, s)
	}
	return t, nil
}

// parseTransactionForm reads the dashboard's add-transaction form. The form
// takes a positive amount and a type; expenses are stored negated.
func parseTransactionForm(form url.Values, now time.Time) (core.Transaction, error) {
	amount, err := core.ParseAmount(sanitizeInput(form.Get("amount")))
	if err != nil {
		return core.Transaction{}, err
	}
	tt := core.TransactionType(sanitizeInput(form.Get("type")))
	if tt == "" {
		tt = core.Expense
	}
	if !tt.IsValid() {
		return core.Transaction{}, core.ErrInvalidType
	}
	amount = amount.Abs()
	if tt == core.Expense {
		amount = amount.Neg()
	}

	tx := core.Transaction{
		Amount:      amount,
		Type:        tt,
		Description: sanitizeInput(form.Get("description")),
		Category:    sanitizeInput(form.Get("category")),
		Date:        now,
	}
	if v := sanitizeInput(form.Get("date")); v != "" {
		if tx.Date, err = parseDate(v); err != nil {
			return core.Transaction{}, err
		}
	}
	return tx, nil
}

// parseTransactionEditForm reads the dashboard's edit form into a patch that
// replaces every editable field. Unlike the add form, the date is required.
func parseTransactionEditForm(form url.Values) (core.TransactionPatch, error) {
	if sanitizeInput(form.Get("date")) == "" {
		return core.TransactionPatch{}, core.ErrMissingDate
	}
	tx, err := parseTransactionForm(form, time.Time{})
	if err != nil {
		return core.TransactionPatch{}, err
	}
	return core.TransactionPatch{
		Amount:      &tx.Amount,
		Type:        &tx.Type,
		Description: &tx.Description,
		Date:        &tx.Date,
		Category:    &tx.Category,
	}, nil
}

// parseBudgetForm reads the dashboard's set-budget form. The month defaults
// to fallbackMonth.
func parseBudgetForm(form url.Values, fallbackMonth string) (category, month string, amount decimal.Decimal, err error) {
	amount, err = core.ParseAmount(sanitizeInput(form.Get("amount")))
	if err != nil {
		return "", "", decimal.Zero, err
	}
	month = sanitizeInput(form.Get("month"))
	if month == "" {
		month = fallbackMonth
	}
	return sanitizeInput(form.Get("category")), month, amount, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
