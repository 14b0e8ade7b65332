package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

// DefaultCategory is assigned to transactions recorded without a category.
const DefaultCategory = "Uncategorized"

// MaxDescriptionLength bounds transaction descriptions.
const MaxDescriptionLength = 200

type (
	TransactionType string

	// Transaction is a single signed money movement. Negative amounts are
	// expenses, everything else is income.
	Transaction struct {
		ID          string          `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Type        TransactionType `json:"type"`
		Description string          `json:"description"`
		Date        time.Time       `json:"date"`
		Category    string          `json:"category"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	// Budget is a spending ceiling for one category in one calendar month.
	// At most one Budget exists per (Category, Month).
	Budget struct {
		ID        string          `json:"id"`
		Category  string          `json:"category"`
		Amount    decimal.Decimal `json:"amount"`
		Month     string          `json:"month"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	// TransactionPatch carries a partial update; nil fields are left untouched.
	TransactionPatch struct {
		Amount      *decimal.Decimal
		Type        *TransactionType
		Description *string
		Date        *time.Time
		Category    *string
	}

	// BudgetPatch carries a partial budget update.
	BudgetPatch struct {
		Category *string
		Amount   *decimal.Decimal
		Month    *string
	}
)

var (
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrMissingDate        = errors.New("missing date")
	ErrEmptyCategory      = errors.New("empty category")
	ErrInvalidType        = errors.New("invalid transaction type")
)

// NormalizeCategory trims the label and substitutes DefaultCategory for blanks.
// Every aggregation path reads categories through this function.
func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return DefaultCategory
	}
	return category
}

// TypeForAmount derives the transaction type from the sign convention.
func TypeForAmount(amount decimal.Decimal) TransactionType {
	if amount.IsNegative() {
		return Expense
	}
	return Income
}

func (tt TransactionType) IsValid() bool {
	return tt == Expense || tt == Income
}

// IsExpense reports whether the transaction counts as spending.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// Month returns the month key of the transaction date.
func (t Transaction) Month() string {
	return MonthKey(t.Date)
}

// Normalize trims free text, applies the category default and fills in the
// type from the amount sign when absent.
func (t Transaction) Normalize() Transaction {
	t.Description = strings.TrimSpace(t.Description)
	t.Category = NormalizeCategory(t.Category)
	if t.Type == "" {
		t.Type = TypeForAmount(t.Amount)
	}
	return t
}

func (t Transaction) Validate() error {
	desc := strings.TrimSpace(t.Description)
	if desc == "" {
		return ErrEmptyDescription
	}
	if len(desc) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	if t.Type != "" && !t.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}

// Apply returns a copy of t with the patch fields written over it.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	return t
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Amount == nil && p.Type == nil && p.Description == nil && p.Date == nil && p.Category == nil
}

func (b Budget) Normalize() Budget {
	b.Category = strings.TrimSpace(b.Category)
	b.Month = strings.TrimSpace(b.Month)
	return b
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return ValidateMonth(b.Month)
}

func (p BudgetPatch) Apply(b Budget) Budget {
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.Amount != nil {
		b.Amount = *p.Amount
	}
	if p.Month != nil {
		b.Month = *p.Month
	}
	return b
}

func (p BudgetPatch) IsEmpty() bool {
	return p.Category == nil && p.Amount == nil && p.Month == nil
}
