package http

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// formatMoney renders an amount as "$1,234.56" for the dashboard. Digits are
// grouped on the exact decimal string so large amounts keep every cent.
func formatMoney(d decimal.Decimal) string {
	d = d.Round(2)
	digits := d.Abs().StringFixed(2)
	intPart, frac := digits[:len(digits)-3], digits[len(digits)-3:]

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}

// formatPercent renders a percentage with one decimal.
func formatPercent(d decimal.Decimal) string {
	f, _ := d.Round(1).Float64()
	return printer.Sprintf("%.1f%%", f)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
