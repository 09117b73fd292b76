package requisition

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount with two decimals and thousands separators,
// e.g. 1234.5 becomes "1,234.50".
func FormatMoney(d decimal.Decimal) string {
	rounded := d.Round(2)
	whole := rounded.Truncate(0)
	frac := rounded.Sub(whole).Abs().StringFixed(2)

	s := moneyPrinter.Sprintf("%d", whole.Abs().IntPart())
	if rounded.IsNegative() {
		s = "-" + s
	}
	// frac is "0.xx"
	return s + strings.TrimPrefix(frac, "0")
}

// ParseQuantity parses integer or decimal text. The result is at least 1.
func ParseQuantity(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, invalid("cantidad", "required")
	}

	q, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, invalid("cantidad", "not a number")
	}
	if q.LessThan(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, invalid("cantidad", "must be at least 1")
	}
	return q, nil
}
