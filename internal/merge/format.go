package merge

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	DefaultLocale         = "en-IN"
	DefaultCurrencySymbol = "₹"
	DateLayout            = "2 January 2006"
)

// Formatter turns typed values into display strings for one locale.
type Formatter struct {
	printer    *message.Printer
	symbol     string
	dateLayout string
}

// NewFormatter returns a formatter for locale. An unparseable locale falls
// back to DefaultLocale.
func NewFormatter(locale, currencySymbol string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse(DefaultLocale)
	}
	if currencySymbol == "" {
		currencySymbol = DefaultCurrencySymbol
	}
	return &Formatter{
		printer:    message.NewPrinter(tag),
		symbol:     currencySymbol,
		dateLayout: DateLayout,
	}
}

var defaultFormatter = NewFormatter(DefaultLocale, DefaultCurrencySymbol)

// DefaultFormatter returns the en-IN rupee formatter.
func DefaultFormatter() *Formatter {
	return defaultFormatter
}

// Currency formats v with the currency symbol, locale grouping and no
// decimals: 10000 → ₹10,000.
func (f *Formatter) Currency(v float64) string {
	v = math.Round(v)
	sign := ""
	if v < 0 {
		sign = "-"
	}
	v = math.Abs(v)
	return sign + f.symbol + f.printer.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(0)))
}

// Number formats v with locale grouping and up to two decimals.
func (f *Formatter) Number(v float64) string {
	return f.printer.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(2)))
}

// Date formats t as "2 January 2006". The zero time formats as "".
func (f *Formatter) Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(f.dateLayout)
}

// FormatCurrency formats with the default formatter.
func FormatCurrency(v float64) string {
	return defaultFormatter.Currency(v)
}

// FormatNumber formats with the default formatter.
func FormatNumber(v float64) string {
	return defaultFormatter.Number(v)
}

// FormatDate formats with the default formatter.
func FormatDate(t time.Time) string {
	return defaultFormatter.Date(t)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate accepts RFC 3339 timestamps and plain ISO dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
