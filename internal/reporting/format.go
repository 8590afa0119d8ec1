package reporting

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

// FormatPercent renders a percentage with two decimals, e.g. "12.35%".
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

// FormatNumber renders v with thousands separators and at most three
// fraction digits, e.g. "1,234,567.891".
func FormatNumber(v float64) string {
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

// FormatDuration renders d as minutes and zero-padded seconds, e.g. "2:05".
func FormatDuration(d time.Duration) string {
	secs := int(math.Floor(d.Seconds()))
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
