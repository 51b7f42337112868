package payments

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var ones = []string{"", "One", "Two", "Three", "Four", "Five", "Six", "Seven",
	"Eight", "Nine", "Ten", "Eleven", "Twelve", "Thirteen", "Fourteen",
	"Fifteen", "Sixteen", "Seventeen", "Eighteen", "Nineteen"}

var tens = []string{"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty",
	"Seventy", "Eighty", "Ninety"}

// AmountInWords renders a rupee amount in the Indian numbering system, e.g.
// 123456 becomes "One Lakh Twenty Three Thousand Four Hundred Fifty Six
// Rupees Only". Paise are dropped; receipts spell whole rupees.
func AmountInWords(amount decimal.Decimal) string {
	n := amount.IntPart()
	if n == 0 {
		return "Zero Rupees Only"
	}
	if n < 0 {
		return "Minus " + spell(-n) + " Rupees Only"
	}
	return spell(n) + " Rupees Only"
}

// spell peels off crore, lakh, thousand and hundred groups in that order,
// then the 1..99 remainder.
func spell(n int64) string {
	var b strings.Builder
	for _, group := range []struct {
		value int64
		name  string
	}{
		{10_000_000, "Crore"},
		{100_000, "Lakh"},
		{1_000, "Thousand"},
		{100, "Hundred"},
	} {
		if n >= group.value {
			b.WriteString(spell(n / group.value))
			b.WriteString(" ")
			b.WriteString(group.name)
			b.WriteString(" ")
			n %= group.value
		}
	}
	if n > 0 {
		if n < 20 {
			b.WriteString(ones[n])
		} else {
			b.WriteString(tens[n/10])
			if n%10 > 0 {
				b.WriteString(" ")
				b.WriteString(ones[n%10])
			}
		}
	}
	return strings.TrimSpace(b.String())
}

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders an amount with Indian digit grouping, e.g. ₹1,23,456.00.
func FormatINR(amount decimal.Decimal) string {
	f, _ := amount.Float64()
	return inrPrinter.Sprintf("₹%v", number.Decimal(f,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
