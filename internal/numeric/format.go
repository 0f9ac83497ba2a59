// Package numeric renders decimal values as canonical JSON number text.
package numeric

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Format renders d in plain positional notation with trailing fractional
// zeros removed and at least one fractional digit: 0 is "0.0", 4.50 is
// "4.5" and 1e-7 is "0.0000001".
func Format(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return s + ".0"
	}
	return s
}

// FormatFloat formats the shortest decimal representation of f.
// f must be finite.
func FormatFloat(f float64) string {
	return Format(decimal.NewFromFloat(f))
}
