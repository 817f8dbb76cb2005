package aster

import (
	"strings"

	"github.com/shopspring/decimal"
)

// formatValue renders a price or quantity the way the venue expects:
// snapped to the step grid, truncated to the precision, trailing zeros
// stripped. It goes through decimals because float formatting of stepped
// values (0.1425 at step 0.001) otherwise leaks representation noise
// into the order payload.
func formatValue(value float64, precision int, step float64) string {
	d := decimal.NewFromFloat(value)
	if step > 0 {
		st := decimal.NewFromFloat(step)
		d = d.Div(st).Round(0).Mul(st)
	}
	if precision >= 0 {
		d = d.Truncate(int32(precision))
	}
	s := d.StringFixed(int32(precision))
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
