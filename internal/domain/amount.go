package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// groupedAmount is a number whose integer part uses commas only as
// thousands separators.
var groupedAmount = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)

// ParseAmount parses a quantity or price written in plain decimal
// notation. Surrounding whitespace and thousands separators ("1,250.5")
// are accepted; any other comma, such as a decimal comma, is an error.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	if strings.Contains(s, ",") {
		if !groupedAmount.MatchString(s) {
			return decimal.Zero, fmt.Errorf("invalid amount %q: comma is only allowed as a thousands separator", s)
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}
