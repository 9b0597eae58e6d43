package validation

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

// ParseAmount coerces a printed amount to a decimal. Currency symbols, codes and spacing are
// stripped. When both ',' and '.' occur the last one is the decimal separator; a lone ',' or '.'
// followed by exactly three digits groups thousands unless the integer part is zero. A leading
// separator starts the fraction. ok is false for unknown or non-numeric input, in which case the
// amount is zero.
func ParseAmount(raw string) (d decimal.Decimal, ok bool) {
	if entity.IsUnknown(strings.TrimSpace(raw)) {
		return decimal.Zero, false
	}

	var b strings.Builder
	negative := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			negative = true
		}
	}
	s := strings.TrimRight(b.String(), ",.")
	if strings.Trim(s, ",.") == "" {
		return decimal.Zero, false
	}
	if s[0] == ',' || s[0] == '.' {
		s = "0" + s
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
		s = keepLastDot(s)
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || groupsThousands(s, lastComma) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || groupsThousands(s, lastDot) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// groupsThousands reports whether the separator at i is followed by exactly three digits
// and preceded by a non-zero integer part.
func groupsThousands(s string, i int) bool {
	return len(s)-i-1 == 3 && strings.TrimLeft(s[:i], "0") != ""
}

// keepLastDot drops every '.' but the last one.
func keepLastDot(s string) string {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return s
	}
	return strings.ReplaceAll(s[:i], ".", "") + s[i:]
}
