package money

import (
	"fmt"
	"math/big"
	"strings"
)

// Amounts are carried as int64 pesewas (minor units) everywhere inside the
// engine. Decimal strings exist only at API and gateway boundaries.

var hundred = big.NewRat(100, 1)

// Parse converts a decimal cedi string ("3.50") into pesewas (350).
// Rejects anything that does not land exactly on a minor unit.
func Parse(raw string) (int64, error) {
	normalized := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if normalized == "" {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}

	rat, ok := new(big.Rat).SetString(normalized)
	if !ok {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}

	minor := new(big.Rat).Mul(rat, hundred)
	if !minor.IsInt() {
		return 0, fmt.Errorf("amount %q has sub-pesewa precision", raw)
	}
	if !minor.Num().IsInt64() {
		return 0, fmt.Errorf("amount %q out of range", raw)
	}
	return minor.Num().Int64(), nil
}

// Format renders pesewas as a two-decimal cedi string.
func Format(pesewas int64) string {
	sign := ""
	if pesewas < 0 {
		sign = "-"
		pesewas = -pesewas
	}
	return fmt.Sprintf("%s%d.%02d", sign, pesewas/100, pesewas%100)
}
