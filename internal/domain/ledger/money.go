package ledger

import (
	"fmt"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places stored for quantities, prices and amounts.
// Sealed content only ever carries values at this scale, so a stored record hashes
// the same after a round trip through a DECIMAL(18,4) column.
const AmountScale int32 = 4

// RoundAmount rounds a computed amount to AmountScale places, half away from zero
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// FitsScale reports whether d is representable at AmountScale without rounding
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(AmountScale))
}

func checkScale(field string, d decimal.Decimal) *shared.ValidationError {
	if FitsScale(d) {
		return nil
	}
	return shared.NewValidationError(field, d.String(), fmt.Sprintf("at most %d decimal places", AmountScale))
}
