package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StatusPrecision is the number of fractional digits kept when deriving status.
const StatusPrecision = 16

// Accounting holds the process-wide crediting constants.
type Accounting struct {
	// ClickIncrement is added to money for every credited click.
	ClickIncrement decimal.Decimal
	// TotalBudget is the divisor used to derive status from money.
	TotalBudget decimal.Decimal
}

// NewAccounting parses the decimal settings. Both must be strictly positive.
func NewAccounting(clickIncrement, totalBudget string) (Accounting, error) {
	inc, err := decimal.NewFromString(clickIncrement)
	if err != nil {
		return Accounting{}, fmt.Errorf("parse click increment %q: %w", clickIncrement, err)
	}
	budget, err := decimal.NewFromString(totalBudget)
	if err != nil {
		return Accounting{}, fmt.Errorf("parse total budget %q: %w", totalBudget, err)
	}
	if !inc.IsPositive() {
		return Accounting{}, fmt.Errorf("click increment must be positive, got %s", inc)
	}
	if !budget.IsPositive() {
		return Accounting{}, fmt.Errorf("total budget must be positive, got %s", budget)
	}
	return Accounting{ClickIncrement: inc, TotalBudget: budget}, nil
}

// Status derives status from money.
func (a Accounting) Status(money decimal.Decimal) decimal.Decimal {
	return money.DivRound(a.TotalBudget, StatusPrecision)
}

// Tracked is the view of the three reserved fields returned to clients.
type Tracked struct {
	ClickCount int64
	Money      decimal.Decimal
	Status     decimal.Decimal
}
