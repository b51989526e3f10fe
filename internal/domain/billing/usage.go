package billing

import (
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/shopspring/decimal"
)

// UsageDefinition is a metered section of a plan phase.
type UsageDefinition struct {
	Name          string              `json:"name"`
	BillingMode   types.BillingMode   `json:"billing_mode"`
	BillingPeriod types.BillingPeriod `json:"billing_period"`
	Blocks        []TieredBlock       `json:"blocks"`
}

// TieredBlock prices units in blocks of Size. Max caps the number of blocks
// billed at this price; nil means unbounded. Blocks of the same unit type are
// consumed in order, the overflow of one feeding the next.
type TieredBlock struct {
	UnitType string           `json:"unit_type"`
	Size     decimal.Decimal  `json:"size"`
	Price    decimal.Decimal  `json:"price"`
	Max      *decimal.Decimal `json:"max,omitempty"`
}

func (u UsageDefinition) Validate() error {
	if u.Name == "" {
		return ierr.NewError("usage name is required").
			WithHint("Usage sections must be named").
			Mark(ierr.ErrValidation)
	}
	if err := u.BillingMode.Validate(); err != nil {
		return err
	}
	for _, b := range u.Blocks {
		if b.UnitType == "" || !b.Size.IsPositive() || b.Price.IsNegative() {
			return ierr.NewError("invalid tiered block").
				WithHint("Tiered blocks need a unit type, a positive size and a non negative price").
				WithReportableDetails(map[string]any{
					"usage_name": u.Name,
					"unit_type":  b.UnitType,
					"size":       b.Size,
					"price":      b.Price,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// UnitTypes returns the unit types priced by the definition in block order.
func (u UsageDefinition) UnitTypes() []string {
	var out []string
	seen := make(map[string]bool)
	for _, b := range u.Blocks {
		if !seen[b.UnitType] {
			seen[b.UnitType] = true
			out = append(out, b.UnitType)
		}
	}
	return out
}

// Price returns the amount owed for units of unitType.
func (u UsageDefinition) Price(unitType string, units decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	remaining := units
	for _, b := range u.Blocks {
		if b.UnitType != unitType || !remaining.IsPositive() {
			continue
		}
		blocks := remaining.Div(b.Size).Ceil()
		if b.Max != nil && blocks.GreaterThan(*b.Max) {
			blocks = *b.Max
		}
		total = total.Add(blocks.Mul(b.Price))
		remaining = remaining.Sub(blocks.Mul(b.Size))
	}
	return total
}

// FindUsage returns the named usage of the event.
func (e *Event) FindUsage(name string) (UsageDefinition, bool) {
	for _, u := range e.Usages {
		if u.Name == name {
			return u, true
		}
	}
	return UsageDefinition{}, false
}
