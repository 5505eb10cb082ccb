package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Validate checks the registration invariants of a reagent and normalizes its text fields.
func (r *Reagent) Validate() error {
	var err error
	if r.Name, err = ValidateNonEmptyText("name", r.Name); err != nil {
		return err
	}
	if r.Category, err = ValidateNonEmptyText("category", r.Category); err != nil {
		return err
	}
	if r.Unit, err = ValidateNonEmptyText("unit", r.Unit); err != nil {
		return err
	}
	if err := ValidatePositiveDecimal("unit_cost", r.UnitCost); err != nil {
		return err
	}
	if err := ValidatePositiveDecimal("quantity_on_hand", r.QuantityOnHand); err != nil {
		return err
	}
	if err := ValidatePositiveDecimal("minimum_threshold", r.MinimumThreshold); err != nil {
		return err
	}
	if r.ExpirationDate != nil {
		d := CalendarDate(*r.ExpirationDate)
		r.ExpirationDate = &d
	}
	if r.StorageLocation == "" {
		r.StorageLocation = DefaultStorageLocation
	}
	return nil
}

// IsBelowThreshold reports whether stock on hand is strictly under the minimum threshold.
func (r Reagent) IsBelowThreshold() bool {
	return r.QuantityOnHand.LessThan(r.MinimumThreshold)
}

// IsExpired reports whether the expiration date falls strictly before asOf's calendar date.
func (r Reagent) IsExpired(asOf time.Time) bool {
	if r.ExpirationDate == nil {
		return false
	}
	return CalendarDate(*r.ExpirationDate).Before(CalendarDate(asOf))
}

// DaysUntilExpiration returns whole days from asOf to the expiration date, floored at zero.
// The boolean is false when the reagent does not expire.
func (r Reagent) DaysUntilExpiration(asOf time.Time) (int, bool) {
	if r.ExpirationDate == nil {
		return 0, false
	}
	days := int(CalendarDate(*r.ExpirationDate).Sub(CalendarDate(asOf)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, true
}

// StockValue is the quantity on hand priced at the unit cost.
func (r Reagent) StockValue() decimal.Decimal {
	return r.QuantityOnHand.Mul(r.UnitCost)
}

// Clone returns a deep copy so callers cannot mutate ledger state through shared slices or maps.
func (r Reagent) Clone() Reagent {
	cp := r
	if r.ExpirationDate != nil {
		t := *r.ExpirationDate
		cp.ExpirationDate = &t
	}
	cp.SafetyInfo = maps.Clone(r.SafetyInfo)
	cp.PurchaseHistory = cloneMovements(r.PurchaseHistory)
	cp.UsageHistory = cloneMovements(r.UsageHistory)
	cp.PendingOrders = make([]PendingOrder, len(r.PendingOrders))
	for i, o := range r.PendingOrders {
		if o.ReceivedAt != nil {
			t := *o.ReceivedAt
			o.ReceivedAt = &t
		}
		cp.PendingOrders[i] = o
	}
	if r.PendingOrders == nil {
		cp.PendingOrders = nil
	}
	return cp
}

func cloneMovements(in []StockMovement) []StockMovement {
	if in == nil {
		return nil
	}
	out := slices.Clone(in)
	for i := range out {
		if out[i].UnitCost != nil {
			c := *out[i].UnitCost
			out[i].UnitCost = &c
		}
	}
	return out
}

// CalendarDate truncates t to midnight UTC of its own calendar day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
