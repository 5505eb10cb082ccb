package core

import (
	"context"
	"iter"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"labcore/pkg/domain"
)

// OrderLeadTime is the expected delivery delay of a newly placed order.
const OrderLeadTime = 7 * 24 * time.Hour

// RegisterReagent adds a new reagent to the ledger.
func (s *Service) RegisterReagent(ctx context.Context, reagent Reagent) (Reagent, Result, error) {
	var created Reagent
	res, err := s.run(ctx, opRegisterReagent, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateReagent(reagent)
		return reagent.Name, err
	})
	return created, res, err
}

// ConsumeReagent draws quantity from stock outside of an experiment.
func (s *Service) ConsumeReagent(ctx context.Context, name string, quantity decimal.Decimal, reason string) (Reagent, Result, error) {
	var updated Reagent
	res, err := s.run(ctx, opConsumeReagent, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.ConsumeReagent(name, quantity, reason, "")
		return name, err
	})
	if err == nil {
		s.observeConsumption(ctx, name, quantity)
	}
	return updated, res, err
}

// ReplenishReagent adds stock and records the purchase.
func (s *Service) ReplenishReagent(ctx context.Context, name string, quantity decimal.Decimal, purchase domain.PurchaseInfo) (Reagent, Result, error) {
	var updated Reagent
	res, err := s.run(ctx, opReplenishReagent, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.ReplenishReagent(name, quantity, purchase)
		return name, err
	})
	return updated, res, err
}

// PlaceOrder appends a pending order for the reagent. Stock is unchanged until
// the order is received.
func (s *Service) PlaceOrder(ctx context.Context, name string, quantity decimal.Decimal, supplier string) (PendingOrder, Result, error) {
	var order PendingOrder
	res, err := s.run(ctx, opPlaceOrder, func(tx Transaction) (string, error) {
		if err := domain.ValidatePositiveDecimal("quantity", quantity); err != nil {
			return name, err
		}
		sup, err := domain.ValidateNonEmptyText("supplier", supplier)
		if err != nil {
			return name, err
		}
		now := s.clock.Now()
		order = PendingOrder{
			ID:               uuid.NewString(),
			Quantity:         quantity,
			Supplier:         sup,
			OrderedAt:        now,
			ExpectedDelivery: now.Add(OrderLeadTime),
			Status:           domain.OrderPending,
		}
		_, err = tx.UpdateReagent(name, func(r *Reagent) error {
			r.PendingOrders = append(r.PendingOrders, order)
			return nil
		})
		return name, err
	})
	return order, res, err
}

// ReceiveOrder replenishes stock from a pending order and marks it received.
func (s *Service) ReceiveOrder(ctx context.Context, orderID string) (Reagent, Result, error) {
	var updated Reagent
	res, err := s.run(ctx, opReceiveOrder, func(tx Transaction) (string, error) {
		reagent, idx, ok := findPendingOrder(tx.Snapshot(), orderID)
		if !ok {
			return "", domain.UnknownOrderError{ID: orderID}
		}
		order := reagent.PendingOrders[idx]
		if _, err := tx.ReplenishReagent(reagent.Name, order.Quantity, domain.PurchaseInfo{
			Supplier:  order.Supplier,
			Reference: order.ID,
			Reason:    "order received",
		}); err != nil {
			return reagent.Name, err
		}
		received := tx.Now()
		var err error
		updated, err = tx.UpdateReagent(reagent.Name, func(r *Reagent) error {
			r.PendingOrders[idx].Status = domain.OrderReceived
			r.PendingOrders[idx].ReceivedAt = &received
			return nil
		})
		return reagent.Name, err
	})
	return updated, res, err
}

func findPendingOrder(view TransactionView, orderID string) (Reagent, int, bool) {
	for _, r := range view.ListReagents() {
		for i, o := range r.PendingOrders {
			if o.ID == orderID && o.Status == domain.OrderPending {
				return r, i, true
			}
		}
	}
	return Reagent{}, 0, false
}

// GetReagent returns the named reagent.
func (s *Service) GetReagent(name string) (Reagent, error) {
	r, ok := s.store.GetReagent(name)
	if !ok {
		return Reagent{}, domain.UnknownReagentError{Name: name}
	}
	return r, nil
}

// ListReagents returns all reagents ordered by name.
func (s *Service) ListReagents() []Reagent {
	return s.store.ListReagents()
}

// BelowThreshold yields reagents whose stock is under their minimum. The
// ledger is re-read every time the sequence is ranged over.
func (s *Service) BelowThreshold() iter.Seq[Reagent] {
	return func(yield func(Reagent) bool) {
		for _, r := range s.store.ListReagents() {
			if r.IsBelowThreshold() && !yield(r) {
				return
			}
		}
	}
}

// Expired yields reagents whose expiration date is before asOf's date.
func (s *Service) Expired(asOf time.Time) iter.Seq[Reagent] {
	return func(yield func(Reagent) bool) {
		for _, r := range s.store.ListReagents() {
			if r.IsExpired(asOf) && !yield(r) {
				return
			}
		}
	}
}

// AlertKind classifies an inventory alert.
type AlertKind string

const (
	AlertLowStock AlertKind = "low_stock"
	AlertExpired  AlertKind = "expired"
	AlertExpiring AlertKind = "expiring"
)

// Alert is one inventory condition needing attention.
type Alert struct {
	Kind     AlertKind       `json:"kind"`
	Reagent  string          `json:"reagent"`
	Quantity decimal.Decimal `json:"quantity"`
	Minimum  decimal.Decimal `json:"minimum"`
	DaysLeft *int            `json:"days_left,omitempty"`
}

// Alerts reports low stock, expired reagents and reagents expiring within the
// configured alert window, ordered by reagent name then kind.
func (s *Service) Alerts(asOf time.Time) []Alert {
	var alerts []Alert
	for _, r := range s.store.ListReagents() {
		if r.IsBelowThreshold() {
			alerts = append(alerts, Alert{Kind: AlertLowStock, Reagent: r.Name, Quantity: r.QuantityOnHand, Minimum: r.MinimumThreshold})
		}
		days, ok := r.DaysUntilExpiration(asOf)
		if !ok {
			continue
		}
		switch {
		case r.IsExpired(asOf):
			alerts = append(alerts, Alert{Kind: AlertExpired, Reagent: r.Name, Quantity: r.QuantityOnHand, Minimum: r.MinimumThreshold, DaysLeft: &days})
		case days <= s.alertDays:
			alerts = append(alerts, Alert{Kind: AlertExpiring, Reagent: r.Name, Quantity: r.QuantityOnHand, Minimum: r.MinimumThreshold, DaysLeft: &days})
		}
	}
	return alerts
}

// InventoryReport summarises the ledger.
type InventoryReport struct {
	ReagentCount int                        `json:"reagent_count"`
	TotalValue   decimal.Decimal            `json:"total_value"`
	Categories   map[string]int             `json:"categories"`
	Locations    map[string]int             `json:"locations"`
	ValueByCat   map[string]decimal.Decimal `json:"value_by_category"`
	LowStock     int                        `json:"low_stock"`
	Expired      int                        `json:"expired"`
	ExpiringSoon int                        `json:"expiring_soon"`
	PendingOrder int                        `json:"pending_orders"`
}

// InventoryReport aggregates counts and stock value as of asOf.
func (s *Service) InventoryReport(asOf time.Time) InventoryReport {
	rep := InventoryReport{
		TotalValue: decimal.Zero,
		Categories: make(map[string]int),
		Locations:  make(map[string]int),
		ValueByCat: make(map[string]decimal.Decimal),
	}
	for _, r := range s.store.ListReagents() {
		rep.ReagentCount++
		value := r.StockValue()
		rep.TotalValue = rep.TotalValue.Add(value)
		rep.Categories[r.Category]++
		rep.Locations[r.StorageLocation]++
		rep.ValueByCat[r.Category] = rep.ValueByCat[r.Category].Add(value)
		if r.IsBelowThreshold() {
			rep.LowStock++
		}
		if r.IsExpired(asOf) {
			rep.Expired++
		} else if days, ok := r.DaysUntilExpiration(asOf); ok && days <= s.alertDays {
			rep.ExpiringSoon++
		}
		for _, o := range r.PendingOrders {
			if o.Status == domain.OrderPending {
				rep.PendingOrder++
			}
		}
	}
	return rep
}

// UsageStat totals the recorded consumption of one reagent.
type UsageStat struct {
	Reagent   string          `json:"reagent"`
	Unit      string          `json:"unit"`
	TotalUsed decimal.Decimal `json:"total_used"`
	Uses      int             `json:"uses"`
}

// UsageStatistics returns reagents with recorded usage, most consumed first.
// A positive limit truncates the list.
func (s *Service) UsageStatistics(limit int) []UsageStat {
	var stats []UsageStat
	for _, r := range s.store.ListReagents() {
		if len(r.UsageHistory) == 0 {
			continue
		}
		stat := UsageStat{Reagent: r.Name, Unit: r.Unit, TotalUsed: decimal.Zero}
		for _, m := range r.UsageHistory {
			stat.TotalUsed = stat.TotalUsed.Add(m.Quantity)
			stat.Uses++
		}
		stats = append(stats, stat)
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if c := stats[i].TotalUsed.Cmp(stats[j].TotalUsed); c != 0 {
			return c > 0
		}
		return stats[i].Reagent < stats[j].Reagent
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

func (s *Service) observeConsumption(ctx context.Context, reagent string, quantity decimal.Decimal) {
	if em, ok := s.metrics.(ExperimentMetrics); ok {
		em.ObserveConsumption(ctx, reagent, quantity.InexactFloat64())
	}
}
