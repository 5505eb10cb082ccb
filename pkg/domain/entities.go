// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by labcore.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityReagent identifies a reagent ledger entry.
	EntityReagent EntityType = "reagent"
	// EntityRecipe identifies a recipe definition.
	EntityRecipe EntityType = "recipe"
	// EntityExperiment identifies an experiment record.
	EntityExperiment EntityType = "experiment"
)

// Severity classifies rule violations.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// DefaultStorageLocation is assigned to reagents registered without a location.
const DefaultStorageLocation = "general storage"

// MovementKind distinguishes stock increments from decrements.
type MovementKind string

// Stock movement kinds recorded in reagent histories.
const (
	MovementPurchase MovementKind = "purchase"
	MovementUsage    MovementKind = "usage"
)

// StockMovement is one entry of a reagent's purchase or usage history.
type StockMovement struct {
	Kind          MovementKind     `json:"kind"`
	At            time.Time        `json:"at"`
	Quantity      decimal.Decimal  `json:"quantity"`
	PreviousLevel decimal.Decimal  `json:"previous_level"`
	NewLevel      decimal.Decimal  `json:"new_level"`
	Reason        string           `json:"reason"`
	Reference     string           `json:"reference,omitempty"` // experiment or order ID
	Supplier      string           `json:"supplier,omitempty"`
	UnitCost      *decimal.Decimal `json:"unit_cost,omitempty"`
}

// PurchaseInfo describes a replenishment supplied by the ordering workflow.
type PurchaseInfo struct {
	Supplier  string
	Reference string
	Reason    string
	// UnitCost optionally records the price paid; the reagent's list price is not changed.
	UnitCost *decimal.Decimal
}

// OrderStatus enumerates the lifecycle of a pending reagent order.
type OrderStatus string

// Order statuses.
const (
	OrderPending  OrderStatus = "pending"
	OrderReceived OrderStatus = "received"
)

// PendingOrder tracks a restocking request placed with a supplier.
type PendingOrder struct {
	ID               string          `json:"id"`
	Quantity         decimal.Decimal `json:"quantity"`
	Supplier         string          `json:"supplier"`
	OrderedAt        time.Time       `json:"ordered_at"`
	ExpectedDelivery time.Time       `json:"expected_delivery"`
	Status           OrderStatus     `json:"status"`
	ReceivedAt       *time.Time      `json:"received_at,omitempty"`
}

// Reagent is a tracked laboratory consumable with stock, cost, and expiration.
type Reagent struct {
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	UnitCost         decimal.Decimal   `json:"unit_cost"`
	Category         string            `json:"category"`
	QuantityOnHand   decimal.Decimal   `json:"quantity_on_hand"`
	Unit             string            `json:"unit"`
	MinimumThreshold decimal.Decimal   `json:"minimum_threshold"`
	ExpirationDate   *time.Time        `json:"expiration_date"`
	StorageLocation  string            `json:"storage_location"`
	SafetyInfo       map[string]string `json:"safety_info"`
	PurchaseHistory  []StockMovement   `json:"purchase_history"`
	UsageHistory     []StockMovement   `json:"usage_history"`
	PendingOrders    []PendingOrder    `json:"pending_orders"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// RequiredReagent pairs a ledger reagent name with the quantity a recipe consumes.
type RequiredReagent struct {
	Reagent  string          `json:"reagent"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ExpectationKind selects how a measurement is compared.
type ExpectationKind string

// Expectation kinds.
const (
	ExpectRange ExpectationKind = "range"
	ExpectExact ExpectationKind = "exact"
)

// ExpectedResult is an inclusive range or an exact target for one measurement key.
type ExpectedResult struct {
	Kind  ExpectationKind `json:"kind"`
	Min   float64         `json:"min"`
	Max   float64         `json:"max"`
	Value float64         `json:"value"`
}

// Recipe is the template for an experiment.
type Recipe struct {
	Name             string                    `json:"name"`
	Objective        string                    `json:"objective"`
	RequiredReagents []RequiredReagent         `json:"required_reagents"`
	ExpectedResults  map[string]ExpectedResult `json:"expected_results"`
	Procedure        []string                  `json:"procedure"`
	CreatedAt        time.Time                 `json:"created_at"`
}

// ConsumedReagent captures what one experiment drew from the ledger and what it cost.
type ConsumedReagent struct {
	Reagent  string          `json:"reagent"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Cost     decimal.Decimal `json:"cost"`
}

// Experiment is the immutable record of one recipe execution.
type Experiment struct {
	ID                string             `json:"id"`
	RecipeName        string             `json:"recipe"`
	Timestamp         time.Time          `json:"timestamp"`
	ResponsiblePeople []string           `json:"responsible_people"`
	Measurements      map[string]float64 `json:"measurements"`
	Validations       map[string]bool    `json:"validations"`
	Deviations        map[string]float64 `json:"deviations"`
	Success           bool               `json:"success"`
	Consumed          []ConsumedReagent  `json:"consumed"`
	TotalCost         decimal.Decimal    `json:"total_cost"`
	Notes             string             `json:"notes"`
}

// Snapshot captures a point-in-time copy of the full ledger, recipe book, and history.
type Snapshot struct {
	Reagents    map[string]Reagent `json:"reagents"`
	Recipes     map[string]Recipe  `json:"recipes"`
	Experiments []Experiment       `json:"experiments"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
