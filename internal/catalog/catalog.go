// Package catalog parses reagent and recipe definitions from YAML or JSON and
// registers them with the lab service. The same request shapes back the HTTP
// API bodies.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"labcore/pkg/domain"
)

//go:embed demo.yaml
var demoYAML []byte

// ReagentSpec describes a reagent to register. Numeric fields accept JSON
// numbers, quoted numbers and YAML scalars.
type ReagentSpec struct {
	Name             string            `json:"name" yaml:"name"`
	Description      string            `json:"description" yaml:"description"`
	UnitCost         json.Number       `json:"unit_cost" yaml:"unit_cost"`
	Category         string            `json:"category" yaml:"category"`
	Quantity         json.Number       `json:"quantity" yaml:"quantity"`
	Unit             string            `json:"unit" yaml:"unit"`
	MinimumThreshold json.Number       `json:"minimum_threshold" yaml:"minimum_threshold"`
	ExpirationDate   string            `json:"expiration_date,omitempty" yaml:"expiration_date"`
	ExpiresInDays    *int              `json:"expires_in_days,omitempty" yaml:"expires_in_days"`
	StorageLocation  string            `json:"storage_location,omitempty" yaml:"storage_location"`
	SafetyInfo       map[string]string `json:"safety_info,omitempty" yaml:"safety_info"`
}

// Reagent validates the catalog entry and builds a reagent. ExpiresInDays is
// resolved against now and loses to an explicit ExpirationDate.
func (s ReagentSpec) Reagent(now time.Time) (domain.Reagent, error) {
	unitCost, err := domain.ValidatePositiveNumber("unit_cost", s.UnitCost.String())
	if err != nil {
		return domain.Reagent{}, err
	}
	quantity, err := domain.ValidatePositiveNumber("quantity", s.Quantity.String())
	if err != nil {
		return domain.Reagent{}, err
	}
	minimum, err := domain.ValidatePositiveNumber("minimum_threshold", s.MinimumThreshold.String())
	if err != nil {
		return domain.Reagent{}, err
	}
	r := domain.Reagent{
		Name:             s.Name,
		Description:      s.Description,
		UnitCost:         unitCost,
		Category:         s.Category,
		QuantityOnHand:   quantity,
		Unit:             s.Unit,
		MinimumThreshold: minimum,
		StorageLocation:  s.StorageLocation,
		SafetyInfo:       s.SafetyInfo,
	}
	switch {
	case s.ExpirationDate != "":
		d, err := domain.ValidateDateFormat("expiration_date", s.ExpirationDate)
		if err != nil {
			return domain.Reagent{}, err
		}
		r.ExpirationDate = &d
	case s.ExpiresInDays != nil:
		d := domain.CalendarDate(now).AddDate(0, 0, *s.ExpiresInDays)
		r.ExpirationDate = &d
	}
	if err := r.Validate(); err != nil {
		return domain.Reagent{}, err
	}
	return r, nil
}

// ExpectationSpec is either {min, max} or {value}.
type ExpectationSpec struct {
	Min   *float64 `json:"min,omitempty" yaml:"min"`
	Max   *float64 `json:"max,omitempty" yaml:"max"`
	Value *float64 `json:"value,omitempty" yaml:"value"`
}

// Expected converts the entry for a measurement key.
func (e ExpectationSpec) Expected(key string) (domain.ExpectedResult, error) {
	field := fmt.Sprintf("expected_results[%s]", key)
	switch {
	case e.Value != nil && e.Min == nil && e.Max == nil:
		return domain.Exact(*e.Value), nil
	case e.Value == nil && e.Min != nil && e.Max != nil:
		return domain.Range(*e.Min, *e.Max), nil
	default:
		return domain.ExpectedResult{}, domain.ValidationError{Field: field, Reason: "set either min and max or value"}
	}
}

// RequirementSpec names one reagent a recipe consumes.
type RequirementSpec struct {
	Reagent  string      `json:"reagent" yaml:"reagent"`
	Quantity json.Number `json:"quantity" yaml:"quantity"`
}

// RecipeSpec describes a recipe to register.
type RecipeSpec struct {
	Name            string                     `json:"name" yaml:"name"`
	Objective       string                     `json:"objective" yaml:"objective"`
	Reagents        []RequirementSpec          `json:"reagents" yaml:"reagents"`
	ExpectedResults map[string]ExpectationSpec `json:"expected_results" yaml:"expected_results"`
	Procedure       []string                   `json:"procedure" yaml:"procedure"`
}

// Recipe validates the entry and builds a recipe.
func (s RecipeSpec) Recipe() (domain.Recipe, error) {
	required := make([]domain.RequiredReagent, 0, len(s.Reagents))
	for i, req := range s.Reagents {
		qty, err := domain.ValidatePositiveNumber(fmt.Sprintf("reagents[%d].quantity", i), req.Quantity.String())
		if err != nil {
			return domain.Recipe{}, err
		}
		required = append(required, domain.RequiredReagent{Reagent: req.Reagent, Quantity: qty})
	}
	expected := make(map[string]domain.ExpectedResult, len(s.ExpectedResults))
	for key, spec := range s.ExpectedResults {
		e, err := spec.Expected(key)
		if err != nil {
			return domain.Recipe{}, err
		}
		expected[key] = e
	}
	return domain.NewRecipe(s.Name, s.Objective, required, expected, s.Procedure)
}

// Catalog is a batch of reagents and recipes.
type Catalog struct {
	Reagents []ReagentSpec `json:"reagents" yaml:"reagents"`
	Recipes  []RecipeSpec  `json:"recipes" yaml:"recipes"`
}

// Parse reads a YAML catalog. JSON documents parse too, YAML being a superset.
// Unknown keys are rejected.
func Parse(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return Catalog{}, nil
		}
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	return c, nil
}

// Demo returns the built-in demo catalog.
func Demo() (Catalog, error) {
	return Parse(bytes.NewReader(demoYAML))
}

// Registrar is the write surface Apply needs. *core.Service satisfies it.
type Registrar interface {
	RegisterReagent(ctx context.Context, reagent domain.Reagent) (domain.Reagent, domain.Result, error)
	CreateRecipe(ctx context.Context, recipe domain.Recipe) (domain.Recipe, domain.Result, error)
	Now() time.Time
}

// Summary lists what Apply registered and which names already existed.
type Summary struct {
	Reagents []string `json:"reagents"`
	Recipes  []string `json:"recipes"`
	Skipped  []string `json:"skipped"`
}

// Apply registers every reagent, then every recipe, each in its own
// transaction. Names already present are skipped; any other error stops the
// run and is returned with the partial summary.
func (c Catalog) Apply(ctx context.Context, reg Registrar) (Summary, error) {
	var sum Summary
	now := reg.Now()
	for _, spec := range c.Reagents {
		r, err := spec.Reagent(now)
		if err != nil {
			return sum, fmt.Errorf("reagent %q: %w", spec.Name, err)
		}
		if _, _, err := reg.RegisterReagent(ctx, r); err != nil {
			if errors.As(err, new(domain.DuplicateNameError)) {
				sum.Skipped = append(sum.Skipped, r.Name)
				continue
			}
			return sum, fmt.Errorf("reagent %q: %w", spec.Name, err)
		}
		sum.Reagents = append(sum.Reagents, r.Name)
	}
	for _, spec := range c.Recipes {
		r, err := spec.Recipe()
		if err != nil {
			return sum, fmt.Errorf("recipe %q: %w", spec.Name, err)
		}
		if _, _, err := reg.CreateRecipe(ctx, r); err != nil {
			if errors.As(err, new(domain.DuplicateNameError)) {
				sum.Skipped = append(sum.Skipped, r.Name)
				continue
			}
			return sum, fmt.Errorf("recipe %q: %w", spec.Name, err)
		}
		sum.Recipes = append(sum.Recipes, r.Name)
	}
	return sum, nil
}
