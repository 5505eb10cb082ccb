package core

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"labcore/pkg/domain"
)

// ExecutionRequest asks the engine to run a recipe once.
type ExecutionRequest struct {
	RecipeName        string             `json:"recipe"`
	ResponsiblePeople []string           `json:"responsible_people"`
	Measurements      map[string]float64 `json:"measurements"`
	Notes             string             `json:"notes"`
}

// ExecutionSummary is the outcome of a committed execution.
type ExecutionSummary struct {
	Success     bool            `json:"success"`
	Validations map[string]bool `json:"validations"`
	Cost        decimal.Decimal `json:"cost"`
	RecordID    string          `json:"record_id"`
	Record      Experiment      `json:"record"`
}

func (req ExecutionRequest) normalize() (ExecutionRequest, error) {
	name, err := domain.ValidateNonEmptyText("recipe", req.RecipeName)
	if err != nil {
		return ExecutionRequest{}, err
	}
	people, err := domain.ValidateNames("responsible_people", req.ResponsiblePeople)
	if err != nil {
		return ExecutionRequest{}, err
	}
	measurements := make(map[string]float64, len(req.Measurements))
	for key, value := range req.Measurements {
		k, err := domain.ValidateNonEmptyText("measurement key", key)
		if err != nil {
			return ExecutionRequest{}, err
		}
		if err := domain.ValidateFinite(fmt.Sprintf("measurements[%s]", k), value); err != nil {
			return ExecutionRequest{}, err
		}
		if _, dup := measurements[k]; dup {
			return ExecutionRequest{}, domain.ValidationError{Field: "measurements", Value: key, Reason: "duplicates another key after trimming"}
		}
		measurements[k] = value
	}
	return ExecutionRequest{RecipeName: name, ResponsiblePeople: people, Measurements: measurements, Notes: req.Notes}, nil
}

// ExecuteExperiment runs a recipe: it checks feasibility, consumes every
// required reagent, validates the measurements and appends the experiment
// record, all in one transaction. A blocked or failed execution leaves the
// ledger untouched. A committed run whose measurements miss their
// expectations is still recorded, with Success false.
func (s *Service) ExecuteExperiment(ctx context.Context, req ExecutionRequest) (ExecutionSummary, Result, error) {
	req, err := req.normalize()
	if err != nil {
		return ExecutionSummary{}, Result{}, err
	}
	var record Experiment
	res, err := s.run(ctx, opExecuteExperiment, func(tx Transaction) (string, error) {
		recipe, ok := tx.FindRecipe(req.RecipeName)
		if !ok {
			return "", domain.UnknownRecipeError{Name: req.RecipeName}
		}
		now := s.clock.Now()
		blocking, err := recipe.CheckFeasibility(tx, now)
		if err != nil {
			return "", err
		}
		if len(blocking) > 0 {
			return "", domain.InsufficientInventoryError{Recipe: recipe.Name, Blocking: blocking}
		}

		id := uuid.NewString()
		consumed := make([]domain.ConsumedReagent, 0, len(recipe.RequiredReagents))
		for _, required := range recipe.RequiredReagents {
			before, _ := tx.FindReagent(required.Reagent)
			if _, err := tx.ConsumeReagent(required.Reagent, required.Quantity, "experiment: "+recipe.Name, id); err != nil {
				return id, err
			}
			consumed = append(consumed, domain.ConsumedReagent{
				Reagent:  required.Reagent,
				Quantity: required.Quantity,
				UnitCost: before.UnitCost,
				Cost:     required.Quantity.Mul(before.UnitCost),
			})
		}

		outcome := domain.EvaluateMeasurements(recipe, req.Measurements, s.tolerance)
		record, err = tx.CreateExperiment(domain.Experiment{
			ID:                id,
			RecipeName:        recipe.Name,
			Timestamp:         now,
			ResponsiblePeople: req.ResponsiblePeople,
			Measurements:      maps.Clone(req.Measurements),
			Validations:       outcome.Validations,
			Deviations:        outcome.Deviations,
			Success:           outcome.Success,
			Consumed:          consumed,
			TotalCost:         domain.TotalConsumedCost(consumed),
			Notes:             req.Notes,
		})
		return id, err
	})
	if err != nil {
		return ExecutionSummary{}, res, err
	}
	s.observeExperiment(ctx, record)
	s.logger.Info("experiment recorded",
		"id", record.ID,
		"recipe", record.RecipeName,
		"success", record.Success,
		"cost", record.TotalCost.String())
	return ExecutionSummary{
		Success:     record.Success,
		Validations: maps.Clone(record.Validations),
		Cost:        record.TotalCost,
		RecordID:    record.ID,
		Record:      record,
	}, res, nil
}

func (s *Service) observeExperiment(ctx context.Context, record Experiment) {
	em, ok := s.metrics.(ExperimentMetrics)
	if !ok {
		return
	}
	em.ObserveExperiment(ctx, record.RecipeName, record.Success, record.TotalCost.InexactFloat64())
	for _, c := range record.Consumed {
		em.ObserveConsumption(ctx, c.Reagent, c.Quantity.InexactFloat64())
	}
}
