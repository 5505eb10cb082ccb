package core

import (
	"context"

	"github.com/shopspring/decimal"

	"labcore/pkg/domain"
)

// CreateRecipe registers a recipe. Every required reagent must be in the ledger.
func (s *Service) CreateRecipe(ctx context.Context, recipe Recipe) (Recipe, Result, error) {
	var created Recipe
	res, err := s.run(ctx, opCreateRecipe, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateRecipe(recipe)
		return recipe.Name, err
	})
	return created, res, err
}

// GetRecipe returns the named recipe.
func (s *Service) GetRecipe(name string) (Recipe, error) {
	r, ok := s.store.GetRecipe(name)
	if !ok {
		return Recipe{}, domain.UnknownRecipeError{Name: name}
	}
	return r, nil
}

// ListRecipes returns all recipes ordered by name.
func (s *Service) ListRecipes() []Recipe {
	return s.store.ListRecipes()
}

// EstimateRecipeCost prices one execution of the recipe at current unit costs.
func (s *Service) EstimateRecipeCost(ctx context.Context, name string) (decimal.Decimal, error) {
	total := decimal.Zero
	err := s.store.View(ctx, func(view TransactionView) error {
		recipe, ok := view.FindRecipe(name)
		if !ok {
			return domain.UnknownRecipeError{Name: name}
		}
		var err error
		total, err = recipe.EstimateTotalCost(view)
		return err
	})
	return total, err
}

// CheckRecipeFeasibility lists the required reagents that would block the
// recipe from running now. An empty result means it can run.
func (s *Service) CheckRecipeFeasibility(ctx context.Context, name string) ([]BlockingReagent, error) {
	var blocking []BlockingReagent
	asOf := s.clock.Now()
	err := s.store.View(ctx, func(view TransactionView) error {
		recipe, ok := view.FindRecipe(name)
		if !ok {
			return domain.UnknownRecipeError{Name: name}
		}
		var err error
		blocking, err = recipe.CheckFeasibility(view, asOf)
		return err
	})
	return blocking, err
}
