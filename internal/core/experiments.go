package core

import (
	"time"

	"labcore/pkg/domain"
)

// ExperimentFilter narrows ListExperiments. Zero fields match everything;
// From and To bound the timestamp inclusively.
type ExperimentFilter struct {
	Recipe     string
	Researcher string
	From       time.Time
	To         time.Time
}

func (f ExperimentFilter) matches(e Experiment) bool {
	if f.Recipe != "" && e.RecipeName != f.Recipe {
		return false
	}
	if f.Researcher != "" && !e.InvolvesResearcher(f.Researcher) {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// ListExperiments returns recorded experiments in execution order.
func (s *Service) ListExperiments(filter ExperimentFilter) []Experiment {
	all := s.store.ListExperiments()
	out := all[:0]
	for _, e := range all {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// GetExperiment returns the experiment with the given ID.
func (s *Service) GetExperiment(id string) (Experiment, error) {
	e, ok := s.store.GetExperiment(id)
	if !ok {
		return Experiment{}, domain.UnknownExperimentError{ID: id}
	}
	return e, nil
}
