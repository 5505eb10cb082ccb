package core

import "labcore/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewNonNegativeStockRule())
	engine.Register(NewExperimentIntegrityRule())
	engine.Register(NewBelowThresholdRule())
	return engine
}
