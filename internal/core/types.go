package core

import "labcore/pkg/domain"

type (
	Reagent            = domain.Reagent
	Recipe             = domain.Recipe
	Experiment         = domain.Experiment
	Snapshot           = domain.Snapshot
	PendingOrder       = domain.PendingOrder
	BlockingReagent    = domain.BlockingReagent
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)
