// Package indicators aggregates experiment history and ledger state into
// efficiency, quality, safety and productivity indicators.
package indicators

import (
	"math"
	"slices"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"labcore/pkg/domain"
)

// Source is the read-only view the aggregator works from. Every
// domain.PersistentStore satisfies it.
type Source interface {
	ListExperiments() []domain.Experiment
	ListReagents() []domain.Reagent
}

// Efficiency covers outcome and cost indicators.
type Efficiency struct {
	TotalExperiments   int                        `json:"total_experiments"`
	SuccessRate        float64                    `json:"success_rate"`
	TotalCost          decimal.Decimal            `json:"total_cost"`
	AverageCost        float64                    `json:"average_cost"`
	MedianCost         float64                    `json:"median_cost"`
	CostStdDev         float64                    `json:"cost_std_dev"`
	StockValueByCat    map[string]decimal.Decimal `json:"stock_value_by_category"`
	ConsumedCostByCat  map[string]decimal.Decimal `json:"consumed_cost_by_category"`
	TotalStockValue    decimal.Decimal            `json:"total_stock_value"`
	ConsumedStockShare float64                    `json:"consumed_stock_share"`
}

// Quality covers measurement indicators.
type Quality struct {
	AverageDeviation map[string]float64 `json:"average_abs_deviation"`
	PassRate         map[string]float64 `json:"pass_rate"`
	Compliance       float64            `json:"compliance"`
}

// Safety covers ledger health indicators.
type Safety struct {
	ReagentCount            int      `json:"reagent_count"`
	ExpiredCount            int      `json:"expired_count"`
	ExpiredRate             float64  `json:"expired_rate"`
	LowStockCount           int      `json:"low_stock_count"`
	CriticalReagents        []string `json:"critical_reagents"`
	AverageDaysToExpiration float64  `json:"average_days_to_expiration"`
}

// Productivity covers researcher throughput.
type Productivity struct {
	ExperimentsPerResearcher map[string]int     `json:"experiments_per_researcher"`
	ResearcherSuccessRate    map[string]float64 `json:"researcher_success_rate"`
	ActiveDays               int                `json:"active_days"`
	ExperimentsPerDay        float64            `json:"experiments_per_day"`
}

// RecipeStats summarises executions of one recipe.
type RecipeStats struct {
	Recipe      string  `json:"recipe"`
	Experiments int     `json:"experiments"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
	AverageCost float64 `json:"average_cost"`
}

// Report is the full indicator set at a point in time. Rates are percentages.
type Report struct {
	AsOf         time.Time     `json:"as_of"`
	Efficiency   Efficiency    `json:"efficiency"`
	Quality      Quality       `json:"quality"`
	Safety       Safety        `json:"safety"`
	Productivity Productivity  `json:"productivity"`
	Recipes      []RecipeStats `json:"recipes"`
}

// Aggregator computes reports from a Source.
type Aggregator struct {
	source Source
}

// New returns an aggregator over source.
func New(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// Report computes every indicator as of asOf. It never mutates the source.
func (a *Aggregator) Report(asOf time.Time) Report {
	experiments := a.source.ListExperiments()
	reagents := a.source.ListReagents()
	return Report{
		AsOf:         asOf,
		Efficiency:   efficiency(experiments, reagents),
		Quality:      quality(experiments),
		Safety:       safety(reagents, asOf),
		Productivity: productivity(experiments),
		Recipes:      recipeStats(experiments),
	}
}

func efficiency(experiments []domain.Experiment, reagents []domain.Reagent) Efficiency {
	out := Efficiency{
		TotalExperiments:  len(experiments),
		TotalCost:         decimal.Zero,
		TotalStockValue:   decimal.Zero,
		StockValueByCat:   make(map[string]decimal.Decimal),
		ConsumedCostByCat: make(map[string]decimal.Decimal),
	}
	category := make(map[string]string, len(reagents))
	for _, r := range reagents {
		category[r.Name] = r.Category
		value := r.StockValue()
		out.StockValueByCat[r.Category] = out.StockValueByCat[r.Category].Add(value)
		out.TotalStockValue = out.TotalStockValue.Add(value)
	}
	costs := make([]float64, 0, len(experiments))
	successes := 0
	consumed := decimal.Zero
	for _, e := range experiments {
		if e.Success {
			successes++
		}
		out.TotalCost = out.TotalCost.Add(e.TotalCost)
		costs = append(costs, e.TotalCost.InexactFloat64())
		for _, c := range e.Consumed {
			cat, ok := category[c.Reagent]
			if !ok {
				cat = "unknown"
			}
			out.ConsumedCostByCat[cat] = out.ConsumedCostByCat[cat].Add(c.Cost)
			consumed = consumed.Add(c.Cost)
		}
	}
	out.SuccessRate = rate(successes, len(experiments))
	out.AverageCost = mean(costs)
	out.MedianCost = median(costs)
	out.CostStdDev = stddev(costs)
	if total := consumed.Add(out.TotalStockValue); total.IsPositive() {
		out.ConsumedStockShare = consumed.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return out
}

func quality(experiments []domain.Experiment) Quality {
	deviations := make(map[string][]float64)
	passed := make(map[string]int)
	seen := make(map[string]int)
	successes := 0
	for _, e := range experiments {
		if e.Success {
			successes++
		}
		for key, dev := range e.Deviations {
			deviations[key] = append(deviations[key], math.Abs(dev))
		}
		for key, ok := range e.Validations {
			seen[key]++
			if ok {
				passed[key]++
			}
		}
	}
	out := Quality{
		AverageDeviation: make(map[string]float64, len(deviations)),
		PassRate:         make(map[string]float64, len(seen)),
		Compliance:       rate(successes, len(experiments)),
	}
	for key, devs := range deviations {
		out.AverageDeviation[key] = mean(devs)
	}
	for key, n := range seen {
		out.PassRate[key] = rate(passed[key], n)
	}
	return out
}

func safety(reagents []domain.Reagent, asOf time.Time) Safety {
	out := Safety{ReagentCount: len(reagents), CriticalReagents: []string{}}
	var days []float64
	for _, r := range reagents {
		expired := r.IsExpired(asOf)
		low := r.IsBelowThreshold()
		if expired {
			out.ExpiredCount++
		}
		if low {
			out.LowStockCount++
		}
		if expired || low {
			out.CriticalReagents = append(out.CriticalReagents, r.Name)
		}
		if d, ok := r.DaysUntilExpiration(asOf); ok && !expired {
			days = append(days, float64(d))
		}
	}
	slices.Sort(out.CriticalReagents)
	out.ExpiredRate = rate(out.ExpiredCount, len(reagents))
	out.AverageDaysToExpiration = mean(days)
	return out
}

func productivity(experiments []domain.Experiment) Productivity {
	out := Productivity{
		ExperimentsPerResearcher: make(map[string]int),
		ResearcherSuccessRate:    make(map[string]float64),
	}
	if len(experiments) == 0 {
		return out
	}
	successes := make(map[string]int)
	first, last := experiments[0].Timestamp, experiments[0].Timestamp
	for _, e := range experiments {
		for _, person := range e.ResponsiblePeople {
			out.ExperimentsPerResearcher[person]++
			if e.Success {
				successes[person]++
			}
		}
		if e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	for person, n := range out.ExperimentsPerResearcher {
		out.ResearcherSuccessRate[person] = rate(successes[person], n)
	}
	span := domain.CalendarDate(last).Sub(domain.CalendarDate(first))
	out.ActiveDays = int(span/(24*time.Hour)) + 1
	out.ExperimentsPerDay = float64(len(experiments)) / float64(out.ActiveDays)
	return out
}

func recipeStats(experiments []domain.Experiment) []RecipeStats {
	byRecipe := make(map[string]*RecipeStats)
	costs := make(map[string][]float64)
	for _, e := range experiments {
		s, ok := byRecipe[e.RecipeName]
		if !ok {
			s = &RecipeStats{Recipe: e.RecipeName}
			byRecipe[e.RecipeName] = s
		}
		s.Experiments++
		if e.Success {
			s.Successes++
		}
		costs[e.RecipeName] = append(costs[e.RecipeName], e.TotalCost.InexactFloat64())
	}
	out := make([]RecipeStats, 0, len(byRecipe))
	for name, s := range byRecipe {
		s.SuccessRate = rate(s.Successes, s.Experiments)
		s.AverageCost = mean(costs[name])
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b RecipeStats) int {
		if a.Experiments != b.Experiments {
			return b.Experiments - a.Experiments
		}
		if a.Recipe < b.Recipe {
			return -1
		}
		if a.Recipe > b.Recipe {
			return 1
		}
		return 0
	})
	return out
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// mean, median and stddev treat empty input as zero.

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m, _ := stats.Mean(data)
	return m
}

func median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m, _ := stats.Median(data)
	return m
}

func stddev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	s, _ := stats.StandardDeviation(data)
	return s
}
