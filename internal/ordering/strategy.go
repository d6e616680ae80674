// Package ordering scores and ranks tasks for dispatch under a selectable
// strategy.
package ordering

// Strategy selects the factor weighting used to rank tasks.
type Strategy string

const (
	StrategyDeadlineFirst   Strategy = "deadline_first"
	StrategyPriorityFirst   Strategy = "priority_first"
	StrategyDependencyAware Strategy = "dependency_aware"
	StrategyBlockerAware    Strategy = "blocker_aware"
	StrategyBalanced        Strategy = "balanced"
)

// ValidStrategies returns all valid strategy values.
func ValidStrategies() []Strategy {
	return []Strategy{
		StrategyDeadlineFirst, StrategyPriorityFirst,
		StrategyDependencyAware, StrategyBlockerAware, StrategyBalanced,
	}
}

// IsValidStrategy returns true if the strategy is a valid value.
func IsValidStrategy(s Strategy) bool {
	switch s {
	case StrategyDeadlineFirst, StrategyPriorityFirst,
		StrategyDependencyAware, StrategyBlockerAware, StrategyBalanced:
		return true
	default:
		return false
	}
}

// Factor names appearing in recommendation breakdowns.
const (
	FactorDeadline     = "deadline"
	FactorPriority     = "priority"
	FactorDependencies = "dependencies"
	FactorBlockerRisk  = "blocker_risk"
	FactorDuration     = "duration"
)

// weights maps each strategy to per-factor multipliers. The chosen
// strategy amplifies one factor to 2x and damps the rest.
var weights = map[Strategy]map[string]float64{
	StrategyDeadlineFirst: {
		FactorDeadline:     2.0,
		FactorPriority:     0.5,
		FactorDependencies: 0.3,
		FactorBlockerRisk:  0.3,
		FactorDuration:     0.3,
	},
	StrategyPriorityFirst: {
		FactorDeadline:     0.5,
		FactorPriority:     2.0,
		FactorDependencies: 0.3,
		FactorBlockerRisk:  0.3,
		FactorDuration:     0.3,
	},
	StrategyDependencyAware: {
		FactorDeadline:     0.4,
		FactorPriority:     0.5,
		FactorDependencies: 2.0,
		FactorBlockerRisk:  0.4,
		FactorDuration:     0.3,
	},
	StrategyBlockerAware: {
		FactorDeadline:     0.4,
		FactorPriority:     0.5,
		FactorDependencies: 0.4,
		FactorBlockerRisk:  2.0,
		FactorDuration:     0.3,
	},
	StrategyBalanced: {
		FactorDeadline:     1.0,
		FactorPriority:     1.0,
		FactorDependencies: 1.0,
		FactorBlockerRisk:  1.0,
		FactorDuration:     1.0,
	},
}

// Urgency labels a recommendation's time pressure.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyNormal   Urgency = "normal"
	UrgencyLow      Urgency = "low"
)

// atLeastUrgent reports whether u is urgent or critical.
func atLeastUrgent(u Urgency) bool {
	return u == UrgencyCritical || u == UrgencyUrgent
}
