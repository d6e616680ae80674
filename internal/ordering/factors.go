package ordering

import (
	"time"

	"github.com/mahavishnu/mahavishnu/internal/task"
)

// Tunables holds the configurable windows for factor scoring.
type Tunables struct {
	// UrgentDeadlineDays is the window below which a deadline scores 0.9.
	UrgentDeadlineDays int
	// ApproachingDeadlineDays is the window below which a deadline scores 0.7.
	ApproachingDeadlineDays int
	// ParallelismFactor discounts the serial completion estimate.
	ParallelismFactor float64
}

// DefaultTunables returns the default scoring windows.
func DefaultTunables() Tunables {
	return Tunables{
		UrgentDeadlineDays:      3,
		ApproachingDeadlineDays: 7,
		ParallelismFactor:       0.6,
	}
}

// decayHorizonDays is how far past the approaching window the deadline
// factor takes to decay linearly from 0.5 to 0.
const decayHorizonDays = 30.0

// deadlineScore maps time-to-deadline to [0, 1]. Overdue tasks score 1.0.
func deadlineScore(deadline time.Time, now time.Time, tun Tunables) float64 {
	days := deadline.Sub(now).Hours() / 24
	switch {
	case days <= 0:
		return 1.0
	case days <= float64(tun.UrgentDeadlineDays):
		return 0.9
	case days <= float64(tun.ApproachingDeadlineDays):
		return 0.7
	default:
		score := 0.5 * (1 - (days-float64(tun.ApproachingDeadlineDays))/decayHorizonDays)
		if score < 0 {
			return 0
		}
		return score
	}
}

// priorityScore maps a priority label to [0, 1]. The "urgent" label is
// accepted from external submitters even though the task model's canonical
// set omits it.
func priorityScore(p task.Priority) float64 {
	switch p {
	case task.PriorityCritical:
		return 1.0
	case "urgent":
		return 0.95
	case task.PriorityHigh:
		return 0.75
	case task.PriorityMedium:
		return 0.5
	case task.PriorityLow:
		return 0.25
	default:
		return 0.5
	}
}

// dependencyScore is the inverse of the incoming-blocker count.
func dependencyScore(blockers int) float64 {
	switch blockers {
	case 0:
		return 1.0
	case 1:
		return 0.7
	case 2:
		return 0.4
	default:
		score := 0.4 - 0.3*float64(blockers-2)
		if score < 0 {
			return 0
		}
		return score
	}
}

// blockerRiskScore is one minus the predicted blocker probability.
func blockerRiskScore(probability float64) float64 {
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	return 1 - probability
}

// durationScore prefers shorter tasks across five piecewise buckets.
func durationScore(d time.Duration) float64 {
	switch {
	case d <= 2*time.Hour:
		return 1.0
	case d <= 4*time.Hour:
		return 0.8
	case d <= 8*time.Hour:
		return 0.6
	case d <= 16*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}
