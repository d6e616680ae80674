package ordering

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mahavishnu/mahavishnu/internal/task"
)

// defaultTaskDuration stands in for tasks with no estimate at all.
const defaultTaskDuration = time.Hour

// Prediction carries external model output for one task.
type Prediction struct {
	// BlockerProbability is the predicted chance the task gets blocked, in [0, 1].
	BlockerProbability float64 `json:"blocker_probability"`
	// EstimatedSeconds overrides the task's own duration estimate when set.
	EstimatedSeconds int `json:"estimated_seconds"`
}

// Input is one ordering request.
type Input struct {
	Tasks []*task.Task
	// Predictions maps task-id to model output. Optional.
	Predictions map[string]Prediction
	// Dependencies maps task-id to the ids it depends on. Optional; when
	// absent the dependency factor is scored as unblocked.
	Dependencies map[string][]string
	Strategy     Strategy
}

// Recommendation is one ranked entry.
type Recommendation struct {
	Position       int                `json:"position"`
	TaskID         string             `json:"task_id"`
	Score          float64            `json:"score"`
	Factors        map[string]float64 `json:"factors"`
	Rationale      string             `json:"rationale"`
	BlockedBy      []string           `json:"blocked_by,omitempty"`
	Urgency        Urgency            `json:"urgency"`
	ShouldStartNow bool               `json:"should_start_now"`
}

// Result is the full output of one ordering run.
type Result struct {
	Strategy            Strategy         `json:"strategy"`
	Recommendations     []Recommendation `json:"recommendations"`
	CriticalPath        []string         `json:"critical_path,omitempty"`
	CriticalPathSeconds int              `json:"critical_path_seconds"`
	BlockedCount        int              `json:"blocked_count"`
	ReadyCount          int              `json:"ready_count"`
	// EstimatedCompletionSeconds is the serial completion time discounted
	// by the assumed parallelism factor.
	EstimatedCompletionSeconds int `json:"estimated_completion_seconds"`
}

// Engine ranks tasks. Stateless apart from its tunables; safe for
// concurrent use.
type Engine struct {
	tunables Tunables
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTunables overrides the default scoring windows.
func WithTunables(t Tunables) EngineOption {
	return func(e *Engine) { e.tunables = t }
}

// WithNow overrides the time source. Used by tests.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an ordering engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		tunables: DefaultTunables(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Order ranks the input tasks under the requested strategy.
func (e *Engine) Order(in Input) Result {
	strategy := in.Strategy
	if !IsValidStrategy(strategy) {
		strategy = StrategyBalanced
	}
	now := e.now().UTC()

	byID := make(map[string]*task.Task, len(in.Tasks))
	for _, t := range in.Tasks {
		byID[t.ID] = t
	}

	recs := make([]Recommendation, 0, len(in.Tasks))
	for _, t := range in.Tasks {
		recs = append(recs, e.score(t, in, byID, strategy, now))
	}

	if strategy == StrategyDependencyAware {
		recs = orderTopological(recs, in)
	} else {
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].Score > recs[j].Score
		})
	}

	blocked, ready := 0, 0
	for i := range recs {
		recs[i].Position = i
		unblocked := len(recs[i].BlockedBy) == 0
		if unblocked {
			ready++
		} else {
			blocked++
		}
		recs[i].ShouldStartNow = unblocked && i < 3 && atLeastUrgent(recs[i].Urgency)
	}

	path, pathSeconds := criticalPath(in, byID)
	return Result{
		Strategy:                   strategy,
		Recommendations:            recs,
		CriticalPath:               path,
		CriticalPathSeconds:        pathSeconds,
		BlockedCount:               blocked,
		ReadyCount:                 ready,
		EstimatedCompletionSeconds: e.completionEstimate(in),
	}
}

// score computes the factor breakdown and composite score for one task.
func (e *Engine) score(t *task.Task, in Input, byID map[string]*task.Task, strategy Strategy, now time.Time) Recommendation {
	factors := make(map[string]float64, 5)

	if t.Deadline != nil {
		factors[FactorDeadline] = deadlineScore(*t.Deadline, now, e.tunables)
	}
	factors[FactorPriority] = priorityScore(t.Priority)

	blockedBy := activeBlockers(t.ID, in, byID)
	if in.Dependencies != nil {
		factors[FactorDependencies] = dependencyScore(len(blockedBy))
	}

	pred, hasPred := in.Predictions[t.ID]
	if hasPred {
		factors[FactorBlockerRisk] = blockerRiskScore(pred.BlockerProbability)
	}

	if d := e.durationOf(t, in); d > 0 {
		factors[FactorDuration] = durationScore(d)
	}

	w := weights[strategy]
	var weighted, total float64
	for name, score := range factors {
		weighted += score * w[name]
		total += w[name]
	}
	composite := 0.0
	if total > 0 {
		composite = weighted / total
	}

	urgency := e.urgency(t, composite, now)
	return Recommendation{
		TaskID:    t.ID,
		Score:     composite,
		Factors:   factors,
		Rationale: rationale(t, factors, strategy, urgency),
		BlockedBy: blockedBy,
		Urgency:   urgency,
	}
}

// durationOf resolves a task's estimate: prediction first, then the task's
// own estimate, then zero.
func (e *Engine) durationOf(t *task.Task, in Input) time.Duration {
	if pred, ok := in.Predictions[t.ID]; ok && pred.EstimatedSeconds > 0 {
		return time.Duration(pred.EstimatedSeconds) * time.Second
	}
	return t.EstimatedDuration()
}

// activeBlockers returns the dependency ids that still block the task.
// Dependencies outside the input set are assumed unresolved.
func activeBlockers(id string, in Input, byID map[string]*task.Task) []string {
	var out []string
	for _, dep := range in.Dependencies[id] {
		if t, ok := byID[dep]; ok {
			if t.Status == task.StatusCompleted || t.Status == task.StatusCancelled {
				continue
			}
		}
		out = append(out, dep)
	}
	return out
}

// urgency labels the task's time pressure.
func (e *Engine) urgency(t *task.Task, score float64, now time.Time) Urgency {
	if t.Priority == task.PriorityCritical {
		return UrgencyCritical
	}
	if t.Deadline != nil {
		days := t.Deadline.Sub(now).Hours() / 24
		if days <= 0 {
			return UrgencyCritical
		}
		if days <= float64(e.tunables.UrgentDeadlineDays) {
			return UrgencyUrgent
		}
	}
	switch {
	case score >= 0.75:
		return UrgencyUrgent
	case score >= 0.4:
		return UrgencyNormal
	default:
		return UrgencyLow
	}
}

// rationale renders a short human-readable explanation for the ranking.
func rationale(t *task.Task, factors map[string]float64, strategy Strategy, urgency Urgency) string {
	topName, topScore := "", -1.0
	for name, score := range factors {
		if score > topScore || (score == topScore && name < topName) {
			topName, topScore = name, score
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s priority", t.Priority)
	if t.Deadline != nil {
		fmt.Fprintf(&b, ", deadline %s", t.Deadline.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "; strongest factor %s (%.2f) under %s", topName, topScore, strategy)
	if atLeastUrgent(urgency) {
		fmt.Fprintf(&b, "; %s urgency", urgency)
	}
	return b.String()
}

// completionEstimate sums remaining work and discounts it by the assumed
// parallelism factor.
func (e *Engine) completionEstimate(in Input) int {
	var serial time.Duration
	for _, t := range in.Tasks {
		if t.Status == task.StatusCompleted || t.Status == task.StatusCancelled {
			continue
		}
		d := e.durationOf(t, in)
		if d <= 0 {
			d = defaultTaskDuration
		}
		serial += d
	}
	discounted := time.Duration(float64(serial) * e.tunables.ParallelismFactor)
	return int(discounted.Seconds())
}
