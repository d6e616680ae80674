package ordering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahavishnu/mahavishnu/internal/task"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func testEngine() *Engine {
	return NewEngine(WithNow(func() time.Time { return testNow }))
}

func mkTask(id string, p task.Priority, deadline *time.Time) *task.Task {
	t := task.New(id, "Task "+id)
	t.Priority = p
	t.Deadline = deadline
	return t
}

func days(n int) *time.Time {
	d := testNow.Add(time.Duration(n) * 24 * time.Hour)
	return &d
}

func TestDeadlineScore(t *testing.T) {
	tun := DefaultTunables()
	tests := []struct {
		name     string
		deadline time.Time
		want     float64
	}{
		{"overdue", testNow.Add(-time.Hour), 1.0},
		{"urgent window", *days(2), 0.9},
		{"approaching window", *days(5), 0.7},
		{"far future decays", *days(37), 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, deadlineScore(tt.deadline, testNow, tun), 0.01)
		})
	}
	// Past the approaching window, scores decay linearly from 0.5.
	nearer := deadlineScore(*days(10), testNow, tun)
	farther := deadlineScore(*days(20), testNow, tun)
	assert.Greater(t, nearer, farther)
	assert.LessOrEqual(t, nearer, 0.5)
}

func TestPriorityScore(t *testing.T) {
	assert.Equal(t, 1.0, priorityScore(task.PriorityCritical))
	assert.Equal(t, 0.95, priorityScore("urgent"))
	assert.Equal(t, 0.75, priorityScore(task.PriorityHigh))
	assert.Equal(t, 0.5, priorityScore(task.PriorityMedium))
	assert.Equal(t, 0.25, priorityScore(task.PriorityLow))
}

func TestDependencyScore(t *testing.T) {
	assert.Equal(t, 1.0, dependencyScore(0))
	assert.Equal(t, 0.7, dependencyScore(1))
	assert.Equal(t, 0.4, dependencyScore(2))
	assert.InDelta(t, 0.1, dependencyScore(3), 0.001)
	assert.Equal(t, 0.0, dependencyScore(10))
}

func TestDurationScore(t *testing.T) {
	assert.Equal(t, 1.0, durationScore(90*time.Minute))
	assert.Equal(t, 0.8, durationScore(3*time.Hour))
	assert.Equal(t, 0.6, durationScore(6*time.Hour))
	assert.Equal(t, 0.4, durationScore(12*time.Hour))
	assert.Equal(t, 0.2, durationScore(20*time.Hour))
}

func TestStrategySwapsLeader(t *testing.T) {
	// A: critical priority, distant deadline. B: medium priority, deadline
	// tomorrow. C: low priority, no deadline.
	in := Input{
		Tasks: []*task.Task{
			mkTask("A", task.PriorityCritical, days(14)),
			mkTask("B", task.PriorityMedium, days(1)),
			mkTask("C", task.PriorityLow, nil),
		},
	}

	in.Strategy = StrategyPriorityFirst
	res := testEngine().Order(in)
	require.Len(t, res.Recommendations, 3)
	assert.Equal(t, "A", res.Recommendations[0].TaskID)
	assert.Equal(t, 0, res.Recommendations[0].Position)

	in.Strategy = StrategyDeadlineFirst
	res = testEngine().Order(in)
	assert.Equal(t, "B", res.Recommendations[0].TaskID)
}

func TestScoresWithinUnitInterval(t *testing.T) {
	in := Input{
		Tasks: []*task.Task{
			mkTask("A", task.PriorityCritical, days(-1)),
			mkTask("B", task.PriorityLow, nil),
		},
		Predictions: map[string]Prediction{
			"A": {BlockerProbability: 0.9, EstimatedSeconds: 3600},
		},
		Dependencies: map[string][]string{"B": {"A"}},
		Strategy:     StrategyBalanced,
	}
	res := testEngine().Order(in)
	for _, r := range res.Recommendations {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		assert.NotEmpty(t, r.Rationale)
	}
}

func TestDependencyAwareIsTopological(t *testing.T) {
	// Diamond: a -> {b, c} -> d, with d scored highest by priority.
	in := Input{
		Tasks: []*task.Task{
			mkTask("d", task.PriorityCritical, nil),
			mkTask("b", task.PriorityLow, nil),
			mkTask("c", task.PriorityHigh, nil),
			mkTask("a", task.PriorityLow, nil),
		},
		Dependencies: map[string][]string{
			"b": {"a"},
			"c": {"a"},
			"d": {"b", "c"},
		},
		Strategy: StrategyDependencyAware,
	}
	res := testEngine().Order(in)

	pos := make(map[string]int)
	for _, r := range res.Recommendations {
		pos[r.TaskID] = r.Position
	}
	for id, deps := range in.Dependencies {
		for _, dep := range deps {
			assert.Less(t, pos[dep], pos[id], "%s must precede %s", dep, id)
		}
	}
	// Ties inside a topological level resolve by descending score: c
	// outscores b.
	assert.Less(t, pos["c"], pos["b"])
}

func TestDependencyAwareCycleResidual(t *testing.T) {
	in := Input{
		Tasks: []*task.Task{
			mkTask("a", task.PriorityMedium, nil),
			mkTask("x", task.PriorityMedium, nil),
			mkTask("y", task.PriorityMedium, nil),
		},
		Dependencies: map[string][]string{
			"x": {"y"},
			"y": {"x"},
		},
		Strategy: StrategyDependencyAware,
	}
	res := testEngine().Order(in)
	require.Len(t, res.Recommendations, 3)
	assert.Equal(t, "a", res.Recommendations[0].TaskID)
	// Cycle members keep input order at the tail.
	assert.Equal(t, "x", res.Recommendations[1].TaskID)
	assert.Equal(t, "y", res.Recommendations[2].TaskID)
}

func TestShouldStartNow(t *testing.T) {
	in := Input{
		Tasks: []*task.Task{
			mkTask("a", task.PriorityCritical, days(1)),
			mkTask("b", task.PriorityMedium, nil),
		},
		Dependencies: map[string][]string{
			"b": {"a"},
		},
		Strategy: StrategyPriorityFirst,
	}
	res := testEngine().Order(in)

	byID := make(map[string]Recommendation)
	for _, r := range res.Recommendations {
		byID[r.TaskID] = r
	}
	assert.True(t, byID["a"].ShouldStartNow, "unblocked, top-three, critical urgency")
	assert.False(t, byID["b"].ShouldStartNow, "blocked tasks never start now")
	assert.Equal(t, []string{"a"}, byID["b"].BlockedBy)
	assert.Equal(t, 1, res.BlockedCount)
	assert.Equal(t, 1, res.ReadyCount)
}

func TestBlockersIgnoreResolvedDependencies(t *testing.T) {
	done := mkTask("a", task.PriorityMedium, nil)
	done.Status = task.StatusCompleted
	in := Input{
		Tasks: []*task.Task{done, mkTask("b", task.PriorityMedium, nil)},
		Dependencies: map[string][]string{
			"b": {"a"},
		},
		Strategy: StrategyBalanced,
	}
	res := testEngine().Order(in)
	for _, r := range res.Recommendations {
		if r.TaskID == "b" {
			assert.Empty(t, r.BlockedBy)
		}
	}
}

func TestCriticalPath(t *testing.T) {
	a := mkTask("a", task.PriorityMedium, nil)
	a.EstimatedSeconds = 3600
	b := mkTask("b", task.PriorityMedium, nil)
	b.EstimatedSeconds = 7200
	c := mkTask("c", task.PriorityMedium, nil)
	c.EstimatedSeconds = 1800
	d := mkTask("d", task.PriorityMedium, nil)
	d.EstimatedSeconds = 3600

	// a -> b -> d and a -> c -> d; the b branch is longer.
	in := Input{
		Tasks: []*task.Task{a, b, c, d},
		Dependencies: map[string][]string{
			"b": {"a"},
			"c": {"a"},
			"d": {"b", "c"},
		},
		Strategy: StrategyBalanced,
	}
	res := testEngine().Order(in)
	assert.Equal(t, []string{"a", "b", "d"}, res.CriticalPath)
	assert.Equal(t, 3600+7200+3600, res.CriticalPathSeconds)
}

func TestCompletionEstimate(t *testing.T) {
	a := mkTask("a", task.PriorityMedium, nil)
	a.EstimatedSeconds = 1000
	b := mkTask("b", task.PriorityMedium, nil)
	b.EstimatedSeconds = 2000
	done := mkTask("c", task.PriorityMedium, nil)
	done.Status = task.StatusCompleted
	done.EstimatedSeconds = 5000

	res := testEngine().Order(Input{
		Tasks:    []*task.Task{a, b, done},
		Strategy: StrategyBalanced,
	})
	// (1000 + 2000) * 0.6; completed work excluded.
	assert.Equal(t, 1800, res.EstimatedCompletionSeconds)
}

func TestUnknownStrategyFallsBackToBalanced(t *testing.T) {
	res := testEngine().Order(Input{
		Tasks:    []*task.Task{mkTask("a", task.PriorityMedium, nil)},
		Strategy: "clever",
	})
	assert.Equal(t, StrategyBalanced, res.Strategy)
}
