package dlq

// Statistics is a point-in-time snapshot of queue state.
type Statistics struct {
	QueueSize          int                   `json:"queue_size"`
	Capacity           int                   `json:"capacity"`
	UtilizationPercent float64               `json:"utilization_percent"`
	StatusBreakdown    map[Status]int        `json:"status_breakdown"`
	ByCategory         map[ErrorCategory]int `json:"by_category"`
	ByPolicy           map[RetryPolicy]int   `json:"by_policy"`
	Counters           counters              `json:"counters"`
	ProcessorRunning   bool                  `json:"processor_running"`
}

// Statistics returns a snapshot of queue size, capacity, utilization, and
// the status/category/policy distributions plus lifetime counters.
func (q *Queue) Statistics() Statistics {
	q.mu.Lock()
	stats := Statistics{
		QueueSize:       len(q.records),
		Capacity:        q.capacity,
		StatusBreakdown: make(map[Status]int),
		ByCategory:      make(map[ErrorCategory]int),
		ByPolicy:        make(map[RetryPolicy]int),
		Counters:        q.counters,
	}
	for _, rec := range q.records {
		stats.StatusBreakdown[rec.Status]++
		stats.ByCategory[rec.Category]++
		stats.ByPolicy[rec.Policy]++
	}
	q.mu.Unlock()

	if stats.Capacity > 0 {
		stats.UtilizationPercent = float64(stats.QueueSize) / float64(stats.Capacity) * 100
	}
	stats.ProcessorRunning = q.ProcessorRunning()
	return stats
}
