package task

import (
	"time"
)

// Title length bounds.
const (
	TitleMinLen = 3
	TitleMaxLen = 255
)

// Task is a unit of work submitted to the orchestrator.
type Task struct {
	ID         string         `json:"id" yaml:"id"`
	Title      string         `json:"title" yaml:"title"`
	Repository string         `json:"repository,omitempty" yaml:"repository,omitempty"`
	Priority   Priority       `json:"priority" yaml:"priority"`
	Status     Status         `json:"status" yaml:"status"`
	Deadline   *time.Time     `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	// EstimatedSeconds is the predicted execution duration.
	EstimatedSeconds int            `json:"estimated_seconds,omitempty" yaml:"estimated_seconds,omitempty"`
	Tags             []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" yaml:"updated_at"`
}

// New creates a pending task with the given identifier and title.
func New(id, title string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        id,
		Title:     title,
		Priority:  PriorityMedium,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EstimatedDuration returns the estimated duration, or zero when unset.
func (t *Task) EstimatedDuration() time.Duration {
	return time.Duration(t.EstimatedSeconds) * time.Second
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, tg := range t.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
