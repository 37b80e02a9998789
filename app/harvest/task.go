package harvest

import (
	"fmt"
	"time"
)

type TaskType string

const (
	TaskTypeSkip            TaskType = "skip"
	TaskTypeResolveTrailer  TaskType = "resolve_trailer"
	TaskTypeExpireTrailer   TaskType = "expire_trailer"
	TaskTypeHarvestComments TaskType = "harvest_comments"
)

// Task is one visit of a catalog item. Its type reflects the last step the
// visit reached, so a resolved trailer that is then harvested in the same
// visit ends up as harvest_comments.
type Task struct {
	ID        string
	Type      TaskType
	Title     string
	StartedAt *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(runID string, seq int, title string) Task {
	prefix := runID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}

	return Task{
		ID:    fmt.Sprintf("%s-%d", prefix, seq),
		Title: title,
	}
}
