package domain

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents a domain event
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// BaseDomainEvent contains common event fields
type BaseDomainEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AggregateId string    `json:"aggregateId"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseDomainEvent) EventType() string     { return e.Type }
func (e BaseDomainEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseDomainEvent) AggregateID() string   { return e.AggregateId }

// TaskTransitionedEvent is raised when a task accepts a screen transition,
// including the terminal and partial-completion outcomes.
type TaskTransitionedEvent struct {
	BaseDomainEvent
	TaskID       string       `json:"taskId"`
	TaskType     TaskFamily   `json:"taskType"`
	Activity     ActivityType `json:"activity"`
	FromScreen   Screen       `json:"fromScreen"`
	ToScreen     Screen       `json:"toScreen"`
	CrewUserID   int64        `json:"crewUserId"`
	FailedReason string       `json:"failedReason,omitempty"`
}

// NewTaskTransitionedEvent creates a transition event. The task's screen
// must already hold the post-transition value.
func NewTaskTransitionedEvent(task *CrewTask, eventType string, activity ActivityType, from Screen) *TaskTransitionedEvent {
	return &TaskTransitionedEvent{
		BaseDomainEvent: BaseDomainEvent{
			ID:          uuid.New().String(),
			Type:        eventType,
			AggregateId: task.TaskID,
			Timestamp:   time.Now().UTC(),
		},
		TaskID:       task.TaskID,
		TaskType:     task.Family,
		Activity:     activity,
		FromScreen:   from,
		ToScreen:     task.Screen,
		CrewUserID:   task.CrewCommanderID,
		FailedReason: task.FailedReason,
	}
}
