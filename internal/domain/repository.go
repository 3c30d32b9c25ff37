package domain

import (
	"context"
	"errors"
)

// Repository sentinel errors
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrCrewMemberNotFound = errors.New("crew member not found")
)

// CrewTaskRepository defines the interface for crew task persistence
type CrewTaskRepository interface {
	// FindByTaskID retrieves a task by its TaskID
	FindByTaskID(ctx context.Context, taskID string) (*CrewTask, error)

	// FindAll retrieves tasks matching the filter
	FindAll(ctx context.Context, filter TaskFilter, pagination Pagination) ([]*CrewTask, error)

	// Count returns the total number of tasks matching the filter
	Count(ctx context.Context, filter TaskFilter) (int64, error)

	// Save persists a new task
	Save(ctx context.Context, task *CrewTask) error

	// ApplyTransition conditionally persists a validated transition: the
	// task document is updated only while its stored screen still equals
	// expectedScreen and it belongs to the task's crew commander, and the
	// activity record is appended in the same transaction. Returns false
	// without error when the conditional update matched nothing, meaning
	// a concurrent writer advanced the task first.
	ApplyTransition(ctx context.Context, task *CrewTask, expectedScreen Screen, activity *TaskActivity) (bool, error)
}

// ActivityRepository defines the interface for the append-only activity log
type ActivityRepository interface {
	// Save appends an activity record
	Save(ctx context.Context, activity *TaskActivity) error

	// FindByTaskID retrieves all activities for a task, oldest first
	FindByTaskID(ctx context.Context, taskID string) ([]*TaskActivity, error)
}

// CrewDirectory resolves crew member identity bindings
type CrewDirectory interface {
	// ResolveUserIDByBadge resolves the numeric user id bound to an
	// opaque badge UUID. Returns ErrCrewMemberNotFound for unknown badges.
	ResolveUserIDByBadge(ctx context.Context, badgeID string) (int64, error)
}

// Pagination represents pagination options
type Pagination struct {
	Page     int64
	PageSize int64
}

// DefaultPagination returns default pagination options
func DefaultPagination() Pagination {
	return Pagination{
		Page:     1,
		PageSize: 20,
	}
}

// Skip returns the number of documents to skip
func (p Pagination) Skip() int64 {
	return (p.Page - 1) * p.PageSize
}

// Limit returns the maximum number of documents to return
func (p Pagination) Limit() int64 {
	return p.PageSize
}

// TaskFilter represents filter options for querying tasks
type TaskFilter struct {
	Family          *TaskFamily
	StatusLabel     *string
	CrewCommanderID *int64
	OrderID         *string
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish publishes a domain event
	Publish(ctx context.Context, event DomainEvent) error

	// PublishAll publishes multiple domain events
	PublishAll(ctx context.Context, events []DomainEvent) error
}
