package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventFactory creates CloudEvents for CIT domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new CITCloudEvent with the given parameters
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *CITCloudEvent {
	event := &CITCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}

	return event
}

// CreateEventWithCorrelation creates an event with correlation tracking
func (f *EventFactory) CreateEventWithCorrelation(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
	correlationID string,
) *CITCloudEvent {
	event := f.CreateEvent(ctx, eventType, subject, data)
	event.CorrelationID = correlationID
	return event
}

// CreateTaskTransitionEvent creates an event for a task screen transition
func (f *EventFactory) CreateTaskTransitionEvent(
	ctx context.Context,
	eventType string,
	data TaskTransitionData,
) *CITCloudEvent {
	event := f.CreateEvent(ctx, eventType, "task/"+data.TaskID, data)
	event.TaskFamily = data.TaskType
	return event
}

// CreateParcelBatchEvent creates an event for a parcel scan batch
func (f *EventFactory) CreateParcelBatchEvent(
	ctx context.Context,
	eventType string,
	data ParcelBatchData,
) *CITCloudEvent {
	event := f.CreateEvent(ctx, eventType, "task/"+data.TaskID, data)
	event.TaskFamily = data.TaskType
	return event
}
