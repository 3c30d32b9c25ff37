package cloudevents

import (
	"time"
)

// EventType constants for CIT crew-task domain events
const (
	// Task lifecycle events
	TaskStarted          = "cit.task.started"
	TaskArrived          = "cit.task.arrived"
	TaskAmountRecorded   = "cit.task.amount-recorded"
	TaskParcelsLoaded    = "cit.task.parcels-loaded"
	TaskArrivedDelivery  = "cit.task.arrived-delivery"
	TaskParcelsUnloaded  = "cit.task.parcels-unloaded"
	TaskCompleted        = "cit.task.completed"
	TaskPartialCompleted = "cit.task.partial-completed"
	TaskFailed           = "cit.task.failed"
	TaskAdvanced         = "cit.task.advanced"
)

// Source constants for event sources
const (
	SourceCrewTask = "/cit/crewtask-service"
)

// CITCloudEvent represents a CloudEvents v1.0 compliant event for the CIT platform
type CITCloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	// CIT-specific extensions
	CorrelationID string `json:"citcorrelationid,omitempty"`
	TaskFamily    string `json:"cittaskfamily,omitempty"`
}

// TaskTransitionData represents the data payload for task transition events
type TaskTransitionData struct {
	TaskID         string    `json:"taskId"`
	TaskType       string    `json:"taskType"`
	Activity       string    `json:"activity"`
	FromScreen     string    `json:"fromScreen"`
	ToScreen       string    `json:"toScreen"`
	CrewUserID     int64     `json:"crewUserId"`
	OccurredAt     time.Time `json:"occurredAt"`
	FailedReason   string    `json:"failedReason,omitempty"`
	ParcelsLoaded  int       `json:"parcelsLoaded,omitempty"`
	ParcelsMissing int       `json:"parcelsMissing,omitempty"`
}

// ParcelBatchData represents the data payload for parcel scan events
type ParcelBatchData struct {
	TaskID     string   `json:"taskId"`
	TaskType   string   `json:"taskType"`
	ParcelIDs  []string `json:"parcelIds"`
	CrewUserID int64    `json:"crewUserId"`
	Stage      string   `json:"stage"` // "load" | "unload"
}
