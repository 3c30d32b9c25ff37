package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActivityType labels a recorded transition for audit purposes.
type ActivityType string

const (
	ActivityStarted          ActivityType = "Started"
	ActivityArrived          ActivityType = "Arrived"
	ActivitySaveAmount       ActivityType = "SaveAmount"
	ActivityLoaded           ActivityType = "Loaded"
	ActivityArrivedDelivery  ActivityType = "ArrivedDelivery"
	ActivityUnloaded         ActivityType = "Unloaded"
	ActivityCompleted        ActivityType = "Completed"
	ActivityPartialCompleted ActivityType = "PartialCompleted"
	ActivityFailed           ActivityType = "Failed"
	ActivityAdvanced         ActivityType = "Advanced"
)

// GeoPoint is the location reported by the crew device with a transition.
// Latitude and longitude are carried as strings, matching the device wire
// format.
type GeoPoint struct {
	Latitude  string `bson:"latitude" json:"latitude"`
	Longitude string `bson:"longitude" json:"longitude"`
}

// TaskActivity is an append-only log entry produced by a successful
// transition. Activities are never updated or deleted; corrections go
// through the Failed terminal transition.
type TaskActivity struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TaskID      string             `bson:"taskId" json:"taskId"`
	TaskType    TaskFamily         `bson:"taskType" json:"taskType"`
	ActorUserID int64              `bson:"actorUserId" json:"actorUserId"`
	Type        ActivityType       `bson:"activityType" json:"activityType"`
	Screen      Screen             `bson:"screen" json:"screen"`
	RecordedAt  time.Time          `bson:"recordedAt" json:"recordedAt"`
	Location    GeoPoint           `bson:"location" json:"location"`

	// Stage-specific payload, populated per activity type.
	PickupReceipt   string   `bson:"pickupReceipt,omitempty" json:"pickupReceipt,omitempty"`
	DeliveryReceipt string   `bson:"deliveryReceipt,omitempty" json:"deliveryReceipt,omitempty"`
	Amount          float64  `bson:"amount,omitempty" json:"amount,omitempty"`
	Denominations   string   `bson:"denominations,omitempty" json:"denominations,omitempty"`
	ParcelQRs       []string `bson:"parcelQRs,omitempty" json:"parcelQRs,omitempty"`
	FailedReason    string   `bson:"failedReason,omitempty" json:"failedReason,omitempty"`
}

// NewTaskActivity creates an activity record for an accepted transition.
func NewTaskActivity(task *CrewTask, activityType ActivityType, recordedAt time.Time, location GeoPoint) *TaskActivity {
	return &TaskActivity{
		TaskID:      task.TaskID,
		TaskType:    task.Family,
		ActorUserID: task.CrewCommanderID,
		Type:        activityType,
		Screen:      task.Screen,
		RecordedAt:  recordedAt,
		Location:    location,
	}
}
