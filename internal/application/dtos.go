package application

import (
	"time"

	"github.com/cit-platform/crewtask-service/internal/domain"
)

// TransitionResult is the payload returned by a successful transition
type TransitionResult struct {
	TaskID  string    `json:"taskId"`
	Status  string    `json:"status"`
	Screen  string    `json:"screen"`
	Time    time.Time `json:"time"`
	Partial bool      `json:"partial,omitempty"`
}

// TaskResponse is the read model for a single task
type TaskResponse struct {
	TaskID          string    `json:"taskId"`
	OrderID         string    `json:"orderId"`
	TaskType        string    `json:"taskType"`
	CrewCommanderID int64     `json:"crewCommanderId"`
	Screen          string    `json:"screen"`
	StatusLabel     string    `json:"statusLabel"`
	LoadedParcels   []string  `json:"loadedParcels,omitempty"`
	UnloadedParcels []string  `json:"unloadedParcels,omitempty"`
	FailedReason    string    `json:"failedReason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ActivityResponse is the read model for one activity log entry
type ActivityResponse struct {
	TaskID          string          `json:"taskId"`
	ActorUserID     int64           `json:"actorUserId"`
	ActivityType    string          `json:"activityType"`
	Screen          string          `json:"screen"`
	RecordedAt      time.Time       `json:"recordedAt"`
	Location        domain.GeoPoint `json:"location"`
	PickupReceipt   string          `json:"pickupReceipt,omitempty"`
	DeliveryReceipt string          `json:"deliveryReceipt,omitempty"`
	Amount          float64         `json:"amount,omitempty"`
	ParcelQRs       []string        `json:"parcelQRs,omitempty"`
	FailedReason    string          `json:"failedReason,omitempty"`
}

func toTaskResponse(task *domain.CrewTask) *TaskResponse {
	return &TaskResponse{
		TaskID:          task.TaskID,
		OrderID:         task.OrderID,
		TaskType:        string(task.Family),
		CrewCommanderID: task.CrewCommanderID,
		Screen:          string(task.Screen),
		StatusLabel:     task.StatusLabel,
		LoadedParcels:   task.LoadedParcels,
		UnloadedParcels: task.UnloadedParcels,
		FailedReason:    task.FailedReason,
		CreatedAt:       task.CreatedAt,
		UpdatedAt:       task.UpdatedAt,
	}
}

func toActivityResponse(activity *domain.TaskActivity) *ActivityResponse {
	return &ActivityResponse{
		TaskID:          activity.TaskID,
		ActorUserID:     activity.ActorUserID,
		ActivityType:    string(activity.Type),
		Screen:          string(activity.Screen),
		RecordedAt:      activity.RecordedAt,
		Location:        activity.Location,
		PickupReceipt:   activity.PickupReceipt,
		DeliveryReceipt: activity.DeliveryReceipt,
		Amount:          activity.Amount,
		ParcelQRs:       activity.ParcelQRs,
		FailedReason:    activity.FailedReason,
	}
}
