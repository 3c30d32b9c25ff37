package application

import (
	"time"

	"github.com/cit-platform/crewtask-service/internal/domain"
)

// Actor carries the caller's bound identity: the numeric user-id claim and
// the badge UUID claim from the bearer token. Both must resolve to the same
// crew member before any mutation is permitted.
type Actor struct {
	ClaimUserID int64
	BadgeID     string
}

// LocationInput is the device-reported position submitted with a transition
type LocationInput struct {
	Latitude  string
	Longitude string
}

// ToGeoPoint converts the input to a domain GeoPoint
func (l LocationInput) ToGeoPoint() domain.GeoPoint {
	return domain.GeoPoint{Latitude: l.Latitude, Longitude: l.Longitude}
}

// TransitionCommand carries the fields common to every transition endpoint
type TransitionCommand struct {
	TaskID          string
	RequestedScreen string
	Time            time.Time
	Location        LocationInput
}

// SaveAmountCommand records the collected amount on a BSS run
type SaveAmountCommand struct {
	TransitionCommand
	Amount        float64
	Denominations string
}

// LoadParcelsCommand records a parcel batch loaded onto the vehicle
type LoadParcelsCommand struct {
	TransitionCommand
	PickupReceipt string
	ParcelQRs     []string
}

// TransferParcelsCommand records cassettes moved into the destination machine
type TransferParcelsCommand struct {
	TransitionCommand
	ParcelQRs []string
}

// UnloadParcelsCommand records a parcel batch unloaded at the destination
type UnloadParcelsCommand struct {
	TransitionCommand
	DeliveryReceipt string
	ParcelQRs       []string
}

// CompleteTaskCommand finishes a run; ATM completions may carry a final
// parcel batch for reconciliation
type CompleteTaskCommand struct {
	TransitionCommand
	ParcelQRs []string
}

// FailTaskCommand moves a task to the failed terminal state
type FailTaskCommand struct {
	TaskID   string
	Reason   string
	Time     time.Time
	Location LocationInput
}

// CreateTaskCommand assigns a new unit of crew work
type CreateTaskCommand struct {
	TaskID          string
	OrderID         string
	Family          string
	CrewCommanderID int64
}

// ListTasksQuery filters the paginated task list
type ListTasksQuery struct {
	Family      *string
	StatusLabel *string
	CrewID      *int64
	Page        int64
	PageSize    int64
}
