package domain

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors for the CrewTask aggregate
var (
	ErrFailedReasonRequired = errors.New("a failure reason is required to fail a task")
	ErrWrongFamily          = errors.New("operation not defined for this task family")
)

// TerminalStateError indicates a mutation attempt on a task whose screen is
// already a terminal marker.
type TerminalStateError struct {
	TaskID string
	Screen Screen
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("task %s is in terminal state %q", e.TaskID, e.Screen)
}

// InvalidTransitionError indicates the caller-supplied target screen does not
// match the registry-computed expected value. Covers both replayed requests
// and skipped stages.
type InvalidTransitionError struct {
	Expected  Screen
	Requested Screen
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: expected screen %q, got %q", e.Expected, e.Requested)
}

// CrewTask is the aggregate root for one unit of armored-transport crew
// work. The persisted screen always holds either a named stage of the
// task's family or a terminal marker; it is mutated exclusively through
// validated transitions and never deleted (failed instead).
type CrewTask struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TaskID          string             `bson:"taskId" json:"taskId"`
	OrderID         string             `bson:"orderId" json:"orderId"`
	Family          TaskFamily         `bson:"taskType" json:"taskType"`
	CrewCommanderID int64              `bson:"crewCommanderId" json:"crewCommanderId"`
	Screen          Screen             `bson:"screen" json:"screen"`
	StatusLabel     string             `bson:"statusLabel" json:"statusLabel"`
	LoadedParcels   []string           `bson:"loadedParcels,omitempty" json:"loadedParcels,omitempty"`
	UnloadedParcels []string           `bson:"unloadedParcels,omitempty" json:"unloadedParcels,omitempty"`
	PickupReceipt   string             `bson:"pickupReceipt,omitempty" json:"pickupReceipt,omitempty"`
	DeliveryReceipt string             `bson:"deliveryReceipt,omitempty" json:"deliveryReceipt,omitempty"`
	Amount          float64            `bson:"amount,omitempty" json:"amount,omitempty"`
	Denominations   string             `bson:"denominations,omitempty" json:"denominations,omitempty"`
	FailedReason    string             `bson:"failedReason,omitempty" json:"failedReason,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`

	// Domain events - transient, not persisted
	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewCrewTask creates a task at its initial, not-yet-started stage.
func NewCrewTask(taskID, orderID string, family TaskFamily, crewCommanderID int64) (*CrewTask, error) {
	if !family.IsValid() {
		return nil, fmt.Errorf("invalid task family %q", family)
	}

	now := time.Now().UTC()
	return &CrewTask{
		ID:              primitive.NewObjectID(),
		TaskID:          taskID,
		OrderID:         orderID,
		Family:          family,
		CrewCommanderID: crewCommanderID,
		Screen:          "",
		StatusLabel:     "Assigned",
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ExpectedNext returns the registry-computed next screen for this task.
func (t *CrewTask) ExpectedNext() (Screen, error) {
	return NextScreen(t.Family, t.Screen)
}

// transition guards the terminal states, validates the requested screen
// against the registry and advances on success. Every transition is
// re-validated from persisted state; callers never cache screens across
// requests.
func (t *CrewTask) transition(requested Screen, status string) error {
	if t.Screen.IsTerminal() {
		return &TerminalStateError{TaskID: t.TaskID, Screen: t.Screen}
	}

	expected, err := NextScreen(t.Family, t.Screen)
	if err != nil {
		return err
	}

	if requested != expected {
		return &InvalidTransitionError{Expected: expected, Requested: requested}
	}

	t.Screen = requested
	t.StatusLabel = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Start advances the task onto its first stage.
func (t *CrewTask) Start(requested Screen) error {
	from := t.Screen
	if err := t.transition(requested, "Started"); err != nil {
		return err
	}
	t.addEvent(NewTaskTransitionedEvent(t, "cit.task.started", ActivityStarted, from))
	return nil
}

// MarkArrived records arrival at the pickup location.
func (t *CrewTask) MarkArrived(requested Screen) error {
	from := t.Screen
	if err := t.transition(requested, "Arrived"); err != nil {
		return err
	}
	t.addEvent(NewTaskTransitionedEvent(t, "cit.task.arrived", ActivityArrived, from))
	return nil
}

// RecordAmount captures the collected cash amount and denominations.
// Only BSS runs carry an amount stage.
func (t *CrewTask) RecordAmount(requested Screen, amount float64, denominations string) error {
	if t.Family != FamilyBSS {
		return ErrWrongFamily
	}

	from := t.Screen
	if err := t.transition(requested, "SaveAmount"); err != nil {
		return err
	}
	t.Amount = amount
	t.Denominations = denominations
	t.addEvent(NewTaskTransitionedEvent(t, "cit.task.amount-recorded", ActivitySaveAmount, from))
	return nil
}

// LoadParcels records a validated batch of parcels as loaded onto the
// vehicle, together with the pickup receipt.
func (t *CrewTask) LoadParcels(requested Screen, pickupReceipt string, parcels []string) error {
	if t.Screen.IsTerminal() {
		return &TerminalStateError{TaskID: t.TaskID, Screen: t.Screen}
	}

	if err := ValidateParcelBatch(parcels); err != nil {
		return err
	}

	from := t.Screen
	if err := t.transition(requested, "Loaded"); err != nil {
		return err
	}
	t.PickupReceipt = pickupReceipt
	t.LoadedParcels = append([]string(nil), parcels...)
	t.addEvent(NewTaskTransitionedEvent(t, "cit.task.parcels-loaded", ActivityLoaded, from))
	return nil
}

// TransferParcels validates a batch being moved off the vehicle into the
// destination machine. Every QR must already be in the loaded set; nothing
// is recorded as unloaded yet. Used by the ATM LoadedAtAtm stage.
func (t *CrewTask) TransferParcels(requested Screen, parcels []string) error {
	if t.Family != FamilyATM {
		return ErrWrongFamily
	}

	if err := ValidateParcelBatch(parcels); err != nil {
		return err
	}

	if err := ReconcileParcels(parcels, t.LoadedParcels); err != nil {
		return err
	}

	from := t.Screen
	if err := t.transition(requested, "Loaded"); err != nil {
		return err
	}
	t.addEvent(NewTaskTransitionedEvent(t, "cit.task.parcels-loaded", ActivityLoaded, from))
	return nil
}

// MarkArrivedDelivery records arrival at the delivery location.
func (t *CrewTask) MarkArrivedDelivery(requested Screen) error {
	from := t.Screen
	if err := t.transition(requested, "ArrivedDelivery"); err != nil {
		return err
	}
	t.addEvent(NewTaskTransitionedEvent(t, "cit.task.arrived-delivery", ActivityArrivedDelivery, from))
	return nil
}

// UnloadParcels records a validated batch of parcels as unloaded at the
// destination. Every QR must already be present in the loaded set.
func (t *CrewTask) UnloadParcels(requested Screen, deliveryReceipt string, parcels []string) error {
	if t.Screen.IsTerminal() {
		return &TerminalStateError{TaskID: t.TaskID, Screen: t.Screen}
	}

	if err := ValidateParcelBatch(parcels); err != nil {
		return err
	}

	if err := ReconcileParcels(parcels, t.LoadedParcels); err != nil {
		return err
	}

	from := t.Screen
	if err := t.transition(requested, "Unloaded"); err != nil {
		return err
	}
	t.DeliveryReceipt = deliveryReceipt
	t.UnloadedParcels = append([]string(nil), parcels...)
	t.addEvent(NewTaskTransitionedEvent(t, "cit.task.parcels-unloaded", ActivityUnloaded, from))
	return nil
}

// Complete finishes the run. When the loaded and unloaded parcel counts
// disagree the task is downgraded to a partial completion: the screen is
// held at the family's unloaded marker instead of advancing to the terminal
// marker, and the returned partial flag is true. Parcels, when submitted,
// are reconciled against the loaded set first.
func (t *CrewTask) Complete(requested Screen, parcels []string) (bool, error) {
	if t.Screen.IsTerminal() {
		return false, &TerminalStateError{TaskID: t.TaskID, Screen: t.Screen}
	}

	if t.Family == FamilyCIT {
		// The generic family has no parcel tracking and completes from
		// any non-terminal stage.
		from := t.Screen
		t.Screen = ScreenCompleted
		t.StatusLabel = "Completed"
		t.UpdatedAt = time.Now().UTC()
		t.addEvent(NewTaskTransitionedEvent(t, "cit.task.completed", ActivityCompleted, from))
		return false, nil
	}

	expected, err := NextScreen(t.Family, t.Screen)
	if err != nil {
		return false, err
	}
	if requested != expected {
		return false, &InvalidTransitionError{Expected: expected, Requested: requested}
	}

	if len(parcels) > 0 {
		if err := ValidateParcelBatch(parcels); err != nil {
			return false, err
		}
		if err := ReconcileParcels(parcels, t.LoadedParcels); err != nil {
			return false, err
		}
	}

	from := t.Screen
	if len(t.LoadedParcels) != len(t.UnloadedParcels) {
		marker, ok := UnloadedMarker(t.Family)
		if !ok {
			return false, fmt.Errorf("family %s has no unloaded marker", t.Family)
		}
		t.Screen = marker
		t.StatusLabel = "PartialCompleted"
		t.UpdatedAt = time.Now().UTC()
		t.addEvent(NewTaskTransitionedEvent(t, "cit.task.partial-completed", ActivityPartialCompleted, from))
		return true, nil
	}

	t.Screen = ScreenCompleted
	t.StatusLabel = "Completed"
	t.UpdatedAt = time.Now().UTC()
	t.addEvent(NewTaskTransitionedEvent(t, "cit.task.completed", ActivityCompleted, from))
	return false, nil
}

// Fail moves the task to the failed terminal state. It is reachable from
// any non-terminal screen without consulting the registry, requires a
// reason, and freezes the task permanently.
func (t *CrewTask) Fail(reason string) error {
	if t.Screen.IsTerminal() {
		return &TerminalStateError{TaskID: t.TaskID, Screen: t.Screen}
	}

	if reason == "" {
		return ErrFailedReasonRequired
	}

	from := t.Screen
	t.Screen = ScreenFailed
	t.StatusLabel = "Failed"
	t.FailedReason = reason
	t.UpdatedAt = time.Now().UTC()
	t.addEvent(NewTaskTransitionedEvent(t, "cit.task.failed", ActivityFailed, from))
	return nil
}

// Advance moves a generic CIT task onto its next numbered screen.
func (t *CrewTask) Advance(requested Screen) error {
	if t.Family != FamilyCIT {
		return ErrWrongFamily
	}

	from := t.Screen
	if err := t.transition(requested, "Advanced"); err != nil {
		return err
	}
	t.addEvent(NewTaskTransitionedEvent(t, "cit.task.advanced", ActivityAdvanced, from))
	return nil
}

// DomainEvents returns the uncommitted domain events
func (t *CrewTask) DomainEvents() []DomainEvent {
	return t.domainEvents
}

// ClearDomainEvents clears the uncommitted domain events
func (t *CrewTask) ClearDomainEvents() {
	t.domainEvents = nil
}

func (t *CrewTask) addEvent(event DomainEvent) {
	t.domainEvents = append(t.domainEvents, event)
}
