package models

import "time"

// Status and Priority labels come from the versioned vocabulary (internal/lifecycle),
// so these are open string types rather than closed enums.
type Status string

type Priority string

// Labels of the built-in vocabulary.
const (
	StatusPending   Status = "PENDING"
	StatusAssigned  Status = "ASSIGNED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
	StatusReturned  Status = "RETURNED"

	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

type Order struct {
	ID         uint64
	Number     string
	CustomerID string

	Assignment *Assignment

	PickupAddress   string
	PickupPostal    string
	DeliveryAddress string
	DeliveryPostal  string

	PickupDate   time.Time
	DeliveryDate *time.Time

	// Status is a cache of the ledger fold; StatusAt is the time of the last event.
	Status   Status
	StatusAt *time.Time

	Priority Priority
	Cargo    Cargo

	Notes     string
	Documents []string

	Route Route

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Cargo struct {
	Pieces    *int
	WeightLbs *float64
	Rate      *float64
	DriverPay *float64
}

// Assignment binds a vehicle and a driver (and optionally a staff handler) to an order.
type Assignment struct {
	VehicleID  string
	DriverID   string
	HandlerID  *string
	AssignedAt time.Time
}

// Complete reports whether both vehicle and driver are set.
func (a *Assignment) Complete() bool {
	return a != nil && a.VehicleID != "" && a.DriverID != ""
}

type OrderCreateInput struct {
	CustomerID      string
	PickupAddress   string
	PickupPostal    string
	DeliveryAddress string
	DeliveryPostal  string
	PickupDate      time.Time
	Priority        string
	Cargo           Cargo
	Notes           string
	Documents       []string
}

// TransitionCommit is everything the store writes atomically for one transition.
type TransitionCommit struct {
	OrderID        uint64
	ExpectedStatus Status

	Status       Status
	StatusAt     time.Time
	DeliveryDate *time.Time

	// ActiveLabels, when set, makes the store verify in the same transaction that the
	// order's vehicle and driver serve no other order in one of these statuses.
	ActiveLabels []string

	Event *TrackingEvent
}
