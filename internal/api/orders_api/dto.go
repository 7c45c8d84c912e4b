package orders_api

import (
	"time"

	"github.com/BearBump/FreightDesk/internal/models"
)

type cargoDTO struct {
	Pieces    *int     `json:"pieces,omitempty"`
	WeightLbs *float64 `json:"weightLbs,omitempty"`
	Rate      *float64 `json:"rate,omitempty"`
	DriverPay *float64 `json:"driverPay,omitempty"`
}

type assignmentDTO struct {
	VehicleID  string    `json:"vehicleId"`
	DriverID   string    `json:"driverId"`
	HandlerID  *string   `json:"handlerId,omitempty"`
	AssignedAt time.Time `json:"assignedAt"`
}

type routeDTO struct {
	Status          string     `json:"status"`
	DistanceMiles   *float64   `json:"distanceMiles,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`
	CheckedAt       *time.Time `json:"checkedAt,omitempty"`
	LastError       *string    `json:"lastError,omitempty"`
}

type orderDTO struct {
	ID              uint64         `json:"id"`
	Number          string         `json:"number"`
	CustomerID      string         `json:"customerId"`
	Assignment      *assignmentDTO `json:"assignment,omitempty"`
	PickupAddress   string         `json:"pickupAddress,omitempty"`
	PickupPostal    string         `json:"pickupPostal"`
	DeliveryAddress string         `json:"deliveryAddress,omitempty"`
	DeliveryPostal  string         `json:"deliveryPostal"`
	PickupDate      time.Time      `json:"pickupDate"`
	DeliveryDate    *time.Time     `json:"deliveryDate,omitempty"`
	Status          string         `json:"status"`
	StatusAt        *time.Time     `json:"statusAt,omitempty"`
	Priority        string         `json:"priority"`
	Cargo           cargoDTO       `json:"cargo"`
	Notes           string         `json:"notes,omitempty"`
	Documents       []string       `json:"documents"`
	Route           routeDTO       `json:"route"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

type eventDTO struct {
	ID         uint64             `json:"id"`
	OrderID    uint64             `json:"orderId"`
	Status     string             `json:"status"`
	StatusRaw  string             `json:"statusRaw"`
	EventTime  time.Time          `json:"eventTime"`
	Location   *string            `json:"location,omitempty"`
	Coordinate *models.Coordinate `json:"coordinate,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
	RecordedBy *string            `json:"recordedBy,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type createOrderRequest struct {
	CustomerID      string    `json:"customerId"`
	PickupAddress   string    `json:"pickupAddress"`
	PickupPostal    string    `json:"pickupPostal"`
	DeliveryAddress string    `json:"deliveryAddress"`
	DeliveryPostal  string    `json:"deliveryPostal"`
	PickupDate      time.Time `json:"pickupDate"`
	Priority        string    `json:"priority"`
	Cargo           cargoDTO  `json:"cargo"`
	Notes           string    `json:"notes"`
	Documents       []string  `json:"documents"`
}

type assignRequest struct {
	VehicleID string  `json:"vehicleId"`
	DriverID  string  `json:"driverId"`
	HandlerID *string `json:"handlerId"`
}

type statusRequest struct {
	Status     string  `json:"status"`
	Location   *string `json:"location"`
	PostalCode *string `json:"postalCode"`
	Notes      *string `json:"notes"`
}

type statusResponse struct {
	Order orderDTO `json:"order"`
	Event eventDTO `json:"event"`
}

type priorityRequest struct {
	Priority string `json:"priority"`
}

type fleetRequest struct {
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

type fleetDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type distanceResponse struct {
	From            string  `json:"from"`
	To              string  `json:"to"`
	Mode            string  `json:"mode"`
	DistanceMiles   float64 `json:"distanceMiles"`
	DurationMinutes *int    `json:"durationMinutes,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toOrderDTO(o *models.Order) orderDTO {
	out := orderDTO{
		ID:              o.ID,
		Number:          o.Number,
		CustomerID:      o.CustomerID,
		PickupAddress:   o.PickupAddress,
		PickupPostal:    o.PickupPostal,
		DeliveryAddress: o.DeliveryAddress,
		DeliveryPostal:  o.DeliveryPostal,
		PickupDate:      o.PickupDate,
		DeliveryDate:    o.DeliveryDate,
		Status:          string(o.Status),
		StatusAt:        o.StatusAt,
		Priority:        string(o.Priority),
		Cargo:           cargoDTO(o.Cargo),
		Notes:           o.Notes,
		Documents:       o.Documents,
		Route: routeDTO{
			Status:          string(o.Route.Status),
			DistanceMiles:   o.Route.DistanceMiles,
			DurationMinutes: o.Route.DurationMinutes,
			CheckedAt:       o.Route.CheckedAt,
			LastError:       o.Route.LastError,
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if out.Documents == nil {
		out.Documents = []string{}
	}
	if a := o.Assignment; a != nil {
		out.Assignment = &assignmentDTO{
			VehicleID:  a.VehicleID,
			DriverID:   a.DriverID,
			HandlerID:  a.HandlerID,
			AssignedAt: a.AssignedAt,
		}
	}
	return out
}

func toEventDTO(e *models.TrackingEvent) eventDTO {
	return eventDTO{
		ID:         e.ID,
		OrderID:    e.OrderID,
		Status:     string(e.Status),
		StatusRaw:  e.StatusRaw,
		EventTime:  e.EventTime,
		Location:   e.Location,
		Coordinate: e.Coordinate,
		Notes:      e.Notes,
		RecordedBy: e.RecordedBy,
		CreatedAt:  e.CreatedAt,
	}
}

func toEventDTOs(evs []*models.TrackingEvent) []eventDTO {
	out := make([]eventDTO, 0, len(evs))
	for _, e := range evs {
		out = append(out, toEventDTO(e))
	}
	return out
}
