package models

import "time"

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type RouteStatus string

const (
	RouteStatusPending  RouteStatus = "PENDING"
	RouteStatusResolved RouteStatus = "RESOLVED"
	RouteStatusNoRoute  RouteStatus = "NO_ROUTE"
)

// Rechecked reports whether route-worker looks the route up again once it is due.
// NO_ROUTE is retried on its longer schedule.
func (s RouteStatus) Rechecked() bool {
	return s == RouteStatusPending || s == RouteStatusNoRoute
}

// RecheckedRouteStatuses lists the statuses for which Rechecked is true.
func RecheckedRouteStatuses() []string {
	return []string{string(RouteStatusPending), string(RouteStatusNoRoute)}
}

// Route is the recorded driving distance of an order, filled by route-worker.
type Route struct {
	Status          RouteStatus
	DistanceMiles   *float64
	DurationMinutes *int
	CheckedAt       *time.Time
	NextCheckAt     time.Time
	FailCount       int32
	LastError       *string
}

// RouteUpdate is the outcome of one driving-distance lookup.
type RouteUpdate struct {
	OrderID         uint64
	CheckedAt       time.Time
	Status          RouteStatus
	DistanceMiles   *float64
	DurationMinutes *int
	NextCheckAt     time.Time
	Error           *string
}

// DrivingRoute is the result of a road-network estimate.
type DrivingRoute struct {
	DistanceMiles   float64 `json:"distanceMiles"`
	DurationMinutes int     `json:"durationMinutes"`
}
