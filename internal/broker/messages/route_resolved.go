package messages

import (
	"time"

	"github.com/BearBump/FreightDesk/internal/models"
)

// RouteResolved carries one driving-distance lookup from route-worker to the API.
type RouteResolved struct {
	OrderID   uint64    `json:"order_id"`
	CheckedAt time.Time `json:"checked_at"`

	Status          string   `json:"status"`
	DistanceMiles   *float64 `json:"distance_miles,omitempty"`
	DurationMinutes *int     `json:"duration_minutes,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`
	Error       *string   `json:"error,omitempty"`
}

func (m RouteResolved) ToUpdate() models.RouteUpdate {
	return models.RouteUpdate{
		OrderID:         m.OrderID,
		CheckedAt:       m.CheckedAt,
		Status:          models.RouteStatus(m.Status),
		DistanceMiles:   m.DistanceMiles,
		DurationMinutes: m.DurationMinutes,
		NextCheckAt:     m.NextCheckAt,
		Error:           m.Error,
	}
}

func RouteResolvedFrom(u models.RouteUpdate) RouteResolved {
	return RouteResolved{
		OrderID:         u.OrderID,
		CheckedAt:       u.CheckedAt,
		Status:          string(u.Status),
		DistanceMiles:   u.DistanceMiles,
		DurationMinutes: u.DurationMinutes,
		NextCheckAt:     u.NextCheckAt,
		Error:           u.Error,
	}
}
