package maps

import (
	"context"

	"github.com/BearBump/FreightDesk/internal/models"
)

// Client is the mapping provider handle shared by the geocoder and the distance estimator.
// Implementations are safe for concurrent use and hold no per-request state.
type Client interface {
	// Geocode returns every coordinate the provider matched for a postal code in country.
	// Zero results is not an error.
	Geocode(ctx context.Context, postalCode, country string) ([]models.Coordinate, error)
	// Directions returns road distance in meters and travel time in seconds between two places.
	Directions(ctx context.Context, origin, destination string) (meters, seconds int64, err error)
}
