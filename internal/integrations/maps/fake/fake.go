package fake

import (
	"context"
	"math"
	"strings"
	"sync/atomic"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/models"
)

// Client is an offline mapping provider for local runs and tests.
// Postal codes resolve from a fixed table; driving distance is the great-circle distance
// times a road factor at a constant average speed.
type Client struct {
	table map[string][]models.Coordinate

	geocodeCalls    atomic.Int64
	directionsCalls atomic.Int64
}

const (
	roadFactor  = 1.2
	avgSpeedMph = 50.0
	metersPerMi = 1609.344
)

func defaultTable() map[string][]models.Coordinate {
	return map[string][]models.Coordinate{
		"10001": {{Lat: 40.7128, Lng: -74.0060}},  // New York, NY
		"90001": {{Lat: 34.0522, Lng: -118.2437}}, // Los Angeles, CA
		"60601": {{Lat: 41.8858, Lng: -87.6181}},  // Chicago, IL
		"77001": {{Lat: 29.7604, Lng: -95.3698}},  // Houston, TX
		"30301": {{Lat: 33.7490, Lng: -84.3880}},  // Atlanta, GA
		"98101": {{Lat: 47.6062, Lng: -122.3321}}, // Seattle, WA
		"02108": {{Lat: 42.3601, Lng: -71.0589}},  // Boston, MA
		// split zip, two distinct centroids
		"42223": {{Lat: 36.6370, Lng: -87.4600}, {Lat: 36.6490, Lng: -87.4770}},
		// island zip, no road connection to the mainland
		"96799": {{Lat: -14.2756, Lng: -170.7020}},
	}
}

func New() *Client {
	return &Client{table: defaultTable()}
}

// With adds or replaces entries, for tests.
func (c *Client) With(postal string, coords ...models.Coordinate) *Client {
	c.table[postal] = coords
	return c
}

func (c *Client) Close() {}

func (c *Client) GeocodeCalls() int64    { return c.geocodeCalls.Load() }
func (c *Client) DirectionsCalls() int64 { return c.directionsCalls.Load() }

func (c *Client) Geocode(ctx context.Context, postalCode, country string) ([]models.Coordinate, error) {
	c.geocodeCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, &errs.ProviderError{Op: "geocode", Err: err}
	}
	if !strings.EqualFold(country, "US") {
		return nil, nil
	}
	src := c.table[postalCode]
	return append([]models.Coordinate(nil), src...), nil
}

func (c *Client) Directions(ctx context.Context, origin, destination string) (int64, int64, error) {
	c.directionsCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, 0, &errs.ProviderError{Op: "directions", Err: err}
	}
	from, ok := c.table[origin]
	if !ok || len(from) == 0 {
		return 0, 0, &errs.RouteError{Status: "NOT_FOUND"}
	}
	to, ok := c.table[destination]
	if !ok || len(to) == 0 {
		return 0, 0, &errs.RouteError{Status: "NOT_FOUND"}
	}
	if island(origin) != island(destination) {
		return 0, 0, &errs.RouteError{Status: "ZERO_RESULTS"}
	}

	miles := crowMiles(from[0], to[0]) * roadFactor
	meters := int64(math.Round(miles * metersPerMi))
	seconds := int64(math.Round(miles / avgSpeedMph * 3600))
	return meters, seconds, nil
}

func island(postal string) bool { return postal == "96799" }

func crowMiles(a, b models.Coordinate) float64 {
	const r = 3959.0
	rad := math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLng := (b.Lng - a.Lng) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * r * math.Asin(math.Sqrt(h))
}
