package distance

import (
	"context"
	"math"
	"strings"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/integrations/maps"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/pkg/errors"
)

const (
	earthRadiusMiles = 3959.0
	milesPerMeter    = 0.000621371
)

// GreatCircle is the haversine distance in miles, rounded to one decimal.
func GreatCircle(a, b models.Coordinate) float64 {
	rad := math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLng := (b.Lng - a.Lng) * rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return round1(earthRadiusMiles * c)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type Resolver interface {
	Resolve(ctx context.Context, postalCode string) (models.Coordinate, error)
}

// Estimator answers both quick (crow-flies) and authoritative (road network) distance questions.
type Estimator struct {
	geo    Resolver
	client maps.Client
}

func NewEstimator(geo Resolver, client maps.Client) *Estimator {
	return &Estimator{geo: geo, client: client}
}

// Estimate geocodes both postal codes and returns the great-circle distance between them.
func (e *Estimator) Estimate(ctx context.Context, fromPostal, toPostal string) (float64, error) {
	a, err := e.geo.Resolve(ctx, fromPostal)
	if err != nil {
		return 0, errors.Wrap(err, "origin")
	}
	b, err := e.geo.Resolve(ctx, toPostal)
	if err != nil {
		return 0, errors.Wrap(err, "destination")
	}
	return GreatCircle(a, b), nil
}

// Driving asks the provider for a road route. No route is *errs.RouteError with the provider status.
func (e *Estimator) Driving(ctx context.Context, fromPostal, toPostal string) (models.DrivingRoute, error) {
	from, to := strings.TrimSpace(fromPostal), strings.TrimSpace(toPostal)
	if from == "" || to == "" {
		return models.DrivingRoute{}, errs.ErrInvalidPostalCode
	}

	meters, seconds, err := e.client.Directions(ctx, from, to)
	if err != nil {
		if errs.KindOf(err) == errs.KindDependency {
			return models.DrivingRoute{}, err
		}
		return models.DrivingRoute{}, &errs.ProviderError{Op: "directions", Err: err}
	}

	return models.DrivingRoute{
		DistanceMiles:   round1(float64(meters) * milesPerMeter),
		DurationMinutes: int(math.Round(float64(seconds) / 60)),
	}, nil
}
