package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BearBump/FreightDesk/internal/cache"
	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/integrations/maps"
	"github.com/BearBump/FreightDesk/internal/metrics"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/pkg/errors"
)

const DefaultCountry = "US"

// Geocoder resolves postal codes to coordinates. The cache is optional (nil disables it).
type Geocoder struct {
	client  maps.Client
	cache   cache.BytesCache
	country string
	log     *slog.Logger
}

func New(client maps.Client, c cache.BytesCache, country string, log *slog.Logger) *Geocoder {
	if country == "" {
		country = DefaultCountry
	}
	if log == nil {
		log = slog.Default()
	}
	return &Geocoder{client: client, cache: c, country: country, log: log}
}

// postal code geography does not change, entries never expire
func cacheKey(postal string) string {
	return fmt.Sprintf("geo:postal:%s", postal)
}

func (g *Geocoder) Resolve(ctx context.Context, postalCode string) (models.Coordinate, error) {
	postal := strings.TrimSpace(postalCode)
	if postal == "" {
		return models.Coordinate{}, errs.ErrInvalidPostalCode
	}

	if c, ok := g.fromCache(ctx, postal); ok {
		metrics.GeocodeRequestsTotal.WithLabelValues(metrics.ResultCacheHit).Inc()
		return c, nil
	}

	results, err := g.client.Geocode(ctx, postal, g.country)
	if err != nil {
		metrics.GeocodeRequestsTotal.WithLabelValues(metrics.ResultProviderError).Inc()
		if errs.KindOf(err) == errs.KindDependency {
			return models.Coordinate{}, err
		}
		return models.Coordinate{}, &errs.ProviderError{Op: "geocode", Err: err}
	}

	distinct := dedupe(results)
	switch len(distinct) {
	case 0:
		metrics.GeocodeRequestsTotal.WithLabelValues(metrics.ResultNotFound).Inc()
		return models.Coordinate{}, errors.Wrapf(errs.ErrPostalCodeNotFound, "%s: no results", postal)
	case 1:
	default:
		metrics.GeocodeRequestsTotal.WithLabelValues(metrics.ResultNotFound).Inc()
		return models.Coordinate{}, errors.Wrapf(errs.ErrPostalCodeNotFound, "%s: %d ambiguous results", postal, len(distinct))
	}

	metrics.GeocodeRequestsTotal.WithLabelValues(metrics.ResultOK).Inc()
	g.toCache(ctx, postal, distinct[0])
	return distinct[0], nil
}

func (g *Geocoder) fromCache(ctx context.Context, postal string) (models.Coordinate, bool) {
	if g.cache == nil {
		return models.Coordinate{}, false
	}
	b, ok, err := g.cache.Get(ctx, cacheKey(postal))
	if err != nil {
		g.log.Warn("geocode cache get failed", "postal", postal, "err", err)
		return models.Coordinate{}, false
	}
	if !ok {
		return models.Coordinate{}, false
	}
	var c models.Coordinate
	if err := json.Unmarshal(b, &c); err != nil {
		g.log.Warn("geocode cache entry broken", "postal", postal, "err", err)
		return models.Coordinate{}, false
	}
	return c, true
}

func (g *Geocoder) toCache(ctx context.Context, postal string, c models.Coordinate) {
	if g.cache == nil {
		return
	}
	b, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, cacheKey(postal), b, 0); err != nil {
		g.log.Warn("geocode cache set failed", "postal", postal, "err", err)
	}
}

func dedupe(in []models.Coordinate) []models.Coordinate {
	out := make([]models.Coordinate, 0, len(in))
	seen := make(map[models.Coordinate]struct{}, len(in))
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
