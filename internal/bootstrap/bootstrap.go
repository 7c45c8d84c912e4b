// Package bootstrap turns config.Config into the components both binaries share.
package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/FreightDesk/config"
	"github.com/BearBump/FreightDesk/internal/integrations/maps"
	"github.com/BearBump/FreightDesk/internal/integrations/maps/fake"
	"github.com/BearBump/FreightDesk/internal/integrations/maps/googlemaps"
	"github.com/BearBump/FreightDesk/internal/lifecycle"
	"github.com/BearBump/FreightDesk/internal/services/dispatch"
	"github.com/BearBump/FreightDesk/internal/services/orders"
	"github.com/BearBump/FreightDesk/internal/services/routeworker"
	"github.com/BearBump/FreightDesk/internal/storage/memstore"
	"github.com/BearBump/FreightDesk/internal/storage/pgorders"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// Store is what the binaries need from a record store.
type Store interface {
	orders.Repository
	dispatch.FleetStore
	routeworker.Repository
	Close()
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// OpenStorage opens the configured store. Postgres is retried until wait elapses,
// since in compose setups the database usually starts after us.
func OpenStorage(ctx context.Context, cfg *config.Config, wait time.Duration, log *slog.Logger) (Store, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case DriverMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		return memstore.New(), nil
	case "", DriverPostgres:
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = wait

	var st *pgorders.Storage
	op := func() error {
		s, err := pgorders.New(cfg.Database.ConnString())
		if err != nil {
			return err
		}
		st = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Warn("postgres is not ready", "err", err, "retry_in", next)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, errors.Wrapf(err, "postgres is not ready after %s", wait)
	}
	return st, nil
}

// MapsClient builds the configured mapping provider and its close function.
func MapsClient(cfg config.MapsConfig) (maps.Client, func(), error) {
	switch strings.ToLower(cfg.Provider) {
	case "fake":
		c := fake.New()
		return c, c.Close, nil
	case "", "google":
		if cfg.APIKey == "" {
			return nil, nil, errors.New("maps.api_key is required for the google provider")
		}
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		country := cfg.Country
		if country == "" {
			country = "US"
		}
		c := googlemaps.New(cfg.BaseURL, cfg.APIKey, timeout).WithRegion(country)
		return c, c.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown maps provider %q", cfg.Provider)
	}
}

// Vocabulary builds the status vocabulary; without configured statuses the built-in one is used.
func Vocabulary(cfg config.VocabularyConfig) (*lifecycle.Vocabulary, error) {
	if len(cfg.Statuses) == 0 {
		return lifecycle.NewVocabulary(lifecycle.DefaultSpec())
	}
	return lifecycle.NewVocabulary(lifecycle.Spec{
		Version:            cfg.Version,
		Initial:            cfg.Initial,
		Statuses:           cfg.Statuses,
		Terminal:           cfg.Terminal,
		Active:             cfg.Active,
		Assignable:         cfg.Assignable,
		RequiresAssignment: cfg.RequiresAssignment,
		SetsDeliveryDate:   cfg.SetsDeliveryDate,
		Transitions:        cfg.Transitions,
		Aliases:            cfg.Aliases,
		Priorities:         cfg.Priorities,
		DefaultPriority:    cfg.DefaultPriority,
	})
}

// WorkerSettings converts the worker section; zero values fall back to the worker defaults.
func WorkerSettings(cfg config.WorkerConfig) (routeworker.Settings, routeworker.PlannerConfig) {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return routeworker.Settings{
			PollInterval:       sec(cfg.PollIntervalSeconds),
			BatchSize:          cfg.BatchSize,
			Concurrency:        cfg.Concurrency,
			Lease:              sec(cfg.LeaseSeconds),
			RateLimitPerMinute: int64(cfg.RateLimitPerMinute),
		}, routeworker.PlannerConfig{
			NoRouteRecheck: sec(cfg.NoRouteRecheckSeconds),
			Backoff1:       sec(cfg.Backoff1Seconds),
			Backoff2:       sec(cfg.Backoff2Seconds),
			Backoff3:       sec(cfg.Backoff3Seconds),
			Backoff4:       sec(cfg.Backoff4Seconds),
		}
}
