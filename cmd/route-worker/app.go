package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/FreightDesk/config"
	"github.com/BearBump/FreightDesk/internal/bootstrap"
	"github.com/BearBump/FreightDesk/internal/broker/kafka"
	"github.com/BearBump/FreightDesk/internal/broker/messages"
	"github.com/BearBump/FreightDesk/internal/cache/rediscache"
	"github.com/BearBump/FreightDesk/internal/integrations/maps"
	"github.com/BearBump/FreightDesk/internal/services/distance"
	"github.com/BearBump/FreightDesk/internal/services/geocoding"
	"github.com/BearBump/FreightDesk/internal/services/routeworker"
)

type workerFactories struct {
	newStorage     func(ctx context.Context, cfg *config.Config, log *slog.Logger) (repo routeworker.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) routeworker.Producer
	newRateLimiter func(cfg *config.Config) routeworker.RateLimiter
	newMapsClient  func(cfg *config.Config) (maps.Client, func(), error)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(ctx context.Context, cfg *config.Config, log *slog.Logger) (routeworker.Repository, func(), error) {
			st, err := bootstrap.OpenStorage(ctx, cfg, 60*time.Second, log)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) routeworker.Producer {
			retries := cfg.Kafka.PublishRetries
			if retries <= 0 {
				retries = 3
			}
			return kafka.NewProducer(cfg.Kafka.Brokers(), retries)
		},
		newRateLimiter: func(cfg *config.Config) routeworker.RateLimiter {
			return rediscache.NewRateLimiter(rediscache.Options{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		},
		newMapsClient: func(cfg *config.Config) (maps.Client, func(), error) {
			return bootstrap.MapsClient(cfg.Maps)
		},
	}
}

// buildRouteWorker wires the worker; closeFn releases everything it opened.
func buildRouteWorker(ctx context.Context, cfg *config.Config, f workerFactories, log *slog.Logger) (*routeworker.Worker, func(), error) {
	topic := cfg.Kafka.RouteResolvedTopicName
	if topic == "" {
		topic = messages.TopicRouteResolved
	}
	country := cfg.Maps.Country
	if country == "" {
		country = geocoding.DefaultCountry
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	repo, closeRepo, err := f.newStorage(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	client, closeMaps, err := f.newMapsClient(cfg)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if closeMaps != nil {
		closers = append(closers, closeMaps)
	}

	producer := f.newProducer(cfg)
	if c, ok := producer.(interface{ Close() error }); ok {
		closers = append(closers, func() { _ = c.Close() })
	}
	rl := f.newRateLimiter(cfg)
	if c, ok := rl.(interface{ Close() error }); ok {
		closers = append(closers, func() { _ = c.Close() })
	}

	est := distance.NewEstimator(geocoding.New(client, nil, country, log), client)
	settings, planner := bootstrap.WorkerSettings(cfg.Worker)
	w := routeworker.New(repo, est, producer, rl, topic, log).
		WithSettings(settings).
		WithPlanner(planner)

	return w, closeAll, nil
}

// RunRouteWorker runs the worker loop and its HTTP surface until ctx is done.
func RunRouteWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts, log *slog.Logger) error {
	w, closeFn, err := buildRouteWorker(ctx, cfg, f, log)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpOpts.worker = w
	httpOpts.cfg = cfg
	httpOpts.log = log
	httpErr := make(chan error, 1)
	if httpOpts.swaggerPath != "" {
		go func() { httpErr <- runWorkerHTTPServer(ctx, httpOpts) }()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	select {
	case err := <-runErr:
		return err
	case err := <-httpErr:
		if err != nil {
			cancel()
			<-runErr
			return err
		}
		return <-runErr
	}
}
