package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/FreightDesk/config"
	ordersapi "github.com/BearBump/FreightDesk/internal/api/orders_api"
	"github.com/BearBump/FreightDesk/internal/bootstrap"
	"github.com/BearBump/FreightDesk/internal/broker/kafka"
	"github.com/BearBump/FreightDesk/internal/broker/messages"
	"github.com/BearBump/FreightDesk/internal/cache/rediscache"
	"github.com/BearBump/FreightDesk/internal/services/dispatch"
	"github.com/BearBump/FreightDesk/internal/services/distance"
	"github.com/BearBump/FreightDesk/internal/services/geocoding"
	"github.com/BearBump/FreightDesk/internal/services/orders"
)

type dispatchAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	opts     dispatchAPIOpts
	svc      *orders.Service
	api      *ordersapi.OrdersAPI
	consumer *kafka.Consumer

	closers []func()
}

// kafkaRouteUpdates adapts the consumer to routeUpdates.
type kafkaRouteUpdates struct {
	c   *kafka.Consumer
	log *slog.Logger
}

func (k kafkaRouteUpdates) Run(ctx context.Context, apply func(ctx context.Context, msg messages.RouteResolved) error) error {
	return kafka.ConsumeJSON(ctx, k.c, k.log, apply)
}

func mustBootstrapDispatchAPI(log *slog.Logger) *dispatchAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	httpAddr := cfg.FreightDesk.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.FreightDesk.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "dispatch-api"
	}
	routeTopic := cfg.Kafka.RouteResolvedTopicName
	if routeTopic == "" {
		routeTopic = messages.TopicRouteResolved
	}
	statusTopic := cfg.Kafka.StatusChangedTopicName
	if statusTopic == "" {
		statusTopic = messages.TopicOrderStatusChanged
	}
	cacheTTL := time.Duration(cfg.FreightDesk.CurrentOrderTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	publishRetries := cfg.Kafka.PublishRetries
	if publishRetries <= 0 {
		publishRetries = 3
	}
	country := cfg.Maps.Country
	if country == "" {
		country = geocoding.DefaultCountry
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := &dispatchAPIApp{ctx: ctx, cancel: cancel, log: log}

	vocab, err := bootstrap.Vocabulary(cfg.Vocabulary)
	if err != nil {
		panic(fmt.Sprintf("invalid vocabulary: %v", err))
	}

	st, err := bootstrap.OpenStorage(ctx, cfg, 60*time.Second, log)
	if err != nil {
		panic(err)
	}
	app.closers = append(app.closers, st.Close)

	mapsClient, closeMaps, err := bootstrap.MapsClient(cfg.Maps)
	if err != nil {
		panic(err)
	}
	app.closers = append(app.closers, closeMaps)

	redisOpts := rediscache.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	rc := rediscache.New(redisOpts, cfg.Redis.KeyPrefix)
	if err := rc.Ping(ctx); err != nil {
		log.Warn("redis is not reachable, caches will miss", "err", err)
	}
	app.closers = append(app.closers, func() { _ = rc.Close() })

	producer := kafka.NewProducer(cfg.Kafka.Brokers(), publishRetries)
	app.closers = append(app.closers, func() { _ = producer.Close() })

	geo := geocoding.New(mapsClient, rc, country, log)
	app.svc = orders.New(
		st,
		vocab,
		dispatch.NewResolver(st, vocab),
		geo,
		rc,
		producer,
		orders.Options{
			CurrentTTL:  cacheTTL,
			StatusTopic: statusTopic,
			MaxPageSize: cfg.FreightDesk.MaxTrackingPageSize,
		},
		log,
	)
	if err := app.svc.CheckVocabulary(ctx, cfg.Vocabulary.Strict); err != nil {
		panic(err)
	}

	app.api = ordersapi.New(
		app.svc,
		distance.NewEstimator(geo, mapsClient),
		ordersapi.NewAuthenticator(cfg.FreightDesk.AuthTokens),
		log,
	)
	if len(cfg.FreightDesk.AuthTokens) == 0 {
		log.Warn("no auth tokens configured, API is unauthenticated")
	}

	app.consumer = kafka.NewConsumer(cfg.Kafka.Brokers(), routeTopic, consumerGroup)
	app.closers = append(app.closers, func() { _ = app.consumer.Close() })

	app.opts = dispatchAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		topic:         routeTopic,
		consumerGroup: consumerGroup,
	}
	return app
}

func (a *dispatchAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *dispatchAPIApp) Run() error {
	return runDispatchAPI(a.ctx, a.opts, a.api, a.svc, kafkaRouteUpdates{c: a.consumer, log: a.log}, a.log)
}
