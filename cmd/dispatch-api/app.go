package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	ordersapi "github.com/BearBump/FreightDesk/internal/api/orders_api"
	"github.com/BearBump/FreightDesk/internal/broker/messages"
	"github.com/BearBump/FreightDesk/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type dispatchAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic           string
	consumerGroup   string
	consumerRestart time.Duration

	onListen func(httpAddr string)
}

// routeUpdates feeds route-worker results into the order service.
type routeUpdates interface {
	Run(ctx context.Context, apply func(ctx context.Context, msg messages.RouteResolved) error) error
}

type routeApplier interface {
	ApplyRouteUpdate(ctx context.Context, msg messages.RouteResolved) error
}

func runDispatchAPI(ctx context.Context, opts dispatchAPIOpts, api *ordersapi.OrdersAPI, svc routeApplier, updates routeUpdates, log *slog.Logger) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, api, opts.swaggerPath, log)
	}()

	if updates != nil {
		go consumeRouteUpdates(ctx, opts, updates, svc, log)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// consumeRouteUpdates restarts the consumer with backoff until ctx is done; an
// uncommitted message is fetched again after the restart.
func consumeRouteUpdates(ctx context.Context, opts dispatchAPIOpts, updates routeUpdates, svc routeApplier, log *slog.Logger) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.consumerRestart
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	_ = backoff.RetryNotify(func() error {
		log.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		err := updates.Run(ctx, svc.ApplyRouteUpdate)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = fmt.Errorf("consumer returned")
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.Error("kafka consumer stopped, restarting", "err", err, "in", next)
	})
}

func newRouter(api *ordersapi.OrdersAPI, swaggerPath string, log *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(metrics.Middleware(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	api.Register(r)
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, api *ordersapi.OrdersAPI, swaggerPath string, log *slog.Logger) error {
	srv := &http.Server{
		Handler:           newRouter(api, swaggerPath, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
