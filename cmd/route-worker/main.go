package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/FreightDesk/config"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to load .env", "err", err)
	}

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = RunRouteWorker(ctx, cfg, defaultWorkerFactories(), workerHTTPOpts{
		httpAddr:    cfg.Worker.HTTPAddr,
		swaggerPath: os.Getenv("swaggerPath"),
	}, log)
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("route-worker stopped", "err", err)
		os.Exit(1)
	}
}
