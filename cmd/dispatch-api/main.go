package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to load .env", "err", err)
	}

	app := mustBootstrapDispatchAPI(log)
	err := app.Run()
	app.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("dispatch-api stopped", "err", err)
		os.Exit(1)
	}
}
