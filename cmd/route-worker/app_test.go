package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/FreightDesk/config"
	"github.com/BearBump/FreightDesk/internal/cache/rediscache"
	"github.com/BearBump/FreightDesk/internal/integrations/maps"
	"github.com/BearBump/FreightDesk/internal/integrations/maps/fake"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/BearBump/FreightDesk/internal/services/routeworker"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{ calls atomic.Int64 }

func (r *fakeRepo) ClaimDueRoutes(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error) {
	r.calls.Add(1)
	return []*models.Order{}, nil
}

type noopProducer struct{}

func (p noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testFactories(repo *fakeRepo, closed *atomic.Bool) workerFactories {
	return workerFactories{
		newStorage: func(ctx context.Context, cfg *config.Config, log *slog.Logger) (routeworker.Repository, func(), error) {
			return repo, func() { closed.Store(true) }, nil
		},
		newProducer: func(cfg *config.Config) routeworker.Producer {
			return noopProducer{}
		},
		newRateLimiter: func(cfg *config.Config) routeworker.RateLimiter {
			return nil
		},
		newMapsClient: func(cfg *config.Config) (maps.Client, func(), error) {
			c := fake.New()
			return c, c.Close, nil
		},
	}
}

func TestDefaultWorkerFactories_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
		Maps:  config.MapsConfig{Provider: "fake"},
	}
	require.NotNil(t, f.newProducer(cfg))
	rl := f.newRateLimiter(cfg)
	_, ok := rl.(*rediscache.RateLimiter)
	require.True(t, ok)

	c, closeFn, err := f.newMapsClient(cfg)
	require.NoError(t, err)
	defer closeFn()
	_, ok = c.(*fake.Client)
	require.True(t, ok)
}

func TestBuildRouteWorker_AppliesConfig(t *testing.T) {
	var closed atomic.Bool
	cfg := &config.Config{Worker: config.WorkerConfig{BatchSize: 7, LeaseSeconds: 30}}
	w, closeFn, err := buildRouteWorker(context.Background(), cfg, testFactories(&fakeRepo{}, &closed), quietLog())
	require.NoError(t, err)
	require.Equal(t, 7, w.Settings().BatchSize)
	require.Equal(t, 30*time.Second, w.Settings().Lease)

	closeFn()
	require.True(t, closed.Load())
}

func TestRunRouteWorker_ContextCanceled(t *testing.T) {
	var closed atomic.Bool
	cfg := &config.Config{Worker: config.WorkerConfig{PollIntervalSeconds: 1}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunRouteWorker(ctx, cfg, testFactories(&fakeRepo{}, &closed), workerHTTPOpts{}, quietLog())
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, closed.Load())
}

func TestRunRouteWorker_HTTP(t *testing.T) {
	var closed atomic.Bool
	repo := &fakeRepo{}
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunRouteWorker(ctx, &config.Config{Worker: config.WorkerConfig{PollIntervalSeconds: 3600}}, testFactories(repo, &closed), workerHTTPOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
			onListen:    func(addr string) { addrCh <- addr },
		}, quietLog())
	}()
	base := "http://" + <-addrCh

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/swagger.json"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(base + "/config")
	require.NoError(t, err)
	var cfgOut map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfgOut))
	resp.Body.Close()
	require.EqualValues(t, 3600, cfgOut["pollIntervalSeconds"])

	resp, err = http.Post(base+"/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Eventually(t, func() bool { return repo.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	var st routeworker.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	require.NotNil(t, st.LastTriggerAt)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.True(t, closed.Load())
}
