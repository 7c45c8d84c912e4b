package routeworker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/FreightDesk/internal/broker/messages"
	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/integrations/maps/fake"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/BearBump/FreightDesk/internal/services/distance"
	"github.com/BearBump/FreightDesk/internal/services/geocoding"
	"github.com/BearBump/FreightDesk/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu    sync.Mutex
	topic string
	msgs  []messages.RouteResolved
	keys  []string
	err   error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	var m messages.RouteResolved
	if err := json.Unmarshal(value, &m); err != nil {
		return err
	}
	p.topic = topic
	p.msgs = append(p.msgs, m)
	p.keys = append(p.keys, string(key))
	return nil
}

type fakeRL struct {
	allowed bool
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, 1, r.err
}

type fakeEstimator struct {
	route models.DrivingRoute
	err   error
}

func (e fakeEstimator) Driving(ctx context.Context, from, to string) (models.DrivingRoute, error) {
	return e.route, e.err
}

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func order(failCount int32) *models.Order {
	return &models.Order{ID: 42, PickupPostal: "10001", DeliveryPostal: "02108", Route: models.Route{FailCount: failCount}}
}

func TestWorker_processOne_ResolvedPublishes(t *testing.T) {
	fp := &fakeProducer{}
	w := New(nil, fakeEstimator{route: models.DrivingRoute{DistanceMiles: 215.4, DurationMinutes: 250}}, fp, fakeRL{allowed: true}, "", quietLog())

	require.NoError(t, w.processOne(context.Background(), order(0)))
	require.Equal(t, messages.TopicRouteResolved, fp.topic)
	require.Equal(t, []string{"42"}, fp.keys)
	require.Equal(t, "RESOLVED", fp.msgs[0].Status)
	require.Equal(t, 215.4, *fp.msgs[0].DistanceMiles)
	require.Equal(t, 250, *fp.msgs[0].DurationMinutes)
	require.Nil(t, fp.msgs[0].Error)
}

func TestWorker_processOne_NoRoute(t *testing.T) {
	fp := &fakeProducer{}
	w := New(nil, fakeEstimator{err: &errs.RouteError{Status: "ZERO_RESULTS"}}, fp, nil, "", quietLog())
	w.now = func() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, w.processOne(context.Background(), order(0)))
	m := fp.msgs[0]
	require.Equal(t, "NO_ROUTE", m.Status)
	require.Contains(t, *m.Error, "ZERO_RESULTS")
	require.Equal(t, w.now().Add(7*24*time.Hour), m.NextCheckAt)
}

func TestWorker_processOne_ProviderErrorBacksOff(t *testing.T) {
	fp := &fakeProducer{}
	w := New(nil, fakeEstimator{err: &errs.ProviderError{Op: "directions", Status: "OVER_QUERY_LIMIT"}}, fp, nil, "", quietLog())
	w.now = func() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, w.processOne(context.Background(), order(2)))
	m := fp.msgs[0]
	require.Equal(t, "PENDING", m.Status)
	require.NotNil(t, m.Error)
	require.Equal(t, w.now().Add(30*time.Minute), m.NextCheckAt)
}

func TestWorker_processOne_RateLimitedSkips(t *testing.T) {
	fp := &fakeProducer{}
	w := New(nil, fakeEstimator{}, fp, fakeRL{allowed: false}, "", quietLog())

	require.NoError(t, w.processOne(context.Background(), order(0)))
	require.Empty(t, fp.msgs)
	require.Equal(t, int64(1), w.Stats().TotalRateLimited)
}

func TestWorker_processOne_PublishError(t *testing.T) {
	fp := &fakeProducer{err: errors.New("kafka down")}
	w := New(nil, fakeEstimator{}, fp, nil, "", quietLog())
	require.Error(t, w.processOne(context.Background(), order(0)))
}

func TestWorker_WithSettings(t *testing.T) {
	w := New(nil, fakeEstimator{}, &fakeProducer{}, nil, "t", quietLog()).
		WithSettings(Settings{PollInterval: 5 * time.Second, BatchSize: 7, Concurrency: 9, Lease: 11 * time.Second, RateLimitPerMinute: 13})
	s := w.Settings()
	require.Equal(t, 5*time.Second, s.PollInterval)
	require.Equal(t, 7, s.BatchSize)
	require.Equal(t, 9, s.Concurrency)
	require.Equal(t, 11*time.Second, s.Lease)
	require.Equal(t, int64(13), s.RateLimitPerMinute)

	w = New(nil, fakeEstimator{}, &fakeProducer{}, nil, "t", quietLog()).WithSettings(Settings{})
	require.Equal(t, DefaultSettings(), w.Settings())
}

func TestWorker_runOnce_EndToEndWithMemstore(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	past := time.Now().UTC().Add(-time.Minute)
	for _, dst := range []string{"02108", "96799"} {
		_, err := store.CreateOrder(ctx, &models.Order{
			Number: "LD-" + dst, Status: models.StatusPending, PickupPostal: "10001", DeliveryPostal: dst,
			Route: models.Route{Status: models.RouteStatusPending, NextCheckAt: past},
		})
		require.NoError(t, err)
	}

	client := fake.New()
	est := distance.NewEstimator(geocoding.New(client, nil, "", nil), client)
	fp := &fakeProducer{}
	w := New(store, est, fp, nil, "", quietLog()).WithSettings(Settings{Concurrency: 2})

	w.runOnce(ctx)
	require.Len(t, fp.msgs, 2)
	st := w.Stats()
	require.Equal(t, int64(2), st.TotalClaimed)
	require.Equal(t, int64(2), st.TotalProcessed)
	require.Zero(t, st.TotalErrors)
	require.NotNil(t, st.LastCycleAt)

	byOrder := map[uint64]messages.RouteResolved{}
	for _, m := range fp.msgs {
		byOrder[m.OrderID] = m
	}
	require.Equal(t, "RESOLVED", byOrder[1].Status)
	require.Equal(t, "NO_ROUTE", byOrder[2].Status)

	// leased: nothing to claim on the next cycle
	w.runOnce(ctx)
	require.Len(t, fp.msgs, 2)

	// the API applies the results
	for _, m := range fp.msgs {
		require.NoError(t, store.ApplyRouteUpdate(ctx, m.ToUpdate()))
	}
	o, err := store.GetOrder(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.RouteStatusResolved, o.Route.Status)
}

type countingRepo struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRepo) ClaimDueRoutes(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil, nil
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	repo := &countingRepo{}
	w := New(repo, fakeEstimator{}, &fakeProducer{}, nil, "t", quietLog()).
		WithSettings(Settings{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := w.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.GreaterOrEqual(t, repo.calls, 1)
}

func TestWorker_TriggerNeverBlocks(t *testing.T) {
	w := New(&countingRepo{}, fakeEstimator{}, &fakeProducer{}, nil, "t", quietLog())
	w.Trigger()
	w.Trigger()
	require.NotNil(t, w.Stats().LastTriggerAt)
}
