package routeworker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/FreightDesk/internal/broker/messages"
	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/metrics"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimDueRoutes(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error)
}

type Estimator interface {
	Driving(ctx context.Context, fromPostal, toPostal string) (models.DrivingRoute, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Settings struct {
	PollInterval       time.Duration
	BatchSize          int
	Concurrency        int
	Lease              time.Duration
	RateLimitPerMinute int64
}

func DefaultSettings() Settings {
	return Settings{
		PollInterval:       5 * time.Second,
		BatchSize:          100,
		Concurrency:        10,
		Lease:              2 * time.Minute,
		RateLimitPerMinute: 120,
	}
}

// Worker claims orders whose driving distance is still unknown, asks the mapping provider
// for it and publishes the outcome. The API applies the results.
type Worker struct {
	repo      Repository
	estimator Estimator
	producer  Producer
	rl        RateLimiter
	topic     string
	planner   *Planner
	settings  Settings
	log       *slog.Logger

	triggerCh chan struct{}
	now       func() time.Time

	startedAt           time.Time
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	totalRateLimited    atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

// New builds a worker; rl may be nil to disable rate limiting.
func New(repo Repository, estimator Estimator, producer Producer, rl RateLimiter, topic string, log *slog.Logger) *Worker {
	if topic == "" {
		topic = messages.TopicRouteResolved
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		repo:      repo,
		estimator: estimator,
		producer:  producer,
		rl:        rl,
		topic:     topic,
		planner:   NewPlanner(DefaultPlannerConfig()),
		settings:  DefaultSettings(),
		log:       log,
		triggerCh: make(chan struct{}, 1),
		now:       func() time.Time { return time.Now().UTC() },
		startedAt: time.Now().UTC(),
	}
}

// WithSettings overrides the non-zero fields of s.
func (w *Worker) WithSettings(s Settings) *Worker {
	if s.PollInterval > 0 {
		w.settings.PollInterval = s.PollInterval
	}
	if s.BatchSize > 0 {
		w.settings.BatchSize = s.BatchSize
	}
	if s.Concurrency > 0 {
		w.settings.Concurrency = s.Concurrency
	}
	if s.Lease > 0 {
		w.settings.Lease = s.Lease
	}
	if s.RateLimitPerMinute > 0 {
		w.settings.RateLimitPerMinute = s.RateLimitPerMinute
	}
	return w
}

func (w *Worker) WithPlanner(cfg PlannerConfig) *Worker {
	w.planner = NewPlanner(cfg)
	return w
}

func (w *Worker) Settings() Settings { return w.settings }

// Trigger asks for an immediate cycle; it never blocks.
func (w *Worker) Trigger() {
	w.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt        time.Time  `json:"startedAt"`
	LastCycleAt      *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt    *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed     int64      `json:"totalClaimed"`
	TotalProcessed   int64      `json:"totalProcessed"`
	TotalErrors      int64      `json:"totalErrors"`
	TotalRateLimited int64      `json:"totalRateLimited"`
	InFlight         int64      `json:"inFlight"`
	LastError        string     `json:"lastError,omitempty"`
}

func (w *Worker) Stats() Stats {
	st := Stats{
		StartedAt:        w.startedAt,
		TotalClaimed:     w.totalClaimed.Load(),
		TotalProcessed:   w.totalProcessed.Load(),
		TotalErrors:      w.totalErrors.Load(),
		TotalRateLimited: w.totalRateLimited.Load(),
		InFlight:         w.inFlight.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.settings.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.runOnce(ctx)
		case <-w.triggerCh:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	now := w.now()
	w.lastCycleUnixNano.Store(now.UnixNano())

	items, err := w.repo.ClaimDueRoutes(ctx, now, w.settings.BatchSize, w.settings.Lease)
	if err != nil {
		w.log.Error("claim due routes", "err", err)
		w.setLastError(err)
		return
	}
	w.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, w.settings.Concurrency)
	var wg sync.WaitGroup
	for _, o := range items {
		sem <- struct{}{}
		wg.Add(1)
		w.inFlight.Add(1)
		go func(o *models.Order) {
			defer func() {
				w.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := w.processOne(ctx, o); err != nil {
				w.totalErrors.Add(1)
				w.setLastError(err)
				w.log.Error("process route", "order_id", o.ID, "err", err)
			}
			w.totalProcessed.Add(1)
		}(o)
	}
	wg.Wait()
}

func (w *Worker) setLastError(err error) {
	w.lastErrorMu.Lock()
	w.lastError = err.Error()
	w.lastErrorMu.Unlock()
}

var errRateLimited = errors.New("rate limited")

// processOne looks up one route. A rate-limited order is left alone; its lease expires
// and a later cycle claims it again.
func (w *Worker) processOne(ctx context.Context, o *models.Order) error {
	now := w.now()

	if err := w.allow(ctx, now); err != nil {
		if errors.Is(err, errRateLimited) {
			w.totalRateLimited.Add(1)
			metrics.RouteChecksTotal.WithLabelValues(metrics.ResultRateLimited).Inc()
			return nil
		}
		return err
	}

	msg := messages.RouteResolved{
		OrderID:   o.ID,
		CheckedAt: now,
	}
	route, err := w.estimator.Driving(ctx, o.PickupPostal, o.DeliveryPostal)
	var re *errs.RouteError
	switch {
	case err == nil:
		miles, mins := route.DistanceMiles, route.DurationMinutes
		msg.Status = string(models.RouteStatusResolved)
		msg.DistanceMiles = &miles
		msg.DurationMinutes = &mins
		msg.NextCheckAt = now
		metrics.RouteChecksTotal.WithLabelValues(metrics.ResultOK).Inc()
	case errors.As(err, &re):
		e := re.Error()
		msg.Status = string(models.RouteStatusNoRoute)
		msg.Error = &e
		msg.NextCheckAt = now.Add(w.planner.NoRouteDelay())
		metrics.RouteChecksTotal.WithLabelValues(metrics.ResultNoRoute).Inc()
	default:
		e := err.Error()
		msg.Status = string(models.RouteStatusPending)
		msg.Error = &e
		msg.NextCheckAt = now.Add(w.planner.BackoffDelay(o.Route.FailCount + 1))
		metrics.RouteChecksTotal.WithLabelValues(metrics.ResultProviderError).Inc()
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}
	key := []byte(strconv.FormatUint(o.ID, 10))
	if err := w.producer.Publish(ctx, w.topic, key, b); err != nil {
		metrics.BrokerPublishTotal.WithLabelValues(w.topic, metrics.ResultError).Inc()
		return err
	}
	metrics.BrokerPublishTotal.WithLabelValues(w.topic, metrics.ResultOK).Inc()
	return nil
}

func (w *Worker) allow(ctx context.Context, now time.Time) error {
	if w.rl == nil || w.settings.RateLimitPerMinute <= 0 {
		return nil
	}
	key := "rl:maps:directions:" + now.Format("200601021504")
	allowed, n, err := w.rl.Allow(ctx, key, w.settings.RateLimitPerMinute, 70*time.Second)
	if err != nil {
		return err
	}
	if !allowed {
		w.log.Warn("maps rate limit exceeded", "count", n, "limit", w.settings.RateLimitPerMinute)
		return errRateLimited
	}
	return nil
}
