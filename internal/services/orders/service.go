package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/FreightDesk/internal/broker/messages"
	"github.com/BearBump/FreightDesk/internal/cache"
	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/ledger"
	"github.com/BearBump/FreightDesk/internal/lifecycle"
	"github.com/BearBump/FreightDesk/internal/metrics"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	ledger.Store

	CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error)
	GetOrder(ctx context.Context, id uint64) (*models.Order, error)
	// AttachAssignment re-checks exclusivity atomically; assignable and active are stored labels.
	AttachAssignment(ctx context.Context, orderID uint64, a models.Assignment, assignable, active []string) (*models.Order, error)
	UpdatePriority(ctx context.Context, orderID uint64, expected models.Status, p models.Priority) (*models.Order, error)
	ApplyRouteUpdate(ctx context.Context, upd models.RouteUpdate) error
	ListStatusLabels(ctx context.Context) ([]string, error)

	UpsertVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error)
	UpsertDriver(ctx context.Context, d models.Driver) (*models.Driver, error)
}

type Assigner interface {
	Assign(ctx context.Context, order models.Order, vehicleID, driverID string, handlerID *string) (models.Assignment, error)
}

type Geocoder interface {
	Resolve(ctx context.Context, postalCode string) (models.Coordinate, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Options struct {
	// CurrentTTL is the lifetime of order snapshots in the cache; 0 disables the cache.
	CurrentTTL  time.Duration
	StatusTopic string
	MaxPageSize int
}

// Service is the order aggregate: every mutation of an order goes through it.
type Service struct {
	repo     Repository
	ledger   *ledger.Ledger
	machine  *lifecycle.Machine
	vocab    *lifecycle.Vocabulary
	assigner Assigner
	geo      Geocoder
	cache    cache.BytesCache
	pub      Publisher
	opts     Options
	log      *slog.Logger

	locks *keyLock
	now   func() time.Time
}

// New wires the service. cache and pub may be nil.
func New(
	repo Repository,
	vocab *lifecycle.Vocabulary,
	assigner Assigner,
	geo Geocoder,
	c cache.BytesCache,
	pub Publisher,
	opts Options,
	log *slog.Logger,
) *Service {
	if opts.StatusTopic == "" {
		opts.StatusTopic = messages.TopicOrderStatusChanged
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 500
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		ledger:   ledger.New(repo, vocab),
		machine:  lifecycle.NewMachine(vocab),
		vocab:    vocab,
		assigner: assigner,
		geo:      geo,
		cache:    c,
		pub:      pub,
		opts:     opts,
		log:      log,
		locks:    newKeyLock(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Vocabulary() lifecycle.Description {
	return s.vocab.Describe()
}

// CheckVocabulary compares stored labels with the configured vocabulary.
// With strict, unknown labels are an error; otherwise they are only logged.
func (s *Service) CheckVocabulary(ctx context.Context, strict bool) error {
	labels, err := s.repo.ListStatusLabels(ctx)
	if err != nil {
		return errors.Wrap(err, "list status labels")
	}
	unknown := s.vocab.CheckCompatibility(labels)
	if len(unknown) == 0 {
		return nil
	}
	if strict {
		return errors.Errorf("stored status labels not in %s: %s", s.vocab, strings.Join(unknown, ", "))
	}
	s.log.Warn("stored status labels are not in the vocabulary", "vocabulary", s.vocab.Version(), "labels", unknown)
	return nil
}

func (s *Service) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, errors.Wrap(errs.ErrInvalidInput, "customerId is required")
	}
	if strings.TrimSpace(in.PickupPostal) == "" || strings.TrimSpace(in.DeliveryPostal) == "" {
		return nil, errors.Wrap(errs.ErrInvalidInput, "pickupPostal and deliveryPostal are required")
	}
	if err := validateCargo(in.Cargo); err != nil {
		return nil, err
	}
	prio, err := s.vocab.ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}

	now := s.now()
	pickup := in.PickupDate.UTC()
	if in.PickupDate.IsZero() {
		pickup = now
	}

	o := &models.Order{
		Number:          newOrderNumber(),
		CustomerID:      strings.TrimSpace(in.CustomerID),
		PickupAddress:   strings.TrimSpace(in.PickupAddress),
		PickupPostal:    strings.TrimSpace(in.PickupPostal),
		DeliveryAddress: strings.TrimSpace(in.DeliveryAddress),
		DeliveryPostal:  strings.TrimSpace(in.DeliveryPostal),
		PickupDate:      pickup,
		Status:          s.vocab.Initial(),
		Priority:        prio,
		Cargo:           in.Cargo,
		Notes:           in.Notes,
		Documents:       append([]string(nil), in.Documents...),
		Route: models.Route{
			Status:      models.RouteStatusPending,
			NextCheckAt: now,
		},
	}
	created, err := s.repo.CreateOrder(ctx, o)
	if err != nil {
		return nil, err
	}
	s.log.Info("order created", "order_id", created.ID, "number", created.Number, "priority", created.Priority)
	return created, nil
}

func validateCargo(c models.Cargo) error {
	if c.Pieces != nil && *c.Pieces < 0 {
		return errors.Wrap(errs.ErrInvalidInput, "cargo.pieces must be >= 0")
	}
	for name, v := range map[string]*float64{"weightLbs": c.WeightLbs, "rate": c.Rate, "driverPay": c.DriverPay} {
		if v != nil && *v < 0 {
			return errors.Wrapf(errs.ErrInvalidInput, "cargo.%s must be >= 0", name)
		}
	}
	return nil
}

func newOrderNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "LD-" + strings.ToUpper(id[:8])
}

func (s *Service) GetOrder(ctx context.Context, id uint64) (*models.Order, error) {
	if id == 0 {
		return nil, errors.Wrap(errs.ErrInvalidInput, "id is required")
	}
	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, currentKey(id))
		if err != nil {
			s.log.Warn("order cache get failed", "order_id", id, "err", err)
		}
		if ok {
			var o models.Order
			if json.Unmarshal(b, &o) == nil {
				return &o, nil
			}
		}
	}

	// the fill holds the order lock so it cannot land after a commit's invalidate
	unlock := s.locks.Lock(id)
	defer unlock()
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.storeSnapshot(ctx, o)
	return o, nil
}

// Assign attaches a vehicle and driver. Status does not change; a separate ASSIGNED
// transition records the dispatch in the ledger.
func (s *Service) Assign(ctx context.Context, id uint64, vehicleID, driverID string, handlerID *string) (*models.Order, error) {
	unlock := s.locks.Lock(id)
	updated, err := s.assignLocked(ctx, id, vehicleID, driverID, handlerID)
	if err == nil {
		s.invalidate(ctx, id)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	s.log.Info("order assigned", "order_id", id, "vehicle_id", updated.Assignment.VehicleID, "driver_id", updated.Assignment.DriverID)
	return updated, nil
}

func (s *Service) assignLocked(ctx context.Context, id uint64, vehicleID, driverID string, handlerID *string) (*models.Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	cur := s.vocab.Normalize(string(o.Status))
	if !s.vocab.IsAssignable(cur) {
		return nil, errors.Wrapf(errs.ErrInvalidTransition, "order %d: cannot assign in status %s", id, cur)
	}

	a, err := s.assigner.Assign(ctx, *o, vehicleID, driverID, handlerID)
	if err != nil {
		return nil, err
	}
	return s.repo.AttachAssignment(ctx, id, a,
		s.vocab.StoredLabels(s.vocab.AssignableStatuses()),
		s.vocab.StoredLabels(s.vocab.ActiveStatuses()),
	)
}

type TransitionRequest struct {
	Status     string
	Location   *string
	PostalCode *string
	Notes      *string
	RecordedBy *string
}

// Transition moves the order to req.Status and appends exactly one tracking event.
// The event coordinate is geocoded before the order is locked.
func (s *Service) Transition(ctx context.Context, id uint64, req TransitionRequest) (*models.Order, *models.TrackingEvent, error) {
	if id == 0 {
		return nil, nil, errors.Wrap(errs.ErrInvalidInput, "id is required")
	}
	if strings.TrimSpace(req.Status) == "" {
		return nil, nil, errors.Wrap(errs.ErrInvalidInput, "status is required")
	}
	target, err := s.vocab.Parse(req.Status)
	if err != nil {
		metrics.TransitionsTotal.WithLabelValues("unknown", errs.KindOf(err).String()).Inc()
		return nil, nil, err
	}

	meta := models.EventMeta{
		Location:   req.Location,
		PostalCode: req.PostalCode,
		Notes:      req.Notes,
		RecordedBy: req.RecordedBy,
	}
	if req.PostalCode != nil && strings.TrimSpace(*req.PostalCode) != "" {
		c, err := s.geo.Resolve(ctx, *req.PostalCode)
		if err != nil {
			metrics.TransitionsTotal.WithLabelValues(string(target), errs.KindOf(err).String()).Inc()
			return nil, nil, errors.Wrap(err, "event location")
		}
		meta.Coordinate = &c
	}

	unlock := s.locks.Lock(id)
	from, next, ev, err := s.transitionLocked(ctx, id, target, meta)
	if err == nil {
		s.invalidate(ctx, id)
	}
	unlock()
	if err != nil {
		metrics.TransitionsTotal.WithLabelValues(string(target), errs.KindOf(err).String()).Inc()
		return nil, nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(string(target), metrics.ResultOK).Inc()

	s.log.Info("order transition", "order_id", id, "from", from, "to", next.Status, "event_id", ev.ID)
	s.publishStatusChanged(ctx, next, from, ev)
	return next, ev, nil
}

func (s *Service) transitionLocked(ctx context.Context, id uint64, target models.Status, meta models.EventMeta) (models.Status, *models.Order, *models.TrackingEvent, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return "", nil, nil, err
	}
	from := s.vocab.Normalize(string(o.Status))

	next, ev, err := s.machine.Transition(*o, string(target), meta, s.now())
	if err != nil {
		return "", nil, nil, err
	}

	commit := models.TransitionCommit{
		OrderID:        id,
		ExpectedStatus: o.Status,
		Status:         next.Status,
		StatusAt:       *next.StatusAt,
		DeliveryDate:   next.DeliveryDate,
		Event:          ev,
	}
	// entering the active window claims the vehicle and driver
	if s.vocab.IsActive(next.Status) && !s.vocab.IsActive(from) {
		commit.ActiveLabels = s.vocab.StoredLabels(s.vocab.ActiveStatuses())
	}
	stored, err := s.ledger.Append(ctx, commit)
	if err != nil {
		return "", nil, nil, err
	}
	next.UpdatedAt = stored.CreatedAt
	return from, &next, stored, nil
}

func (s *Service) publishStatusChanged(ctx context.Context, o *models.Order, from models.Status, ev *models.TrackingEvent) {
	if s.pub == nil {
		return
	}
	msg := messages.OrderStatusChanged{
		EventID:           uuid.NewString(),
		OrderID:           o.ID,
		OrderNumber:       o.Number,
		From:              string(from),
		To:                string(ev.Status),
		EventTime:         ev.EventTime,
		Location:          ev.Location,
		RecordedBy:        ev.RecordedBy,
		VocabularyVersion: s.vocab.Version(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	key := []byte(strconv.FormatUint(o.ID, 10))
	if err := s.pub.Publish(ctx, s.opts.StatusTopic, key, b); err != nil {
		metrics.BrokerPublishTotal.WithLabelValues(s.opts.StatusTopic, metrics.ResultError).Inc()
		s.log.Error("publish status change failed", "order_id", o.ID, "topic", s.opts.StatusTopic, "err", err)
		return
	}
	metrics.BrokerPublishTotal.WithLabelValues(s.opts.StatusTopic, metrics.ResultOK).Inc()
}

func (s *Service) ChangePriority(ctx context.Context, id uint64, label string) (*models.Order, error) {
	if strings.TrimSpace(label) == "" {
		return nil, errors.Wrap(errs.ErrInvalidInput, "priority is required")
	}
	p, err := s.vocab.ParsePriority(label)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	updated, err := func() (*models.Order, error) {
		o, err := s.repo.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.vocab.IsTerminal(s.vocab.Normalize(string(o.Status))) {
			return nil, errors.Wrapf(errs.ErrOrderClosed, "order %d is %s", id, o.Status)
		}
		return s.repo.UpdatePriority(ctx, id, o.Status, p)
	}()
	if err == nil {
		s.invalidate(ctx, id)
	}
	unlock()
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) History(ctx context.Context, id uint64) ([]*models.TrackingEvent, error) {
	return s.ledger.History(ctx, id)
}

// Tracking is a page of History; limit 0 means the whole history.
func (s *Service) Tracking(ctx context.Context, id uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	if limit < 0 || offset < 0 {
		return nil, errors.Wrap(errs.ErrInvalidInput, "limit and offset must be >= 0")
	}
	if limit > s.opts.MaxPageSize {
		return nil, errors.Wrapf(errs.ErrInvalidInput, "limit must be <= %d", s.opts.MaxPageSize)
	}
	return s.ledger.Page(ctx, id, limit, offset)
}

func (s *Service) LatestStatus(ctx context.Context, id uint64) (models.Status, error) {
	return s.ledger.LatestStatus(ctx, id)
}

// ApplyRouteUpdate stores a driving-distance result produced by route-worker.
func (s *Service) ApplyRouteUpdate(ctx context.Context, msg messages.RouteResolved) error {
	if msg.OrderID == 0 {
		return errors.Wrap(errs.ErrInvalidInput, "order_id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = s.now()
	}
	if msg.NextCheckAt.IsZero() {
		msg.NextCheckAt = msg.CheckedAt.Add(time.Hour)
	}
	switch models.RouteStatus(msg.Status) {
	case models.RouteStatusPending, models.RouteStatusResolved, models.RouteStatusNoRoute:
	default:
		return errors.Wrapf(errs.ErrInvalidInput, "route status %q", msg.Status)
	}

	unlock := s.locks.Lock(msg.OrderID)
	defer unlock()
	if err := s.repo.ApplyRouteUpdate(ctx, msg.ToUpdate()); err != nil {
		return err
	}
	s.invalidate(ctx, msg.OrderID)
	return nil
}

func (s *Service) UpsertVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	v.ID = strings.TrimSpace(v.ID)
	if v.ID == "" {
		return nil, errors.Wrap(errs.ErrInvalidInput, "vehicle id is required")
	}
	return s.repo.UpsertVehicle(ctx, v)
}

func (s *Service) UpsertDriver(ctx context.Context, d models.Driver) (*models.Driver, error) {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return nil, errors.Wrap(errs.ErrInvalidInput, "driver id is required")
	}
	return s.repo.UpsertDriver(ctx, d)
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.opts.CurrentTTL > 0
}

func (s *Service) storeSnapshot(ctx context.Context, o *models.Order) {
	if !s.cacheEnabled() {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, currentKey(o.ID), b, s.opts.CurrentTTL); err != nil {
		s.log.Warn("order cache set failed", "order_id", o.ID, "err", err)
	}
}

// invalidate drops the snapshot after a commit; the next read reloads it.
// Callers hold the order lock.
func (s *Service) invalidate(ctx context.Context, id uint64) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.Delete(ctx, currentKey(id)); err != nil {
		s.log.Warn("order cache delete failed", "order_id", id, "err", err)
	}
}

func currentKey(id uint64) string {
	return fmt.Sprintf("order:%d:current", id)
}
