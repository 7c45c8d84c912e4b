// Package memstore is an in-process record store with the same contract as pgorders.
// It backs `storage.driver: memory` and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/pkg/errors"
)

type Storage struct {
	mu sync.Mutex

	nextOrderID uint64
	nextEventID uint64

	orders   map[uint64]*models.Order
	numbers  map[string]uint64
	events   map[uint64][]*models.TrackingEvent
	vehicles map[string]*models.Vehicle
	drivers  map[string]*models.Driver

	now func() time.Time
}

func New() *Storage {
	return &Storage{
		orders:   make(map[uint64]*models.Order),
		numbers:  make(map[string]uint64),
		events:   make(map[uint64][]*models.TrackingEvent),
		vehicles: make(map[string]*models.Vehicle),
		drivers:  make(map[string]*models.Driver),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Storage) Close() {}

func (s *Storage) CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.numbers[o.Number]; ok {
		return nil, errors.Wrapf(errs.ErrInvalidInput, "order number %s already exists", o.Number)
	}
	now := s.now()
	s.nextOrderID++
	c := cloneOrder(o)
	c.ID = s.nextOrderID
	c.CreatedAt, c.UpdatedAt = now, now
	s.orders[c.ID] = c
	s.numbers[c.Number] = c.ID
	return cloneOrder(c), nil
}

func (s *Storage) GetOrder(ctx context.Context, id uint64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrOrderNotFound, "order %d", id)
	}
	return cloneOrder(o), nil
}

func (s *Storage) ListTrackingEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return nil, errors.Wrapf(errs.ErrOrderNotFound, "order %d", orderID)
	}
	evs := s.events[orderID]
	if offset < 0 {
		offset = 0
	}
	if offset > len(evs) {
		offset = len(evs)
	}
	end := len(evs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*models.TrackingEvent, 0, end-offset)
	for _, e := range evs[offset:end] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (s *Storage) AppendTransition(ctx context.Context, commit models.TransitionCommit) (*models.TrackingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[commit.OrderID]
	if !ok {
		return nil, errors.Wrapf(errs.ErrOrderNotFound, "order %d", commit.OrderID)
	}
	if o.Status != commit.ExpectedStatus {
		return nil, errors.Wrapf(errs.ErrInvalidTransition, "order %d: status is %s, expected %s", o.ID, o.Status, commit.ExpectedStatus)
	}

	if len(commit.ActiveLabels) > 0 && o.Assignment != nil {
		if err := s.checkExclusive(o.ID, *o.Assignment, commit.ActiveLabels); err != nil {
			return nil, err
		}
	}

	now := s.now()
	s.nextEventID++
	ev := *commit.Event
	ev.ID = s.nextEventID
	ev.OrderID = o.ID
	ev.CreatedAt = now
	s.events[o.ID] = insertByTime(s.events[o.ID], &ev)

	at := commit.StatusAt
	o.Status = commit.Status
	o.StatusAt = &at
	if commit.DeliveryDate != nil {
		d := *commit.DeliveryDate
		o.DeliveryDate = &d
	}
	o.UpdatedAt = now

	out := ev
	return &out, nil
}

func (s *Storage) AttachAssignment(ctx context.Context, orderID uint64, a models.Assignment, assignable, active []string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, errors.Wrapf(errs.ErrOrderNotFound, "order %d", orderID)
	}
	if !contains(assignable, string(o.Status)) {
		return nil, errors.Wrapf(errs.ErrInvalidTransition, "order %d: cannot assign in status %s", o.ID, o.Status)
	}
	v, ok := s.vehicles[a.VehicleID]
	if !ok {
		return nil, errors.Wrapf(errs.ErrVehicleNotFound, "vehicle %s", a.VehicleID)
	}
	if !v.Active {
		return nil, errors.Wrapf(errs.ErrVehicleUnavailable, "vehicle %s is inactive", a.VehicleID)
	}
	d, ok := s.drivers[a.DriverID]
	if !ok {
		return nil, errors.Wrapf(errs.ErrDriverNotFound, "driver %s", a.DriverID)
	}
	if !d.Active {
		return nil, errors.Wrapf(errs.ErrDriverUnavailable, "driver %s is inactive", a.DriverID)
	}
	if err := s.checkExclusive(o.ID, a, active); err != nil {
		return nil, err
	}

	c := a
	if a.HandlerID != nil {
		h := *a.HandlerID
		c.HandlerID = &h
	}
	o.Assignment = &c
	o.UpdatedAt = s.now()
	return cloneOrder(o), nil
}

func (s *Storage) UpdatePriority(ctx context.Context, orderID uint64, expected models.Status, p models.Priority) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, errors.Wrapf(errs.ErrOrderNotFound, "order %d", orderID)
	}
	if o.Status != expected {
		return nil, errors.Wrapf(errs.ErrInvalidTransition, "order %d: status is %s, expected %s", o.ID, o.Status, expected)
	}
	o.Priority = p
	o.UpdatedAt = s.now()
	return cloneOrder(o), nil
}

func (s *Storage) ApplyRouteUpdate(ctx context.Context, upd models.RouteUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[upd.OrderID]
	if !ok {
		return errors.Wrapf(errs.ErrOrderNotFound, "order %d", upd.OrderID)
	}
	checked := upd.CheckedAt
	o.Route.CheckedAt = &checked
	o.Route.NextCheckAt = upd.NextCheckAt
	if upd.Error != nil && *upd.Error != "" && upd.Status != models.RouteStatusNoRoute {
		o.Route.FailCount++
		e := *upd.Error
		o.Route.LastError = &e
	} else {
		o.Route.Status = upd.Status
		o.Route.DistanceMiles = upd.DistanceMiles
		o.Route.DurationMinutes = upd.DurationMinutes
		o.Route.FailCount = 0
		o.Route.LastError = upd.Error
	}
	o.UpdatedAt = s.now()
	return nil
}

// ClaimDueRoutes leases due PENDING and NO_ROUTE routes the same way the Postgres store does.
func (s *Storage) ClaimDueRoutes(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.Order
	for _, o := range s.orders {
		if o.Route.Status.Rechecked() && !o.Route.NextCheckAt.After(now) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Route.NextCheckAt.Before(due[j].Route.NextCheckAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*models.Order, 0, len(due))
	for _, o := range due {
		o.Route.NextCheckAt = now.UTC().Add(lease)
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (s *Storage) ListStatusLabels(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]struct{}{}
	for _, o := range s.orders {
		seen[string(o.Status)] = struct{}{}
	}
	for _, evs := range s.events {
		for _, e := range evs {
			seen[e.StatusRaw] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Storage) UpsertVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v.UpdatedAt = s.now()
	s.vehicles[v.ID] = &v
	out := v
	return &out, nil
}

func (s *Storage) UpsertDriver(ctx context.Context, d models.Driver) (*models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.UpdatedAt = s.now()
	s.drivers[d.ID] = &d
	out := d
	return &out, nil
}

func (s *Storage) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vehicles[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrVehicleNotFound, "vehicle %s", id)
	}
	out := *v
	return &out, nil
}

func (s *Storage) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drivers[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrDriverNotFound, "driver %s", id)
	}
	out := *d
	return &out, nil
}

func (s *Storage) ActiveOrdersForVehicle(ctx context.Context, vehicleID string, active []string) ([]uint64, error) {
	return s.activeOrders(func(a *models.Assignment) bool { return a.VehicleID == vehicleID }, active), nil
}

func (s *Storage) ActiveOrdersForDriver(ctx context.Context, driverID string, active []string) ([]uint64, error) {
	return s.activeOrders(func(a *models.Assignment) bool { return a.DriverID == driverID }, active), nil
}

func (s *Storage) activeOrders(match func(a *models.Assignment) bool, active []string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeOrdersLocked(0, match, active)
}

// activeOrdersLocked returns matching orders other than self, sorted by id.
func (s *Storage) activeOrdersLocked(self uint64, match func(a *models.Assignment) bool, active []string) []uint64 {
	var ids []uint64
	for _, o := range s.orders {
		if o.ID != self && o.Assignment != nil && match(o.Assignment) && contains(active, string(o.Status)) {
			ids = append(ids, o.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// checkExclusive looks at the vehicle before the driver, as the Postgres store does.
func (s *Storage) checkExclusive(self uint64, a models.Assignment, active []string) error {
	if ids := s.activeOrdersLocked(self, func(o *models.Assignment) bool { return o.VehicleID == a.VehicleID }, active); len(ids) > 0 {
		return errors.Wrapf(errs.ErrVehicleUnavailable, "vehicle %s serves order %d", a.VehicleID, ids[0])
	}
	if ids := s.activeOrdersLocked(self, func(o *models.Assignment) bool { return o.DriverID == a.DriverID }, active); len(ids) > 0 {
		return errors.Wrapf(errs.ErrDriverUnavailable, "driver %s serves order %d", a.DriverID, ids[0])
	}
	return nil
}

// insertByTime keeps events sorted by time; equal times keep insertion order.
func insertByTime(evs []*models.TrackingEvent, ev *models.TrackingEvent) []*models.TrackingEvent {
	i := sort.Search(len(evs), func(i int) bool { return evs[i].EventTime.After(ev.EventTime) })
	evs = append(evs, nil)
	copy(evs[i+1:], evs[i:])
	evs[i] = ev
	return evs
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	if o.Assignment != nil {
		a := *o.Assignment
		c.Assignment = &a
	}
	if o.StatusAt != nil {
		t := *o.StatusAt
		c.StatusAt = &t
	}
	if o.DeliveryDate != nil {
		t := *o.DeliveryDate
		c.DeliveryDate = &t
	}
	if o.Route.CheckedAt != nil {
		t := *o.Route.CheckedAt
		c.Route.CheckedAt = &t
	}
	c.Documents = append([]string(nil), o.Documents...)
	return &c
}
