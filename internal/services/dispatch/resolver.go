package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/lifecycle"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/pkg/errors"
)

// FleetStore is the read side of the external vehicle/driver records.
type FleetStore interface {
	GetVehicle(ctx context.Context, id string) (*models.Vehicle, error)
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	// ActiveOrdersForVehicle returns ids of orders holding the vehicle in one of the given status labels.
	ActiveOrdersForVehicle(ctx context.Context, vehicleID string, statuses []string) ([]uint64, error)
	ActiveOrdersForDriver(ctx context.Context, driverID string, statuses []string) ([]uint64, error)
}

// Resolver validates and builds assignments. It never changes order status.
type Resolver struct {
	fleet FleetStore
	vocab *lifecycle.Vocabulary
	now   func() time.Time
}

func NewResolver(fleet FleetStore, vocab *lifecycle.Vocabulary) *Resolver {
	return &Resolver{
		fleet: fleet,
		vocab: vocab,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *Resolver) Assign(ctx context.Context, order models.Order, vehicleID, driverID string, handlerID *string) (models.Assignment, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	driverID = strings.TrimSpace(driverID)
	if vehicleID == "" || driverID == "" {
		return models.Assignment{}, errors.Wrap(errs.ErrInvalidInput, "vehicleId and driverId are required")
	}

	active := r.vocab.StoredLabels(r.vocab.ActiveStatuses())

	v, err := r.fleet.GetVehicle(ctx, vehicleID)
	if err != nil {
		return models.Assignment{}, err
	}
	if !v.Active {
		return models.Assignment{}, errors.Wrapf(errs.ErrVehicleUnavailable, "vehicle %s is inactive", vehicleID)
	}
	busy, err := r.fleet.ActiveOrdersForVehicle(ctx, vehicleID, active)
	if err != nil {
		return models.Assignment{}, errors.Wrap(err, "active orders for vehicle")
	}
	if other, ok := firstOther(busy, order.ID); ok {
		return models.Assignment{}, errors.Wrapf(errs.ErrVehicleUnavailable, "vehicle %s serves order %d", vehicleID, other)
	}

	d, err := r.fleet.GetDriver(ctx, driverID)
	if err != nil {
		return models.Assignment{}, err
	}
	if !d.Active {
		return models.Assignment{}, errors.Wrapf(errs.ErrDriverUnavailable, "driver %s is inactive", driverID)
	}
	busy, err = r.fleet.ActiveOrdersForDriver(ctx, driverID, active)
	if err != nil {
		return models.Assignment{}, errors.Wrap(err, "active orders for driver")
	}
	if other, ok := firstOther(busy, order.ID); ok {
		return models.Assignment{}, errors.Wrapf(errs.ErrDriverUnavailable, "driver %s serves order %d", driverID, other)
	}

	a := models.Assignment{
		VehicleID:  vehicleID,
		DriverID:   driverID,
		AssignedAt: r.now(),
	}
	if handlerID != nil && strings.TrimSpace(*handlerID) != "" {
		h := strings.TrimSpace(*handlerID)
		a.HandlerID = &h
	}
	return a, nil
}

func firstOther(ids []uint64, self uint64) (uint64, bool) {
	for _, id := range ids {
		if id != self {
			return id, true
		}
	}
	return 0, false
}
