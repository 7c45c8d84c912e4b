package pgorders

import (
	"context"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) UpsertVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	var out models.Vehicle
	err := s.db.QueryRow(ctx, `
INSERT INTO vehicles (id, name, active, updated_at)
VALUES ($1,$2,$3, now())
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
RETURNING id, name, active, updated_at
`, v.ID, v.Name, v.Active).Scan(&out.ID, &out.Name, &out.Active, &out.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "upsert vehicle")
	}
	return &out, nil
}

func (s *Storage) UpsertDriver(ctx context.Context, d models.Driver) (*models.Driver, error) {
	var out models.Driver
	err := s.db.QueryRow(ctx, `
INSERT INTO drivers (id, name, active, updated_at)
VALUES ($1,$2,$3, now())
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
RETURNING id, name, active, updated_at
`, d.ID, d.Name, d.Active).Scan(&out.ID, &out.Name, &out.Active, &out.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "upsert driver")
	}
	return &out, nil
}

func (s *Storage) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	var v models.Vehicle
	err := s.db.QueryRow(ctx, `SELECT id, name, active, updated_at FROM vehicles WHERE id = $1`, id).
		Scan(&v.ID, &v.Name, &v.Active, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(errs.ErrVehicleNotFound, "vehicle %s", id)
		}
		return nil, errors.Wrap(err, "select vehicle")
	}
	return &v, nil
}

func (s *Storage) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	var d models.Driver
	err := s.db.QueryRow(ctx, `SELECT id, name, active, updated_at FROM drivers WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Active, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(errs.ErrDriverNotFound, "driver %s", id)
		}
		return nil, errors.Wrap(err, "select driver")
	}
	return &d, nil
}

func (s *Storage) ActiveOrdersForVehicle(ctx context.Context, vehicleID string, active []string) ([]uint64, error) {
	return s.selectIDs(ctx, `SELECT id FROM orders WHERE vehicle_id = $1 AND status = ANY($2) ORDER BY id`, vehicleID, active)
}

func (s *Storage) ActiveOrdersForDriver(ctx context.Context, driverID string, active []string) ([]uint64, error) {
	return s.selectIDs(ctx, `SELECT id FROM orders WHERE driver_id = $1 AND status = ANY($2) ORDER BY id`, driverID, active)
}

func (s *Storage) selectIDs(ctx context.Context, q string, args ...any) ([]uint64, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select order ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uint64])
	if err != nil {
		return nil, errors.Wrap(err, "collect order ids")
	}
	return ids, nil
}
