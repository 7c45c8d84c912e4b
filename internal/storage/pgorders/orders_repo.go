package pgorders

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const orderColumns = `
  id, number, customer_id,
  vehicle_id, driver_id, handler_id, assigned_at,
  pickup_address, pickup_postal, delivery_address, delivery_postal,
  pickup_date, delivery_date, status, status_at, priority,
  pieces, weight_lbs, rate, driver_pay, notes, documents,
  route_status, route_distance_miles, route_duration_minutes, route_checked_at,
  route_next_check_at, route_fail_count, route_last_error,
  created_at, updated_at`

const uniqueViolation = "23505"

// qualified prefixes every order column with alias, for statements that join.
func qualified(alias string) string {
	cols := strings.Split(orderColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return " " + strings.Join(cols, ", ")
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o          models.Order
		vehicleID  *string
		driverID   *string
		handlerID  *string
		assignedAt *time.Time
		pieces     *int32
		durMinutes *int32
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID,
		&vehicleID, &driverID, &handlerID, &assignedAt,
		&o.PickupAddress, &o.PickupPostal, &o.DeliveryAddress, &o.DeliveryPostal,
		&o.PickupDate, &o.DeliveryDate, &o.Status, &o.StatusAt, &o.Priority,
		&pieces, &o.Cargo.WeightLbs, &o.Cargo.Rate, &o.Cargo.DriverPay, &o.Notes, &o.Documents,
		&o.Route.Status, &o.Route.DistanceMiles, &durMinutes, &o.Route.CheckedAt,
		&o.Route.NextCheckAt, &o.Route.FailCount, &o.Route.LastError,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if vehicleID != nil && driverID != nil {
		a := models.Assignment{VehicleID: *vehicleID, DriverID: *driverID, HandlerID: handlerID}
		if assignedAt != nil {
			a.AssignedAt = assignedAt.UTC()
		}
		o.Assignment = &a
	}
	if pieces != nil {
		n := int(*pieces)
		o.Cargo.Pieces = &n
	}
	if durMinutes != nil {
		n := int(*durMinutes)
		o.Route.DurationMinutes = &n
	}
	return &o, nil
}

func (s *Storage) CreateOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	now := time.Now().UTC()
	docs := o.Documents
	if docs == nil {
		docs = []string{}
	}

	row := s.db.QueryRow(ctx, `
INSERT INTO orders (
  number, customer_id,
  pickup_address, pickup_postal, delivery_address, delivery_postal,
  pickup_date, status, priority,
  pieces, weight_lbs, rate, driver_pay, notes, documents,
  route_status, route_next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)
RETURNING`+orderColumns,
		o.Number, o.CustomerID,
		o.PickupAddress, o.PickupPostal, o.DeliveryAddress, o.DeliveryPostal,
		o.PickupDate.UTC(), string(o.Status), string(o.Priority),
		o.Cargo.Pieces, o.Cargo.WeightLbs, o.Cargo.Rate, o.Cargo.DriverPay, o.Notes, docs,
		string(o.Route.Status), o.Route.NextCheckAt.UTC(), now,
	)
	out, err := scanOrder(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, errors.Wrapf(errs.ErrInvalidInput, "order number %s already exists", o.Number)
		}
		return nil, errors.Wrap(err, "insert order")
	}
	return out, nil
}

func (s *Storage) GetOrder(ctx context.Context, id uint64) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(errs.ErrOrderNotFound, "order %d", id)
		}
		return nil, errors.Wrap(err, "select order")
	}
	return o, nil
}

// AttachAssignment locks the order, the vehicle and the driver rows, so two concurrent
// assignments of the same vehicle serialize and the second sees the first.
func (s *Storage) AttachAssignment(ctx context.Context, orderID uint64, a models.Assignment, assignable, active []string) (*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status, err := lockOrderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !contains(assignable, status) {
		return nil, errors.Wrapf(errs.ErrInvalidTransition, "order %d: cannot assign in status %s", orderID, status)
	}
	if err := lockFleet(ctx, tx, a, true); err != nil {
		return nil, err
	}
	if err := checkExclusive(ctx, tx, orderID, a, active); err != nil {
		return nil, err
	}

	o, err := scanOrder(tx.QueryRow(ctx, `
UPDATE orders
SET
  vehicle_id = $2,
  driver_id = $3,
  handler_id = $4,
  assigned_at = $5,
  updated_at = now()
WHERE id = $1
RETURNING`+orderColumns, orderID, a.VehicleID, a.DriverID, a.HandlerID, a.AssignedAt.UTC()))
	if err != nil {
		return nil, errors.Wrap(err, "update order assignment")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return o, nil
}

func (s *Storage) UpdatePriority(ctx context.Context, orderID uint64, expected models.Status, p models.Priority) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `
UPDATE orders
SET priority = $3, updated_at = now()
WHERE id = $1 AND status = $2
RETURNING`+orderColumns, orderID, string(expected), string(p)))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(err, "update priority")
	}
	// either the order is gone or its status moved on
	cur, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return nil, errors.Wrapf(errs.ErrInvalidTransition, "order %d: status is %s, expected %s", orderID, cur.Status, expected)
}

// ListStatusLabels returns every distinct label present on orders or events.
func (s *Storage) ListStatusLabels(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
SELECT status FROM orders
UNION
SELECT status FROM tracking_events
ORDER BY 1
`)
	if err != nil {
		return nil, errors.Wrap(err, "select status labels")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, errors.Wrap(err, "scan status label")
		}
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func lockOrderStatus(ctx context.Context, tx pgx.Tx, orderID uint64) (string, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errors.Wrapf(errs.ErrOrderNotFound, "order %d", orderID)
		}
		return "", errors.Wrap(err, "lock order")
	}
	return status, nil
}

// lockFleet takes row locks on the vehicle and the driver. With requireActive an
// inactive vehicle or driver is reported as unavailable.
func lockFleet(ctx context.Context, tx pgx.Tx, a models.Assignment, requireActive bool) error {
	var active bool
	err := tx.QueryRow(ctx, `SELECT active FROM vehicles WHERE id = $1 FOR UPDATE`, a.VehicleID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(errs.ErrVehicleNotFound, "vehicle %s", a.VehicleID)
	}
	if err != nil {
		return errors.Wrap(err, "lock vehicle")
	}
	if requireActive && !active {
		return errors.Wrapf(errs.ErrVehicleUnavailable, "vehicle %s is inactive", a.VehicleID)
	}

	err = tx.QueryRow(ctx, `SELECT active FROM drivers WHERE id = $1 FOR UPDATE`, a.DriverID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(errs.ErrDriverNotFound, "driver %s", a.DriverID)
	}
	if err != nil {
		return errors.Wrap(err, "lock driver")
	}
	if requireActive && !active {
		return errors.Wrapf(errs.ErrDriverUnavailable, "driver %s is inactive", a.DriverID)
	}
	return nil
}

func checkExclusive(ctx context.Context, tx pgx.Tx, self uint64, a models.Assignment, active []string) error {
	var other uint64
	err := tx.QueryRow(ctx, `
SELECT id FROM orders
WHERE vehicle_id = $1 AND status = ANY($2) AND id <> $3
ORDER BY id
LIMIT 1
`, a.VehicleID, active, self).Scan(&other)
	switch {
	case err == nil:
		return errors.Wrapf(errs.ErrVehicleUnavailable, "vehicle %s serves order %d", a.VehicleID, other)
	case !errors.Is(err, pgx.ErrNoRows):
		return errors.Wrap(err, "check vehicle")
	}

	err = tx.QueryRow(ctx, `
SELECT id FROM orders
WHERE driver_id = $1 AND status = ANY($2) AND id <> $3
ORDER BY id
LIMIT 1
`, a.DriverID, active, self).Scan(&other)
	switch {
	case err == nil:
		return errors.Wrapf(errs.ErrDriverUnavailable, "driver %s serves order %d", a.DriverID, other)
	case !errors.Is(err, pgx.ErrNoRows):
		return errors.Wrap(err, "check driver")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}
