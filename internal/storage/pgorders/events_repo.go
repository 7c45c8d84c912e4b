package pgorders

import (
	"context"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ListTrackingEvents returns the order's events oldest first; limit <= 0 means all.
func (s *Storage) ListTrackingEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	if offset < 0 {
		offset = 0
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, errors.Wrap(err, "check order")
	}
	if !exists {
		return nil, errors.Wrapf(errs.ErrOrderNotFound, "order %d", orderID)
	}

	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.db.Query(ctx, `
SELECT
  id, order_id, status, event_time, location, lat, lng, notes, recorded_by, created_at
FROM tracking_events
WHERE order_id = $1
ORDER BY event_time, id
LIMIT $2 OFFSET $3
`, orderID, lim, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.TrackingEvent
	for rows.Next() {
		var e models.TrackingEvent
		var lat, lng *float64
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.StatusRaw, &e.EventTime,
			&e.Location, &lat, &lng, &e.Notes, &e.RecordedBy, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.Status = models.Status(e.StatusRaw)
		if lat != nil && lng != nil {
			e.Coordinate = &models.Coordinate{Lat: *lat, Lng: *lng}
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// AppendTransition writes the event and moves the order in one transaction. The order row
// is locked first so the expected-status check and the write see the same state.
func (s *Storage) AppendTransition(ctx context.Context, commit models.TransitionCommit) (*models.TrackingEvent, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status, err := lockOrderStatus(ctx, tx, commit.OrderID)
	if err != nil {
		return nil, err
	}
	if status != string(commit.ExpectedStatus) {
		return nil, errors.Wrapf(errs.ErrInvalidTransition, "order %d: status is %s, expected %s", commit.OrderID, status, commit.ExpectedStatus)
	}

	if len(commit.ActiveLabels) > 0 {
		var vehicleID, driverID *string
		err := tx.QueryRow(ctx, `SELECT vehicle_id, driver_id FROM orders WHERE id = $1`, commit.OrderID).Scan(&vehicleID, &driverID)
		if err != nil {
			return nil, errors.Wrap(err, "select assignment")
		}
		if vehicleID != nil && driverID != nil {
			a := models.Assignment{VehicleID: *vehicleID, DriverID: *driverID}
			if err := lockFleet(ctx, tx, a, false); err != nil {
				return nil, err
			}
			if err := checkExclusive(ctx, tx, commit.OrderID, a, commit.ActiveLabels); err != nil {
				return nil, err
			}
		}
	}

	ev := *commit.Event
	ev.OrderID = commit.OrderID
	if ev.StatusRaw == "" {
		ev.StatusRaw = string(ev.Status)
	}
	var lat, lng *float64
	if ev.Coordinate != nil {
		lat, lng = &ev.Coordinate.Lat, &ev.Coordinate.Lng
	}
	err = tx.QueryRow(ctx, `
INSERT INTO tracking_events (
  order_id, status, event_time, location, lat, lng, notes, recorded_by, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())
RETURNING id, created_at
`, ev.OrderID, ev.StatusRaw, ev.EventTime.UTC(), ev.Location, lat, lng, ev.Notes, ev.RecordedBy).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert tracking event")
	}

	_, err = tx.Exec(ctx, `
UPDATE orders
SET
  status = $2,
  status_at = $3,
  delivery_date = COALESCE($4, delivery_date),
  updated_at = now()
WHERE id = $1
`, commit.OrderID, string(commit.Status), commit.StatusAt.UTC(), commit.DeliveryDate)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return &ev, nil
}
