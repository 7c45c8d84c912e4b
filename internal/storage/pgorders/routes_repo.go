package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// ClaimDueRoutes leases up to limit orders whose route is due. Rows locked by another
// worker are skipped; the lease moves next_check_at so a crashed worker's claim comes back.
func (s *Storage) ClaimDueRoutes(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	leaseUntil := now.UTC().Add(lease)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
WITH due AS (
  SELECT id
  FROM orders
  WHERE route_status = ANY($1) AND route_next_check_at <= $2
  ORDER BY route_next_check_at
  LIMIT $3
  FOR UPDATE SKIP LOCKED
)
UPDATE orders o
SET route_next_check_at = $4, updated_at = now()
FROM due
WHERE o.id = due.id
RETURNING`+qualified("o"), models.RecheckedRouteStatuses(), now.UTC(), limit, leaseUntil)
	if err != nil {
		return nil, errors.Wrap(err, "claim due routes")
	}

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return out, nil
}

func (s *Storage) ApplyRouteUpdate(ctx context.Context, upd models.RouteUpdate) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if upd.Error != nil && *upd.Error != "" && upd.Status != models.RouteStatusNoRoute {
		tag, err = s.db.Exec(ctx, `
UPDATE orders
SET
  route_checked_at = $2,
  route_fail_count = route_fail_count + 1,
  route_last_error = $3,
  route_next_check_at = $4,
  updated_at = now()
WHERE id = $1
`, upd.OrderID, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update route (error)")
		}
	} else {
		tag, err = s.db.Exec(ctx, `
UPDATE orders
SET
  route_status = $3,
  route_distance_miles = $4,
  route_duration_minutes = $5,
  route_checked_at = $2,
  route_fail_count = 0,
  route_last_error = $6,
  route_next_check_at = $7,
  updated_at = now()
WHERE id = $1
`, upd.OrderID, upd.CheckedAt.UTC(), string(upd.Status), upd.DistanceMiles, upd.DurationMinutes, upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update route (ok)")
		}
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errs.ErrOrderNotFound, "order %d", upd.OrderID)
	}
	return nil
}
