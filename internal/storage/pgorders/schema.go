package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS vehicles (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  active BOOLEAN NOT NULL DEFAULT TRUE,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS drivers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  active BOOLEAN NOT NULL DEFAULT TRUE,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGSERIAL PRIMARY KEY,
  number TEXT NOT NULL UNIQUE,
  customer_id TEXT NOT NULL,
  vehicle_id TEXT NULL REFERENCES vehicles(id),
  driver_id TEXT NULL REFERENCES drivers(id),
  handler_id TEXT NULL,
  assigned_at TIMESTAMPTZ NULL,
  pickup_address TEXT NOT NULL DEFAULT '',
  pickup_postal TEXT NOT NULL,
  delivery_address TEXT NOT NULL DEFAULT '',
  delivery_postal TEXT NOT NULL,
  pickup_date TIMESTAMPTZ NOT NULL,
  delivery_date TIMESTAMPTZ NULL,
  status TEXT NOT NULL,
  status_at TIMESTAMPTZ NULL,
  priority TEXT NOT NULL,
  pieces INT NULL,
  weight_lbs DOUBLE PRECISION NULL,
  rate DOUBLE PRECISION NULL,
  driver_pay DOUBLE PRECISION NULL,
  notes TEXT NOT NULL DEFAULT '',
  documents TEXT[] NOT NULL DEFAULT '{}',
  route_status TEXT NOT NULL,
  route_distance_miles DOUBLE PRECISION NULL,
  route_duration_minutes INT NULL,
  route_checked_at TIMESTAMPTZ NULL,
  route_next_check_at TIMESTAMPTZ NOT NULL,
  route_fail_count INT NOT NULL DEFAULT 0,
  route_last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`DROP INDEX IF EXISTS idx_orders_route_due`,
		`CREATE INDEX IF NOT EXISTS idx_orders_route_recheck ON orders(route_next_check_at) WHERE route_status IN ('PENDING', 'NO_ROUTE')`,
		`CREATE INDEX IF NOT EXISTS idx_orders_vehicle_status ON orders(vehicle_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_driver_status ON orders(driver_id, status)`,
		`
CREATE TABLE IF NOT EXISTS tracking_events (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  event_time TIMESTAMPTZ NOT NULL,
  location TEXT NULL,
  lat DOUBLE PRECISION NULL,
  lng DOUBLE PRECISION NULL,
  notes TEXT NULL,
  recorded_by TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_order_time ON tracking_events(order_id, event_time, id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
