package models

import "time"

type TrackingEvent struct {
	ID      uint64
	OrderID uint64
	// Status is the canonical label; StatusRaw is what was stored when the event was written.
	Status     Status
	StatusRaw  string
	EventTime  time.Time
	Location   *string
	Coordinate *Coordinate
	Notes      *string
	RecordedBy *string
	CreatedAt  time.Time
}

// EventMeta is the optional payload a caller attaches to a transition.
type EventMeta struct {
	Location   *string
	PostalCode *string
	Coordinate *Coordinate
	Notes      *string
	RecordedBy *string
}
