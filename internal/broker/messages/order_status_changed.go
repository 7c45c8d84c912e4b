package messages

import "time"

// OrderStatusChanged is published after every committed transition.
type OrderStatusChanged struct {
	EventID     string    `json:"event_id"`
	OrderID     uint64    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	EventTime   time.Time `json:"event_time"`
	Location    *string   `json:"location,omitempty"`
	RecordedBy  *string   `json:"recorded_by,omitempty"`

	VocabularyVersion int `json:"vocabulary_version"`
}
