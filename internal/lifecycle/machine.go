package lifecycle

import (
	"time"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/pkg/errors"
)

// Machine applies the vocabulary's transition table to an order.
// It is pure: it never touches storage, the caller commits the result.
type Machine struct {
	vocab *Vocabulary
}

func NewMachine(vocab *Vocabulary) *Machine {
	return &Machine{vocab: vocab}
}

func (m *Machine) Vocabulary() *Vocabulary { return m.vocab }

// Transition validates moving order to target and returns the updated order together with
// the one tracking event that records it. On error the order is returned unchanged.
func (m *Machine) Transition(order models.Order, target string, meta models.EventMeta, at time.Time) (models.Order, *models.TrackingEvent, error) {
	to, err := m.vocab.Parse(target)
	if err != nil {
		return order, nil, err
	}

	from := m.vocab.Normalize(string(order.Status))
	if !m.vocab.CanTransition(from, to) {
		return order, nil, errors.Wrapf(errs.ErrInvalidTransition, "order %d: %s -> %s", order.ID, from, to)
	}
	if m.vocab.RequiresAssignment(to) && !order.Assignment.Complete() {
		return order, nil, errors.Wrapf(errs.ErrMissingAssignment, "order %d: %s", order.ID, to)
	}

	at = at.UTC()
	// ledger order must stay non-decreasing even if the clock steps back
	if order.StatusAt != nil && at.Before(*order.StatusAt) {
		at = *order.StatusAt
	}

	next := order
	next.Status = to
	next.StatusAt = &at
	if m.vocab.SetsDeliveryDate(to) && next.DeliveryDate == nil {
		d := at
		next.DeliveryDate = &d
	}

	ev := &models.TrackingEvent{
		OrderID:    order.ID,
		Status:     to,
		StatusRaw:  string(to),
		EventTime:  at,
		Location:   meta.Location,
		Coordinate: meta.Coordinate,
		Notes:      meta.Notes,
		RecordedBy: meta.RecordedBy,
	}
	return next, ev, nil
}
