// Package ledger is the append-only tracking history of an order and the single place
// where an order's current status is derived from it.
package ledger

import (
	"context"
	"sort"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/lifecycle"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/pkg/errors"
)

type Store interface {
	ListTrackingEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.TrackingEvent, error)
	// AppendTransition writes the event and the order's new status in one transaction.
	// It fails with errs.ErrInvalidTransition when the stored status is not commit.ExpectedStatus.
	AppendTransition(ctx context.Context, commit models.TransitionCommit) (*models.TrackingEvent, error)
}

// Fold reduces a history to the current status: the status of the last event, or initial.
func Fold(initial models.Status, events []*models.TrackingEvent) models.Status {
	st := initial
	for _, e := range events {
		st = e.Status
	}
	return st
}

type Ledger struct {
	store Store
	vocab *lifecycle.Vocabulary
}

func New(store Store, vocab *lifecycle.Vocabulary) *Ledger {
	return &Ledger{store: store, vocab: vocab}
}

// Append records one transition. The event is never rewritten afterwards.
func (l *Ledger) Append(ctx context.Context, commit models.TransitionCommit) (*models.TrackingEvent, error) {
	if commit.Event == nil {
		return nil, errors.Wrap(errs.ErrInvalidInput, "event is required")
	}
	if commit.OrderID == 0 {
		return nil, errors.Wrap(errs.ErrInvalidInput, "orderId is required")
	}
	if commit.Event.Status != commit.Status {
		return nil, errors.Wrapf(errs.ErrInvalidInput, "event status %s does not match order status %s", commit.Event.Status, commit.Status)
	}
	commit.Event.OrderID = commit.OrderID
	ev, err := l.store.AppendTransition(ctx, commit)
	if err != nil {
		return nil, err
	}
	ev.Status = l.vocab.Normalize(ev.StatusRaw)
	return ev, nil
}

// History is a fresh read of the full sequence, oldest first.
func (l *Ledger) History(ctx context.Context, orderID uint64) ([]*models.TrackingEvent, error) {
	return l.Page(ctx, orderID, 0, 0)
}

// Page is History with limit/offset; limit <= 0 means everything.
func (l *Ledger) Page(ctx context.Context, orderID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	evs, err := l.store.ListTrackingEvents(ctx, orderID, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, e := range evs {
		e.Status = l.vocab.Normalize(e.StatusRaw)
	}
	// ties keep insertion order
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].EventTime.Before(evs[j].EventTime)
	})
	return evs, nil
}

func (l *Ledger) LatestStatus(ctx context.Context, orderID uint64) (models.Status, error) {
	evs, err := l.History(ctx, orderID)
	if err != nil {
		return "", err
	}
	return Fold(l.vocab.Initial(), evs), nil
}
