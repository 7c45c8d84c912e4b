// Package errs holds the error taxonomy shared by the dispatch core.
// Every error returned by the core classifies into one Kind; callers use KindOf
// to decide how to surface it and whether a retry makes sense.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindInternal Kind = iota
	// KindValidation: malformed input, never retried.
	KindValidation
	// KindConflict: state no longer allows the request; retry with refreshed state.
	KindConflict
	KindNotFound
	// KindDependency: mapping provider failures, retry with backoff.
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

// Error is a classified sentinel. Compare with errors.Is; add context with errors.Wrap.
type Error struct {
	kind Kind
	code string
	msg  string
}

func New(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Kind() Kind     { return e.kind }
func (e *Error) Code() string   { return e.code }

var (
	ErrInvalidInput      = New(KindValidation, "invalid_input", "invalid input")
	ErrUnknownStatus     = New(KindValidation, "unknown_status", "status is not in the configured vocabulary")
	ErrUnknownPriority   = New(KindValidation, "unknown_priority", "priority is not in the configured vocabulary")
	ErrInvalidPostalCode = New(KindValidation, "invalid_postal_code", "postal code is empty")

	ErrInvalidTransition  = New(KindConflict, "invalid_transition", "transition is not allowed from the current status")
	ErrMissingAssignment  = New(KindConflict, "missing_assignment", "order has no vehicle and driver assigned")
	ErrVehicleUnavailable = New(KindConflict, "vehicle_unavailable", "vehicle is serving another active order")
	ErrDriverUnavailable  = New(KindConflict, "driver_unavailable", "driver is serving another active order")
	ErrOrderClosed        = New(KindConflict, "order_closed", "order is in a terminal status")

	ErrOrderNotFound      = New(KindNotFound, "order_not_found", "order not found")
	ErrVehicleNotFound    = New(KindNotFound, "vehicle_not_found", "vehicle not found")
	ErrDriverNotFound     = New(KindNotFound, "driver_not_found", "driver not found")
	ErrPostalCodeNotFound = New(KindNotFound, "postal_code_not_found", "postal code has no unambiguous geocoding result")

	ErrProvider = New(KindDependency, "provider_error", "mapping provider error")
	ErrRoute    = New(KindDependency, "route_error", "mapping provider found no route")
)

// ProviderError reports a transport failure, timeout or non-OK status from the mapping provider.
type ProviderError struct {
	Op     string
	Status string
	Err    error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil && e.Status != "":
		return fmt.Sprintf("mapping provider %s: status=%s: %v", e.Op, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("mapping provider %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("mapping provider %s: status=%s", e.Op, e.Status)
	}
}

func (e *ProviderError) Unwrap() error        { return e.Err }
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// RouteError carries the provider's status string when no route could be computed.
type RouteError struct {
	Status string
}

func (e *RouteError) Error() string        { return "no route: status=" + e.Status }
func (e *RouteError) Is(target error) bool { return target == ErrRoute }

// KindOf walks the wrap chain and returns the first classification found.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return KindDependency
	}
	var re *RouteError
	if errors.As(err, &re) {
		return KindDependency
	}
	return KindInternal
}

// CodeOf returns a stable machine-readable code for API responses.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return ErrProvider.code
	}
	var re *RouteError
	if errors.As(err, &re) {
		return ErrRoute.code
	}
	return "internal"
}
