// Package orders_api is the HTTP surface of the dispatch core.
package orders_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/lifecycle"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/BearBump/FreightDesk/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uint64) (*models.Order, error)
	Assign(ctx context.Context, id uint64, vehicleID, driverID string, handlerID *string) (*models.Order, error)
	Transition(ctx context.Context, id uint64, req orders.TransitionRequest) (*models.Order, *models.TrackingEvent, error)
	ChangePriority(ctx context.Context, id uint64, label string) (*models.Order, error)
	Tracking(ctx context.Context, id uint64, limit, offset int) ([]*models.TrackingEvent, error)
	Vocabulary() lifecycle.Description
	UpsertVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error)
	UpsertDriver(ctx context.Context, d models.Driver) (*models.Driver, error)
}

type DistanceEstimator interface {
	Estimate(ctx context.Context, fromPostal, toPostal string) (float64, error)
	Driving(ctx context.Context, fromPostal, toPostal string) (models.DrivingRoute, error)
}

type OrdersAPI struct {
	svc  OrderService
	dist DistanceEstimator
	auth *Authenticator
	log  *slog.Logger
}

// New builds the API; auth may be nil to serve without authentication.
func New(svc OrderService, dist DistanceEstimator, auth *Authenticator, log *slog.Logger) *OrdersAPI {
	if log == nil {
		log = slog.Default()
	}
	return &OrdersAPI{svc: svc, dist: dist, auth: auth, log: log}
}

// Register mounts the API routes on r.
func (a *OrdersAPI) Register(r chi.Router) {
	r.Get("/vocabulary", a.getVocabulary)

	r.Group(func(r chi.Router) {
		if a.auth != nil {
			r.Use(a.auth.Middleware)
		}

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", a.createOrder)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getOrder)
				r.Patch("/assign", a.assign)
				r.Patch("/status", a.changeStatus)
				r.Patch("/priority", a.changePriority)
				r.Get("/tracking", a.tracking)
			})
		})
		r.Get("/distance", a.distance)
		r.Put("/vehicles/{id}", a.putVehicle)
		r.Put("/drivers/{id}", a.putDriver)
	})
}

func (a *OrdersAPI) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !a.decode(w, r, &req) {
		return
	}
	o, err := a.svc.CreateOrder(r.Context(), models.OrderCreateInput{
		CustomerID:      req.CustomerID,
		PickupAddress:   req.PickupAddress,
		PickupPostal:    req.PickupPostal,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryPostal:  req.DeliveryPostal,
		PickupDate:      req.PickupDate,
		Priority:        req.Priority,
		Cargo:           models.Cargo(req.Cargo),
		Notes:           req.Notes,
		Documents:       req.Documents,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(o))
}

func (a *OrdersAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := a.orderID(w, r)
	if !ok {
		return
	}
	o, err := a.svc.GetOrder(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (a *OrdersAPI) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := a.orderID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if !a.decode(w, r, &req) {
		return
	}
	o, err := a.svc.Assign(r.Context(), id, req.VehicleID, req.DriverID, req.HandlerID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (a *OrdersAPI) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.orderID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !a.decode(w, r, &req) {
		return
	}
	o, ev, err := a.svc.Transition(r.Context(), id, orders.TransitionRequest{
		Status:     req.Status,
		Location:   req.Location,
		PostalCode: req.PostalCode,
		Notes:      req.Notes,
		RecordedBy: ActorFrom(r.Context()),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Order: toOrderDTO(o), Event: toEventDTO(ev)})
}

func (a *OrdersAPI) changePriority(w http.ResponseWriter, r *http.Request) {
	id, ok := a.orderID(w, r)
	if !ok {
		return
	}
	var req priorityRequest
	if !a.decode(w, r, &req) {
		return
	}
	o, err := a.svc.ChangePriority(r.Context(), id, req.Priority)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (a *OrdersAPI) tracking(w http.ResponseWriter, r *http.Request) {
	id, ok := a.orderID(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	offset, err := intQuery(r, "offset")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	evs, err := a.svc.Tracking(r.Context(), id, limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toEventDTOs(evs)})
}

func (a *OrdersAPI) distance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp := distanceResponse{From: q.Get("from"), To: q.Get("to"), Mode: q.Get("mode")}
	if resp.Mode == "" {
		resp.Mode = "estimate"
	}

	switch resp.Mode {
	case "estimate":
		miles, err := a.dist.Estimate(r.Context(), resp.From, resp.To)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		resp.DistanceMiles = miles
	case "driving":
		route, err := a.dist.Driving(r.Context(), resp.From, resp.To)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		resp.DistanceMiles = route.DistanceMiles
		resp.DurationMinutes = &route.DurationMinutes
	default:
		a.writeError(w, r, errors.Wrapf(errs.ErrInvalidInput, "mode %q", resp.Mode))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *OrdersAPI) getVocabulary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Vocabulary())
}

func (a *OrdersAPI) putVehicle(w http.ResponseWriter, r *http.Request) {
	var req fleetRequest
	if !a.decode(w, r, &req) {
		return
	}
	v, err := a.svc.UpsertVehicle(r.Context(), models.Vehicle{
		ID:     chi.URLParam(r, "id"),
		Name:   req.Name,
		Active: req.Active == nil || *req.Active,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fleetDTO{ID: v.ID, Name: v.Name, Active: v.Active, UpdatedAt: v.UpdatedAt})
}

func (a *OrdersAPI) putDriver(w http.ResponseWriter, r *http.Request) {
	var req fleetRequest
	if !a.decode(w, r, &req) {
		return
	}
	d, err := a.svc.UpsertDriver(r.Context(), models.Driver{
		ID:     chi.URLParam(r, "id"),
		Name:   req.Name,
		Active: req.Active == nil || *req.Active,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fleetDTO{ID: d.ID, Name: d.Name, Active: d.Active, UpdatedAt: d.UpdatedAt})
}

func (a *OrdersAPI) orderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		a.writeError(w, r, errors.Wrap(errs.ErrInvalidInput, "order id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (a *OrdersAPI) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.writeError(w, r, errors.Wrapf(errs.ErrInvalidInput, "decode body: %v", err))
		return false
	}
	return true
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(errs.ErrInvalidInput, "%s must be an integer", name)
	}
	return n, nil
}
