package orders_api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BearBump/FreightDesk/internal/integrations/maps/fake"
	"github.com/BearBump/FreightDesk/internal/lifecycle"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/BearBump/FreightDesk/internal/services/dispatch"
	"github.com/BearBump/FreightDesk/internal/services/distance"
	"github.com/BearBump/FreightDesk/internal/services/geocoding"
	"github.com/BearBump/FreightDesk/internal/services/orders"
	"github.com/BearBump/FreightDesk/internal/storage/memstore"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const token = "secret-1"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	vocab := lifecycle.MustDefault()
	maps := fake.New()
	geo := geocoding.New(maps, nil, "US", log)
	svc := orders.New(store, vocab, dispatch.NewResolver(store, vocab), geo, nil, nil, orders.Options{}, log)

	r := chi.NewRouter()
	New(svc, distance.NewEstimator(geo, maps), NewAuthenticator(map[string]string{token: "dispatcher-1"}), log).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestOrdersAPI_Flow(t *testing.T) {
	srv := newServer(t)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/vehicles/V1", map[string]any{"name": "Truck 1"}, nil))
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/drivers/D1", map[string]any{}, nil))

	var created orderDTO
	code := do(t, srv, http.MethodPost, "/orders", map[string]any{
		"customerId":     "C1",
		"pickupPostal":   "10001",
		"deliveryPostal": "02108",
		"cargo":          map[string]any{"pieces": 3, "weightLbs": 1200.5},
	}, &created)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "PENDING", created.Status)
	require.Equal(t, "NORMAL", created.Priority)
	require.Equal(t, 3, *created.Cargo.Pieces)

	path := "/orders/" + jsonID(created.ID)

	var assigned orderDTO
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPatch, path+"/assign", map[string]any{"vehicleId": "V1", "driverId": "D1"}, &assigned))
	require.Equal(t, "V1", assigned.Assignment.VehicleID)

	var st statusResponse
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPatch, path+"/status", map[string]any{
		"status": "ASSIGNED", "postalCode": "10001", "location": "Yard 4",
	}, &st))
	require.Equal(t, "ASSIGNED", st.Order.Status)
	require.Equal(t, "ASSIGNED", st.Event.Status)
	require.NotNil(t, st.Event.Coordinate)
	require.Equal(t, "dispatcher-1", *st.Event.RecordedBy)

	var errResp errorResponse
	require.Equal(t, http.StatusConflict, do(t, srv, http.MethodPatch, path+"/status", map[string]any{"status": "DELIVERED"}, &errResp))
	require.Equal(t, "invalid_transition", errResp.Code)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPatch, path+"/status", map[string]any{"status": "IN_TRANSIT"}, nil))
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPatch, path+"/priority", map[string]any{"priority": "URGENT"}, nil))

	var tr struct {
		Events []eventDTO `json:"events"`
	}
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, path+"/tracking", nil, &tr))
	require.Len(t, tr.Events, 2)
	require.Equal(t, "IN_TRANSIT", tr.Events[1].Status)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, path+"/tracking?limit=1&offset=1", nil, &tr))
	require.Len(t, tr.Events, 1)

	var got orderDTO
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, path, nil, &got))
	require.Equal(t, "IN_TRANSIT", got.Status)
	require.Equal(t, "URGENT", got.Priority)
}

func TestOrdersAPI_Errors(t *testing.T) {
	srv := newServer(t)

	var e errorResponse
	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/orders/42", nil, &e))
	require.Equal(t, "order_not_found", e.Code)

	require.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/orders/abc", nil, &e))
	require.Equal(t, "invalid_input", e.Code)

	require.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/orders", map[string]any{"bogus": 1}, &e))

	var created orderDTO
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/orders", map[string]any{
		"customerId": "C1", "pickupPostal": "10001", "deliveryPostal": "02108",
	}, &created))
	path := "/orders/" + jsonID(created.ID)

	require.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPatch, path+"/status", map[string]any{"status": "LOST"}, &e))
	require.Equal(t, "unknown_status", e.Code)

	require.Equal(t, http.StatusConflict, do(t, srv, http.MethodPatch, path+"/status", map[string]any{"status": "ASSIGNED"}, &e))
	require.Equal(t, "missing_assignment", e.Code)

	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPatch, path+"/status", map[string]any{"status": "CANCELLED", "postalCode": "00000"}, &e))
	require.Equal(t, "postal_code_not_found", e.Code)

	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPatch, path+"/assign", map[string]any{"vehicleId": "V9", "driverId": "D9"}, &e))
	require.Equal(t, "vehicle_not_found", e.Code)
}

func TestOrdersAPI_Distance(t *testing.T) {
	srv := newServer(t)

	var d distanceResponse
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/distance?from=10001&to=90001", nil, &d))
	require.Equal(t, "estimate", d.Mode)
	require.InDelta(t, 2445.6, d.DistanceMiles, 0.5)
	require.Nil(t, d.DurationMinutes)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/distance?from=10001&to=02108&mode=driving", nil, &d))
	require.NotNil(t, d.DurationMinutes)
	require.Greater(t, d.DistanceMiles, 0.0)

	var e errorResponse
	require.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/distance?from=&to=02108", nil, &e))
	require.Equal(t, "invalid_postal_code", e.Code)

	require.Equal(t, http.StatusBadGateway, do(t, srv, http.MethodGet, "/distance?from=10001&to=96799&mode=driving", nil, &e))
	require.Equal(t, "route_error", e.Code)

	require.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/distance?from=10001&to=02108&mode=flying", nil, &e))
}

func TestOrdersAPI_AuthAndVocabulary(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/orders/1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/orders/1", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// vocabulary is public
	resp, err = http.Get(srv.URL + "/vocabulary")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var desc lifecycle.Description
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&desc))
	require.Equal(t, "PENDING", desc.Initial)
	require.Contains(t, desc.Statuses, string(models.StatusInTransit))
}

func TestActorFrom_Unauthenticated(t *testing.T) {
	require.Nil(t, ActorFrom(context.Background()))
	require.Nil(t, NewAuthenticator(nil))
}

func jsonID(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
