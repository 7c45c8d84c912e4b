package orders_api

import (
	"encoding/json"
	"net/http"

	"github.com/BearBump/FreightDesk/internal/errs"
)

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *OrdersAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	code := statusFor(kind)
	msg := err.Error()
	if kind == errs.KindInternal {
		a.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeJSON(w, code, errorResponse{Code: errs.CodeOf(err), Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
