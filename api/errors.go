package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jeffsasaki/store-admin/errs"

	"github.com/go-chi/chi/v5/middleware"
)

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation, errs.KindSignature:
		return http.StatusBadRequest
	case errs.KindAuthentication:
		return http.StatusUnauthorized
	case errs.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with a plain-text message. Internal errors are logged
// and answered generically.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := errs.KindOf(err)
	if kind == errs.KindInternal {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err)
	}
	http.Error(w, errs.Message(err), statusFor(kind))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
