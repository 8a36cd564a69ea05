package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/survivorsoul/soulsongs/internal/ctxkeys"
	"github.com/survivorsoul/soulsongs/internal/service"
	"github.com/survivorsoul/soulsongs/internal/service/payment"
)

const msgInternal = "Internal server error"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeDetail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeJSON(w, r, status, ErrorResponse{Detail: detail})
}

// writeError maps service and gateway errors to a status and a client-safe message.
// Anything unrecognized is logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *service.ValidationError
	var gatewayErr *payment.GatewayError

	switch {
	case errors.As(err, &validationErr):
		writeDetail(w, r, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &gatewayErr):
		writeDetail(w, r, http.StatusBadRequest, gatewayErr.Message)
	case errors.Is(err, payment.ErrInvalidPayload):
		writeDetail(w, r, http.StatusBadRequest, "Invalid payload")
	case errors.Is(err, payment.ErrInvalidSignature):
		writeDetail(w, r, http.StatusBadRequest, "Invalid signature")
	case errors.Is(err, service.ErrNoCustomer),
		errors.Is(err, service.ErrEmailAlreadyExists),
		errors.Is(err, service.ErrGoogleEmailUnverified):
		writeDetail(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInactiveUser),
		errors.Is(err, service.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrStorageDisabled):
		writeDetail(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", ctxkeys.RequestID(r.Context()),
		)
		writeDetail(w, r, http.StatusInternalServerError, msgInternal)
	}
}
