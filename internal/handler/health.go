package handler

import (
	"net/http"
)

type HealthResponse struct {
	Status     string `json:"status"`
	App        string `json:"app"`
	StripeMode string `json:"stripe_mode"`
}

type HealthHandler struct {
	appName    string
	stripeMode string
}

func NewHealthHandler(appName, stripeMode string) *HealthHandler {
	return &HealthHandler{appName: appName, stripeMode: stripeMode}
}

// Health is a liveness probe. It does not touch the database or the processor.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:     "healthy",
		App:        h.appName,
		StripeMode: h.stripeMode,
	})
}
