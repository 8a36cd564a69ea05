package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/survivorsoul/soulsongs/internal/ctxkeys"
	"github.com/survivorsoul/soulsongs/internal/service"
	"github.com/survivorsoul/soulsongs/internal/service/payment"
)

// maxWebhookBytes caps webhook bodies; processor events are far smaller.
const maxWebhookBytes = 1 << 20

type CheckoutSessionRequest struct {
	PriceID    string `json:"price_id" validate:"required,max=255"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

type PortalRequest struct {
	ReturnURL string `json:"return_url" validate:"required,url"`
}

type PortalResponse struct {
	URL string `json:"url"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type BillingHandler struct {
	billingService *service.BillingService
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req CheckoutSessionRequest
	err := decode(r, &req)
	if err != nil {
		writeDetail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.billingService.InitiateCheckout(r.Context(), user, service.CheckoutRequest{
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, session)
}

func (h *BillingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	status, err := h.billingService.SubscriptionStatus(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, status)
}

func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req PortalRequest
	err := decode(r, &req)
	if err != nil {
		writeDetail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	url, err := h.billingService.CustomerPortal(r.Context(), user, req.ReturnURL)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, PortalResponse{URL: url})
}

// Webhook takes the raw body: the signature covers the exact bytes sent.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer func() {
		closeErr := r.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close request body", "error", closeErr)
		}
	}()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		slog.Warn("failed to read webhook payload", "error", err)
		writeError(w, r, payment.ErrInvalidPayload)
		return
	}

	// Verification failures map to 400; anything else is a 500 so the processor redelivers.
	err = h.billingService.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, StatusResponse{Status: "success"})
}
