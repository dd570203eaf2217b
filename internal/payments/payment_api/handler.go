package payment_api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/payments"
	"ms-reservation/internal/utils"
)

const SecretHeader = "X-Payment-Secret"

type Handler struct {
	Processor *payments.Processor
	Logger    *logger.Logger
	Secret    string
}

func NewHandler(p *payments.Processor, secret string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{Processor: p, Logger: log, Secret: secret}
}

// RegisterRoutes mounts the gateway callback. It sits outside user auth and is
// guarded by the shared secret instead.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/payments/notifications", h.Notify)
}

func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.Logger.LogSecurity("PAYMENT_CALLBACK_REJECTED", fmt.Sprintf("bad secret from %s", r.RemoteAddr))
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid payment secret"))
		return
	}

	var n payments.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		utils.WriteError(w, "Invalid request payload", apperr.ValidationError{Field: "body", Msg: "malformed JSON", Err: err})
		return
	}

	b, err := h.Processor.Apply(r.Context(), n)
	if err != nil {
		h.Logger.Warn("PAYMENT", fmt.Sprintf("Notification for order %s failed: %v", n.OrderID, err))
		utils.WriteError(w, "Notification not applied", err)
		return
	}
	if b == nil {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("No booking for order", nil))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Notification applied", map[string]string{
		"booking_id": b.ID,
		"status":     string(b.Status),
	}))
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.Secret == "" {
		return false
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) == 1
}
