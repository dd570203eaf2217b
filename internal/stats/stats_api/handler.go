package stats_api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/auth"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/utils"
)

type StatsService interface {
	Stats(ctx context.Context, userID string, now time.Time) (models.UserStats, error)
}

type Handler struct {
	Service StatsService
	Logger  *logger.Logger
	Now     func() time.Time
}

func NewHandler(svc StatsService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{Service: svc, Logger: log, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/users/me/booking-stats", h.GetStats)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.Stats(r.Context(), auth.UserID(r.Context()), h.Now())
	if err != nil {
		utils.WriteError(w, "Could not compute stats", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking stats", st))
}
