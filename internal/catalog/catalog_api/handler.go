package catalog_api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/utils"
)

type Catalog interface {
	ListVehicles(ctx context.Context, filter models.VehicleFilter) ([]models.VehicleAvailability, error)
	GetVehicle(ctx context.Context, id string, date *models.Date) (*models.VehicleDetail, error)
}

type Handler struct {
	Catalog Catalog
	Logger  *logger.Logger
}

func NewHandler(c Catalog, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{Catalog: c, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/vehicles", func(r chi.Router) {
		r.Get("/", h.ListVehicles)
		r.Get("/{vehicleId}", h.GetVehicle)
	})
}

func journeyDate(r *http.Request) (*models.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("journey_date"))
	if raw == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, apperr.ValidationError{Field: "journey_date", Msg: err.Error()}
	}
	return &d, nil
}

func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	date, err := journeyDate(r)
	if err != nil {
		utils.WriteError(w, "Invalid query", err)
		return
	}
	filter := models.VehicleFilter{
		Origin:      r.URL.Query().Get("origin"),
		Destination: r.URL.Query().Get("destination"),
		JourneyDate: date,
	}

	vehicles, err := h.Catalog.ListVehicles(r.Context(), filter)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListVehicles: %v", err))
		utils.WriteError(w, "Could not list vehicles", err)
		return
	}
	if vehicles == nil {
		vehicles = []models.VehicleAvailability{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Vehicles retrieved", vehicles))
}

func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	date, err := journeyDate(r)
	if err != nil {
		utils.WriteError(w, "Invalid query", err)
		return
	}
	v, err := h.Catalog.GetVehicle(r.Context(), chi.URLParam(r, "vehicleId"), date)
	if err != nil {
		utils.WriteError(w, "Vehicle not available", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Vehicle retrieved", v))
}
