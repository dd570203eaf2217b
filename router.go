package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ms-reservation/internal/auth"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/utils"
)

type routeRegistrar interface {
	RegisterRoutes(r chi.Router)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func healthHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("unhealthy", "database unreachable"))
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	}
}

// newRouter mounts public routes as given and everything in protected behind
// bearer token auth.
func newRouter(log *logger.Logger, verifier auth.TokenVerifier, db pinger, public []routeRegistrar, protected []routeRegistrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware)

	r.Get("/healthz", healthHandler(db))
	for _, h := range public {
		h.RegisterRoutes(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))
		for _, h := range protected {
			h.RegisterRoutes(r)
		}
	})
	return r
}
