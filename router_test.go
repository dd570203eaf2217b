package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"ms-reservation/internal/auth"
	"ms-reservation/internal/logger"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type staticVerifier map[string]string

func (v staticVerifier) Verify(_ context.Context, token string) (string, error) {
	if sub, ok := v[token]; ok {
		return sub, nil
	}
	return "", errors.New("unknown token")
}

type whoami struct{}

func (whoami) RegisterRoutes(r chi.Router) {
	r.Get("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(auth.UserID(r.Context())))
	})
}

type open struct{}

func (open) RegisterRoutes(r chi.Router) {
	r.Post("/api/payments/notifications", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
}

func serve(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter(t *testing.T) {
	h := newRouter(logger.Discard(), staticVerifier{"tok": "alice"}, fakePinger{},
		[]routeRegistrar{open{}}, []routeRegistrar{whoami{}})

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusAccepted, serve(h, http.MethodPost, "/api/payments/notifications", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/whoami", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/whoami", "bad").Code)

	rec := serve(h, http.MethodGet, "/api/whoami", "tok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestHealthReportsDatabase(t *testing.T) {
	h := newRouter(logger.Discard(), staticVerifier{}, fakePinger{err: errors.New("down")}, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, http.MethodGet, "/healthz", "").Code)
}
