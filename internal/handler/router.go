package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/agrotender/internal/middleware"
	"github.com/mmeshcher/agrotender/internal/telemetry"
)

// SetupRouter настраивает HTTP-маршруты и middleware административного API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(telemetry.HTTPMiddleware("agrotender"))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/tenders/{tenderID}", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/close", h.CloseTender)
		r.Post("/evaluate", h.Evaluate)
		r.Get("/ranking", h.Ranking)
		r.Post("/award", h.Award)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
