package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mihaimyh/gotier/pkg/catalog"
)

// Routes builds the API router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Method(http.MethodGet, "/api/products", catalog.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.config.Auth.Required)

		r.Get("/api/user", h.GetUser)
		r.Patch("/api/user", h.PatchUser)
		r.Post("/api/stripe/unsubscribe", h.Unsubscribe)
		r.Post("/api/stripe/create-checkout", h.CreateCheckout)
		r.Get("/api/stripe/get-session-status", h.SessionStatus)
	})

	if h.config.Webhook != nil {
		r.Handle("/api/stripe/webhooks", h.config.Webhook)
		r.Handle("/api/webhooks/stripe", h.config.Webhook)
	}
	if h.config.AuthRoutes != nil {
		r.Mount("/auth", h.config.AuthRoutes)
	}
	return r
}
