package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the product API, probes and the metrics handler. metrics may be nil.
func NewRouter(a *API, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID, a.withLogging, a.withRecovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Route non trouvée")
	})

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/products", func(r chi.Router) {
		// Static segments are matched before /{id}.
		r.Get("/", a.list)
		r.Get("/search", a.search)
		r.Get("/paginate", a.paginate)
		r.Get("/low-stock", a.lowStock)
		r.Get("/{id}", a.get)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Post("/", a.create)
			r.Put("/{id}", a.update)
			r.Delete("/{id}", a.remove)
			r.Put("/{id}/stock", a.setStock)
			r.Post("/{id}/reserve", a.reserve)
			r.Post("/{id}/release", a.release)
		})
	})

	return r
}
