package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Routes returns the HTTP handler for the whole API.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: g.logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: g.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Recurso no encontrado.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Método no permitido.")
	})

	r.Get("/health", g.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/turnos", g.handleNextAvailable)
		for _, rt := range publicRoutes {
			r.Method(rt.method, rt.path, g.forward(rt))
		}

		r.Route("/admin", func(r chi.Router) {
			if g.adminSecret != nil {
				r.Use(g.authMiddleware)
			}
			for _, rt := range adminRoutes {
				r.Method(rt.method, rt.path, g.forward(rt))
			}
		})
	})
	return r
}
