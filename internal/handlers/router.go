// internal/handlers/router.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samyarj/polyhoot/internal/middleware"
)

// NewRouter wires the HTTP API and the websocket endpoint.
func NewRouter(gs *GameServer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.LogMiddleware(gs.Logger))
	r.Use(chimw.Recoverer)

	r.Use(chimw.Heartbeat("/ping"))

	origins := gs.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/stats", gs.StatsHandler)
	r.Route("/games/{code}", func(r chi.Router) {
		r.Get("/", gs.GameInfoHandler)
		r.Get("/qr", gs.GameQRHandler)
	})
	r.Get("/ws", gs.GameWSHandler)
	return r
}
