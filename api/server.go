/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the browser frontend

ROUTE GROUPS:
  /health                  Liveness
  /api/working-times/*     Working times and their task durations
  /api/working-time-types  Working-time types
  /api/tasks/*             Task search and recent tasks
  /api/scenarios/*         Demo scenarios (local backends)

SECURITY NOTE:
  No authentication middleware. The server binds to 127.0.0.1 by default
  and acts with the configured time-tracking account.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. An empty
// allowedOrigins list allows any origin.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Working time routes
		r.Route("/working-times", func(r chi.Router) {
			r.Get("/", h.ListWorkingTimes)
			r.Post("/", h.CreateWorkingTime)
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", h.UpdateWorkingTime)
				r.Delete("/", h.DeleteWorkingTime)
				r.Get("/durations", h.GetDurations)
				r.Put("/durations", h.ReplaceDurations)
				r.Post("/durations", h.AddDuration)
				r.Put("/durations/{taskID}", h.SetDuration)
				r.Delete("/durations/{taskID}", h.DeleteDuration)
				r.Post("/nothing-to-allocate", h.MarkNothingToAllocate)
			})
		})

		r.Get("/working-time-types", h.ListWorkingTimeTypes)

		// Task routes
		r.Get("/tasks/search", h.SearchTasks)
		r.Get("/tasks/recent", h.RecentTasks)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
