/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests from the configured origins

ROUTE GROUPS:
  /api/calendars/*      Calendar catalog
  /api/resources/*      Resource catalog and load
  /api/tasks/*          Tasks and their allocations
  /api/queues           Limiting resource queues
  /api/consolidation/*  Consolidation runs
  /api/scenarios/*      Demo scenarios
  /api/plans            Plan documents
  /                     Endpoint index

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/planner/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/calendars", func(r chi.Router) {
			r.Get("/", h.ListCalendars)
			r.Post("/", h.SaveCalendar)
		})

		r.Route("/resources", func(r chi.Router) {
			r.Get("/", h.ListResources)
			r.Post("/", h.SaveResource)
			r.Get("/load", h.GetResourceLoad)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetTask)
				r.Delete("/", h.RemoveTask)
				r.Get("/view", h.GetTaskView)
				r.Post("/resize", h.ResizeTask)
				r.Post("/move", h.MoveTask)
				r.Post("/consolidate", h.ConsolidateTask)

				r.Post("/allocations", h.AddAllocation)
				r.Route("/allocations/{alloc}", func(r chi.Router) {
					r.Delete("/", h.RemoveAllocation)
					r.Post("/allocate", h.Allocate)
					r.Put("/function", h.SetFunction)
					r.Put("/items", h.EditItem)
					r.Post("/enqueue", h.Enqueue)
					r.Post("/requeue", h.Requeue)
				})
			})
		})

		r.Get("/queues", h.ListQueues)

		r.Route("/consolidation", func(r chi.Router) {
			r.Get("/runs", h.ListConsolidationRuns)
			r.Post("/process", h.ProcessConsolidation)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})

		r.Post("/plans", h.ApplyPlan)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Allocation Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Allocation Engine API</h1>
<ul>
<li><a href="/api/tasks">/api/tasks</a> - List tasks</li>
<li><a href="/api/resources">/api/resources</a> - List resources</li>
<li><a href="/api/queues">/api/queues</a> - Limiting queues</li>
<li><a href="/api/scenarios">/api/scenarios</a> - List scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
