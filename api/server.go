/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RequestLog: One logrus line per request (method, path, status, duration)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests, origins from config

ROUTE GROUPS:
  /api/condominiums/*     Directory: condominiums, buildings, rosters
  /api/buildings/*        Units
  /api/concepts/*         Concepts, assignments, preview, generation, quotas
  /api/assignments/*      Assignment deactivation
  /api/formulas/*         Quota formulas
  /api/rules/*            Generation rules
  /api/generation-logs    Generation audit
  /api/scheduler/run      One scheduled-generation pass on demand
  /api/scenarios/*        Demo scenarios

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured. An empty
// allowedOrigins allows any origin.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		// Directory routes
		r.Route("/condominiums", func(r chi.Router) {
			r.Get("/", h.ListCondominiums)
			r.Post("/", h.CreateCondominium)
			r.Post("/{id}/buildings", h.CreateBuilding)
			r.Get("/{id}/units", h.ListUnits)
		})
		r.Route("/buildings", func(r chi.Router) {
			r.Post("/{id}/units", h.CreateUnit)
		})

		// Concept routes
		r.Route("/concepts", func(r chi.Router) {
			r.Post("/", h.CreateConcept)
			r.Get("/{id}", h.GetConcept)
			r.Get("/{id}/preview", h.PreviewConcept)
			r.Get("/{id}/elapsed", h.GetElapsedPeriods)
			r.Post("/{id}/assignments", h.CreateAssignment)
			r.Post("/{id}/generate", h.GenerateQuotas)
			r.Get("/{id}/quotas", h.ListQuotas)
		})
		r.Route("/assignments", func(r chi.Router) {
			r.Delete("/{id}", h.DeactivateAssignment)
		})

		// Formula and rule routes
		r.Route("/formulas", func(r chi.Router) {
			r.Post("/", h.CreateFormula)
			r.Get("/{id}/amount", h.CalculateFormulaAmount)
		})
		r.Route("/rules", func(r chi.Router) {
			r.Post("/", h.CreateRule)
			r.Put("/{id}", h.UpdateRule)
			r.Delete("/{id}", h.DeactivateRule)
			r.Get("/condominium/{id}", h.ListRules)
			r.Get("/condominium/{id}/applicable", h.GetApplicableRule)
			r.Get("/condominium/{id}/effective", h.GetEffectiveRules)
		})

		r.Get("/generation-logs", h.ListGenerationLogs)
		r.Post("/scheduler/run", h.RunScheduledGeneration)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger writes one structured line per request.
func requestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			}).Info("request")
		})
	}
}
