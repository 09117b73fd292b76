/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:    Unique ID per request for tracing
  2. RequestLog:   Structured request log (zerolog)
  3. Recover:      Panic recovery (generic 500 page instead of crash)
  4. StripSlashes: "/login/" and "/login" are the same route
  5. CORS:         Cross-origin requests for the front end
  6. Identity:     Puts the session identity, if any, on the context

ROUTE GROUPS:
  Public:        /, /home, /about, /login, /logout
  Pages (auth):  Catalogs and /solicitudes/capturar. Redirect to / otherwise
  JSON (auth):   /solicitudes/get, /solicitudes/delete, /periodo/get.
                 Redirect to / otherwise
  Submit (auth): /solicitudes/post. {"success": false} otherwise

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Logging, recovery and auth gates
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/consad/compras/requisition"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(h.LoadIdentity)

	r.NotFound(NotFound)

	// Public
	r.Get("/", h.Home)
	r.Get("/home", h.Home)
	r.Get("/home/{token}", h.Home)
	r.Get("/about", h.About)
	r.Post("/login", h.Login)
	r.Get("/logout", h.Logout)

	// Pages
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)

		r.Get("/materiales", h.ShowCatalog(requisition.CatalogMaterials))
		r.Get("/grupos", h.ShowCatalog(requisition.CatalogGroups))
		r.Get("/usuarios", h.ShowCatalog(requisition.CatalogUsers))
		r.Get("/zonas", h.ShowCatalog(requisition.CatalogZones))
		r.Get("/departamentos", h.ShowCatalog(requisition.CatalogDepartments))
		r.Get("/periodo", h.ShowCatalog(requisition.CatalogPeriods))

		r.Get("/solicitudes/capturar", h.ShowCatalog(requisition.CatalogCapture))
		r.Post("/solicitudes/get", h.ListRequisitions)
		r.Post("/solicitudes/delete", h.DeleteRequisition)

		r.Get("/periodo/get", h.ListPeriods)
		r.Post("/periodo/get", h.ListPeriods)
	})

	// Submission answers in JSON even when logged out.
	r.With(RequireAuthJSON).Post("/solicitudes/post", h.SubmitRequisition)

	return r
}

// NotFound renders the placeholder page for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writePage(w, http.StatusNotFound, "No encontrado", "La página solicitada no existe.")
}
