package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
// Unmatched paths and methods feed the error taxonomy instead of chi's
// plain-text defaults.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, clientErr(errPathNotFound, "%s", r.URL.Path))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, clientErr(errMethodNotAllowed, "%s", r.Method))
	})

	rateLimit := s.cfg.Server.RateLimit

	r.Route("/api", func(r chi.Router) {
		r.Use(noStore)
		r.Use(s.authenticate)

		// Login carries its own tighter rate limit tier.
		r.Group(func(r chi.Router) {
			if rateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(rateLimit.Auth))
			}

			r.Post("/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			if rateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(rateLimit.API))
			}

			r.With(s.requireSession).Post("/logout", s.handleLogout)

			// Self-service endpoints.
			r.Route("/user", func(r chi.Router) {
				r.Use(s.requireSession)

				r.Get("/", s.handleMe)
				r.Post("/password", s.handleChangePassword)
				r.Get("/sessions", s.handleListMySessions)
				r.Delete("/sessions/{id}", s.handleDeleteMySession)
			})

			// Admin endpoints.
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Get("/users", s.handleAdminListUsers)
				r.Post("/users", s.handleAdminCreateUser)
				r.Get("/users/{id}", s.handleAdminGetUser)
				r.Put("/users/{id}", s.handleAdminUpdateUser)
				r.Delete("/users/{id}", s.handleAdminDeleteUser)

				r.Post("/users/{id}/password",
					s.handleAdminResetPassword)
				r.Delete("/users/{id}/password",
					s.handleAdminDeactivateUser)
				r.Post("/users/{id}/impersonate",
					s.handleAdminImpersonate)

				r.Get("/sessions", s.handleAdminListSessions)
				r.Delete("/sessions/{id}", s.handleAdminDeleteSession)
			})
		})
	})

	// Frontend delivery for everything outside /api.
	if s.spa != nil {
		r.Get("/*", s.spa.ServeHTTP)
		r.Head("/*", s.spa.ServeHTTP)
	}

	return r
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
