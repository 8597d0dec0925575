package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(apiHandler *APIHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", apiHandler.HealthHandler)
		r.Post("/register", apiHandler.RegisterHandler)
		r.Post("/login", apiHandler.LoginHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/logout", apiHandler.LogoutHandler)
			r.Get("/me", apiHandler.MeHandler)
			r.Get("/me/summary", apiHandler.MySummaryHandler)

			r.Get("/chat/history", apiHandler.HistoryHandler)
			r.Delete("/chat/history", apiHandler.ClearHistoryHandler)
			r.Post("/chat/messages", apiHandler.PostMessageHandler)
			r.Post("/chat/feedback", apiHandler.FeedbackHandler)

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminOnly)
				r.Get("/users", apiHandler.ListUsersHandler)
				r.Delete("/users/{username}", apiHandler.DeleteUserHandler)
				r.Get("/users/{username}/summary", apiHandler.UserSummaryHandler)
				r.Get("/dashboard", apiHandler.DashboardHandler)
				r.Post("/cleanup", apiHandler.CleanupHandler)
			})
		})
	})

	return r
}
