package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mindfulspace.app/backend/internal/logging"
)

func NewRouter(apiHandler *APIHandler, log *logging.Logger, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(corsMiddleware(corsOrigins))

	r.Get("/", apiHandler.IndexHandler)
	r.Get("/health", apiHandler.HealthHandler)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", apiHandler.RegisterHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Post("/google", apiHandler.GoogleLoginHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)
			r.Get("/me", apiHandler.GetMeHandler)
			r.Put("/me", apiHandler.UpdateMeHandler)
		})
	})

	// Entity routes
	r.Get("/entities/{type}", apiHandler.ListEntitiesHandler)
	r.Post("/entities/{type}", apiHandler.CreateEntityHandler)
	r.Put("/entities/{type}/{id}", apiHandler.UpdateEntityHandler)
	r.Delete("/entities/{type}/{id}", apiHandler.DeleteEntityHandler)

	// Conversation routes
	r.Get("/agents/{agentName}/conversations", apiHandler.ListConversationsHandler)
	r.Post("/agents/{agentName}/conversations", apiHandler.CreateConversationHandler)
	r.Get("/conversations/{conversationID}", apiHandler.GetConversationHandler)
	r.Post("/conversations/{conversationID}/messages", apiHandler.AddMessageHandler)
	r.Post("/conversations/{conversationID}/reply", apiHandler.ReplyHandler)

	// AI routes
	r.Post("/chat", apiHandler.CompanionHandler)
	r.Post("/api/chat", apiHandler.ChatProxyHandler)
	r.Get("/exercises/suggest", apiHandler.SuggestExercisesHandler)

	return r
}
