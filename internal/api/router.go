package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	// FilesDir, when set, is served under /files for the local object store.
	FilesDir string
}

func NewRouter(apiHandler *APIHandler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Handle("/metrics", promhttp.Handler())
	if opts.FilesDir != "" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(opts.FilesDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/conversations", apiHandler.CreateConversationHandler)
			r.Get("/conversations", apiHandler.ListConversationsHandler)
			r.Get("/conversations/{conversationID}", apiHandler.GetConversationHandler)
			r.Post("/conversations/{conversationID}/messages", apiHandler.PostMessageHandler)
			r.Get("/conversations/{conversationID}/messages/{messageID}/stream", apiHandler.StreamAnswerHandler)

			r.Post("/messages/{messageID}/feedback", apiHandler.MessageFeedbackHandler)
			r.Post("/queries/classify", apiHandler.ClassifyQueryHandler)

			r.Get("/documents", apiHandler.ListDocumentsHandler)
			r.Get("/documents/{documentID}", apiHandler.GetDocumentHandler)

			r.Group(func(r chi.Router) {
				r.Use(apiHandler.RequireRole)

				r.Post("/documents", apiHandler.CreateDocumentHandler)
				r.Post("/documents/upload", apiHandler.UploadDocumentHandler)
				r.Post("/documents/import", apiHandler.ImportDocumentsHandler)
				r.Post("/documents/{documentID}/publish", apiHandler.PublishDocumentHandler)
				r.Post("/documents/{documentID}/resync", apiHandler.ResyncDocumentHandler)
			})
		})
	})

	return r
}
