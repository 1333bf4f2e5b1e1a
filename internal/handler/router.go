package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ManuelEspejo/DreamDX-AI/internal/handler/dreams"
	"github.com/ManuelEspejo/DreamDX-AI/internal/handler/stream"
	middlewarePkg "github.com/ManuelEspejo/DreamDX-AI/internal/middleware"
	"github.com/ManuelEspejo/DreamDX-AI/internal/service/narrative"
	"github.com/ManuelEspejo/DreamDX-AI/internal/service/session"
	"github.com/ManuelEspejo/DreamDX-AI/pkg/utils"
)

// NewRouter wires HTTP routes to core services. orch may be nil when
// the narrative provider is unconfigured.
func NewRouter(sessions *session.Manager, orch *narrative.Orchestrator) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	dreamsHandler := dreams.New(sessions, orch)

	var streamHandler *stream.Handler
	if orch != nil {
		streamHandler = stream.New(orch)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.Identity)

		dreamsHandler.RegisterRoutes(api)

		api.Get("/dreams/{sessionID}/stream", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			action := r.URL.Query().Get("action")
			ownerID := middlewarePkg.UserID(r.Context())

			if streamHandler == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "narrative streaming unavailable")
				return
			}
			if action == "" {
				utils.RespondError(w, http.StatusBadRequest, "action query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, ownerID, action); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})
	})

	return r
}
