package dreams

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuelEspejo/DreamDX-AI/internal/middleware"
	"github.com/ManuelEspejo/DreamDX-AI/internal/model/dream"
	"github.com/ManuelEspejo/DreamDX-AI/internal/service/narrative"
	"github.com/ManuelEspejo/DreamDX-AI/internal/service/session"
	"github.com/ManuelEspejo/DreamDX-AI/pkg/utils"
)

// Handler exposes the dream session operations over HTTP. It owns no
// business logic: requests are translated into session manager or
// orchestrator calls and errors into status codes.
type Handler struct {
	sessions *session.Manager
	orch     *narrative.Orchestrator
}

// New creates a dreams handler. orch may be nil when the narrative
// provider is not configured; generation endpoints then answer 503
// while lifecycle endpoints keep working.
func New(sessions *session.Manager, orch *narrative.Orchestrator) *Handler {
	return &Handler{
		sessions: sessions,
		orch:     orch,
	}
}

// RegisterRoutes mounts the dream routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/dreams", h.handleStart)
	r.Get("/dreams", h.handleList)
	r.Get("/dreams/{sessionID}", h.handleGet)
	r.Delete("/dreams/{sessionID}", h.handleDelete)
	r.Post("/dreams/{sessionID}/continue", h.handleContinue)
	r.Post("/dreams/{sessionID}/wake-up", h.handleWakeUp)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Description string `json:"description"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.orch == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "narrative generation unavailable")
		return
	}

	ownerID := middleware.UserID(r.Context())
	sess, turn, err := h.orch.Start(r.Context(), ownerID, payload.Description)
	if err != nil {
		// The session may have been created before generation
		// failed; hand its id back so the client can resume.
		if sess != nil {
			utils.RespondJSON(w, StatusFromError(err), map[string]string{
				"error":     err.Error(),
				"sessionId": sess.ID,
			})
			return
		}
		utils.RespondError(w, StatusFromError(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"sessionId": sess.ID,
		"status":    sess.Status,
		"version":   sess.Version,
		"turn":      turn,
	})
}

func (h *Handler) handleContinue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action string `json:"action"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.orch == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "narrative generation unavailable")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	ownerID := middleware.UserID(r.Context())

	turn, version, err := h.orch.Continue(r.Context(), sessionID, ownerID, payload.Action)
	if err != nil {
		utils.RespondError(w, StatusFromError(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"version":   version,
		"turn":      turn,
	})
}

func (h *Handler) handleWakeUp(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ownerID := middleware.UserID(r.Context())

	sess, err := h.sessions.End(r.Context(), sessionID, ownerID)
	if err != nil {
		utils.RespondError(w, StatusFromError(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sess.ID,
		"status":    sess.Status,
		"version":   sess.Version,
	})
}

// sessionSummary is the listing shape: enough to render a narrative
// picker without shipping full transcripts.
type sessionSummary struct {
	SessionID string       `json:"sessionId"`
	Status    dream.Status `json:"status"`
	TurnCount int          `json:"turnCount"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.UserID(r.Context())

	sessions, err := h.sessions.List(r.Context(), ownerID)
	if err != nil {
		utils.RespondError(w, StatusFromError(err), err.Error())
		return
	}

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, sessionSummary{
			SessionID: sess.ID,
			Status:    sess.Status,
			TurnCount: len(sess.Turns),
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		})
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"dreams": summaries})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ownerID := middleware.UserID(r.Context())

	sess, err := h.sessions.Get(r.Context(), sessionID, ownerID)
	if err != nil {
		utils.RespondError(w, StatusFromError(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ownerID := middleware.UserID(r.Context())

	if err := h.sessions.Delete(r.Context(), sessionID, ownerID); err != nil {
		utils.RespondError(w, StatusFromError(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StatusFromError maps the domain error taxonomy to boundary status
// codes.
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, dream.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, dream.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dream.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, dream.ErrInvalidState), errors.Is(err, dream.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, dream.ErrProviderTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, dream.ErrGeneration), errors.Is(err, dream.ErrProviderRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
