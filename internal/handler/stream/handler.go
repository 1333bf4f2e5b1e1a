package stream

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/ManuelEspejo/DreamDX-AI/internal/service/narrative"
	"github.com/ManuelEspejo/DreamDX-AI/pkg/utils"
)

// Handler streams narrative continuations via Server-Sent Events. The
// persistence semantics match the non-streaming continue exactly: the
// user turn lands before generation starts, the narrator turn after the
// stream drains.
type Handler struct {
	orch *narrative.Orchestrator
}

// New creates a stream handler.
func New(orch *narrative.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// StreamResponse is one streaming event payload.
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Version   int64  `json:"version,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleStreamRequest runs one streaming continuation for the session.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, ownerID, action string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
	})

	turn, version, err := h.orch.ContinueStream(ctx, sessionID, ownerID, action, func(delta string) {
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:     "delta",
			SessionID: sessionID,
			Content:   delta,
		})
	})
	if err != nil {
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event: "error",
			Error: err.Error(),
		})
		return err
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   turn.Content,
		Version:   version,
	})

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	log.Printf("[stream] completed continuation for session=%s version=%d", sessionID, version)
	return nil
}
