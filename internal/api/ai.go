package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/core"
	"github.com/chatterbox/chatterbox-api/internal/utils"
)

func (h *APIHandler) AskAIHandler(w http.ResponseWriter, r *http.Request) {
	var req core.AIRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	reply, err := h.ai.Ask(r.Context(), callerID(r), chi.URLParam(r, "provider"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !req.Stream {
		body := envelope{"provider": reply.Provider, "assistant": reply.Assistant}
		if reply.Message != nil {
			body["message"] = reply.Message
		}
		writeJSON(w, http.StatusOK, body)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	for _, chunk := range utils.ChunkText(reply.Assistant, h.streamChunk) {
		if _, err := io.WriteString(w, chunk); err != nil {
			h.logger.Debug("ai stream aborted", zap.String("provider", reply.Provider), zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil {
			h.logger.Debug("ai stream flush failed", zap.Error(err))
		}
	}
}
