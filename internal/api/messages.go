package api

import (
	"net/http"

	"github.com/chatterbox/chatterbox-api/internal/core"
)

type createMessageRequest struct {
	ChatID int64  `json:"chatId"`
	Text   string `json:"text"`
	Type   string `json:"type"`
}

func (h *APIHandler) CreateMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.ChatID <= 0 {
		h.writeError(w, r, core.Validation("chatId is required"))
		return
	}

	actor := callerID(r)
	msg, err := h.chats.CreateMessage(r.Context(), core.NewMessageInput{
		ActorID: &actor,
		ChatID:  req.ChatID,
		Text:    req.Text,
		Type:    req.Type,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"message": msg})
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	chatID, err := pathID(r, "chatID", "chat")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	params, err := listParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.chats.ListMessages(r.Context(), callerID(r), chatID, params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"messages": page.Messages,
		"total":    page.Total,
		"page":     page.Page,
		"limit":    page.Limit,
	})
}

type updateMessageRequest struct {
	Text string `json:"text"`
}

func (h *APIHandler) UpdateMessageHandler(w http.ResponseWriter, r *http.Request) {
	msgID, err := pathID(r, "messageID", "message")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req updateMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	msg, err := h.chats.UpdateMessage(r.Context(), callerID(r), msgID, req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": msg})
}

func (h *APIHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	msgID, err := pathID(r, "messageID", "message")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.chats.DeleteMessage(r.Context(), callerID(r), msgID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Message deleted"})
}
