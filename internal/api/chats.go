package api

import (
	"net/http"

	"github.com/chatterbox/chatterbox-api/internal/core"
	"github.com/chatterbox/chatterbox-api/internal/utils"
)

// listParams reads the shared listing query: search, from, to, sortBy,
// order, page and limit.
func listParams(r *http.Request) (core.ListParams, error) {
	q := r.URL.Query()
	p := core.ListParams{
		Search: q.Get("search"),
		SortBy: q.Get("sortBy"),
		Order:  q.Get("order"),
	}

	var err error
	if p.Page, err = queryInt(r, "page"); err != nil {
		return p, err
	}
	if p.Limit, err = queryInt(r, "limit"); err != nil {
		return p, err
	}
	if raw := q.Get("from"); raw != "" {
		t, err := utils.ParseBound(raw, false)
		if err != nil {
			return p, core.Validation("from must be a date or RFC 3339 timestamp")
		}
		p.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := utils.ParseBound(raw, true)
		if err != nil {
			return p, core.Validation("to must be a date or RFC 3339 timestamp")
		}
		p.To = &t
	}
	return p, nil
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req core.CreateChatInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	chat, err := h.chats.CreateChat(r.Context(), callerID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"chat": chat})
}

type findOrCreateRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) FindOrCreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req findOrCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	chat, created, err := h.chats.FindOrCreateChat(r.Context(), callerID(r), req.Title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, envelope{"chat": chat, "created": created})
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.chats.ListChats(r.Context(), callerID(r), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"chats": page.Chats,
		"total": page.Total,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	chatID, err := pathID(r, "chatID", "chat")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	chat, err := h.chats.GetChat(r.Context(), callerID(r), chatID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"chat": chat})
}

type updateChatRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) UpdateChatHandler(w http.ResponseWriter, r *http.Request) {
	chatID, err := pathID(r, "chatID", "chat")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req updateChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	chat, err := h.chats.UpdateChat(r.Context(), callerID(r), chatID, req.Title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"chat": chat})
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	chatID, err := pathID(r, "chatID", "chat")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.chats.DeleteChat(r.Context(), callerID(r), chatID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Chat deleted"})
}

func (h *APIHandler) ClearMessagesHandler(w http.ResponseWriter, r *http.Request) {
	chatID, err := pathID(r, "chatID", "chat")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.chats.ClearMessages(r.Context(), callerID(r), chatID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"deleted": n})
}

type addParticipantRequest struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}

func (h *APIHandler) AddParticipantHandler(w http.ResponseWriter, r *http.Request) {
	chatID, err := pathID(r, "chatID", "chat")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req addParticipantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	added, err := h.chats.AddParticipant(r.Context(), callerID(r), chatID, req.UserID, req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, envelope{"added": added})
}

func (h *APIHandler) RemoveParticipantHandler(w http.ResponseWriter, r *http.Request) {
	chatID, err := pathID(r, "chatID", "chat")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	userID, err := pathID(r, "userID", "user")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	removed, err := h.chats.RemoveParticipant(r.Context(), callerID(r), chatID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"removed": removed})
}
