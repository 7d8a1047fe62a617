package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/core"
)

// Services bundles what the HTTP layer dispatches to.
type Services struct {
	Users    *core.UserService
	Chats    *core.ChatService
	Activity *core.ActivityService
	Notes    *core.NoteService
	Uploads  *core.UploadService
	AI       *core.AIService

	// StreamChunk is the rune count per flushed chunk of a streamed AI reply.
	StreamChunk int
}

type APIHandler struct {
	users       *core.UserService
	chats       *core.ChatService
	activity    *core.ActivityService
	notes       *core.NoteService
	uploads     *core.UploadService
	ai          *core.AIService
	streamChunk int
	logger      *zap.Logger
}

func NewAPIHandler(svc Services, logger *zap.Logger) *APIHandler {
	chunk := svc.StreamChunk
	if chunk <= 0 {
		chunk = 64
	}
	return &APIHandler{
		users:       svc.Users,
		chats:       svc.Chats,
		activity:    svc.Activity,
		notes:       svc.Notes,
		uploads:     svc.Uploads,
		ai:          svc.AI,
		streamChunk: chunk,
		logger:      logger.Named("api"),
	}
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{"status": "ok"})
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req core.SignupInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.users.Signup(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authBody(res))
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req core.LoginInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.users.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authBody(res))
}

func authBody(res *core.AuthResult) envelope {
	return envelope{"token": res.Token, "expiresAt": res.ExpiresAt, "user": res.User}
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Logout(r.Context(), identity(r).SessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Logged out"})
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), callerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": u})
}

func (h *APIHandler) UpdateMeHandler(w http.ResponseWriter, r *http.Request) {
	var req core.ProfileInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), callerID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": u})
}

func (h *APIHandler) DeleteMeHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteAccount(r.Context(), callerID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Account deleted"})
}

func (h *APIHandler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req core.PasswordInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.users.ChangePassword(r.Context(), callerID(r), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Password updated"})
}

func (h *APIHandler) SearchUsersHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	users, err := h.users.Search(r.Context(), callerID(r), r.URL.Query().Get("query"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"users": users})
}

func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID", "user")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	profile, err := h.users.Profile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": profile})
}
