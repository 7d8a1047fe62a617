package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/core"
	"github.com/chatterbox/chatterbox-api/internal/logger"
)

// NewRouter mounts every route. socket serves the websocket endpoint.
func NewRouter(h *APIHandler, socket http.Handler, origins []string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors(origins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, core.NotFound("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"success":false,"message":"Method not allowed"}`))
	})

	// Public routes
	r.Post("/signup", h.SignupHandler)
	r.Post("/login", h.LoginHandler)
	r.Get("/health", h.HealthHandler)
	r.Handle("/ws", socket)
	r.Get(core.URLPrefix+"*", h.staticUploads())

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)

		r.Post("/logout", h.LogoutHandler)
		r.Get("/me", h.MeHandler)
		r.Put("/me", h.UpdateMeHandler)
		r.Delete("/me", h.DeleteMeHandler)
		r.Put("/password", h.ChangePasswordHandler)

		r.Route("/users", func(r chi.Router) {
			r.Get("/search", h.SearchUsersHandler)
			r.Get("/{userID}", h.GetUserHandler)
			r.Get("/{userID}/activity", h.GetActivityHandler)
			r.Post("/{userID}/activity", h.RecordActivityHandler)
		})

		r.Route("/chats", func(r chi.Router) {
			r.Post("/", h.CreateChatHandler)
			r.Get("/", h.ListChatsHandler)
			r.Post("/find-or-create", h.FindOrCreateChatHandler)
			r.Get("/{chatID}", h.GetChatHandler)
			r.Put("/{chatID}", h.UpdateChatHandler)
			r.Delete("/{chatID}", h.DeleteChatHandler)
			r.Delete("/{chatID}/messages", h.ClearMessagesHandler)
			r.Post("/{chatID}/participants", h.AddParticipantHandler)
			r.Delete("/{chatID}/participants/{userID}", h.RemoveParticipantHandler)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", h.CreateMessageHandler)
			r.Get("/{chatID}", h.ListMessagesHandler)
			r.Put("/{messageID}", h.UpdateMessageHandler)
			r.Delete("/{messageID}", h.DeleteMessageHandler)
		})

		r.Route("/notes", func(r chi.Router) {
			r.Post("/", h.UpsertNoteHandler)
			r.Get("/month", h.MonthNotesHandler)
			r.Get("/search", h.SearchNotesHandler)
			r.Get("/date/{date}", h.NoteByDateHandler)
			r.Delete("/date/{date}", h.DeleteNoteHandler)
		})

		r.Post("/uploads", h.UploadHandler)
		r.Post("/uploads/avatar", h.AvatarHandler)
		r.Post("/ai/{provider}", h.AskAIHandler)
	})

	return r
}

// staticUploads serves stored files. The staging directory and directory
// listings are hidden.
func (h *APIHandler) staticUploads() http.HandlerFunc {
	files := http.StripPrefix(core.URLPrefix, http.FileServer(http.Dir(h.uploads.Dir())))
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, core.URLPrefix)
		if name == "" || strings.Contains(name, "/") {
			h.writeError(w, r, core.NotFound("File not found"))
			return
		}
		if info, err := os.Stat(filepath.Join(h.uploads.Dir(), name)); err != nil || info.IsDir() {
			h.writeError(w, r, core.NotFound("File not found"))
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	}
}
