package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/chatterbox/chatterbox-api/internal/core"
)

type ctxKey int

const identityKey ctxKey = iota

// RequireAuth resolves the bearer token into an identity on the context.
func (h *APIHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if header == "" || !ok || strings.TrimSpace(token) == "" {
			h.writeError(w, r, core.Unauthenticated("Authorization header is required"))
			return
		}

		id, err := h.users.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func identity(r *http.Request) *core.Identity {
	id, _ := r.Context().Value(identityKey).(*core.Identity)
	return id
}

func callerID(r *http.Request) int64 {
	if id := identity(r); id != nil {
		return id.User.ID
	}
	return 0
}

// cors answers preflight requests and tags responses for the allowed origins.
func cors(origins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				hdr := w.Header()
				hdr.Set("Access-Control-Allow-Origin", origin)
				hdr.Set("Access-Control-Allow-Credentials", "true")
				hdr.Add("Vary", "Origin")
				if r.Method == http.MethodOptions {
					hdr.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					hdr.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
					hdr.Set("Access-Control-Max-Age", "600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
