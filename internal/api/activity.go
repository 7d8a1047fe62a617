package api

import (
	"net/http"

	"github.com/chatterbox/chatterbox-api/internal/core"
)

func (h *APIHandler) GetActivityHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID", "user")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sum, err := h.activity.Summary(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activityBody(sum))
}

// RecordActivityHandler marks today as active. Users may only record their own.
func (h *APIHandler) RecordActivityHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID", "user")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if userID != callerID(r) {
		h.writeError(w, r, core.Forbidden("Cannot record activity for another user"))
		return
	}

	sum, err := h.activity.RecordToday(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activityBody(sum))
}

func activityBody(sum *core.ActivitySummary) envelope {
	return envelope{
		"userId":      sum.UserID,
		"streak":      sum.Streak,
		"activeToday": sum.ActiveToday,
		"days":        sum.Days,
	}
}
