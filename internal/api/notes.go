package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chatterbox/chatterbox-api/internal/core"
)

func (h *APIHandler) UpsertNoteHandler(w http.ResponseWriter, r *http.Request) {
	var req core.NoteInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	note, err := h.notes.Upsert(r.Context(), callerID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"note": note})
}

func (h *APIHandler) MonthNotesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, yerr := strconv.Atoi(q.Get("year"))
	month, merr := strconv.Atoi(q.Get("month"))
	if yerr != nil || merr != nil {
		h.writeError(w, r, core.Validation("year and month are required integers"))
		return
	}

	notes, err := h.notes.Month(r.Context(), callerID(r), year, month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"notes": notes})
}

func (h *APIHandler) SearchNotesHandler(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notes.Search(r.Context(), callerID(r), r.URL.Query().Get("query"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"notes": notes})
}

func (h *APIHandler) NoteByDateHandler(w http.ResponseWriter, r *http.Request) {
	day, err := h.notes.ByDate(r.Context(), callerID(r), chi.URLParam(r, "date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"date":        day.Date,
		"note":        day.Note,
		"hasActivity": day.HasActivity,
	})
}

func (h *APIHandler) DeleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Delete(r.Context(), callerID(r), chi.URLParam(r, "date")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Note deleted"})
}
