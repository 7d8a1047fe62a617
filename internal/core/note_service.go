package core

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/store"
	"github.com/chatterbox/chatterbox-api/internal/utils"
)

const (
	maxNoteLength   = 20000
	noteSearchLimit = 50
)

type NoteService struct {
	store  *store.Store
	logger *zap.Logger
}

func NewNoteService(st *store.Store, logger *zap.Logger) *NoteService {
	return &NoteService{store: st, logger: logger.Named("notes")}
}

type NoteInput struct {
	Date    string `json:"date"`
	Content string `json:"content"`
}

type NoteView struct {
	store.Note
	Date        string `json:"date"`
	HasActivity bool   `json:"hasActivity"`
}

// NoteDay is a calendar day with its note, if any.
type NoteDay struct {
	Date        string    `json:"date"`
	Note        *NoteView `json:"note"`
	HasActivity bool      `json:"hasActivity"`
}

func (s *NoteService) Upsert(ctx context.Context, userID int64, in NoteInput) (*NoteView, error) {
	day, err := utils.ParseDay(strings.TrimSpace(in.Date))
	if err != nil {
		return nil, Validation("%s", err.Error())
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, Validation("content is required")
	}
	if utf8.RuneCountInString(content) > maxNoteLength {
		return nil, Validation("content must be at most %d characters", maxNoteLength)
	}

	n, err := s.store.UpsertNote(ctx, userID, day, content)
	if err != nil {
		return nil, Internal("notes.upsert", err)
	}
	active, err := s.store.HasActivity(ctx, userID, day)
	if err != nil {
		return nil, Internal("notes.upsert", err)
	}
	return noteView(n, active), nil
}

func (s *NoteService) Month(ctx context.Context, userID int64, year, month int) ([]NoteView, error) {
	from, to, err := utils.MonthRange(year, month)
	if err != nil {
		return nil, Validation("year and month must describe a valid month")
	}
	notes, err := s.store.NotesBetween(ctx, userID, from, to)
	if err != nil {
		return nil, Internal("notes.month", err)
	}
	days, err := s.store.ActivityDays(ctx, userID, from)
	if err != nil {
		return nil, Internal("notes.month", err)
	}
	active := make(map[string]bool, len(days))
	for _, d := range days {
		active[d.Format(utils.DayLayout)] = true
	}

	out := make([]NoteView, 0, len(notes))
	for i := range notes {
		out = append(out, *noteView(&notes[i], active[notes[i].Day.Format(utils.DayLayout)]))
	}
	return out, nil
}

// ByDate returns the day even when it has no note.
func (s *NoteService) ByDate(ctx context.Context, userID int64, date string) (*NoteDay, error) {
	day, err := utils.ParseDay(date)
	if err != nil {
		return nil, Validation("%s", err.Error())
	}
	active, err := s.store.HasActivity(ctx, userID, day)
	if err != nil {
		return nil, Internal("notes.get", err)
	}
	out := &NoteDay{Date: day.Format(utils.DayLayout), HasActivity: active}

	n, err := s.store.GetNote(ctx, userID, day)
	switch {
	case err == nil:
		out.Note = noteView(n, active)
	case !errors.Is(err, store.ErrNotFound):
		return nil, Internal("notes.get", err)
	}
	return out, nil
}

func (s *NoteService) Search(ctx context.Context, userID int64, query string) ([]NoteView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Validation("query is required")
	}
	notes, err := s.store.SearchNotes(ctx, userID, query, noteSearchLimit)
	if err != nil {
		return nil, Internal("notes.search", err)
	}
	out := make([]NoteView, 0, len(notes))
	for i := range notes {
		out = append(out, *noteView(&notes[i], false))
	}
	return out, nil
}

func (s *NoteService) Delete(ctx context.Context, userID int64, date string) error {
	day, err := utils.ParseDay(date)
	if err != nil {
		return Validation("%s", err.Error())
	}
	if err := s.store.DeleteNote(ctx, userID, day); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("Note not found")
		}
		return Internal("notes.delete", err)
	}
	return nil
}

func noteView(n *store.Note, active bool) *NoteView {
	return &NoteView{Note: *n, Date: n.Day.Format(utils.DayLayout), HasActivity: active}
}
