package core

import (
	"strings"
	"time"

	"github.com/chatterbox/chatterbox-api/internal/store"
)

const maxPageSize = 100

// ListParams are the raw listing options shared by chats and messages.
type ListParams struct {
	Search string
	From   *time.Time
	To     *time.Time
	SortBy string
	Order  string
	Page   int
	Limit  int
}

type listDefaults struct {
	desc  bool
	limit int
	valid func(string) bool
}

var (
	chatListDefaults    = listDefaults{desc: true, limit: 10, valid: store.ValidChatSort}
	messageListDefaults = listDefaults{desc: false, limit: 50, valid: store.ValidMessageSort}
)

// filter validates p and converts it to a store filter, returning the
// effective page and limit.
func (p ListParams) filter(d listDefaults) (store.ListFilter, int, int, error) {
	page, limit := p.Page, p.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = d.limit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	sortBy := strings.TrimSpace(p.SortBy)
	if sortBy == "" {
		sortBy = "createdAt"
	}
	if !d.valid(sortBy) {
		return store.ListFilter{}, 0, 0, Validation("Invalid sortBy field %q", sortBy)
	}

	desc := d.desc
	switch strings.ToLower(strings.TrimSpace(p.Order)) {
	case "":
	case "asc":
		desc = false
	case "desc":
		desc = true
	default:
		return store.ListFilter{}, 0, 0, Validation("order must be asc or desc")
	}

	if p.From != nil && p.To != nil && p.From.After(*p.To) {
		return store.ListFilter{}, 0, 0, Validation("from must not be after to")
	}

	return store.ListFilter{
		Search: strings.TrimSpace(p.Search),
		From:   p.From,
		To:     p.To,
		SortBy: sortBy,
		Desc:   desc,
		Offset: (page - 1) * limit,
		Limit:  limit,
	}, page, limit, nil
}
