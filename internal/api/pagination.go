package api

import (
	"net/http"
	"strconv"
)

// Window is the slice of a list a request asks for. Clients send either
// ?page=&limit= or ?offset=&limit=; an explicit offset wins.
type Window struct {
	Page   int
	Limit  int
	Offset int
}

// ListPage is the envelope every list endpoint returns.
type ListPage[T any] struct {
	Data       []T      `json:"data"`
	Pagination PageMeta `json:"pagination"`
}

// PageMeta describes where a ListPage sits in the full result.
type PageMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// parseWindow reads the list window from the query string. Bad numbers fall
// back to defaults and limit is capped at maxLimit.
func parseWindow(r *http.Request, defaultLimit, maxLimit int) Window {
	q := r.URL.Query()
	limit := atoiOr(q.Get("limit"), defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	if raw := q.Get("offset"); raw != "" {
		offset := atoiOr(raw, 0)
		if offset < 0 {
			offset = 0
		}
		return Window{Page: offset/limit + 1, Limit: limit, Offset: offset}
	}

	page := atoiOr(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	return Window{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func newListPage[T any](items []T, w Window, total int) ListPage[T] {
	if items == nil {
		items = []T{}
	}
	pages := (total + w.Limit - 1) / w.Limit
	if pages < 1 {
		pages = 1
	}
	return ListPage[T]{
		Data: items,
		Pagination: PageMeta{
			Page:       w.Page,
			Limit:      w.Limit,
			Offset:     w.Offset,
			Total:      total,
			TotalPages: pages,
			HasMore:    w.Offset+len(items) < total,
		},
	}
}
