package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		query string
		want  Window
	}{
		{"", Window{Page: 1, Limit: 50, Offset: 0}},
		{"?page=3&limit=10", Window{Page: 3, Limit: 10, Offset: 20}},
		{"?page=0&limit=-4", Window{Page: 1, Limit: 50, Offset: 0}},
		{"?limit=5000", Window{Page: 1, Limit: 200, Offset: 0}},
		{"?page=abc&limit=xyz", Window{Page: 1, Limit: 50, Offset: 0}},
		{"?offset=25&limit=10", Window{Page: 3, Limit: 10, Offset: 25}},
		{"?offset=-1&page=4&limit=10", Window{Page: 1, Limit: 10, Offset: 0}},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/campaigns"+tc.query, nil)
			assert.Equal(t, tc.want, parseWindow(r, 50, 200))
		})
	}
}

func TestNewListPage(t *testing.T) {
	p := newListPage([]string{"a", "b"}, Window{Page: 1, Limit: 2, Offset: 0}, 5)
	assert.Equal(t, 3, p.Pagination.TotalPages)
	assert.True(t, p.Pagination.HasMore)

	p = newListPage([]string{"e"}, Window{Page: 3, Limit: 2, Offset: 4}, 5)
	assert.False(t, p.Pagination.HasMore)

	// An arbitrary offset still reports what is left.
	p = newListPage([]string{"b", "c"}, Window{Page: 1, Limit: 2, Offset: 1}, 5)
	assert.True(t, p.Pagination.HasMore)

	var empty []int
	out, err := json.Marshal(newListPage(empty, Window{Page: 1, Limit: 10}, 0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[],"pagination":{"page":1,"limit":10,"offset":0,"total":0,"total_pages":1,"has_more":false}}`, string(out))
}
