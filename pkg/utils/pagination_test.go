package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		in         Pagination
		wantOffset int
		wantLimit  int
	}{
		{"defaults", Pagination{}, 0, DefaultPageLimit},
		{"third page", Pagination{Page: 3, Limit: 10}, 20, 10},
		{"limit capped", Pagination{Page: 2, Limit: 500}, MaxPageLimit, MaxPageLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			offset, limit := p.GetPageOffset()
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}

func TestNewPageResult_Pages(t *testing.T) {
	p := Pagination{Page: 1, Limit: 20}
	assert.Equal(t, 0, NewPageResult(nil, 0, p).Pages)
	assert.Equal(t, 1, NewPageResult(nil, 20, p).Pages)
	assert.Equal(t, 3, NewPageResult(nil, 41, p).Pages)
}
