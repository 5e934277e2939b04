// Package pagination implements the page number paging used by the list
// endpoints.
package pagination

import "strconv"

const MaxPageSize = 100

// Pagination selects one page of a newest-first listing. Page starts at 1.
type Pagination struct {
	Page     int
	PageSize int
}

// PageInfo describes the page that was returned.
type PageInfo struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	HasMore  bool  `json:"has_more"`
}

// New clamps page to at least 1 and size to 1..MaxPageSize, falling back to
// defaultSize when size is not positive.
func New(page, size, defaultSize int) Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Pagination{Page: page, PageSize: size}
}

// Parse reads page and size query values, ignoring malformed input.
func Parse(rawPage, rawSize string, defaultSize int) Pagination {
	page, _ := strconv.Atoi(rawPage)
	size, _ := strconv.Atoi(rawSize)
	return New(page, size, defaultSize)
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func (p Pagination) Limit() int {
	return p.PageSize
}

// Info builds the PageInfo for a query matching total rows.
func (p Pagination) Info(total int64) PageInfo {
	return PageInfo{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
		HasMore:  int64(p.Offset()+p.PageSize) < total,
	}
}
