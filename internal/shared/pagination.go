package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// MaxPerPage bounds page sizes requested over HTTP.
const MaxPerPage = 200

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	perPage = ClampPerPage(perPage)
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// ClampPerPage applies the default and the upper bound.
func ClampPerPage(perPage int) int {
	if perPage <= 0 {
		return 20
	}
	if perPage > MaxPerPage {
		return MaxPerPage
	}
	return perPage
}
