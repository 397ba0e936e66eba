package model

import "io"

// DefaultPageLimit is used when a paginated request omits the limit.
const DefaultPageLimit = 10

// ListQuery selects a page of records. Limit 0 means "everything".
type ListQuery struct {
	Page   int
	Limit  int
	Search string
}

// Offset returns the number of rows to skip for the requested page.
func (q ListQuery) Offset() int {
	if q.Limit <= 0 || q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// TotalPages returns ceil(total/limit) with a minimum of one page.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

// Upload is a file part of a form.
type Upload struct {
	Field       string
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Form is a create/update payload: plain fields plus an optional file.
type Form struct {
	Values map[string]string
	File   *Upload
}

// Value returns a field value or "".
func (f Form) Value(key string) string {
	if f.Values == nil {
		return ""
	}
	return f.Values[key]
}

// Has reports whether the field was submitted.
func (f Form) Has(key string) bool {
	_, ok := f.Values[key]
	return ok
}
