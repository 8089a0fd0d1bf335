package model

// Pagination defaults.
const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// Page selects one page of a list.
type Page struct {
	Number  int
	PerPage int
}

// Normalize clamps the page to valid bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// NewPagination builds the pagination block for a normalized page.
func NewPagination(p Page, total int) Pagination {
	last := (total + p.PerPage - 1) / p.PerPage
	if last < 1 {
		last = 1
	}
	return Pagination{
		CurrentPage: p.Number,
		LastPage:    last,
		PerPage:     p.PerPage,
		Total:       total,
	}
}
