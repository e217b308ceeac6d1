package storex

// Page represents pagination metadata
type Page struct {
	Number int `json:"page"`      // Current page number (1-based)
	Size   int `json:"page_size"` // Number of records per page
	Total  int `json:"total"`     // Total number of records
	Pages  int `json:"pages"`     // Total number of pages
}

// Paginated is a generic container for paginated data with metadata
type Paginated[T any] struct {
	Data  []T  `json:"data"`       // The paginated items
	Page  Page `json:"pagination"` // Pagination metadata
	Empty bool `json:"empty"`      // Whether the result contains any items
}

// NewPaginated creates a new paginated result with calculated fields
func NewPaginated[T any](data []T, page, size, total int) Paginated[T] {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size // Ceiling division
	}
	if data == nil {
		data = []T{}
	}

	return Paginated[T]{
		Data: data,
		Page: Page{
			Number: page,
			Size:   size,
			Total:  total,
			Pages:  pages,
		},
		Empty: len(data) == 0,
	}
}

// HasNext returns whether there are more pages after the current one
func (p Paginated[T]) HasNext() bool {
	return p.Page.Number < p.Page.Pages
}

// HasPrevious returns whether there are pages before the current one
func (p Paginated[T]) HasPrevious() bool {
	return p.Page.Number > 1
}

// MaxPageSize caps PageSize after Normalize
const MaxPageSize = 100

// PaginationOptions holds options for pagination queries
type PaginationOptions struct {
	Page     int            // Page number (1-based)
	PageSize int            // Number of records per page
	OrderBy  string         // Column or field to order by
	Desc     bool           // Whether to sort in descending order
	Filters  map[string]any // Equality filters, column -> value
}

// DefaultPaginationOptions returns sensible default options
func DefaultPaginationOptions() PaginationOptions {
	return PaginationOptions{
		Page:     1,
		PageSize: 25,
		OrderBy:  "id",
		Desc:     false,
		Filters:  make(map[string]any),
	}
}

// WithFilter adds a filter to the pagination options
func (o PaginationOptions) WithFilter(key string, value any) PaginationOptions {
	filters := make(map[string]any, len(o.Filters)+1)
	for k, v := range o.Filters {
		filters[k] = v
	}
	filters[key] = value
	o.Filters = filters
	return o
}

// Normalize clamps Page and PageSize into range
func (o PaginationOptions) Normalize() PaginationOptions {
	d := DefaultPaginationOptions()
	if o.Page < 1 {
		o.Page = d.Page
	}
	if o.PageSize < 1 {
		o.PageSize = d.PageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	return o
}

// Offset is the number of rows skipped before the current page
func (o PaginationOptions) Offset() int {
	if o.Page < 1 {
		return 0
	}
	return (o.Page - 1) * o.PageSize
}
