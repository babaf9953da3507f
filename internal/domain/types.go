package domain

// Pagination is the page request of the order and audit listings. An empty token is the
// first page.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage is one page of results; NextPageToken is empty on the last page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
