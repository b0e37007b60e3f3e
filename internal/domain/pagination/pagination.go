// Package pagination slices ordered collections into fixed-size pages and
// computes the page-number strip shown under paged tables.
package pagination

import "fmt"

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 10

// TotalPages returns ceil(n/size). It is zero for an empty collection.
func TotalPages(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Clamp keeps page within [1, total]. An empty collection has page 1.
func Clamp(page, total int) int {
	if page < 1 || total < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}

// Bounds returns the half-open [start, end) range of page k (1-based).
func Bounds(page, size, n int) (start, end int) {
	if size <= 0 || n <= 0 {
		return 0, 0
	}
	start = (page - 1) * size
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end = start + size
	if end > n {
		end = n
	}
	return start, end
}

// Page is one page of an ordered collection.
type Page[T any] struct {
	Items      []T    `json:"items"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalItems int    `json:"total_items"`
	TotalPages int    `json:"total_pages"`
	Summary    string `json:"summary"`
	Window     []Item `json:"window,omitempty"`
}

// Slice returns page k of items. Out-of-range pages are clamped.
func Slice[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := TotalPages(len(items), size)
	page = Clamp(page, total)
	start, end := Bounds(page, size, len(items))
	return Page[T]{
		Items:      items[start:end],
		Page:       page,
		PageSize:   size,
		TotalItems: len(items),
		TotalPages: total,
		Summary:    Summary(start, end, len(items)),
		Window:     Window(page, total),
	}
}

// Summary renders the "Showing a to b of n" caption.
func Summary(start, end, n int) string {
	if n == 0 {
		return "Showing 0 of 0"
	}
	return fmt.Sprintf("Showing %d to %d of %d", start+1, end, n)
}

// Item is one entry of the page strip: a page number or an ellipsis.
type Item struct {
	Page     int  `json:"page,omitempty"`
	Current  bool `json:"current,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
}

// Window returns the page strip for current out of total pages: the first and
// last page, the pages adjacent to current, and an ellipsis for each gap.
// It is empty when there is at most one page.
func Window(current, total int) []Item {
	if total <= 1 {
		return nil
	}
	out := make([]Item, 0, 7)
	for p := 1; p <= total; p++ {
		d := p - current
		if d < 0 {
			d = -d
		}
		switch {
		case p == 1 || p == total || d <= 1:
			out = append(out, Item{Page: p, Current: p == current})
		case p == 2 && current > 3, p == total-1 && current < total-2:
			out = append(out, Item{Ellipsis: true})
		}
	}
	return out
}
