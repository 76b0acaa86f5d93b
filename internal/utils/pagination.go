// Package utils provides small helpers shared by the HTTP and service
// layers. They carry no domain logic.
package utils

import "strconv"

// Page size bounds for transcript listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page window.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads raw page and page_size values. Blank or malformed input
// falls back to page 1 and DefaultPageSize; the result is clamped to
// Number >= 1 and 1 <= Size <= MaxPageSize.
//
//	utils.ParsePage("3", "50")   // {3 50}
//	utils.ParsePage("", "")      // {1 20}
//	utils.ParsePage("-2", "500") // {1 100}
func ParsePage(number, size string) Page {
	return NewPage(atoiDefault(number, 1), atoiDefault(size, DefaultPageSize))
}

// NewPage clamps number and size the same way ParsePage does. A size of
// zero or less becomes 1.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// Offset is the number of rows before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages returns how many pages total rows span.
func (p Page) TotalPages(total int64) int {
	if total <= 0 || p.Size <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// HasNext reports whether a page follows this one.
func (p Page) HasNext(total int64) bool { return p.Number < p.TotalPages(total) }

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
