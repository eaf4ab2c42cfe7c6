package fetch

import "fmt"

// Error is a failed download or parse of one authority's document.
type Error struct {
	Authority string
	URL       string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch from %s (%s): %v", e.Authority, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
