package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrSearchUnreachable means the search form never became usable. It is
	// fatal for the operator being scraped.
	ErrSearchUnreachable = errors.New("search page unreachable after retries")
	// ErrGridTimeout means the results grid never reached a readable state.
	ErrGridTimeout = errors.New("results grid did not load in time")
	// ErrPagerStalled means "next" was clicked but no page change was observed.
	ErrPagerStalled = errors.New("no confirmed page transition")
	// ErrNoNextPage means there is no enabled next-page control.
	ErrNoNextPage = errors.New("no enabled next-page control")
)

// SearchError is returned when a search for one (operator, period) failed
// after every attempt.
type SearchError struct {
	Operator string
	Period   string
	Err      error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search failed for %s (period %s): %v", e.Operator, e.Period, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// DetailOpenError is a row-scoped failure to open or read a detail view.
// The row is skipped.
type DetailOpenError struct {
	Row    int
	Number string
	Err    error
}

func (e *DetailOpenError) Error() string {
	return fmt.Sprintf("detail for row %d (%s) did not open: %v", e.Row, e.Number, e.Err)
}

func (e *DetailOpenError) Unwrap() error { return e.Err }

// IsFatal reports whether err ends the current unit of work instead of
// being recoverable by resynchronising to the grid.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *SearchError
	return errors.Is(err, ErrSearchUnreachable) || errors.As(err, &se)
}
