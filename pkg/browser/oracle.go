// Package browser abstracts the interactive remote session the registry is
// driven through. Selectors are XPath expressions.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by WaitUntil when the condition never held.
var ErrTimeout = errors.New("timed out waiting for page condition")

// PageOracle is the set of primitives the registry navigation needs. Every
// call is a blocking, synchronous action against the current tab.
type PageOracle interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Back(ctx context.Context) error

	// IsStable reports whether the page has finished its asynchronous work.
	IsStable(ctx context.Context) (bool, error)
	// Nudge scrolls the window a little to trigger lazy rendering.
	Nudge(ctx context.Context) error

	Count(ctx context.Context, xpath string) (int, error)
	Visible(ctx context.Context, xpath string) (bool, error)
	Text(ctx context.Context, xpath string) (string, error)
	Attr(ctx context.Context, xpath, name string) (string, error)
	HTML(ctx context.Context) (string, error)

	SetValue(ctx context.Context, xpath, value string) error
	SendKeys(ctx context.Context, xpath, keys string) error
	Click(ctx context.Context, xpath string) error
	// PostBack submits the host form with the given event target and argument.
	PostBack(ctx context.Context, target, argument string) error

	Tabs(ctx context.Context) ([]string, error)
	CurrentTab() string
	SwitchTab(ctx context.Context, id string) error
	CloseTab(ctx context.Context, id string) error
}

// WaitUntil polls cond every interval until it returns true or timeout elapses.
func WaitUntil(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) bool) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		if cond(ctx) {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Sleep pauses for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
