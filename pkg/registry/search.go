package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/browser"
)

var errFormMissing = errors.New("search form inputs not present")

// Navigator reaches the search form, submits searches and brings the
// session back to the results grid when it drifts away.
type Navigator struct {
	page browser.PageOracle
	cfg  Config
	log  utils.Logger
}

func NewNavigator(page browser.PageOracle, cfg Config, log utils.Logger) *Navigator {
	return &Navigator{page: page, cfg: cfg.withDefaults(), log: utils.OrNop(log)}
}

func (n *Navigator) has(ctx context.Context, xpath string) bool {
	c, err := n.page.Count(ctx, xpath)
	return err == nil && c > 0
}

func (n *Navigator) visible(ctx context.Context, xpath string) bool {
	ok, err := n.page.Visible(ctx, xpath)
	return err == nil && ok
}

// WaitIdle waits until the page reports no pending asynchronous work.
// A failing probe counts as stable.
func (n *Navigator) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return browser.WaitUntil(ctx, timeout, n.cfg.PollInterval, func(ctx context.Context) bool {
		ok, err := n.page.IsStable(ctx)
		return err != nil || ok
	})
}

// GridPresent reports whether the results grid, its empty marker or a
// validation message is on the page.
func (n *Navigator) GridPresent(ctx context.Context) bool {
	return n.has(ctx, xpGridBody) || n.has(ctx, xpNoRecords) || n.has(ctx, xpValidation)
}

// NoRecords reports whether the grid shows its empty marker.
func (n *Navigator) NoRecords(ctx context.Context) bool {
	return n.has(ctx, xpNoRecords)
}

// OpenSearch loads the entry point until the operator input and the search
// button are usable. Each failed attempt backs off, refreshes and waits a
// little longer on the next try.
func (n *Navigator) OpenSearch(ctx context.Context) error {
	for attempt := 1; attempt <= n.cfg.OpenRetries; attempt++ {
		err := n.page.Navigate(ctx, n.cfg.URL)
		if err == nil {
			err = n.waitSearchControls(ctx, attempt)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.log.Warnf("[open] attempt %d/%d: search form not ready (%v), refreshing", attempt, n.cfg.OpenRetries, err)
		if err := browser.Sleep(ctx, time.Duration(attempt)*n.cfg.Backoff); err != nil {
			return err
		}
		if err := n.page.Reload(ctx); err == nil {
			_ = n.WaitIdle(ctx, n.cfg.Timeouts.OpenIdle)
		}
	}
	return ErrSearchUnreachable
}

func (n *Navigator) waitSearchControls(ctx context.Context, attempt int) error {
	timeout := n.cfg.Timeouts.OpenFirst
	if attempt > 1 {
		timeout = n.cfg.Timeouts.OpenRetry
	}
	if err := browser.WaitUntil(ctx, timeout, n.cfg.PollInterval, func(ctx context.Context) bool {
		return n.visible(ctx, xpOperatorInput)
	}); err != nil {
		return fmt.Errorf("operator input: %w", err)
	}
	if err := browser.WaitUntil(ctx, n.cfg.Timeouts.SearchButton, n.cfg.PollInterval, func(ctx context.Context) bool {
		return n.visible(ctx, xpSearchButton)
	}); err != nil {
		return fmt.Errorf("search button: %w", err)
	}
	return nil
}

// Search opens the form, fills it for one (operator, period) pair and waits
// for the grid. It returns the number of rows on the first page. Failed
// attempts re-open the entry point before retrying.
func (n *Navigator) Search(ctx context.Context, operator, period string) (int, error) {
	if err := n.OpenSearch(ctx); err != nil {
		return 0, err
	}
	var last error
	for attempt := 1; attempt <= n.cfg.SearchAttempts; attempt++ {
		if attempt > 1 {
			if err := n.OpenSearch(ctx); err != nil {
				return 0, err
			}
		}
		rows, err := n.submit(ctx, operator, period, attempt)
		if err == nil {
			n.log.Infof("  -> grid loaded for %s (period %s): %d rows", operator, period, rows)
			return rows, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		last = err
		n.log.Warnf("[search] %s (period %s) attempt %d/%d: %v", operator, period, attempt, n.cfg.SearchAttempts, err)
	}
	return 0, &SearchError{Operator: operator, Period: period, Err: last}
}

func (n *Navigator) submit(ctx context.Context, operator, period string, attempt int) (int, error) {
	if err := n.fill(ctx, operator, period); err != nil {
		return 0, err
	}
	if err := n.page.Click(ctx, xpSearchButton); err != nil {
		return 0, fmt.Errorf("click search: %w", err)
	}
	_ = n.WaitIdle(ctx, n.cfg.Timeouts.Idle)

	timeout := n.cfg.Timeouts.SearchFirst
	if attempt > 1 {
		timeout = n.cfg.Timeouts.SearchRetry
	}
	return n.WaitForRows(ctx, timeout)
}

// fill clears the criteria, types a short prefix of the operator so the
// form's autocomplete registers input, then sets the full operator name.
func (n *Navigator) fill(ctx context.Context, operator, period string) error {
	if !n.has(ctx, xpOperatorInput) || !n.has(ctx, xpPeriodInput) {
		return errFormMissing
	}
	for _, xp := range []string{xpOperatorInput, xpPeriodInput} {
		if err := n.page.SetValue(ctx, xp, ""); err != nil {
			return fmt.Errorf("clear input: %w", err)
		}
	}
	for _, xp := range xpBrandInputs {
		if n.has(ctx, xp) {
			_ = n.page.SetValue(ctx, xp, "")
		}
	}
	if err := browser.Sleep(ctx, 50*time.Millisecond); err != nil {
		return err
	}

	prefix := []rune(operator)
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	if err := n.page.SendKeys(ctx, xpOperatorInput, string(prefix)); err != nil {
		return fmt.Errorf("type operator: %w", err)
	}
	if err := n.page.SendKeys(ctx, xpPeriodInput, period); err != nil {
		return fmt.Errorf("type period: %w", err)
	}
	if err := n.page.SetValue(ctx, xpOperatorInput, operator); err != nil {
		return fmt.Errorf("set operator: %w", err)
	}
	return nil
}

// WaitForRows waits for the grid and returns the number of visible data
// rows. Zero is returned only when the grid shows its empty marker.
func (n *Navigator) WaitForRows(ctx context.Context, timeout time.Duration) (int, error) {
	idle := n.cfg.Timeouts.Idle
	if timeout < idle {
		idle = timeout
	}
	if err := n.WaitIdle(ctx, idle); err != nil {
		return 0, fmt.Errorf("%w: page busy: %v", ErrGridTimeout, err)
	}
	if err := browser.WaitUntil(ctx, timeout, n.cfg.PollInterval, n.GridPresent); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrGridTimeout, err)
	}

	rows := 0
	empty := false
	err := browser.WaitUntil(ctx, timeout, n.cfg.PollInterval, func(ctx context.Context) bool {
		c, err := n.page.Count(ctx, xpRows)
		if err == nil && c > 0 {
			rows = c
			return true
		}
		if n.has(ctx, xpNoRecords) {
			empty = true
			return true
		}
		_ = n.page.Nudge(ctx)
		return false
	})
	if err != nil {
		return 0, fmt.Errorf("%w: no rows rendered: %v", ErrGridTimeout, err)
	}
	if empty {
		return 0, nil
	}
	return rows, nil
}

// EnsureOnGrid brings the session back to a results grid: first by going
// back in history, and failing that by re-running the search.
func (n *Navigator) EnsureOnGrid(ctx context.Context, operator, period string) error {
	for i := 0; i < n.cfg.BackRetries; i++ {
		if n.GridPresent(ctx) {
			return nil
		}
		if err := n.page.Back(ctx); err != nil {
			break
		}
		_ = n.WaitIdle(ctx, n.cfg.Timeouts.Idle)
	}
	if n.GridPresent(ctx) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	n.log.Warnf("lost the results grid, re-running search for %s (period %s)", operator, period)
	_, err := n.Search(ctx, operator, period)
	return err
}
