package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/browser"
	"github.com/cosreg/regwatch/pkg/record"
)

// Pager advances the results grid and confirms each transition by
// watching the page fingerprint.
type Pager struct {
	page browser.PageOracle
	nav  *Navigator
	cfg  Config
	log  utils.Logger
}

func NewPager(page browser.PageOracle, nav *Navigator, cfg Config, log utils.Logger) *Pager {
	return &Pager{page: page, nav: nav, cfg: cfg.withDefaults(), log: utils.OrNop(log)}
}

func (p *Pager) nextControl(ctx context.Context) (string, bool) {
	for _, xp := range []string{xpNextInput, xpNextLink} {
		if p.nav.has(ctx, xp) {
			return xp, true
		}
	}
	return "", false
}

// HasNext reports whether an enabled next-page control exists.
func (p *Pager) HasNext(ctx context.Context) bool {
	_, ok := p.nextControl(ctx)
	return ok
}

// Fingerprint identifies the current page by the identifier in its first
// row, else by the pager's page index. It is a heuristic: two pages whose
// first rows carry the same identifier look alike, which is why Next also
// watches PageIndex.
func (p *Pager) Fingerprint(ctx context.Context) string {
	if text, err := p.page.Text(ctx, rowXPath(1)); err == nil {
		if no := record.NumberFromText(text); no != "" {
			return no
		}
	}
	return p.PageIndex(ctx)
}

// PageIndex returns the pager's current page number, or "".
func (p *Pager) PageIndex(ctx context.Context) string {
	v, err := p.page.Attr(ctx, xpPageIndex, "value")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// Next clicks the next-page control and waits for the fingerprint or the
// page index to change. It gives up with ErrPagerStalled.
func (p *Pager) Next(ctx context.Context) error {
	for attempt := 1; attempt <= p.cfg.PageAttempts; attempt++ {
		beforeKey := p.Fingerprint(ctx)
		beforeIdx := p.PageIndex(ctx)

		xp, ok := p.nextControl(ctx)
		if !ok {
			return ErrNoNextPage
		}
		if err := p.page.Click(ctx, xp); err != nil {
			p.log.Debugf("[pager] attempt %d: click next: %v", attempt, err)
			continue
		}

		err := browser.WaitUntil(ctx, p.cfg.Timeouts.Page, p.cfg.PollInterval, func(ctx context.Context) bool {
			key := p.Fingerprint(ctx)
			idx := p.PageIndex(ctx)
			return (key != "" && key != beforeKey) || (idx != "" && idx != beforeIdx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Debugf("[pager] attempt %d: page did not change from %q", attempt, beforeKey)
			continue
		}

		_ = p.nav.WaitIdle(ctx, p.cfg.Timeouts.Idle)
		if _, err := p.nav.WaitForRows(ctx, p.cfg.Timeouts.SearchFirst); err != nil {
			return fmt.Errorf("page %s did not render: %w", p.PageIndex(ctx), err)
		}
		p.log.Infof("  -> moved to page %s (attempt %d)", p.PageIndex(ctx), attempt)
		return nil
	}
	return ErrPagerStalled
}
