package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/browser"
	"github.com/cosreg/regwatch/pkg/record"
)

// TriggerKind is how a detail link is activated.
type TriggerKind int

const (
	// PostbackTrigger submits the host form with the link's event target.
	PostbackTrigger TriggerKind = iota
	// DirectTrigger clicks the link element.
	DirectTrigger
)

func (k TriggerKind) String() string {
	if k == PostbackTrigger {
		return "postback"
	}
	return "direct"
}

// ContextKind is where the detail view rendered.
type ContextKind int

const (
	SameContext ContextKind = iota
	NewContext
)

func (k ContextKind) String() string {
	if k == NewContext {
		return "new-tab"
	}
	return "same-tab"
}

// Transition describes how one row's detail view is reached and left. The
// trigger comes from the link metadata; the context is fixed once, when
// the transition is confirmed, and drives the return path.
type Transition struct {
	Trigger       TriggerKind
	EventTarget   string
	EventArgument string
	Context       ContextKind
}

var postBackRe = regexp.MustCompile(`__doPostBack\('([^']+)','([^']*)'\)`)

// ResolveTransition picks the trigger for a link from its href.
func ResolveTransition(href string) Transition {
	if m := postBackRe.FindStringSubmatch(href); m != nil {
		return Transition{Trigger: PostbackTrigger, EventTarget: m[1], EventArgument: m[2]}
	}
	return Transition{Trigger: DirectTrigger}
}

// detailFields maps detail label ids to record columns.
var detailFields = []struct{ id, col string }{
	{"ContentPlaceHolder1_lb_status", record.ColStatus},
	{"ContentPlaceHolder1_lb_no_regnos", record.ColNumber},
	{"ContentPlaceHolder1_lb_type", record.ColType},
	{"ContentPlaceHolder1_lb_trade_Tpop", record.ColTradeName},
	{"ContentPlaceHolder1_lb_cosnm_Tpop", record.ColCosmeticName},
	{"ContentPlaceHolder1_lb_appdate", record.ColApproveDate},
	{"ContentPlaceHolder1_lb_expdate", record.ColExpireDate},
	{"ContentPlaceHolder1_lb_usernm_pop", record.ColOperatorName},
	{"ContentPlaceHolder1_lb_fac_pop", record.ColForeignManufacturer},
	{"ContentPlaceHolder1_lb_NAME_EMPLOYER", record.ColContractManufacturer},
	{"ContentPlaceHolder1_lb_NO_pop", record.ColReferenceFor},
}

// ParseDetail reads a record out of a rendered detail page. Missing labels
// yield empty fields; the period is derived from the number.
func ParseDetail(html string) (record.NotificationRecord, error) {
	var rec record.NotificationRecord
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return rec, fmt.Errorf("parse detail page: %w", err)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	for _, f := range detailFields {
		sel := doc.Find("#" + f.id).First()
		if sel.Length() == 0 {
			continue
		}
		rec.Set(f.col, utils.CollapseSpace(sel.Text()))
	}
	rec.Period = record.PeriodFromNumber(rec.Number)
	return rec, nil
}

// DetailExtractor opens a row's detail view, reads it and returns the
// session to the grid.
type DetailExtractor struct {
	page browser.PageOracle
	nav  *Navigator
	cfg  Config
	log  utils.Logger
}

func NewDetailExtractor(page browser.PageOracle, nav *Navigator, cfg Config, log utils.Logger) *DetailExtractor {
	return &DetailExtractor{page: page, nav: nav, cfg: cfg.withDefaults(), log: utils.OrNop(log)}
}

// Open extracts the record behind grid row (1-based); number is the
// identifier read from the row and only labels errors.
//
// Failures to reach or read the detail view come back as *DetailOpenError
// after the grid has been restored. A non-empty record with a non-nil error
// means the record was read but the way back to the grid failed.
func (d *DetailExtractor) Open(ctx context.Context, row int, number, operator, period string) (record.NotificationRecord, error) {
	var rec record.NotificationRecord
	link := rowLinkXPath(row)

	href, err := d.page.Attr(ctx, link, "href")
	if err != nil {
		return rec, fmt.Errorf("row %d: detail link: %w", row, err)
	}
	tr := ResolveTransition(href)
	base := d.page.CurrentTab()
	before, err := d.page.Tabs(ctx)
	if err != nil {
		return rec, fmt.Errorf("list tabs: %w", err)
	}

	if err := d.trigger(ctx, tr, link); err != nil {
		return rec, fmt.Errorf("row %d: %s trigger: %w", row, tr.Trigger, err)
	}
	opened, err := d.awaitTransition(ctx, before)
	if err != nil && ctx.Err() == nil {
		d.log.Debugf("     row %d: no effect from %s trigger, clicking again", row, tr.Trigger)
		if cerr := d.page.Click(ctx, link); cerr == nil {
			opened, err = d.awaitTransition(ctx, before)
		}
	}
	if err != nil {
		return rec, d.fail(ctx, row, number, "", base, operator, period, err)
	}

	if opened != "" {
		tr.Context = NewContext
		if err := d.page.SwitchTab(ctx, opened); err != nil {
			return rec, d.fail(ctx, row, number, opened, base, operator, period, err)
		}
	}

	if err := d.awaitFields(ctx); err != nil {
		return rec, d.fail(ctx, row, number, opened, base, operator, period, err)
	}
	html, err := d.page.HTML(ctx)
	if err != nil {
		return rec, d.fail(ctx, row, number, opened, base, operator, period, err)
	}
	rec, err = ParseDetail(html)
	if err == nil && rec.Number == "" {
		err = errors.New("detail view has no notification number")
	}
	if err != nil {
		return record.NotificationRecord{}, d.fail(ctx, row, number, opened, base, operator, period, err)
	}
	d.log.Debugf("     extracted %s via %s/%s", rec.Number, tr.Trigger, tr.Context)

	return rec, d.leave(ctx, tr, opened, base, operator, period)
}

func (d *DetailExtractor) trigger(ctx context.Context, tr Transition, link string) error {
	if tr.Trigger == PostbackTrigger {
		return d.page.PostBack(ctx, tr.EventTarget, tr.EventArgument)
	}
	return d.page.Click(ctx, link)
}

// awaitTransition waits for either a new tab or the detail number label in
// the current tab. It returns the new tab's id, or "" for the same tab.
func (d *DetailExtractor) awaitTransition(ctx context.Context, before []string) (string, error) {
	known := make(map[string]bool, len(before))
	for _, id := range before {
		known[id] = true
	}
	opened := ""
	err := browser.WaitUntil(ctx, d.cfg.Timeouts.Trigger, d.cfg.PollInterval, func(ctx context.Context) bool {
		if tabs, err := d.page.Tabs(ctx); err == nil && len(tabs) > len(before) {
			for _, id := range tabs {
				if !known[id] {
					opened = id
					return true
				}
			}
		}
		return d.nav.has(ctx, xpDetailNumber)
	})
	return opened, err
}

func (d *DetailExtractor) awaitFields(ctx context.Context) error {
	if err := d.nav.WaitIdle(ctx, d.cfg.Timeouts.Idle); err != nil {
		return fmt.Errorf("detail page busy: %w", err)
	}
	for _, xp := range []string{xpDetailNumber, xpDetailStatus} {
		if err := browser.WaitUntil(ctx, d.cfg.Timeouts.Detail, d.cfg.PollInterval, func(ctx context.Context) bool {
			return d.nav.has(ctx, xp)
		}); err != nil {
			return fmt.Errorf("detail label %s: %w", xp, err)
		}
	}
	return nil
}

// leave returns from the detail view by the path the transition implies.
func (d *DetailExtractor) leave(ctx context.Context, tr Transition, opened, base, operator, period string) error {
	if tr.Context == NewContext {
		if err := d.page.CloseTab(ctx, opened); err != nil {
			d.log.Debugf("     close detail tab: %v", err)
		}
		if err := d.page.SwitchTab(ctx, base); err != nil {
			return fmt.Errorf("switch back to grid tab: %w", err)
		}
	} else if err := d.page.Back(ctx); err != nil {
		d.log.Debugf("     back from detail: %v", err)
	}
	_ = d.nav.WaitIdle(ctx, d.cfg.Timeouts.Idle)
	if err := d.nav.EnsureOnGrid(ctx, operator, period); err != nil {
		return err
	}
	_, err := d.nav.WaitForRows(ctx, d.cfg.Timeouts.SearchFirst)
	return err
}

// fail closes any detail tab, restores the grid and wraps cause. A fatal
// resync error takes precedence over the row failure.
func (d *DetailExtractor) fail(ctx context.Context, row int, number, opened, base, operator, period string, cause error) error {
	if opened != "" {
		_ = d.page.CloseTab(ctx, opened)
		_ = d.page.SwitchTab(ctx, base)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := d.nav.EnsureOnGrid(ctx, operator, period); err != nil && IsFatal(err) {
		return err
	}
	return &DetailOpenError{Row: row, Number: number, Err: cause}
}
