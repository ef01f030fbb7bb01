package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fakeRow is one grid row of the fake registry.
type fakeRow struct {
	Number   string
	Trade    string
	Operator string
	// Broken rows open a detail page that never renders its labels.
	Broken bool
}

type fakeScreen int

const (
	screenBlank fakeScreen = iota
	screenSearch
	screenGrid
	screenDetail
)

type fakeTab struct {
	id      string
	screen  fakeScreen
	history []fakeScreen
	detail  fakeRow
}

// fakeSite is a scripted in-memory registry implementing browser.PageOracle.
type fakeSite struct {
	mu sync.Mutex

	data     map[string]map[string][]fakeRow // operator -> period -> rows
	pageSize int
	newTab   bool
	direct   bool

	openFailures int             // navigations rendering nothing
	stale        map[string]int  // row number -> reads failing
	stuckNext    bool
	lostGrid     int             // returns from detail landing off the grid
	hang         map[string]bool // periods whose search never renders a grid

	tabs []*fakeTab
	cur  int
	seq  int

	operatorField string
	periodField   string
	results       []fakeRow
	page          int

	navigations  int
	searches     int
	detailOpens  map[string]int
	postBacks    int
	directClicks int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		data:        map[string]map[string][]fakeRow{},
		pageSize:    10,
		stale:       map[string]int{},
		hang:        map[string]bool{},
		detailOpens: map[string]int{},
		tabs:        []*fakeTab{{id: "tab-0"}},
	}
}

func (f *fakeSite) add(operator, period string, rows ...fakeRow) {
	if f.data[operator] == nil {
		f.data[operator] = map[string][]fakeRow{}
	}
	for i := range rows {
		if rows[i].Operator == "" {
			rows[i].Operator = operator
		}
	}
	f.data[operator][period] = append(f.data[operator][period], rows...)
}

func (f *fakeSite) tab() *fakeTab { return f.tabs[f.cur] }

func (f *fakeSite) lastPage() int {
	if len(f.results) == 0 {
		return 1
	}
	return (len(f.results) + f.pageSize - 1) / f.pageSize
}

func (f *fakeSite) pageRows() []fakeRow {
	if f.tab().screen != screenGrid {
		return nil
	}
	start := (f.page - 1) * f.pageSize
	end := start + f.pageSize
	if start >= len(f.results) {
		return nil
	}
	if end > len(f.results) {
		end = len(f.results)
	}
	return f.results[start:end]
}

var (
	fakeRowIdx = regexp.MustCompile(`\)\[(\d+)\]`)
	fakeTarget = regexp.MustCompile(`ctl(\d+)\$lnkView`)
)

func rowIndex(xpath string) (int, bool) {
	if !strings.HasPrefix(xpath, "("+xpRows+")") {
		return 0, false
	}
	m := fakeRowIdx.FindStringSubmatch(xpath)
	if m == nil {
		return 0, false
	}
	i, _ := strconv.Atoi(m[1])
	return i, true
}

func (f *fakeSite) row(i int) (fakeRow, bool) {
	rows := f.pageRows()
	if i < 1 || i > len(rows) {
		return fakeRow{}, false
	}
	return rows[i-1], true
}

func (f *fakeSite) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations++
	f.load()
	return nil
}

func (f *fakeSite) load() {
	t := f.tab()
	t.history = nil
	f.results = nil
	f.operatorField, f.periodField = "", ""
	if f.openFailures > 0 {
		f.openFailures--
		t.screen = screenBlank
		return
	}
	t.screen = screenSearch
}

func (f *fakeSite) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.load()
	return nil
}

func (f *fakeSite) Back(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tab()
	if len(t.history) == 0 {
		t.screen = screenSearch
		return nil
	}
	prev := t.history[len(t.history)-1]
	t.history = t.history[:len(t.history)-1]
	if prev == screenGrid && f.lostGrid > 0 {
		f.lostGrid--
		prev = screenBlank
	}
	t.screen = prev
	return nil
}

func (f *fakeSite) IsStable(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeSite) Nudge(ctx context.Context) error             { return nil }

func (f *fakeSite) Count(ctx context.Context, xpath string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count(xpath), nil
}

func (f *fakeSite) count(xpath string) int {
	t := f.tab()
	onForm := t.screen == screenSearch || t.screen == screenGrid
	onGrid := t.screen == screenGrid
	onDetail := t.screen == screenDetail && !t.detail.Broken
	b := func(v bool) int {
		if v {
			return 1
		}
		return 0
	}
	switch xpath {
	case xpOperatorInput, xpPeriodInput, xpSearchButton:
		return b(onForm)
	case xpGridBody, xpPageIndex:
		return b(onGrid)
	case xpRows:
		return len(f.pageRows())
	case xpNoRecords:
		return b(onGrid && len(f.results) == 0)
	case xpNextInput:
		return b(onGrid && f.page < f.lastPage())
	case xpDetailNumber, xpDetailStatus:
		return b(onDetail)
	}
	if i, ok := rowIndex(xpath); ok {
		_, ok := f.row(i)
		return b(ok)
	}
	return 0
}

func (f *fakeSite) Visible(ctx context.Context, xpath string) (bool, error) {
	c, err := f.Count(ctx, xpath)
	return c > 0, err
}

func (f *fakeSite) Text(ctx context.Context, xpath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := rowIndex(xpath)
	if !ok {
		return "", fmt.Errorf("no text for %s", xpath)
	}
	r, ok := f.row(i)
	if !ok {
		return "", errors.New("no such element")
	}
	if f.stale[r.Number] > 0 {
		f.stale[r.Number]--
		return "", errors.New("stale element reference")
	}
	return fmt.Sprintf("%s %s %s", viewDataLabel, r.Number, r.Trade), nil
}

func (f *fakeSite) Attr(ctx context.Context, xpath, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if xpath == xpPageIndex && f.tab().screen == screenGrid {
		return strconv.Itoa(f.page), nil
	}
	i, ok := rowIndex(xpath)
	if !ok || name != "href" {
		return "", errors.New("no such element")
	}
	if _, ok := f.row(i); !ok {
		return "", errors.New("no such element")
	}
	if f.direct {
		return fmt.Sprintf("detail.aspx?row=%d", i), nil
	}
	return fmt.Sprintf("javascript:__doPostBack('ctl00$ContentPlaceHolder1$grid$ctl%02d$lnkView','')", i), nil
}

func (f *fakeSite) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tab()
	if t.screen != screenDetail {
		return "<html><body></body></html>", nil
	}
	r := t.detail
	return fmt.Sprintf(`<html><body><form>
<span id="ContentPlaceHolder1_lb_status">คงอยู่</span>
<span id="ContentPlaceHolder1_lb_no_regnos"> %s </span>
<span id="ContentPlaceHolder1_lb_type">จดแจ้ง</span>
<span id="ContentPlaceHolder1_lb_trade_Tpop">%s</span>
<span id="ContentPlaceHolder1_lb_cosnm_Tpop">%s serum</span>
<span id="ContentPlaceHolder1_lb_usernm_pop">%s</span>
<span id="ContentPlaceHolder1_lb_NAME_EMPLOYER">Line one<br>Line two</span>
</form></body></html>`, r.Number, r.Trade, r.Trade, r.Operator), nil
}

func (f *fakeSite) SetValue(ctx context.Context, xpath, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch xpath {
	case xpOperatorInput:
		f.operatorField = value
	case xpPeriodInput:
		f.periodField = value
	default:
		return errors.New("no such element")
	}
	return nil
}

func (f *fakeSite) SendKeys(ctx context.Context, xpath, keys string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch xpath {
	case xpOperatorInput:
		f.operatorField += keys
	case xpPeriodInput:
		f.periodField += keys
	default:
		return errors.New("no such element")
	}
	return nil
}

func (f *fakeSite) Click(ctx context.Context, xpath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count(xpath) == 0 {
		return errors.New("element not interactable")
	}
	switch xpath {
	case xpSearchButton:
		f.searches++
		if f.hang[f.periodField] {
			return nil
		}
		f.results = append([]fakeRow(nil), f.data[f.operatorField][f.periodField]...)
		f.page = 1
		f.tab().screen = screenGrid
		return nil
	case xpNextInput:
		if !f.stuckNext {
			f.page++
		}
		return nil
	}
	if i, ok := rowIndex(xpath); ok {
		f.directClicks++
		return f.openDetail(i)
	}
	return nil
}

func (f *fakeSite) PostBack(ctx context.Context, target, argument string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := fakeTarget.FindStringSubmatch(target)
	if m == nil {
		return fmt.Errorf("unknown postback target %q", target)
	}
	i, _ := strconv.Atoi(m[1])
	f.postBacks++
	return f.openDetail(i)
}

func (f *fakeSite) openDetail(i int) error {
	r, ok := f.row(i)
	if !ok {
		return errors.New("no such row")
	}
	f.detailOpens[r.Number]++
	if f.newTab {
		f.seq++
		f.tabs = append(f.tabs, &fakeTab{id: fmt.Sprintf("tab-%d", f.seq), screen: screenDetail, detail: r})
		return nil
	}
	t := f.tab()
	t.history = append(t.history, t.screen)
	t.screen = screenDetail
	t.detail = r
	return nil
}

func (f *fakeSite) Tabs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.tabs))
	for i, t := range f.tabs {
		ids[i] = t.id
	}
	return ids, nil
}

func (f *fakeSite) CurrentTab() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tab().id
}

func (f *fakeSite) SwitchTab(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tabs {
		if t.id == id {
			f.cur = i
			return nil
		}
	}
	return fmt.Errorf("no tab %s", id)
}

func (f *fakeSite) CloseTab(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.tabs[0].id {
		return errors.New("refusing to close the primary tab")
	}
	for i, t := range f.tabs {
		if t.id == id {
			f.tabs = append(f.tabs[:i], f.tabs[i+1:]...)
			if f.cur >= i {
				f.cur = 0
			}
			return nil
		}
	}
	return fmt.Errorf("no tab %s", id)
}

func testConfig() Config {
	short := 30 * time.Millisecond
	return Config{
		URL:          "https://registry.test/search",
		Periods:      []string{"68"},
		PollInterval: time.Millisecond,
		Backoff:      time.Millisecond,
		Timeouts: Timeouts{
			OpenFirst: short, OpenRetry: short, SearchButton: short,
			SearchFirst: short, SearchRetry: short, Idle: short, OpenIdle: short,
			Trigger: short, Detail: short, Page: short,
		},
	}
}
