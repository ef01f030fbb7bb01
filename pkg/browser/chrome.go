package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/tidwall/gjson"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"
	DefaultLanguage  = "th-TH"

	actionTimeout = 30 * time.Second
)

var blockedResources = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
}

const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// stableProbe checks the Telerik and ASP.NET AJAX managers before falling
// back to the document ready state.
const stableProbe = `(function(){
  try {
    if (window.Telerik && Telerik.Web && Telerik.Web.UI && Telerik.Web.UI.RadAjaxManager) {
      var m = Telerik.Web.UI.RadAjaxManager.getCurrent();
      if (m && typeof m.get_isRequesting === 'function') return !m.get_isRequesting();
    }
    if (window.Sys && Sys.WebForms && Sys.WebForms.PageRequestManager) {
      var pr = Sys.WebForms.PageRequestManager.getInstance();
      if (pr) return !pr.get_isInAsyncPostBack();
    }
  } catch (e) {}
  return document.readyState === 'complete';
})()`

// nodeProbe returns a JSON summary of the first node matching an XPath.
const nodeProbe = `(function(xp, attr){
  var r = document.evaluate(xp, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  var el = r.snapshotLength ? r.snapshotItem(0) : null;
  var out = {count: r.snapshotLength, text: '', visible: false, attr: null};
  if (el) {
    out.text = el.innerText || el.textContent || '';
    out.visible = !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
    if (attr) { out.attr = el.getAttribute(attr); }
  }
  return JSON.stringify(out);
})(%s, %s)`

const nodeAction = `(function(xp, value){
  var el = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  if (!el) return false;
  %s
  return true;
})(%s, %s)`

const postBackScript = `(function(target, arg){
  var f = document.forms[0];
  function ensure(n){
    var el = document.getElementsByName(n)[0];
    if (!el) { el = document.createElement('input'); el.type = 'hidden'; el.name = n; el.id = n; f.appendChild(el); }
    return el;
  }
  ensure('__EVENTTARGET').value = target || '';
  ensure('__EVENTARGUMENT').value = arg || '';
  f.submit();
  return true;
})(%s, %s)`

// Options configures a Chrome session.
type Options struct {
	Headless        bool
	UserAgent       string
	Language        string
	PageLoadTimeout time.Duration
	ExecPath        string
}

// Session is a PageOracle backed by a dedicated Chrome process via chromedp.
// A Session must not be shared between workers.
type Session struct {
	opts Options

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.Mutex
	tabs    map[target.ID]tab
	current target.ID
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession launches Chrome and prepares the first tab.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 120 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(1400, 900),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("lang", opts.Language),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetBlockedURLS(blockedResources),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
			return err
		}),
	)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	first := chromedp.FromContext(browserCtx).Target.TargetID
	return &Session{
		opts:          opts,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          map[target.ID]tab{first: {ctx: browserCtx, cancel: func() {}}},
		current:       first,
	}, nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	s.mu.Lock()
	for id, t := range s.tabs {
		if t.ctx != s.browserCtx {
			t.cancel()
		}
		delete(s.tabs, id)
	}
	s.mu.Unlock()
	s.browserCancel()
	s.allocCancel()
}

func (s *Session) tabCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabs[s.current].ctx
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(s.tabCtx(), timeout)
	defer cancel()
	// Stop early if the caller's context goes away.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.opts.PageLoadTimeout, chromedp.Navigate(url))
}

func (s *Session) Reload(ctx context.Context) error {
	return s.run(ctx, s.opts.PageLoadTimeout, chromedp.Reload())
}

func (s *Session) Back(ctx context.Context) error {
	return s.run(ctx, s.opts.PageLoadTimeout, chromedp.NavigateBack())
}

func (s *Session) IsStable(ctx context.Context) (bool, error) {
	var ok bool
	if err := s.run(ctx, actionTimeout, chromedp.Evaluate(stableProbe, &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Session) Nudge(ctx context.Context) error {
	return s.run(ctx, actionTimeout,
		chromedp.Evaluate(`window.scrollBy(0,200)`, nil),
		chromedp.Evaluate(`window.scrollBy(0,-200)`, nil),
	)
}

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (s *Session) probe(ctx context.Context, xpath, attr string) (gjson.Result, error) {
	var raw string
	expr := fmt.Sprintf(nodeProbe, jsString(xpath), jsString(attr))
	if err := s.run(ctx, actionTimeout, chromedp.Evaluate(expr, &raw)); err != nil {
		return gjson.Result{}, err
	}
	return gjson.Parse(raw), nil
}

func (s *Session) Count(ctx context.Context, xpath string) (int, error) {
	res, err := s.probe(ctx, xpath, "")
	if err != nil {
		return 0, err
	}
	return int(res.Get("count").Int()), nil
}

func (s *Session) Visible(ctx context.Context, xpath string) (bool, error) {
	res, err := s.probe(ctx, xpath, "")
	if err != nil {
		return false, err
	}
	return res.Get("visible").Bool(), nil
}

func (s *Session) Text(ctx context.Context, xpath string) (string, error) {
	res, err := s.probe(ctx, xpath, "")
	if err != nil {
		return "", err
	}
	if res.Get("count").Int() == 0 {
		return "", fmt.Errorf("no element matches %s", xpath)
	}
	return res.Get("text").String(), nil
}

func (s *Session) Attr(ctx context.Context, xpath, name string) (string, error) {
	res, err := s.probe(ctx, xpath, name)
	if err != nil {
		return "", err
	}
	if res.Get("count").Int() == 0 {
		return "", fmt.Errorf("no element matches %s", xpath)
	}
	return res.Get("attr").String(), nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *Session) act(ctx context.Context, xpath, value, body string) error {
	var found bool
	expr := fmt.Sprintf(nodeAction, body, jsString(xpath), jsString(value))
	if err := s.run(ctx, actionTimeout, chromedp.Evaluate(expr, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no element matches %s", xpath)
	}
	return nil
}

// SetValue assigns the element's value directly, bypassing keystroke timing.
func (s *Session) SetValue(ctx context.Context, xpath, value string) error {
	return s.act(ctx, xpath, value, `el.value = value;`)
}

func (s *Session) SendKeys(ctx context.Context, xpath, keys string) error {
	return s.run(ctx, actionTimeout, chromedp.SendKeys(xpath, keys, chromedp.BySearch))
}

// Click scrolls the element into view and clicks it through the DOM.
func (s *Session) Click(ctx context.Context, xpath string) error {
	if err := s.act(ctx, xpath, "", `el.scrollIntoView({block:'center'});`); err != nil {
		return err
	}
	if err := Sleep(ctx, 200*time.Millisecond); err != nil {
		return err
	}
	return s.act(ctx, xpath, "", `el.click();`)
}

func (s *Session) PostBack(ctx context.Context, eventTarget, argument string) error {
	expr := fmt.Sprintf(postBackScript, jsString(eventTarget), jsString(argument))
	return s.run(ctx, actionTimeout, chromedp.Evaluate(expr, nil))
}

func (s *Session) Tabs(ctx context.Context) ([]string, error) {
	tctx, cancel := context.WithTimeout(s.browserCtx, actionTimeout)
	defer cancel()
	infos, err := chromedp.Targets(tctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, info := range infos {
		if info.Type == "page" {
			ids = append(ids, string(info.TargetID))
		}
	}
	return ids, nil
}

func (s *Session) CurrentTab() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.current)
}

func (s *Session) SwitchTab(ctx context.Context, id string) error {
	tid := target.ID(id)
	s.mu.Lock()
	if _, ok := s.tabs[tid]; ok {
		s.current = tid
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	tctx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(tid))
	// Attach to the target before handing it out.
	if err := chromedp.Run(tctx); err != nil {
		cancel()
		return fmt.Errorf("failed to attach to tab %s: %w", id, err)
	}
	s.mu.Lock()
	s.tabs[tid] = tab{ctx: tctx, cancel: cancel}
	s.current = tid
	s.mu.Unlock()
	return nil
}

func (s *Session) CloseTab(ctx context.Context, id string) error {
	tid := target.ID(id)
	s.mu.Lock()
	t, ok := s.tabs[tid]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown tab %s", id)
	}
	if t.ctx == s.browserCtx {
		return fmt.Errorf("refusing to close the primary tab")
	}
	err := chromedp.Run(t.ctx, page.Close())
	t.cancel()
	s.mu.Lock()
	delete(s.tabs, tid)
	s.mu.Unlock()
	return err
}

var _ PageOracle = (*Session)(nil)
