// internal/browser/chromedp.go
package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/chromedp/chromedp"
)

// registryVar is the page-side array holding the elements of the most recent
// query. Element handles are indexes into it; Parent and Find append to it.
const registryVar = "window.__plensReg"

// ChromeSession drives a headless Chrome page via chromedp. The parent
// context passed to NewChromeSession bounds the browser's lifetime, so
// cancelling the run tears the browser down mid-operation.
type ChromeSession struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	cfg         *Config

	mu  sync.Mutex
	gen int64
}

// NewChromeSession launches a Chrome instance and opens one page.
func NewChromeSession(parent context.Context, cfg *Config) (*ChromeSession, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // Required for Docker environments
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = NextUserAgent()
	}
	opts = append(opts, chromedp.UserAgent(ua))
	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyURL))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	s := &ChromeSession{
		ctx:         ctx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		cfg:         cfg,
	}

	// Launch the browser and apply the viewport before first use.
	if err := chromedp.Run(ctx, chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight))); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return s, nil
}

// eval evaluates a script on the page with the per-operation timeout.
// The caller context is only consulted for early cancellation; the chromedp
// context chain carries the run's cancellation itself.
func (s *ChromeSession) eval(ctx context.Context, script string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx := s.ctx
	if s.cfg.OpTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(s.ctx, s.cfg.OpTimeout)
		defer cancel()
	}
	return chromedp.Run(opCtx, chromedp.Evaluate(script, out))
}

// bumpGen invalidates all outstanding element handles.
func (s *ChromeSession) bumpGen() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

func (s *ChromeSession) currentGen() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Navigate loads a URL and waits for the document body to be ready.
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	navCtx := s.ctx
	if s.cfg.NavTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(s.ctx, s.cfg.NavTimeout)
		defer cancel()
	}

	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if s.cfg.WaitDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(s.cfg.WaitDelay))
	}
	if err := chromedp.Run(navCtx, tasks); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.bumpGen()
	return nil
}

// Query fills the page registry with the selector's matches and returns
// handles to them. Handles from earlier queries become stale.
func (s *ChromeSession) Query(ctx context.Context, selector string) ([]Element, error) {
	script := fmt.Sprintf(
		`(function(){ %s = Array.from(document.querySelectorAll(%s)); return %s.length; })()`,
		registryVar, strconv.Quote(selector), registryVar)

	var n int
	if err := s.eval(ctx, script, &n); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	gen := s.bumpGen()
	return s.handles(n, gen), nil
}

// QueryByText walks the document's text nodes and returns the parents of
// those containing the substring. Used for price-anchored card location.
func (s *ChromeSession) QueryByText(ctx context.Context, substring string) ([]Element, error) {
	script := fmt.Sprintf(`(function(needle){
		var out = [];
		var walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
		while (walker.nextNode()) {
			var node = walker.currentNode;
			if (node.nodeValue && node.nodeValue.indexOf(needle) !== -1 && node.parentElement) {
				if (out.indexOf(node.parentElement) === -1) { out.push(node.parentElement); }
			}
		}
		%s = out;
		return out.length;
	})(%s)`, registryVar, strconv.Quote(substring))

	var n int
	if err := s.eval(ctx, script, &n); err != nil {
		return nil, fmt.Errorf("query by text %q: %w", substring, err)
	}
	gen := s.bumpGen()
	return s.handles(n, gen), nil
}

func (s *ChromeSession) handles(n int, gen int64) []Element {
	els := make([]Element, n)
	for i := 0; i < n; i++ {
		els[i] = &chromeElement{session: s, index: i, gen: gen}
	}
	return els
}

// ScrollBy scrolls the page down by dy pixels.
func (s *ChromeSession) ScrollBy(ctx context.Context, dy int) error {
	return s.eval(ctx, fmt.Sprintf(`window.scrollBy(0, %d)`, dy), nil)
}

// ScrollToBottom jumps to the end of the document.
func (s *ChromeSession) ScrollToBottom(ctx context.Context) error {
	return s.eval(ctx, `window.scrollTo(0, document.body.scrollHeight)`, nil)
}

// PageHeight returns the document scroll height.
func (s *ChromeSession) PageHeight(ctx context.Context) (float64, error) {
	var h float64
	if err := s.eval(ctx, `document.body.scrollHeight`, &h); err != nil {
		return 0, err
	}
	return h, nil
}

// CurrentURL returns the page URL after redirects.
func (s *ChromeSession) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var url string
	if err := chromedp.Run(s.ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// DismissOverlays clicks up to three visible matches per close-button
// selector. Failures are swallowed; overlays are best-effort noise removal.
func (s *ChromeSession) DismissOverlays(ctx context.Context, selectors ...string) error {
	for _, sel := range selectors {
		script := fmt.Sprintf(`(function(sel){
			var hits = document.querySelectorAll(sel);
			var clicked = 0;
			for (var i = 0; i < hits.length && clicked < 3; i++) {
				var r = hits[i].getBoundingClientRect();
				if (r.width > 0 && r.height > 0) { hits[i].click(); clicked++; }
			}
			return clicked;
		})(%s)`, strconv.Quote(sel))
		var clicked int
		if err := s.eval(ctx, script, &clicked); err != nil {
			continue
		}
	}
	return nil
}

// Close shuts the page and the browser down.
func (s *ChromeSession) Close() error {
	if s.cancelCtx != nil {
		s.cancelCtx()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
	return nil
}

// chromeElement is a handle into the page registry. gen ties it to the query
// that produced it; any later query or navigation makes it stale.
type chromeElement struct {
	session *ChromeSession
	index   int
	gen     int64
}

func (e *chromeElement) fresh() bool {
	return e.gen == e.session.currentGen()
}

// ref returns the JS expression for this element's registry slot.
func (e *chromeElement) ref() string {
	return fmt.Sprintf("%s[%d]", registryVar, e.index)
}

// evalString runs a script expected to yield a string, or null when the
// element is gone.
func (e *chromeElement) evalString(ctx context.Context, script string) (string, error) {
	if !e.fresh() {
		return "", ErrStaleElement
	}
	var out *string
	if err := e.session.eval(ctx, script, &out); err != nil {
		return "", err
	}
	if out == nil {
		return "", ErrStaleElement
	}
	return *out, nil
}

func (e *chromeElement) evalBool(ctx context.Context, script string) (bool, error) {
	if !e.fresh() {
		return false, ErrStaleElement
	}
	var out *bool
	if err := e.session.eval(ctx, script, &out); err != nil {
		return false, err
	}
	if out == nil {
		return false, ErrStaleElement
	}
	return *out, nil
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	script := fmt.Sprintf(
		`(function(){ var el = %s; return (el && el.isConnected) ? (el.innerText || "") : null; })()`, e.ref())
	return e.evalString(ctx, script)
}

func (e *chromeElement) HTML(ctx context.Context) (string, error) {
	script := fmt.Sprintf(
		`(function(){ var el = %s; return (el && el.isConnected) ? el.outerHTML : null; })()`, e.ref())
	return e.evalString(ctx, script)
}

func (e *chromeElement) TagName(ctx context.Context) (string, error) {
	script := fmt.Sprintf(
		`(function(){ var el = %s; return (el && el.isConnected) ? el.tagName.toLowerCase() : null; })()`, e.ref())
	return e.evalString(ctx, script)
}

func (e *chromeElement) Attribute(ctx context.Context, name string) (string, error) {
	script := fmt.Sprintf(
		`(function(){ var el = %s; return (el && el.isConnected) ? (el.getAttribute(%s) || "") : null; })()`,
		e.ref(), strconv.Quote(name))
	return e.evalString(ctx, script)
}

func (e *chromeElement) BoundingBox(ctx context.Context) (Geometry, error) {
	if !e.fresh() {
		return Geometry{}, ErrStaleElement
	}
	script := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el || !el.isConnected) { return null; }
		var r = el.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	})()`, e.ref())
	var out *Geometry
	if err := e.session.eval(ctx, script, &out); err != nil {
		return Geometry{}, err
	}
	if out == nil {
		return Geometry{}, ErrStaleElement
	}
	return *out, nil
}

func (e *chromeElement) IsVisible(ctx context.Context) (bool, error) {
	script := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el || !el.isConnected) { return null; }
		var st = getComputedStyle(el);
		if (st.display === "none" || st.visibility === "hidden") { return false; }
		var r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	})()`, e.ref())
	return e.evalBool(ctx, script)
}

func (e *chromeElement) IsEnabled(ctx context.Context) (bool, error) {
	script := fmt.Sprintf(
		`(function(){ var el = %s; return (el && el.isConnected) ? !el.disabled : null; })()`, e.ref())
	return e.evalBool(ctx, script)
}

func (e *chromeElement) Click(ctx context.Context) error {
	script := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el || !el.isConnected) { return false; }
		el.scrollIntoView({block: "center"});
		el.click();
		return true;
	})()`, e.ref())
	ok, err := e.evalBool(ctx, script)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStaleElement
	}
	return nil
}

func (e *chromeElement) ScrollIntoView(ctx context.Context) error {
	script := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el || !el.isConnected) { return false; }
		el.scrollIntoView({block: "center"});
		return true;
	})()`, e.ref())
	ok, err := e.evalBool(ctx, script)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStaleElement
	}
	return nil
}

// Parent appends the parent element to the registry and returns a handle to
// it. The walk stops at body: a nil element signals the top.
func (e *chromeElement) Parent(ctx context.Context) (Element, error) {
	if !e.fresh() {
		return nil, ErrStaleElement
	}
	script := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el || !el.isConnected) { return -2; }
		var p = el.parentElement;
		if (!p || p === document.body || p === document.documentElement) { return -1; }
		%s.push(p);
		return %s.length - 1;
	})()`, e.ref(), registryVar, registryVar)
	var idx int
	if err := e.session.eval(ctx, script, &idx); err != nil {
		return nil, err
	}
	switch {
	case idx == -2:
		return nil, ErrStaleElement
	case idx < 0:
		return nil, nil
	}
	return &chromeElement{session: e.session, index: idx, gen: e.gen}, nil
}

// Find appends matching descendants to the registry and returns handles.
func (e *chromeElement) Find(ctx context.Context, selector string) ([]Element, error) {
	if !e.fresh() {
		return nil, ErrStaleElement
	}
	script := fmt.Sprintf(`(function(sel){
		var el = %s;
		if (!el || !el.isConnected) { return null; }
		var found = Array.from(el.querySelectorAll(sel));
		var base = %s.length;
		for (var k = 0; k < found.length; k++) { %s.push(found[k]); }
		var idx = [];
		for (var k = 0; k < found.length; k++) { idx.push(base + k); }
		return idx;
	})(%s)`, e.ref(), registryVar, registryVar, strconv.Quote(selector))
	var out *[]int
	if err := e.session.eval(ctx, script, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrStaleElement
	}
	els := make([]Element, len(*out))
	for i, idx := range *out {
		els[i] = &chromeElement{session: e.session, index: idx, gen: e.gen}
	}
	return els, nil
}

func (e *chromeElement) Has(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(
		`(function(){ var el = %s; return (el && el.isConnected) ? !!el.querySelector(%s) : null; })()`,
		e.ref(), strconv.Quote(selector))
	return e.evalBool(ctx, script)
}
