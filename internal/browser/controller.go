// internal/browser/controller.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/browser/humanoid"
	"github.com/xkilldash9x/jobagent-cli/internal/browser/stealth"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	jsClick       = `function() { this.click(); }`
	pollInterval  = 250 * time.Millisecond
	switchTimeout = 5 * time.Second
)

// tab is one browser target and the context that owns it.
type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Controller drives a single Chrome process through chromedp. All page
// interaction in the application goes through it.
type Controller struct {
	cfg     config.BrowserConfig
	persona stealth.Persona
	logger  *zap.Logger
	// typist paces keystrokes when set; nil sends text in one shot.
	typist *humanoid.Typist

	allocCancel context.CancelFunc

	mu      sync.Mutex
	primary schemas.TabID
	current schemas.TabID
	tabs    map[schemas.TabID]*tab
	order   []schemas.TabID

	closeOnce sync.Once
}

var _ schemas.Browser = (*Controller)(nil)

// launchFlags computes the Chrome command line flags for cfg. A false value
// removes a flag that chromedp would otherwise set by default.
func launchFlags(cfg config.BrowserConfig, persona stealth.Persona) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":               cfg.Headless,
		"enable-automation":      false,
		"disable-blink-features": "AutomationControlled",
		"disable-http2":          true,
		"user-agent":             persona.UserAgent,
		"window-size":            fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight),
		"lang":                   persona.Locale,
	}
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if key, value, found := strings.Cut(arg, "="); found {
			flags[key] = value
		} else if arg != "" {
			flags[arg] = true
		}
	}
	return flags
}

// AllocatorOptions builds the exec allocator options from chromedp's
// defaults plus the configured flags.
func AllocatorOptions(cfg config.BrowserConfig, persona stealth.Persona) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range launchFlags(cfg, persona) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Launch starts Chrome and prepares the primary tab. The caller owns the
// returned controller and must Close it.
func Launch(ctx context.Context, cfg config.BrowserConfig, persona stealth.Persona, logger *zap.Logger) (*Controller, error) {
	log := logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg, persona)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(log.Sugar().Debugf),
	)

	// The first Run allocates the browser, so it must use the tab context
	// itself rather than a derived one with a deadline.
	if err := chromedp.Run(browserCtx, stealth.Apply(persona, log)); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	id := targetID(browserCtx)
	c := &Controller{
		cfg:         cfg,
		persona:     persona,
		logger:      log,
		allocCancel: allocCancel,
		primary:     id,
		current:     id,
		tabs:        map[schemas.TabID]*tab{id: {ctx: browserCtx, cancel: browserCancel}},
		order:       []schemas.TabID{id},
	}
	if cfg.HumanTyping {
		c.typist = humanoid.New(humanoid.DefaultConfig(), 0)
	}
	log.Info("Browser launched",
		zap.Bool("headless", cfg.Headless),
		zap.Int("width", cfg.WindowWidth),
		zap.Int("height", cfg.WindowHeight),
	)
	return c, nil
}

func targetID(ctx context.Context) schemas.TabID {
	if c := chromedp.FromContext(ctx); c != nil && c.Target != nil {
		return schemas.TabID(c.Target.TargetID)
	}
	return ""
}

// queryOption maps a locator strategy onto a chromedp query option.
func queryOption(loc schemas.Locator) chromedp.QueryOption {
	switch loc.Strategy {
	case schemas.ByXPath:
		return chromedp.BySearch
	case schemas.ByID:
		return chromedp.ByID
	default:
		return chromedp.ByQuery
	}
}

// activeTab returns the current tab.
func (c *Controller) activeTab() (*tab, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tabs[c.current]
	if !ok {
		return nil, fmt.Errorf("browser is closed")
	}
	return t, nil
}

// bounded returns a context carrying the current tab's CDP values, the
// caller's cancellation and, when timeout > 0, a deadline.
func (c *Controller) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	t, err := c.activeTab()
	if err != nil {
		return nil, nil, err
	}
	combined, cancel := CombineContext(t.ctx, ctx)
	if timeout <= 0 {
		return combined, cancel, nil
	}
	withDeadline, cancelDeadline := context.WithTimeout(combined, timeout)
	return withDeadline, func() {
		cancelDeadline()
		cancel()
	}, nil
}

// waitBound is the bound for an action that waits on the page. A
// non-positive timeout falls back to the navigation timeout.
func (c *Controller) waitBound(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return c.cfg.NavigationTimeout
}

// classify converts deadline expiry into a TimeoutError. Cancellation by the
// caller is passed through untouched.
func classify(opCtx, boundedCtx context.Context, op string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if opCtx.Err() != nil {
		return opCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(boundedCtx.Err(), context.DeadlineExceeded) {
		return &schemas.TimeoutError{Operation: op, After: timeout, Err: err}
	}
	return err
}

func (c *Controller) Navigate(ctx context.Context, url string) error {
	tctx, cancel, err := c.bounded(ctx, c.cfg.NavigationTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	c.logger.Debug("Navigating", zap.String("url", url))
	err = chromedp.Run(tctx, chromedp.Navigate(url))
	return classify(ctx, tctx, "navigation to "+url, c.cfg.NavigationTimeout, err)
}

func (c *Controller) FindElement(ctx context.Context, loc schemas.Locator, timeout time.Duration) (schemas.Element, error) {
	if timeout <= 0 {
		found, err := c.FindElements(ctx, loc)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			u, _ := c.CurrentURL(ctx)
			return nil, &schemas.PageStructureError{Element: loc.String(), URL: u}
		}
		return found[0], nil
	}

	tctx, cancel, err := c.bounded(ctx, timeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var outer string
	by := queryOption(loc)
	err = chromedp.Run(tctx,
		chromedp.WaitReady(loc.Value, by),
		chromedp.OuterHTML(loc.Value, &outer, by),
	)
	if err = classify(ctx, tctx, "element "+loc.String(), timeout, err); err != nil {
		return nil, err
	}
	return elementFromOuterHTML(outer)
}

// elementFromOuterHTML parses a single element's markup into a snapshot.
func elementFromOuterHTML(outer string) (schemas.Element, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(outer), body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse element markup: %w", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return &snapshot{node: n}, nil
		}
	}
	return nil, fmt.Errorf("element markup contained no element")
}

// FindElements snapshots the current page and evaluates loc against it. It
// does not wait; callers settle first.
func (c *Controller) FindElements(ctx context.Context, loc schemas.Locator) ([]schemas.Element, error) {
	src, err := c.PageSource(ctx)
	if err != nil {
		return nil, err
	}
	return QueryHTML(src, loc)
}

// Click waits for loc to be ready and clicks it from script, which avoids
// overlays intercepting a synthesized mouse event.
func (c *Controller) Click(ctx context.Context, loc schemas.Locator, timeout time.Duration) error {
	timeout = c.waitBound(timeout)
	tctx, cancel, err := c.bounded(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	var nodes []*cdp.Node
	err = chromedp.Run(tctx,
		chromedp.Nodes(loc.Value, &nodes, queryOption(loc), chromedp.NodeReady),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(nodes) == 0 {
				return fmt.Errorf("no node for %s", loc)
			}
			obj, err := dom.ResolveNode().WithNodeID(nodes[0].NodeID).Do(ctx)
			if err != nil {
				return err
			}
			_, exc, err := cdpruntime.CallFunctionOn(jsClick).WithObjectID(obj.ObjectID).Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return fmt.Errorf("click script failed: %s", exc.Text)
			}
			return nil
		}),
	)
	return classify(ctx, tctx, "click on "+loc.String(), timeout, err)
}

func (c *Controller) Type(ctx context.Context, loc schemas.Locator, text string, timeout time.Duration) error {
	timeout = c.waitBound(timeout)
	tctx, cancel, err := c.bounded(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	by := queryOption(loc)
	if c.typist == nil {
		err = chromedp.Run(tctx,
			chromedp.WaitVisible(loc.Value, by),
			chromedp.SetValue(loc.Value, "", by),
			chromedp.SendKeys(loc.Value, text, by),
		)
	} else {
		err = chromedp.Run(tctx,
			chromedp.WaitVisible(loc.Value, by),
			chromedp.SetValue(loc.Value, "", by),
		)
		if err == nil {
			err = c.typist.Type(tctx, text, func(ctx context.Context, keys string) error {
				return chromedp.Run(ctx, chromedp.SendKeys(loc.Value, keys, by))
			})
		}
	}
	c.logger.Debug("Typed into field", zap.Stringer("locator", loc), zap.Int("length", len(text)))
	return classify(ctx, tctx, "typing into "+loc.String(), timeout, err)
}

func (c *Controller) SubmitForm(ctx context.Context, loc schemas.Locator) error {
	tctx, cancel, err := c.bounded(ctx, c.cfg.NavigationTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	err = chromedp.Run(tctx, chromedp.Submit(loc.Value, queryOption(loc)))
	return classify(ctx, tctx, "submitting "+loc.String(), c.cfg.NavigationTimeout, err)
}

func (c *Controller) WaitForCondition(ctx context.Context, cond schemas.Condition, timeout time.Duration) error {
	return PollCondition(ctx, c, cond, timeout, pollInterval)
}

// Screenshot captures the viewport as PNG, creating parent directories.
func (c *Controller) Screenshot(ctx context.Context, path string) error {
	tctx, cancel, err := c.bounded(ctx, c.cfg.NavigationTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	var buf []byte
	if err := chromedp.Run(tctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return classify(ctx, tctx, "screenshot", c.cfg.NavigationTimeout, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	c.logger.Debug("Screenshot saved", zap.String("path", path))
	return nil
}

func (c *Controller) CurrentURL(ctx context.Context) (string, error) {
	tctx, cancel, err := c.bounded(ctx, 0)
	if err != nil {
		return "", err
	}
	defer cancel()

	var u string
	if err := chromedp.Run(tctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (c *Controller) PageSource(ctx context.Context) (string, error) {
	tctx, cancel, err := c.bounded(ctx, c.cfg.NavigationTimeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	var src string
	err = chromedp.Run(tctx, chromedp.OuterHTML("html", &src, chromedp.ByQuery))
	return src, classify(ctx, tctx, "page source", c.cfg.NavigationTimeout, err)
}

func (c *Controller) Back(ctx context.Context) error {
	tctx, cancel, err := c.bounded(ctx, c.cfg.NavigationTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	err = chromedp.Run(tctx, chromedp.NavigateBack())
	return classify(ctx, tctx, "history back", c.cfg.NavigationTimeout, err)
}

// -- Tabs --

// OpenTab creates a tab with the controller's persona, navigates it to url
// and makes it current.
func (c *Controller) OpenTab(ctx context.Context, url string) (schemas.TabID, error) {
	c.mu.Lock()
	parent, ok := c.tabs[c.primary]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("browser is closed")
	}

	tabCtx, tabCancel := chromedp.NewContext(parent.ctx)
	if err := chromedp.Run(tabCtx, stealth.Apply(c.persona, c.logger)); err != nil {
		tabCancel()
		return "", fmt.Errorf("failed to open tab: %w", err)
	}
	id := targetID(tabCtx)

	c.mu.Lock()
	c.tabs[id] = &tab{ctx: tabCtx, cancel: tabCancel}
	c.order = append(c.order, id)
	c.current = id
	c.mu.Unlock()

	c.logger.Debug("Opened tab", zap.String("tab", string(id)), zap.String("url", url))
	if err := c.Navigate(ctx, url); err != nil {
		return id, err
	}
	return id, nil
}

func (c *Controller) SwitchTab(id schemas.TabID) error {
	c.mu.Lock()
	t, ok := c.tabs[id]
	if ok {
		c.current = id
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown tab %q", id)
	}

	ctx, cancel := context.WithTimeout(t.ctx, switchTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, page.BringToFront()); err != nil {
		c.logger.Debug("Failed to bring tab to front", zap.String("tab", string(id)), zap.Error(err))
	}
	return nil
}

// CloseTab closes a secondary tab. The primary tab lives as long as the
// browser and cannot be closed on its own.
func (c *Controller) CloseTab(id schemas.TabID) error {
	c.mu.Lock()
	if id == c.primary {
		c.mu.Unlock()
		return fmt.Errorf("cannot close the primary tab")
	}
	t, ok := c.tabs[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown tab %q", id)
	}
	delete(c.tabs, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.current == id {
		c.current = c.primary
	}
	c.mu.Unlock()

	t.cancel()
	c.logger.Debug("Closed tab", zap.String("tab", string(id)))
	return nil
}

func (c *Controller) CurrentTab() schemas.TabID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) Tabs() []schemas.TabID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schemas.TabID(nil), c.order...)
}

// -- Cookies --

func (c *Controller) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	tctx, cancel, err := c.bounded(ctx, c.cfg.NavigationTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var raw []*network.Cookie
	err = chromedp.Run(tctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	out := make([]schemas.Cookie, 0, len(raw))
	for _, ck := range raw {
		cookie := schemas.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
			SameSite: string(ck.SameSite),
		}
		if !ck.Session && ck.Expires > 0 {
			cookie.Expires = time.Unix(int64(ck.Expires), 0).UTC()
		}
		out = append(out, cookie)
	}
	return out, nil
}

func (c *Controller) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	tctx, cancel, err := c.bounded(ctx, c.cfg.NavigationTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	return chromedp.Run(tctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ck := range cookies {
			p := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(ck.Path).
				WithHTTPOnly(ck.HTTPOnly).
				WithSecure(ck.Secure)
			if !ck.Expires.IsZero() {
				exp := cdp.TimeSinceEpoch(ck.Expires)
				p = p.WithExpires(&exp)
			}
			if ck.SameSite != "" {
				p = p.WithSameSite(network.CookieSameSite(ck.SameSite))
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %s: %w", ck.Name, err)
			}
		}
		return nil
	}))
}

// Close shuts the browser down. Secondary tabs are closed first, then the
// primary tab and finally the Chrome process.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		tabs := c.tabs
		primary := c.primary
		c.tabs = map[schemas.TabID]*tab{}
		c.order = nil
		c.mu.Unlock()

		for id, t := range tabs {
			if id != primary {
				t.cancel()
			}
		}
		if t, ok := tabs[primary]; ok {
			t.cancel()
		}
		c.allocCancel()
		c.logger.Info("Browser closed")
	})
	return nil
}
