// File: internal/mocks/browser.go
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/browser"
)

// PrimaryTab is the ID of the tab a FakeBrowser starts with.
const PrimaryTab schemas.TabID = "tab-0"

// FakeBrowser is a scripted, in-memory schemas.Browser. Pages are served
// from a URL map and element lookups run against that HTML with the same
// snapshot code the real controller uses. Clicks and submits trigger
// registered callbacks, which typically move the browser to a new URL.
type FakeBrowser struct {
	mu sync.Mutex

	// Pages maps a URL to the HTML served for it.
	Pages map[string]string
	// Redirect, when set, rewrites an explicit navigation target.
	Redirect func(url string, cookies []schemas.Cookie) string
	// OnClick and OnSubmit are keyed by Locator.String().
	OnClick  map[string]func(f *FakeBrowser)
	OnSubmit map[string]func(f *FakeBrowser)
	// Fail injects an error for a method by name, e.g. "Screenshot".
	Fail map[string]error
	// NavigateErrors injects an error for navigation to a specific URL.
	NavigateErrors map[string]error

	Navigations []string
	Clicks      []string
	Typed       map[string]string
	// Bounds records the timeout of the last Click or Type per locator.
	Bounds      map[string]time.Duration
	Submits     []string
	Screenshots []string
	CloseCalls  int

	cookies []schemas.Cookie
	tabs    map[schemas.TabID][]string
	order   []schemas.TabID
	current schemas.TabID
	nextTab int
}

var _ schemas.Browser = (*FakeBrowser)(nil)

// NewFakeBrowser returns a browser with one blank tab.
func NewFakeBrowser() *FakeBrowser {
	return &FakeBrowser{
		Pages:          map[string]string{},
		OnClick:        map[string]func(*FakeBrowser){},
		OnSubmit:       map[string]func(*FakeBrowser){},
		Fail:           map[string]error{},
		NavigateErrors: map[string]error{},
		Typed:          map[string]string{},
		Bounds:         map[string]time.Duration{},
		tabs:           map[schemas.TabID][]string{PrimaryTab: nil},
		order:          []schemas.TabID{PrimaryTab},
		current:        PrimaryTab,
		nextTab:        1,
	}
}

// SetPage registers the HTML served for url.
func (f *FakeBrowser) SetPage(url, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pages[url] = html
}

// GoTo moves the current tab to url as a page-initiated navigation. It is
// not recorded in Navigations.
func (f *FakeBrowser) GoTo(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs[f.current] = append(f.tabs[f.current], url)
}

// Navigated reports whether url was ever an explicit navigation target.
func (f *FakeBrowser) Navigated(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.Navigations {
		if n == url {
			return true
		}
	}
	return false
}

func (f *FakeBrowser) injected(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fail[method]
}

func (f *FakeBrowser) urlLocked() string {
	h := f.tabs[f.current]
	if len(h) == 0 {
		return "about:blank"
	}
	return h[len(h)-1]
}

func (f *FakeBrowser) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail["Navigate"]; err != nil {
		return err
	}
	f.Navigations = append(f.Navigations, url)
	if err := f.NavigateErrors[url]; err != nil {
		return err
	}
	target := url
	if f.Redirect != nil {
		target = f.Redirect(url, f.cookies)
	}
	f.tabs[f.current] = append(f.tabs[f.current], target)
	return nil
}

func (f *FakeBrowser) lookup(loc schemas.Locator, timeout time.Duration) (schemas.Element, error) {
	f.mu.Lock()
	url := f.urlLocked()
	source := f.Pages[url]
	f.mu.Unlock()

	found, err := browser.QueryHTML(source, loc)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		if timeout > 0 {
			return nil, &schemas.TimeoutError{Operation: "element " + loc.String(), After: timeout}
		}
		return nil, &schemas.PageStructureError{Element: loc.String(), URL: url}
	}
	return found[0], nil
}

func (f *FakeBrowser) FindElement(ctx context.Context, loc schemas.Locator, timeout time.Duration) (schemas.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.lookup(loc, timeout)
}

func (f *FakeBrowser) FindElements(ctx context.Context, loc schemas.Locator) ([]schemas.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source, err := f.PageSource(ctx)
	if err != nil {
		return nil, err
	}
	return browser.QueryHTML(source, loc)
}

func (f *FakeBrowser) Click(ctx context.Context, loc schemas.Locator, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.injected("Click"); err != nil {
		return err
	}
	if _, err := f.lookup(loc, timeout); err != nil {
		return err
	}
	f.mu.Lock()
	f.Clicks = append(f.Clicks, loc.String())
	f.Bounds[loc.String()] = timeout
	cb := f.OnClick[loc.String()]
	f.mu.Unlock()
	if cb != nil {
		cb(f)
	}
	return nil
}

func (f *FakeBrowser) Type(ctx context.Context, loc schemas.Locator, text string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := f.lookup(loc, timeout); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Typed[loc.String()] = text
	f.Bounds[loc.String()] = timeout
	return nil
}

func (f *FakeBrowser) SubmitForm(ctx context.Context, loc schemas.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := f.lookup(loc, 0); err != nil {
		return err
	}
	f.mu.Lock()
	f.Submits = append(f.Submits, loc.String())
	cb := f.OnSubmit[loc.String()]
	f.mu.Unlock()
	if cb != nil {
		cb(f)
	}
	return nil
}

func (f *FakeBrowser) WaitForCondition(ctx context.Context, cond schemas.Condition, timeout time.Duration) error {
	return browser.PollCondition(ctx, f, cond, timeout, time.Millisecond)
}

func (f *FakeBrowser) Screenshot(ctx context.Context, path string) error {
	if err := f.injected("Screenshot"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Screenshots = append(f.Screenshots, path)
	return nil
}

func (f *FakeBrowser) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.urlLocked(), nil
}

func (f *FakeBrowser) PageSource(ctx context.Context) (string, error) {
	if err := f.injected("PageSource"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Pages[f.urlLocked()], nil
}

func (f *FakeBrowser) Back(ctx context.Context) error {
	if err := f.injected("Back"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if h := f.tabs[f.current]; len(h) > 1 {
		f.tabs[f.current] = h[:len(h)-1]
	}
	return nil
}

func (f *FakeBrowser) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	if err := f.injected("Cookies"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schemas.Cookie(nil), f.cookies...), nil
}

func (f *FakeBrowser) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	if err := f.injected("SetCookies"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = append(f.cookies[:0:0], cookies...)
	return nil
}

func (f *FakeBrowser) OpenTab(ctx context.Context, url string) (schemas.TabID, error) {
	if err := f.injected("OpenTab"); err != nil {
		return "", err
	}
	f.mu.Lock()
	id := schemas.TabID(fmt.Sprintf("tab-%d", f.nextTab))
	f.nextTab++
	f.tabs[id] = nil
	f.order = append(f.order, id)
	f.current = id
	f.mu.Unlock()
	return id, f.Navigate(ctx, url)
}

func (f *FakeBrowser) SwitchTab(id schemas.TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tabs[id]; !ok {
		return fmt.Errorf("unknown tab %q", id)
	}
	f.current = id
	return nil
}

func (f *FakeBrowser) CloseTab(id schemas.TabID) error {
	if err := f.injected("CloseTab"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == PrimaryTab {
		return fmt.Errorf("cannot close the primary tab")
	}
	if _, ok := f.tabs[id]; !ok {
		return fmt.Errorf("unknown tab %q", id)
	}
	delete(f.tabs, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	if f.current == id {
		f.current = PrimaryTab
	}
	return nil
}

func (f *FakeBrowser) CurrentTab() schemas.TabID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FakeBrowser) Tabs() []schemas.TabID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schemas.TabID(nil), f.order...)
}

func (f *FakeBrowser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseCalls++
	return nil
}
