// File: api/schemas/browser.go
package schemas

import (
	"context"
	"strings"
	"time"
)

// LocatorStrategy selects how a Locator value is interpreted.
type LocatorStrategy string

const (
	ByCSS   LocatorStrategy = "css"
	ByXPath LocatorStrategy = "xpath"
	ByID    LocatorStrategy = "id"
)

// Locator addresses an element on the page.
type Locator struct {
	Strategy LocatorStrategy `mapstructure:"strategy" json:"strategy"`
	Value    string          `mapstructure:"value" json:"value"`
}

func (l Locator) String() string {
	return string(l.Strategy) + "=" + l.Value
}

// CSS, XPath and ID are shorthand constructors.
func CSS(v string) Locator   { return Locator{Strategy: ByCSS, Value: v} }
func XPath(v string) Locator { return Locator{Strategy: ByXPath, Value: v} }
func ID(v string) Locator    { return Locator{Strategy: ByID, Value: v} }

// SelectorSet is an ordered list of alternative locators for one logical
// element. The first locator that yields a result wins.
type SelectorSet struct {
	Name       string    `json:"name"`
	Candidates []Locator `json:"candidates"`
}

// Selectors builds a SelectorSet.
func Selectors(name string, candidates ...Locator) SelectorSet {
	return SelectorSet{Name: name, Candidates: candidates}
}

func (s SelectorSet) String() string {
	parts := make([]string, len(s.Candidates))
	for i, c := range s.Candidates {
		parts[i] = c.String()
	}
	return s.Name + "[" + strings.Join(parts, " | ") + "]"
}

// Element is a snapshot of a DOM element taken at lookup time.
type Element interface {
	// Text is the trimmed, whitespace-collapsed text content.
	Text() string
	Attr(name string) (string, bool)
	HTML() string
	// Find returns descendants matching loc.
	Find(loc Locator) ([]Element, error)
	// FindFirst returns the first match from the first locator in set that
	// matches anything.
	FindFirst(set SelectorSet) (Element, bool)
}

// TabID identifies a browser tab owned by a Browser.
type TabID string

// Condition is polled by WaitForCondition until it returns true.
type Condition func(ctx context.Context, b Browser) (bool, error)

// URLContains is satisfied once the current URL contains fragment.
func URLContains(fragment string) Condition {
	return func(ctx context.Context, b Browser) (bool, error) {
		u, err := b.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(u, fragment), nil
	}
}

// Browser is the single point of contact with the real browser. Every
// timed operation returns a *TimeoutError when its bound elapses.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	// FindElement waits up to timeout for loc to be present. A zero timeout
	// performs a single immediate lookup.
	FindElement(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	FindElements(ctx context.Context, loc Locator) ([]Element, error)
	// Click and Type wait up to timeout for loc. A non-positive timeout
	// uses the navigation timeout.
	Click(ctx context.Context, loc Locator, timeout time.Duration) error
	Type(ctx context.Context, loc Locator, text string, timeout time.Duration) error
	// SubmitForm submits the form addressed by loc programmatically.
	SubmitForm(ctx context.Context, loc Locator) error
	WaitForCondition(ctx context.Context, cond Condition, timeout time.Duration) error
	Screenshot(ctx context.Context, path string) error
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	Back(ctx context.Context) error

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error

	OpenTab(ctx context.Context, url string) (TabID, error)
	SwitchTab(id TabID) error
	CloseTab(id TabID) error
	CurrentTab() TabID
	Tabs() []TabID

	// Close releases the browser process. Safe to call more than once.
	Close() error
}
