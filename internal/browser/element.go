// internal/browser/element.go
package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"golang.org/x/net/html"
)

// snapshot is an Element backed by a parsed copy of the rendered DOM. It
// never talks to the browser, so nested lookups are cheap and cannot race
// with page navigation.
type snapshot struct {
	node *html.Node
}

var _ schemas.Element = (*snapshot)(nil)

// ParseDocument parses page source into a root node for querying.
func ParseDocument(source string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page source: %w", err)
	}
	return doc, nil
}

// QueryHTML returns every element in source matching loc.
func QueryHTML(source string, loc schemas.Locator) ([]schemas.Element, error) {
	doc, err := ParseDocument(source)
	if err != nil {
		return nil, err
	}
	return query(doc, loc)
}

// query evaluates loc against the subtree rooted at root, excluding root.
func query(root *html.Node, loc schemas.Locator) ([]schemas.Element, error) {
	var nodes []*html.Node

	switch loc.Strategy {
	case schemas.ByXPath:
		found, err := htmlquery.QueryAll(root, loc.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", loc.Value, err)
		}
		nodes = found
	case schemas.ByID:
		nodes = goquery.NewDocumentFromNode(root).Find(fmt.Sprintf("[id=%q]", loc.Value)).Nodes
	case schemas.ByCSS, "":
		nodes = goquery.NewDocumentFromNode(root).Find(loc.Value).Nodes
	default:
		return nil, fmt.Errorf("unsupported locator strategy %q", loc.Strategy)
	}

	out := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		if n == root || n.Type != html.ElementNode {
			continue
		}
		out = append(out, &snapshot{node: n})
	}
	return out, nil
}

// firstMatch tries each candidate of set in order and returns the first hit.
func firstMatch(root *html.Node, set schemas.SelectorSet) (schemas.Element, schemas.Locator, bool) {
	for _, loc := range set.Candidates {
		found, err := query(root, loc)
		if err != nil || len(found) == 0 {
			continue
		}
		return found[0], loc, true
	}
	return nil, schemas.Locator{}, false
}

// FirstNonEmpty returns the elements for the first locator in set that
// yields any. The locator that matched is returned alongside.
func FirstNonEmpty(source string, set schemas.SelectorSet) ([]schemas.Element, schemas.Locator, error) {
	doc, err := ParseDocument(source)
	if err != nil {
		return nil, schemas.Locator{}, err
	}
	for _, loc := range set.Candidates {
		found, err := query(doc, loc)
		if err != nil {
			continue
		}
		if len(found) > 0 {
			return found, loc, nil
		}
	}
	return nil, schemas.Locator{}, nil
}

func (s *snapshot) Text() string {
	return strings.Join(strings.Fields(goquery.NewDocumentFromNode(s.node).Text()), " ")
}

func (s *snapshot) Attr(name string) (string, bool) {
	for _, a := range s.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (s *snapshot) HTML() string {
	out, err := goquery.OuterHtml(goquery.NewDocumentFromNode(s.node).Selection)
	if err != nil {
		return ""
	}
	return out
}

func (s *snapshot) Find(loc schemas.Locator) ([]schemas.Element, error) {
	return query(s.node, loc)
}

func (s *snapshot) FindFirst(set schemas.SelectorSet) (schemas.Element, bool) {
	el, _, ok := firstMatch(s.node, set)
	return el, ok
}
