// Package search turns search facets into job candidates by loading the
// platform's result pages and extracting listing cards.
package search

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/browser"
	"github.com/xkilldash9x/jobagent-cli/internal/observability"
	"go.uber.org/zap"
)

const screenshotTimeout = 10 * time.Second

// Selectors locate listing cards and the fields inside each card.
type Selectors struct {
	Cards   schemas.SelectorSet
	Title   schemas.SelectorSet
	Company schemas.SelectorSet
}

// NaukriGulfSelectors is the selector table for Naukri Gulf result pages.
func NaukriGulfSelectors() Selectors {
	return Selectors{
		Cards: schemas.Selectors("search.card",
			schemas.CSS(".list"),
			schemas.CSS(".job-tuple"),
			schemas.CSS("article.jobTuple"),
		),
		Title: schemas.Selectors("search.title",
			schemas.CSS("a.title"),
			schemas.CSS(".jobTitle a"),
			schemas.CSS("h3 a"),
		),
		Company: schemas.Selectors("search.company",
			schemas.CSS(".comp-name"),
			schemas.CSS(".company a"),
			schemas.CSS(".companyInfo a"),
		),
	}
}

// Slugify lower-cases s and joins its alphanumeric runs with single dashes.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// BuildSearchURL returns {base}/{keyword}-jobs-in-{location}.
func BuildSearchURL(base string, f schemas.SearchFacet) string {
	return strings.TrimRight(base, "/") + "/" + Slugify(f.Keyword) + "-jobs-in-" + Slugify(f.Location)
}

// Quota reports how many more applications the run may attempt.
type Quota func() int

// JobCache receives every extracted listing when caching is enabled.
type JobCache interface {
	UpsertDiscoveredJob(ctx context.Context, job schemas.DiscoveredJob) error
}

// Options configures an Engine.
type Options struct {
	BaseURL     string
	SettleDelay time.Duration
	// MaxFacets bounds how many facets a single Search processes.
	MaxFacets    int
	CacheJobs    bool
	ArtifactsDir string
	// Selectors defaults to NaukriGulfSelectors when left empty.
	Selectors Selectors
}

// FacetResult is the outcome of searching one facet.
type FacetResult struct {
	Facet      schemas.SearchFacet
	URL        string
	Candidates []schemas.JobCandidate
	// Skipped counts cards that yielded neither a title nor a company.
	Skipped int
	Err     error
}

// Engine runs facet searches against a Browser.
type Engine struct {
	opts   Options
	cache  JobCache
	logger *zap.Logger
}

// New creates an Engine. cache may be nil.
func New(opts Options, cache JobCache, logger *zap.Logger) *Engine {
	if len(opts.Selectors.Cards.Candidates) == 0 {
		opts.Selectors = NaukriGulfSelectors()
	}
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Engine{opts: opts, cache: cache, logger: logger.Named("search")}
}

// Search processes facets in order, bounded by MaxFacets, and hands each
// result to visit before moving on. It stops before starting a facet once
// quota reports nothing left. A nil quota is unbounded. Facet failures are
// reported through FacetResult.Err and never stop later facets.
func (e *Engine) Search(ctx context.Context, b schemas.Browser, facets []schemas.SearchFacet, quota Quota, visit func(FacetResult)) {
	if e.opts.MaxFacets > 0 && len(facets) > e.opts.MaxFacets {
		facets = facets[:e.opts.MaxFacets]
	}
	for _, f := range facets {
		if ctx.Err() != nil {
			return
		}
		if quota != nil && quota() <= 0 {
			e.logger.Info("Application quota reached, stopping search", zap.Stringer("next_facet", f))
			return
		}
		visit(e.SearchFacet(ctx, b, f))
	}
}

// SearchFacet loads the result page for f and extracts its candidates.
func (e *Engine) SearchFacet(ctx context.Context, b schemas.Browser, f schemas.SearchFacet) FacetResult {
	res := FacetResult{Facet: f, URL: BuildSearchURL(e.opts.BaseURL, f)}
	log := e.logger.With(zap.Stringer("facet", f), zap.String("url", res.URL))
	log.Info("Searching")

	if err := b.Navigate(ctx, res.URL); err != nil {
		res.Err = fmt.Errorf("search %s: %w", f, err)
		e.capture(ctx, b, f)
		return res
	}
	if err := browser.Settle(ctx, e.opts.SettleDelay); err != nil {
		res.Err = err
		return res
	}

	source, err := b.PageSource(ctx)
	if err != nil {
		res.Err = fmt.Errorf("search %s: reading results: %w", f, err)
		e.capture(ctx, b, f)
		return res
	}
	pageURL, err := b.CurrentURL(ctx)
	if err != nil {
		pageURL = res.URL
	}

	res.Candidates, res.Skipped, err = e.Extract(source, pageURL, f)
	if err != nil {
		res.Err = fmt.Errorf("search %s: %w", f, err)
		return res
	}
	log.Info("Extracted candidates", zap.Int("count", len(res.Candidates)), zap.Int("skipped", res.Skipped))
	e.cacheJobs(ctx, res.Candidates)
	return res
}

// Extract pulls candidates from a result page. The card locator is the
// first of the card set that matches anything; inside each card the title
// and company fall back through their own sets.
func (e *Engine) Extract(source, pageURL string, f schemas.SearchFacet) ([]schemas.JobCandidate, int, error) {
	sel := e.opts.Selectors
	cards, loc, err := browser.FirstNonEmpty(source, sel.Cards)
	if err != nil {
		return nil, 0, err
	}
	if len(cards) == 0 {
		e.logger.Warn("No result cards matched", zap.Stringer("facet", f), zap.Stringer("selectors", sel.Cards))
		return nil, 0, nil
	}
	e.logger.Debug("Result cards located", zap.Stringer("locator", loc), zap.Int("cards", len(cards)))

	var (
		out     []schemas.JobCandidate
		skipped int
	)
	for i, card := range cards {
		var c schemas.JobCandidate
		c.Facet = f
		if el, ok := card.FindFirst(sel.Title); ok {
			c.Title = el.Text()
			if href, ok := el.Attr("href"); ok {
				c.URL = resolve(pageURL, href)
			}
		}
		if el, ok := card.FindFirst(sel.Company); ok {
			c.Company = el.Text()
		}
		if c.Title == "" && c.Company == "" {
			skipped++
			e.logger.Debug("Skipping card without title or company", zap.Int("card", i))
			continue
		}
		out = append(out, c)
	}
	return out, skipped, nil
}

// resolve makes href absolute against the page it was found on.
func resolve(pageURL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func (e *Engine) cacheJobs(ctx context.Context, cands []schemas.JobCandidate) {
	if !e.opts.CacheJobs || e.cache == nil {
		return
	}
	for _, c := range cands {
		if c.URL == "" {
			continue
		}
		job := schemas.DiscoveredJob{JobURL: c.URL, Title: c.Title, Company: c.Company, Location: c.Facet.Location}
		if err := e.cache.UpsertDiscoveredJob(ctx, job); err != nil {
			e.logger.Warn("Could not cache discovered job", zap.String("url", c.URL), zap.Error(err))
		}
	}
}

func (e *Engine) capture(ctx context.Context, b schemas.Browser, f schemas.SearchFacet) {
	if e.opts.ArtifactsDir == "" {
		return
	}
	ctx, cancel := context.WithTimeout(browser.Detach(ctx), screenshotTimeout)
	defer cancel()
	if err := os.MkdirAll(e.opts.ArtifactsDir, 0o755); err != nil {
		e.logger.Warn("Could not create artifacts directory", zap.Error(err))
		return
	}
	path := filepath.Join(e.opts.ArtifactsDir, "search_"+Slugify(f.Keyword)+"_"+Slugify(f.Location)+".png")
	if err := b.Screenshot(ctx, path); err != nil {
		e.logger.Warn("Could not capture search screenshot", zap.Error(err))
	}
}
