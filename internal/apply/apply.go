// Package apply submits applications and confirms them against the
// platform's own record of applied jobs.
package apply

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/browser"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
	"github.com/xkilldash9x/jobagent-cli/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoApplyAction marks a candidate whose detail page offers no way to apply.
var ErrNoApplyAction = errors.New("no apply action found")

const cleanupTimeout = 15 * time.Second

// Selectors locate the apply action on a job detail page.
type Selectors struct {
	ApplyButton schemas.SelectorSet
}

// NaukriGulfSelectors is the selector table for Naukri Gulf detail pages.
func NaukriGulfSelectors() Selectors {
	return Selectors{
		ApplyButton: schemas.Selectors("apply.button",
			schemas.XPath("//button[contains(text(),'Apply')]"),
			schemas.CSS("#apply-button"),
			schemas.CSS("button.apply"),
		),
	}
}

// Options configures an Engine.
type Options struct {
	AppliedJobsURL string
	OpenMode       string
	ButtonTimeout  time.Duration
	DetailSettle   time.Duration
	ClickSettle    time.Duration
	VerifySettle   time.Duration
	// MinInterval is the minimum spacing between attempts.
	MinInterval  time.Duration
	ArtifactsDir string
	// Selectors defaults to NaukriGulfSelectors when left empty.
	Selectors Selectors
}

// Result is what happened to one candidate.
type Result struct {
	// Attempt is nil when the candidate was skipped.
	Attempt *schemas.ApplicationAttempt
	// Skipped explains why no attempt was made.
	Skipped error
	// RestoreErr is set when the browser could not be returned to the
	// page the attempt started from.
	RestoreErr error
}

// Engine applies to candidates one at a time on a shared Browser.
type Engine struct {
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time

	home schemas.TabID
}

// New creates an Engine.
func New(opts Options, logger *zap.Logger) *Engine {
	if len(opts.Selectors.ApplyButton.Candidates) == 0 {
		opts.Selectors = NaukriGulfSelectors()
	}
	if opts.OpenMode == "" {
		opts.OpenMode = config.OpenNewTab
	}
	if logger == nil {
		logger = observability.GetLogger()
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &Engine{
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("apply"),
		now:     time.Now,
	}
}

// Verify reports whether an applied-jobs page mentions the job, matching
// title or company case-insensitively as substrings.
func Verify(pageSource, title, company string) bool {
	page := normalize(html.UnescapeString(pageSource))
	for _, needle := range []string{title, company} {
		n := normalize(needle)
		if n != "" && strings.Contains(page, n) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Apply opens c, clicks its apply action and verifies the submission. The
// browser is returned to the starting page before Apply returns.
func (e *Engine) Apply(ctx context.Context, b schemas.Browser, c schemas.JobCandidate) (res Result) {
	log := e.logger.With(zap.String("title", c.Title), zap.String("company", c.Company), zap.String("url", c.URL))

	if err := e.limiter.Wait(ctx); err != nil {
		res.Skipped = err
		return res
	}
	e.reassertHome(ctx, b)

	var (
		opened    schemas.TabID
		returnURL string
	)
	defer func() {
		res.RestoreErr = e.restore(ctx, b, opened, returnURL)
		if res.RestoreErr != nil {
			log.Warn("Failed to restore browser context", zap.Error(res.RestoreErr))
		}
	}()

	attempt := &schemas.ApplicationAttempt{Candidate: c, AttemptedAt: e.now().UTC()}
	fail := func(err error) Result {
		attempt.Outcome = schemas.OutcomeFailed
		attempt.ErrorDetail = err.Error()
		attempt.ScreenshotPath = e.screenshot(ctx, b, c, schemas.OutcomeFailed)
		log.Warn("Application failed", zap.Error(err))
		res.Attempt = attempt
		return res
	}

	if c.URL == "" {
		return fail(fmt.Errorf("candidate has no detail link"))
	}

	// 1. Detail view.
	if e.opts.OpenMode == config.OpenSameTab {
		returnURL, _ = b.CurrentURL(ctx)
		if err := b.Navigate(ctx, c.URL); err != nil {
			return fail(fmt.Errorf("opening detail page: %w", err))
		}
	} else {
		id, err := b.OpenTab(ctx, c.URL)
		opened = id
		if err != nil {
			return fail(fmt.Errorf("opening detail tab: %w", err))
		}
	}
	if err := browser.Settle(ctx, e.opts.DetailSettle); err != nil {
		return fail(err)
	}

	// 2. Apply action.
	loc, _, err := browser.Locate(ctx, b, e.opts.Selectors.ApplyButton, e.opts.ButtonTimeout)
	if err != nil {
		var pse *schemas.PageStructureError
		if errors.As(err, &pse) {
			log.Info("No apply action found, skipping")
			res.Skipped = fmt.Errorf("%w: %s", ErrNoApplyAction, c.Title)
			return res
		}
		return fail(err)
	}

	// 3. Click, then check the platform's own record.
	log.Info("Applying", zap.Stringer("locator", loc))
	if err := b.Click(ctx, loc, e.opts.ButtonTimeout); err != nil {
		return fail(fmt.Errorf("clicking apply: %w", err))
	}
	if err := browser.Settle(ctx, e.opts.ClickSettle); err != nil {
		return fail(err)
	}
	if err := b.Navigate(ctx, e.opts.AppliedJobsURL); err != nil {
		return fail(fmt.Errorf("opening applied jobs: %w", err))
	}
	if err := browser.Settle(ctx, e.opts.VerifySettle); err != nil {
		return fail(err)
	}
	src, err := b.PageSource(ctx)
	if err != nil {
		return fail(fmt.Errorf("reading applied jobs: %w", err))
	}

	if !Verify(src, c.Title, c.Company) {
		mismatch := &schemas.VerificationMismatchError{Title: c.Title, Company: c.Company}
		attempt.Outcome = schemas.OutcomeUnverified
		attempt.ErrorDetail = mismatch.Error()
		attempt.ScreenshotPath = e.screenshot(ctx, b, c, schemas.OutcomeUnverified)
		log.Warn("Application not confirmed on applied-jobs page")
		res.Attempt = attempt
		return res
	}

	attempt.Outcome = schemas.OutcomeSuccess
	log.Info("Application verified")
	res.Attempt = attempt
	return res
}

// reassertHome makes sure each attempt starts from the tab the first one
// started from, closing anything a previous attempt left behind.
func (e *Engine) reassertHome(ctx context.Context, b schemas.Browser) {
	if e.home == "" {
		e.home = b.CurrentTab()
		return
	}
	for _, id := range b.Tabs() {
		if id != e.home {
			if err := b.CloseTab(id); err != nil {
				e.logger.Debug("Could not close stray tab", zap.String("tab", string(id)), zap.Error(err))
			}
		}
	}
	if b.CurrentTab() != e.home {
		if err := b.SwitchTab(e.home); err != nil {
			e.logger.Warn("Could not switch back to home tab", zap.Error(err))
		}
	}
}

func (e *Engine) restore(ctx context.Context, b schemas.Browser, opened schemas.TabID, returnURL string) error {
	ctx, cancel := context.WithTimeout(browser.Detach(ctx), cleanupTimeout)
	defer cancel()

	var errs []error
	if opened != "" {
		if err := b.CloseTab(opened); err != nil {
			errs = append(errs, fmt.Errorf("closing detail tab: %w", err))
		}
		if e.home != "" {
			if err := b.SwitchTab(e.home); err != nil {
				errs = append(errs, fmt.Errorf("switching to home tab: %w", err))
			}
		}
	} else if returnURL != "" {
		if err := b.Navigate(ctx, returnURL); err != nil {
			errs = append(errs, fmt.Errorf("returning to %s: %w", returnURL, err))
		}
	}
	return errors.Join(errs...)
}

// screenshot captures the current page for a failed or unverified attempt
// and returns the file path, or "" if nothing was written.
func (e *Engine) screenshot(ctx context.Context, b schemas.Browser, c schemas.JobCandidate, outcome schemas.Outcome) string {
	if e.opts.ArtifactsDir == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(browser.Detach(ctx), cleanupTimeout)
	defer cancel()

	if err := os.MkdirAll(e.opts.ArtifactsDir, 0o755); err != nil {
		e.logger.Warn("Could not create artifacts directory", zap.Error(err))
		return ""
	}
	name := fmt.Sprintf("%s_%s_%s.png", outcome, slug(c.Title), uuid.NewString()[:8])
	path := filepath.Join(e.opts.ArtifactsDir, name)
	if err := b.Screenshot(ctx, path); err != nil {
		e.logger.Warn("Could not capture screenshot", zap.Error(err))
		return ""
	}
	return path
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, s)
	if len(s) > 40 {
		s = s[:40]
	}
	if s == "" {
		return "job"
	}
	return s
}
