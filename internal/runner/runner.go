// Package runner sequences one job-application run: authenticate, search,
// apply, verify and persist, accumulating everything into a RunReport.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/apply"
	"github.com/xkilldash9x/jobagent-cli/internal/auth"
	"github.com/xkilldash9x/jobagent-cli/internal/browser"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
	"github.com/xkilldash9x/jobagent-cli/internal/observability"
	"github.com/xkilldash9x/jobagent-cli/internal/search"
	"go.uber.org/zap"
)

const eventTimeout = 5 * time.Second

// BrowserFactory launches the browser a run drives. The run closes it.
type BrowserFactory func(ctx context.Context) (schemas.Browser, error)

// Authenticator logs the browser in.
type Authenticator interface {
	Authenticate(ctx context.Context, b schemas.Browser, creds schemas.Credentials) (*auth.Result, error)
}

// Searcher turns facets into candidates.
type Searcher interface {
	Search(ctx context.Context, b schemas.Browser, facets []schemas.SearchFacet, quota search.Quota, visit func(search.FacetResult))
}

// Applier attempts a single candidate.
type Applier interface {
	Apply(ctx context.Context, b schemas.Browser, c schemas.JobCandidate) apply.Result
}

// Options are the run inputs.
type Options struct {
	Credentials          schemas.Credentials
	Facets               []schemas.SearchFacet
	MaxApplications      int
	Platform             string
	GenerateCoverLetters bool
	LogEvents            bool
	Profile              schemas.Profile
}

// Deps are the collaborators a run drives. TextGen may be nil.
type Deps struct {
	Browser BrowserFactory
	Auth    Authenticator
	Search  Searcher
	Apply   Applier
	Store   schemas.Store
	TextGen schemas.TextGenerator
}

// Runner executes runs. A Runner may be reused; runs do not share state.
type Runner struct {
	opts   Options
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a Runner.
func New(opts Options, deps Deps, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Runner{
		opts:   opts,
		deps:   deps,
		logger: logger.Named("runner"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// FromConfig wires the platform engines from cfg.
func FromConfig(cfg *config.Config, factory BrowserFactory, store schemas.Store, sessions schemas.SessionStore, gen schemas.TextGenerator, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = observability.GetLogger()
	}
	var cache search.JobCache
	if store != nil {
		cache = store
	}
	deps := Deps{
		Browser: factory,
		Auth: auth.New(auth.Options{
			Platform:     cfg.Platform,
			Timing:       cfg.Auth,
			ReuseSession: cfg.Session.Reuse,
			ArtifactsDir: cfg.Browser.ArtifactsDir,
		}, sessions, logger),
		Search: search.New(search.Options{
			BaseURL:      cfg.Platform.BaseURL,
			SettleDelay:  cfg.Search.SettleDelay,
			MaxFacets:    cfg.Search.MaxFacets,
			CacheJobs:    cfg.Search.CacheJobs,
			ArtifactsDir: cfg.Browser.ArtifactsDir,
		}, cache, logger),
		Apply: apply.New(apply.Options{
			AppliedJobsURL: cfg.Platform.AppliedJobsURL(),
			OpenMode:       cfg.Apply.OpenMode,
			ButtonTimeout:  cfg.Apply.ButtonTimeout,
			DetailSettle:   cfg.Apply.DetailSettle,
			ClickSettle:    cfg.Apply.ClickSettle,
			VerifySettle:   cfg.Apply.VerifySettle,
			MinInterval:    cfg.Apply.MinInterval,
			ArtifactsDir:   cfg.Browser.ArtifactsDir,
		}, logger),
		Store:   store,
		TextGen: gen,
	}
	return New(Options{
		Credentials:          cfg.CredentialsValue(),
		Facets:               cfg.Search.ResolveFacets(),
		MaxApplications:      cfg.Apply.MaxApplications,
		Platform:             cfg.Platform.Name,
		GenerateCoverLetters: cfg.Runner.GenerateCoverLetters,
		LogEvents:            cfg.Runner.LogEvents,
		Profile:              cfg.Profile.Profile,
	}, deps, logger)
}

// run is the state of a single Run call.
type run struct {
	*Runner
	report        *schemas.RunReport
	log           *zap.Logger
	authenticated bool
}

// Run executes one run and always returns a finished report. Failures
// become report entries; only setup and authentication failures end the
// run early. The browser is closed on every path.
func (r *Runner) Run(ctx context.Context) (rep *schemas.RunReport) {
	rn := &run{Runner: r, report: schemas.NewRunReport(r.newID(), r.now())}
	rn.log = r.logger.With(zap.String("run_id", rn.report.RunID))
	rn.log.Info("Run starting", zap.Int("facets", len(r.opts.Facets)), zap.Int("max_applications", r.opts.MaxApplications))

	var b schemas.Browser
	defer func() {
		if p := recover(); p != nil {
			rn.report.AddError(fmt.Sprintf("Fatal error: %v", p))
			rn.log.Error("Run panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
		}
		if b != nil {
			if err := b.Close(); err != nil {
				rn.log.Warn("Failed to close browser", zap.Error(err))
			}
		}
		rn.report.Finish(r.now())
		rn.event(ctx, schemas.EventLog{Action: "run", Status: "completed"})
		rn.log.Info("Run finished",
			zap.Int("attempted", rn.report.Attempted),
			zap.Int("successful", rn.report.Successful),
			zap.Int("failed", rn.report.Failed),
			zap.Int("errors", len(rn.report.Errors)),
			zap.Duration("duration", rn.report.Duration()),
		)
		rep = rn.report
	}()

	if err := rn.preflight(); err != nil {
		rn.fatal(err)
		return rn.report
	}

	var err error
	b, err = r.deps.Browser(ctx)
	if err != nil {
		rn.fatal(fmt.Errorf("launching browser: %w", err))
		return rn.report
	}

	if _, err := r.deps.Auth.Authenticate(ctx, b, r.opts.Credentials); err != nil {
		rn.fatal(err)
		return rn.report
	}
	rn.authenticated = true
	rn.event(ctx, schemas.EventLog{Action: "authenticate", Status: "success"})

	r.deps.Search.Search(ctx, b, r.opts.Facets, rn.remaining, func(fr search.FacetResult) {
		for _, c := range fr.Candidates {
			rn.report.AddJob(c)
		}
		if fr.Err != nil {
			rn.report.AddError(fmt.Sprintf("Search failed for %s: %v", fr.Facet, fr.Err))
		}
		for _, c := range fr.Candidates {
			if rn.remaining() <= 0 || ctx.Err() != nil {
				return
			}
			rn.applyOne(ctx, b, c)
		}
	})

	if err := ctx.Err(); err != nil {
		rn.report.AddError(fmt.Sprintf("Run interrupted: %v", err))
	}
	return rn.report
}

func (rn *run) preflight() error {
	if err := rn.opts.Credentials.Validate(); err != nil {
		return err
	}
	if rn.opts.MaxApplications <= 0 {
		return &schemas.PreconditionError{Field: "apply.max_applications", Reason: "must be positive"}
	}
	if rn.deps.Browser == nil || rn.deps.Auth == nil || rn.deps.Search == nil || rn.deps.Apply == nil || rn.deps.Store == nil {
		return &schemas.PreconditionError{Field: "runner", Reason: "is missing a collaborator"}
	}
	return nil
}

func (rn *run) fatal(err error) {
	rn.report.AddError(fmt.Sprintf("Fatal error: %v", err))
	rn.log.Error("Run aborted", zap.String("kind", string(schemas.KindOf(err))), zap.Error(err))
}

func (rn *run) remaining() int {
	return rn.opts.MaxApplications - rn.report.Attempted
}

func (rn *run) applyOne(ctx context.Context, b schemas.Browser, c schemas.JobCandidate) {
	res := rn.deps.Apply.Apply(ctx, b, c)
	if res.RestoreErr != nil {
		rn.report.AddError(fmt.Sprintf("Could not restore browser after %s: %v", c.Title, res.RestoreErr))
	}
	if res.Attempt == nil {
		if res.Skipped != nil && !errors.Is(res.Skipped, apply.ErrNoApplyAction) {
			rn.log.Debug("Candidate skipped", zap.String("title", c.Title), zap.Error(res.Skipped))
		}
		return
	}

	a := *res.Attempt
	rn.report.RecordAttempt(a)
	ev := schemas.EventLog{Action: "apply", Status: string(a.Outcome), ErrorMessage: a.ErrorDetail}

	switch a.Outcome {
	case schemas.OutcomeSuccess:
		if id, ok := rn.persist(ctx, c); ok {
			ev.JobID = &id
		} else {
			ev.Status = string(schemas.OutcomeFailed)
		}
	case schemas.OutcomeUnverified:
		rn.report.AddError(fmt.Sprintf("Unverified application for %s at %s: %s", c.Title, c.Company, a.ErrorDetail))
	default:
		rn.report.AddError(fmt.Sprintf("Apply failed for %s: %s", c.Title, a.ErrorDetail))
	}
	rn.event(ctx, ev)
}

// persist records a verified application. A write failure demotes the
// attempt to failed.
func (rn *run) persist(ctx context.Context, c schemas.JobCandidate) (int64, bool) {
	app := schemas.NewApplication{
		JobTitle: c.Title,
		Company:  c.Company,
		Platform: rn.opts.Platform,
		JobURL:   c.URL,
		Status:   schemas.StatusApplied,
	}
	if letter, ok := rn.coverLetter(ctx, c); ok {
		app.CoverLetter = &letter
	}

	id, err := rn.deps.Store.CreateApplicationRecord(ctx, app)
	if err != nil {
		var pe *schemas.PersistenceError
		if !errors.As(err, &pe) {
			err = &schemas.PersistenceError{Op: "create application", Err: err}
		}
		rn.report.Demote(c.URL, err.Error())
		rn.report.AddError(fmt.Sprintf("Could not record application for %s: %v", c.Title, err))
		rn.log.Error("Verified application not persisted", zap.String("title", c.Title), zap.Error(err))
		return 0, false
	}
	return id, true
}

func (rn *run) coverLetter(ctx context.Context, c schemas.JobCandidate) (string, bool) {
	if !rn.opts.GenerateCoverLetters || rn.deps.TextGen == nil {
		return "", false
	}
	desc := fmt.Sprintf("%s at %s", c.Title, c.Company)
	letter, err := rn.deps.TextGen.GenerateCoverLetter(ctx, desc, c.Company, c.Title, rn.opts.Profile)
	if err != nil {
		rn.report.AddError(fmt.Sprintf("Cover letter generation failed for %s: %v", c.Title, err))
		return "", false
	}
	return letter, true
}

// event writes to the operational log. It stays silent until the run has
// authenticated, so a run that never got in leaves the store untouched.
func (rn *run) event(ctx context.Context, ev schemas.EventLog) {
	if !rn.opts.LogEvents || !rn.authenticated || rn.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(browser.Detach(ctx), eventTimeout)
	defer cancel()
	if err := rn.deps.Store.LogEvent(ctx, ev); err != nil {
		rn.log.Warn("Could not write event log", zap.String("action", ev.Action), zap.Error(err))
	}
}
