// Package auth drives the platform login flow and decides whether the
// browser ended up authenticated.
package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/browser"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
	"github.com/xkilldash9x/jobagent-cli/internal/observability"
	"go.uber.org/zap"
)

// State is a step of the login state machine.
type State string

const (
	StateStart                 State = "start"
	StateSessionRestored       State = "session_restored"
	StateCredentialsEntered    State = "credentials_entered"
	StateSubmitClicked         State = "submit_clicked"
	StateFormResubmitAttempted State = "form_resubmit_attempted"
	StateAuthenticated         State = "authenticated"
	StateFailed                State = "failed"
)

// Artifact file names written to the artifacts directory on failure.
const (
	FailureScreenshot = "auth_failure.png"
	FailureSource     = "auth_failure_source.html"
)

const artifactTimeout = 15 * time.Second

// Selectors locate the login form. Each element has ordered alternatives.
type Selectors struct {
	Identifier   schemas.SelectorSet
	Secret       schemas.SelectorSet
	Submit       schemas.SelectorSet
	Form         schemas.SelectorSet
	ErrorMessage schemas.SelectorSet
}

// NaukriGulfSelectors is the selector table for the Naukri Gulf login page.
func NaukriGulfSelectors() Selectors {
	return Selectors{
		Identifier: schemas.Selectors("login.identifier",
			schemas.ID("loginPageLoginEmail"),
			schemas.CSS("input[name='email']"),
			schemas.CSS("input[type='email']"),
		),
		Secret: schemas.Selectors("login.secret",
			schemas.ID("loginPassword"),
			schemas.CSS("input[type='password']"),
		),
		Submit: schemas.Selectors("login.submit",
			schemas.ID("loginPageLoginSubmit"),
			schemas.CSS("button[type='submit']"),
		),
		Form: schemas.Selectors("login.form",
			schemas.ID("loginPageLoginForm"),
			schemas.CSS("form"),
		),
		ErrorMessage: schemas.Selectors("login.error",
			schemas.ID("loginPageloginErr"),
			schemas.CSS(".login-error"),
		),
	}
}

// Options configures an Authenticator.
type Options struct {
	Platform     config.PlatformConfig
	Timing       config.AuthConfig
	ReuseSession bool
	ArtifactsDir string
	// Selectors defaults to NaukriGulfSelectors when left empty.
	Selectors Selectors
}

// Result describes how authentication concluded.
type Result struct {
	State         State
	Trail         []State
	SessionReused bool
	LandingURL    string
}

func (r *Result) to(s State, log *zap.Logger) {
	log.Debug("Login state transition", zap.String("from", string(r.State)), zap.String("to", string(s)))
	r.State = s
	r.Trail = append(r.Trail, s)
}

// Authenticator performs the login sequence against a Browser.
type Authenticator struct {
	opts     Options
	sessions schemas.SessionStore
	logger   *zap.Logger
}

// New creates an Authenticator. sessions may be nil, in which case no
// session is restored or saved.
func New(opts Options, sessions schemas.SessionStore, logger *zap.Logger) *Authenticator {
	if len(opts.Selectors.Identifier.Candidates) == 0 {
		opts.Selectors = NaukriGulfSelectors()
	}
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Authenticator{opts: opts, sessions: sessions, logger: logger.Named("auth")}
}

// Authenticate leaves b on an authenticated page or returns an error. The
// returned Result is never nil. Only a URL inside the authenticated area
// counts as success.
func (a *Authenticator) Authenticate(ctx context.Context, b schemas.Browser, creds schemas.Credentials) (*Result, error) {
	res := &Result{State: StateStart, Trail: []State{StateStart}}

	if err := creds.Validate(); err != nil {
		res.to(StateFailed, a.logger)
		return res, err
	}

	if a.opts.ReuseSession && a.restore(ctx, b) {
		res.to(StateSessionRestored, a.logger)
		res.to(StateAuthenticated, a.logger)
		res.SessionReused = true
		res.LandingURL, _ = b.CurrentURL(ctx)
		a.logger.Info("Reused persisted session", zap.String("url", res.LandingURL))
		return res, nil
	}

	a.logger.Info("Logging in", observability.Secret("identifier", creds.Identifier), observability.Secret("secret", creds.Secret))
	if err := a.login(ctx, b, creds, res); err != nil {
		res.to(StateFailed, a.logger)
		a.captureFailure(ctx, b)
		return res, err
	}

	res.to(StateAuthenticated, a.logger)
	res.LandingURL, _ = b.CurrentURL(ctx)
	a.logger.Info("Authenticated", zap.String("url", res.LandingURL))
	a.persist(ctx, b)
	return res, nil
}

// restore installs the persisted cookies and checks that they still land
// inside the authenticated area.
func (a *Authenticator) restore(ctx context.Context, b schemas.Browser) bool {
	if a.sessions == nil {
		return false
	}
	sess, err := a.sessions.Load(ctx)
	if err != nil {
		a.logger.Warn("Could not load persisted session", zap.Error(err))
		return false
	}
	if sess == nil {
		return false
	}
	if err := b.SetCookies(ctx, sess.Cookies); err != nil {
		a.logger.Warn("Could not restore session cookies", zap.Error(err))
		return false
	}
	if err := b.Navigate(ctx, a.opts.Platform.AuthenticatedURL()); err != nil {
		a.logger.Warn("Could not open authenticated page with persisted session", zap.Error(err))
		return false
	}
	if err := b.WaitForCondition(ctx, schemas.URLContains(a.opts.Platform.AuthenticatedMarker), a.opts.Timing.ReuseTimeout); err != nil {
		a.logger.Info("Persisted session was not accepted, logging in again", zap.Error(err))
		return false
	}
	return true
}

func (a *Authenticator) login(ctx context.Context, b schemas.Browser, creds schemas.Credentials, res *Result) error {
	sel := a.opts.Selectors
	timing := a.opts.Timing

	if err := b.Navigate(ctx, a.opts.Platform.LoginURL()); err != nil {
		return &schemas.AuthenticationFailedError{Reason: "could not open login page", Err: err}
	}

	idLoc, _, err := browser.Locate(ctx, b, sel.Identifier, timing.FieldTimeout)
	if err != nil {
		return err
	}
	secretLoc, _, err := browser.Locate(ctx, b, sel.Secret, timing.FieldTimeout)
	if err != nil {
		return err
	}
	if err := b.Type(ctx, idLoc, creds.Identifier, timing.FieldTimeout); err != nil {
		return fmt.Errorf("entering identifier: %w", err)
	}
	if err := b.Type(ctx, secretLoc, creds.Secret, timing.FieldTimeout); err != nil {
		return fmt.Errorf("entering secret: %w", err)
	}
	res.to(StateCredentialsEntered, a.logger)

	if submitLoc, _, err := browser.Locate(ctx, b, sel.Submit, timing.FieldTimeout); err == nil {
		if err := b.Click(ctx, submitLoc, timing.FieldTimeout); err != nil {
			a.logger.Warn("Submit click failed", zap.Error(err))
		}
	} else {
		a.logger.Warn("No submit button, submitting the form directly", zap.Error(err))
		a.submitForm(ctx, b)
	}
	res.to(StateSubmitClicked, a.logger)

	if err := browser.Settle(ctx, timing.SubmitSettle); err != nil {
		return err
	}

	// Click delivery is unreliable; resubmit once if nothing happened.
	if u, err := b.CurrentURL(ctx); err == nil && a.onLoginPage(u) {
		a.logger.Info("Still on login page after submit, resubmitting form", zap.String("url", u))
		a.submitForm(ctx, b)
		res.to(StateFormResubmitAttempted, a.logger)
	}

	var rejection string
	landed := func(ctx context.Context, b schemas.Browser) (bool, error) {
		u, err := b.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		if strings.Contains(u, a.opts.Platform.AuthenticatedMarker) {
			return true, nil
		}
		if msg := a.errorText(ctx, b); msg != "" {
			rejection = msg
			return true, nil
		}
		return false, nil
	}
	if err := b.WaitForCondition(ctx, landed, timing.SuccessTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := a.errorText(ctx, b); msg != "" {
			return &schemas.AuthenticationFailedError{Reason: "login rejected: " + msg}
		}
		return &schemas.AuthenticationFailedError{Reason: "authenticated page not reached", Err: err}
	}
	if rejection != "" {
		return &schemas.AuthenticationFailedError{Reason: "login rejected: " + rejection}
	}
	return nil
}

func (a *Authenticator) onLoginPage(u string) bool {
	p := a.opts.Platform.LoginPath
	if p == "" {
		return false
	}
	return strings.Contains(u, p)
}

func (a *Authenticator) submitForm(ctx context.Context, b schemas.Browser) {
	for _, loc := range a.opts.Selectors.Form.Candidates {
		if err := b.SubmitForm(ctx, loc); err == nil {
			return
		}
	}
	a.logger.Warn("Login form not found for programmatic submit")
}

// errorText returns the visible text of the on-page login error, if any.
func (a *Authenticator) errorText(ctx context.Context, b schemas.Browser) string {
	for _, loc := range a.opts.Selectors.ErrorMessage.Candidates {
		el, err := b.FindElement(ctx, loc, 0)
		if err != nil {
			continue
		}
		if t := el.Text(); t != "" {
			return t
		}
	}
	return ""
}

// persist saves the session cookies. Failure only costs a future login.
func (a *Authenticator) persist(ctx context.Context, b schemas.Browser) {
	if a.sessions == nil {
		return
	}
	cookies, err := b.Cookies(ctx)
	if err != nil {
		a.logger.Warn("Could not read session cookies", zap.Error(err))
		return
	}
	if err := a.sessions.Save(ctx, schemas.Session{Cookies: cookies, SavedAt: time.Now().UTC()}); err != nil {
		a.logger.Warn("Could not persist session", zap.Error(err))
		return
	}
	a.logger.Debug("Session persisted", zap.Int("cookies", len(cookies)))
}

// captureFailure writes a screenshot and the page markup for diagnosis.
func (a *Authenticator) captureFailure(ctx context.Context, b schemas.Browser) {
	dir := a.opts.ArtifactsDir
	if dir == "" {
		return
	}
	ctx, cancel := context.WithTimeout(browser.Detach(ctx), artifactTimeout)
	defer cancel()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.logger.Warn("Could not create artifacts directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	shot := filepath.Join(dir, FailureScreenshot)
	if err := b.Screenshot(ctx, shot); err != nil {
		a.logger.Warn("Could not capture failure screenshot", zap.Error(err))
	}
	src, err := b.PageSource(ctx)
	if err != nil {
		a.logger.Warn("Could not capture failure page source", zap.Error(err))
		return
	}
	srcPath := filepath.Join(dir, FailureSource)
	if err := os.WriteFile(srcPath, []byte(src), 0o600); err != nil {
		a.logger.Warn("Could not write failure page source", zap.Error(err))
		return
	}
	a.logger.Info("Saved login failure artifacts", zap.String("screenshot", shot), zap.String("source", srcPath))
}
