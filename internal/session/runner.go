// File: internal/session/runner.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ghostlogin/internal/behavior"
	"github.com/xkilldash9x/ghostlogin/internal/browser"
	"github.com/xkilldash9x/ghostlogin/internal/classifier"
	"github.com/xkilldash9x/ghostlogin/internal/evidence"
)

// networkQuiet is the window with no in-flight requests that counts as a
// settled page after navigation or submit.
const networkQuiet = 500 * time.Millisecond

// Config carries everything one run needs. The runner never reads global
// state; the command layer assembles this from the application config.
type Config struct {
	LoginURL          string
	AuthenticatedURLs []string

	EmailSelector    string
	PasswordSelector string
	SubmitSelector   string

	Email    string
	Password string

	// Timeout bounds each individual page operation, not the whole run.
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration

	// Interactive enables the challenge grace period: the run waits
	// ChallengeGrace for a human to resolve a detected challenge, then
	// re-classifies once.
	Interactive    bool
	ChallengeGrace time.Duration

	ViewportWidth  int
	ViewportHeight int
}

// Runner executes login attempts against a Page. One Runner serves one run.
type Runner struct {
	cfg    Config
	page   browser.Page
	sim    *behavior.Simulator
	cls    *classifier.Classifier
	rec    *evidence.Recorder
	logger *zap.Logger

	state State

	// sleep is swapped out by tests so backoff and grace waits take no
	// real time.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner wires a runner from its collaborators.
func NewRunner(cfg Config, page browser.Page, sim *behavior.Simulator, cls *classifier.Classifier, rec *evidence.Recorder, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		page:   page,
		sim:    sim,
		cls:    cls,
		rec:    rec,
		logger: logger.Named("session"),
		state:  StateInit,
		sleep:  sleepCtx,
	}
}

// State returns the machine's current state, for logging and tests.
func (r *Runner) State() State {
	return r.state
}

// Run executes up to MaxAttempts login attempts. Only transient
// infrastructure failures (navigation timeout, element not found) trigger a
// retry, with exponential backoff between attempts. Credential rejections
// and detected challenges are terminal on the first occurrence.
func (r *Runner) Run(ctx context.Context) Outcome {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		r.logger.Info("Starting login attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
		)
		r.state = StateInit

		out, err := r.attempt(ctx)
		if err == nil {
			out.Attempts = attempt
			out.EvidenceDir = r.rec.Dir()
			return out
		}

		lastErr = err
		r.logger.Warn("Attempt failed on transient error", zap.Int("attempt", attempt), zap.Error(err))
		r.rec.CaptureWithNote(ctx, r.page, evidence.LabelAttemptFailed, "", err.Error())

		if attempt < r.cfg.MaxAttempts {
			backoff := r.cfg.BackoffBase * (1 << (attempt - 1))
			r.logger.Info("Backing off before retry", zap.Duration("backoff", backoff))
			if serr := r.sleep(ctx, backoff); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	r.state = StateLoginFailed
	return Outcome{
		Status:      StatusFailed,
		Reason:      fmt.Sprintf("transient failures exhausted after %d attempts: %v", attempts, lastErr),
		Attempts:    attempts,
		EvidenceDir: r.rec.Dir(),
	}
}

// attempt runs one pass of the state machine. A non-nil error means the
// failure was transient and the caller may retry; terminal dispositions
// (success, challenge, credential rejection, indeterminate) come back as an
// Outcome with a nil error.
func (r *Runner) attempt(ctx context.Context) (Outcome, error) {
	if out, err := r.navigateToLogin(ctx); err != nil || out != nil {
		return deref(out), err
	}
	if out, err := r.enterCredentials(ctx); err != nil || out != nil {
		return deref(out), err
	}
	if out, err := r.submit(ctx); err != nil || out != nil {
		return deref(out), err
	}
	return r.classify(ctx)
}

// navigateToLogin loads the login page, lets it settle, and records the
// first evidence point.
func (r *Runner) navigateToLogin(ctx context.Context) (*Outcome, error) {
	opCtx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := r.page.Navigate(opCtx, r.cfg.LoginURL); err != nil {
		return r.classifyErr(ctx, err)
	}
	if err := r.page.WaitNetworkIdle(opCtx, networkQuiet); err != nil {
		return r.classifyErr(ctx, err)
	}
	if err := r.sleep(ctx, r.sim.Delay(behavior.ClassNavigationSettle)); err != nil {
		return nil, err
	}
	if err := r.page.WaitVisible(opCtx, r.cfg.EmailSelector); err != nil {
		return r.classifyErr(ctx, err)
	}

	r.state = StateNavigatedToLogin
	url, _ := r.page.CurrentURL(opCtx)
	r.rec.CaptureWithNote(ctx, r.page, evidence.LabelLoginLoaded, url, "")
	return nil, nil
}

// enterCredentials types email and password with human pacing: a pointer
// drift, a pre-click pause before each field, per-keystroke delays, and a
// settle pause after entry.
func (r *Runner) enterCredentials(ctx context.Context) (*Outcome, error) {
	opCtx, cancel := r.opCtx(ctx)
	defer cancel()

	// Idle drift before touching the form, the way a cursor wanders while
	// a page is read.
	drift := r.sim.PointerPath(
		r.sim.RandomViewportPoint(r.cfg.ViewportWidth, r.cfg.ViewportHeight),
		r.sim.RandomViewportPoint(r.cfg.ViewportWidth, r.cfg.ViewportHeight),
	)
	if err := r.page.MovePointer(opCtx, drift); err != nil {
		return r.classifyErr(ctx, err)
	}

	fields := []struct {
		selector string
		value    string
	}{
		{r.cfg.EmailSelector, r.cfg.Email},
		{r.cfg.PasswordSelector, r.cfg.Password},
	}
	for _, f := range fields {
		if err := r.sleep(ctx, r.sim.Delay(behavior.ClassPreClick)); err != nil {
			return nil, err
		}
		if err := r.page.Click(opCtx, f.selector); err != nil {
			return r.classifyErr(ctx, err)
		}
		if err := r.page.SendKeys(opCtx, f.selector, f.value, r.sim.KeystrokeDelay); err != nil {
			return r.classifyErr(ctx, err)
		}
	}

	if err := r.sleep(ctx, r.sim.Delay(behavior.ClassPostEntry)); err != nil {
		return nil, err
	}

	r.state = StateCredentialsEntered
	url, _ := r.page.CurrentURL(opCtx)
	r.rec.CaptureWithNote(ctx, r.page, evidence.LabelCredentialsEntered, url, "")
	return nil, nil
}

// submit clicks the submit button and waits out the post-submit settle.
func (r *Runner) submit(ctx context.Context) (*Outcome, error) {
	opCtx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := r.sleep(ctx, r.sim.Delay(behavior.ClassPreClick)); err != nil {
		return nil, err
	}
	if err := r.page.Click(opCtx, r.cfg.SubmitSelector); err != nil {
		return r.classifyErr(ctx, err)
	}
	r.state = StateSubmitted

	if err := r.sleep(ctx, r.sim.Delay(behavior.ClassPostSubmit)); err != nil {
		return nil, err
	}
	if err := r.page.WaitNetworkIdle(opCtx, networkQuiet); err != nil {
		return r.classifyErr(ctx, err)
	}
	return nil, nil
}

// classify inspects the post-submit page and produces the terminal outcome.
func (r *Runner) classify(ctx context.Context) (Outcome, error) {
	r.state = StateClassifying

	snap, err := r.snapshot(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return r.decide(ctx, snap, true)
}

// decide maps a snapshot onto a terminal outcome. allowGrace permits one
// interactive grace period; the post-grace re-classification runs with it
// disabled so the wait happens at most once.
//
// Classification always runs first: a blocking challenge halts forward
// progress even when the URL already looks authenticated. Only a clean
// classification may proceed to the success check.
func (r *Runner) decide(ctx context.Context, snap classifier.Snapshot, allowGrace bool) (Outcome, error) {
	if result := r.cls.Classify(snap); result.Blocking() {
		r.state = StateChallengeDetected
		r.rec.CaptureWithNote(ctx, r.page, evidence.ChallengeLabel(string(result.Kind)), snap.URL, result.Signal)
		r.logger.Warn("Security challenge detected",
			zap.String("kind", string(result.Kind)),
			zap.String("signal", result.Signal),
		)

		if allowGrace && r.cfg.Interactive && r.cfg.ChallengeGrace > 0 {
			r.logger.Info("Waiting for manual challenge resolution",
				zap.Duration("grace", r.cfg.ChallengeGrace))
			if err := r.sleep(ctx, r.cfg.ChallengeGrace); err != nil {
				return Outcome{}, err
			}
			fresh, err := r.snapshot(ctx)
			if err != nil {
				return Outcome{}, err
			}
			return r.decide(ctx, fresh, false)
		}

		return Outcome{
			Status:    StatusChallengePending,
			Challenge: result.Kind,
			Reason:    result.Signal,
		}, nil
	}

	if r.isAuthenticatedURL(snap.URL) {
		return r.succeed(ctx, snap.URL), nil
	}

	// No challenge and not authenticated. The login form re-appearing on a
	// login URL means the credentials were rejected; anything else is a
	// page we cannot interpret.
	if classifier.HasLoginForm(snap) && r.looksLikeLoginURL(snap.URL) {
		r.state = StateLoginFailed
		r.rec.CaptureWithNote(ctx, r.page, evidence.LabelLoginFailed, snap.URL, "login form re-shown")
		return Outcome{Status: StatusFailed, Reason: "credentials rejected"}, nil
	}

	r.state = StateLoginFailed
	r.rec.CaptureWithNote(ctx, r.page, evidence.LabelIndeterminate, snap.URL, "")
	return Outcome{Status: StatusFailed, Reason: "indeterminate post-submit page state"}, nil
}

// succeed performs a short humanized settle on the authenticated page, then
// records the final success evidence.
func (r *Runner) succeed(ctx context.Context, url string) Outcome {
	r.state = StateSuccess

	// A real user does not freeze the instant the feed loads.
	opCtx, cancel := r.opCtx(ctx)
	defer cancel()
	if err := r.page.Evaluate(opCtx, "window.scrollBy({top: 250, behavior: 'smooth'})", nil); err != nil {
		r.logger.Debug("Post-login settle scroll failed", zap.Error(err))
	}
	_ = r.sleep(ctx, r.sim.Delay(behavior.ClassPreClick))

	r.rec.CaptureWithNote(ctx, r.page, evidence.LabelSuccess, url, "")
	r.logger.Info("Login succeeded", zap.String("url", url))
	return Outcome{Status: StatusSuccess}
}

// snapshot reads the current URL and DOM for classification. Failures here
// are transient: the page may still be mid-transition.
func (r *Runner) snapshot(ctx context.Context) (classifier.Snapshot, error) {
	opCtx, cancel := r.opCtx(ctx)
	defer cancel()

	url, err := r.page.CurrentURL(opCtx)
	if err != nil {
		return classifier.Snapshot{}, err
	}
	content, err := r.page.HTML(opCtx)
	if err != nil {
		return classifier.Snapshot{}, err
	}
	return classifier.Snapshot{URL: url, HTML: content}, nil
}

// classifyErr splits a page error into retryable (returned as error) and
// fatal (returned as terminal Outcome). Every fatal error leaves an evidence
// record so the failure is diagnosable from the run directory alone.
func (r *Runner) classifyErr(ctx context.Context, err error) (*Outcome, error) {
	if errors.Is(err, browser.ErrNavigationTimeout) || errors.Is(err, browser.ErrElementNotFound) {
		return nil, err
	}
	r.state = StateLoginFailed
	r.rec.CaptureWithNote(ctx, r.page, evidence.LabelLoginFailed, "", err.Error())
	return &Outcome{Status: StatusFailed, Reason: err.Error()}, nil
}

func (r *Runner) isAuthenticatedURL(url string) bool {
	for _, marker := range r.cfg.AuthenticatedURLs {
		if strings.Contains(url, marker) {
			return true
		}
	}
	return false
}

func (r *Runner) looksLikeLoginURL(url string) bool {
	return strings.Contains(url, "login") || strings.Contains(url, r.cfg.LoginURL)
}

// opCtx bounds one page operation with the configured timeout.
func (r *Runner) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.Timeout)
}

// sleepCtx blocks for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func deref(out *Outcome) Outcome {
	if out == nil {
		return Outcome{}
	}
	return *out
}
