// Package navigator drives the page from wherever it landed to the picks
// board with the target sport selected.
package navigator

import (
	"context"
	"time"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/gate"
	"github.com/cgedge/slipfill/pkg/locator"
	"github.com/cgedge/slipfill/pkg/logger"
	"github.com/cgedge/slipfill/pkg/session"
	"github.com/cgedge/slipfill/pkg/slip"
)

// Options configures a Navigator. Zero values take the defaults noted.
type Options struct {
	Sport   string   // Default: NBA
	Aliases []string // other names the sport control may carry

	Attempts          int           // Default: 5
	AttemptPause      time.Duration // Default: 1.5s
	ShellPolls        int           // Default: 10
	ShellPollInterval time.Duration // Default: 300ms
	SportSettle       time.Duration // Default: 600ms

	// Login detour. Empty LoginURL disables it.
	LoginURL      string
	LoginTimeout  time.Duration // Default: 180s
	LoginInterval time.Duration // Default: 1.5s

	Gates gate.Options
}

func (o *Options) applyDefaults() {
	if o.Sport == "" {
		o.Sport = "NBA"
	}
	if o.Attempts <= 0 {
		o.Attempts = 5
	}
	if o.AttemptPause <= 0 {
		o.AttemptPause = 1500 * time.Millisecond
	}
	if o.ShellPolls <= 0 {
		o.ShellPolls = 10
	}
	if o.ShellPollInterval <= 0 {
		o.ShellPollInterval = 300 * time.Millisecond
	}
	if o.SportSettle <= 0 {
		o.SportSettle = 600 * time.Millisecond
	}
	if o.LoginTimeout <= 0 {
		o.LoginTimeout = 180 * time.Second
	}
	if o.LoginInterval <= 0 {
		o.LoginInterval = 1500 * time.Millisecond
	}
}

// Result summarizes a navigation run.
type Result struct {
	State         State          `json:"state"`
	Attempts      int            `json:"attempts"`
	SportSelected bool           `json:"sportSelected"`
	Matcher       string         `json:"matcher,omitempty"` // locator matcher that found the sport
	Login         LoginOutcome   `json:"login"`
	Gates         []gate.Outcome `json:"gates,omitempty"` // detected gates only
	Duration      int64          `json:"durationMs"`
}

// LoginOutcome records whether the login detour ran.
type LoginOutcome string

// Login outcomes
const (
	LoginSkipped   LoginOutcome = "skipped"
	LoginCompleted LoginOutcome = "completed"
	LoginTimedOut  LoginOutcome = "timed-out"
)

// Navigator reaches the picks board within a bounded number of passes.
type Navigator struct {
	sess  *session.Session
	page  core.Page
	gates *gate.Resolver
	opts  Options
}

// New creates a navigator over the session's page.
func New(sess *session.Session, opts Options) *Navigator {
	opts.applyDefaults()
	return &Navigator{
		sess:  sess,
		page:  sess.Page(),
		gates: gate.NewResolver(sess.Page(), opts.Gates),
		opts:  opts,
	}
}

// Options returns the effective options.
func (n *Navigator) Options() Options {
	return n.opts
}

// Run takes the login detour when one is needed and possible, then makes up
// to Attempts passes of gate resolution, shell wait and sport selection.
// Sport selection is tried on every pass whether or not the shell markers
// showed up. A verification challenge that never clears costs one
// VerificationTimeout for the whole run, not one per pass.
// Running out of passes is logged, not returned; only a cancelled context
// is an error. sl is persisted across the login detour when non-nil.
func (n *Navigator) Run(ctx context.Context, sl *slip.Slip) (*Result, error) {
	start := time.Now()
	res := &Result{Login: LoginSkipped}

	if n.opts.LoginURL != "" && n.sess.CanWaitForLogin() && n.sess.NeedsLogin(ctx) {
		res.Login = n.login(ctx, sl)
	}

	for attempt := 1; attempt <= n.opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return n.finish(ctx, res, start), err
		}
		res.Attempts = attempt
		logger.Debug("navigation pass %d/%d", attempt, n.opts.Attempts)

		for _, o := range n.gates.Pass(ctx) {
			if o.Detected {
				res.Gates = append(res.Gates, o)
			}
		}

		if !n.WaitShellReady(ctx) {
			logger.Debug("picks shell not ready on pass %d, trying the sport control anyway", attempt)
		}
		m, err := n.SelectSport(ctx)
		if err != nil {
			logger.WithFields(map[string]interface{}{"pass": attempt}).Warnf("sport selection failed: %v", err)
		} else if m.Found() {
			res.SportSelected = true
			res.Matcher = m.Matcher
			break
		}

		if attempt < n.opts.Attempts {
			if err := core.Wait(ctx, n.opts.AttemptPause); err != nil {
				return n.finish(ctx, res, start), err
			}
		}
	}

	if !res.SportSelected {
		logger.Warn("%s not selected after %d pass(es), continuing", n.opts.Sport, res.Attempts)
	}
	return n.finish(ctx, res, start), ctx.Err()
}

func (n *Navigator) finish(ctx context.Context, res *Result, start time.Time) *Result {
	res.Duration = time.Since(start).Milliseconds()
	if ctx.Err() != nil {
		return res
	}
	if snap, err := n.page.Snapshot(ctx); err == nil {
		res.State = CurrentState(snap, n.opts.Sport, n.opts.Aliases...)
	}
	return res
}

// WaitShellReady polls for the picks board shell.
func (n *Navigator) WaitShellReady(ctx context.Context) bool {
	return core.Poll(ctx, n.opts.ShellPolls, n.opts.ShellPollInterval, func() bool {
		snap, err := n.page.Snapshot(ctx)
		return err == nil && snap.Has(locator.ShellReady)
	})
}

// SelectSport clicks the sport control unless it is already the active one.
// A missing control is a miss, not an error.
func (n *Navigator) SelectSport(ctx context.Context) (locator.Match, error) {
	snap, err := n.page.Snapshot(ctx)
	if err != nil {
		return locator.Match{}, err
	}
	m := locator.Locate(snap, locator.Query{Kind: locator.KindSport, Target: n.opts.Sport}, n.opts.Aliases...)
	if !m.Found() {
		return m, nil
	}
	if locator.Active(m.Element) {
		logger.Info("%s already selected", n.opts.Sport)
		return m, nil
	}
	if err := n.page.Click(ctx, m.Element); err != nil {
		return locator.Match{}, err
	}
	logger.Info("%s selected (%s)", n.opts.Sport, m.Matcher)
	return m, core.Wait(ctx, n.opts.SportSettle)
}

// login sends the page to the login URL, keeping the slip fragment, and
// waits for an operator to sign in.
func (n *Navigator) login(ctx context.Context, sl *slip.Slip) LoginOutcome {
	if sl != nil {
		if err := n.sess.PersistSlip(ctx, sl); err != nil {
			logger.Warn("could not persist slip before login: %v", err)
		}
	}

	from, _ := n.page.URL(ctx)
	logger.Info("login required, waiting up to %s for sign-in", n.opts.LoginTimeout)
	if err := n.page.Navigate(ctx, gate.WithFragment(n.opts.LoginURL, from)); err != nil {
		logger.Warn("login page did not load: %v", err)
		return LoginTimedOut
	}

	attempts := int(n.opts.LoginTimeout / n.opts.LoginInterval)
	if attempts < 1 {
		attempts = 1
	}
	if !core.Poll(ctx, attempts, n.opts.LoginInterval, func() bool { return n.sess.LoggedIn(ctx) }) {
		logger.Warn("login not completed within %s, continuing unauthenticated", n.opts.LoginTimeout)
		return LoginTimedOut
	}

	n.sess.MarkAuthenticated(ctx)
	logger.Info("login completed")
	if root := n.gates.Options().AppRoot; root != "" {
		if err := n.page.Navigate(ctx, gate.WithFragment(root, from)); err != nil {
			logger.Warn("return to app after login failed: %v", err)
		}
	}
	return LoginCompleted
}
