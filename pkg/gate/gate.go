// Package gate detects and dismisses the interstitial screens the app puts
// between a fresh page load and its picks board.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/dom"
	"github.com/cgedge/slipfill/pkg/logger"
)

// Gate is one known interstitial. Detect is a pure check over a snapshot;
// Resolve is best-effort and treats a missing control as a no-op.
type Gate struct {
	Name    string
	Detect  func(snap *dom.Snapshot) bool
	Resolve func(ctx context.Context, r *Resolver, snap *dom.Snapshot) error
}

// Outcome reports what one gate did during a pass.
type Outcome struct {
	Gate     string `json:"gate"`
	Detected bool   `json:"detected"`
	Resolved bool   `json:"resolved"`
	Error    string `json:"error,omitempty"`

	Err error `json:"-"`
}

// Options configures the resolvers.
type Options struct {
	AppRoot              string        // off-app and marketing redirects land here
	PicksURL             string        // not-found fallback route
	VerificationTimeout  time.Duration // Default: 120s; spent once per resolver
	VerificationInterval time.Duration // Default: 1s
	Settle               time.Duration // after a dismiss click
	EntrySettle          time.Duration // after a call to action on the home page
}

// Resolver runs the gate catalog against a page.
type Resolver struct {
	page  core.Page
	opts  Options
	gates []Gate

	// verificationSpent is set once a verification wait runs out. Later
	// passes report the timeout again without waiting, so a run waits at
	// most one VerificationTimeout in total.
	verificationSpent bool
}

// NewResolver creates a resolver over the default catalog.
func NewResolver(page core.Page, opts Options) *Resolver {
	if opts.VerificationTimeout <= 0 {
		opts.VerificationTimeout = 120 * time.Second
	}
	if opts.VerificationInterval <= 0 {
		opts.VerificationInterval = time.Second
	}
	if opts.PicksURL == "" {
		opts.PicksURL = opts.AppRoot
	}
	return &Resolver{page: page, opts: opts, gates: Catalog()}
}

// WithGates replaces the catalog. Order is priority order.
func (r *Resolver) WithGates(gates ...Gate) *Resolver {
	r.gates = gates
	return r
}

// Gates returns the catalog in priority order.
func (r *Resolver) Gates() []Gate {
	return r.gates
}

// Page returns the page the resolver acts on.
func (r *Resolver) Page() core.Page {
	return r.page
}

// Options returns the effective options.
func (r *Resolver) Options() Options {
	return r.opts
}

// Detect returns the name of the highest-priority gate present in snap, or "".
func (r *Resolver) Detect(snap *dom.Snapshot) string {
	for _, g := range r.gates {
		if g.Detect(snap) {
			return g.Name
		}
	}
	return ""
}

// Pass checks every gate once, in priority order, against a fresh snapshot
// and resolves those present. Failures are logged and recorded, never
// returned: a gate that cannot be cleared must not stop the run.
func (r *Resolver) Pass(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, 0, len(r.gates))
	for _, g := range r.gates {
		if ctx.Err() != nil {
			break
		}
		out := Outcome{Gate: g.Name}

		snap, err := r.page.Snapshot(ctx)
		if err != nil {
			out.Err = err
			out.Error = err.Error()
			logger.WithFields(map[string]interface{}{"gate": g.Name}).Warnf("%s: snapshot failed: %v", g.Name, err)
			outcomes = append(outcomes, out)
			continue
		}
		if !g.Detect(snap) {
			outcomes = append(outcomes, out)
			continue
		}

		out.Detected = true
		logger.Info("gate %s detected", g.Name)
		if err := g.Resolve(ctx, r, snap); err != nil {
			out.Err = err
			out.Error = err.Error()
			entry := logger.WithFields(map[string]interface{}{"gate": g.Name})
			if errors.Is(err, core.ErrGateTimeout) {
				entry.Warnf("%s timed out, continuing: %v", g.Name, err)
			} else {
				entry.Warnf("%s unresolved: %v", g.Name, err)
			}
		} else {
			out.Resolved = true
			logger.Debug("gate %s resolved", g.Name)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// click activates el and waits for the page to settle. A nil element is a no-op.
func (r *Resolver) click(ctx context.Context, el *dom.Element, settle time.Duration) error {
	if el == nil {
		return nil
	}
	logger.Debug("click %s %q", el.XPath(), el.Text())
	if err := r.page.Click(ctx, el); err != nil {
		return err
	}
	return core.Wait(ctx, settle)
}

// waitUntilGone polls fresh snapshots until detect turns false or the
// verification budget runs out.
func (r *Resolver) waitUntilGone(ctx context.Context, name string, detect func(*dom.Snapshot) bool) error {
	attempts := int(r.opts.VerificationTimeout / r.opts.VerificationInterval)
	if attempts < 1 {
		attempts = 1
	}
	cleared := core.Poll(ctx, attempts, r.opts.VerificationInterval, func() bool {
		snap, err := r.page.Snapshot(ctx)
		if err != nil {
			return false
		}
		return !detect(snap)
	})
	if cleared {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.verificationSpent = true
	return core.ErrGateTimeout.WithMessage(name + " still present").
		WithDetails(map[string]interface{}{"gate": name, "timeout": r.opts.VerificationTimeout.String()})
}
