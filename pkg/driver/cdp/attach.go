// Package cdp implements core.Page on a browser the operator already runs,
// attached over the DevTools protocol with chromedp.
package cdp

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/logger"
	"github.com/cgedge/slipfill/pkg/session"
)

// DriverName identifies this adapter in reports.
const DriverName = "cdp"

// Options configures an attached session.
type Options struct {
	// URL is the DevTools endpoint (http://host:port or ws://...).
	URL string

	// AppHost selects the tab to drive: the first page on AppHost (less any
	// "www.") or one of its subdomains. With no such tab a new one opens.
	AppHost string

	// StorageState is applied when set. The operator's own browser usually
	// carries its session already.
	StorageState *session.StorageState

	NavigationTimeout time.Duration // Default: 30s
	ClickTimeout      time.Duration // Default: 5s

	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	if o.ClickTimeout <= 0 {
		o.ClickTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Attach connects to the running browser and binds to the app's tab.
// Every failure is an ErrLaunch.
func Attach(ctx context.Context, opts Options) (*Page, error) {
	opts.applyDefaults()

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), opts.URL)
	logOpts := []chromedp.ContextOption{
		chromedp.WithErrorf(logger.Error),
		chromedp.WithLogf(logger.Debug),
	}

	// The probe context only lists tabs. Allocation is tied to the context
	// of the first call, so neither call here takes a deadline.
	probeCtx, probeCancel := chromedp.NewContext(allocCtx, logOpts...)
	p := &Page{opts: opts, cancels: []context.CancelFunc{allocCancel}}

	targets, err := chromedp.Targets(probeCtx)
	if err != nil {
		probeCancel()
		_ = p.Close()
		return nil, core.ErrLaunch.WithCause(err)
	}

	if t := pickTarget(targets, opts.AppHost); t != nil {
		// A first context attached by ID leaves the tab open on cancel.
		probeCancel()
		logger.Info("attached to tab %s", t.URL)
		p.ctx, p.tabCancel = chromedp.NewContext(allocCtx, append(logOpts, chromedp.WithTargetID(t.TargetID))...)
	} else {
		logger.Info("no %s tab open, opening one", opts.AppHost)
		p.ctx, p.tabCancel = chromedp.NewContext(probeCtx)
		p.cancels = append([]context.CancelFunc{probeCancel}, p.cancels...)
	}

	if err := chromedp.Run(p.ctx, p.storageActions()...); err != nil {
		_ = p.Close()
		return nil, core.ErrLaunch.WithCause(err)
	}
	if err := ctx.Err(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// storageActions restores cookies and registers the localStorage seed.
func (p *Page) storageActions() []chromedp.Action {
	st := p.opts.StorageState
	if st == nil {
		return nil
	}
	var actions []chromedp.Action
	if params := cookieParams(st.Live(p.opts.Now())); len(params) > 0 {
		actions = append(actions, network.SetCookies(params))
		logger.Debug("restoring %d cookie(s)", len(params))
	}
	if script := st.SeedScript(); script != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
	}
	return actions
}

// pickTarget returns the first page tab on host, or nil.
func pickTarget(targets []*target.Info, host string) *target.Info {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	if host == "" {
		return nil
	}
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		u, err := url.Parse(t.URL)
		if err != nil {
			continue
		}
		h := strings.ToLower(u.Hostname())
		if h == host || strings.HasSuffix(h, "."+host) {
			return t
		}
	}
	return nil
}

func cookieParams(cookies []session.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			p.SameSite = network.CookieSameSiteStrict
		case "lax":
			p.SameSite = network.CookieSameSiteLax
		case "none":
			p.SameSite = network.CookieSameSiteNone
		}
		if !c.Session() {
			exp := cdp.TimeSinceEpoch(c.ExpiresAt())
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}
