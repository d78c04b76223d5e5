// Package browser implements core.Page on a Chrome instance launched and
// owned by the run, driven through Rod.
package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/logger"
	"github.com/cgedge/slipfill/pkg/session"
)

// DriverName identifies this adapter in reports.
const DriverName = "rod"

// Options configures a launched browser.
type Options struct {
	Headful   bool
	Bin       string // Chrome binary; empty lets the launcher download one
	UserAgent string
	Stealth   bool

	// ResourceBlocking lists resource types to block (image, font, media, stylesheet).
	ResourceBlocking []string

	// StorageState seeds cookies and localStorage before the first navigation.
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

// Launch starts Chrome, opens one page and applies the session state.
// Every failure is an ErrLaunch.
func Launch(ctx context.Context, opts Options) (*Page, error) {
	opts.applyDefaults()

	l := launcher.New().
		Headless(!opts.Headful).
		Set("disable-blink-features", "AutomationControlled").
		Logger(logger.GetWriter())
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	u, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, core.ErrLaunch.WithCause(err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, core.ErrLaunch.WithCause(err)
	}

	p := &Page{browser: b, launcher: l, opts: opts}
	if err := p.open(); err != nil {
		_ = p.Close()
		return nil, core.ErrLaunch.WithCause(err)
	}

	logger.Info("browser launched (headful=%v, stealth=%v)", opts.Headful, opts.Stealth)
	return p, nil
}

// open creates the page and applies user agent, resource blocking and
// storage state.
func (p *Page) open() error {
	var page *rod.Page
	var err error
	if p.opts.Stealth {
		page, err = stealth.Page(p.browser)
	} else {
		page, err = p.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return err
	}
	p.page = page

	if p.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: p.opts.UserAgent}); err != nil {
			return err
		}
	}

	if len(p.opts.ResourceBlocking) > 0 {
		router, err := applyResourceBlocking(page, p.opts.ResourceBlocking)
		if err != nil {
			return err
		}
		p.router = router
	}

	return p.applyStorageState(p.opts.StorageState)
}

// applyStorageState installs live cookies and registers a script that seeds
// localStorage on every document of a stored origin.
func (p *Page) applyStorageState(st *session.StorageState) error {
	if st == nil {
		return nil
	}
	if params := cookieParams(st.Live(p.opts.Now())); len(params) > 0 {
		if err := p.page.SetCookies(params); err != nil {
			return err
		}
		logger.Debug("restored %d cookie(s)", len(params))
	}
	if script := st.SeedScript(); script != "" {
		if _, err := p.page.EvalOnNewDocument(script); err != nil {
			return err
		}
	}
	return nil
}
