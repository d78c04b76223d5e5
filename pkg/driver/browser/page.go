package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/dom"
	"github.com/cgedge/slipfill/pkg/logger"
)

var _ core.Page = (*Page)(nil)

// Page is a launched Chrome tab.
type Page struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	router   *rod.HijackRouter
	opts     Options

	closeOnce sync.Once
	closeErr  error
}

// Snapshot serializes the live document.
func (p *Page) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	url, err := p.URL(ctx)
	if err != nil {
		return nil, err
	}
	return dom.Parse(url, []byte(res.Value.Str()))
}

// Click resolves el by XPath in the live document and clicks it. A node the
// mouse cannot reach (covered or off-screen) is clicked from script instead.
func (p *Page) Click(ctx context.Context, el *dom.Element) error {
	if el == nil {
		return core.ErrElementNotFound.WithMessage("click on nil element")
	}
	xpath := el.XPath()
	els, err := p.page.Context(ctx).ElementsX(xpath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", xpath, err)
	}
	if len(els) == 0 {
		return core.ErrElementNotFound.WithMessage(fmt.Sprintf("no live element at %s", xpath))
	}

	target := els.First()
	if err := target.Timeout(p.opts.ClickTimeout).Click(proto.InputMouseButtonLeft, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug("pointer click on %s failed, clicking from script: %v", xpath, err)
		if _, err := target.Context(ctx).Eval(`() => this.click()`); err != nil {
			return fmt.Errorf("click %s: %w", xpath, err)
		}
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.opts.NavigationTimeout)
	defer cancel()

	page := p.page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return core.ErrNavigation.WithCause(err)
	}
	if err := page.WaitLoad(); err != nil {
		return core.ErrNavigation.WithCause(err)
	}
	return nil
}

// URL returns the current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// GetItem reads a localStorage entry of the current origin.
func (p *Page) GetItem(ctx context.Context, key string) (string, bool, error) {
	res, err := p.page.Context(ctx).Eval(getItemJS, key)
	if err != nil {
		return "", false, fmt.Errorf("localStorage.getItem: %w", err)
	}
	if !res.Value.Get("found").Bool() {
		return "", false, nil
	}
	return res.Value.Get("value").Str(), true, nil
}

// SetItem writes a localStorage entry of the current origin.
func (p *Page) SetItem(ctx context.Context, key, value string) error {
	if _, err := p.page.Context(ctx).Eval(`(k, v) => localStorage.setItem(k, v)`, key, value); err != nil {
		return fmt.Errorf("localStorage.setItem: %w", err)
	}
	return nil
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, nil)
}

// Close shuts down the page, the browser and the launched process.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if p.router != nil {
			errs = append(errs, p.router.Stop())
		}
		if p.page != nil {
			errs = append(errs, p.page.Close())
		}
		if p.browser != nil {
			errs = append(errs, p.browser.Close())
		}
		if p.launcher != nil {
			p.launcher.Cleanup()
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

const getItemJS = `(k) => {
	const v = localStorage.getItem(k);
	return v === null ? { found: false } : { found: true, value: v };
}`
