package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/dom"
	"github.com/cgedge/slipfill/pkg/logger"
)

var _ core.Page = (*Page)(nil)

// Page is an attached browser tab.
type Page struct {
	ctx       context.Context
	tabCancel context.CancelFunc
	cancels   []context.CancelFunc
	opts      Options

	closeOnce sync.Once
}

// run executes actions on the tab, ending early when caller is done.
func (p *Page) run(caller context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(caller, cancel)
	defer stop()

	if err := chromedp.Run(ctx, actions...); err != nil {
		if caller.Err() != nil {
			return caller.Err()
		}
		return err
	}
	return nil
}

// Snapshot serializes the live document.
func (p *Page) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	var loc, html string
	err := p.run(ctx, p.opts.NavigationTimeout,
		chromedp.Location(&loc),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return dom.Parse(loc, []byte(html))
}

// Click resolves el by XPath in the live document and clicks it. A node the
// pointer cannot reach within ClickTimeout is clicked from script instead.
func (p *Page) Click(ctx context.Context, el *dom.Element) error {
	if el == nil {
		return core.ErrElementNotFound.WithMessage("click on nil element")
	}
	xpath := el.XPath()

	err := p.run(ctx, p.opts.ClickTimeout, chromedp.Click(xpath, chromedp.BySearch))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Debug("pointer click on %s failed, clicking from script: %v", xpath, err)

	var clicked bool
	if err := p.run(ctx, p.opts.ClickTimeout, chromedp.Evaluate(scriptClickJS(xpath), &clicked)); err != nil {
		return fmt.Errorf("click %s: %w", xpath, err)
	}
	if !clicked {
		return core.ErrElementNotFound.WithMessage(fmt.Sprintf("no live element at %s", xpath))
	}
	return nil
}

// Navigate loads target and waits for the load event. A change of fragment
// alone stays in the same document and is applied through location.
func (p *Page) Navigate(ctx context.Context, target string) error {
	current, err := p.URL(ctx)
	if err == nil && sameDocument(current, target) {
		if err := p.run(ctx, p.opts.NavigationTimeout, chromedp.Evaluate(fmt.Sprintf("location.assign(%s)", jsString(target)), nil)); err != nil {
			return core.ErrNavigation.WithCause(err)
		}
		return nil
	}
	if err := p.run(ctx, p.opts.NavigationTimeout, chromedp.Navigate(target)); err != nil {
		return core.ErrNavigation.WithCause(err)
	}
	return nil
}

// URL returns the current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, p.opts.NavigationTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return loc, nil
}

// GetItem reads a localStorage entry of the current origin.
func (p *Page) GetItem(ctx context.Context, key string) (string, bool, error) {
	var out struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	js := fmt.Sprintf(`(() => {
	const v = localStorage.getItem(%s);
	return v === null ? { found: false } : { found: true, value: v };
})()`, jsString(key))
	if err := p.run(ctx, p.opts.NavigationTimeout, chromedp.Evaluate(js, &out)); err != nil {
		return "", false, fmt.Errorf("localStorage.getItem: %w", err)
	}
	return out.Value, out.Found, nil
}

// SetItem writes a localStorage entry of the current origin.
func (p *Page) SetItem(ctx context.Context, key, value string) error {
	js := fmt.Sprintf("localStorage.setItem(%s, %s)", jsString(key), jsString(value))
	if err := p.run(ctx, p.opts.NavigationTimeout, chromedp.Evaluate(js, nil)); err != nil {
		return fmt.Errorf("localStorage.setItem: %w", err)
	}
	return nil
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, p.opts.NavigationTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close detaches from the browser. A tab the run opened is closed; the
// operator's own tab is left open.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		if p.tabCancel != nil {
			p.tabCancel()
		}
		for _, cancel := range p.cancels {
			cancel()
		}
	})
	return nil
}

// sameDocument reports whether navigating from current to target only
// changes the fragment.
func sameDocument(current, target string) bool {
	a, err := url.Parse(current)
	if err != nil {
		return false
	}
	b, err := url.Parse(target)
	if err != nil || b.Fragment == "" {
		return false
	}
	a.Fragment, a.RawFragment = "", ""
	b.Fragment, b.RawFragment = "", ""
	return a.String() == b.String()
}

func scriptClickJS(xpath string) string {
	return fmt.Sprintf(`(() => {
	const el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) return false;
	el.click();
	return true;
})()`, jsString(xpath))
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
