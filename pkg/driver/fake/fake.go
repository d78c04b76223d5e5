// Package fake provides a page backed by fixture HTML for testing without a
// browser.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/dom"
)

// Page is a fixture implementation of core.Page.
type Page struct {
	// Configuration
	Config Config

	// OnClick runs after a click is recorded. Tests use it to swap the
	// document the way the app would re-render.
	OnClick func(p *Page, c Click)
	// OnNavigate runs after the location changes.
	OnNavigate func(p *Page, url string)
	// OnSnapshot runs before the nth (1-indexed) snapshot is taken.
	OnSnapshot func(p *Page, n int)

	// Internal state
	mu          sync.Mutex
	url         string
	html        string
	storage     map[string]string
	clicks      []Click
	attempts    int
	navigations []string
	snapshots   int
	closed      bool
}

// Config configures fake page behavior.
type Config struct {
	// URL and HTML are the initial document.
	URL  string
	HTML string
	// FailOnClick makes click attempt N fail (1-indexed). 0 = never fail.
	FailOnClick int
	// ClickDelay adds artificial delay per click
	ClickDelay time.Duration
	// Storage seeds the page's key-value state.
	Storage map[string]string
}

// Click records one activated element.
type Click struct {
	XPath string
	Tag   string
	Text  string
	Attrs map[string]string
}

// New creates a new fake page.
func New(cfg Config) *Page {
	if cfg.URL == "" {
		cfg.URL = "https://app.example.test/"
	}
	if cfg.HTML == "" {
		cfg.HTML = "<html><head></head><body></body></html>"
	}
	storage := make(map[string]string, len(cfg.Storage))
	for k, v := range cfg.Storage {
		storage[k] = v
	}
	return &Page{Config: cfg, url: cfg.URL, html: cfg.HTML, storage: storage}
}

// SetHTML replaces the current document.
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

// SetURL changes the location without counting as a navigation.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Snapshot parses the current document.
func (p *Page) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.snapshots++
	n := p.snapshots
	hook := p.OnSnapshot
	p.mu.Unlock()

	if hook != nil {
		hook(p, n)
	}

	p.mu.Lock()
	url, html := p.url, p.html
	p.mu.Unlock()
	return dom.Parse(url, []byte(html))
}

// Click resolves el against the current document, so an element from a
// snapshot the page has since replaced fails like a detached node would.
func (p *Page) Click(ctx context.Context, el *dom.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if el == nil {
		return core.ErrElementNotFound.WithMessage("click on nil element")
	}
	if p.Config.ClickDelay > 0 {
		if err := core.Wait(ctx, p.Config.ClickDelay); err != nil {
			return err
		}
	}

	snap, err := p.current()
	if err != nil {
		return err
	}
	live := snap.ByXPath(el.XPath())
	if live == nil {
		return core.ErrElementNotFound.WithMessage("element is no longer attached").
			WithDetails(map[string]interface{}{"xpath": el.XPath()})
	}

	p.mu.Lock()
	p.attempts++
	n := p.attempts
	if p.Config.FailOnClick > 0 && n == p.Config.FailOnClick {
		p.mu.Unlock()
		return fmt.Errorf("fake failure on click %d", n)
	}
	c := Click{XPath: live.XPath(), Tag: live.Tag(), Text: live.Text(), Attrs: live.Attrs()}
	p.clicks = append(p.clicks, c)
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, c)
	}
	return nil
}

// Navigate records the navigation and moves to url.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.navigations = append(p.navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

// URL returns the current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// GetItem reads the page's key-value state.
func (p *Page) GetItem(ctx context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.storage[key]
	return v, ok, nil
}

// SetItem writes the page's key-value state.
func (p *Page) SetItem(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storage[key] = value
	return nil
}

// Screenshot returns a mock PNG image.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	// Minimal valid PNG (1x1 transparent pixel)
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}, nil
}

// Close marks the page closed.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Clicks returns every recorded click in order.
func (p *Page) Clicks() []Click {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Click(nil), p.clicks...)
}

// ClickedTexts returns the text of every clicked element in order.
func (p *Page) ClickedTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.clicks))
	for i, c := range p.clicks {
		out[i] = c.Text
	}
	return out
}

// Navigations returns every URL navigated to, in order.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Snapshots returns how many snapshots were taken.
func (p *Page) Snapshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshots
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) current() (*dom.Snapshot, error) {
	p.mu.Lock()
	url, html := p.url, p.html
	p.mu.Unlock()
	return dom.Parse(url, []byte(html))
}

var _ core.Page = (*Page)(nil)
