// Package core provides the page capability and execution model types shared
// by the slipfill packages.
package core

import (
	"context"
	"time"

	"github.com/cgedge/slipfill/pkg/dom"
)

// Page defines the capability the automation needs from a hosting context.
// Implementations: browser (launched Chrome), cdp (attached Chrome), fake (fixtures).
// The navigator and executor handle flow logic; a Page just performs single actions.
type Page interface {
	// Snapshot serializes the live document. Callers take a fresh snapshot
	// before every lookup.
	Snapshot(ctx context.Context) (*dom.Snapshot, error)

	// Click activates the live element addressed by el.XPath().
	Click(ctx context.Context, el *dom.Element) error

	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// URL returns the current location.
	URL(ctx context.Context) (string, error)

	// GetItem and SetItem read and write the page origin's small persisted
	// key-value state (localStorage).
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error

	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the page and whatever the adapter launched for it.
	Close() error
}

// ElementInfo describes an element that was acted on.
type ElementInfo struct {
	XPath      string            `json:"xpath"`
	Tag        string            `json:"tag"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// InfoOf captures the reportable parts of a snapshot element.
func InfoOf(el *dom.Element) *ElementInfo {
	if el == nil {
		return nil
	}
	return &ElementInfo{
		XPath:      el.XPath(),
		Tag:        el.Tag(),
		Text:       truncate(el.Text(), 120),
		Attributes: el.Attrs(),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// Wait pauses for d or until ctx is done. Fixed settle delays after clicks
// go through here.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poll evaluates cond every interval until it returns true, the number of
// attempts is exhausted, or ctx is done. It reports whether cond succeeded.
func Poll(ctx context.Context, attempts int, interval time.Duration, cond func() bool) bool {
	for i := 0; i < attempts; i++ {
		if cond() {
			return true
		}
		if i == attempts-1 {
			break
		}
		if err := Wait(ctx, interval); err != nil {
			return false
		}
	}
	return false
}
