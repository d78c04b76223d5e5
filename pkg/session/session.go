// Package session owns the page a run drives together with what is known
// about its authentication: the persisted storage state, the visibility
// mode and the injected authentication cache.
package session

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/dom"
	"github.com/cgedge/slipfill/pkg/locator"
	"github.com/cgedge/slipfill/pkg/logger"
	"github.com/cgedge/slipfill/pkg/slip"
)

// Slip sources recovered from the page itself.
const (
	SourceFragment    = "fragment"
	SourcePageStorage = "page-storage"
)

// DefaultMaxAge is how long a successful authentication check is trusted.
const DefaultMaxAge = 24 * time.Hour

// Options configures a Session.
type Options struct {
	StorageState *StorageState // nil when no session file was found
	Headful      bool
	Attached     bool          // driving the operator's own browser
	Cache        AuthCache     // Default: in-memory
	MaxAge       time.Duration // Default: DefaultMaxAge
	ProfileURL   string        // optional authenticated-only URL
	HTTPClient   *http.Client
	Now          func() time.Time
}

// Session is the context a run operates in.
type Session struct {
	page core.Page
	opts Options
}

// New wraps page in a session.
func New(page core.Page, opts Options) *Session {
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout: 10 * time.Second,
			// A redirect means the profile bounced us to login.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Session{page: page, opts: opts}
}

// Page returns the page handle.
func (s *Session) Page() core.Page { return s.page }

// Headful reports whether the browser window is visible.
func (s *Session) Headful() bool { return s.opts.Headful }

// Attached reports whether the session drives an already running browser.
func (s *Session) Attached() bool { return s.opts.Attached }

// CanWaitForLogin reports whether an operator can complete a login in this
// session's window.
func (s *Session) CanWaitForLogin() bool { return s.opts.Attached || s.opts.Headful }

// Fresh reports whether the cache holds a stamp younger than MaxAge.
func (s *Session) Fresh(ctx context.Context) bool {
	at, ok, err := s.opts.Cache.Get(ctx)
	if err != nil {
		logger.Warn("auth cache read failed: %v", err)
		return false
	}
	return ok && s.opts.Now().Sub(at) < s.opts.MaxAge
}

// MarkAuthenticated stamps the cache with the current time.
func (s *Session) MarkAuthenticated(ctx context.Context) {
	if err := s.opts.Cache.Set(ctx, s.opts.Now()); err != nil {
		logger.Warn("auth cache write failed: %v", err)
	}
}

// LoggedIn inspects the current page for a signed-in user.
func (s *Session) LoggedIn(ctx context.Context) bool {
	snap, err := s.page.Snapshot(ctx)
	if err != nil {
		logger.Debug("login check snapshot failed: %v", err)
		return false
	}
	return IsLoggedIn(snap)
}

// CheckProfile asks the site whether the stored cookies still authenticate.
// Only a direct 200 counts.
func (s *Session) CheckProfile(ctx context.Context) bool {
	if s.opts.ProfileURL == "" || s.opts.StorageState == nil {
		return false
	}
	u, err := url.Parse(s.opts.ProfileURL)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false
	}
	for _, c := range s.opts.StorageState.CookiesFor(u.Hostname(), s.opts.Now()) {
		req.AddCookie(c)
	}
	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		logger.Debug("profile check failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// NeedsLogin decides whether the run should route through the login page.
// The page is checked first, then the cache, then the profile URL; any
// positive answer stamps the cache.
func (s *Session) NeedsLogin(ctx context.Context) bool {
	if s.LoggedIn(ctx) {
		s.MarkAuthenticated(ctx)
		return false
	}
	if s.Fresh(ctx) {
		return false
	}
	if s.CheckProfile(ctx) {
		s.MarkAuthenticated(ctx)
		return false
	}
	return true
}

// SlipFromPage recovers a slip the page already carries: a #cgpp= fragment
// in its URL first, then the copy persisted in page storage.
func (s *Session) SlipFromPage(ctx context.Context) (*slip.Slip, string) {
	if raw, err := s.page.URL(ctx); err == nil {
		if u, err := url.Parse(raw); err == nil && fragmentCarriesSlip(u.Fragment) {
			sl, err := slip.Decode(u.Fragment)
			if err == nil {
				return sl, SourceFragment
			}
			logger.Warn("slip in URL fragment could not be decoded: %v", err)
		}
	}

	raw, ok, err := s.page.GetItem(ctx, KeySlip)
	if err != nil || !ok || raw == "" {
		return nil, slip.SourceNone
	}
	sl, err := slip.Unmarshal([]byte(raw))
	if err != nil {
		logger.Warn("persisted slip could not be read: %v", err)
		return nil, slip.SourceNone
	}
	return sl, SourcePageStorage
}

// PersistSlip stores the slip in page storage so it survives a login detour.
func (s *Session) PersistSlip(ctx context.Context, sl *slip.Slip) error {
	data, err := slip.Marshal(sl)
	if err != nil {
		return err
	}
	return s.page.SetItem(ctx, KeySlip, string(data))
}

// Close releases the page.
func (s *Session) Close() error {
	return s.page.Close()
}

func fragmentCarriesSlip(fragment string) bool {
	if fragment == "" {
		return false
	}
	return strings.Contains(fragment, slip.FragmentKey+"=") || !strings.Contains(fragment, "=")
}

var loginText = regexp.MustCompile(`(?i)log\s*in`)

// IsLoggedIn reports a signed-in page: an account or avatar marker is shown,
// or nothing on the page offers to log in.
func IsLoggedIn(snap *dom.Snapshot) bool {
	if snap.Has(locator.LoggedInMarker) {
		return true
	}
	for _, el := range snap.Find(locator.LoginControl) {
		if loginText.MatchString(el.Text()) {
			return false
		}
	}
	return true
}
