package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// StorageState is the session file written by the login helper: cookies
// plus per-origin localStorage.
type StorageState struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Cookie is one persisted cookie. Expires is in unix seconds; -1 marks a
// session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// Origin holds the localStorage entries of one origin.
type Origin struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

// NameValue is a localStorage entry.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadStorageState reads a session file. A missing file is not an error: it
// returns nil so the run proceeds unauthenticated.
func LoadStorageState(path string) (*StorageState, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided session file
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read storage state: %w", err)
	}
	var st StorageState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse storage state %s: %w", path, err)
	}
	return &st, nil
}

// Session reports whether the cookie lives only for the browser session.
func (c Cookie) Session() bool {
	return c.Expires <= 0
}

// ExpiresAt returns the expiry time, or zero for session cookies.
func (c Cookie) ExpiresAt() time.Time {
	if c.Session() {
		return time.Time{}
	}
	sec := int64(c.Expires)
	return time.Unix(sec, int64((c.Expires-float64(sec))*1e9))
}

// Expired reports whether the cookie had expired at now.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Session() && !now.Before(c.ExpiresAt())
}

// HTTP converts the cookie for use with net/http.
func (c Cookie) HTTP() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HttpOnly: c.HTTPOnly,
		Secure:   c.Secure,
	}
	if !c.Session() {
		hc.Expires = c.ExpiresAt()
	}
	switch strings.ToLower(c.SameSite) {
	case "strict":
		hc.SameSite = http.SameSiteStrictMode
	case "lax":
		hc.SameSite = http.SameSiteLaxMode
	case "none":
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}

// Live returns the cookies that have not expired at now.
func (s *StorageState) Live(now time.Time) []Cookie {
	if s == nil {
		return nil
	}
	out := make([]Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		if !c.Expired(now) {
			out = append(out, c)
		}
	}
	return out
}

// CookiesFor returns the live cookies whose domain covers host.
func (s *StorageState) CookiesFor(host string, now time.Time) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range s.Live(now) {
		d := strings.TrimPrefix(c.Domain, ".")
		if host == d || strings.HasSuffix(host, "."+d) {
			out = append(out, c.HTTP())
		}
	}
	return out
}

// SeedScript builds a script that writes the stored localStorage entries of
// the document's origin. Keys the page already holds are left alone, so
// values written during the run survive reloads. It returns "" when there is
// nothing to seed.
func (s *StorageState) SeedScript() string {
	if s == nil {
		return ""
	}
	byOrigin := make(map[string]map[string]string)
	for _, o := range s.Origins {
		if len(o.LocalStorage) == 0 {
			continue
		}
		key := strings.TrimRight(o.Origin, "/")
		entries := byOrigin[key]
		if entries == nil {
			entries = make(map[string]string, len(o.LocalStorage))
			byOrigin[key] = entries
		}
		for _, nv := range o.LocalStorage {
			entries[nv.Name] = nv.Value
		}
	}
	if len(byOrigin) == 0 {
		return ""
	}

	data, err := json.Marshal(byOrigin)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`(() => {
	const entries = (%s)[location.origin];
	if (!entries) return;
	for (const [k, v] of Object.entries(entries)) {
		if (localStorage.getItem(k) === null) localStorage.setItem(k, v);
	}
})()`, data)
}
