// Package config handles configuration for slipfill.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cgedge/slipfill/pkg/core"
	"gopkg.in/yaml.v3"
)

// Config represents the run configuration (config.yaml).
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Sport     SportConfig     `yaml:"sport"`
	Timing    TimingConfig    `yaml:"timing"`
	Browser   BrowserConfig   `yaml:"browser"`
	Auth      AuthConfig      `yaml:"auth"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
}

// SiteConfig holds the target app's addresses.
type SiteConfig struct {
	AppRoot    string `yaml:"appRoot"`    // Canonical app entry, also the off-app redirect target
	LoginURL   string `yaml:"loginURL"`   // Login page; the slip fragment is carried over
	PicksURL   string `yaml:"picksURL"`   // Last-resort route out of a not-found page
	ProfileURL string `yaml:"profileURL"` // Returns 200 only to an authenticated session
}

// SportConfig selects the board to open.
type SportConfig struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// TimingConfig holds every bounded wait and settle delay.
type TimingConfig struct {
	Attempts             int           `yaml:"attempts"`             // Navigation passes
	AttemptPause         time.Duration `yaml:"attemptPause"`         // Pause between passes
	ShellPolls           int           `yaml:"shellPolls"`           // Shell readiness checks per pass
	ShellPollInterval    time.Duration `yaml:"shellPollInterval"`    //
	SportSettle          time.Duration `yaml:"sportSettle"`          // After clicking the sport control
	EntrySettle          time.Duration `yaml:"entrySettle"`          // After leaving the marketing home
	GateSettle           time.Duration `yaml:"gateSettle"`           // After dismissing a gate
	TabSettle            time.Duration `yaml:"tabSettle"`            // After clicking a prop tab
	SideSettle           time.Duration `yaml:"sideSettle"`           // After clicking a side
	ItemPause            time.Duration `yaml:"itemPause"`            // Between slip items
	VerificationTimeout  time.Duration `yaml:"verificationTimeout"`  // Human verification wait
	VerificationInterval time.Duration `yaml:"verificationInterval"` //
	LoginTimeout         time.Duration `yaml:"loginTimeout"`         // Wait for an operator login
	LoginInterval        time.Duration `yaml:"loginInterval"`        //
	NavigationTimeout    time.Duration `yaml:"navigationTimeout"`    // Page load bound
	HeadfulLinger        time.Duration `yaml:"headfulLinger"`        // Keep a visible window open after the run
}

// BrowserConfig controls the browser session.
type BrowserConfig struct {
	Headful          bool     `yaml:"headful"`
	Attach           string   `yaml:"attach"`           // DevTools URL of a running browser
	Bin              string   `yaml:"bin"`              // Chrome binary; empty lets rod download one
	UserAgent        string   `yaml:"userAgent"`        //
	StorageState     string   `yaml:"storageState"`     // Persisted session file
	ResourceBlocking []string `yaml:"resourceBlocking"` // image | font | media | stylesheet
	Stealth          *bool    `yaml:"stealth"`          // Default: true
}

// AuthConfig controls the authentication cache.
type AuthConfig struct {
	CachePath string        `yaml:"cachePath"` // SQLite file; "memory" keeps it per run
	MaxAge    time.Duration `yaml:"maxAge"`    // Trust window for a cached check
}

// ArtifactsConfig controls failure artifacts.
type ArtifactsConfig struct {
	Dir     string `yaml:"dir"`
	Disable bool   `yaml:"disable"`
}

// Defaults
const (
	DefaultAppRoot      = "https://www.prizepicks.com/"
	DefaultLoginURL     = "https://www.prizepicks.com/login"
	DefaultProfileURL   = "https://app.prizepicks.com/p/YSiy5hC4"
	DefaultStorageState = "storage-state.json"
	MemoryCache         = "memory"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try config.yaml first
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try config.yml
	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	return Default(), nil
}

func (c *Config) applyDefaults() {
	if c.Site.AppRoot == "" {
		c.Site.AppRoot = DefaultAppRoot
	}
	if c.Site.LoginURL == "" {
		c.Site.LoginURL = DefaultLoginURL
	}
	if c.Site.PicksURL == "" {
		c.Site.PicksURL = c.Site.AppRoot
	}
	if c.Site.ProfileURL == "" {
		c.Site.ProfileURL = DefaultProfileURL
	}

	if c.Sport.Name == "" {
		c.Sport.Name = "NBA"
		if c.Sport.Aliases == nil {
			c.Sport.Aliases = []string{"Basketball"}
		}
	}

	t := &c.Timing
	if t.Attempts <= 0 {
		t.Attempts = 5
	}
	if t.AttemptPause <= 0 {
		t.AttemptPause = 1500 * time.Millisecond
	}
	if t.ShellPolls <= 0 {
		t.ShellPolls = 10
	}
	if t.ShellPollInterval <= 0 {
		t.ShellPollInterval = 300 * time.Millisecond
	}
	if t.SportSettle <= 0 {
		t.SportSettle = 600 * time.Millisecond
	}
	if t.EntrySettle <= 0 {
		t.EntrySettle = time.Second
	}
	if t.GateSettle <= 0 {
		t.GateSettle = 500 * time.Millisecond
	}
	if t.TabSettle <= 0 {
		t.TabSettle = 400 * time.Millisecond
	}
	if t.SideSettle <= 0 {
		t.SideSettle = 300 * time.Millisecond
	}
	if t.ItemPause <= 0 {
		t.ItemPause = 250 * time.Millisecond
	}
	if t.VerificationTimeout <= 0 {
		t.VerificationTimeout = 120 * time.Second
	}
	if t.VerificationInterval <= 0 {
		t.VerificationInterval = time.Second
	}
	if t.LoginTimeout <= 0 {
		t.LoginTimeout = 180 * time.Second
	}
	if t.LoginInterval <= 0 {
		t.LoginInterval = 1500 * time.Millisecond
	}
	if t.NavigationTimeout <= 0 {
		t.NavigationTimeout = 30 * time.Second
	}
	if t.HeadfulLinger <= 0 {
		t.HeadfulLinger = 3 * time.Second
	}

	if c.Browser.StorageState == "" {
		c.Browser.StorageState = DefaultStorageState
	}
	if c.Browser.Stealth == nil {
		on := true
		c.Browser.Stealth = &on
	}

	if c.Auth.CachePath == "" {
		c.Auth.CachePath = filepath.Join(GetCacheDir(), "auth.db")
	}
	if c.Auth.MaxAge <= 0 {
		c.Auth.MaxAge = 24 * time.Hour
	}

	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = GetArtifactsDir()
	}
}

// Validate checks the fields a run cannot proceed without.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"site.appRoot":  c.Site.AppRoot,
		"site.loginURL": c.Site.LoginURL,
		"site.picksURL": c.Site.PicksURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("%s is not an absolute URL: %q", name, raw))
		}
	}
	if c.Browser.Attach != "" {
		if u, err := url.Parse(c.Browser.Attach); err != nil || u.Host == "" {
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("browser.attach is not a DevTools URL: %q", c.Browser.Attach))
		}
	}
	for _, r := range c.Browser.ResourceBlocking {
		switch ResourceType(r) {
		case "image", "font", "media", "stylesheet":
		default:
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown resource type to block: %q", r))
		}
	}
	return nil
}

// ResourceType maps a configured resource name to its CDP resource type.
// Case, surrounding space and a plural "s" are ignored: "Images" is "image".
func ResourceType(name string) string {
	t := strings.ToLower(strings.TrimSpace(name))
	if t != "media" {
		t = strings.TrimSuffix(t, "s")
	}
	return t
}

// StealthEnabled reports whether stealth pages are used.
func (c *Config) StealthEnabled() bool {
	return c.Browser.Stealth == nil || *c.Browser.Stealth
}

// ArtifactConfig returns the capture policy for failure artifacts.
func (c *Config) ArtifactConfig() core.ArtifactConfig {
	ac := core.DefaultArtifactConfig()
	if c.Artifacts.Disable {
		ac.CaptureOnFailure = false
	}
	return ac
}
