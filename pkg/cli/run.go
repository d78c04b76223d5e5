package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/cgedge/slipfill/pkg/config"
	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/driver/browser"
	cdpdriver "github.com/cgedge/slipfill/pkg/driver/cdp"
	"github.com/cgedge/slipfill/pkg/executor"
	"github.com/cgedge/slipfill/pkg/gate"
	"github.com/cgedge/slipfill/pkg/logger"
	"github.com/cgedge/slipfill/pkg/navigator"
	"github.com/cgedge/slipfill/pkg/report"
	"github.com/cgedge/slipfill/pkg/session"
	"github.com/cgedge/slipfill/pkg/slip"
)

var runFlags = []cli.Flag{
	// Slip sources, in precedence order after --cgpp
	&cli.StringFlag{
		Name:  "cgpp",
		Usage: "Encoded slip payload",
	},
	&cli.StringFlag{
		Name:    "cgpp-file",
		Aliases: []string{"cgppFile"},
		Usage:   "File holding an encoded slip payload",
	},
	&cli.StringFlag{
		Name:  "slip",
		Usage: "Slip document (JSON or YAML): {items: [{name, prop, side}]} or a bare list",
	},

	// Browser
	&cli.BoolFlag{
		Name:  "headful",
		Usage: "Show the browser window",
	},
	&cli.StringFlag{
		Name:  "attach",
		Usage: "DevTools URL of a running browser to drive instead of launching one",
	},
	&cli.StringFlag{
		Name:  "storage-state",
		Usage: "Persisted session file (default: storage-state.json when present)",
	},

	// Configuration and output
	&cli.StringFlag{
		Name:  "config",
		Usage: "Path to config.yaml (default: ./config.yaml when present)",
	},
	&cli.StringFlag{
		Name:  "report",
		Usage: "Write a JSON run report to this path",
	},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Open the picks board and place a slip",
	Description: `Resolves a slip from --cgpp, --cgpp-file, --slip or the CGPP environment
variable (first that decodes wins), navigates to the picks board and places
each pick. With no slip the run only navigates and selects the sport.

A pick that cannot be placed is logged and skipped; the exit code is non-zero
only when the browser or the run setup fails.`,
	Flags:  runFlags,
	Action: runSlip,
}

// RunConfig is the resolved configuration of one run.
type RunConfig struct {
	Config *config.Config

	Sources    slip.Sources
	ReportPath string

	// StorageStateSet records an explicit --storage-state; attached runs
	// only apply a session file when asked to.
	StorageStateSet bool
}

// Attached reports whether the run drives an existing browser.
func (rc *RunConfig) Attached() bool {
	return rc.Config.Browser.Attach != ""
}

// pageOpener opens the page a run drives. Tests replace it.
var pageOpener = openPage

func runSlip(c *cli.Context) error {
	rc, err := buildRunConfig(lookup{c})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return executeRun(ctx, rc)
}

// buildRunConfig loads the configuration and applies flag overrides.
func buildRunConfig(f lookup) (*RunConfig, error) {
	var cfg *config.Config
	var err error
	if path := f.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, core.ErrInvalidConfig.WithCause(err)
	}

	if f.IsSet("headful") {
		cfg.Browser.Headful = f.Bool("headful")
	}
	if f.IsSet("attach") {
		cfg.Browser.Attach = f.String("attach")
	}
	if f.IsSet("storage-state") {
		cfg.Browser.StorageState = f.String("storage-state")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &RunConfig{
		Config: cfg,
		Sources: slip.Sources{
			Inline:      f.String("cgpp"),
			PayloadFile: f.String("cgpp-file"),
			SlipFile:    f.String("slip"),
		}.WithEnv(),
		ReportPath:      f.String("report"),
		StorageStateSet: f.IsSet("storage-state"),
	}, nil
}

// executeRun performs one run. Only setup failures are returned; item and
// gate failures end up in the log and the report.
func executeRun(ctx context.Context, rc *RunConfig) error {
	cfg := rc.Config
	logger.Info("=== slipfill %s ===", Version)

	sl, source := slip.Resolve(rc.Sources)
	if sl != nil {
		logger.Info("slip from %s: %d item(s)", source, sl.Len())
	} else {
		logger.Info("no slip supplied, navigating only")
	}

	var state *session.StorageState
	if !rc.Attached() || rc.StorageStateSet {
		st, err := session.LoadStorageState(cfg.Browser.StorageState)
		if err != nil {
			logger.Warn("ignoring storage state: %v", err)
		}
		state = st
	}

	cache, closeCache := openAuthCache(ctx, cfg)
	defer closeCache()

	page, driverName, err := pageOpener(ctx, rc, state)
	if err != nil {
		logger.Error("browser setup failed: %v", err)
		return err
	}

	sess := session.New(page, session.Options{
		StorageState: state,
		Headful:      cfg.Browser.Headful,
		Attached:     rc.Attached(),
		Cache:        cache,
		MaxAge:       cfg.Auth.MaxAge,
		ProfileURL:   cfg.Site.ProfileURL,
	})
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Debug("close: %v", err)
		}
	}()

	if rc.Attached() {
		if sl == nil {
			sl, source = sess.SlipFromPage(ctx)
			if sl != nil {
				logger.Info("slip from %s: %d item(s)", source, sl.Len())
			}
		}
	} else if err := page.Navigate(ctx, entryURL(cfg.Site.AppRoot, sl)); err != nil {
		// The gate pass recovers from a bad landing page.
		logger.Warn("initial navigation failed: %v", err)
	}

	runID := uuid.NewString()
	w := report.NewWriter(rc.ReportPath, artifactsDir(cfg), report.BuildSkeleton(sl, report.BuilderConfig{
		RunID:  runID,
		Source: source,
		Runner: report.RunnerInfo{Version: Version, Driver: driverName, Headful: cfg.Browser.Headful},
	}))
	w.Start()

	nav := navigator.New(sess, navigatorOptions(cfg))
	navRes, err := nav.Run(ctx, sl)
	w.SetNavigation(navRes)
	if err != nil {
		w.End()
		return fmt.Errorf("navigation interrupted: %w", err)
	}
	logger.Info("navigation finished in state %s after %d pass(es)", navRes.State, navRes.Attempts)

	if sl != nil {
		runner := executor.New(page, executor.RunnerConfig{
			RunID:       runID,
			TabSettle:   cfg.Timing.TabSettle,
			SideSettle:  cfg.Timing.SideSettle,
			ItemPause:   cfg.Timing.ItemPause,
			Artifacts:   cfg.ArtifactConfig(),
			Report:      w,
			OnItemStart: onItemStart,
			OnItemEnd:   onItemEnd,
		})
		result := runner.Run(ctx, sl)
		printSummary(result)
	}
	w.End()
	if w.Written() {
		fmt.Printf("  Report: %s\n", w.Path())
	}

	if cfg.Browser.Headful && !rc.Attached() {
		logger.Info("keeping the window open for %s", cfg.Timing.HeadfulLinger)
		_ = core.Wait(ctx, cfg.Timing.HeadfulLinger)
	}
	return nil
}

// openPage launches Chrome or attaches to the configured browser.
func openPage(ctx context.Context, rc *RunConfig, state *session.StorageState) (core.Page, string, error) {
	cfg := rc.Config
	if rc.Attached() {
		p, err := cdpdriver.Attach(ctx, cdpdriver.Options{
			URL:               cfg.Browser.Attach,
			AppHost:           hostOf(cfg.Site.AppRoot),
			StorageState:      state,
			NavigationTimeout: cfg.Timing.NavigationTimeout,
		})
		if err != nil {
			return nil, "", err
		}
		return p, cdpdriver.DriverName, nil
	}

	p, err := browser.Launch(ctx, browser.Options{
		Headful:           cfg.Browser.Headful,
		Bin:               cfg.Browser.Bin,
		UserAgent:         cfg.Browser.UserAgent,
		Stealth:           cfg.StealthEnabled(),
		ResourceBlocking:  cfg.Browser.ResourceBlocking,
		StorageState:      state,
		NavigationTimeout: cfg.Timing.NavigationTimeout,
	})
	if err != nil {
		return nil, "", err
	}
	return p, browser.DriverName, nil
}

// openAuthCache opens the configured cache, falling back to memory.
func openAuthCache(ctx context.Context, cfg *config.Config) (session.AuthCache, func()) {
	if cfg.Auth.CachePath == config.MemoryCache {
		return session.NewMemoryCache(), func() {}
	}
	c, err := session.OpenSQLiteCache(ctx, cfg.Auth.CachePath, hostOf(cfg.Site.AppRoot))
	if err != nil {
		logger.Warn("auth cache unavailable, using memory: %v", err)
		return session.NewMemoryCache(), func() {}
	}
	return c, func() { _ = c.Close() }
}

func navigatorOptions(cfg *config.Config) navigator.Options {
	t := cfg.Timing
	return navigator.Options{
		Sport:             cfg.Sport.Name,
		Aliases:           cfg.Sport.Aliases,
		Attempts:          t.Attempts,
		AttemptPause:      t.AttemptPause,
		ShellPolls:        t.ShellPolls,
		ShellPollInterval: t.ShellPollInterval,
		SportSettle:       t.SportSettle,
		LoginURL:          cfg.Site.LoginURL,
		LoginTimeout:      t.LoginTimeout,
		LoginInterval:     t.LoginInterval,
		Gates: gate.Options{
			AppRoot:              cfg.Site.AppRoot,
			PicksURL:             cfg.Site.PicksURL,
			VerificationTimeout:  t.VerificationTimeout,
			VerificationInterval: t.VerificationInterval,
			Settle:               t.GateSettle,
			EntrySettle:          t.EntrySettle,
		},
	}
}

// entryURL is the app root, carrying the slip in its fragment so the page
// holds it across redirects and a login detour.
func entryURL(root string, sl *slip.Slip) string {
	if sl == nil {
		return root
	}
	encoded, err := slip.Encode(sl)
	if err != nil {
		return root
	}
	u, err := url.Parse(root)
	if err != nil {
		return root
	}
	u.Fragment = slip.FragmentKey + "=" + encoded
	return u.String()
}

func artifactsDir(cfg *config.Config) string {
	if cfg.Artifacts.Disable {
		return ""
	}
	return cfg.Artifacts.Dir
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// exitCode maps a run error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, core.ErrInvalidConfig):
		return 2
	default:
		return 1
	}
}
