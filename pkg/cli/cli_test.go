package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/cgedge/slipfill/pkg/config"
	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/driver/fake"
	"github.com/cgedge/slipfill/pkg/logger"
	"github.com/cgedge/slipfill/pkg/navigator"
	"github.com/cgedge/slipfill/pkg/report"
	"github.com/cgedge/slipfill/pkg/session"
	"github.com/cgedge/slipfill/pkg/slip"
)

const boardHTML = `<html><body>
<div role="tablist"><button role="tab">NFL</button><button role="tab" aria-selected="true">NBA</button></div>
<nav>
  <button class="StatTab" aria-selected="true">Points</button>
  <button class="StatTab">Rebounds</button>
</nav>
<ul>
  <li data-testid="player-card-1">
    <span>Nikola Jokic</span>
    <button data-testid="over-button">Over</button>
    <button data-testid="under-button">Under</button>
  </li>
</ul>
</body></html>`

const fastConfigYAML = `site:
  appRoot: https://app.example.test/
  loginURL: https://app.example.test/login
timing:
  attempts: 2
  attemptPause: 1ms
  shellPolls: 2
  shellPollInterval: 1ms
  sportSettle: 1ms
  entrySettle: 1ms
  gateSettle: 1ms
  tabSettle: 1ms
  sideSettle: 1ms
  itemPause: 1ms
  verificationTimeout: 5ms
  verificationInterval: 1ms
auth:
  cachePath: memory
artifacts:
  disable: true
`

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	return &buf
}

// suppressStdout hides the progress table while a test runs.
func suppressStdout(t *testing.T) {
	t.Helper()
	old := os.Stdout
	os.Stdout, _ = os.Open(os.DevNull)
	t.Cleanup(func() { os.Stdout = old })
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeFile(t, "config.yaml", fastConfigYAML))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

// useFakePage routes pageOpener to p for the duration of the test.
func useFakePage(t *testing.T, p core.Page, err error) {
	t.Helper()
	old := pageOpener
	pageOpener = func(context.Context, *RunConfig, *session.StorageState) (core.Page, string, error) {
		if err != nil {
			return nil, "", err
		}
		return p, "fake", nil
	}
	t.Cleanup(func() { pageOpener = old })
}

func encode(t *testing.T, sl *slip.Slip) string {
	t.Helper()
	s, err := slip.Encode(sl)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGlobalFlags(t *testing.T) {
	names := make(map[string]bool)
	for _, f := range GlobalFlags {
		for _, name := range f.Names() {
			names[name] = true
		}
	}
	for _, want := range []string{"log-file", "verbose", "v"} {
		if !names[want] {
			t.Errorf("expected global flag %q", want)
		}
	}
}

func TestRunFlags(t *testing.T) {
	names := make(map[string]bool)
	for _, f := range runFlags {
		for _, name := range f.Names() {
			names[name] = true
		}
	}
	for _, want := range []string{"cgpp", "cgpp-file", "cgppFile", "slip", "headful", "attach", "storage-state", "config", "report"} {
		if !names[want] {
			t.Errorf("expected run flag %q", want)
		}
	}
}

// parseRunConfig runs an app that only builds the run configuration.
func parseRunConfig(t *testing.T, args ...string) (*RunConfig, error) {
	t.Helper()
	var rc *RunConfig
	var buildErr error
	app := &cli.App{
		Name:  "slipfill",
		Flags: append(append([]cli.Flag{}, GlobalFlags...), runFlags...),
		Action: func(c *cli.Context) error {
			rc, buildErr = buildRunConfig(lookup{c})
			return nil
		},
		Commands: []*cli.Command{{
			Name:  "run",
			Flags: runFlags,
			Action: func(c *cli.Context) error {
				rc, buildErr = buildRunConfig(lookup{c})
				return nil
			},
		}},
	}
	if err := app.Run(append([]string{"slipfill"}, args...)); err != nil {
		t.Fatalf("app.Run() error = %v", err)
	}
	return rc, buildErr
}

func TestBuildRunConfig_Flags(t *testing.T) {
	t.Setenv(slip.EnvVar, "from-env")
	cfgPath := writeFile(t, "config.yaml", fastConfigYAML)

	rc, err := parseRunConfig(t, "run",
		"--config", cfgPath,
		"--cgpp", "inline",
		"--cgppFile", "payload.txt",
		"--slip", "picks.yaml",
		"--headful",
		"--attach", "http://127.0.0.1:9222",
		"--storage-state", "state.json",
		"--report", "out/report.json",
	)
	if err != nil {
		t.Fatalf("buildRunConfig() error = %v", err)
	}

	want := slip.Sources{Inline: "inline", PayloadFile: "payload.txt", SlipFile: "picks.yaml", Env: "from-env"}
	if rc.Sources != want {
		t.Errorf("Sources = %+v, want %+v", rc.Sources, want)
	}
	if !rc.Config.Browser.Headful || !rc.Attached() || rc.Config.Browser.StorageState != "state.json" || !rc.StorageStateSet {
		t.Errorf("browser overrides not applied: %+v", rc.Config.Browser)
	}
	if rc.ReportPath != "out/report.json" {
		t.Errorf("ReportPath = %q", rc.ReportPath)
	}
	if rc.Config.Site.AppRoot != "https://app.example.test/" {
		t.Errorf("config file not loaded, appRoot = %q", rc.Config.Site.AppRoot)
	}
}

func TestBuildRunConfig_DefaultAction(t *testing.T) {
	rc, err := parseRunConfig(t, "--cgpp", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if rc.Sources.Inline != "abc" || rc.Config.Browser.Headful || rc.Attached() || rc.StorageStateSet {
		t.Errorf("unexpected config %+v", rc)
	}
	if rc.Config.Browser.StorageState != config.DefaultStorageState {
		t.Errorf("StorageState = %q, want default", rc.Config.Browser.StorageState)
	}
}

func TestBuildRunConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad attach URL", []string{"--attach", "not a url"}},
		{"missing config file", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRunConfig(t, tt.args...)
			if !errors.Is(err, core.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if exitCode(err) != 2 {
				t.Errorf("exitCode = %d, want 2", exitCode(err))
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{core.ErrInvalidConfig.WithMessage("bad"), 2},
		{core.ErrLaunch.WithCause(errors.New("no chrome")), 1},
		{errors.New("other"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestExecuteRun_PlacesSlip(t *testing.T) {
	logs := captureLogs(t)
	suppressStdout(t)

	page := fake.New(fake.Config{URL: "about:blank", HTML: boardHTML})
	useFakePage(t, page, nil)

	sl := &slip.Slip{Items: []slip.Item{{Name: "Nikola Jokic", Prop: "Points", Side: slip.Under}}}
	reportPath := filepath.Join(t.TempDir(), "report.json")
	rc := &RunConfig{
		Config:     fastConfig(t),
		Sources:    slip.Sources{Inline: encode(t, sl)},
		ReportPath: reportPath,
	}

	if err := executeRun(context.Background(), rc); err != nil {
		t.Fatalf("executeRun() error = %v", err)
	}

	navs := page.Navigations()
	if len(navs) == 0 || !strings.HasPrefix(navs[0], "https://app.example.test/#cgpp=") {
		t.Errorf("expected entry navigation carrying the slip, got %v", navs)
	}
	if got := page.ClickedTexts(); len(got) != 1 || got[0] != "Under" {
		t.Errorf("expected exactly the Under click, got %v", got)
	}
	if !page.Closed() {
		t.Error("expected the page to be closed")
	}

	r := loadReport(t, reportPath)
	if r.Status != core.StatusPassed || r.Summary.Passed != 1 || r.Slip.Source != slip.SourceInline {
		t.Errorf("unexpected report %+v", r)
	}
	if r.Runner.Driver != "fake" || r.Navigation == nil || r.Navigation.State != navigator.SportSelected {
		t.Errorf("unexpected runner/navigation %+v %+v", r.Runner, r.Navigation)
	}
	if strings.Contains(logs.String(), "level=error") {
		t.Errorf("unexpected errors logged:\n%s", logs.String())
	}
}

func TestExecuteRun_NavigateOnly(t *testing.T) {
	logs := captureLogs(t)
	suppressStdout(t)

	page := fake.New(fake.Config{URL: "about:blank", HTML: boardHTML})
	useFakePage(t, page, nil)

	if err := executeRun(context.Background(), &RunConfig{Config: fastConfig(t)}); err != nil {
		t.Fatalf("executeRun() error = %v", err)
	}
	if navs := page.Navigations(); len(navs) == 0 || navs[0] != "https://app.example.test/" {
		t.Errorf("expected plain entry navigation, got %v", navs)
	}
	if len(page.Clicks()) != 0 {
		t.Errorf("expected no clicks, got %v", page.ClickedTexts())
	}
	if !strings.Contains(logs.String(), "navigating only") {
		t.Errorf("expected navigate-only notice, got:\n%s", logs.String())
	}
}

func TestExecuteRun_AttachedReadsSlipFromPage(t *testing.T) {
	captureLogs(t)
	suppressStdout(t)

	sl := &slip.Slip{Items: []slip.Item{{Name: "Nikola Jokic", Prop: "Points", Side: slip.Over}}}
	page := fake.New(fake.Config{
		URL:  "https://app.example.test/#cgpp=" + encode(t, sl),
		HTML: boardHTML,
	})
	useFakePage(t, page, nil)

	cfg := fastConfig(t)
	cfg.Browser.Attach = "http://127.0.0.1:9222"
	cfg.Site.LoginURL = ""
	if err := executeRun(context.Background(), &RunConfig{Config: cfg}); err != nil {
		t.Fatalf("executeRun() error = %v", err)
	}

	for _, nav := range page.Navigations() {
		if strings.Contains(nav, "#cgpp=") {
			t.Errorf("attached run should not reload the entry URL, got %q", nav)
		}
	}
	if got := page.ClickedTexts(); len(got) != 1 || got[0] != "Over" {
		t.Errorf("expected exactly the Over click, got %v", got)
	}
}

func TestExecuteRun_LaunchFailure(t *testing.T) {
	captureLogs(t)
	useFakePage(t, nil, core.ErrLaunch.WithCause(errors.New("chrome not found")))

	err := executeRun(context.Background(), &RunConfig{Config: fastConfig(t)})
	if !errors.Is(err, core.ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
	if exitCode(err) != 1 {
		t.Errorf("exitCode = %d, want 1", exitCode(err))
	}
}

func TestExecuteRun_ItemFailureIsNotFatal(t *testing.T) {
	logs := captureLogs(t)
	suppressStdout(t)

	page := fake.New(fake.Config{URL: "about:blank", HTML: boardHTML})
	useFakePage(t, page, nil)

	sl := &slip.Slip{Items: []slip.Item{
		{Name: "Nobody Here", Prop: "Points", Side: slip.Over},
		{Name: "Nikola Jokic", Prop: "Points", Side: slip.Under},
	}}
	err := executeRun(context.Background(), &RunConfig{
		Config:  fastConfig(t),
		Sources: slip.Sources{Inline: encode(t, sl)},
	})
	if err != nil {
		t.Fatalf("expected a zero-exit run, got %v", err)
	}
	if got := page.ClickedTexts(); len(got) != 1 || got[0] != "Under" {
		t.Errorf("expected the second item placed, got %v", got)
	}
	if !strings.Contains(logs.String(), "player not found") {
		t.Errorf("expected a warning for the missing player, got:\n%s", logs.String())
	}
}

func TestEntryURL(t *testing.T) {
	if got := entryURL("https://app.example.test/", nil); got != "https://app.example.test/" {
		t.Errorf("entryURL(nil) = %q", got)
	}

	sl := &slip.Slip{Items: []slip.Item{{Name: "Luka Dončić", Prop: "Points", Side: slip.Over}}}
	got := entryURL("https://app.example.test/board#old", sl)
	prefix := "https://app.example.test/board#cgpp="
	if !strings.HasPrefix(got, prefix) {
		t.Fatalf("entryURL = %q", got)
	}
	decoded, err := slip.Decode(strings.TrimPrefix(got, "https://app.example.test/board#"))
	if err != nil {
		t.Fatalf("fragment does not decode: %v", err)
	}
	if decoded.Items[0].Name != "Luka Dončić" {
		t.Errorf("round trip lost the name: %+v", decoded.Items)
	}
}

func TestHostOf(t *testing.T) {
	if got := hostOf("https://app.example.test:8443/x"); got != "app.example.test" {
		t.Errorf("hostOf = %q", got)
	}
	if got := hostOf("::bad"); got != "" {
		t.Errorf("hostOf(bad) = %q", got)
	}
}

// runApp runs a fresh app and returns what it printed.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out
	err := app.Run(append([]string{"slipfill"}, args...))
	return out.String(), err
}

func TestDecodeCommand(t *testing.T) {
	sl := &slip.Slip{Items: []slip.Item{{Name: "Nikola Jokic", Prop: "Points", Side: slip.Under}}}
	payload := encode(t, sl)

	tests := []struct {
		name string
		args []string
	}{
		{"argument", []string{"decode", payload}},
		{"file", []string{"decode", "--file", writeFile(t, "payload.txt", payload+"\n")}},
		{"fragment form", []string{"decode", "#cgpp=" + payload}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runApp(t, tt.args...)
			if err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if !strings.Contains(out, `"name": "Nikola Jokic"`) || !strings.Contains(out, `"side": "Under"`) {
				t.Errorf("unexpected output %s", out)
			}
		})
	}
}

func TestDecodeCommand_Errors(t *testing.T) {
	if _, err := runApp(t, "decode"); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected usage error, got %v", err)
	}
	if _, err := runApp(t, "decode", "%%%"); !errors.Is(err, core.ErrDecode) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestEncodeCommand(t *testing.T) {
	path := writeFile(t, "picks.yaml", "items:\n  - name: Nikola Jokic\n    prop: Points\n    side: under\n")

	out, err := runApp(t, "encode", path)
	if err != nil {
		t.Fatal(err)
	}
	sl, err := slip.Decode(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("output does not decode: %v", err)
	}
	if sl.Len() != 1 || slip.ParseSide(string(sl.Items[0].Side)) != slip.Under {
		t.Errorf("unexpected slip %+v", sl)
	}

	out, err = runApp(t, "encode", "--url", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, config.DefaultAppRoot+"#cgpp=") {
		t.Errorf("expected an app link, got %q", out)
	}

	if _, err := runApp(t, "encode"); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected usage error, got %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1500, "1.5s"},
		{61000, "1m 1s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.ms); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Giannis Antetokounmpo", 10); got != "Giannis..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("Short", 10); got != "Short" {
		t.Errorf("truncate = %q", got)
	}
}

func loadReport(t *testing.T, path string) *report.Report {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("report does not parse: %v", err)
	}
	return &r
}
