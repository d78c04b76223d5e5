package navigator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cgedge/slipfill/pkg/dom"
	"github.com/cgedge/slipfill/pkg/driver/fake"
	"github.com/cgedge/slipfill/pkg/gate"
	"github.com/cgedge/slipfill/pkg/logger"
	"github.com/cgedge/slipfill/pkg/session"
	"github.com/cgedge/slipfill/pkg/slip"
)

const (
	appRoot  = "https://www.prizepicks.com/"
	loginURL = "https://www.prizepicks.com/login"

	boardHTML    = `<html><body><div role="tablist"><button role="tab">NFL</button><button role="tab">NBA</button></div></body></html>`
	selectedHTML = `<html><body><div role="tablist"><button role="tab">NFL</button><button role="tab" aria-selected="true">NBA</button></div></body></html>`
	consentHTML  = `<html><body><button>Accept All</button></body></html>`
	marketHTML   = `<html><body><h1>All your picks. One app.</h1><button>Log in</button><a href="/board">Pick Now</a></body></html>`
	blankHTML    = `<html><body><p>Loading…</p></body></html>`
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	return &buf
}

func fastOptions() Options {
	return Options{
		Sport:             "NBA",
		Aliases:           []string{"Basketball"},
		Attempts:          3,
		AttemptPause:      time.Millisecond,
		ShellPolls:        2,
		ShellPollInterval: time.Millisecond,
		SportSettle:       time.Millisecond,
		LoginTimeout:      20 * time.Millisecond,
		LoginInterval:     5 * time.Millisecond,
		Gates: gate.Options{
			AppRoot:              appRoot,
			VerificationTimeout:  10 * time.Millisecond,
			VerificationInterval: 5 * time.Millisecond,
		},
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Unknown, "unknown"},
		{MarketingHome, "marketing-home"},
		{HumanVerificationPending, "human-verification-pending"},
		{PicksShellReady, "picks-shell-ready"},
		{SportSelected, "sport-selected"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
		if b, _ := tt.state.MarshalText(); string(b) != tt.want {
			t.Errorf("MarshalText = %q, want %q", b, tt.want)
		}
	}
}

func TestCurrentState(t *testing.T) {
	tests := []struct {
		name string
		url  string
		html string
		want State
	}{
		{"marketing", appRoot, marketHTML, MarketingHome},
		{"off app", "https://playbook.prizepicks.com/x", blankHTML, OffAppRoute},
		{"consent", appRoot, consentHTML, ConsentPending},
		{"tutorial", appRoot, `<html><body><div role="dialog">Welcome to PrizePicks</div></body></html>`, TutorialOpen},
		{"verification", appRoot, `<html><body><div id="px-captcha"></div></body></html>`, HumanVerificationPending},
		{"geolocation", appRoot, `<html><body><button>Share Location</button></body></html>`, GeolocationPrompt},
		{"not found", appRoot, `<html><body><h1>Page not found</h1></body></html>`, NotFound},
		{"login form", loginURL, `<html><body><form><input type="email"><input type="password"></form></body></html>`, LoginRequired},
		{"shell", appRoot, boardHTML, PicksShellReady},
		{"sport selected", appRoot, selectedHTML, SportSelected},
		{"sport active class", appRoot, `<html><body><div role="tablist"><button class="Chip_active__x1">NBA</button></div></body></html>`, SportSelected},
		{"inactive class", appRoot, `<html><body><div role="tablist"><button class="inactive">NBA</button></div></body></html>`, PicksShellReady},
		{"nothing", appRoot, blankHTML, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := dom.MustParse(tt.url, tt.html)
			if got := CurrentState(snap, "NBA", "Basketball"); got != tt.want {
				t.Errorf("CurrentState() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRun_ConsentThenSport(t *testing.T) {
	captureLogs(t)
	p := fake.New(fake.Config{URL: appRoot, HTML: consentHTML})
	p.OnClick = func(p *fake.Page, c fake.Click) {
		switch c.Text {
		case "Accept All":
			p.SetHTML(boardHTML)
		case "NBA":
			p.SetHTML(selectedHTML)
		}
	}

	res, err := New(session.New(p, session.Options{}), fastOptions()).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.SportSelected || res.Attempts != 1 {
		t.Errorf("expected sport selected on pass 1, got %+v", res)
	}
	if res.State != SportSelected {
		t.Errorf("expected final state %s, got %s", SportSelected, res.State)
	}
	if got := p.ClickedTexts(); len(got) != 2 || got[0] != "Accept All" || got[1] != "NBA" {
		t.Errorf("unexpected clicks %v", got)
	}
	if len(res.Gates) != 1 || res.Gates[0].Gate != gate.Consent {
		t.Errorf("expected only the consent gate reported, got %+v", res.Gates)
	}
	if res.Login != LoginSkipped {
		t.Errorf("expected login skipped, got %s", res.Login)
	}
}

func TestRun_MarketingEntry(t *testing.T) {
	captureLogs(t)
	p := fake.New(fake.Config{URL: appRoot, HTML: marketHTML})
	p.OnClick = func(p *fake.Page, c fake.Click) {
		if c.Text == "Pick Now" {
			p.SetHTML(boardHTML)
		}
	}

	res, err := New(session.New(p, session.Options{}), fastOptions()).Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.SportSelected {
		t.Fatalf("expected sport selected, got %+v", res)
	}
	if got := p.ClickedTexts(); len(got) != 2 || got[0] != "Pick Now" {
		t.Errorf("unexpected clicks %v", got)
	}
}

func TestRun_AlreadySelected(t *testing.T) {
	captureLogs(t)
	p := fake.New(fake.Config{URL: appRoot, HTML: selectedHTML})

	res, err := New(session.New(p, session.Options{}), fastOptions()).Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.SportSelected {
		t.Error("expected sport reported as selected")
	}
	if len(p.Clicks()) != 0 {
		t.Errorf("expected no clicks, got %v", p.ClickedTexts())
	}
}

func TestRun_BudgetExhausted(t *testing.T) {
	logs := captureLogs(t)
	p := fake.New(fake.Config{URL: appRoot, HTML: blankHTML})

	res, err := New(session.New(p, session.Options{}), fastOptions()).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("exhausting the budget must not be an error, got %v", err)
	}
	if res.SportSelected || res.Attempts != 3 {
		t.Errorf("expected 3 unsuccessful passes, got %+v", res)
	}
	if res.State != Unknown {
		t.Errorf("expected state unknown, got %s", res.State)
	}
	if !strings.Contains(logs.String(), "NBA not selected after 3 pass(es)") {
		t.Errorf("expected budget warning, got:\n%s", logs.String())
	}
}

func TestRun_SportLinkWithoutShellMarkers(t *testing.T) {
	captureLogs(t)
	p := fake.New(fake.Config{URL: appRoot, HTML: `<html><body><nav><a href="/board/nba">NBA</a><a href="/board/nfl">NFL</a></nav></body></html>`})

	res, err := New(session.New(p, session.Options{}), fastOptions()).Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.SportSelected || res.Attempts != 1 {
		t.Errorf("expected the sport selected on the first pass, got %+v", res)
	}
	if got := p.ClickedTexts(); len(got) != 1 || got[0] != "NBA" {
		t.Errorf("expected one click on the NBA link, got %v", got)
	}
}

func TestRun_SportMissingFromShell(t *testing.T) {
	captureLogs(t)
	p := fake.New(fake.Config{URL: appRoot, HTML: `<html><body><div role="tablist"><button role="tab">MLB</button></div></body></html>`})

	res, err := New(session.New(p, session.Options{}), fastOptions()).Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SportSelected || res.State != PicksShellReady {
		t.Errorf("expected shell ready without sport, got %+v", res)
	}
}

func TestRun_ShellAppearsLate(t *testing.T) {
	captureLogs(t)
	p := fake.New(fake.Config{URL: appRoot, HTML: blankHTML})
	p.OnSnapshot = func(p *fake.Page, n int) {
		if n >= 12 {
			p.SetHTML(boardHTML)
		}
	}

	res, err := New(session.New(p, session.Options{}), fastOptions()).Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.SportSelected || res.Attempts < 2 {
		t.Errorf("expected selection on a later pass, got %+v", res)
	}
}

func TestRun_LoginDetour(t *testing.T) {
	captureLogs(t)
	p := fake.New(fake.Config{
		URL:  appRoot + "#cgpp=abc",
		HTML: `<html><body><button>Log in</button><div role="tablist"><button role="tab">NBA</button></div></body></html>`,
	})
	p.OnNavigate = func(p *fake.Page, url string) {
		if strings.HasPrefix(url, loginURL) {
			p.SetHTML(`<html><body><div data-testid="avatar"></div><div role="tablist"><button role="tab">NBA</button></div></body></html>`)
		}
	}
	sess := session.New(p, session.Options{Attached: true})
	opts := fastOptions()
	opts.LoginURL = loginURL
	sl := &slip.Slip{Items: []slip.Item{{Name: "Nikola Jokic", Prop: "Points", Side: slip.Under}}}

	res, err := New(sess, opts).Run(context.Background(), sl)
	if err != nil {
		t.Fatal(err)
	}
	if res.Login != LoginCompleted {
		t.Errorf("expected login completed, got %s", res.Login)
	}
	nav := p.Navigations()
	if len(nav) < 2 || nav[0] != loginURL+"#cgpp=abc" || nav[1] != appRoot+"#cgpp=abc" {
		t.Errorf("expected login and return navigations keeping the fragment, got %v", nav)
	}
	if stored, ok, _ := p.GetItem(context.Background(), session.KeySlip); !ok || !strings.Contains(stored, "Nikola Jokic") {
		t.Errorf("expected slip persisted before login, got %q", stored)
	}
	if !sess.Fresh(context.Background()) {
		t.Error("expected auth cache stamped after login")
	}
	if !res.SportSelected {
		t.Error("expected navigation to continue after login")
	}
}

func TestRun_LoginTimeout(t *testing.T) {
	logs := captureLogs(t)
	p := fake.New(fake.Config{URL: appRoot, HTML: `<html><body><button>Log In</button><div role="tablist"><button role="tab">NBA</button></div></body></html>`})
	sess := session.New(p, session.Options{Headful: true})
	opts := fastOptions()
	opts.LoginURL = loginURL

	res, err := New(sess, opts).Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Login != LoginTimedOut {
		t.Errorf("expected login timeout, got %s", res.Login)
	}
	if !strings.Contains(logs.String(), "continuing unauthenticated") {
		t.Errorf("expected timeout warning, got:\n%s", logs.String())
	}
	if sess.Fresh(context.Background()) {
		t.Error("auth cache must not be stamped after a timeout")
	}
	if !res.SportSelected {
		t.Error("expected navigation to proceed unauthenticated")
	}
}

func TestRun_NoLoginWhenHeadless(t *testing.T) {
	captureLogs(t)
	p := fake.New(fake.Config{URL: appRoot, HTML: `<html><body><button>Log in</button><div role="tablist"><button role="tab">NBA</button></div></body></html>`})
	opts := fastOptions()
	opts.LoginURL = loginURL

	res, err := New(session.New(p, session.Options{}), opts).Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Login != LoginSkipped || len(p.Navigations()) != 0 {
		t.Errorf("expected no login detour, got %s %v", res.Login, p.Navigations())
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := fake.New(fake.Config{URL: appRoot, HTML: boardHTML})

	res, err := New(session.New(p, session.Options{}), fastOptions()).Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if res == nil || res.SportSelected {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestNew_Defaults(t *testing.T) {
	n := New(session.New(fake.New(fake.Config{}), session.Options{}), Options{})
	o := n.Options()
	if o.Sport != "NBA" || o.Attempts != 5 || o.AttemptPause != 1500*time.Millisecond {
		t.Errorf("unexpected defaults %+v", o)
	}
	if o.ShellPolls != 10 || o.ShellPollInterval != 300*time.Millisecond || o.SportSettle != 600*time.Millisecond {
		t.Errorf("unexpected shell defaults %+v", o)
	}
	if o.LoginTimeout != 180*time.Second || o.LoginInterval != 1500*time.Millisecond {
		t.Errorf("unexpected login defaults %+v", o)
	}
}
