package gate

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/dom"
	"github.com/cgedge/slipfill/pkg/locator"
	"github.com/cgedge/slipfill/pkg/logger"
)

// Gate names, in priority order.
const (
	OffApp       = "off-app-route"
	Marketing    = "marketing-home"
	Consent      = "consent-banner"
	Tutorial     = "tutorial-modal"
	Verification = "human-verification"
	Geolocation  = "geolocation-prompt"
	NotFound     = "not-found"
)

// Interstitial selectors and copy. Kept together because the app and its
// vendors reword these independently of each other.
const (
	clickable      = `a, button, [role="button"]`
	dialogSelector = `[role="dialog"], [aria-modal="true"], [class*="Modal"], [class*="modal"]`
	closeSelector  = `[aria-label*="close" i], [data-testid*="close" i], [class*="close" i]`
	challengeFrame = `#px-captcha, [id*="challenge" i] iframe, iframe[title*="challenge" i]`
	consentButton  = `#onetrust-accept-btn-handler`
)

var (
	marketingCopy  = regexp.MustCompile(`(?i)all your picks\.\s*one app\.`)
	pickNowText    = regexp.MustCompile(`(?i)pick\s*now`)
	playersText    = regexp.MustCompile(`(?i)players`)
	acceptAllText  = regexp.MustCompile(`(?i)^\s*accept\s+all(\s+cookies)?\s*$`)
	onboardingCopy = regexp.MustCompile(`(?i)(welcome to|how to play|how it works|tutorial|get started|here's how)`)
	dismissText    = regexp.MustCompile(`(?i)^\s*(close|skip|got it|done|no thanks|maybe later|×|x)\s*$`)
	challengeCopy  = regexp.MustCompile(`(?i)(press\s*(&|and)\s*hold|verify you are (a )?human|are you a robot)`)
	allowLocation  = regexp.MustCompile(`(?i)(allow|share|enable)\s+(my\s+)?location`)
	notFoundCopy   = regexp.MustCompile(`(?i)(page not found|this page (doesn't|does not) exist|\b404\b)`)
	goHomeText     = regexp.MustCompile(`(?i)(go|back|return)\s+(to\s+)?home`)
)

// Catalog returns the known gates in priority order.
func Catalog() []Gate {
	return []Gate{
		{Name: OffApp, Detect: detectOffApp, Resolve: resolveOffApp},
		{Name: Marketing, Detect: detectMarketing, Resolve: resolveMarketing},
		{Name: Consent, Detect: detectConsent, Resolve: resolveConsent},
		{Name: Tutorial, Detect: detectTutorial, Resolve: resolveTutorial},
		{Name: Verification, Detect: detectVerification, Resolve: resolveVerification},
		{Name: Geolocation, Detect: detectGeolocation, Resolve: resolveGeolocation},
		{Name: NotFound, Detect: detectNotFound, Resolve: resolveNotFound},
	}
}

func firstText(scope locator.Scope, selector string, re *regexp.Regexp) *dom.Element {
	for _, el := range scope.Find(selector) {
		if re.MatchString(el.Text()) {
			return el
		}
	}
	return nil
}

// Off-app route: article and playbook pages that never mount the board.

func detectOffApp(snap *dom.Snapshot) bool {
	u, err := url.Parse(snap.URL())
	if err != nil {
		return false
	}
	return strings.Contains(u.Hostname(), "playbook.") ||
		strings.HasPrefix(u.Path, "/category/") ||
		strings.HasPrefix(u.Path, "/playbook/")
}

func resolveOffApp(ctx context.Context, r *Resolver, snap *dom.Snapshot) error {
	target := WithFragment(r.opts.AppRoot, snap.URL())
	if target == snap.URL() {
		return nil
	}
	logger.Info("redirecting to app root with fragment")
	return r.page.Navigate(ctx, target)
}

// WithFragment returns target carrying the fragment of from, if any.
func WithFragment(target, from string) string {
	u, err := url.Parse(from)
	if err != nil || u.Fragment == "" {
		return target
	}
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	return target + "#" + u.EscapedFragment()
}

// Marketing home: the logged-out landing page.

func detectMarketing(snap *dom.Snapshot) bool {
	return marketingCopy.MatchString(snap.BodyText())
}

func resolveMarketing(ctx context.Context, r *Resolver, snap *dom.Snapshot) error {
	if cta := pickNowCTA(snap); cta != nil {
		return r.click(ctx, cta, r.opts.EntrySettle)
	}
	if cta := firstText(snap, clickable, playersText); cta != nil {
		return r.click(ctx, cta, r.opts.EntrySettle)
	}
	return r.page.Navigate(ctx, WithFragment(r.opts.AppRoot, snap.URL()))
}

func pickNowCTA(snap *dom.Snapshot) *dom.Element {
	for _, el := range snap.Find(clickable) {
		if pickNowText.MatchString(el.Text()) || el.Attr("aria-label") == "Pick Now" {
			return el
		}
	}
	return nil
}

// Consent banner.

func consentControl(snap *dom.Snapshot) *dom.Element {
	if el := snap.First(consentButton); el != nil {
		return el
	}
	return firstText(snap, clickable, acceptAllText)
}

func detectConsent(snap *dom.Snapshot) bool {
	return consentControl(snap) != nil
}

func resolveConsent(ctx context.Context, r *Resolver, snap *dom.Snapshot) error {
	return r.click(ctx, consentControl(snap), r.opts.Settle)
}

// Tutorial modal.

func tutorialDialog(snap *dom.Snapshot) *dom.Element {
	for _, d := range snap.Find(dialogSelector) {
		if onboardingCopy.MatchString(d.Text()) {
			return d
		}
	}
	return nil
}

func detectTutorial(snap *dom.Snapshot) bool {
	return tutorialDialog(snap) != nil
}

func resolveTutorial(ctx context.Context, r *Resolver, snap *dom.Snapshot) error {
	d := tutorialDialog(snap)
	if d == nil {
		return nil
	}
	closer := d.First(closeSelector)
	if closer == nil {
		closer = firstText(d, clickable, dismissText)
	}
	return r.click(ctx, closer, r.opts.Settle)
}

// Human verification: a press-and-hold challenge only an operator can pass.

func detectVerification(snap *dom.Snapshot) bool {
	return snap.Has(challengeFrame) || challengeCopy.MatchString(snap.BodyText())
}

func resolveVerification(ctx context.Context, r *Resolver, _ *dom.Snapshot) error {
	if r.verificationSpent {
		return core.ErrGateTimeout.WithMessage(Verification + " still present, wait already spent")
	}
	logger.Warn("human verification present, waiting up to %s for it to clear", r.opts.VerificationTimeout)
	return r.waitUntilGone(ctx, Verification, detectVerification)
}

// Geolocation prompt.

func geolocationControl(snap *dom.Snapshot) *dom.Element {
	return firstText(snap, clickable, allowLocation)
}

func detectGeolocation(snap *dom.Snapshot) bool {
	return geolocationControl(snap) != nil
}

func resolveGeolocation(ctx context.Context, r *Resolver, snap *dom.Snapshot) error {
	return r.click(ctx, geolocationControl(snap), r.opts.Settle)
}

// Not-found route.

func detectNotFound(snap *dom.Snapshot) bool {
	return notFoundCopy.MatchString(snap.BodyText())
}

func resolveNotFound(ctx context.Context, r *Resolver, snap *dom.Snapshot) error {
	if home := firstText(snap, clickable, goHomeText); home != nil {
		return r.click(ctx, home, r.opts.Settle)
	}
	return r.page.Navigate(ctx, WithFragment(r.opts.PicksURL, snap.URL()))
}
