package navigator

import (
	"github.com/cgedge/slipfill/pkg/dom"
	"github.com/cgedge/slipfill/pkg/gate"
	"github.com/cgedge/slipfill/pkg/locator"
)

// State is where the page stands on the way to the picks board.
type State int

// Navigation states
const (
	Unknown State = iota
	MarketingHome
	OffAppRoute
	ConsentPending
	TutorialOpen
	HumanVerificationPending
	GeolocationPrompt
	NotFound
	LoginRequired
	PicksShellReady
	SportSelected
)

var stateNames = map[State]string{
	Unknown:                  "unknown",
	MarketingHome:            "marketing-home",
	OffAppRoute:              "off-app-route",
	ConsentPending:           "consent-pending",
	TutorialOpen:             "tutorial-open",
	HumanVerificationPending: "human-verification-pending",
	GeolocationPrompt:        "geolocation-prompt",
	NotFound:                 "not-found",
	LoginRequired:            "login-required",
	PicksShellReady:          "picks-shell-ready",
	SportSelected:            "sport-selected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return stateNames[Unknown]
}

// MarshalText renders the state by name in reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name. Unrecognized names read as Unknown.
func (s *State) UnmarshalText(text []byte) error {
	*s = Unknown
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			break
		}
	}
	return nil
}

var gateStates = map[string]State{
	gate.OffApp:       OffAppRoute,
	gate.Marketing:    MarketingHome,
	gate.Consent:      ConsentPending,
	gate.Tutorial:     TutorialOpen,
	gate.Verification: HumanVerificationPending,
	gate.Geolocation:  GeolocationPrompt,
	gate.NotFound:     NotFound,
}

const loginForm = `input[type="password"], form[action*="login" i]`

// CurrentState derives the state from snap. Gates win in their priority
// order, then a login form, then the board itself.
func CurrentState(snap *dom.Snapshot, sport string, aliases ...string) State {
	for _, g := range gate.Catalog() {
		if g.Detect(snap) {
			return gateStates[g.Name]
		}
	}
	if snap.Has(loginForm) {
		return LoginRequired
	}
	if m := locator.Sport(snap, sport, aliases...); m.Found() && locator.Active(m.Element) {
		return SportSelected
	}
	if snap.Has(locator.ShellReady) {
		return PicksShellReady
	}
	return Unknown
}
