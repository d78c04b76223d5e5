package locator

// Target app DOM selectors.
// These are isolated here because the app ships without stable ids and its
// class names and test ids change between releases. Update these when
// lookups start missing.

const (
	// App shell readiness: any of these means the picks board rendered
	ShellReady = `[role="tablist"], [data-testid*="chip" i], [data-testid*="players" i]`

	// Sport selection
	SportChip      = `[data-testid*="chip" i]`
	SportTextScan  = `button, a, [role="tab"], [role="button"]`
	TabList        = `[role="tablist"]`
	TabListMembers = `[role="tab"], [data-testid]`

	// Picks board
	PropTabs    = `button, [role="tab"], [data-testid*="tab"], [class*="Tab"]`
	PlayerCards = `[data-testid*="player-card"], .PlayerCard, [class*="PlayerCard"]`
	CardButton  = `button, [role="button"]`
	AnyButton   = `button`

	// Home screen calls to action that lead into the board
	PickNowCTA = `a, button, [role="button"]`

	// Session indicators
	LoggedInMarker = `[aria-label*="account" i], [data-testid*="avatar" i], [class*="Avatar" i]`
	LoginControl   = `a, button`
)

// sportAttributeSelectors lists the attribute probes for one sport term, in
// the order they are tried.
func sportAttributeSelectors(term string) []string {
	return []string{
		`[data-testid*="` + term + `" i]`,
		`[aria-label*="` + term + `" i]`,
		`[data-sport*="` + term + `" i]`,
		`[href*="` + term + `" i]`,
	}
}

// sideAttributeSelector matches controls whose test id or label carries the side.
func sideAttributeSelector(side string) string {
	return `[data-testid*="` + side + `" i], [aria-label*="` + side + `" i]`
}
