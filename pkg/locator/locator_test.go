package locator

import (
	"testing"

	"github.com/cgedge/slipfill/pkg/dom"
)

const boardFixture = `<html><body>
<div role="tablist">
  <button role="tab" data-testid="league-chip-nfl">NFL</button>
  <button role="tab" data-testid="league-chip-nba">NBA</button>
</div>
<nav>
  <button class="StatTab">Points</button>
  <button class="StatTab">Rebounds</button>
  <button class="StatTab">Pts+Rebs+Asts</button>
</nav>
<ul>
  <li data-testid="player-card-1">
    <span class="name">LeBron-James Jr.</span>
    <button data-testid="pick-more">More</button>
    <button data-testid="pick-less">Less</button>
  </li>
  <li data-testid="player-card-2">
    <span class="name">Nikola Jokic</span>
    <button data-testid="over-button">Over</button>
    <button data-testid="under-button">Under</button>
  </li>
</ul>
</body></html>`

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"LeBron James", "lebron james"},
		{"LeBron-James Jr.", "lebron james jr"},
		{"  Shai   Gilgeous-Alexander ", "shai gilgeous alexander"},
		{"Pts+Rebs+Asts", "pts rebs asts"},
		{"...", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContainsNormalized(t *testing.T) {
	tests := []struct {
		haystack, needle string
		want             bool
	}{
		{"LeBron-James Jr. LAL - SF", "LeBron James", true},
		{"lebron james", "LEBRON JAMES", true},
		{"Nikola Jokic", "Jokic", true},
		{"Nikola Jokic", "Jamal Murray", false},
		{"anything", "", false},
		{"anything", "!!", false},
	}
	for _, tt := range tests {
		if got := ContainsNormalized(tt.haystack, tt.needle); got != tt.want {
			t.Errorf("ContainsNormalized(%q, %q) = %v, want %v", tt.haystack, tt.needle, got, tt.want)
		}
	}
}

func TestQueryString(t *testing.T) {
	tests := []struct {
		q    Query
		want string
	}{
		{Query{KindSport, "NBA"}, "sport:NBA"},
		{Query{KindPropTab, "Points"}, "propTab:Points"},
		{Query{KindPlayerCard, "Nikola Jokic"}, "playerCard:Nikola Jokic"},
		{Query{KindSideButton, "Under"}, "sideButton:Under"},
	}
	for _, tt := range tests {
		if got := tt.q.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestPlayerCard(t *testing.T) {
	snap := dom.MustParse("https://app.example/board", boardFixture)

	m := PlayerCard(snap, "LeBron James")
	if !m.Found() {
		t.Fatal("expected LeBron James card")
	}
	if m.Element.Attr("data-testid") != "player-card-1" {
		t.Errorf("expected player-card-1, got %s", m.Element.Attr("data-testid"))
	}

	if m := PlayerCard(snap, "nikola JOKIC"); !m.Found() || m.Element.Attr("data-testid") != "player-card-2" {
		t.Errorf("expected case-insensitive match on player-card-2, got %+v", m)
	}
	if m := PlayerCard(snap, "Jamal Murray"); m.Found() {
		t.Errorf("expected no card, got %s", m.Element.XPath())
	}
}

func TestPlayerCard_ClassVariants(t *testing.T) {
	snap := dom.MustParse("", `<html><body>
<div class="PlayerCard"><p>Anthony Edwards</p></div>
<div class="sc-1x PlayerCardWrapper"><p>Jalen Brunson</p></div>
</body></html>`)

	for _, name := range []string{"Anthony Edwards", "Jalen Brunson"} {
		if m := PlayerCard(snap, name); !m.Found() {
			t.Errorf("expected card for %s", name)
		}
	}
}

func TestPropTab(t *testing.T) {
	snap := dom.MustParse("", boardFixture)

	m := PropTab(snap, "Rebounds")
	if !m.Found() || m.Element.Text() != "Rebounds" {
		t.Fatalf("expected Rebounds tab, got %+v", m)
	}
	if m := PropTab(snap, "pts rebs asts"); !m.Found() || m.Element.Text() != "Pts+Rebs+Asts" {
		t.Errorf("expected punctuation-insensitive match, got %+v", m)
	}
	if m := PropTab(snap, "Blocked Shots"); m.Found() {
		t.Errorf("expected no tab, got %q", m.Element.Text())
	}
}

func TestSport(t *testing.T) {
	tests := []struct {
		name        string
		html        string
		wantText    string
		wantMatcher string
	}{
		{
			name:        "test id chip",
			html:        boardFixture,
			wantText:    "NBA",
			wantMatcher: "attribute",
		},
		{
			name:        "aria label alias",
			html:        `<html><body><a aria-label="Basketball" href="/board?s=7">🏀</a></body></html>`,
			wantText:    "🏀",
			wantMatcher: "attribute",
		},
		{
			name:        "test id without word boundary is not confirmed",
			html:        `<html><body><button data-testid="nbaextra">x</button><button>NBA</button></body></html>`,
			wantText:    "NBA",
			wantMatcher: "text",
		},
		{
			name:        "text only",
			html:        `<html><body><div role="button">NFL</div><div role="button">NBA</div></body></html>`,
			wantText:    "NBA",
			wantMatcher: "text",
		},
		{
			name:        "test id inside a tablist",
			html:        `<html><body><div role="tablist"><span data-testid="league-NBA"><img alt=""></span></div></body></html>`,
			wantText:    "",
			wantMatcher: "attribute",
		},
		{
			name:        "tab role by text",
			html:        `<html><body><div role="tablist"><div role="tab">NFL</div><div role="tab">NBA</div></div></body></html>`,
			wantText:    "NBA",
			wantMatcher: "text",
		},
		{
			name:        "tablist only structure",
			html:        `<html><body><div role="tablist"><span data-testid="s1">NFL</span><span data-testid="s2">NBA</span></div></body></html>`,
			wantText:    "NBA",
			wantMatcher: "tablist",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := dom.MustParse("", tt.html)
			m := Sport(snap, "NBA", "Basketball")
			if !m.Found() {
				t.Fatal("expected sport control")
			}
			if m.Element.Text() != tt.wantText {
				t.Errorf("expected text %q, got %q", tt.wantText, m.Element.Text())
			}
			if m.Matcher != tt.wantMatcher {
				t.Errorf("expected matcher %s, got %s", tt.wantMatcher, m.Matcher)
			}
		})
	}
}

func TestSport_NotPresent(t *testing.T) {
	snap := dom.MustParse("", `<html><body><button>NFL</button><div role="tablist"><div role="tab">MLB</div></div></body></html>`)
	if m := Sport(snap, "NBA", "Basketball"); m.Found() {
		t.Errorf("expected no sport control, got %q", m.Element.Text())
	}
}

func TestSideButton(t *testing.T) {
	tests := []struct {
		name        string
		card        string
		side        string
		wantText    string
		wantMatcher string
	}{
		{
			name:        "attribute and text agree",
			card:        `<button data-testid="over-button">Over</button><button data-testid="under-button">Under</button>`,
			side:        "Under",
			wantText:    "Under",
			wantMatcher: SideByAttribute,
		},
		{
			name:        "aria label",
			card:        `<button aria-label="Pick Under 24.5">Less</button><button>More</button>`,
			side:        "Under",
			wantText:    "Less",
			wantMatcher: SideByAttribute,
		},
		{
			name:        "attribute text disagrees so text scan wins",
			card:        `<button data-testid="overlay-close">x</button><div role="button">Over</div>`,
			side:        "Over",
			wantText:    "Over",
			wantMatcher: SideByText,
		},
		{
			name:        "first button names the side",
			card:        `<button>Over 24.5</button><button>Under 24.5</button>`,
			side:        "Over",
			wantText:    "Over 24.5",
			wantMatcher: SideFirstButton,
		},
		{
			name:        "text scan over plain buttons",
			card:        `<button>Stats</button><button>Under 24.5</button>`,
			side:        "Under",
			wantText:    "Under 24.5",
			wantMatcher: SideByText,
		},
		{
			name:        "word boundary rejects overtime",
			card:        `<button>Overtime</button><button>More</button>`,
			side:        "Over",
			wantText:    "Overtime",
			wantMatcher: SideFirstButton,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := dom.MustParse("", `<html><body><div data-testid="player-card-1">`+tt.card+`</div></body></html>`)
			card := snap.First(PlayerCards)
			m := SideButton(card, tt.side)
			if !m.Found() {
				t.Fatal("expected a side control")
			}
			if m.Element.Text() != tt.wantText {
				t.Errorf("expected %q, got %q", tt.wantText, m.Element.Text())
			}
			if m.Matcher != tt.wantMatcher {
				t.Errorf("expected matcher %s, got %s", tt.wantMatcher, m.Matcher)
			}
		})
	}
}

func TestSideButton_FallsBackToCard(t *testing.T) {
	snap := dom.MustParse("", `<html><body><div data-testid="player-card-1"><span>Nikola Jokic</span></div></body></html>`)
	card := snap.First(PlayerCards)

	m := SideButton(card, "Over")
	if m.Element == nil || m.Element.XPath() != card.XPath() {
		t.Errorf("expected the card itself, got %s", m.Element.XPath())
	}
	if m.Matcher != SideCard {
		t.Errorf("expected matcher %s, got %s", SideCard, m.Matcher)
	}
}

func TestSideButton_NilCard(t *testing.T) {
	if m := SideButton(nil, "Over"); m.Found() {
		t.Error("expected no match without a card")
	}
}

func TestLocate(t *testing.T) {
	snap := dom.MustParse("", boardFixture)

	tests := []struct {
		query Query
		found bool
	}{
		{Query{KindSport, "NBA"}, true},
		{Query{KindPropTab, "Points"}, true},
		{Query{KindPlayerCard, "Nikola Jokic"}, true},
		{Query{KindPlayerCard, "Nobody Here"}, false},
		{Query{KindSideButton, "Over"}, false},
	}
	for _, tt := range tests {
		if got := Locate(snap, tt.query, "Basketball").Found(); got != tt.found {
			t.Errorf("Locate(%s) found = %v, want %v", tt.query, got, tt.found)
		}
	}
}

func TestActive(t *testing.T) {
	tests := []struct {
		html string
		want bool
	}{
		{`<button aria-selected="true">NBA</button>`, true},
		{`<button aria-selected="false">NBA</button>`, false},
		{`<button aria-pressed="true">NBA</button>`, true},
		{`<a aria-current="page">NBA</a>`, true},
		{`<a aria-current="false">NBA</a>`, false},
		{`<button class="chip selected">NBA</button>`, true},
		{`<button class="Tab_active__3x">NBA</button>`, true},
		{`<button class="inactive">NBA</button>`, false},
		{`<button>NBA</button>`, false},
	}
	for _, tt := range tests {
		snap := dom.MustParse("", `<html><body>`+tt.html+`</body></html>`)
		if got := Active(snap.First("button, a")); got != tt.want {
			t.Errorf("Active(%s) = %v, want %v", tt.html, got, tt.want)
		}
	}
	if Active(nil) {
		t.Error("nil element must not be active")
	}
}
