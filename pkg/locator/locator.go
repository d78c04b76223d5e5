// Package locator finds the app's dynamic controls in a DOM snapshot.
//
// Each lookup runs a ranked chain of matchers (attribute, then structural,
// then text) and the first match wins. Matchers are pure functions over a
// snapshot; a miss is a normal outcome, never an error.
package locator

import (
	"regexp"
	"strings"

	"github.com/cgedge/slipfill/pkg/dom"
)

// Kind identifies what a query is looking for.
type Kind string

// Query kinds
const (
	KindSport      Kind = "sport"
	KindPropTab    Kind = "propTab"
	KindPlayerCard Kind = "playerCard"
	KindSideButton Kind = "sideButton"
)

// Query describes a lookup, e.g. "playerCard:Nikola Jokic".
type Query struct {
	Kind   Kind
	Target string
}

// String returns the query in kind:target form.
func (q Query) String() string {
	return string(q.Kind) + ":" + q.Target
}

// Scope is anything matchers can search: a whole snapshot or one element.
type Scope interface {
	Find(selector string) []*dom.Element
}

// Match is the outcome of a lookup. Element is nil on a miss.
type Match struct {
	Element *dom.Element
	Matcher string // name of the matcher that produced Element
}

// Found reports whether the lookup produced an element.
func (m Match) Found() bool {
	return m.Element != nil
}

// Matcher is one strategy in a chain.
type Matcher struct {
	Name string
	Find func(Scope) *dom.Element
}

// Chain is an ordered list of matchers.
type Chain []Matcher

// Locate runs the chain in order and returns the first hit.
func (c Chain) Locate(scope Scope) Match {
	for _, m := range c {
		if el := m.Find(scope); el != nil {
			return Match{Element: el, Matcher: m.Name}
		}
	}
	return Match{}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases s, collapses every run of non-alphanumerics to a
// single space and trims. "LeBron-James Jr." becomes "lebron james jr".
func Normalize(s string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(s), " "))
}

// ContainsNormalized reports whether needle occurs in haystack after both
// are normalized. An empty needle never matches.
func ContainsNormalized(haystack, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Normalize(haystack), n)
}

// wordPattern matches any of the terms as whole words, case-insensitively.
func wordPattern(terms ...string) *regexp.Regexp {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	if len(quoted) == 0 {
		return regexp.MustCompile(`$^`)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// firstByText returns the first candidate whose normalized text contains target.
func firstByText(scope Scope, selector, target string) *dom.Element {
	for _, el := range scope.Find(selector) {
		if ContainsNormalized(el.Text(), target) {
			return el
		}
	}
	return nil
}

// labelOf joins the texts a control is identified by.
func labelOf(el *dom.Element) string {
	return el.Text() + " " + el.Attr("data-testid") + " " + el.Attr("aria-label")
}

// activeClass matches "active" or "selected" as a class or class segment,
// so Chip_active__x counts and inactive does not.
var activeClass = regexp.MustCompile(`(?i)(^|[^a-z])(selected|active)`)

// Active reports whether a control renders as the current choice.
func Active(el *dom.Element) bool {
	if el == nil {
		return false
	}
	if el.Attr("aria-selected") == "true" || el.Attr("aria-pressed") == "true" {
		return true
	}
	if c := el.Attr("aria-current"); c != "" && c != "false" {
		return true
	}
	return activeClass.MatchString(el.Attr("class"))
}

// PlayerCard locates the first card whose text contains the player's name.
func PlayerCard(scope Scope, name string) Match {
	return Chain{{
		Name: "card-text",
		Find: func(s Scope) *dom.Element { return firstByText(s, PlayerCards, name) },
	}}.Locate(scope)
}

// PropTab locates the first tab-like control whose text contains the prop.
func PropTab(scope Scope, prop string) Match {
	return Chain{{
		Name: "tab-text",
		Find: func(s Scope) *dom.Element { return firstByText(s, PropTabs, prop) },
	}}.Locate(scope)
}

// Sport locates the control selecting sport (or one of its aliases).
func Sport(scope Scope, sport string, aliases ...string) Match {
	return SportChain(sport, aliases...).Locate(scope)
}

// SportChain builds the ranked matchers for a sport: attribute probes
// confirmed by a whole-word match, then a text scan over clickable controls,
// then the members of the first tab list.
func SportChain(sport string, aliases ...string) Chain {
	terms := append([]string{sport}, aliases...)
	word := wordPattern(terms...)

	var probes []string
	for _, t := range terms {
		probes = append(probes, sportAttributeSelectors(strings.ToLower(t))...)
	}
	probes = append(probes, SportChip)

	return Chain{
		{
			Name: "attribute",
			Find: func(s Scope) *dom.Element {
				for _, sel := range probes {
					for _, el := range s.Find(sel) {
						if word.MatchString(labelOf(el)) {
							return el
						}
					}
				}
				return nil
			},
		},
		{
			Name: "text",
			Find: func(s Scope) *dom.Element {
				for _, el := range s.Find(SportTextScan) {
					if word.MatchString(el.Text()) {
						return el
					}
				}
				return nil
			},
		},
		{
			Name: "tablist",
			Find: func(s Scope) *dom.Element {
				lists := s.Find(TabList)
				if len(lists) == 0 {
					return nil
				}
				for _, el := range lists[0].Find(TabListMembers) {
					if word.MatchString(labelOf(el)) {
						return el
					}
				}
				return nil
			},
		},
	}
}

// Side matchers, reported in Match.Matcher.
const (
	SideByAttribute = "attribute"
	SideByText      = "text"
	SideFirstButton = "first-button"
	SideCard        = "card"
)

// SideButton picks the control for side inside card.
//
// The attribute candidate is the first control whose test id or label
// carries the side, else the card's first button. When the candidate's text
// does not name the side, the card's buttons are scanned for the side as a
// whole word; failing that the attribute candidate is used anyway, and with
// no candidate at all the card itself is returned.
func SideButton(card *dom.Element, side string) Match {
	if card == nil {
		return Match{}
	}
	word := wordPattern(side)

	candidate, how := card.First(sideAttributeSelector(side)), SideByAttribute
	if candidate == nil {
		candidate, how = card.First(AnyButton), SideFirstButton
	}
	if candidate != nil && word.MatchString(candidate.Text()) {
		return Match{Element: candidate, Matcher: how}
	}

	for _, el := range card.Find(CardButton) {
		if word.MatchString(el.Text()) {
			return Match{Element: el, Matcher: SideByText}
		}
	}
	if candidate != nil {
		return Match{Element: candidate, Matcher: how}
	}
	return Match{Element: card, Matcher: SideCard}
}

// Locate dispatches a query against a snapshot. Side queries need a card and
// are resolved with SideButton instead.
func Locate(scope Scope, q Query, sportAliases ...string) Match {
	switch q.Kind {
	case KindSport:
		return Sport(scope, q.Target, sportAliases...)
	case KindPropTab:
		return PropTab(scope, q.Target)
	case KindPlayerCard:
		return PlayerCard(scope, q.Target)
	default:
		return Match{}
	}
}
