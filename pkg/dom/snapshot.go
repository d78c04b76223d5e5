// Package dom parses a serialized page into an immutable snapshot that the
// locator and gate matchers can query without a live browser.
//
// Every element in a snapshot knows its absolute XPath. Page adapters use that
// XPath to act on the live element immediately after a lookup; a snapshot is
// never reused across actions because the target application re-renders
// underneath us.
package dom

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Snapshot is a parsed copy of the page at one point in time.
type Snapshot struct {
	url  string
	doc  *goquery.Document
	root *html.Node
}

// Parse builds a snapshot from serialized HTML. pageURL is informational and
// is reported back by URL.
func Parse(pageURL string, src []byte) (*Snapshot, error) {
	root, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Snapshot{
		url:  pageURL,
		doc:  goquery.NewDocumentFromNode(root),
		root: root,
	}, nil
}

// MustParse is Parse for fixtures; it panics on error.
func MustParse(pageURL, src string) *Snapshot {
	s, err := Parse(pageURL, []byte(src))
	if err != nil {
		panic(err)
	}
	return s
}

// URL returns the address the snapshot was taken at.
func (s *Snapshot) URL() string {
	return s.url
}

// BodyText returns the text content of <body>.
func (s *Snapshot) BodyText() string {
	return s.doc.Find("body").Text()
}

// HTML re-serializes the snapshot.
func (s *Snapshot) HTML() string {
	var buf bytes.Buffer
	if err := html.Render(&buf, s.root); err != nil {
		return ""
	}
	return buf.String()
}

// Find returns every element matching the CSS selector, in document order.
// An invalid selector matches nothing.
func (s *Snapshot) Find(selector string) []*Element {
	return wrap(findSafe(s.doc.Selection, selector))
}

// First returns the first element matching the CSS selector, or nil.
func (s *Snapshot) First(selector string) *Element {
	els := s.Find(selector)
	if len(els) == 0 {
		return nil
	}
	return els[0]
}

// Has reports whether any element matches the CSS selector.
func (s *Snapshot) Has(selector string) bool {
	return len(s.Find(selector)) > 0
}

// ByXPath resolves an absolute XPath produced by Element.XPath back to an
// element of this snapshot.
func (s *Snapshot) ByXPath(xpath string) *Element {
	var found *Element
	s.doc.Find("*").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		n := sel.Get(0)
		if xpathOf(n) == xpath {
			found = &Element{node: n, sel: sel}
			return false
		}
		return true
	})
	return found
}

// findSafe guards against cascadia panics on selectors it cannot compile.
func findSafe(sel *goquery.Selection, selector string) (out *goquery.Selection) {
	defer func() {
		if recover() != nil {
			out = sel.Slice(0, 0)
		}
	}()
	return sel.Find(selector)
}

func wrap(sel *goquery.Selection) []*Element {
	if sel.Length() == 0 {
		return nil
	}
	out := make([]*Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{node: s.Get(0), sel: s})
	})
	return out
}

// Element is a node of a Snapshot.
type Element struct {
	node *html.Node
	sel  *goquery.Selection
}

// Tag returns the lowercase tag name.
func (e *Element) Tag() string {
	return strings.ToLower(e.node.Data)
}

// Attr returns the attribute value, or "" when absent.
func (e *Element) Attr(name string) string {
	v, _ := e.sel.Attr(name)
	return v
}

// Attrs returns a copy of all attributes.
func (e *Element) Attrs() map[string]string {
	out := make(map[string]string, len(e.node.Attr))
	for _, a := range e.node.Attr {
		out[a.Key] = a.Val
	}
	return out
}

// Text returns the element's text content, like DOM textContent.
func (e *Element) Text() string {
	return e.sel.Text()
}

// Find returns descendants matching the CSS selector, in document order.
func (e *Element) Find(selector string) []*Element {
	return wrap(findSafe(e.sel, selector))
}

// First returns the first descendant matching the CSS selector, or nil.
func (e *Element) First(selector string) *Element {
	els := e.Find(selector)
	if len(els) == 0 {
		return nil
	}
	return els[0]
}

// XPath returns the absolute, fully indexed XPath of the element,
// e.g. /html[1]/body[1]/div[2]/button[1].
func (e *Element) XPath() string {
	return xpathOf(e.node)
}

func xpathOf(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		parts = append(parts, step(cur))
	}
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// step renders one location step. Foreign elements (svg, math) are not in the
// HTML namespace, so a plain name test would not match them in the browser.
func step(n *html.Node) string {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data && sib.Namespace == n.Namespace {
			idx++
		}
	}
	if n.Namespace != "" {
		return fmt.Sprintf("*[local-name()='%s'][%d]", n.Data, idx)
	}
	return fmt.Sprintf("%s[%d]", n.Data, idx)
}
