// Package query is the DocumentQuery adapter: it wraps goquery (itself a
// thin jQuery-style layer over golang.org/x/net/html) behind the minimal
// surface the selector engine needs, so nothing above this package
// imports goquery directly.
package query

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Node wraps a matched element, or the document root. A zero-value Node
// (or one built from empty/whitespace-only input) is "empty": Find always
// returns no matches and Exists reports false, matching the spec's rule
// that empty, whitespace-only, or unparseable HTML produce empty results.
type Node struct {
	sel *goquery.Selection
}

// Parse builds the root Node for an HTML document. The x/net/html parser
// goquery is built on never fails on malformed markup (HTML5 parsing is
// deliberately permissive — unlike the lxml-based original, which could
// raise on certain malformed fragments); the only practical "unparseable"
// case in Go is blank input, handled explicitly below.
func Parse(html []byte) Node {
	if len(strings.TrimSpace(string(html))) == 0 {
		return Node{}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return Node{}
	}
	return Node{sel: doc.Selection}
}

// Exists reports whether this Node refers to at least one real element.
func (n Node) Exists() bool {
	return n.sel != nil && n.sel.Length() > 0
}

// Find evaluates a CSS query against this node's subtree, returning one
// Node per match in document order. An empty cssQuery means "the node
// itself is the item" and returns a single-element slice wrapping n.
func (n Node) Find(cssQuery string) []Node {
	if !n.Exists() {
		return nil
	}
	if strings.TrimSpace(cssQuery) == "" {
		return []Node{n}
	}
	matches := n.sel.Find(cssQuery)
	nodes := make([]Node, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, Node{sel: s})
	})
	return nodes
}

// Not removes, from a slice of matched nodes, any node also matched by
// excludeCSS under the same root. Used by selectors' optional `exclude`.
// Keyed on the underlying *html.Node rather than the *goquery.Selection
// wrapper: Selection.Each hands the callback a freshly allocated wrapper
// per call, so two Selections over the identical element are never
// pointer-equal even though they share one underlying node.
func (n Node) Not(nodes []Node, excludeCSS string) []Node {
	if strings.TrimSpace(excludeCSS) == "" || len(nodes) == 0 {
		return nodes
	}
	excluded := map[*html.Node]bool{}
	n.sel.Find(excludeCSS).Each(func(_ int, s *goquery.Selection) {
		excluded[s.Nodes[0]] = true
	})
	out := make([]Node, 0, len(nodes))
	for _, node := range nodes {
		if !excluded[node.sel.Nodes[0]] {
			out = append(out, node)
		}
	}
	return out
}

// Text returns the concatenated text content of the node's subtree.
func (n Node) Text() string {
	if !n.Exists() {
		return ""
	}
	return n.sel.Text()
}

// Html returns the inner HTML of the node.
func (n Node) Html() string {
	if !n.Exists() {
		return ""
	}
	h, _ := n.sel.Html()
	return h
}

// Attr reads an attribute, mirroring the (value, ok) idiom.
func (n Node) Attr(name string) (string, bool) {
	if !n.Exists() {
		return "", false
	}
	return n.sel.Attr(name)
}

// Clone deep-copies the node's subtree so mutation (RemoveMatching,
// MarkLineBreaks) doesn't affect the live document.
func (n Node) Clone() Node {
	if !n.Exists() {
		return n
	}
	return Node{sel: n.sel.Clone()}
}

// RemoveMatching deletes every descendant matching cssQuery in place,
// returning the same node for chaining.
func (n Node) RemoveMatching(cssQuery string) Node {
	if n.Exists() {
		n.sel.Find(cssQuery).Remove()
	}
	return n
}

// MarkLineBreaks inserts a literal marker text node immediately after
// every <br> descendant, so that a later Text() call can collapse runs of
// the marker into newlines. Returns the same node for chaining.
func (n Node) MarkLineBreaks(marker string) Node {
	if n.Exists() {
		n.sel.Find("br").AfterHtml(marker)
	}
	return n
}
