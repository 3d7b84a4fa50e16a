// File: internal/classifier/classifier.go
//
// Package classifier inspects a page snapshot for interactive security
// challenges. Classification is a pure function of the snapshot: signature
// groups are evaluated in a fixed priority order (CAPTCHA before 2FA before
// account warnings) and the first group with a match wins. The classifier
// never attempts to solve or bypass anything; it only names what it sees.
package classifier

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Kind tags the challenge variant found on a page.
type Kind string

const (
	KindNone           Kind = "none"
	KindCaptcha        Kind = "captcha"
	KindTwoFactor      Kind = "two_factor"
	KindAccountWarning Kind = "account_warning"
	KindUnknown        Kind = "unknown"
)

// Result is the outcome of one classification. Signal carries the matched
// signature (or, for KindUnknown, the raw URL that triggered suspicion) so
// operators can extend the signature set from evidence alone.
type Result struct {
	Kind   Kind
	Signal string
}

// Blocking reports whether the result halts forward progress.
func (r Result) Blocking() bool {
	return r.Kind != KindNone
}

// Snapshot is the page state a classification runs against. Page content
// changes between steps, so results are never cached: take a fresh snapshot
// and classify again.
type Snapshot struct {
	URL  string
	HTML string
}

// StructuralMarker matches an element by tag and attribute content. All
// Contains substrings must appear (case insensitive) in the attribute value.
// An empty Tag matches any element.
type StructuralMarker struct {
	Tag      string
	Attr     string
	Contains []string
}

// SignatureGroup bundles the structural and textual signatures for one
// challenge kind.
type SignatureGroup struct {
	Kind       Kind
	Structural []StructuralMarker
	Text       []*regexp.Regexp
}

// Classifier holds the ordered signature groups. Safe for concurrent use;
// it has no mutable state.
type Classifier struct {
	groups    []SignatureGroup
	urlMarker string
}

// New returns a Classifier with the built-in signature set. urlMarker flags
// challenge-flow URLs that match no known group (classified KindUnknown).
func New(urlMarker string) *Classifier {
	return NewWithSignatures(defaultGroups(), urlMarker)
}

// NewWithSignatures returns a Classifier with a custom signature set,
// evaluated in the given order.
func NewWithSignatures(groups []SignatureGroup, urlMarker string) *Classifier {
	return &Classifier{groups: groups, urlMarker: urlMarker}
}

// Classify inspects the snapshot and returns the highest-priority matching
// challenge. It is side-effect free and safe to call repeatedly against an
// evolving page.
func (c *Classifier) Classify(snap Snapshot) Result {
	doc, err := html.Parse(strings.NewReader(snap.HTML))
	if err != nil {
		// Unparseable content cannot be trusted as challenge-free.
		return Result{Kind: KindUnknown, Signal: "unparseable page content"}
	}

	text := strings.ToLower(collectText(doc))

	for _, g := range c.groups {
		if sig, ok := matchStructural(doc, g.Structural); ok {
			return Result{Kind: g.Kind, Signal: sig}
		}
		for _, re := range g.Text {
			if loc := re.FindString(text); loc != "" {
				return Result{Kind: g.Kind, Signal: strings.TrimSpace(loc)}
			}
		}
	}

	if c.urlMarker != "" && strings.Contains(snap.URL, c.urlMarker) {
		return Result{Kind: KindUnknown, Signal: snap.URL}
	}
	return Result{Kind: KindNone}
}

// HasLoginForm reports whether the snapshot still shows a password entry
// form. The state machine uses this to distinguish a rejected credential
// (form re-shown) from an indeterminate page.
func HasLoginForm(snap Snapshot) bool {
	doc, err := html.Parse(strings.NewReader(snap.HTML))
	if err != nil {
		return false
	}
	found := false
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" && attrValue(n, "type") == "password" {
			found = true
		}
	})
	return found
}

// matchStructural walks the document once per marker list and returns a
// human-readable description of the first hit.
func matchStructural(doc *html.Node, markers []StructuralMarker) (string, bool) {
	for _, m := range markers {
		var hit string
		walk(doc, func(n *html.Node) {
			if hit != "" || n.Type != html.ElementNode {
				return
			}
			if m.Tag != "" && n.Data != m.Tag {
				return
			}
			val := strings.ToLower(attrValue(n, m.Attr))
			if val == "" {
				return
			}
			for _, sub := range m.Contains {
				if !strings.Contains(val, sub) {
					return
				}
			}
			hit = n.Data + "[" + m.Attr + "*=" + strings.Join(m.Contains, ",") + "]"
		})
		if hit != "" {
			return hit, true
		}
	}
	return "", false
}

// walk visits every node in the document tree.
func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// attrValue returns the value of the named attribute, or "".
func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// collectText concatenates the visible text of the document, skipping
// script and style bodies.
func collectText(doc *html.Node) string {
	var b strings.Builder
	var rec func(n *html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(doc)
	return b.String()
}
