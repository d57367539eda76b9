package htmldoc

import (
	"github.com/hazyhaar/vedit/idgen"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// IdentityAttr is the reserved attribute carrying an element's identity.
const IdentityAttr = "data-element-id"

// Tagger assigns element identities of the form "<tag>-<n>-<suffix>".
// One Tagger belongs to one editing session; its counter never repeats.
type Tagger struct {
	next idgen.Generator
}

// NewTagger returns a Tagger drawing random suffixes of four base-36 chars.
func NewTagger() *Tagger {
	return &Tagger{next: idgen.Sequenced(idgen.NanoID(4))}
}

// NewTaggerWith returns a Tagger using gen for the part after "<tag>-".
func NewTaggerWith(gen idgen.Generator) *Tagger {
	return &Tagger{next: gen}
}

// Next returns a fresh identity for an element named tag.
func (t *Tagger) Next(tag string) string {
	return tag + "-" + t.next()
}

// fresh draws identities until one is not in taken, then claims it.
func (t *Tagger) fresh(tag string, taken map[string]struct{}) string {
	for {
		id := t.Next(tag)
		if _, dup := taken[id]; !dup {
			taken[id] = struct{}{}
			return id
		}
	}
}

// EnsureIdentities tags every element of interest lacking an identity:
// element descendants of <body>, restricted to tags when given. Duplicate
// identities are kept on their first occurrence and replaced afterwards.
//
// When nothing was assigned, doc is returned unchanged byte for byte and
// assigned is 0. Otherwise the result is a new document which the caller
// must commit.
func (t *Tagger) EnsureIdentities(doc string, tags ...string) (string, int, error) {
	root, err := Parse(doc)
	if err != nil {
		return doc, 0, err
	}
	assigned := t.tagTree(root, tags)
	if assigned == 0 {
		return doc, 0, nil
	}
	out, err := Render(root)
	if err != nil {
		return doc, 0, err
	}
	return out, assigned, nil
}

func (t *Tagger) tagTree(root *html.Node, tags []string) int {
	body := Body(root)
	if body == nil {
		return 0
	}
	filter := tagSet(tags)

	taken := make(map[string]struct{})
	walkElements(root, func(n *html.Node) bool {
		if id := getAttr(n, IdentityAttr); id != "" {
			taken[id] = struct{}{}
		}
		return true
	})

	claimed := make(map[string]struct{})
	assigned := 0
	walkElements(body, func(n *html.Node) bool {
		if n == body {
			return true
		}
		if skipSubtree(n) {
			return false
		}
		if filter != nil {
			if _, ok := filter[n.Data]; !ok {
				return true
			}
		}
		id := getAttr(n, IdentityAttr)
		if id != "" {
			if _, dup := claimed[id]; !dup {
				claimed[id] = struct{}{}
				return true
			}
		}
		id = t.fresh(n.Data, taken)
		claimed[id] = struct{}{}
		setAttr(n, IdentityAttr, id)
		assigned++
		return true
	})
	return assigned
}

// skipSubtree excludes elements that never render as editable content.
func skipSubtree(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Template, atom.Noscript:
		return true
	}
	return false
}

func tagSet(tags []string) map[string]struct{} {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		m[t] = struct{}{}
	}
	return m
}

// walkElements visits element nodes depth-first in document order. Returning
// false from fn skips the node's children.
func walkElements(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode {
		if !fn(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, fn)
	}
}

// findByIdentity returns the first element carrying id.
func findByIdentity(root *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	return findFirst(root, func(n *html.Node) bool { return getAttr(n, IdentityAttr) == id })
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) bool {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}
