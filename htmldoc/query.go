package htmldoc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Attr is one attribute of a Handle, in document order.
type Attr struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// Handle is a read-only snapshot of one element. It holds no reference to a
// parsed tree; resolving it again means querying by Identity.
type Handle struct {
	Identity       string `json:"identity,omitempty"`
	Tag            string `json:"tag"`
	Text           string `json:"text"`
	Attrs          []Attr `json:"attrs,omitempty"`
	Style          Style  `json:"style,omitempty"`
	ParentIdentity string `json:"parent_identity,omitempty"`
	XPath          string `json:"xpath"`
}

// Attr returns the value of the attribute key.
func (h Handle) Attr(key string) (string, bool) {
	for _, a := range h.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func newHandle(n *html.Node) Handle {
	h := Handle{
		Identity: getAttr(n, IdentityAttr),
		Tag:      n.Data,
		Text:     textContent(n),
		XPath:    XPath(n),
	}
	for _, a := range n.Attr {
		if a.Namespace != "" {
			continue
		}
		h.Attrs = append(h.Attrs, Attr{Key: a.Key, Val: a.Val})
		if a.Key == "style" {
			// An unparseable style attribute still shows in Attrs.
			h.Style, _ = ParseStyle(a.Val)
		}
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			h.ParentIdentity = getAttr(p, IdentityAttr)
			break
		}
	}
	return h
}

// QueryByTag returns every element named tag, in document order.
func QueryByTag(doc, tag string) []Handle {
	root, err := Parse(doc)
	if err != nil {
		return nil
	}
	tag = strings.ToLower(tag)
	var out []Handle
	walkElements(root, func(n *html.Node) bool {
		if n.Data == tag {
			out = append(out, newHandle(n))
		}
		return true
	})
	return out
}

// QueryByIdentity resolves an identity to its element.
func QueryByIdentity(doc, id string) (Handle, bool) {
	root, err := Parse(doc)
	if err != nil {
		return Handle{}, false
	}
	n := findByIdentity(root, id)
	if n == nil {
		return Handle{}, false
	}
	return newHandle(n), true
}

// QuerySelector returns the elements matching a CSS selector group. Only a
// malformed selector is an error.
func QuerySelector(doc, selector string) ([]Handle, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: selector %q: %w", selector, err)
	}
	root, err := Parse(doc)
	if err != nil {
		return nil, nil
	}
	var out []Handle
	for _, n := range cascadia.QueryAll(root, sel) {
		out = append(out, newHandle(n))
	}
	return out, nil
}

// QueryXPath resolves an absolute positional path such as
// "/html/body/div[1]/p[2]", the form produced by XPath.
func QueryXPath(doc, path string) (Handle, bool) {
	root, err := Parse(doc)
	if err != nil {
		return Handle{}, false
	}
	if !strings.HasPrefix(path, "/") {
		return Handle{}, false
	}
	cur := root
	for _, step := range strings.Split(path[1:], "/") {
		tag, idx := parseStep(step)
		if tag == "" || idx < 1 {
			return Handle{}, false
		}
		var next *html.Node
		seen := 0
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				seen++
				if seen == idx {
					next = c
					break
				}
			}
		}
		if next == nil {
			return Handle{}, false
		}
		cur = next
	}
	if cur == root {
		return Handle{}, false
	}
	return newHandle(cur), true
}

// parseStep splits "p[2]" into ("p", 2); a bare "p" means index 1.
func parseStep(step string) (string, int) {
	tag, rest, ok := strings.Cut(step, "[")
	if !ok {
		return tag, 1
	}
	n, err := strconv.Atoi(strings.TrimSuffix(rest, "]"))
	if err != nil {
		return "", 0
	}
	return tag, n
}

// XPath returns the positional path of n from the document root, indexing
// each step among same-named siblings.
func XPath(n *html.Node) string {
	var steps []string
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		switch n.Data {
		case "html":
			steps = append(steps, "html")
			continue
		case "body", "head":
			steps = append(steps, n.Data)
			continue
		}
		idx := 1
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode && s.Data == n.Data {
				idx++
			}
		}
		steps = append(steps, n.Data+"["+strconv.Itoa(idx)+"]")
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return "/" + strings.Join(steps, "/")
}

// Inventory groups the elements of interest of doc by tag name. With no
// tags, every element under <body> is listed.
func Inventory(doc string, tags ...string) map[string][]Handle {
	out := make(map[string][]Handle)
	root, err := Parse(doc)
	if err != nil {
		return out
	}
	body := Body(root)
	if body == nil {
		return out
	}
	filter := tagSet(tags)
	for t := range filter {
		out[t] = nil
	}
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
		out[n.Data] = append(out[n.Data], newHandle(n))
		return true
	})
	return out
}

// Identities lists every identity present in doc, in document order.
func Identities(doc string) []string {
	root, err := Parse(doc)
	if err != nil {
		return nil
	}
	var out []string
	walkElements(root, func(n *html.Node) bool {
		if id := getAttr(n, IdentityAttr); id != "" {
			out = append(out, id)
		}
		return true
	})
	return out
}
