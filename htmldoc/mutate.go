package htmldoc

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// mutate parses doc, resolves id and renders the tree after fn changed it.
// Any error leaves doc untouched for the caller.
func mutate(doc, id string, fn func(n *html.Node) error) (string, error) {
	root, err := Parse(doc)
	if err != nil {
		return "", err
	}
	n := findByIdentity(root, id)
	if n == nil {
		return "", &ElementNotFoundError{Identity: id}
	}
	if err := fn(n); err != nil {
		return "", err
	}
	return Render(root)
}

// IsVoid reports whether tag is an HTML void element, which has no children.
func IsVoid(tag string) bool {
	switch atom.Lookup([]byte(strings.ToLower(tag))) {
	case atom.Area, atom.Base, atom.Br, atom.Col, atom.Embed, atom.Hr, atom.Img,
		atom.Input, atom.Link, atom.Meta, atom.Source, atom.Track, atom.Wbr:
		return true
	}
	return false
}

// SetText replaces the children of the element with a single text node.
func SetText(doc, id, text string) (string, error) {
	return mutate(doc, id, func(n *html.Node) error {
		if IsVoid(n.Data) {
			return &InvalidEditError{Identity: id, Reason: "<" + n.Data + "> cannot hold text"}
		}
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		if text != "" {
			n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		}
		return nil
	})
}

// SetAttribute sets an attribute on the element. The identity attribute is
// reserved.
func SetAttribute(doc, id, key, val string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if err := checkAttrKey(id, key); err != nil {
		return "", err
	}
	return mutate(doc, id, func(n *html.Node) error {
		setAttr(n, key, val)
		return nil
	})
}

// RemoveAttribute removes an attribute from the element. Removing an absent
// attribute is not an error.
func RemoveAttribute(doc, id, key string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if err := checkAttrKey(id, key); err != nil {
		return "", err
	}
	return mutate(doc, id, func(n *html.Node) error {
		removeAttr(n, key)
		return nil
	})
}

func checkAttrKey(id, key string) error {
	if key == "" {
		return &InvalidEditError{Identity: id, Reason: "empty attribute name"}
	}
	if key == IdentityAttr {
		return &InvalidEditError{Identity: id, Reason: IdentityAttr + " is reserved"}
	}
	if strings.ContainsAny(key, " \t\n\f\r\"'>/=") {
		return &InvalidEditError{Identity: id, Reason: "malformed attribute name " + key}
	}
	return nil
}

// SetStyleProperty sets one inline declaration, keeping the others. An empty
// value removes the declaration.
func SetStyleProperty(doc, id, prop, val string) (string, error) {
	if err := CheckDeclaration(prop, val); err != nil {
		return "", &InvalidEditError{Identity: id, Reason: err.Error()}
	}
	if strings.TrimSpace(val) == "" {
		return RemoveStyleProperty(doc, id, prop)
	}
	return editStyle(doc, id, func(s Style) Style { return s.Set(prop, val) })
}

// RemoveStyleProperty removes one inline declaration. The style attribute
// disappears with its last declaration.
func RemoveStyleProperty(doc, id, prop string) (string, error) {
	return editStyle(doc, id, func(s Style) Style { return s.Remove(prop) })
}

func editStyle(doc, id string, fn func(Style) Style) (string, error) {
	return mutate(doc, id, func(n *html.Node) error {
		s, err := ParseStyle(getAttr(n, "style"))
		if err != nil {
			return &InvalidEditError{Identity: id, Reason: "unparseable style attribute: " + err.Error()}
		}
		s = fn(s)
		if len(s) == 0 {
			removeAttr(n, "style")
			return nil
		}
		setAttr(n, "style", s.String())
		return nil
	})
}

// SetImageSource swaps the src of an <img>.
func SetImageSource(doc, id, src string) (string, error) {
	return mutate(doc, id, func(n *html.Node) error {
		if n.DataAtom != atom.Img {
			return &InvalidEditError{Identity: id, Reason: "<" + n.Data + "> is not an image"}
		}
		setAttr(n, "src", src)
		return nil
	})
}

// RemoveElement detaches the element and its subtree.
func RemoveElement(doc, id string) (string, error) {
	return mutate(doc, id, func(n *html.Node) error {
		if n.Parent == nil {
			return &InvalidEditError{Identity: id, Reason: "detached element"}
		}
		n.Parent.RemoveChild(n)
		return nil
	})
}

// Element describes a new element to insert.
type Element struct {
	Tag       string
	Identity  string // assigned by the Tagger when empty
	Text      string
	InnerHTML string // parsed in the context of the new element; wins over Text
	Attrs     []Attr
	Style     Style
}

// Insert appends el as the last child of the element parent, or of <body>
// when parent is empty. Untagged elements of the result, the new element's
// children included, receive identities. It returns the new document and the
// identity of the inserted element.
func (t *Tagger) Insert(doc, parent string, el Element) (string, string, error) {
	tag := strings.ToLower(strings.TrimSpace(el.Tag))
	if tag == "" || strings.ContainsAny(tag, " \t\n\f\r<>/\"'=") {
		return "", "", &InvalidEditError{Identity: el.Identity, Reason: "invalid tag " + el.Tag}
	}
	if IsVoid(tag) && (el.Text != "" || el.InnerHTML != "") {
		return "", "", &InvalidEditError{Identity: el.Identity, Reason: "<" + tag + "> cannot hold content"}
	}
	switch tag {
	case "html", "head", "body", "script":
		return "", "", &InvalidEditError{Identity: el.Identity, Reason: "<" + tag + "> cannot be inserted"}
	}

	root, err := Parse(doc)
	if err != nil {
		return "", "", err
	}
	target := Body(root)
	if parent != "" {
		target = findByIdentity(root, parent)
		if target == nil {
			return "", "", &ElementNotFoundError{Identity: parent}
		}
		if IsVoid(target.Data) {
			return "", "", &InvalidEditError{Identity: parent, Reason: "<" + target.Data + "> cannot hold children"}
		}
	}
	if target == nil {
		return "", "", &InvalidDocumentError{Reason: "missing body"}
	}

	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for _, a := range el.Attrs {
		key := strings.ToLower(a.Key)
		if key == IdentityAttr {
			continue
		}
		if err := checkAttrKey(el.Identity, key); err != nil {
			return "", "", err
		}
		setAttr(n, key, a.Val)
	}
	var style Style
	for _, d := range el.Style {
		if err := CheckDeclaration(d.Property, d.Value); err != nil {
			return "", "", &InvalidEditError{Identity: el.Identity, Reason: err.Error()}
		}
		if strings.TrimSpace(d.Value) != "" {
			style = append(style, d)
		}
	}
	if len(style) > 0 {
		setAttr(n, "style", style.String())
	}

	id := el.Identity
	if id != "" {
		if findByIdentity(root, id) != nil {
			return "", "", &InvalidEditError{Identity: id, Reason: "identity already in use"}
		}
		setAttr(n, IdentityAttr, id)
	}

	switch {
	case el.InnerHTML != "":
		children, err := html.ParseFragment(strings.NewReader(el.InnerHTML), n)
		if err != nil {
			return "", "", &InvalidEditError{Identity: id, Reason: "inner html: " + err.Error()}
		}
		for _, c := range children {
			n.AppendChild(c)
		}
	case el.Text != "":
		n.AppendChild(&html.Node{Type: html.TextNode, Data: el.Text})
	}

	target.AppendChild(n)
	t.tagTree(root, nil)
	if id == "" {
		id = getAttr(n, IdentityAttr)
	}

	out, err := Render(root)
	if err != nil {
		return "", "", err
	}
	return out, id, nil
}
