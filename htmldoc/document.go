// Package htmldoc is the structural layer of the editor: it parses the
// canonical HTML string, tags elements with stable identities, answers
// read-only queries and applies single-element mutations.
//
// Queries and mutations take and return serialized HTML and parse afresh on
// every call, so no caller holds a tree that outlived the document it came
// from.
package htmldoc

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultDocument is the document every new editing session starts from.
const DefaultDocument = `<!DOCTYPE html><html><head><title>Visual HTML Editor</title></head><body></body></html>`

// Parse parses doc into a tree. The HTML5 parser is lenient and synthesizes
// html, head and body, so the only failures are reader errors.
func Parse(doc string) (*html.Node, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, &InvalidDocumentError{Reason: "parse", Err: err}
	}
	return root, nil
}

// Render serializes a tree back to a string.
func Render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", &InvalidDocumentError{Reason: "render", Err: err}
	}
	return buf.String(), nil
}

// Validate reports whether doc is a complete document that can be committed:
// non-empty UTF-8 text without NUL bytes carrying a doctype.
func Validate(doc string) error {
	if strings.TrimSpace(doc) == "" {
		return &InvalidDocumentError{Reason: "empty document"}
	}
	if !utf8.ValidString(doc) {
		return &InvalidDocumentError{Reason: "not valid UTF-8"}
	}
	if strings.IndexByte(doc, 0) >= 0 {
		return &InvalidDocumentError{Reason: "contains NUL bytes"}
	}
	root, err := Parse(doc)
	if err != nil {
		return err
	}
	if doctype(root) == nil {
		return &InvalidDocumentError{Reason: "missing doctype"}
	}
	if Body(root) == nil {
		return &InvalidDocumentError{Reason: "missing body"}
	}
	return nil
}

// Normalize turns any HTML text (fragment or full page) into a complete
// canonical document: doctype, html, head and body, serialized by the same
// renderer that every later mutation uses.
func Normalize(doc string) (string, error) {
	if !utf8.ValidString(doc) {
		return "", &InvalidDocumentError{Reason: "not valid UTF-8"}
	}
	root, err := Parse(doc)
	if err != nil {
		return "", err
	}
	if doctype(root) == nil {
		root.InsertBefore(&html.Node{Type: html.DoctypeNode, Data: "html"}, root.FirstChild)
	}
	return Render(root)
}

// Title returns the trimmed text of the document <title>.
func Title(doc string) string {
	root, err := Parse(doc)
	if err != nil {
		return ""
	}
	if n := findFirst(root, func(n *html.Node) bool { return n.DataAtom == atom.Title }); n != nil {
		return strings.TrimSpace(textContent(n))
	}
	return ""
}

// Body returns the <body> element of a parsed document, or nil.
func Body(root *html.Node) *html.Node {
	return findFirst(root, func(n *html.Node) bool { return n.DataAtom == atom.Body })
}

// BodyHTML returns the serialized children of <body>.
func BodyHTML(doc string) (string, error) {
	root, err := Parse(doc)
	if err != nil {
		return "", err
	}
	body := Body(root)
	if body == nil {
		return "", nil
	}
	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", &InvalidDocumentError{Reason: "render", Err: err}
		}
	}
	return buf.String(), nil
}

func doctype(root *html.Node) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.DoctypeNode {
			return c
		}
	}
	return nil
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	var f func(*html.Node)
	f = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && match(n) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(root)
	return found
}

// textContent concatenates every text node under n, like the DOM property.
func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}
