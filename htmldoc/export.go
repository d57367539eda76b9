package htmldoc

import (
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// MarkerClasses are applied by the render surfaces, and by clients that
// wrote them into the document. They never reach an export.
var MarkerClasses = []string{"element-selected", "element-highlight", "element-hover"}

// StripEditorMarkup removes identity attributes, marker classes and
// contenteditable flags from doc. The result is what a user downloads.
func StripEditorMarkup(doc string) (string, error) {
	root, err := Parse(doc)
	if err != nil {
		return "", err
	}
	walkElements(root, func(n *html.Node) bool {
		removeAttr(n, IdentityAttr)
		removeAttr(n, "contenteditable")
		if hasAttr(n, "class") {
			cls := RemoveClasses(getAttr(n, "class"), MarkerClasses...)
			if cls == "" {
				removeAttr(n, "class")
			} else {
				setAttr(n, "class", cls)
			}
		}
		return true
	})
	return Render(root)
}

// RemoveClasses drops names from a class attribute value.
func RemoveClasses(value string, names ...string) string {
	drop := tagSet(names)
	var keep []string
	for _, c := range strings.Fields(value) {
		if _, ok := drop[c]; !ok {
			keep = append(keep, c)
		}
	}
	return strings.Join(keep, " ")
}

var (
	colorRegexp = regexp.MustCompile(`^(#(?:[0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})|rgba?\([\d\s.,%]+\)|[a-zA-Z]+)$`)
	sizeRegexp  = regexp.MustCompile(`^(-?\d+(\.\d+)?(px|em|rem|pt|%|vh|vw)?|auto|inherit|initial|unset)$`)
	boxRegexp   = regexp.MustCompile(`^(-?\d+(\.\d+)?(px|em|rem|pt|%)?\s*){1,4}$|^auto$`)
	fontRegexp  = regexp.MustCompile(`^[\w\s,"'-]+$`)
	posRegexp   = regexp.MustCompile(`^(static|relative|absolute|fixed|sticky)$`)
	dispRegexp  = regexp.MustCompile(`^(block|inline|inline-block|flex|grid|none)$`)
	weightRegex = regexp.MustCompile(`^(normal|bold|bolder|lighter|[1-9]00)$`)
)

// SanitizePolicy is the bluemonday policy applied to imported content when
// sanitizing is enabled and to the html+sanitized export. It is the UGC
// policy extended with the layout styles and form elements the editor
// produces.
var SanitizePolicy = newSanitizePolicy()

func newSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowDataAttributes()
	p.AllowAttrs("class").Globally()
	p.AllowElements("button", "form", "input", "label")
	p.AllowAttrs("type", "name", "value", "placeholder").OnElements("input", "button")
	p.AllowAttrs("action").Matching(regexp.MustCompile(`^(https?://|/|#)`)).OnElements("form")
	p.AllowAttrs("method").Matching(regexp.MustCompile(`(?i)^(get|post)$`)).OnElements("form")

	p.AllowStyles("color", "background-color", "border-color").Matching(colorRegexp).Globally()
	p.AllowStyles("width", "height", "left", "top", "right", "bottom", "font-size", "line-height").Matching(sizeRegexp).Globally()
	p.AllowStyles("margin", "padding", "border-radius").Matching(boxRegexp).Globally()
	p.AllowStyles("text-align").Matching(bluemonday.CellAlign).Globally()
	p.AllowStyles("font-family").Matching(fontRegexp).Globally()
	p.AllowStyles("font-weight").Matching(weightRegex).Globally()
	p.AllowStyles("position").Matching(posRegexp).Globally()
	p.AllowStyles("display").Matching(dispRegexp).Globally()
	return p
}

// Sanitize rebuilds doc from its title and its sanitized body. Everything
// else in <head> is dropped.
func Sanitize(doc string) (string, error) {
	body, err := BodyHTML(doc)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head>")
	if title := Title(doc); title != "" {
		sb.WriteString("<title>")
		sb.WriteString(template.HTMLEscapeString(title))
		sb.WriteString("</title>")
	}
	sb.WriteString("</head><body>")
	sb.WriteString(SanitizePolicy.Sanitize(body))
	sb.WriteString("</body></html>")
	return Normalize(sb.String())
}
