// Package surface renders the two views of a document: the editable canvas
// and the isolated preview. Both are pure functions of the canonical HTML and
// never write back; user interaction reaches the document only as edits.
package surface

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/vedit/htmldoc"
)

// SelectedClass marks the selected element on the canvas.
const SelectedClass = "element-selected"

// Viewport is a preview size preset. Width 0 means the full available width.
type Viewport struct {
	Name   string  `json:"name"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

var (
	Desktop = Viewport{Name: "desktop", Width: 0, Height: 800, Scale: 1}
	Tablet  = Viewport{Name: "tablet", Width: 768, Height: 1024, Scale: 1}
	Mobile  = Viewport{Name: "mobile", Width: 375, Height: 667, Scale: 0.75}
)

// Viewports lists the presets.
func Viewports() []Viewport { return []Viewport{Desktop, Tablet, Mobile} }

// ViewportByName returns a preset; an empty name is Desktop.
func ViewportByName(name string) (Viewport, bool) {
	if name == "" {
		return Desktop, true
	}
	for _, v := range Viewports() {
		if v.Name == name {
			return v, true
		}
	}
	return Viewport{}, false
}

// cssWidth is the frame width, "100%" for a full-width viewport.
func (v Viewport) cssWidth() string {
	if v.Width <= 0 {
		return "100%"
	}
	return strconv.Itoa(v.Width) + "px"
}

// Box is an element's rectangle in preview coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// textual elements get contenteditable on the canvas.
var textual = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"button": true, "span": true, "a": true, "li": true, "label": true,
	"td": true, "th": true, "blockquote": true, "figcaption": true,
}

// Canvas renders the body content of doc for the editable canvas. The
// selection marker is recomputed from selection on every call; stale marker
// classes present in doc are dropped.
func Canvas(doc, selection string) (string, error) {
	root, err := htmldoc.Parse(doc)
	if err != nil {
		return "", err
	}
	body := htmldoc.Body(root)
	if body == nil {
		return "", nil
	}
	decorate(body, selection)

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("surface: render canvas: %w", err)
		}
	}
	return buf.String(), nil
}

func decorate(n *html.Node, selection string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "script", "style", "template":
			continue
		}
		var id, class string
		classIdx := -1
		for i, a := range c.Attr {
			switch a.Key {
			case htmldoc.IdentityAttr:
				id = a.Val
			case "class":
				class, classIdx = a.Val, i
			}
		}
		class = htmldoc.RemoveClasses(class, htmldoc.MarkerClasses...)
		if selection != "" && id == selection {
			class = strings.TrimSpace(class + " " + SelectedClass)
		}
		switch {
		case classIdx >= 0 && class == "":
			c.Attr = append(c.Attr[:classIdx], c.Attr[classIdx+1:]...)
		case classIdx >= 0:
			c.Attr[classIdx].Val = class
		case class != "":
			c.Attr = append(c.Attr, html.Attribute{Key: "class", Val: class})
		}
		if id != "" && textual[c.Data] {
			setAttr(c, "contenteditable", "true")
		}
		decorate(c, selection)
	}
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

var previewTmpl = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Preview ({{.Viewport.Name}})</title>
<style>
body { margin: 0; background: #f4f4f5; display: flex; justify-content: center; }
iframe { border: 0; background: #fff; transform-origin: top center; }
</style>
</head>
<body>
<iframe title="preview" sandbox="allow-same-origin" style="{{.Style}}" srcdoc="{{.Document}}"></iframe>
</body>
</html>
`))

// PreviewPage wraps doc in a page showing it inside a sandboxed iframe
// sized for vp. The document is passed through srcdoc, so it shares no DOM
// with the page.
func PreviewPage(doc string, vp Viewport) (string, error) {
	scale := vp.Scale
	if scale <= 0 {
		scale = 1
	}
	style := fmt.Sprintf("width: %s; height: %dpx; transform: scale(%s)",
		vp.cssWidth(), vp.Height, strconv.FormatFloat(scale, 'f', -1, 64))

	var buf bytes.Buffer
	err := previewTmpl.Execute(&buf, struct {
		Viewport Viewport
		Style    template.CSS
		Document string
	}{vp, template.CSS(style), doc})
	if err != nil {
		return "", fmt.Errorf("surface: render preview: %w", err)
	}
	return buf.String(), nil
}
