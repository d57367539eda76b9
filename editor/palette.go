package editor

import (
	"fmt"

	"github.com/hazyhaar/vedit/htmldoc"
)

// PaletteItem is an element type the user can drag onto the canvas.
type PaletteItem struct {
	Tag   string         `json:"tag"`
	Label string         `json:"label"`
	Text  string         `json:"text,omitempty"`
	Inner string         `json:"inner_html,omitempty"`
	Attrs []htmldoc.Attr `json:"attrs,omitempty"`
}

var palette = []PaletteItem{
	{Tag: "p", Label: "Paragraphs", Text: "New paragraph"},
	{Tag: "h1", Label: "Heading 1", Text: "Heading 1"},
	{Tag: "h2", Label: "Heading 2", Text: "Heading 2"},
	{Tag: "h3", Label: "Heading 3", Text: "Heading 3"},
	{Tag: "button", Label: "Buttons", Text: "Button"},
	{Tag: "img", Label: "Images", Attrs: []htmldoc.Attr{{Key: "src", Val: "https://placehold.co/300x200"}, {Key: "alt", Val: "Image"}}},
	{Tag: "div", Label: "Container"},
	{Tag: "input", Label: "Input", Attrs: []htmldoc.Attr{{Key: "type", Val: "text"}, {Key: "placeholder", Val: "Input"}}},
	{Tag: "form", Label: "Form", Inner: `<input type="text" placeholder="Input"><button type="submit">Submit</button>`},
}

// Palette returns the draggable element types.
func Palette() []PaletteItem {
	out := make([]PaletteItem, len(palette))
	copy(out, palette)
	return out
}

// Drop builds the insertion for a palette item dropped at (x, y).
func Drop(tag string, x, y float64) (InsertSpec, error) {
	for _, p := range palette {
		if p.Tag != tag {
			continue
		}
		return InsertSpec{
			Tag:       p.Tag,
			Text:      p.Text,
			InnerHTML: p.Inner,
			Attrs:     append([]htmldoc.Attr(nil), p.Attrs...),
			X:         &x,
			Y:         &y,
		}, nil
	}
	return InsertSpec{}, &htmldoc.InvalidEditError{Reason: fmt.Sprintf("%q is not in the palette", tag)}
}
