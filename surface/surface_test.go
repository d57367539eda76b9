package surface

import (
	"strings"
	"testing"

	"github.com/hazyhaar/vedit/htmldoc"
)

const doc = `<!DOCTYPE html><html><head></head><body>` +
	`<h1 data-element-id="h">Title</h1>` +
	`<p data-element-id="a" class="lead element-selected">one</p>` +
	`<img data-element-id="i" src="x.png">` +
	`</body></html>`

func TestCanvas_SelectionMarker(t *testing.T) {
	out, err := Canvas(doc, "h")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `<h1 data-element-id="h" class="element-selected" contenteditable="true">Title</h1>`) {
		t.Fatalf("selected heading: %s", out)
	}
	if !strings.Contains(out, `<p data-element-id="a" class="lead" contenteditable="true">one</p>`) {
		t.Fatalf("stale marker kept: %s", out)
	}
	if strings.Contains(out, `<img data-element-id="i" src="x.png" contenteditable`) {
		t.Fatalf("img must not be editable: %s", out)
	}
	if strings.Contains(out, "<body") {
		t.Fatalf("canvas must be body content only: %s", out)
	}
}

func TestCanvas_ExistingContentEditable(t *testing.T) {
	src := `<!DOCTYPE html><html><head></head><body>` +
		`<p data-element-id="p" contenteditable="false">x</p></body></html>`
	out, err := Canvas(src, "")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out, "contenteditable"); n != 1 {
		t.Fatalf("contenteditable appears %d times: %s", n, out)
	}
	if !strings.Contains(out, `<p data-element-id="p" contenteditable="true">x</p>`) {
		t.Fatalf("attribute not replaced: %s", out)
	}
}

func TestCanvas_NoSelection(t *testing.T) {
	out, err := Canvas(doc, "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, SelectedClass) {
		t.Fatalf("unexpected marker: %s", out)
	}
}

func TestCanvas_DoesNotTouchDocument(t *testing.T) {
	before := doc
	if _, err := Canvas(doc, "a"); err != nil {
		t.Fatal(err)
	}
	if doc != before {
		t.Fatal("document changed")
	}
}

func TestPreviewPage(t *testing.T) {
	out, err := PreviewPage(htmldoc.DefaultDocument, Mobile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `sandbox="allow-same-origin"`) {
		t.Fatalf("iframe not sandboxed: %s", out)
	}
	if !strings.Contains(out, "width: 375px") || !strings.Contains(out, "scale(0.75)") {
		t.Fatalf("viewport not applied: %s", out)
	}
	if !strings.Contains(out, `srcdoc="&lt;!DOCTYPE html&gt;`) {
		t.Fatalf("document not escaped into srcdoc: %s", out)
	}
}

func TestViewportByName(t *testing.T) {
	if v, ok := ViewportByName(""); !ok || v.Name != "desktop" || v.cssWidth() != "100%" {
		t.Fatalf("default: %+v", v)
	}
	if v, ok := ViewportByName("tablet"); !ok || v.Width != 768 {
		t.Fatalf("tablet: %+v", v)
	}
	if _, ok := ViewportByName("watch"); ok {
		t.Fatal("unknown viewport accepted")
	}
}
