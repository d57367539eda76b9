package preview

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/vedit/htmldoc"
	"github.com/hazyhaar/vedit/surface"
)

func TestShouldBlock(t *testing.T) {
	block := map[string]bool{"images": true, "fonts": true}
	cases := map[string]bool{"Image": true, "font": true, "media": false, "Stylesheet": false, "script": false}
	for typ, want := range cases {
		if got := shouldBlock(block, typ); got != want {
			t.Errorf("%s: got %v, want %v", typ, got, want)
		}
	}
}

func TestManager_ClosedRefuses(t *testing.T) {
	m := NewManager(Config{})
	m.Close()
	if _, err := m.browserFor(context.Background()); err == nil {
		t.Fatal("expected error from closed manager")
	}
}

func chromeRenderer(t *testing.T) *Renderer {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in short mode")
	}
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no Chrome available")
	}
	m := NewManager(Config{})
	t.Cleanup(func() { m.Close() })
	return NewRenderer(m)
}

const page = `<!DOCTYPE html><html><head></head><body>` +
	`<h1 data-element-id="h1-1" style="margin: 0; height: 40px">Title</h1>` +
	`<p data-element-id="p-1">Body</p></body></html>`

func TestRenderer_Locate(t *testing.T) {
	r := chromeRenderer(t)
	ctx := context.Background()

	box, err := r.Locate(ctx, page, "h1-1", surface.Tablet)
	if err != nil {
		t.Fatal(err)
	}
	if box.Width <= 0 || box.Height != 40 {
		t.Fatalf("box: %+v", box)
	}

	_, err = r.Locate(ctx, page, "missing", surface.Tablet)
	var nf *htmldoc.ElementNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected ElementNotFoundError, got %v", err)
	}
}

func TestRenderer_ScreenshotAndDOM(t *testing.T) {
	r := chromeRenderer(t)
	ctx := context.Background()

	img, err := r.Screenshot(ctx, page, surface.Mobile)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Fatal("not a PNG")
	}

	dom, err := r.DOM(ctx, page)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dom, `data-element-id="p-1"`) {
		t.Fatalf("identity lost in browser DOM: %s", dom)
	}
}
