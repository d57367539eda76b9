package preview

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/vedit/htmldoc"
	"github.com/hazyhaar/vedit/surface"
)

// desktopWidth stands in for the full-width viewport.
const desktopWidth = 1280

// Renderer renders documents on pages of a Manager's browser. Every call
// opens a fresh page and closes it afterwards.
type Renderer struct {
	mgr *Manager
}

// NewRenderer returns a Renderer using mgr.
func NewRenderer(mgr *Manager) *Renderer {
	return &Renderer{mgr: mgr}
}

func (r *Renderer) open(ctx context.Context, doc string, vp surface.Viewport) (*rod.Page, context.CancelFunc, error) {
	b, err := r.mgr.browserFor(ctx)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.mgr.cfg.Timeout)

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("preview: new page: %w", err)
	}
	page = page.Context(ctx)
	done := func() {
		page.Close()
		cancel()
	}

	if len(r.mgr.cfg.BlockResources) > 0 {
		blockResources(page, r.mgr.cfg.BlockResources)
	}

	width := vp.Width
	if width <= 0 {
		width = desktopWidth
	}
	scale := vp.Scale
	if scale <= 0 {
		scale = 1
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            vp.Height,
		DeviceScaleFactor: scale,
		Mobile:            vp.Name == surface.Mobile.Name,
	}); err != nil {
		done()
		return nil, nil, fmt.Errorf("preview: viewport: %w", err)
	}
	if err := page.SetDocumentContent(doc); err != nil {
		done()
		return nil, nil, fmt.Errorf("preview: load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		r.mgr.cfg.Logger.Warn("preview: wait load", "error", err)
	}
	return page, done, nil
}

// Screenshot returns a PNG of doc rendered at vp.
func (r *Renderer) Screenshot(ctx context.Context, doc string, vp surface.Viewport) ([]byte, error) {
	page, done, err := r.open(ctx, doc, vp)
	if err != nil {
		return nil, err
	}
	defer done()

	img, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("preview: screenshot: %w", err)
	}
	return img, nil
}

const locateJS = `(id) => {
	const el = document.querySelector('[data-element-id="' + CSS.escape(id) + '"]');
	if (!el) return null;
	const r = el.getBoundingClientRect();
	return {x: r.x, y: r.y, width: r.width, height: r.height};
}`

// Locate returns the box of the element carrying identity in doc rendered
// at vp. It reads the rendered page and changes nothing.
func (r *Renderer) Locate(ctx context.Context, doc, identity string, vp surface.Viewport) (surface.Box, error) {
	page, done, err := r.open(ctx, doc, vp)
	if err != nil {
		return surface.Box{}, err
	}
	defer done()

	res, err := page.Eval(locateJS, identity)
	if err != nil {
		return surface.Box{}, fmt.Errorf("preview: locate: %w", err)
	}
	if res.Value.Nil() {
		return surface.Box{}, &htmldoc.ElementNotFoundError{Identity: identity}
	}
	return surface.Box{
		X:      res.Value.Get("x").Num(),
		Y:      res.Value.Get("y").Num(),
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}, nil
}

// DOM returns the outer HTML of the rendered document, as the browser sees it.
func (r *Renderer) DOM(ctx context.Context, doc string) (string, error) {
	page, done, err := r.open(ctx, doc, surface.Desktop)
	if err != nil {
		return "", err
	}
	defer done()

	res, err := page.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("preview: read dom: %w", err)
	}
	return res.Value.Str(), nil
}

// blockResources fails requests for the configured resource types.
func blockResources(page *rod.Page, types []string) {
	block := make(map[string]bool, len(types))
	for _, t := range types {
		block[strings.ToLower(t)] = true
	}
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(block, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

func shouldBlock(block map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return block["images"]
	case "font":
		return block["fonts"]
	case "media":
		return block["media"]
	case "stylesheet":
		return block["stylesheets"]
	default:
		return block[lower]
	}
}
