package editor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/vedit/htmldoc"
	"github.com/hazyhaar/vedit/kit"
	"github.com/hazyhaar/vedit/surface"
)

// SurfaceHeader names the edit surface (canvas, inspector, sidebar, code)
// that produced a request.
const SurfaceHeader = "X-Edit-Surface"

// RegisterHTTP mounts the editor API on r.
func (h *Hub) RegisterHTTP(r chi.Router) {
	r.Get("/api/palette", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Palette())
	})
	r.Get("/api/viewports", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, surface.Viewports())
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, h.Sessions())
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			s, err := h.Open(r.Context())
			if err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, s.State())
		})

		r.Route("/{sid}", func(r chi.Router) {
			r.Use(h.sessionContext)

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, session(r).State())
			})
			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				if err := h.CloseSession(r.Context(), session(r).ID()); err != nil {
					writeError(w, errorStatus(err), err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			r.Get("/document", h.handleGetDocument)
			r.Put("/document", h.handleSetDocument)
			r.Post("/undo", h.handleMove(true))
			r.Post("/redo", h.handleMove(false))
			r.Post("/edits", h.handleApplyEdit)
			r.Post("/identities", h.handleEnsureIdentities)

			r.Get("/elements", h.handleQuery)
			r.Post("/elements", h.handleInsert)
			r.Get("/elements/{eid}", h.handleElement)
			r.Delete("/elements/{eid}", h.handleRemove)
			r.Put("/elements/{eid}/src", h.handleReplaceImage)
			r.Get("/inventory", h.handleInventory)

			r.Get("/selection", h.handleGetSelection)
			r.Put("/selection", h.handleSelect)
			r.Delete("/selection", func(w http.ResponseWriter, r *http.Request) {
				s := session(r)
				s.Deselect()
				writeJSON(w, http.StatusOK, s.State())
			})

			r.Post("/import", h.handleImport)
			r.Get("/export", h.handleExport)

			r.Get("/canvas", h.handleCanvas)
			r.Get("/preview", h.handlePreview)
			r.Get("/preview/screenshot", h.handleScreenshot)
			r.Get("/preview/locate/{eid}", h.handleLocate)
			r.Get("/preview/dom", h.handleRenderedDOM)
		})
	})
}

type sessionKey struct{}

// sessionContext resolves {sid} and tags the request context.
func (h *Hub) sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := h.Get(chi.URLParam(r, "sid"))
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		ctx := kit.WithSessionID(r.Context(), s.ID())
		if sf := r.Header.Get(SurfaceHeader); sf != "" {
			ctx = kit.WithSurface(ctx, sf)
		}
		ctx = context.WithValue(ctx, sessionKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func session(r *http.Request) *Session {
	return r.Context().Value(sessionKey{}).(*Session)
}

func (h *Hub) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	s := session(r)
	if r.URL.Query().Get("raw") != "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, s.Document())
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{State: s.State(), Document: s.Document()})
}

type setDocumentBody struct {
	HTML string `json:"html"`
}

func (h *Hub) handleSetDocument(w http.ResponseWriter, r *http.Request) {
	var body setDocumentBody
	if !decodeBody(w, r, &body) {
		return
	}
	st, err := session(r).SetHTML(r.Context(), body.HTML)
	respond(w, st, err)
}

func (h *Hub) handleMove(undo bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := session(r)
		var resp moveResponse
		if undo {
			resp.State, resp.Moved = s.Undo(r.Context())
		} else {
			resp.State, resp.Moved = s.Redo(r.Context())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Hub) handleApplyEdit(w http.ResponseWriter, r *http.Request) {
	var e Edit
	if !decodeBody(w, r, &e) {
		return
	}
	st, err := session(r).ApplyEdit(r.Context(), e)
	respond(w, st, err)
}

type identitiesBody struct {
	Tags []string `json:"tags,omitempty"`
}

func (h *Hub) handleEnsureIdentities(w http.ResponseWriter, r *http.Request) {
	var body identitiesBody
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}
	n, st, err := session(r).EnsureIdentities(r.Context(), body.Tags...)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assigned": n, "state": st})
}

func (h *Hub) handleQuery(w http.ResponseWriter, r *http.Request) {
	s := session(r)
	q := r.URL.Query()
	switch {
	case q.Get("xpath") != "":
		el, ok := s.ByXPath(q.Get("xpath"))
		if !ok {
			writeJSON(w, http.StatusOK, []htmldoc.Handle{})
			return
		}
		writeJSON(w, http.StatusOK, []htmldoc.Handle{el})
	case q.Get("selector") != "":
		hs, err := s.Find(q.Get("selector"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(hs))
	case q.Get("tag") != "":
		writeJSON(w, http.StatusOK, nonNil(s.ByTag(q.Get("tag"))))
	default:
		writeJSON(w, http.StatusOK, s.Inventory())
	}
}

func nonNil(hs []htmldoc.Handle) []htmldoc.Handle {
	if hs == nil {
		return []htmldoc.Handle{}
	}
	return hs
}

// insertBody is an InsertSpec, or a palette drop when Palette is set.
type insertBody struct {
	InsertSpec
	Palette string `json:"palette,omitempty"`
}

func (h *Hub) handleInsert(w http.ResponseWriter, r *http.Request) {
	var body insertBody
	if !decodeBody(w, r, &body) {
		return
	}
	spec := body.InsertSpec
	if body.Palette != "" {
		var x, y float64
		if body.X != nil {
			x = *body.X
		}
		if body.Y != nil {
			y = *body.Y
		}
		drop, err := Drop(body.Palette, x, y)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		drop.Parent, drop.Identity = body.Parent, body.Identity
		spec = drop
	}
	id, st, err := session(r).InsertElement(r.Context(), spec)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, insertElementResponse{Identity: id, State: st})
}

func (h *Hub) handleElement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "eid")
	el, ok := session(r).Element(id)
	if !ok {
		writeError(w, http.StatusNotFound, &htmldoc.ElementNotFoundError{Identity: id})
		return
	}
	writeJSON(w, http.StatusOK, el)
}

func (h *Hub) handleRemove(w http.ResponseWriter, r *http.Request) {
	st, err := session(r).RemoveElement(r.Context(), chi.URLParam(r, "eid"))
	respond(w, st, err)
}

type srcBody struct {
	Src string `json:"src"`
}

func (h *Hub) handleReplaceImage(w http.ResponseWriter, r *http.Request) {
	var body srcBody
	if !decodeBody(w, r, &body) {
		return
	}
	st, err := session(r).ReplaceImage(r.Context(), chi.URLParam(r, "eid"), body.Src)
	respond(w, st, err)
}

func (h *Hub) handleInventory(w http.ResponseWriter, r *http.Request) {
	var tags []string
	if t := r.URL.Query().Get("tags"); t != "" {
		tags = strings.Split(t, ",")
	}
	writeJSON(w, http.StatusOK, session(r).Inventory(tags...))
}

func (h *Hub) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	el, ok := session(r).Selected()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

type selectBody struct {
	Identity string `json:"identity"`
}

func (h *Hub) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body selectBody
	if !decodeBody(w, r, &body) {
		return
	}
	el, err := session(r).Select(r.Context(), body.Identity)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

// handleImport accepts a multipart upload (field "file") or a raw body.
func (h *Hub) handleImport(w http.ResponseWriter, r *http.Request) {
	limit := h.config.Import.MaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)

	var (
		name string
		data []byte
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, hdr, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, ferr)
			return
		}
		defer f.Close()
		name = hdr.Filename
		data, err = io.ReadAll(io.LimitReader(f, limit+1))
	} else {
		name = r.URL.Query().Get("name")
		data, err = io.ReadAll(io.LimitReader(r.Body, limit+1))
	}
	if err != nil {
		status := http.StatusBadRequest
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err)
		return
	}
	st, err := session(r).Import(r.Context(), name, data)
	respond(w, st, err)
}

func (h *Hub) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := session(r).Export(r.Context(), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exp.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.Body)))
	w.Write(exp.Body)
}

func (h *Hub) handleCanvas(w http.ResponseWriter, r *http.Request) {
	s := session(r)
	out, err := surface.Canvas(s.Document(), s.Selection())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, out)
}

func viewport(w http.ResponseWriter, r *http.Request) (surface.Viewport, bool) {
	name := r.URL.Query().Get("viewport")
	vp, ok := surface.ViewportByName(name)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("unknown viewport "+strconv.Quote(name)))
	}
	return vp, ok
}

func (h *Hub) handlePreview(w http.ResponseWriter, r *http.Request) {
	vp, ok := viewport(w, r)
	if !ok {
		return
	}
	out, err := surface.PreviewPage(session(r).Document(), vp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, out)
}

var errPreviewDisabled = errors.New("editor: browser preview is disabled")

func (h *Hub) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, http.StatusNotImplemented, errPreviewDisabled)
		return
	}
	vp, ok := viewport(w, r)
	if !ok {
		return
	}
	img, err := h.renderer.Screenshot(r.Context(), session(r).Document(), vp)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(img)
}

func (h *Hub) handleLocate(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, http.StatusNotImplemented, errPreviewDisabled)
		return
	}
	vp, ok := viewport(w, r)
	if !ok {
		return
	}
	box, err := h.renderer.Locate(r.Context(), session(r).Document(), chi.URLParam(r, "eid"), vp)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, box)
}

// handleRenderedDOM returns the document as the browser parsed it.
func (h *Hub) handleRenderedDOM(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, http.StatusNotImplemented, errPreviewDisabled)
		return
	}
	dom, err := h.renderer.DOM(r.Context(), session(r).Document())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, dom)
}

// --- helpers ---

func respond(w http.ResponseWriter, st State, err error) {
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// errorStatus maps editor errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		nf  *htmldoc.ElementNotFoundError
		ie  *htmldoc.InvalidEditError
		id  *htmldoc.InvalidDocumentError
		ife *ImportFormatError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.As(err, &nf):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &ie), errors.As(err, &id), errors.As(err, &ife):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
