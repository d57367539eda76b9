package editor

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vedit/htmldoc"
	"github.com/hazyhaar/vedit/kit"
)

// RegisterMCP registers the editor tools on an MCP server.
func (h *Hub) RegisterMCP(srv *mcp.Server) {
	h.registerOpenSessionTool(srv)
	h.registerCloseSessionTool(srv)
	h.registerGetDocumentTool(srv)
	h.registerSetHTMLTool(srv)
	h.registerApplyEditTool(srv)
	h.registerInsertElementTool(srv)
	h.registerRemoveElementTool(srv)
	h.registerHistoryTools(srv)
	h.registerQueryTool(srv)
	h.registerInventoryTool(srv)
	h.registerSelectTool(srv)
	h.registerImportTool(srv)
	h.registerExportTool(srv)
	h.registerPaletteTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var sessionIDProp = map[string]any{"type": "string", "description": "Editing session ID"}

// sessionScoped is embedded by every request addressing one session.
type sessionScoped struct {
	SessionID string `json:"session_id"`
}

func (r sessionScoped) sessionID() string { return r.SessionID }

type scoped interface{ sessionID() string }

// decodeAs returns a decoder for request type R that tags the context with
// the session ID when R addresses a session.
func decodeAs[R any]() func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		rr := new(R)
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, rr); err != nil {
				return nil, err
			}
		}
		res := &kit.MCPDecodeResult{Request: rr}
		if sc, ok := any(rr).(scoped); ok {
			id := sc.sessionID()
			res.EnrichCtx = func(ctx context.Context) context.Context {
				return kit.WithSurface(kit.WithSessionID(ctx, id), "agent")
			}
		}
		return res, nil
	}
}

func (h *Hub) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mw := kit.Chain(kit.Logging(h.logger, tool.Name), instrumentTool(tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

// --- editor_open_session ---

func (h *Hub) registerOpenSessionTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_open_session",
		Description: "Open an editing session on the default empty document. Returns the session state including session_id.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		s, err := h.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s.State(), nil
	}
	h.register(srv, tool, endpoint, decodeAs[struct{}]())
}

// --- editor_close_session ---

func (h *Hub) registerCloseSessionTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_close_session",
		Description: "Close an editing session and discard its history.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionIDProp}, []string{"session_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*sessionScoped)
		if err := h.CloseSession(ctx, rr.SessionID); err != nil {
			return nil, err
		}
		return map[string]any{"closed": rr.SessionID}, nil
	}
	h.register(srv, tool, endpoint, decodeAs[sessionScoped]())
}

// --- editor_get_document ---

type documentResponse struct {
	State    State  `json:"state"`
	Document string `json:"document"`
}

func (h *Hub) registerGetDocumentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_get_document",
		Description: "Return the canonical HTML document of a session, with data-element-id identities.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionIDProp}, []string{"session_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		s, err := h.Get(req.(*sessionScoped).SessionID)
		if err != nil {
			return nil, err
		}
		return documentResponse{State: s.State(), Document: s.Document()}, nil
	}
	h.register(srv, tool, endpoint, decodeAs[sessionScoped]())
}

// --- editor_set_html ---

type setHTMLRequest struct {
	sessionScoped
	HTML string `json:"html"`
}

func (h *Hub) registerSetHTMLTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_set_html",
		Description: "Replace the whole document with raw HTML. Fragments are wrapped into a full document and every element is tagged.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"html":       map[string]any{"type": "string", "description": "HTML markup"},
		}, []string{"session_id", "html"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*setHTMLRequest)
		s, err := h.Get(rr.SessionID)
		if err != nil {
			return nil, err
		}
		return s.SetHTML(ctx, rr.HTML)
	}
	h.register(srv, tool, endpoint, decodeAs[setHTMLRequest]())
}

// --- editor_apply_edit ---

type applyEditRequest struct {
	sessionScoped
	Edit
}

func (h *Hub) registerApplyEditTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_apply_edit",
		Description: "Apply one edit to one element: replace its text, set or remove an attribute, or set or remove an inline CSS property. Atomic: commits one history entry or nothing.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"identity":   map[string]any{"type": "string", "description": "data-element-id of the target element"},
			"kind":       map[string]any{"type": "string", "enum": []any{"text", "attribute", "style"}},
			"key":        map[string]any{"type": "string", "description": "Attribute name or CSS property (ignored for text)"},
			"value":      map[string]any{"type": "string", "description": "New text, attribute value or CSS value"},
			"remove":     map[string]any{"type": "boolean", "description": "Remove the attribute or CSS property instead of setting it"},
		}, []string{"session_id", "identity", "kind"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*applyEditRequest)
		s, err := h.Get(rr.SessionID)
		if err != nil {
			return nil, err
		}
		return s.ApplyEdit(ctx, rr.Edit)
	}
	h.register(srv, tool, endpoint, decodeAs[applyEditRequest]())
}

// --- editor_insert_element ---

type insertElementRequest struct {
	sessionScoped
	InsertSpec
}

type insertElementResponse struct {
	Identity string `json:"identity"`
	State    State  `json:"state"`
}

func (h *Hub) registerInsertElementTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_insert_element",
		Description: "Append a new element to <body> or to the element named by parent. Returns the new element's identity.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"tag":        map[string]any{"type": "string", "description": "Element name, e.g. p, h1, button, img"},
			"parent":     map[string]any{"type": "string", "description": "Identity of the parent element (default: body)"},
			"identity":   map[string]any{"type": "string", "description": "Identity to assign (default: generated)"},
			"text":       map[string]any{"type": "string", "description": "Text content"},
			"inner_html": map[string]any{"type": "string", "description": "Inner HTML, wins over text"},
			"x":          map[string]any{"type": "number", "description": "Drop x coordinate in px; positions the element absolutely"},
			"y":          map[string]any{"type": "number", "description": "Drop y coordinate in px"},
		}, []string{"session_id", "tag"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*insertElementRequest)
		s, err := h.Get(rr.SessionID)
		if err != nil {
			return nil, err
		}
		id, st, err := s.InsertElement(ctx, rr.InsertSpec)
		if err != nil {
			return nil, err
		}
		return insertElementResponse{Identity: id, State: st}, nil
	}
	h.register(srv, tool, endpoint, decodeAs[insertElementRequest]())
}

// --- editor_remove_element ---

type identityRequest struct {
	sessionScoped
	Identity string `json:"identity"`
}

func (h *Hub) registerRemoveElementTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_remove_element",
		Description: "Remove an element and its subtree.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"identity":   map[string]any{"type": "string"},
		}, []string{"session_id", "identity"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*identityRequest)
		s, err := h.Get(rr.SessionID)
		if err != nil {
			return nil, err
		}
		return s.RemoveElement(ctx, rr.Identity)
	}
	h.register(srv, tool, endpoint, decodeAs[identityRequest]())
}

// --- editor_undo / editor_redo ---

type moveResponse struct {
	Moved bool  `json:"moved"`
	State State `json:"state"`
}

func (h *Hub) registerHistoryTools(srv *mcp.Server) {
	for _, dir := range []string{"undo", "redo"} {
		tool := &mcp.Tool{
			Name:        "editor_" + dir,
			Description: "Move the history cursor one step (" + dir + "). A no-op at the boundary; moved reports whether anything changed.",
			InputSchema: inputSchema(map[string]any{"session_id": sessionIDProp}, []string{"session_id"}),
		}
		endpoint := func(ctx context.Context, req any) (any, error) {
			s, err := h.Get(req.(*sessionScoped).SessionID)
			if err != nil {
				return nil, err
			}
			var resp moveResponse
			if dir == "undo" {
				resp.State, resp.Moved = s.Undo(ctx)
			} else {
				resp.State, resp.Moved = s.Redo(ctx)
			}
			return resp, nil
		}
		h.register(srv, tool, endpoint, decodeAs[sessionScoped]())
	}
}

// --- editor_query ---

type queryRequest struct {
	sessionScoped
	Identity string `json:"identity,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Selector string `json:"selector,omitempty"`
	XPath    string `json:"xpath,omitempty"`
}

func (h *Hub) registerQueryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_query",
		Description: "Find elements by identity, xpath, tag name or CSS selector. Returns read-only element snapshots with text, attributes, style and xpath.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"identity":   map[string]any{"type": "string"},
			"tag":        map[string]any{"type": "string"},
			"selector":   map[string]any{"type": "string", "description": "CSS selector"},
			"xpath":      map[string]any{"type": "string", "description": "Absolute positional path, e.g. /html/body/div[1]/p[2]"},
		}, []string{"session_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*queryRequest)
		s, err := h.Get(rr.SessionID)
		if err != nil {
			return nil, err
		}
		switch {
		case rr.Identity != "":
			el, ok := s.Element(rr.Identity)
			if !ok {
				return nil, &htmldoc.ElementNotFoundError{Identity: rr.Identity}
			}
			return []htmldoc.Handle{el}, nil
		case rr.XPath != "":
			el, ok := s.ByXPath(rr.XPath)
			if !ok {
				return []htmldoc.Handle{}, nil
			}
			return []htmldoc.Handle{el}, nil
		case rr.Selector != "":
			return s.Find(rr.Selector)
		default:
			return s.ByTag(rr.Tag), nil
		}
	}
	h.register(srv, tool, endpoint, decodeAs[queryRequest]())
}

// --- editor_inventory ---

type inventoryRequest struct {
	sessionScoped
	Tags []string `json:"tags,omitempty"`
}

func (h *Hub) registerInventoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_inventory",
		Description: "List the body elements grouped by tag name, optionally restricted to some tags.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"tags":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}, []string{"session_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*inventoryRequest)
		s, err := h.Get(rr.SessionID)
		if err != nil {
			return nil, err
		}
		return s.Inventory(rr.Tags...), nil
	}
	h.register(srv, tool, endpoint, decodeAs[inventoryRequest]())
}

// --- editor_select ---

func (h *Hub) registerSelectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_select",
		Description: "Select an element by identity and return it, or clear the selection when identity is empty.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"identity":   map[string]any{"type": "string"},
		}, []string{"session_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*identityRequest)
		s, err := h.Get(rr.SessionID)
		if err != nil {
			return nil, err
		}
		if rr.Identity == "" {
			s.Deselect()
			return s.State(), nil
		}
		return s.Select(ctx, rr.Identity)
	}
	h.register(srv, tool, endpoint, decodeAs[identityRequest]())
}

// --- editor_import ---

type importRequest struct {
	sessionScoped
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

func (h *Hub) registerImportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_import",
		Description: "Replace the document with the content of an HTML file. Rejects empty, binary or oversized content.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"name":       map[string]any{"type": "string", "description": "File name, for messages"},
			"content":    map[string]any{"type": "string", "description": "File content"},
		}, []string{"session_id", "content"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*importRequest)
		s, err := h.Get(rr.SessionID)
		if err != nil {
			return nil, err
		}
		return s.Import(ctx, rr.Name, []byte(rr.Content))
	}
	h.register(srv, tool, endpoint, decodeAs[importRequest]())
}

// --- editor_export ---

type exportRequest struct {
	sessionScoped
	Format string `json:"format,omitempty"`
}

type exportResponse struct {
	*Export
	Content string `json:"content"`
}

func (h *Hub) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_export",
		Description: "Export the document without editor markup, as html, html+minified, html+sanitized or markdown.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"format":     map[string]any{"type": "string", "enum": []any{FormatHTML, FormatMinified, FormatSanitized, FormatMarkdown}},
		}, []string{"session_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*exportRequest)
		s, err := h.Get(rr.SessionID)
		if err != nil {
			return nil, err
		}
		exp, err := s.Export(ctx, rr.Format)
		if err != nil {
			return nil, err
		}
		return exportResponse{Export: exp, Content: string(exp.Body)}, nil
	}
	h.register(srv, tool, endpoint, decodeAs[exportRequest]())
}

// --- editor_palette ---

func (h *Hub) registerPaletteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "editor_palette",
		Description: "List the element types available for insertion.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return Palette(), nil
	}
	h.register(srv, tool, endpoint, decodeAs[struct{}]())
}
