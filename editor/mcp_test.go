package editor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "vedit-test", Version: "0.1.0"}

func mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	h, _ := testHub(t, nil)

	srv := mcp.NewServer(testImpl, nil)
	h.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %s", name, toolText(t, result))
	}
	return toolText(t, result)
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func TestMCP_EditRoundTrip(t *testing.T) {
	session := mcpSession(t)

	var st State
	if err := json.Unmarshal([]byte(callTool(t, session, "editor_open_session", map[string]any{})), &st); err != nil {
		t.Fatal(err)
	}
	sid := st.SessionID

	var ins insertElementResponse
	json.Unmarshal([]byte(callTool(t, session, "editor_insert_element", map[string]any{
		"session_id": sid, "tag": "h1", "text": "Hi",
	})), &ins)
	if ins.Identity == "" || ins.State.Position != 1 {
		t.Fatalf("insert: %+v", ins)
	}

	callTool(t, session, "editor_apply_edit", map[string]any{
		"session_id": sid, "identity": ins.Identity, "kind": "style", "key": "color", "value": "#ff0000",
	})

	text := callTool(t, session, "editor_query", map[string]any{"session_id": sid, "selector": "h1"})
	if !strings.Contains(text, `"#ff0000"`) || !strings.Contains(text, ins.Identity) {
		t.Fatalf("query: %s", text)
	}

	text = callTool(t, session, "editor_query", map[string]any{"session_id": sid, "xpath": "/html/body/h1[1]"})
	if !strings.Contains(text, ins.Identity) {
		t.Fatalf("query by xpath: %s", text)
	}
	text = callTool(t, session, "editor_query", map[string]any{"session_id": sid, "xpath": "/html/body/h1[2]"})
	if strings.Contains(text, ins.Identity) {
		t.Fatalf("query by xpath miss: %s", text)
	}

	var exp exportResponse
	json.Unmarshal([]byte(callTool(t, session, "editor_export", map[string]any{"session_id": sid})), &exp)
	if !strings.Contains(exp.Content, "color: #ff0000") || strings.Contains(exp.Content, "data-element-id") {
		t.Fatalf("export: %s", exp.Content)
	}

	var mv moveResponse
	json.Unmarshal([]byte(callTool(t, session, "editor_undo", map[string]any{"session_id": sid})), &mv)
	if !mv.Moved || mv.State.Position != 1 {
		t.Fatalf("undo: %+v", mv)
	}
}

func TestMCP_Errors(t *testing.T) {
	session := mcpSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "editor_get_document",
		Arguments: map[string]any{"session_id": "nope"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "session not found") {
		t.Fatalf("expected session error, got %+v", result)
	}

	var st State
	json.Unmarshal([]byte(callTool(t, session, "editor_open_session", map[string]any{})), &st)
	result, err = session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "editor_apply_edit",
		Arguments: map[string]any{"session_id": st.SessionID, "identity": "ghost", "kind": "text", "value": "x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "element not found") {
		t.Fatalf("expected not-found tool error, got %+v", result)
	}
}

func TestMCP_Palette(t *testing.T) {
	session := mcpSession(t)
	var items []PaletteItem
	if err := json.Unmarshal([]byte(callTool(t, session, "editor_palette", map[string]any{})), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) == 0 {
		t.Fatal("empty palette")
	}
}
