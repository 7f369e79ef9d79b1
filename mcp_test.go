package longshot

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/longshot/dbopen"
	"github.com/hazyhaar/longshot/internal/store"
)

var testMCPImpl = &mcp.Implementation{Name: "longshot-test", Version: "0.1.0"}

func mcpSession(t *testing.T, c *Capturer) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	c.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func seededCapturer(t *testing.T) *Capturer {
	t.Helper()
	c := New(nil, discard())
	st := store.New(dbopen.OpenMemory(t))
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := st.CreateSession(ctx, "sess_1", "https://example.com", "example.com"); err != nil {
		t.Fatal(err)
	}
	if err := st.CompleteSession(ctx, "sess_1", 4); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveArtifact(ctx, &store.Artifact{
		ID: "art_1", SessionID: "sess_1", Part: 0,
		Filename: "example.com_20260830T101500.png", MIME: "image/png",
		Width: 60, Height: 200, Bytes: []byte("png"),
	}); err != nil {
		t.Fatal(err)
	}
	c.st = st
	return c
}

func TestMCP_Session(t *testing.T) {
	session := mcpSession(t, seededCapturer(t))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "longshot_session",
		Arguments: map[string]any{"session_id": "sess_1"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}

	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var resp struct {
		Session struct {
			ID        string `json:"ID"`
			Status    string `json:"Status"`
			TileCount int    `json:"TileCount"`
		} `json:"session"`
		Artifacts []struct {
			Filename string `json:"Filename"`
		} `json:"artifacts"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Session.Status != store.StatusComplete || resp.Session.TileCount != 4 {
		t.Fatalf("session = %+v", resp.Session)
	}
	if len(resp.Artifacts) != 1 || resp.Artifacts[0].Filename != "example.com_20260830T101500.png" {
		t.Fatalf("artifacts = %+v", resp.Artifacts)
	}
}

func TestMCP_SessionNotFound(t *testing.T) {
	session := mcpSession(t, seededCapturer(t))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "longshot_session",
		Arguments: map[string]any{"session_id": "nope"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.GetError() == nil {
		t.Fatal("expected tool error for unknown session")
	}
}

func TestMCP_CaptureWithoutBrowser(t *testing.T) {
	// The browser was never started: the tool must report the failure as
	// a tool error, not a transport error.
	session := mcpSession(t, New(nil, discard()))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "longshot_capture",
		Arguments: map[string]any{"url": "https://example.com"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.GetError() == nil {
		t.Fatal("expected tool error without a running browser")
	}
}
