package longshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/longshot/internal/store"
)

// RegisterMCP registers capture tools on an MCP server.
func (c *Capturer) RegisterMCP(srv *mcp.Server) {
	c.registerCaptureTool(srv)
	c.registerSessionTool(srv)
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

// addTool wires a typed endpoint as an MCP tool: decode arguments, run,
// marshal the response as text content. Tool failures are reported through
// the result, not the transport.
func addTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r Req
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		resp, err := endpoint(ctx, &r)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- capture ---

type captureReq struct {
	URL string `json:"url"`
	Dir string `json:"dir,omitempty"`
}

type captureResp struct {
	SessionID string            `json:"session_id"`
	URL       string            `json:"url"`
	Origin    string            `json:"origin"`
	TileCount int               `json:"tile_count"`
	Artifacts []artifactSummary `json:"artifacts"`
	Files     []string          `json:"files,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
}

type artifactSummary struct {
	Filename  string `json:"filename"`
	MIME      string `json:"mime"`
	Part      int    `json:"part,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
	Oversized bool   `json:"oversized,omitempty"`
}

func (c *Capturer) registerCaptureTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "longshot_capture",
		Description: "Capture a full-page screenshot of a URL. Returns artifact metadata; set dir to also write the files to disk.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL to capture"},
			"dir": map[string]any{"type": "string", "description": "Directory to write artifacts into (optional)"},
		}, []string{"url"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *captureReq) (any, error) {
		res, err := c.Capture(ctx, r.URL)
		if err != nil {
			return nil, err
		}

		resp := &captureResp{
			SessionID: res.SessionID,
			URL:       res.URL,
			Origin:    res.Origin,
			TileCount: res.TileCount,
			Warnings:  res.Warnings,
		}
		for _, a := range res.Artifacts {
			resp.Artifacts = append(resp.Artifacts, artifactSummary{
				Filename:  a.Filename,
				MIME:      a.MIME,
				Part:      a.Part,
				Width:     a.Width,
				Height:    a.Height,
				Bytes:     len(a.Bytes),
				Oversized: a.Oversized,
			})
		}
		if r.Dir != "" {
			files, err := res.WriteFiles(r.Dir)
			if err != nil {
				return nil, err
			}
			resp.Files = files
		}
		return resp, nil
	})
}

// --- session lookup ---

type sessionReq struct {
	SessionID string `json:"session_id"`
}

func (c *Capturer) registerSessionTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "longshot_session",
		Description: "Look up a past capture session and its artifact metadata from the store.",
		InputSchema: inputSchema(map[string]any{
			"session_id": map[string]any{"type": "string", "description": "Session id from longshot_capture"},
		}, []string{"session_id"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *sessionReq) (any, error) {
		if c.st == nil {
			return nil, errors.New("persistence is not configured")
		}
		sess, err := c.st.GetSession(ctx, r.SessionID)
		if err != nil {
			return nil, err
		}
		arts, err := c.st.ListArtifacts(ctx, r.SessionID)
		if err != nil {
			return nil, err
		}
		return struct {
			Session   *store.Session    `json:"session"`
			Artifacts []*store.Artifact `json:"artifacts"`
		}{sess, arts}, nil
	})
}
