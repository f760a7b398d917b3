package liker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/feedpilot/channel"
	"github.com/hazyhaar/feedpilot/kit"
	"github.com/hazyhaar/feedpilot/liker/internal/settings"
)

// RegisterMCP registers the liker tools on an MCP server.
func (s *Supervisor) RegisterMCP(srv *mcp.Server) {
	s.registerStatusTool(srv)
	s.registerSetEnabledTool(srv)
	s.registerUpdateSettingsTool(srv)
	s.registerPingTool(srv)
	s.registerRecentActionsTool(srv)
}

// addTool registers endpoint with panic recovery and call logging.
func (s *Supervisor) addTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode kit.MCPDecoder) {
	wrap := kit.Chain(kit.Recovery(s.logger), kit.Logging(s.logger, tool.Name))
	kit.RegisterMCPTool(srv, tool, wrap(endpoint), decode)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// --- status ---

func (s *Supervisor) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "liker_status",
		Description: "Current settings, today's counters, session and engine state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Status(ctx)
	}
	s.addTool(srv, tool, endpoint, kit.NoArgs)
}

// --- set enabled ---

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Supervisor) registerSetEnabledTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "liker_set_enabled",
		Description: "Turn automatic engagement on or off.",
		InputSchema: inputSchema(map[string]any{
			"enabled": map[string]any{"type": "boolean", "description": "true to start, false to stop"},
		}, []string{"enabled"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*setEnabledRequest)
		return s.UpdateSettings(ctx, settings.Patch{Enabled: r.Enabled})
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r setEnabledRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Enabled == nil {
			return nil, errors.New("enabled is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}
	s.addTool(srv, tool, endpoint, decode)
}

// --- update settings ---

func (s *Supervisor) registerUpdateSettingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "liker_update_settings",
		Description: "Change any of the engine settings. Omitted fields keep their value.",
		InputSchema: inputSchema(map[string]any{
			"enabled":               map[string]any{"type": "boolean"},
			"actionProbability":     map[string]any{"type": "integer", "minimum": 0, "maximum": 100, "description": "Chance in percent to act on an eligible item"},
			"smartFilteringEnabled": map[string]any{"type": "boolean", "description": "Skip authors acted on in the last 30 minutes"},
			"speedProfile":          map[string]any{"type": "string", "enum": []any{"conservative", "normal", "active"}},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.UpdateSettings(ctx, *req.(*settings.Patch))
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p settings.Patch
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}
	s.addTool(srv, tool, endpoint, decode)
}

// --- ping ---

func (s *Supervisor) registerPingTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "liker_ping",
		Description: "Ping the running engine and report whether its page context is valid.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		resp, err := s.router.Call(ctx, channel.NewMessage(ActionPing, nil))
		if err != nil {
			return nil, err
		}
		return json.RawMessage(resp), nil
	}
	s.addTool(srv, tool, endpoint, kit.NoArgs)
}

// --- recent actions ---

type recentActionsRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Supervisor) registerRecentActionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "liker_recent_actions",
		Description: "List the most recent actions the engine performed, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max entries (default 50)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*recentActionsRequest)
		entries, err := s.RecentActions(ctx, min(r.Limit, 500))
		if err != nil {
			return nil, err
		}
		return map[string]any{"actions": entries}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r recentActionsRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}
	s.addTool(srv, tool, endpoint, decode)
}
