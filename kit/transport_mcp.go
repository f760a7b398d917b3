package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecodeResult is what a tool's decode step produces: the typed request
// and, optionally, values to add to the call context.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// MCPDecoder turns raw tool arguments into a request.
type MCPDecoder func(*mcp.CallToolRequest) (*MCPDecodeResult, error)

// RegisterMCPTool exposes endpoint as an MCP tool. The response is sent as
// one JSON text block. Decode and endpoint failures are reported as tool
// errors so the client sees the message; the session stays up.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dec, err := decode(req)
		if err != nil {
			return toolError("invalid arguments: %v", err), nil
		}
		ctx = WithTransport(ctx, "mcp")
		if dec.EnrichCtx != nil {
			ctx = dec.EnrichCtx(ctx)
		}

		out, err := endpoint(ctx, dec.Request)
		if err != nil {
			return toolError("%v", err), nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return toolError("encode result: %v", err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(fmt.Errorf(format, args...))
	return &res
}

// NoArgs decodes tools that take no input.
func NoArgs(*mcp.CallToolRequest) (*MCPDecodeResult, error) {
	return &MCPDecodeResult{}, nil
}
