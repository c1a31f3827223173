package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/workspace-agent/internal/approval"
)

type googleSvc interface {
	mailSvc
	calendarSvc
}

// NewWorkspace builds the registry of every mail and calendar tool.
func NewWorkspace(svc googleSvc, fetcher detailFetcher, gate approvalGate, opts ...RegistryOption) (*Registry, error) {
	tools := NewMail(svc, fetcher, gate).Tools()
	tools = append(tools, NewCalendar(svc).Tools()...)

	return NewRegistry(tools, opts...)
}

// NewServer exposes the registry as an MCP server. Approvals are asked
// through elicitation on the calling client session.
func NewServer(reg *Registry, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "workspace-agent", Version: version}, nil)

	for _, t := range reg.Tools() {
		destructive := t.Destructive
		server.AddTool(&mcp.Tool{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			InputSchema: t.Schema.JSONSchema(),
			Annotations: &mcp.ToolAnnotations{
				Title:           t.Title,
				DestructiveHint: &destructive,
			},
		}, reg.mcpHandler(t.Name))
	}

	return server
}

func (r *Registry) mcpHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Errorf("arguments must be a JSON object: %w", err)), nil
			}
		}

		if req.Session != nil {
			ctx = approval.WithAsker(ctx, approval.NewElicitor(req.Session))
		}

		res, err := r.Dispatch(ctx, name, args)
		if err != nil {
			return errorResult(err), nil
		}

		raw, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("json.Marshal failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
