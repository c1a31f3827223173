package approval

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type elicitor interface {
	Elicit(ctx context.Context, params *mcp.ElicitParams) (*mcp.ElicitResult, error)
}

// confirmSchema is the form shown to the user: a confirmation flag and free notes.
var confirmSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"confirm": map[string]any{
			"type":        "boolean",
			"title":       "Confirm",
			"description": "Confirm the operation",
		},
		"notes": map[string]any{
			"type":        "string",
			"title":       "Notes",
			"description": "Optional notes for the assistant",
		},
	},
	"required": []string{"confirm"},
}

// Elicitor asks through MCP elicitation on the client session of a tool call.
type Elicitor struct {
	session elicitor
}

// NewElicitor wraps an MCP server session, usually CallToolRequest.Session.
func NewElicitor(session elicitor) *Elicitor {
	return &Elicitor{session: session}
}

func (e *Elicitor) Ask(ctx context.Context, req Request) (Outcome, error) {
	res, err := e.session.Elicit(ctx, &mcp.ElicitParams{
		Message:         req.Message,
		RequestedSchema: confirmSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("session.Elicit failed: %w", err)
	}

	return outcomeFromElicit(res), nil
}

func outcomeFromElicit(res *mcp.ElicitResult) Outcome {
	confirmed, _ := res.Content["confirm"].(bool)
	notes, _ := res.Content["notes"].(string)

	return FromAction(res.Action, confirmed, notes)
}
