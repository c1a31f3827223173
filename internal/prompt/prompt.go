// Package prompt renders the system prompt given to the model.
package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/hal9000y/workspace-agent/internal/agent"
)

//go:embed system.tmpl
var systemTemplate string

var system = template.Must(template.New("system").Parse(systemTemplate))

// System renders the system prompt for the given tools.
func System(now time.Time, tools []agent.ToolSpec) (string, error) {
	var b strings.Builder
	err := system.Execute(&b, struct {
		Today string
		Tools []agent.ToolSpec
	}{
		Today: now.UTC().Format("Monday, 2006-01-02"),
		Tools: tools,
	})
	if err != nil {
		return "", fmt.Errorf("system.Execute failed: %w", err)
	}

	return b.String(), nil
}

// Builder returns a renderer that dates the prompt with clock at every call.
func Builder(tools []agent.ToolSpec, clock func() time.Time) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		return System(clock(), tools)
	}
}
