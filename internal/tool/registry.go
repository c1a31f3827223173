// Package tool holds the mail and calendar tools, their argument schemas and
// the registry that validates and dispatches calls to them.
package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/hal9000y/workspace-agent/internal/agent"
	"github.com/hal9000y/workspace-agent/internal/metrics"
	"github.com/hal9000y/workspace-agent/internal/validate"
)

// Handler receives arguments already bound by the tool's Schema.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one named operation exposed to the model.
type Tool struct {
	Name        string
	Title       string
	Description string
	Schema      Schema
	// Destructive tools have externally visible effects and may go through the approval gate.
	Destructive bool
	Handler     Handler
}

// Func adapts a typed handler. Bound arguments are decoded into T using its json tags.
func Func[T any](fn func(ctx context.Context, in T) (any, error)) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName: "json",
			Result:  &in,
		})
		if err != nil {
			return nil, fmt.Errorf("mapstructure.NewDecoder failed: %w", err)
		}
		if err := dec.Decode(args); err != nil {
			return nil, fmt.Errorf("dec.Decode failed: %w", err)
		}

		return fn(ctx, in)
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// Registry maps tool names to tools. It is not modified after NewRegistry
// and is safe for concurrent use.
type Registry struct {
	tools   map[string]Tool
	order   []string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRegistry builds a registry from tools, rejecting duplicate names.
func NewRegistry(tools []Tool, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		tools:  make(map[string]Tool, len(tools)),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, t := range tools {
		if t.Name == "" || t.Handler == nil {
			return nil, fmt.Errorf("tool %q must have a name and a handler", t.Name)
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", t.Name)
		}
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}

	return r, nil
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}

	return out
}

// Specs describes every tool for the model.
func (r *Registry) Specs() []agent.ToolSpec {
	specs := make([]agent.ToolSpec, 0, len(r.order))
	for _, t := range r.Tools() {
		specs = append(specs, agent.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema.JSONSchema(),
		})
	}

	return specs
}

// Dispatch validates args and invokes the named tool. Errors are one of
// *UnknownToolError, *validate.Error or *ExternalServiceError.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	start := time.Now()

	res, err := r.dispatch(ctx, name, args)

	outcome := outcomeOf(err)
	r.metrics.ObserveTool(name, outcome, time.Since(start))
	if err != nil {
		r.logger.Warn("tool call failed", zap.String("tool", name), zap.String("outcome", outcome), zap.Error(err))
	} else {
		r.logger.Debug("tool call done", zap.String("tool", name), zap.Duration("took", time.Since(start)))
	}

	return res, err
}

func (r *Registry) dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	bound, err := t.Schema.Bind(args)
	if err != nil {
		return nil, err
	}

	res, err := t.Handler(ctx, bound)
	if err == nil {
		return res, nil
	}

	var (
		vErr   *validate.Error
		extErr *ExternalServiceError
	)
	if errors.As(err, &vErr) || errors.As(err, &extErr) {
		return nil, err
	}

	return nil, external(name, err)
}

func outcomeOf(err error) string {
	var (
		unknown *UnknownToolError
		vErr    *validate.Error
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &unknown):
		return "unknown_tool"
	case errors.As(err, &vErr):
		return "validation_error"
	default:
		return "external_error"
	}
}
