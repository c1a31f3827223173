// Package gemini implements agent.Model on top of the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/hal9000y/workspace-agent/internal/agent"
)

const (
	DefaultModel = "gemini-2.5-flash"

	roleUser  = "user"
	roleModel = "model"
)

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Option func(*Model)

func WithModel(name string) Option {
	return func(m *Model) {
		if name != "" {
			m.name = name
		}
	}
}

func WithTemperature(t float32) Option {
	return func(m *Model) { m.temperature = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// Model is an agent.Model backed by a Gemini chat model.
type Model struct {
	gen         generator
	name        string
	temperature float32
	logger      *zap.Logger
}

// New creates a Gemini API client authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient failed: %w", err)
	}

	return newModel(client.Models, opts...), nil
}

func newModel(gen generator, opts ...Option) *Model {
	m := &Model{
		gen:    gen,
		name:   DefaultModel,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Generate sends the conversation and returns the model's reply.
func (m *Model) Generate(ctx context.Context, messages []agent.Message, tools []agent.ToolSpec) (agent.Message, error) {
	system, contents := convertMessages(messages)

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(m.temperature),
		Tools:       convertTools(tools),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := m.gen.GenerateContent(ctx, m.name, contents, config)
	if err != nil {
		return agent.Message{}, fmt.Errorf("GenerateContent failed: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return agent.Message{}, &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return agent.Message{}, errors.New("model returned no candidates")
	}

	reply := convertReply(resp.Candidates[0].Content.Parts)
	m.logger.Debug("model reply",
		zap.String("model", m.name),
		zap.Int("tool_calls", len(reply.ToolCalls)),
		zap.Int("text_len", len(reply.Content)),
	)

	return reply, nil
}

// BlockedError is returned when the prompt was refused by safety filters.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("request blocked: %s", e.Reason)
}

// convertMessages folds system messages into one instruction and groups
// consecutive tool results into a single user turn.
func convertMessages(messages []agent.Message) (string, []*genai.Content) {
	var (
		system   []string
		contents []*genai.Content
		prev     agent.Role
	)

	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleSystem:
			system = append(system, msg.Content)

		case agent.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  roleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})

		case agent.RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Args,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: roleModel, Parts: parts})
			}

		case agent.RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     msg.ToolName,
				Response: toolResponse(msg),
			}}
			if prev == agent.RoleTool && len(contents) > 0 {
				last := contents[len(contents)-1]
				last.Parts = append(last.Parts, part)
			} else {
				contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{part}})
			}
		}

		prev = msg.Role
	}

	return strings.Join(system, "\n\n"), contents
}

// toolResponse wraps the tool message content under "output" or "error".
func toolResponse(msg agent.Message) map[string]any {
	key := "output"
	if msg.IsError {
		key = "error"
	}

	var v any
	if err := json.Unmarshal([]byte(msg.Content), &v); err != nil {
		v = msg.Content
	}

	return map[string]any{key: v}
}

func convertReply(parts []*genai.Part) agent.Message {
	reply := agent.Message{Role: agent.RoleAssistant}

	var text strings.Builder
	for _, part := range parts {
		if part == nil {
			continue
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if fc := part.FunctionCall; fc != nil {
			id := fc.ID
			if id == "" {
				id = uuid.NewString()
			}
			reply.ToolCalls = append(reply.ToolCalls, agent.ToolCall{ID: id, Name: fc.Name, Args: fc.Args})
		}
	}
	reply.Content = text.String()

	return reply
}
