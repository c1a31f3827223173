// Package agent runs the conversation loop. The model proposes tool calls,
// the toolset executes them and the loop repeats until the model answers
// without asking for more tools.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hal9000y/workspace-agent/internal/metrics"
	"github.com/hal9000y/workspace-agent/internal/validate"
)

// DefaultMaxSteps bounds the model turns of a single run.
const DefaultMaxSteps = 10

// ErrStepLimit is returned when the model keeps requesting tools after MaxSteps turns.
var ErrStepLimit = errors.New("step limit reached")

// Model produces the next assistant message for a conversation.
type Model interface {
	Generate(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error)
}

// Toolset describes and executes tools.
type Toolset interface {
	Specs() []ToolSpec
	Dispatch(ctx context.Context, name string, args map[string]any) (any, error)
}

// Store persists conversation threads. Append must store all messages or none.
type Store interface {
	Load(ctx context.Context, threadID string) ([]Message, error)
	Append(ctx context.Context, threadID string, messages []Message) error
}

// State is a state of the control loop.
type State string

const (
	StateModelTurn State = "model_turn"
	StateToolTurn  State = "tool_turn"
	StateDone      State = "done"
)

// Result is the outcome of one user turn.
type Result struct {
	Answer string
	// Steps counts model turns.
	Steps int
	Trace []State
	// Messages is the whole conversation state after the turn.
	Messages []Message
}

type Option func(*Agent)

func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

// WithSystemPrompt sets the system message written at the start of new threads.
func WithSystemPrompt(prompt string) Option {
	return WithSystemPromptFunc(func(context.Context) (string, error) { return prompt, nil })
}

// WithSystemPromptFunc renders the system message each time a new thread starts.
func WithSystemPromptFunc(fn func(ctx context.Context) (string, error)) Option {
	return func(a *Agent) { a.systemPrompt = fn }
}

// WithParallelTools toggles concurrent execution of the calls in one tool turn.
func WithParallelTools(on bool) Option {
	return func(a *Agent) { a.parallel = on }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

type threadLock struct {
	sem  chan struct{}
	refs int
}

// Agent is safe for concurrent use. Runs of the same thread are serialised.
type Agent struct {
	model Model
	tools Toolset
	store Store

	maxSteps     int
	systemPrompt func(ctx context.Context) (string, error)
	parallel     bool
	logger       *zap.Logger
	metrics      *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*threadLock
}

func New(model Model, tools Toolset, store Store, opts ...Option) *Agent {
	a := &Agent{
		model:    model,
		tools:    tools,
		store:    store,
		maxSteps: DefaultMaxSteps,
		parallel: true,
		logger:   zap.NewNop(),
		locks:    make(map[string]*threadLock),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Run answers query within thread threadID. The messages of the turn are
// persisted only when the run reaches Done.
func (a *Agent) Run(ctx context.Context, threadID, query string) (*Result, error) {
	if threadID == "" {
		return nil, errors.New("thread id is required")
	}

	unlock, err := a.acquire(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	history, err := a.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("store.Load failed: %w", err)
	}

	var turn []Message
	if len(history) == 0 && a.systemPrompt != nil {
		system, err := a.systemPrompt(ctx)
		if err != nil {
			return nil, fmt.Errorf("system prompt failed: %w", err)
		}
		if system != "" {
			turn = append(turn, SystemMessage(system))
		}
	}
	turn = append(turn, UserMessage(query))

	logger := a.logger.With(zap.String("thread", threadID))

	res, err := a.loop(ctx, logger, history, turn)
	if err != nil {
		a.metrics.ObserveRun(runOutcome(err), res.Steps)
		logger.Warn("agent run failed", zap.Int("steps", res.Steps), zap.Error(err))
		return nil, err
	}

	if err := a.store.Append(ctx, threadID, res.Messages[len(history):]); err != nil {
		a.metrics.ObserveRun("error", res.Steps)
		return nil, fmt.Errorf("store.Append failed: %w", err)
	}

	a.metrics.ObserveRun("ok", res.Steps)
	logger.Info("agent run done", zap.Int("steps", res.Steps), zap.Int("messages", len(res.Messages)))

	return res, nil
}

func (a *Agent) loop(ctx context.Context, logger *zap.Logger, history, turn []Message) (*Result, error) {
	res := &Result{}

	conv := make([]Message, 0, len(history)+len(turn))
	conv = append(conv, history...)
	conv = append(conv, turn...)

	specs := a.tools.Specs()
	state := StateModelTurn

	for {
		res.Trace = append(res.Trace, state)

		switch state {
		case StateModelTurn:
			if res.Steps >= a.maxSteps {
				return res, fmt.Errorf("%w after %d model turns", ErrStepLimit, res.Steps)
			}
			res.Steps++

			reply, err := a.model.Generate(ctx, conv, specs)
			if err != nil {
				return res, fmt.Errorf("model.Generate failed: %w", err)
			}
			reply.Role = RoleAssistant
			for i := range reply.ToolCalls {
				if reply.ToolCalls[i].ID == "" {
					reply.ToolCalls[i].ID = uuid.NewString()
				}
			}
			conv = append(conv, reply)

			if len(reply.ToolCalls) == 0 {
				res.Answer = reply.Content
				state = StateDone
			} else {
				state = StateToolTurn
			}

		case StateToolTurn:
			calls := conv[len(conv)-1].ToolCalls
			logger.Debug("tool turn", zap.Int("step", res.Steps), zap.Int("calls", len(calls)))

			results, err := a.runTools(ctx, calls)
			if err != nil {
				return res, err
			}
			conv = append(conv, results...)
			state = StateModelTurn

		case StateDone:
			res.Messages = conv
			return res, nil
		}
	}
}

// runTools executes calls and returns one tool message per call in request order.
func (a *Agent) runTools(ctx context.Context, calls []ToolCall) ([]Message, error) {
	out := make([]Message, len(calls))

	if a.parallel && len(calls) > 1 {
		var g errgroup.Group
		for i, call := range calls {
			g.Go(func() error {
				out[i] = a.runTool(ctx, call)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, call := range calls {
			if ctx.Err() != nil {
				break
			}
			out[i] = a.runTool(ctx, call)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tool turn cancelled: %w", err)
	}

	return out, nil
}

func (a *Agent) runTool(ctx context.Context, call ToolCall) Message {
	msg := Message{Role: RoleTool, ToolCallID: call.ID, ToolName: call.Name}

	res, err := a.tools.Dispatch(ctx, call.Name, call.Args)
	if err != nil {
		msg.IsError = true
		msg.Content = errorContent(err)
		return msg
	}

	content, err := resultContent(res)
	if err != nil {
		msg.IsError = true
		msg.Content = errorContent(err)
		return msg
	}
	msg.Content = content

	return msg
}

type toolError struct {
	Error string `json:"error"`
	Type  string `json:"type"`
	Field string `json:"field,omitempty"`
}

func errorContent(err error) string {
	te := toolError{Error: err.Error(), Type: "tool_error"}

	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) {
		te.Type = typed.ErrorType()
	}
	var vErr *validate.Error
	if errors.As(err, &vErr) {
		te.Field = vErr.Field
	}

	b, _ := json.Marshal(te)
	return string(b)
}

func resultContent(res any) (string, error) {
	switch v := res.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	}

	b, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("json.Marshal failed: %w", err)
	}

	return string(b), nil
}

func runOutcome(err error) string {
	switch {
	case errors.Is(err, ErrStepLimit):
		return "step_limit"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// acquire waits for exclusive use of threadID. Lock entries are reference
// counted and dropped once nobody holds or waits for them.
func (a *Agent) acquire(ctx context.Context, threadID string) (func(), error) {
	a.mu.Lock()
	l, ok := a.locks[threadID]
	if !ok {
		l = &threadLock{sem: make(chan struct{}, 1)}
		a.locks[threadID] = l
	}
	l.refs++
	a.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			a.release(threadID)
		}, nil
	case <-ctx.Done():
		a.release(threadID)
		return nil, fmt.Errorf("waiting for thread %q failed: %w", threadID, ctx.Err())
	}
}

func (a *Agent) release(threadID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[threadID]
	if !ok {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(a.locks, threadID)
	}
}
