package approval

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hal9000y/workspace-agent/internal/metrics"
)

// DefaultTimeout bounds how long the gate waits for an answer.
const DefaultTimeout = 5 * time.Minute

// DefaultRejection is reported when a Request sets no Rejection message.
const DefaultRejection = "Action not performed."

// Rejected is returned instead of running the action.
type Rejected struct {
	Outcome Outcome `json:"-"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Notes   string  `json:"notes,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// Option configures a Gate.
type Option func(*Gate)

func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// Gate runs an action only after an explicit confirmation.
type Gate struct {
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewGate(opts ...Option) *Gate {
	g := &Gate{
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

type answer struct {
	out Outcome
	err error
}

// Resolve asks the context's Asker about req. Missing askers, asker errors
// and timeouts all resolve to Cancelled. The timeout holds even for askers
// that do not watch their context; a late answer is dropped.
func (g *Gate) Resolve(ctx context.Context, req Request) Outcome {
	asker := AskerFrom(ctx)
	if asker == nil {
		return Cancelled{Reason: "no approval channel available"}
	}

	askCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan answer, 1)
	go func() {
		out, err := asker.Ask(askCtx, req)
		done <- answer{out: out, err: err}
	}()

	var out Outcome
	var err error
	select {
	case a := <-done:
		out, err = a.out, a.err
	case <-askCtx.Done():
		err = askCtx.Err()
	}

	switch {
	case errors.Is(askCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return Cancelled{Reason: "approval timed out"}
	case err != nil:
		g.logger.Warn("approval request failed", zap.String("tool", req.Tool), zap.Error(err))
		return Cancelled{Reason: err.Error()}
	case out == nil:
		return Cancelled{Reason: "no answer"}
	}

	return out
}

// Guard runs action exactly once when the outcome is a confirmed Accepted.
// Otherwise action is not called and a Rejected describing the outcome is
// returned. The error is the action's own.
func (g *Gate) Guard(ctx context.Context, req Request, action func(context.Context) error) (*Rejected, error) {
	out := g.Resolve(ctx, req)
	g.metrics.ObserveApproval(out.String())
	g.logger.Info("approval resolved", zap.String("tool", req.Tool), zap.Stringer("outcome", out))

	if a, ok := out.(Accepted); ok && a.Confirmed {
		return nil, action(ctx)
	}

	rej := &Rejected{Outcome: out, Status: out.String(), Message: req.Rejection}
	if rej.Message == "" {
		rej.Message = DefaultRejection
	}
	switch o := out.(type) {
	case Accepted:
		rej.Notes = o.Notes
	case Cancelled:
		rej.Reason = o.Reason
	}

	return rej, nil
}
