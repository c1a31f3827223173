// Package approval asks a human before destructive tool actions run.
package approval

import (
	"context"
)

// Outcome is one of Accepted, Declined or Cancelled.
type Outcome interface {
	outcome()
	String() string
}

// Accepted means the user answered the form. Only Confirmed authorizes the action.
type Accepted struct {
	Confirmed bool
	Notes     string
}

// Declined means the user refused to answer.
type Declined struct{}

// Cancelled means the request was dismissed, timed out or could not be delivered.
type Cancelled struct {
	Reason string
}

func (Accepted) outcome()  {}
func (Declined) outcome()  {}
func (Cancelled) outcome() {}

func (a Accepted) String() string {
	if a.Confirmed {
		return "accepted"
	}
	return "unconfirmed"
}

func (Declined) String() string  { return "declined" }
func (Cancelled) String() string { return "cancelled" }

// Answer actions, named as in MCP elicitation.
const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
	ActionCancel  = "cancel"
)

// FromAction maps a front end answer to an Outcome. Unknown actions cancel.
func FromAction(action string, confirmed bool, notes string) Outcome {
	switch action {
	case ActionAccept:
		return Accepted{Confirmed: confirmed, Notes: notes}
	case ActionDecline:
		return Declined{}
	default:
		return Cancelled{Reason: "dismissed by user"}
	}
}

// Request describes the action awaiting approval.
type Request struct {
	ID      string
	Tool    string
	Message string

	// Rejection is reported to the caller for every outcome that skips the action.
	Rejection string
}

// Asker delivers a Request to a human and waits for the answer.
type Asker interface {
	Ask(ctx context.Context, req Request) (Outcome, error)
}

// AskerFunc adapts a function to Asker.
type AskerFunc func(ctx context.Context, req Request) (Outcome, error)

func (f AskerFunc) Ask(ctx context.Context, req Request) (Outcome, error) {
	return f(ctx, req)
}

type askerKey struct{}

// WithAsker returns a context whose approvals are resolved by a.
func WithAsker(ctx context.Context, a Asker) context.Context {
	return context.WithValue(ctx, askerKey{}, a)
}

// AskerFrom returns the Asker stored by WithAsker, or nil.
func AskerFrom(ctx context.Context) Asker {
	a, _ := ctx.Value(askerKey{}).(Asker)
	return a
}
