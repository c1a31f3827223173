package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Broker routes answers that arrive asynchronously, e.g. over a websocket,
// to the Ask call waiting for them.
type Broker struct {
	mu      sync.Mutex
	pending map[string]chan Outcome
	notify  func(ctx context.Context, req Request) error
}

// NewBroker creates a Broker that announces each request through notify.
func NewBroker(notify func(ctx context.Context, req Request) error) *Broker {
	return &Broker{
		pending: make(map[string]chan Outcome),
		notify:  notify,
	}
}

// Ask publishes req and blocks until Decide is called for its ID or ctx is done.
func (b *Broker) Ask(ctx context.Context, req Request) (Outcome, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ch := make(chan Outcome, 1)

	b.mu.Lock()
	b.pending[req.ID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	if err := b.notify(ctx, req); err != nil {
		return nil, fmt.Errorf("notify failed: %w", err)
	}

	select {
	case out := <-ch:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decide delivers out to the pending request id.
func (b *Broker) Decide(id string, out Outcome) error {
	b.mu.Lock()
	ch, ok := b.pending[id]
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending approval %q", id)
	}

	select {
	case ch <- out:
	default:
	}

	return nil
}

// CancelAll resolves every pending request as Cancelled.
func (b *Broker) CancelAll(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.pending {
		select {
		case ch <- Cancelled{Reason: reason}:
		default:
		}
	}
}

// Pending returns the number of requests awaiting an answer.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}
