package amqp

import (
	"context"
	"log/slog"
	"sync/atomic"

	"goalplanner/internal/store"
)

type advisoryPublisher interface {
	PublishAdvisory(ctx context.Context, msg *GoalAdvisoryMessage) error
}

type reconnector interface {
	Reconnect(ctx context.Context) error
}

// Publisher decouples callers from the broker: Enqueue never blocks and Run
// publishes in the background. Messages are dropped when the buffer is full.
type Publisher struct {
	client  advisoryPublisher
	queue   chan *GoalAdvisoryMessage
	dropped atomic.Int64
}

func NewPublisher(client advisoryPublisher, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{client: client, queue: make(chan *GoalAdvisoryMessage, buffer)}
}

// Enqueue reports whether the message was accepted.
func (p *Publisher) Enqueue(msg *GoalAdvisoryMessage) bool {
	select {
	case p.queue <- msg:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Notify forwards a store advisory to the broker.
func (p *Publisher) Notify(_ context.Context, a store.Advisory) {
	msg := NewGoalAdvisoryMessage(string(a.Kind), string(a.Op), a.GoalID, a.Err)
	if !a.At.IsZero() {
		msg.Timestamp = a.At.UTC()
	}
	p.Enqueue(msg)
}

func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Run publishes queued messages until ctx is done. A message that fails on a
// broken connection is dropped after the connection is restored.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-p.queue:
			err := p.client.PublishAdvisory(ctx, msg)
			if err == nil {
				continue
			}
			slog.WarnContext(ctx, "Failed to publish goal advisory", "kind", msg.Kind, "goal_id", msg.GoalID, "error", err)
			if rc, ok := p.client.(reconnector); ok && isConnectionError(err) {
				if err := rc.Reconnect(ctx); err != nil {
					return nil
				}
			}
		}
	}
}
