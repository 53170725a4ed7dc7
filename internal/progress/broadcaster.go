package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"meetflow/internal/logging"
)

// DefaultQueueCapacity bounds each observer queue unless overridden.
const DefaultQueueCapacity = 100

// ErrClosed is returned by Subscription.Next once the queue is closed and drained.
var ErrClosed = errors.New("progress subscription closed")

// Broadcaster delivers events to every registered observer without blocking
// the publisher. An observer whose queue is full loses the event and is
// removed from the registry.
type Broadcaster struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	capacity int
	logger   logging.Logger
	metrics  *Metrics
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithQueueCapacity sets the per-observer queue size.
func WithQueueCapacity(capacity int) Option {
	return func(b *Broadcaster) {
		if capacity > 0 {
			b.capacity = capacity
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(b *Broadcaster) {
		b.metrics = m
	}
}

// WithLogger sets the broadcaster logger.
func WithLogger(logger logging.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = logging.OrNop(logger)
	}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:     make(map[*Subscription]struct{}),
		capacity: DefaultQueueCapacity,
		logger:   logging.NewComponentLogger("progress"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one observer's handle.
type Subscription struct {
	ch         chan Event
	workflowID string
	owner      *Broadcaster
	closeOnce  sync.Once
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*Subscription)

// ForWorkflow limits the subscription to events of one workflow.
func ForWorkflow(workflowID string) SubscribeOption {
	return func(s *Subscription) {
		s.workflowID = workflowID
	}
}

// Subscribe registers a new observer with its own bounded queue.
func (b *Broadcaster) Subscribe(opts ...SubscribeOption) *Subscription {
	s := &Subscription{
		ch:    make(chan Event, b.capacity),
		owner: b,
	}
	for _, opt := range opts {
		opt(s)
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()

	b.metrics.setSubscribers(n)
	b.logger.Debug("Observer registered (workflow=%q, total=%d)", s.workflowID, n)
	return s
}

// Unsubscribe removes s and closes its queue. Calling it again is a no-op.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.subs[s]
	if ok {
		delete(b.subs, s)
		s.close()
	}
	n := len(b.subs)
	b.mu.Unlock()

	if ok {
		b.metrics.setSubscribers(n)
		b.logger.Debug("Observer unregistered (remaining=%d)", n)
	}
}

// Publish pushes ev to every matching observer. It never blocks.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.metrics.incPublished()

	b.mu.Lock()
	var dropped int
	for s := range b.subs {
		if s.workflowID != "" && ev.WorkflowID != "" && s.workflowID != ev.WorkflowID {
			continue
		}
		select {
		case s.ch <- ev:
			b.metrics.incDelivered()
		default:
			delete(b.subs, s)
			s.close()
			dropped++
			b.metrics.incDropped()
		}
	}
	n := len(b.subs)
	b.mu.Unlock()

	if dropped > 0 {
		b.metrics.setSubscribers(n)
		b.logger.Warn("Dropped %d slow observer(s) on %s event (workflow=%s)", dropped, ev.Type, ev.WorkflowID)
	}
}

// SubscriberCount returns the number of registered observers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unregisters every observer.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for s := range b.subs {
		delete(b.subs, s)
		s.close()
	}
	b.mu.Unlock()
	b.metrics.setSubscribers(0)
}

// Events exposes the raw queue. It is closed when the observer is removed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// WorkflowID returns the workflow filter, if any.
func (s *Subscription) WorkflowID() string {
	return s.workflowID
}

// Next waits for the next event. If none arrives within timeout it returns
// a heartbeat. Once the queue is closed and drained it returns ErrClosed.
func (s *Subscription) Next(ctx context.Context, timeout time.Duration) (Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-s.ch:
		if !ok {
			return Event{}, ErrClosed
		}
		return ev, nil
	case <-timer.C:
		return Heartbeat(s.workflowID), nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Close unsubscribes from the owning broadcaster.
func (s *Subscription) Close() {
	s.owner.Unsubscribe(s)
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}
