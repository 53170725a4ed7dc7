package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutSubscribers(t *testing.T) {
	b := NewBroadcaster()
	require.NotPanics(t, func() {
		b.Publish(Event{Type: EventStageStart, Stage: "analyze_transcript"})
	})
	assert.Zero(t, b.SubscriberCount())
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := NewBroadcaster()
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish(Event{Type: EventStageStart, Stage: "a"})
	b.Publish(Event{Type: EventStageComplete, Stage: "a"})

	for _, s := range []*Subscription{s1, s2} {
		first := <-s.Events()
		second := <-s.Events()
		assert.Equal(t, EventStageStart, first.Type)
		assert.Equal(t, EventStageComplete, second.Type)
		assert.False(t, first.Timestamp.IsZero())
	}
}

func TestFullQueueDropsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := MustNewMetrics(reg)
	b := NewBroadcaster(WithQueueCapacity(2), WithMetrics(metrics))

	slow := b.Subscribe()
	fast := b.Subscribe()

	b.Publish(Event{Type: EventStageStart})
	b.Publish(Event{Type: EventStageComplete})
	<-fast.Events()
	<-fast.Events()

	require.NotPanics(t, func() {
		b.Publish(Event{Type: EventWorkflowComplete})
	})

	assert.Equal(t, 1, b.SubscriberCount())
	assert.Equal(t, EventWorkflowComplete, (<-fast.Events()).Type)

	// The dropped observer still drains what it had, then sees closure.
	assert.Equal(t, EventStageStart, (<-slow.Events()).Type)
	assert.Equal(t, EventStageComplete, (<-slow.Events()).Type)
	_, err := slow.Next(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.dropped))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.published))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.delivered))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.subscribers))

	// Unsubscribing an already dropped observer is harmless.
	b.Unsubscribe(slow)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe()
	b.Unsubscribe(s)
	require.NotPanics(t, func() {
		b.Unsubscribe(s)
		s.Close()
		b.Unsubscribe(nil)
	})
	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestNextYieldsHeartbeatOnTimeout(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe(ForWorkflow("wf1"))

	ev, err := s.Next(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, EventHeartbeat, ev.Type)
	assert.Equal(t, "wf1", ev.WorkflowID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Next(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWorkflowFilter(t *testing.T) {
	b := NewBroadcaster()
	only := b.Subscribe(ForWorkflow("wf1"))
	all := b.Subscribe()

	b.Publish(Event{Type: EventStageStart, WorkflowID: "wf2"})
	b.Publish(Event{Type: EventStageStart, WorkflowID: "wf1"})

	ev, err := only.Next(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "wf1", ev.WorkflowID)
	assert.Len(t, all.Events(), 2)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBroadcaster(WithQueueCapacity(4))
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(Event{Type: EventStageStart})
			}
		}()
		go func() {
			defer wg.Done()
			s := b.Subscribe()
			for j := 0; j < 10; j++ {
				if _, err := s.Next(context.Background(), time.Millisecond); err != nil {
					return
				}
			}
			s.Close()
		}()
	}
	wg.Wait()
	b.Close()
	assert.Zero(t, b.SubscriberCount())
}
