package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

func TestPublishSyncDeliversToSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var calls atomic.Int64
	var gotTicker atomic.Value
	handler := func(ctx context.Context, event interfaces.Event) error {
		calls.Add(1)
		gotTicker.Store(event.Ticker)
		return nil
	}
	require.NoError(t, svc.Subscribe(interfaces.EventAnalysisCompleted, handler))

	err := svc.PublishSync(context.Background(), interfaces.Event{
		Type:   interfaces.EventAnalysisCompleted,
		Ticker: "NVDA",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, "NVDA", gotTicker.Load())
}

func TestWildcardSubscriberSeesEveryEvent(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var calls atomic.Int64
	require.NoError(t, svc.Subscribe(interfaces.EventAny, func(ctx context.Context, event interfaces.Event) error {
		calls.Add(1)
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, svc.PublishSync(ctx, interfaces.Event{Type: interfaces.EventAnalysisStarted}))
	require.NoError(t, svc.PublishSync(ctx, interfaces.Event{Type: interfaces.EventBatchRowCompleted}))
	require.NoError(t, svc.PublishSync(ctx, interfaces.Event{Type: interfaces.EventDeferredQueued}))

	assert.Equal(t, int64(3), calls.Load())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var calls atomic.Int64
	handler := func(ctx context.Context, event interfaces.Event) error {
		calls.Add(1)
		return nil
	}
	require.NoError(t, svc.Subscribe(interfaces.EventFragmentCompleted, handler))
	require.NoError(t, svc.Unsubscribe(interfaces.EventFragmentCompleted, handler))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventFragmentCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(0), calls.Load())
}

func TestUnsubscribeUnknownHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	err := svc.Unsubscribe(interfaces.EventAnalysisFailed, func(ctx context.Context, event interfaces.Event) error {
		return nil
	})
	assert.Error(t, err)
}

func TestPublishSyncReportsHandlerErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	require.NoError(t, svc.Subscribe(interfaces.EventAnalysisFailed, func(ctx context.Context, event interfaces.Event) error {
		return errors.New("sink unavailable")
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventAnalysisFailed, func(ctx context.Context, event interfaces.Event) error {
		return nil
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventAnalysisFailed})
	assert.Error(t, err)
}

func TestPublishStampsTimestamp(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var stamped atomic.Bool
	require.NoError(t, svc.Subscribe(interfaces.EventPrewarmCompleted, func(ctx context.Context, event interfaces.Event) error {
		stamped.Store(!event.At.IsZero())
		return nil
	}))

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventPrewarmCompleted}))
	assert.True(t, stamped.Load())
}
