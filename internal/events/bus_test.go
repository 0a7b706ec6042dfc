package events

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeValidation(t *testing.T) {
	bus := New(nil)
	noop := func(context.Context, Event) error { return nil }

	tests := []struct {
		name    string
		pattern string
		handler Handler
	}{
		{"nil handler", PatternAll, nil},
		{"empty pattern", "", noop},
		{"bad regex", "([", noop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bus.Subscribe(tt.pattern, tt.handler)
			assert.Error(t, err)
		})
	}
}

func TestPublishMatchesPattern(t *testing.T) {
	bus := New(nil)
	var images, failures []string

	_, err := bus.Subscribe(PatternImages, func(_ context.Context, e Event) error {
		images = append(images, e.Type)
		return nil
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(PatternFailures, func(_ context.Context, e Event) error {
		failures = append(failures, e.Type)
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	for _, typ := range []string{TypeImageCompleted, TypeImageFailed, TypeVideoFailed, TypeAllCompleted} {
		require.NoError(t, bus.Publish(ctx, Event{Type: typ}))
	}

	assert.Equal(t, []string{TypeImageCompleted, TypeImageFailed}, images)
	assert.Equal(t, []string{TypeImageFailed, TypeVideoFailed}, failures)
	assert.Equal(t, int64(4), bus.Metrics().Published)
	assert.Equal(t, int64(4), bus.Metrics().Delivered)
}

func TestPublishFillsIDAndTimestamp(t *testing.T) {
	bus := New(nil)
	var got Event
	_, err := bus.Subscribe(PatternAll, func(_ context.Context, e Event) error {
		got = e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: TypeWebhookTest}))
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, time.UTC, got.Timestamp.Location())
}

func TestPriorityOrder(t *testing.T) {
	bus := New(nil)
	var order []int
	for _, p := range []int{0, 10, 5} {
		p := p
		_, err := bus.Subscribe(PatternAll, func(context.Context, Event) error {
			order = append(order, p)
			return nil
		}, Options{Priority: p})
		require.NoError(t, err)
	}

	require.NoError(t, bus.Publish(context.Background(), Event{Type: TypeAllCompleted}))
	assert.Equal(t, []int{10, 5, 0}, order)
}

func TestHandlerErrorsAndPanicsAreContained(t *testing.T) {
	bus := New(nil)
	_, err := bus.Subscribe(PatternAll, func(context.Context, Event) error { return errors.New("boom") })
	require.NoError(t, err)
	_, err = bus.Subscribe(PatternAll, func(context.Context, Event) error { panic("bad handler") })
	require.NoError(t, err)
	var reached bool
	_, err = bus.Subscribe(PatternAll, func(context.Context, Event) error {
		reached = true
		return nil
	}, Options{Priority: -1})
	require.NoError(t, err)

	assert.NoError(t, bus.Publish(context.Background(), Event{Type: TypeImageFailed}))
	assert.True(t, reached)
	assert.Equal(t, int64(2), bus.Metrics().Failed)
}

func TestFilter(t *testing.T) {
	bus := New(nil)
	var n int
	_, err := bus.Subscribe(PatternAll, func(context.Context, Event) error {
		n++
		return nil
	}, Options{Filter: func(e Event) bool { return e.Data["scene_id"] == "p1-s1" }})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, Event{Type: TypeImageCompleted, Data: map[string]any{"scene_id": "p1-s1"}}))
	require.NoError(t, bus.Publish(ctx, Event{Type: TypeImageCompleted, Data: map[string]any{"scene_id": "p1-s2"}}))
	assert.Equal(t, 1, n)
}

func TestAsyncDeliveryAndStop(t *testing.T) {
	bus := New(nil)
	var delivered atomic.Int32
	release := make(chan struct{})

	_, err := bus.Subscribe(PatternAll, func(context.Context, Event) error {
		<-release
		delivered.Add(1)
		return nil
	}, Options{Async: true})
	require.NoError(t, err)

	// Publish returns before the handler runs to completion.
	require.NoError(t, bus.Publish(context.Background(), Event{Type: TypeVideoCompleted}))
	assert.Equal(t, int32(0), delivered.Load())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bus.Stop()
	}()
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), delivered.Load())
	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: TypeVideoCompleted}), ErrStopped)
}

func TestAsyncSurvivesPublisherCancel(t *testing.T) {
	bus := New(nil)
	done := make(chan error, 1)
	_, err := bus.Subscribe(PatternAll, func(ctx context.Context, _ Event) error {
		time.Sleep(10 * time.Millisecond)
		done <- ctx.Err()
		return nil
	}, Options{Async: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, Event{Type: TypeAllCompleted}))
	cancel()

	assert.NoError(t, <-done)
	bus.Stop()
}

func TestUnsubscribe(t *testing.T) {
	bus := New(nil)
	var n int
	sub, err := bus.Subscribe(PatternAll, func(context.Context, Event) error {
		n++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Unsubscribe(sub.ID))
	assert.Error(t, bus.Unsubscribe(sub.ID))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: TypeAllCompleted}))
	assert.Zero(t, n)
}

func TestPatternFor(t *testing.T) {
	tests := []struct {
		name    string
		matches []string
		misses  []string
	}{
		{"", []string{TypeImageCompleted, TypeAllCompleted}, nil},
		{"all", []string{TypeVideoFailed, TypeWebhookTest}, nil},
		{"completed", []string{TypeImageCompleted, TypeVideoCompleted, TypeAllCompleted}, []string{TypeImageFailed}},
		{"failed", []string{TypeImageFailed, TypeVideoFailed}, []string{TypeVideoCompleted, TypeAllCompleted}},
		{"images", []string{TypeImageCompleted, TypeImageFailed}, []string{TypeVideoCompleted}},
		{"videos", []string{TypeVideoCompleted, TypeVideoFailed}, []string{TypeImageFailed, TypeAllCompleted}},
	}
	for _, tt := range tests {
		t.Run("selection "+tt.name, func(t *testing.T) {
			pattern, err := PatternFor(tt.name)
			require.NoError(t, err)
			re := regexp.MustCompile(pattern)
			for _, typ := range tt.matches {
				assert.True(t, re.MatchString(typ), typ)
			}
			for _, typ := range tt.misses {
				assert.False(t, re.MatchString(typ), typ)
			}
		})
	}

	_, err := PatternFor("everything")
	assert.Error(t, err)
}
