package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vampirenirmal/framesmith/internal/events"
)

func TestDrainOnSignal(t *testing.T) {
	t.Run("first signal drains, second aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigs := make(chan os.Signal, 2)
		var drained, aborted atomic.Int32
		finished := make(chan struct{})

		go func() {
			drainOnSignal(ctx, sigs, func() { drained.Add(1) }, func() { aborted.Add(1) })
			close(finished)
		}()

		sigs <- os.Interrupt
		assert.Eventually(t, func() bool { return drained.Load() == 1 }, time.Second, 5*time.Millisecond)
		assert.Zero(t, aborted.Load())

		sigs <- os.Interrupt
		assert.Eventually(t, func() bool { return aborted.Load() == 1 }, time.Second, 5*time.Millisecond)
		<-finished
		assert.Equal(t, int32(1), drained.Load())
	})

	t.Run("returns when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		finished := make(chan struct{})
		go func() {
			drainOnSignal(ctx, make(chan os.Signal), func() { t.Error("unexpected drain") }, func() { t.Error("unexpected abort") })
			close(finished)
		}()
		cancel()
		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("drainOnSignal did not return")
		}
	})
}

func TestReportProgress(t *testing.T) {
	bus := events.New(nil)
	defer bus.Stop()
	var out bytes.Buffer

	unsubscribe, err := reportProgress(bus, &out)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, events.Event{Type: events.TypeImageCompleted, Data: map[string]any{
		"kind": "start-frame", "key": "p1-s1/start-frame", "media_url": "https://cdn.test/img-1.png",
	}}))
	require.NoError(t, bus.Publish(ctx, events.Event{Type: events.TypeVideoFailed, Data: map[string]any{
		"kind": "scene-video", "key": "p1-s1/scene-video", "error": "content blocked",
	}}))
	require.NoError(t, bus.Publish(ctx, events.Event{Type: events.TypeAllCompleted}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "p1-s1/start-frame")
	assert.Contains(t, lines[0], "https://cdn.test/img-1.png")
	assert.Contains(t, lines[1], "p1-s1/scene-video")
	assert.Contains(t, lines[1], "content blocked")

	unsubscribe()
	out.Reset()
	require.NoError(t, bus.Publish(ctx, events.Event{Type: events.TypeImageFailed}))
	assert.Empty(t, out.String())
}
