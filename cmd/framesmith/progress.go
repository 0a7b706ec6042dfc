package main

import (
	"context"
	"fmt"
	"io"

	"github.com/vampirenirmal/framesmith/internal/events"
)

// reportProgress prints every request outcome as it lands. The returned
// func unsubscribes.
func reportProgress(bus *events.Bus, w io.Writer) (func(), error) {
	failed, err := bus.Subscribe(events.PatternFailures, func(_ context.Context, e events.Event) error {
		fmt.Fprintln(w, field(eventString(e, "kind"), errorStyle.Render("failed"))+"  "+
			eventString(e, "key")+"  "+mutedStyle.Render(eventString(e, "error")))
		return nil
	}, events.Options{Priority: 10})
	if err != nil {
		return nil, err
	}

	completed, err := bus.Subscribe(events.PatternCompletion, func(_ context.Context, e events.Event) error {
		fmt.Fprintln(w, field(eventString(e, "kind"), okStyle.Render("completed"))+"  "+
			eventString(e, "key")+"  "+mutedStyle.Render(eventString(e, "media_url")))
		return nil
	}, events.Options{
		Filter: func(e events.Event) bool { return e.Type != events.TypeAllCompleted },
	})
	if err != nil {
		_ = bus.Unsubscribe(failed.ID)
		return nil, err
	}

	return func() {
		_ = bus.Unsubscribe(failed.ID)
		_ = bus.Unsubscribe(completed.ID)
	}, nil
}

func eventString(e events.Event, key string) string {
	if v, ok := e.Data[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
