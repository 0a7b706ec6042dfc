package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/vampirenirmal/framesmith/internal/completion"
)

// Kind is what a request produces.
type Kind string

const (
	KindStartFrame      Kind = "start-frame"
	KindEndFrame        Kind = "end-frame"
	KindSceneVideo      Kind = "scene-video"
	KindTransitionVideo Kind = "transition-video"
	KindIdentityImage   Kind = "identity-image"
)

// IsVideo reports whether the request goes to the video endpoint.
func (k Kind) IsVideo() bool {
	return k == KindSceneVideo || k == KindTransitionVideo
}

// State is the lifecycle position of a request.
type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

var (
	// ErrSkipped marks a request that never ran because an input failed or
	// scheduling was stopped.
	ErrSkipped = errors.New("request skipped")
	ErrHalted  = errors.New("scheduling halted")
	ErrStopped = errors.New("scheduler stopped")
)

// Request is one generation call and everything needed to repeat it.
type Request struct {
	ID        string   `json:"id"`
	Key       string   `json:"key"`
	Kind      Kind     `json:"kind"`
	SceneID   string   `json:"scene_id,omitempty"`
	Action    string   `json:"action"`
	Character string   `json:"character,omitempty"`
	FileURLs  []string `json:"file_urls,omitempty"`
	// RawPrompt bypasses the consistency prompt builder.
	RawPrompt bool `json:"raw_prompt,omitempty"`
}

// requestKey identifies a request across runs so a rerun can resume.
func requestKey(sceneID string, kind Kind) string {
	return sceneID + "/" + string(kind)
}

// Outcome is the final state of a request.
type Outcome struct {
	Key         string    `json:"key"`
	Kind        Kind      `json:"kind"`
	SceneID     string    `json:"scene_id,omitempty"`
	State       State     `json:"state"`
	UUID        string    `json:"uuid,omitempty"`
	MediaURL    string    `json:"media_url,omitempty"`
	Credits     int       `json:"credits,omitempty"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error,omitempty"`
	Source      string    `json:"source,omitempty"`
	CompletedAt time.Time `json:"completed_at"`

	err error
}

// OK reports a completed request with media.
func (o Outcome) OK() bool {
	return o.State == StateCompleted && o.MediaURL != ""
}

// Err returns the terminal error, if any.
func (o Outcome) Err() error {
	return o.err
}

func completedOutcome(req Request, r completion.Result, attempts int, now time.Time) Outcome {
	return Outcome{
		Key:         req.Key,
		Kind:        req.Kind,
		SceneID:     req.SceneID,
		State:       StateCompleted,
		UUID:        r.UUID,
		MediaURL:    r.MediaURL,
		Credits:     r.Credits,
		Attempts:    attempts,
		Source:      string(r.Source),
		CompletedAt: now,
	}
}

func failedOutcome(req Request, state State, attempts int, err error, now time.Time) Outcome {
	o := Outcome{
		Key:         req.Key,
		Kind:        req.Kind,
		SceneID:     req.SceneID,
		State:       state,
		Attempts:    attempts,
		CompletedAt: now,
		err:         err,
	}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// RequestError wraps the final error of a request with where it happened.
type RequestError struct {
	Key      string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s (%s) failed after %d attempt(s): %v", e.Key, e.Kind, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
