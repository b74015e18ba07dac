package avatar

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable reports that the rendering provider cannot serve the
	// request: not configured, auth failure or quota exhausted. Callers fall
	// back to audio-only delivery.
	ErrUnavailable = errors.New("avatar rendering unavailable")

	// ErrTimeout reports that rendering exceeded its hard deadline. It
	// matches ErrUnavailable so callers can treat both the same way.
	ErrTimeout = fmt.Errorf("render timed out: %w", ErrUnavailable)
)

// Clip is one finished talking-head rendering.
type Clip struct {
	VideoURL     string
	IdleVideoURL string
	LatencyMS    int64
}

// Health is a best-effort snapshot of provider availability. A nil
// CreditsRemaining means the credit balance is unknown.
type Health struct {
	Configured       bool `json:"configured"`
	CreditsRemaining *int `json:"credits_remaining,omitempty"`
}

type Renderer interface {
	// Render produces a talking-head clip for the given text as a single
	// blocking unit of work bounded by the renderer's hard timeout.
	Render(ctx context.Context, text string) (Clip, error)
	Health(ctx context.Context) Health
}
