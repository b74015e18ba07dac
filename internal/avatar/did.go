package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type DIDConfig struct {
	APIKey        string
	BaseURL       string
	PresenterID   string
	VoiceID       string
	RenderTimeout time.Duration
	PollInterval  time.Duration
	IdleVideoURL  string
	HTTPClient    *http.Client
}

// DIDRenderer generates talking-head clips with the D-ID clips API: create a
// clip for a hosted presenter, then poll until the video is ready. Rendering
// takes tens of seconds, so the whole operation runs under one hard deadline.
// It performs no retries; retrying a render is the caller's decision.
type DIDRenderer struct {
	cfg    DIDConfig
	client *http.Client
}

func NewDIDRenderer(cfg DIDConfig) *DIDRenderer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.d-id.com"
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 90 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &DIDRenderer{cfg: cfg, client: client}
}

func (r *DIDRenderer) configured() bool {
	return strings.TrimSpace(r.cfg.APIKey) != ""
}

func (r *DIDRenderer) Render(ctx context.Context, text string) (Clip, error) {
	if !r.configured() {
		return Clip{}, fmt.Errorf("%w: no API key", ErrUnavailable)
	}

	start := time.Now()
	renderCtx, cancel := context.WithTimeout(ctx, r.cfg.RenderTimeout)
	defer cancel()

	clipID, err := r.createClip(renderCtx, text)
	if err != nil {
		return Clip{}, r.classify(renderCtx, err)
	}

	for {
		select {
		case <-renderCtx.Done():
			if renderCtx.Err() == context.Canceled {
				return Clip{}, renderCtx.Err()
			}
			return Clip{}, fmt.Errorf("%w after %s", ErrTimeout, r.cfg.RenderTimeout)
		case <-time.After(r.cfg.PollInterval):
		}

		videoURL, done, err := r.pollClip(renderCtx, clipID)
		if err != nil {
			return Clip{}, r.classify(renderCtx, err)
		}
		if !done {
			continue
		}
		return Clip{
			VideoURL:     videoURL,
			IdleVideoURL: r.cfg.IdleVideoURL,
			LatencyMS:    time.Since(start).Milliseconds(),
		}, nil
	}
}

// Health is non-blocking best-effort: a failing credits probe reports an
// unknown balance rather than an error.
func (r *DIDRenderer) Health(ctx context.Context) Health {
	if !r.configured() {
		return Health{Configured: false}
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet,
		strings.TrimRight(r.cfg.BaseURL, "/")+"/credits", nil)
	if err != nil {
		return Health{Configured: true}
	}
	req.Header.Set("Authorization", "Basic "+r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return Health{Configured: true}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Health{Configured: true}
	}

	var parsed struct {
		Remaining *int `json:"remaining"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Health{Configured: true}
	}
	return Health{Configured: true, CreditsRemaining: parsed.Remaining}
}

func (r *DIDRenderer) createClip(ctx context.Context, text string) (string, error) {
	payload := map[string]any{
		"presenter_id": r.cfg.PresenterID,
		"script": map[string]any{
			"type":  "text",
			"input": text,
			"provider": map[string]any{
				"type":     "microsoft",
				"voice_id": r.cfg.VoiceID,
			},
		},
		"config": map[string]any{
			"result_format": "mp4",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(r.cfg.BaseURL, "/")+"/clips", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create clip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("create clip status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode create clip response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("create clip: missing clip id")
	}
	return parsed.ID, nil
}

func (r *DIDRenderer) pollClip(ctx context.Context, clipID string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(r.cfg.BaseURL, "/")+"/clips/"+url.PathEscape(clipID), nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Basic "+r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("poll clip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("poll clip status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed struct {
		Status    string `json:"status"`
		ResultURL string `json:"result_url"`
		Error     *struct {
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("decode poll response: %w", err)
	}

	switch parsed.Status {
	case "done":
		if parsed.ResultURL == "" {
			return "", false, fmt.Errorf("clip done without result url")
		}
		return parsed.ResultURL, true, nil
	case "error":
		detail := "unknown provider error"
		if parsed.Error != nil && parsed.Error.Description != "" {
			detail = parsed.Error.Description
		}
		return "", false, fmt.Errorf("clip failed: %s", detail)
	default:
		// created, started, pending: keep polling.
		return "", false, nil
	}
}

// classify maps a failure to the timeout sentinel when the render deadline
// elapsed, otherwise to the generic unavailable sentinel. Caller cancellation
// passes through untouched so it is never mistaken for a provider failure.
func (r *DIDRenderer) classify(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.Canceled:
		return ctx.Err()
	case context.DeadlineExceeded:
		return fmt.Errorf("%w after %s", ErrTimeout, r.cfg.RenderTimeout)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
