package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDIDRendererRenderPollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Basic key-1" {
			t.Errorf("unexpected auth header: %q", r.Header.Get("Authorization"))
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/clips":
			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode create payload: %v", err)
			}
			if payload["presenter_id"] != "presenter-1" {
				t.Errorf("presenter_id = %v", payload["presenter_id"])
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "clip-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/clips/clip-1":
			if polls.Add(1) < 2 {
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "started"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":     "done",
				"result_url": "https://clips.example/clip-1.mp4",
			})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r := NewDIDRenderer(DIDConfig{
		APIKey:        "key-1",
		BaseURL:       srv.URL,
		PresenterID:   "presenter-1",
		VoiceID:       "en-US-JennyNeural",
		RenderTimeout: 5 * time.Second,
		PollInterval:  5 * time.Millisecond,
		IdleVideoURL:  "https://clips.example/idle.mp4",
	})
	clip, err := r.Render(context.Background(), "Tell me about yourself.")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if clip.VideoURL != "https://clips.example/clip-1.mp4" {
		t.Fatalf("VideoURL = %q", clip.VideoURL)
	}
	if clip.IdleVideoURL != "https://clips.example/idle.mp4" {
		t.Fatalf("IdleVideoURL = %q", clip.IdleVideoURL)
	}
	if got := polls.Load(); got < 2 {
		t.Fatalf("polls = %d, want at least 2", got)
	}
}

func TestDIDRendererRenderTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "clip-slow"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "started"})
	}))
	defer srv.Close()

	r := NewDIDRenderer(DIDConfig{
		APIKey:        "k",
		BaseURL:       srv.URL,
		PresenterID:   "p",
		RenderTimeout: 30 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
	})
	_, err := r.Render(context.Background(), "hello")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Render() error = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("timeout should also match ErrUnavailable, got %v", err)
	}
}

func TestDIDRendererRenderPropagatesCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "clip-abandoned"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "started"})
	}))
	defer srv.Close()

	r := NewDIDRenderer(DIDConfig{
		APIKey:        "k",
		BaseURL:       srv.URL,
		PresenterID:   "p",
		RenderTimeout: 30 * time.Second,
		PollInterval:  5 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := r.Render(ctx, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Render() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) {
		t.Fatalf("caller cancellation should not look like a provider failure: %v", err)
	}
}

func TestDIDRendererRenderSurfacesProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "clip-err"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "error",
			"error":  map[string]string{"description": "presenter quota exceeded"},
		})
	}))
	defer srv.Close()

	r := NewDIDRenderer(DIDConfig{
		APIKey:        "k",
		BaseURL:       srv.URL,
		PresenterID:   "p",
		RenderTimeout: time.Second,
		PollInterval:  5 * time.Millisecond,
	})
	_, err := r.Render(context.Background(), "hello")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Render() error = %v, want ErrUnavailable", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("provider failure should not look like a timeout: %v", err)
	}
	if !strings.Contains(err.Error(), "quota") {
		t.Fatalf("error should carry provider detail: %v", err)
	}
}

func TestDIDRendererUnconfigured(t *testing.T) {
	r := NewDIDRenderer(DIDConfig{})
	if _, err := r.Render(context.Background(), "hello"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Render() error = %v, want ErrUnavailable", err)
	}
	if h := r.Health(context.Background()); h.Configured {
		t.Fatalf("Health() = %+v, want unconfigured", h)
	}
}

func TestDIDRendererHealthReadsCredits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/credits" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"remaining": 42, "total": 100})
	}))
	defer srv.Close()

	r := NewDIDRenderer(DIDConfig{APIKey: "k", BaseURL: srv.URL})
	h := r.Health(context.Background())
	if !h.Configured {
		t.Fatalf("Health() should report configured")
	}
	if h.CreditsRemaining == nil || *h.CreditsRemaining != 42 {
		t.Fatalf("CreditsRemaining = %v, want 42", h.CreditsRemaining)
	}
}

func TestDIDRendererHealthToleratesProbeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewDIDRenderer(DIDConfig{APIKey: "k", BaseURL: srv.URL})
	h := r.Health(context.Background())
	if !h.Configured || h.CreditsRemaining != nil {
		t.Fatalf("Health() = %+v, want configured with unknown credits", h)
	}
}
