package synth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func timestampedBody(t *testing.T, audio string, chars []string, starts, ends []float64) []byte {
	t.Helper()
	payload := map[string]any{
		"audio_base64": base64.StdEncoding.EncodeToString([]byte(audio)),
	}
	if chars != nil {
		payload["alignment"] = map[string]any{
			"characters":                    chars,
			"character_start_times_seconds": starts,
			"character_end_times_seconds":   ends,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func TestElevenLabsSynthesizeWithAlignment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key-1" {
			t.Errorf("missing api key header")
		}
		if !strings.Contains(r.URL.Path, "/v1/text-to-speech/voice-1/with-timestamps") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		chars := []string{"h", "i", " ", "y", "o", "u"}
		starts := []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5}
		ends := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(timestampedBody(t, "fake-mp3", chars, starts, ends))
	}))
	defer srv.Close()

	s := NewElevenLabsSynthesizer(ElevenLabsConfig{
		APIKey:  "key-1",
		BaseURL: srv.URL,
		VoiceID: "voice-1",
	})
	res, err := s.Synthesize(context.Background(), "hi you")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(res.Audio) != "fake-mp3" {
		t.Fatalf("audio = %q, want decoded payload", res.Audio)
	}
	if res.Duration != 0.6 {
		t.Fatalf("Duration = %v, want 0.6", res.Duration)
	}
	if len(res.Timings) != 2 {
		t.Fatalf("len(Timings) = %d, want 2", len(res.Timings))
	}
	if res.Timings[0].Word != "hi" || res.Timings[1].Word != "you" {
		t.Fatalf("unexpected words: %+v", res.Timings)
	}
	if res.Timings[0].Start != 0 || res.Timings[1].Start != res.Timings[0].End || res.Timings[1].End != 0.6 {
		t.Fatalf("timings should contiguously cover the audio: %+v", res.Timings)
	}
}

func TestElevenLabsSynthesizeEstimatesWithoutAlignment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(timestampedBody(t, strings.Repeat("x", 32000), nil, nil, nil))
	}))
	defer srv.Close()

	s := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL, VoiceID: "v"})
	res, err := s.Synthesize(context.Background(), "one two")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Duration != 2.0 {
		t.Fatalf("Duration = %v, want 2.0 (size-derived)", res.Duration)
	}
	if len(res.Timings) != 2 {
		t.Fatalf("len(Timings) = %d, want estimated timings", len(res.Timings))
	}
}

func TestElevenLabsSynthesizeRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(timestampedBody(t, "ok", nil, nil, nil))
	}))
	defer srv.Close()

	s := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL, VoiceID: "v", Timeout: time.Second})
	if _, err := s.Synthesize(context.Background(), "hello there"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("provider calls = %d, want 2", got)
	}
}

func TestElevenLabsSynthesizeDoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "bad", BaseURL: srv.URL, VoiceID: "v"})
	_, err := s.Synthesize(context.Background(), "hello")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Synthesize() error = %v, want ErrUnavailable", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
}
