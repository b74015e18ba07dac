package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antoniostano/intervista/internal/reliability"
)

// The output format requested from the API and the byte rate implied by its
// 128 kbit/s bitrate. The no-alignment duration estimate divides by this rate,
// so the two must stay in sync.
const (
	elevenLabsOutputFormat   = "mp3_44100_128"
	elevenLabsBytesPerSecond = 128_000 / 8
)

type ElevenLabsConfig struct {
	APIKey     string
	BaseURL    string
	VoiceID    string
	ModelID    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ElevenLabsSynthesizer calls the with-timestamps REST endpoint so each
// utterance comes back with a character alignment for lip-sync timing.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &ElevenLabsSynthesizer{cfg: cfg, client: client}
}

func (s *ElevenLabsSynthesizer) VoiceName() string { return s.cfg.VoiceID }

// Synthesize performs at most one retry on retryable failures, then gives up.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: empty text", ErrUnavailable)
	}

	res, retryable, err := s.attempt(ctx, text)
	if err == nil {
		return res, nil
	}
	if !retryable {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case <-time.After(reliability.RetryDelay(0, 200*time.Millisecond, time.Second)):
	}

	res, _, retryErr := s.attempt(ctx, text)
	if retryErr != nil {
		return Result{}, fmt.Errorf("%w: %v (after retry: %v)", ErrUnavailable, err, retryErr)
	}
	return res, nil
}

type timestampedResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Alignment   *struct {
		Characters []string  `json:"characters"`
		StartTimes []float64 `json:"character_start_times_seconds"`
		EndTimes   []float64 `json:"character_end_times_seconds"`
	} `json:"alignment"`
}

func (s *ElevenLabsSynthesizer) attempt(ctx context.Context, text string) (Result, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") +
		"/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) +
		"/with-timestamps?output_format=" + elevenLabsOutputFormat

	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": s.cfg.ModelID,
	})
	if err != nil {
		return Result{}, false, err
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, false, err
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// Network errors and attempt timeouts are worth one retry.
		return Result{}, true, fmt.Errorf("request tts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, reliability.IsRetryableHTTPStatus(resp.StatusCode),
			fmt.Errorf("tts status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed timestampedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, false, fmt.Errorf("decode tts response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.AudioBase64)
	if err != nil {
		return Result{}, false, fmt.Errorf("decode tts audio: %w", err)
	}
	if len(audio) == 0 {
		return Result{}, false, fmt.Errorf("empty tts audio")
	}

	res := Result{Audio: audio, Format: "mp3"}
	if timings, duration, ok := alignmentTimings(parsed); ok {
		res.Timings = timings
		res.Duration = duration
	} else {
		// No alignment reported; fall back to size-derived duration and the
		// deterministic estimator.
		res.Duration = round3(float64(len(audio)) / float64(elevenLabsBytesPerSecond))
		res.Timings = EstimateTimings(text, res.Duration)
	}
	return res, false, nil
}

// alignmentTimings folds the character alignment into word intervals.
func alignmentTimings(parsed timestampedResponse) ([]WordTiming, float64, bool) {
	a := parsed.Alignment
	if a == nil || len(a.Characters) == 0 ||
		len(a.StartTimes) != len(a.Characters) || len(a.EndTimes) != len(a.Characters) {
		return nil, 0, false
	}

	var (
		timings []WordTiming
		word    strings.Builder
		start   float64
		end     float64
	)
	flush := func() {
		if word.Len() == 0 {
			return
		}
		timings = append(timings, WordTiming{Word: word.String(), Start: round3(start), End: round3(end)})
		word.Reset()
	}
	for i, ch := range a.Characters {
		if strings.TrimSpace(ch) == "" {
			flush()
			continue
		}
		if word.Len() == 0 {
			start = a.StartTimes[i]
		}
		end = a.EndTimes[i]
		word.WriteString(ch)
	}
	flush()
	if len(timings) == 0 {
		return nil, 0, false
	}

	duration := a.EndTimes[len(a.EndTimes)-1]
	// Stretch the intervals into a contiguous cover of [0, duration].
	timings[0].Start = 0
	for i := 1; i < len(timings); i++ {
		timings[i].Start = timings[i-1].End
	}
	timings[len(timings)-1].End = round3(duration)
	return timings, round3(duration), true
}
