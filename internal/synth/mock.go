package synth

import (
	"context"
	"strings"

	"github.com/antoniostano/intervista/internal/audio"
)

const mockSampleRate = 16000

// Average speaking rate, roughly 170 words per minute.
const mockSecondsPerWord = 0.35

// MockSynthesizer is a deterministic local fallback used when no provider key
// is configured. It emits silent WAV audio sized to the estimated duration.
type MockSynthesizer struct {
	voice string
}

func NewMockSynthesizer(voice string) *MockSynthesizer {
	if strings.TrimSpace(voice) == "" {
		voice = "mock"
	}
	return &MockSynthesizer{voice: voice}
}

func (s *MockSynthesizer) VoiceName() string { return s.voice }

func (s *MockSynthesizer) Synthesize(_ context.Context, text string) (Result, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return Result{}, ErrUnavailable
	}

	duration := round3(mockSecondsPerWord * float64(len(words)))
	pcm := make([]byte, int(duration*mockSampleRate)*2)
	wav, err := audio.EncodeWAVPCM16LE(pcm, mockSampleRate)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Audio:    wav,
		Format:   "wav",
		Duration: duration,
		Timings:  EstimateTimings(text, duration),
	}, nil
}
