package synth

import (
	"context"
	"errors"
	"math"
	"strings"
)

// ErrUnavailable reports that the backing speech engine failed or timed out.
// There is no fallback below audio synthesis, so callers propagate it.
var ErrUnavailable = errors.New("speech synthesis unavailable")

// WordTiming marks the interval during which a spoken word is audible.
// Intervals are ordered, contiguous and cover the full audio duration.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is one synthesized utterance.
type Result struct {
	Audio    []byte
	Format   string
	Duration float64
	Timings  []WordTiming
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Result, error)
	VoiceName() string
}

// EstimateTimings distributes words across the audio duration proportionally
// to their length, with small pauses after punctuation. Used when the provider
// reports no alignment; deterministic for a given text and duration.
func EstimateTimings(text string, duration float64) []WordTiming {
	words := strings.Fields(text)
	if len(words) == 0 || duration <= 0 {
		return nil
	}

	totalChars := 0
	for _, w := range words {
		totalChars += len(w)
	}
	if totalChars == 0 {
		return nil
	}

	weights := make([]float64, len(words))
	weightSum := 0.0
	for i, w := range words {
		d := float64(len(w)) / float64(totalChars) * duration
		switch w[len(w)-1] {
		case '.', '!', '?':
			d += 0.2
		case ',', ';', ':':
			d += 0.1
		}
		weights[i] = d
		weightSum += d
	}

	scale := duration / weightSum
	timings := make([]WordTiming, len(words))
	cur := 0.0
	for i, w := range words {
		end := cur + weights[i]*scale
		if i == len(words)-1 {
			end = duration
		}
		timings[i] = WordTiming{Word: w, Start: round3(cur), End: round3(end)}
		cur = round3(end)
	}
	return timings
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
