package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

type voiceSummary struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

type listVoicesResponse struct {
	DefaultVoiceID string         `json:"default_voice_id"`
	Voices         []voiceSummary `json:"voices"`
}

// builtinVoices is the catalog served when no ElevenLabs key is configured, so
// clients can still populate a voice picker against the mock synthesizer.
var builtinVoices = []voiceSummary{
	{VoiceID: "en-US-JennyNeural", Name: "en-US-JennyNeural", Category: "built-in",
		Labels: map[string]string{"gender": "Female", "locale": "en-US"}},
	{VoiceID: "en-US-GuyNeural", Name: "en-US-GuyNeural", Category: "built-in",
		Labels: map[string]string{"gender": "Male", "locale": "en-US"}},
	{VoiceID: "en-US-AriaNeural", Name: "en-US-AriaNeural", Category: "built-in",
		Labels: map[string]string{"gender": "Female", "locale": "en-US"}},
	{VoiceID: "en-GB-SoniaNeural", Name: "en-GB-SoniaNeural", Category: "built-in",
		Labels: map[string]string{"gender": "Female", "locale": "en-GB"}},
	{VoiceID: "en-AU-NatashaNeural", Name: "en-AU-NatashaNeural", Category: "built-in",
		Labels: map[string]string{"gender": "Female", "locale": "en-AU"}},
}

// handleListVoices lists the voices available for interview playback. With an
// ElevenLabs key configured it proxies the account's voice library; otherwise
// it serves the built-in catalog. Either way the configured default voice is
// surfaced so clients know what they get without picking.
func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(s.cfg.ElevenLabsAPIKey) == "" {
		respondJSON(w, http.StatusOK, listVoicesResponse{
			DefaultVoiceID: s.cfg.SynthVoice,
			Voices:         builtinVoices,
		})
		return
	}

	base := strings.TrimSpace(s.cfg.ElevenLabsBaseURL)
	if base == "" {
		base = "https://api.elevenlabs.io"
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet,
		strings.TrimRight(base, "/")+"/v1/voices", nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	req.Header.Set("xi-api-key", s.cfg.ElevenLabsAPIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		respondError(w, http.StatusBadGateway, "elevenlabs_request_failed", err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respondError(w, http.StatusBadGateway, "elevenlabs_bad_status", resp.Status)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		respondError(w, http.StatusBadGateway, "elevenlabs_request_failed", err.Error())
		return
	}

	var parsed struct {
		Voices []struct {
			VoiceID  string            `json:"voice_id"`
			Name     string            `json:"name"`
			Category string            `json:"category"`
			Labels   map[string]string `json:"labels"`
		} `json:"voices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		respondError(w, http.StatusBadGateway, "elevenlabs_invalid_json", err.Error())
		return
	}

	voices := make([]voiceSummary, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		id := strings.TrimSpace(v.VoiceID)
		if id == "" {
			continue
		}
		voices = append(voices, voiceSummary{
			VoiceID:  id,
			Name:     strings.TrimSpace(v.Name),
			Category: v.Category,
			Labels:   v.Labels,
		})
	}
	sort.Slice(voices, func(i, j int) bool {
		return strings.ToLower(voices[i].Name) < strings.ToLower(voices[j].Name)
	})

	respondJSON(w, http.StatusOK, listVoicesResponse{
		DefaultVoiceID: s.cfg.SynthVoice,
		Voices:         voices,
	})
}
