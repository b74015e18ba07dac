package interview

import (
	"time"

	"github.com/antoniostano/intervista/internal/avatar"
	"github.com/antoniostano/intervista/internal/observability"
	"github.com/antoniostano/intervista/internal/session"
	"github.com/antoniostano/intervista/internal/synth"
)

// SessionInfo is the public view of a freshly started or inspected session.
type SessionInfo struct {
	SessionID      string             `json:"session_id"`
	State          session.State      `json:"state"`
	AvatarMode     session.AvatarMode `json:"avatar_mode"`
	TotalQuestions int                `json:"total_questions"`
	CreatedAt      time.Time          `json:"created_at"`
}

// QuestionPayload is one fully rendered question: the text, synthesized audio
// and, in video mode, the talking-head clip. Word timings are included only
// for audio-only delivery, where the client animates a static image instead.
type QuestionPayload struct {
	QuestionID           int                `json:"question_id"`
	QuestionText         string             `json:"question_text"`
	QuestionType         QuestionType       `json:"question_type"`
	AvatarMode           session.AvatarMode `json:"avatar_mode"`
	AudioBase64          string             `json:"audio_base64"`
	AudioFormat          string             `json:"audio_format"`
	DurationSeconds      float64            `json:"duration_seconds"`
	WordTimings          []synth.WordTiming `json:"word_timings,omitempty"`
	VideoURL             string             `json:"video_url,omitempty"`
	IdleVideoURL         string             `json:"idle_video_url,omitempty"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	TotalQuestions       int                `json:"total_questions"`
	LatencyMS            int64              `json:"latency_ms"`
}

// Summary closes out a session.
type Summary struct {
	SessionID         string        `json:"session_id"`
	State             session.State `json:"state"`
	QuestionsAnswered int           `json:"questions_answered"`
	CreatedAt         time.Time     `json:"created_at"`
	CompletedAt       time.Time     `json:"completed_at"`
}

// Completion is returned when the final answer lands.
type Completion struct {
	QuestionsAnswered int     `json:"questions_answered"`
	SessionSummary    Summary `json:"session_summary"`
}

// AnswerOutcome carries either the next question or the completion payload.
type AnswerOutcome struct {
	Done       bool             `json:"done"`
	Question   *QuestionPayload `json:"question,omitempty"`
	Completion *Completion      `json:"completion,omitempty"`
}

// EndResult reports session termination. Ending a session that is already
// gone is not an error.
type EndResult struct {
	AlreadyEnded bool     `json:"already_ended"`
	Summary      *Summary `json:"session_summary,omitempty"`
}

// Info is the static interview configuration. PresenterImageURL is a still
// of the presenter for clients rendering audio-only sessions.
type Info struct {
	TotalQuestions    int    `json:"total_questions"`
	Voice             string `json:"voice"`
	PresenterID       string `json:"presenter_id"`
	PresenterImageURL string `json:"presenter_image_url,omitempty"`
	ForcedAvatarMode  string `json:"forced_avatar_mode,omitempty"`
}

// AvatarStatus combines renderer health with recent provider latencies.
type AvatarStatus struct {
	Health  avatar.Health               `json:"health"`
	Latency observability.StageSnapshot `json:"latency"`
}
