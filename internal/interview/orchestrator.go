package interview

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/antoniostano/intervista/internal/avatar"
	"github.com/antoniostano/intervista/internal/observability"
	"github.com/antoniostano/intervista/internal/session"
	"github.com/antoniostano/intervista/internal/synth"
)

var (
	// ErrInvalidState reports an operation against a completed or terminated
	// session.
	ErrInvalidState = errors.New("interview not in progress")

	// ErrQuestionMismatch reports an answer whose question id does not match
	// the pending question.
	ErrQuestionMismatch = errors.New("answer does not match pending question")

	// ErrQuestionNotFound reports a question index outside the catalog.
	ErrQuestionNotFound = errors.New("question not found")

	ErrEmptyAnswer = errors.New("answer text is empty")
)

// Options wires the orchestrator's collaborators. Metrics and Window may be
// nil, which disables instrumentation.
type Options struct {
	Store    *session.Store
	Synth    synth.Synthesizer
	Renderer avatar.Renderer
	Source   Source

	// ForcedMode pins every session to the given avatar mode and disables
	// the automatic per-session degrade. Empty means auto-select.
	ForcedMode session.AvatarMode

	PresenterID       string
	PresenterImageURL string

	Metrics *observability.Metrics
	Window  *observability.StageWindow
}

// Orchestrator drives the scripted interview: it owns the state machine and
// coordinates the session store, the synthesizer and the avatar renderer.
// It holds no per-session state of its own.
type Orchestrator struct {
	store          *session.Store
	synth          synth.Synthesizer
	renderer       avatar.Renderer
	questions      []Question
	forcedMode     session.AvatarMode
	presenterID    string
	presenterImage string
	metrics        *observability.Metrics
	window         *observability.StageWindow
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:          opts.Store,
		synth:          opts.Synth,
		renderer:       opts.Renderer,
		questions:      opts.Source.Questions(),
		forcedMode:     opts.ForcedMode,
		presenterID:    opts.PresenterID,
		presenterImage: opts.PresenterImageURL,
		metrics:        opts.Metrics,
		window:         opts.Window,
	}
	o.store.SetExpireHook(func(s *session.Session) {
		log.Printf("session expired: id=%s state=%s answered=%d", s.ID, s.State, len(s.Answers))
		o.countEvent("expired")
		o.syncActiveGauge()
	})
	return o
}

// Start creates a session and moves it straight to in_progress. The avatar
// mode is decided once, up front: the forced override when configured,
// otherwise video exactly when the renderer reports itself configured.
func (o *Orchestrator) Start(ctx context.Context) (*SessionInfo, error) {
	mode := o.forcedMode
	if mode == "" {
		mode = session.ModeAudioOnly
		if o.renderer.Health(ctx).Configured {
			mode = session.ModeVideo
		}
	}

	s := o.store.Create(len(o.questions), mode)
	s, err := o.store.Update(s.ID, func(work *session.Session) error {
		work.State = session.StateInProgress
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	log.Printf("session started: id=%s mode=%s questions=%d", s.ID, s.AvatarMode, s.TotalQuestions)
	o.countEvent("started")
	o.syncActiveGauge()

	return &SessionInfo{
		SessionID:      s.ID,
		State:          s.State,
		AvatarMode:     s.AvatarMode,
		TotalQuestions: s.TotalQuestions,
		CreatedAt:      s.CreatedAt,
	}, nil
}

// NextQuestion renders the pending question without advancing the index, so
// re-fetching after a dropped connection replays the same question.
func (o *Orchestrator) NextQuestion(ctx context.Context, sessionID string) (*QuestionPayload, error) {
	s, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != session.StateCreated && s.State != session.StateInProgress {
		return nil, fmt.Errorf("%w: session %s is %s", ErrInvalidState, s.ID, s.State)
	}
	q, err := o.questionAt(s.CurrentQuestionIndex)
	if err != nil {
		return nil, err
	}
	return o.respond(ctx, s, q)
}

// SubmitAnswer records the answer for the pending question, advances, and
// returns either the next rendered question or the completion payload. The
// answer commit happens before any provider call, so a synthesis failure
// afterwards never loses the answer; the client re-fetches the question.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, sessionID string, questionID int, text string) (*AnswerOutcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyAnswer
	}

	s, err := o.store.Update(sessionID, func(work *session.Session) error {
		if work.State != session.StateCreated && work.State != session.StateInProgress {
			return fmt.Errorf("%w: session %s is %s", ErrInvalidState, work.ID, work.State)
		}
		pending, err := o.questionAt(work.CurrentQuestionIndex)
		if err != nil {
			return err
		}
		if pending.ID != questionID {
			return fmt.Errorf("%w: got %d, pending %d", ErrQuestionMismatch, questionID, pending.ID)
		}
		work.Answers = append(work.Answers, session.Answer{
			QuestionID:  questionID,
			Text:        text,
			SubmittedAt: time.Now().UTC(),
		})
		work.CurrentQuestionIndex++
		work.State = session.StateInProgress
		if work.CurrentQuestionIndex == work.TotalQuestions {
			work.State = session.StateCompleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.State == session.StateCompleted {
		log.Printf("session completed: id=%s answered=%d", s.ID, len(s.Answers))
		o.countEvent("completed")
		o.syncActiveGauge()
		return &AnswerOutcome{
			Done: true,
			Completion: &Completion{
				QuestionsAnswered: len(s.Answers),
				SessionSummary:    o.summarize(s),
			},
		}, nil
	}

	q, err := o.questionAt(s.CurrentQuestionIndex)
	if err != nil {
		return nil, err
	}
	payload, err := o.respond(ctx, s, q)
	if err != nil {
		return nil, err
	}
	return &AnswerOutcome{Question: payload}, nil
}

// End terminates and removes the session. Ending a session that no longer
// exists reports already_ended rather than an error.
func (o *Orchestrator) End(ctx context.Context, sessionID string) (*EndResult, error) {
	s, err := o.store.Update(sessionID, func(work *session.Session) error {
		work.State = session.StateTerminated
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return &EndResult{AlreadyEnded: true}, nil
		}
		return nil, err
	}
	o.store.Remove(sessionID)

	log.Printf("session ended: id=%s answered=%d", s.ID, len(s.Answers))
	o.countEvent("terminated")
	o.syncActiveGauge()

	summary := o.summarize(s)
	return &EndResult{Summary: &summary}, nil
}

// Status returns a read-only snapshot of the session.
func (o *Orchestrator) Status(sessionID string) (*SessionInfo, error) {
	s, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{
		SessionID:      s.ID,
		State:          s.State,
		AvatarMode:     s.AvatarMode,
		TotalQuestions: s.TotalQuestions,
		CreatedAt:      s.CreatedAt,
	}, nil
}

func (o *Orchestrator) Info() Info {
	return Info{
		TotalQuestions:    len(o.questions),
		Voice:             o.synth.VoiceName(),
		PresenterID:       o.presenterID,
		PresenterImageURL: o.presenterImage,
		ForcedAvatarMode:  string(o.forcedMode),
	}
}

func (o *Orchestrator) AvatarStatus(ctx context.Context) AvatarStatus {
	st := AvatarStatus{Health: o.renderer.Health(ctx)}
	if o.window != nil {
		st.Latency = o.window.Snapshot()
	}
	return st
}

// respond synthesizes speech for the question and, in video mode, renders the
// avatar clip. Render failures never surface to the caller: the response
// degrades to audio-only and, unless the mode was forced, the session is
// permanently degraded as well. Caller cancellation is the one exception; it
// propagates without degrading anything.
func (o *Orchestrator) respond(ctx context.Context, s *session.Session, q Question) (*QuestionPayload, error) {
	started := time.Now()

	synthStart := time.Now()
	res, err := o.synth.Synthesize(ctx, q.Text)
	synthElapsed := time.Since(synthStart)
	o.observeStage("synthesize", synthElapsed)
	if err != nil {
		o.countProviderError("synth", "unavailable")
		log.Printf("synthesize failed: session=%s question=%d err=%v", s.ID, q.ID, err)
		return nil, fmt.Errorf("synthesize question %d: %w", q.ID, err)
	}
	if o.metrics != nil {
		o.metrics.ObserveSynthesisLatency(synthElapsed)
	}

	payload := &QuestionPayload{
		QuestionID:           q.ID,
		QuestionText:         q.Text,
		QuestionType:         q.Type,
		AvatarMode:           s.AvatarMode,
		AudioBase64:          base64.StdEncoding.EncodeToString(res.Audio),
		AudioFormat:          res.Format,
		DurationSeconds:      res.Duration,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		TotalQuestions:       s.TotalQuestions,
	}

	if s.AvatarMode == session.ModeVideo {
		renderStart := time.Now()
		clip, err := o.renderer.Render(ctx, q.Text)
		renderElapsed := time.Since(renderStart)
		o.observeStage("render", renderElapsed)
		if err != nil {
			// A cancelled caller is not a renderer failure; never degrade
			// the session for it.
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			o.countProviderError("avatar", renderErrorCode(err))
			log.Printf("render failed, degrading to audio-only: session=%s question=%d err=%v", s.ID, q.ID, err)
			if o.metrics != nil {
				o.metrics.AvatarFallbacks.Inc()
			}
			if o.window != nil {
				o.window.ObserveIndicator("avatar_fallback")
			}
			payload.AvatarMode = session.ModeAudioOnly
			if o.forcedMode == "" {
				if err := o.degrade(s.ID); err != nil {
					return nil, err
				}
			}
		} else {
			if o.metrics != nil {
				o.metrics.ObserveRenderLatency(renderElapsed)
			}
			payload.VideoURL = clip.VideoURL
			payload.IdleVideoURL = clip.IdleVideoURL
		}
	}

	if payload.AvatarMode == session.ModeAudioOnly {
		payload.WordTimings = res.Timings
	}
	payload.LatencyMS = time.Since(started).Milliseconds()
	o.observeStage("respond_total", time.Since(started))
	return payload, nil
}

// degrade commits the permanent video→audio_only downgrade, re-checking the
// session state so the result never lands on an ended session.
func (o *Orchestrator) degrade(sessionID string) error {
	_, err := o.store.Update(sessionID, func(work *session.Session) error {
		if work.State != session.StateCreated && work.State != session.StateInProgress {
			return fmt.Errorf("%w: session %s is %s", ErrInvalidState, work.ID, work.State)
		}
		work.AvatarMode = session.ModeAudioOnly
		return nil
	})
	return err
}

func (o *Orchestrator) questionAt(index int) (Question, error) {
	if index < 0 || index >= len(o.questions) {
		return Question{}, fmt.Errorf("%w: index %d of %d", ErrQuestionNotFound, index, len(o.questions))
	}
	return o.questions[index], nil
}

func (o *Orchestrator) summarize(s *session.Session) Summary {
	return Summary{
		SessionID:         s.ID,
		State:             s.State,
		QuestionsAnswered: len(s.Answers),
		CreatedAt:         s.CreatedAt,
		CompletedAt:       time.Now().UTC(),
	}
}

func (o *Orchestrator) countEvent(event string) {
	if o.metrics != nil {
		o.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (o *Orchestrator) countProviderError(provider, code string) {
	if o.metrics != nil {
		o.metrics.ProviderErrors.WithLabelValues(provider, code).Inc()
	}
}

func (o *Orchestrator) syncActiveGauge() {
	if o.metrics != nil {
		o.metrics.ActiveSessions.Set(float64(o.store.ActiveCount()))
	}
}

func (o *Orchestrator) observeStage(stage string, d time.Duration) {
	if o.window != nil {
		o.window.Observe(stage, float64(d.Milliseconds()))
	}
}

func renderErrorCode(err error) string {
	if errors.Is(err, avatar.ErrTimeout) {
		return "timeout"
	}
	return "unavailable"
}
