package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/intervista/internal/config"
	"github.com/antoniostano/intervista/internal/interview"
	"github.com/antoniostano/intervista/internal/observability"
	"github.com/antoniostano/intervista/internal/protocol"
	"github.com/antoniostano/intervista/internal/session"
	"github.com/antoniostano/intervista/internal/synth"
)

type Server struct {
	cfg      config.Config
	orch     *interview.Orchestrator
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, orch *interview.Orchestrator, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		orch:    orch,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/interview/session", s.handleStartSession)
	r.Get("/v1/interview/session/ws", s.handleSessionWS)
	r.Get("/v1/interview/session/{id}/question", s.handleNextQuestion)
	r.Post("/v1/interview/session/{id}/answer", s.handleSubmitAnswer)
	r.Get("/v1/interview/session/{id}/status", s.handleSessionStatus)
	r.Post("/v1/interview/session/{id}/end", s.handleEndSession)
	r.Get("/v1/interview/info", s.handleInfo)
	r.Get("/v1/avatar/status", s.handleAvatarStatus)
	r.Get("/v1/voices", s.handleListVoices)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"total_questions": s.orch.Info().TotalQuestions,
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.orch.Start(r.Context())
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	payload, err := s.orch.NextQuestion(r.Context(), id)
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, payload)
}

type answerRequest struct {
	QuestionID int    `json:"question_id"`
	AnswerText string `json:"answer_text"`
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.QuestionID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "question_id is required")
		return
	}
	outcome, err := s.orch.SubmitAnswer(r.Context(), id, req.QuestionID, req.AnswerText)
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	info, err := s.orch.Status(id)
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	res, err := s.orch.End(r.Context(), id)
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.orch.Info())
}

func (s *Server) handleAvatarStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.orch.AvatarStatus(r.Context()))
}

// handleSessionWS runs one interview per connection: a session is started on
// connect and terminated on disconnect. All writes go through a single writer
// goroutine; message processing is serialized on its own goroutine so slow
// renders never block the read loop.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	info, err := s.orch.Start(ctx)
	if err != nil {
		_ = conn.WriteJSON(protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   "start_failed",
			Detail: err.Error(),
		})
		return
	}
	defer func() {
		// The connection owns the session; a dropped client must not leak it.
		_, _ = s.orch.End(context.Background(), info.SessionID)
	}()

	s.countEvent("ws_connected")
	defer s.countEvent("ws_disconnected")

	inbound := make(chan any, 16)
	outbound := make(chan any, 16)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.countWS("outbound", string(t))
				}
			}
		}
	}()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.serveInterview(ctx, info.SessionID, inbound, outbound)
	}()

	send := func(msg any) {
		select {
		case <-ctx.Done():
		case outbound <- msg:
		}
	}
	send(protocol.ServerEnvelope{Type: protocol.TypeSessionInfo, Payload: info})

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.SessionIdleTimeout))

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.SessionIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.countWS("inbound", string(t))
		}

		// Pings are answered directly so they are never queued behind a
		// long-running render.
		if ping, ok := parsed.(protocol.ClientPing); ok {
			send(protocol.Pong{Type: protocol.TypePong, TSMs: ping.TSMs})
			continue
		}

		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-workerDone
	<-writerDone
}

// serveInterview processes client messages for one connection in order.
func (s *Server) serveInterview(ctx context.Context, sessionID string, inbound <-chan any, outbound chan<- any) {
	send := func(msg any) {
		select {
		case <-ctx.Done():
		case outbound <- msg:
		}
	}

	for {
		var msg any
		var ok bool
		select {
		case <-ctx.Done():
			return
		case msg, ok = <-inbound:
			if !ok {
				return
			}
		}

		switch m := msg.(type) {
		case protocol.ClientStart:
			payload, err := s.orch.NextQuestion(ctx, sessionID)
			if err != nil {
				send(wsError(err))
				continue
			}
			send(protocol.ServerEnvelope{Type: protocol.TypeQuestion, Payload: payload})
		case protocol.ClientAnswer:
			outcome, err := s.orch.SubmitAnswer(ctx, sessionID, m.QuestionID, m.AnswerText)
			if err != nil {
				send(wsError(err))
				continue
			}
			if outcome.Done {
				send(protocol.ServerEnvelope{Type: protocol.TypeComplete, Payload: outcome.Completion})
				continue
			}
			send(protocol.ServerEnvelope{Type: protocol.TypeQuestion, Payload: outcome.Question})
		case protocol.ClientEnd:
			res, err := s.orch.End(ctx, sessionID)
			if err != nil {
				send(wsError(err))
				continue
			}
			send(protocol.ServerEnvelope{Type: protocol.TypeComplete, Payload: res})
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return "", false
	}
	return id, true
}

func (s *Server) respondOperationError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	respondError(w, status, code, err.Error())
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, interview.ErrQuestionNotFound):
		return http.StatusNotFound, "question_not_found"
	case errors.Is(err, interview.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, interview.ErrQuestionMismatch):
		return http.StatusConflict, "question_mismatch"
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, interview.ErrEmptyAnswer):
		return http.StatusBadRequest, "empty_answer"
	case errors.Is(err, synth.ErrUnavailable):
		return http.StatusBadGateway, "synthesis_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func wsError(err error) protocol.ErrorEvent {
	_, code := classifyError(err)
	return protocol.ErrorEvent{
		Type:   protocol.TypeErrorEvent,
		Code:   code,
		Detail: err.Error(),
	}
}

func (s *Server) countEvent(event string) {
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (s *Server) countWS(direction, msgType string) {
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues(direction, msgType).Inc()
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientStart:
		return m.Type, true
	case protocol.ClientAnswer:
		return m.Type, true
	case protocol.ClientPing:
		return m.Type, true
	case protocol.ClientEnd:
		return m.Type, true
	case protocol.ServerEnvelope:
		return m.Type, true
	case protocol.Pong:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
