package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateCreated    State = "created"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateTerminated State = "terminated"
)

type AvatarMode string

const (
	ModeVideo     AvatarMode = "video"
	ModeAudioOnly AvatarMode = "audio_only"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session transition")
)

// Answer records one submitted answer.
type Answer struct {
	QuestionID  int       `json:"question_id"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Session struct {
	ID                   string     `json:"session_id"`
	State                State      `json:"state"`
	AvatarMode           AvatarMode `json:"avatar_mode"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	TotalQuestions       int        `json:"total_questions"`
	CreatedAt            time.Time  `json:"created_at"`
	LastActivityAt       time.Time  `json:"last_activity_at"`
	Answers              []Answer   `json:"answers"`
}

// Store holds the active interview sessions. Each session has its own lock so
// concurrent operations on distinct sessions never block each other, while
// operations on the same session are serialized.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	idleTimeout time.Duration
	onExpire    func(*Session)
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

func NewStore(idleTimeout time.Duration) *Store {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Store{
		entries:     make(map[string]*entry),
		idleTimeout: idleTimeout,
	}
}

func (st *Store) SetExpireHook(hook func(*Session)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.onExpire = hook
}

// Create registers a fresh session in the created state.
func (st *Store) Create(totalQuestions int, mode AvatarMode) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		State:          StateCreated,
		AvatarMode:     mode,
		TotalQuestions: totalQuestions,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.entries[s.ID] = &entry{sess: s}
	return clone(s)
}

// Get returns a snapshot of the session and refreshes its activity time.
func (st *Store) Get(sessionID string) (*Session, error) {
	e, ok := st.lookup(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.LastActivityAt = time.Now().UTC()
	return clone(e.sess), nil
}

// Update applies mutate to a working copy of the session under the per-session
// lock and commits it if the resulting transition is legal. A mutate error
// aborts the update and leaves the session unchanged.
func (st *Store) Update(sessionID string, mutate func(*Session) error) (*Session, error) {
	e, ok := st.lookup(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	work := clone(e.sess)
	if err := mutate(work); err != nil {
		return nil, err
	}
	if err := validateTransition(e.sess, work); err != nil {
		return nil, err
	}
	work.LastActivityAt = time.Now().UTC()
	e.sess = work
	return clone(work), nil
}

func (st *Store) Remove(sessionID string) {
	e, ok := st.lookup(sessionID)
	if !ok {
		return
	}
	// Hold the per-session lock so a session is never removed mid-mutation.
	e.mu.Lock()
	defer e.mu.Unlock()
	st.mu.Lock()
	delete(st.entries, sessionID)
	st.mu.Unlock()
}

// StartJanitor sweeps idle sessions on its own schedule until ctx is done.
func (st *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.Sweep(st.idleTimeout)
			}
		}
	}()
}

// Sweep removes sessions whose last activity is older than maxIdle.
func (st *Store) Sweep(maxIdle time.Duration) {
	now := time.Now().UTC()

	st.mu.RLock()
	ids := make([]string, 0, len(st.entries))
	for id := range st.entries {
		ids = append(ids, id)
	}
	hook := st.onExpire
	st.mu.RUnlock()

	for _, id := range ids {
		e, ok := st.lookup(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		if now.Sub(e.sess.LastActivityAt) < maxIdle {
			e.mu.Unlock()
			continue
		}
		expired := clone(e.sess)
		st.mu.Lock()
		delete(st.entries, id)
		st.mu.Unlock()
		e.mu.Unlock()

		if hook != nil {
			hook(expired)
		}
	}
}

func (st *Store) ActiveCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	count := 0
	for _, e := range st.entries {
		if e.sess.State == StateCreated || e.sess.State == StateInProgress {
			count++
		}
	}
	return count
}

func (st *Store) lookup(sessionID string) (*entry, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.entries[sessionID]
	return e, ok
}

var stateRank = map[State]int{
	StateCreated:    0,
	StateInProgress: 1,
	StateCompleted:  2,
}

func validateTransition(prev, next *Session) error {
	if next.ID != prev.ID || next.TotalQuestions != prev.TotalQuestions {
		return ErrInvalidTransition
	}
	if prev.State == StateTerminated && next.State != StateTerminated {
		return ErrInvalidTransition
	}
	if next.State != StateTerminated {
		prevRank, ok := stateRank[prev.State]
		if !ok {
			return ErrInvalidTransition
		}
		nextRank, ok := stateRank[next.State]
		if !ok {
			return ErrInvalidTransition
		}
		if nextRank < prevRank {
			return ErrInvalidTransition
		}
	}
	if next.CurrentQuestionIndex < prev.CurrentQuestionIndex {
		return ErrInvalidTransition
	}
	if next.CurrentQuestionIndex < 0 || next.CurrentQuestionIndex > next.TotalQuestions {
		return ErrInvalidTransition
	}
	if prev.AvatarMode == ModeAudioOnly && next.AvatarMode != ModeAudioOnly {
		return ErrInvalidTransition
	}
	if len(next.Answers) != next.CurrentQuestionIndex {
		return ErrInvalidTransition
	}
	return nil
}

func clone(s *Session) *Session {
	c := *s
	if s.Answers != nil {
		c.Answers = append([]Answer(nil), s.Answers...)
	}
	return &c
}
