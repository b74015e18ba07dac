package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStoreCreateGetRemove(t *testing.T) {
	st := NewStore(time.Minute)
	s := st.Create(10, ModeVideo)
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}
	if s.State != StateCreated {
		t.Fatalf("State = %q, want %q", s.State, StateCreated)
	}

	got, err := st.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TotalQuestions != 10 || got.AvatarMode != ModeVideo {
		t.Fatalf("unexpected session state: %+v", got)
	}

	st.Remove(s.ID)
	if _, err := st.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Remove error = %v, want ErrNotFound", err)
	}
}

func TestStoreUpdateAdvancesSession(t *testing.T) {
	st := NewStore(time.Minute)
	s := st.Create(2, ModeAudioOnly)

	updated, err := st.Update(s.ID, func(sess *Session) error {
		sess.State = StateInProgress
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.State != StateInProgress {
		t.Fatalf("State = %q, want %q", updated.State, StateInProgress)
	}

	updated, err = st.Update(s.ID, func(sess *Session) error {
		sess.Answers = append(sess.Answers, Answer{QuestionID: 1, Text: "answer", SubmittedAt: time.Now().UTC()})
		sess.CurrentQuestionIndex++
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.CurrentQuestionIndex != 1 || len(updated.Answers) != 1 {
		t.Fatalf("unexpected session after answer: %+v", updated)
	}
}

func TestStoreUpdateRejectsRegression(t *testing.T) {
	st := NewStore(time.Minute)
	s := st.Create(2, ModeAudioOnly)

	if _, err := st.Update(s.ID, func(sess *Session) error {
		sess.State = StateInProgress
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if _, err := st.Update(s.ID, func(sess *Session) error {
		sess.State = StateCreated
		return nil
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("state regression error = %v, want ErrInvalidTransition", err)
	}

	if _, err := st.Update(s.ID, func(sess *Session) error {
		sess.CurrentQuestionIndex = 5
		return nil
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("index overflow error = %v, want ErrInvalidTransition", err)
	}
}

func TestStoreUpdateRejectsModeUpgrade(t *testing.T) {
	st := NewStore(time.Minute)
	s := st.Create(3, ModeVideo)

	if _, err := st.Update(s.ID, func(sess *Session) error {
		sess.AvatarMode = ModeAudioOnly
		return nil
	}); err != nil {
		t.Fatalf("degrade to audio_only error = %v", err)
	}

	if _, err := st.Update(s.ID, func(sess *Session) error {
		sess.AvatarMode = ModeVideo
		return nil
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("mode upgrade error = %v, want ErrInvalidTransition", err)
	}
}

func TestStoreTerminatedIsTerminal(t *testing.T) {
	st := NewStore(time.Minute)
	s := st.Create(3, ModeVideo)

	if _, err := st.Update(s.ID, func(sess *Session) error {
		sess.State = StateTerminated
		return nil
	}); err != nil {
		t.Fatalf("terminate error = %v", err)
	}

	if _, err := st.Update(s.ID, func(sess *Session) error {
		sess.State = StateInProgress
		return nil
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("revive error = %v, want ErrInvalidTransition", err)
	}
}

func TestStoreMutatorErrorLeavesSessionUnchanged(t *testing.T) {
	st := NewStore(time.Minute)
	s := st.Create(3, ModeAudioOnly)

	boom := errors.New("boom")
	if _, err := st.Update(s.ID, func(sess *Session) error {
		sess.State = StateInProgress
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want mutator error", err)
	}

	got, err := st.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != StateCreated {
		t.Fatalf("State = %q, want unchanged %q", got.State, StateCreated)
	}
}

func TestStoreJanitorSweepsIdleSessions(t *testing.T) {
	st := NewStore(30 * time.Millisecond)
	idle := st.Create(3, ModeAudioOnly)
	active := st.Create(3, ModeAudioOnly)

	expired := make(chan string, 4)
	st.SetExpireHook(func(s *Session) { expired <- s.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st.StartJanitor(ctx, 10*time.Millisecond)

	deadline := time.After(500 * time.Millisecond)
	for {
		// Keep the active session fresh while the idle one ages out.
		if _, err := st.Get(active.ID); err != nil {
			t.Fatalf("active session swept: %v", err)
		}
		select {
		case id := <-expired:
			if id != idle.ID {
				t.Fatalf("expired id = %q, want %q", id, idle.ID)
			}
			if _, err := st.Get(idle.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("idle session still present after sweep: %v", err)
			}
			return
		case <-deadline:
			t.Fatalf("idle session was not swept")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStoreActiveCount(t *testing.T) {
	st := NewStore(time.Minute)
	a := st.Create(3, ModeAudioOnly)
	st.Create(3, ModeAudioOnly)

	if got := st.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount() = %d, want 2", got)
	}

	if _, err := st.Update(a.ID, func(sess *Session) error {
		sess.State = StateTerminated
		return nil
	}); err != nil {
		t.Fatalf("terminate error = %v", err)
	}
	if got := st.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", got)
	}
}
