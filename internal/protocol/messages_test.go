package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageAnswer(t *testing.T) {
	raw := []byte(`{"type":"answer","question_id":3,"answer_text":"I led the migration."}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	answer, ok := msg.(ClientAnswer)
	if !ok {
		t.Fatalf("ParseClientMessage() = %T, want ClientAnswer", msg)
	}
	if answer.QuestionID != 3 || answer.AnswerText != "I led the migration." {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestParseClientMessageRejectsIncompleteAnswer(t *testing.T) {
	for _, raw := range []string{
		`{"type":"answer","question_id":0,"answer_text":"x"}`,
		`{"type":"answer","question_id":1}`,
	} {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseClientMessage(%s) should fail", raw)
		}
	}
}

func TestParseClientMessageControlTypes(t *testing.T) {
	cases := map[string]any{
		`{"type":"start"}`:            ClientStart{},
		`{"type":"ping","ts_ms":123}`: ClientPing{},
		`{"type":"end"}`:              ClientEnd{},
	}
	for raw, want := range cases {
		msg, err := ParseClientMessage([]byte(raw))
		if err != nil {
			t.Fatalf("ParseClientMessage(%s) error = %v", raw, err)
		}
		switch want.(type) {
		case ClientStart:
			if _, ok := msg.(ClientStart); !ok {
				t.Fatalf("ParseClientMessage(%s) = %T", raw, msg)
			}
		case ClientPing:
			ping, ok := msg.(ClientPing)
			if !ok || ping.TSMs != 123 {
				t.Fatalf("ParseClientMessage(%s) = %#v", raw, msg)
			}
		case ClientEnd:
			if _, ok := msg.(ClientEnd); !ok {
				t.Fatalf("ParseClientMessage(%s) = %T", raw, msg)
			}
		}
	}
}

func TestParseClientMessageUnsupportedType(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"bogus"}`)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{`)); err == nil {
		t.Fatalf("malformed json should fail")
	}
}
