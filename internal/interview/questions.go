package interview

// QuestionType classifies a catalog question.
type QuestionType string

const (
	QuestionIntroduction QuestionType = "introduction"
	QuestionBehavioral   QuestionType = "behavioral"
	QuestionSituational  QuestionType = "situational"
	QuestionTechnical    QuestionType = "technical"
	QuestionClosing      QuestionType = "closing"
)

// Question is one scripted interview question. IDs are 1-based and stable for
// the lifetime of the process.
type Question struct {
	ID   int          `json:"id"`
	Text string       `json:"text"`
	Type QuestionType `json:"type"`
}

// Source supplies the ordered question catalog. Catalogs are fixed at startup;
// every session walks the same list.
type Source interface {
	Questions() []Question
}

// StaticSource serves a catalog held in memory.
type StaticSource struct {
	questions []Question
}

func NewStaticSource(questions []Question) *StaticSource {
	if len(questions) == 0 {
		questions = DefaultQuestions()
	}
	return &StaticSource{questions: questions}
}

func (s *StaticSource) Questions() []Question {
	out := make([]Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// DefaultQuestions is the built-in ten-question script: one introduction, a
// behavioral and situational middle, and a closing question.
func DefaultQuestions() []Question {
	return []Question{
		{
			ID:   1,
			Text: "Hello! Welcome to this interview. Let's start with a brief introduction. Could you please tell me about yourself and your professional background?",
			Type: QuestionIntroduction,
		},
		{
			ID:   2,
			Text: "That's great to hear. Now, can you tell me about a challenging project you worked on? What was your role, and how did you handle the challenges?",
			Type: QuestionBehavioral,
		},
		{
			ID:   3,
			Text: "Excellent. Describe a time when you had to work with a difficult team member. How did you handle the situation, and what was the outcome?",
			Type: QuestionBehavioral,
		},
		{
			ID:   4,
			Text: "Can you share an example of when you had to learn a new skill or technology quickly? How did you approach the learning process?",
			Type: QuestionBehavioral,
		},
		{
			ID:   5,
			Text: "Imagine you're given a project with an unrealistic deadline. How would you handle this situation with your manager and team?",
			Type: QuestionSituational,
		},
		{
			ID:   6,
			Text: "If you discovered a critical bug in production right before a major release, what steps would you take to address it?",
			Type: QuestionSituational,
		},
		{
			ID:   7,
			Text: "What's your approach to ensuring quality in your work? Can you walk me through your process for reviewing or testing your deliverables?",
			Type: QuestionTechnical,
		},
		{
			ID:   8,
			Text: "How do you stay updated with the latest trends and best practices in your field? Can you give a recent example?",
			Type: QuestionTechnical,
		},
		{
			ID:   9,
			Text: "Tell me about a time when you received constructive criticism. How did you respond, and what did you learn from it?",
			Type: QuestionBehavioral,
		},
		{
			ID:   10,
			Text: "We're coming to the end of our interview. What questions do you have for me about the role or the company?",
			Type: QuestionClosing,
		},
	}
}
